package processor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "records_processed_total",
		Help:      "Total transcript records processed, by kind.",
	}, []string{"kind"})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "events_emitted_total",
		Help:      "Total block events emitted, by event type.",
	}, []string{"type"})

	orphansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "orphaned_records_total",
		Help:      "Tool results and progress records with no matching tool call, by kind.",
	}, []string{"kind"})
)
