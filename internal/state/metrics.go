package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	savesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "state_saves_total",
		Help:      "Total session state snapshots written.",
	})

	saveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "state_save_failures_total",
		Help:      "Total session state snapshots that failed to write.",
	})
)
