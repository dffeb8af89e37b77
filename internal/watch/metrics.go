package watch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	watchedDirs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "watched_dirs",
		Help:      "Number of directories being watched.",
	})

	fileEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "file_events_total",
		Help:      "Total transcript file events after debouncing, by kind.",
	}, []string{"kind"})
)
