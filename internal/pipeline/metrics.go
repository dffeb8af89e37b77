package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "batches_total",
		Help:      "Total transcript batches processed.",
	})

	linesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "lines_read_total",
		Help:      "Total transcript lines read.",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "batch_duration_seconds",
		Help:      "Time to read, transform, persist and publish one batch.",
		Buckets:   prometheus.DefBuckets,
	})

	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "session_workers",
		Help:      "Number of running session workers.",
	})
)
