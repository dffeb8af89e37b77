package eventbuf

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "buffer_evictions_total",
		Help:      "Total events evicted from session replay buffers.",
	})

	bufferedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "buffered_sessions",
		Help:      "Number of sessions with a replay buffer.",
	})
)
