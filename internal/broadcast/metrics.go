package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "subscribers_active",
		Help:      "Number of connected stream subscribers.",
	})

	disconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "subscriber_disconnects_total",
		Help:      "Total subscriber disconnects, by reason.",
	}, []string{"reason"})

	replayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "replayed_events_total",
		Help:      "Total buffered events replayed to connecting subscribers.",
	})

	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "messages_sent_total",
		Help:      "Total stream messages written to subscribers, by event type.",
	}, []string{"event"})
)
