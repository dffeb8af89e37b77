package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	streamsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "streams_active",
		Help:      "Number of open stream connections, by transport.",
	}, []string{"transport"})

	streamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thinkt",
		Subsystem: "live",
		Name:      "stream_requests_total",
		Help:      "Total stream requests, by transport and outcome.",
	}, []string{"transport", "outcome"})
)
