package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sealbox",
		Name:      "requests_total",
		Help:      "Requests handled, by endpoint.",
	}, []string{"endpoint"})

	deniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sealbox",
		Name:      "denied_total",
		Help:      "Requests denied by the security layer, by endpoint and reason.",
	}, []string{"endpoint", "reason"})

	liveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sealbox",
		Name:      "live_subscribers",
		Help:      "Currently connected WebSocket subscribers.",
	})
)
