package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// fallbacksTotal - деградации с основного транспорта на запасной по операциям
var fallbacksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kalshigw",
		Subsystem: "transport",
		Name:      "fallbacks_total",
		Help:      "Operations degraded from the primary to the secondary transport",
	},
	[]string{"op"},
)

// restRequestsTotal - HTTP запросы к торговому API по операциям и исходам
var restRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kalshigw",
		Subsystem: "transport",
		Name:      "rest_requests_total",
		Help:      "Trade API HTTP requests by operation and outcome",
	},
	[]string{"op", "outcome"},
)
