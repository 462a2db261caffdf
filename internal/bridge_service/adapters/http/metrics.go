package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookResponsesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imessage_bridge",
			Name:      "webhook_responses_total",
			Help:      "Webhook responses by HTTP status code.",
		},
		[]string{"code"},
	)

	webhookInFlightGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "imessage_bridge",
			Name:      "webhook_async_in_flight",
			Help:      "Acknowledged webhook messages still being processed.",
		},
	)
)
