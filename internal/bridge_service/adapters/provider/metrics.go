package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var providerRequestDurationHist = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "imessage_bridge",
		Name:      "provider_request_duration_seconds",
		Help:      "Duration of provider API calls.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"operation", "outcome"}, // outcome: ok, transient, rejected
)
