package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inboundMessagesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imessage_bridge",
			Name:      "inbound_messages_total",
			Help:      "Inbound messages handled by the ingestion pipeline.",
		},
		[]string{"source", "outcome"}, // source: poll, webhook
	)

	pollCyclesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imessage_bridge",
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by result.",
		},
		[]string{"result"}, // ok, error, skipped
	)

	statusChecksCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imessage_bridge",
			Name:      "status_checks_total",
			Help:      "Outbound delivery status checks by result.",
		},
		[]string{"result"}, // updated, terminal, lookup_error, store_error
	)

	reconcileDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "imessage_bridge",
			Name:      "reconcile_cycle_duration_seconds",
			Help:      "Duration of delivery status reconciliation cycles.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	dedupSweptCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "imessage_bridge",
			Name:      "dedup_records_swept_total",
			Help:      "Processed-message records removed after the retention window.",
		},
	)
)
