package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PendingMessages = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gmp",
		Subsystem: "relay",
		Name:      "pending_messages",
		Help:      "Number of outbox messages seen past the cursor in the last poll.",
	}, []string{"src_chain_id"})

	DeliveredMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gmp",
		Subsystem: "relay",
		Name:      "delivered_messages_total",
		Help:      "Messages successfully submitted to their destination ledger.",
	}, []string{"src_chain_id", "dst_chain_id"})

	SkippedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gmp",
		Subsystem: "relay",
		Name:      "skipped_messages_total",
		Help:      "Messages dropped after a permanent delivery rejection.",
	}, []string{"src_chain_id", "dst_chain_id"})

	FailedDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gmp",
		Subsystem: "relay",
		Name:      "failed_deliveries_total",
		Help:      "Transient delivery failures that will be retried.",
	}, []string{"src_chain_id", "dst_chain_id"})

	CursorNonce = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gmp",
		Subsystem: "relay",
		Name:      "cursor_nonce",
		Help:      "Last outbox nonce the relay finished with per source ledger.",
	}, []string{"src_chain_id"})

	SubmissionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gmp",
		Subsystem: "relay",
		Name:      "submission_duration_seconds",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20},
	}, []string{"dst_chain_id"})
)
