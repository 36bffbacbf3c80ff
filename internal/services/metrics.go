package services

import "github.com/prometheus/client_golang/prometheus"

// Inbound processing outcomes, used as the "outcome" label value.
const (
	outcomeAnswered    = "answered"
	outcomeDuplicate   = "duplicate"
	outcomeUnlinked    = "unlinked"
	outcomeLinkAttempt = "link_attempt"
	outcomeRateLimited = "rate_limited"
	outcomeFailed      = "failed"
)

var (
	// messagesProcessed counts inbound messages by terminal outcome.
	messagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_messages_processed_total",
			Help: "Total number of inbound messages processed, by outcome.",
		},
		[]string{"outcome"},
	)

	// processingDuration tracks end-to-end latency of the inbound pipeline,
	// model calls included.
	processingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bot_message_processing_seconds",
			Help:    "End-to-end inbound message processing duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)

	// sendFailures counts outbound deliveries the platform rejected.
	sendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_send_failures_total",
			Help: "Total number of failed outbound sends.",
		},
	)
)

func init() {
	prometheus.MustRegister(messagesProcessed, processingDuration, sendFailures)
}
