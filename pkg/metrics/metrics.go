// Package metrics exposes Prometheus instruments for the payment pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline instruments.
type Metrics struct {
	OperationsSubmitted  *prometheus.CounterVec
	OperationsExecuted   *prometheus.CounterVec
	OperationsRejected   *prometheus.CounterVec
	ReviewEnqueued       prometheus.Counter
	ReviewDecided        *prometheus.CounterVec
	RiskFailOpen         prometheus.Counter
	IdempotencyReplays   prometheus.Counter
	IdempotencyConflicts prometheus.Counter
	WebhooksReceived     *prometheus.CounterVec
	WebhooksRejected     *prometheus.CounterVec
	GatewayCallDuration  *prometheus.HistogramVec
	PipelineDuration     prometheus.Histogram
}

// New creates and returns the metric set for the given service.
func New(serviceName string) *Metrics {
	return &Metrics{
		OperationsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payments",
			Subsystem: serviceName,
			Name:      "operations_submitted_total",
			Help:      "Total operations submitted to the router",
		}, []string{"operation_type"}),
		OperationsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payments",
			Subsystem: serviceName,
			Name:      "operations_executed_total",
			Help:      "Operations executed against the ledger store",
		}, []string{"operation_type", "status"}),
		OperationsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payments",
			Subsystem: serviceName,
			Name:      "operations_rejected_total",
			Help:      "Operations rejected, labelled by pipeline stage and reason kind",
		}, []string{"stage", "kind"}),
		ReviewEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "payments",
			Subsystem: serviceName,
			Name:      "review_enqueued_total",
			Help:      "Transactions routed to the manual review queue",
		}),
		ReviewDecided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payments",
			Subsystem: serviceName,
			Name:      "review_decided_total",
			Help:      "Manual review decisions",
		}, []string{"decision"}),
		RiskFailOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "payments",
			Subsystem: serviceName,
			Name:      "risk_fail_open_total",
			Help:      "Risk analyses that errored and defaulted to allow",
		}),
		IdempotencyReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "payments",
			Subsystem: serviceName,
			Name:      "idempotency_replays_total",
			Help:      "Requests answered from a cached idempotent result",
		}),
		IdempotencyConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "payments",
			Subsystem: serviceName,
			Name:      "idempotency_conflicts_total",
			Help:      "Idempotency key reuse with differing parameters",
		}),
		WebhooksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payments",
			Subsystem: serviceName,
			Name:      "webhooks_received_total",
			Help:      "Inbound webhooks by provider",
		}, []string{"provider"}),
		WebhooksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payments",
			Subsystem: serviceName,
			Name:      "webhooks_rejected_total",
			Help:      "Webhooks rejected at the authenticator, by reason",
		}, []string{"provider", "reason"}),
		GatewayCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "payments",
			Subsystem: serviceName,
			Name:      "gateway_call_duration_seconds",
			Help:      "Latency of gateway adapter calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"gateway", "call"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "payments",
			Subsystem: serviceName,
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end latency of SubmitOperation",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Register registers all instruments on the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.OperationsSubmitted,
		m.OperationsExecuted,
		m.OperationsRejected,
		m.ReviewEnqueued,
		m.ReviewDecided,
		m.RiskFailOpen,
		m.IdempotencyReplays,
		m.IdempotencyConflicts,
		m.WebhooksReceived,
		m.WebhooksRejected,
		m.GatewayCallDuration,
		m.PipelineDuration,
	)
}
