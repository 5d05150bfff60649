// Package metrics exposes Prometheus instrumentation for the capital-call
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	CallsCreated     prometheus.Counter
	Deposits         prometheus.Counter
	DepositedAmount  prometheus.Counter
	Refunds          prometheus.Counter
	Conversions      prometheus.Counter
	ConversionNoOps  prometheus.Counter
	Claims           prometheus.Counter
	CallsClosed      prometheus.Counter
	RejectedOps      *prometheus.CounterVec
	OperationSeconds *prometheus.HistogramVec
}

// New creates and registers all engine metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		CallsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capcall_calls_created_total",
			Help: "Capital calls created",
		}),
		Deposits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capcall_deposits_total",
			Help: "Accepted deposits",
		}),
		DepositedAmount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capcall_deposited_amount_total",
			Help: "Sum of accepted deposit amounts",
		}),
		Refunds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capcall_refunds_total",
			Help: "Settled refunds",
		}),
		Conversions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capcall_conversions_total",
			Help: "Conversions that minted ownership tokens",
		}),
		ConversionNoOps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capcall_conversion_noops_total",
			Help: "Convert invocations that were ineligible and no-oped",
		}),
		Claims: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capcall_claims_total",
			Help: "Settled claims",
		}),
		CallsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "capcall_calls_closed_total",
			Help: "Capital calls closed",
		}),
		RejectedOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "capcall_rejected_operations_total",
			Help: "Operations rejected on a precondition, by operation and error code",
		}, []string{"operation", "code"}),
		OperationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "capcall_operation_duration_seconds",
			Help:    "Engine operation latency",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"operation"}),
	}
}
