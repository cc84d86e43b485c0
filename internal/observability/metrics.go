// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Reconciliation metrics
	CycleRunsTotal      *prometheus.CounterVec
	CycleDuration       *prometheus.HistogramVec
	PositionsDeleted    prometheus.Counter
	UncategorizedClamps prometheus.Counter

	// Order lifecycle metrics
	OrderTransitions *prometheus.CounterVec
	OrderPassErrors  prometheus.Counter
	OpenOrders       prometheus.Gauge

	// Broker metrics
	BrokerCallErrors *prometheus.CounterVec

	// Database metrics
	DBQueryErrors *prometheus.CounterVec

	// Health metrics
	LastSuccessfulSync      prometheus.Gauge
	LastSuccessfulOrderPass prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "soad"
	}

	return &Metrics{
		// Reconciliation metrics
		CycleRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "cycle_runs_total",
			Help:      "Total number of reconciliation passes by pass and status",
		}, []string{"pass", "status"}),
		CycleDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "cycle_duration_seconds",
			Help:      "Reconciliation pass duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"pass"}),
		PositionsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "positions_deleted_total",
			Help:      "Total number of ledger positions deleted because the brokerage no longer holds the symbol",
		}),
		UncategorizedClamps: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "uncategorized_cash_clamps_total",
			Help:      "Total number of times uncategorized cash went negative and was clamped to zero",
		}),

		// Order lifecycle metrics
		OrderTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Total number of order state transitions by target status",
		}, []string{"status"}),
		OrderPassErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "pass_errors_total",
			Help:      "Total number of per-order errors during order passes",
		}),
		OpenOrders: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "open",
			Help:      "Number of open orders seen by the latest order pass",
		}),

		// Broker metrics
		BrokerCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "call_errors_total",
			Help:      "Total number of brokerage API call errors by broker",
		}, []string{"broker"}),

		// Database metrics
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulSync: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of last successful bookkeeping cycle",
		}),
		LastSuccessfulOrderPass: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_order_pass_timestamp",
			Help:      "Unix timestamp of last successful order pass",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCycle records a reconciliation pass outcome. Nil-safe so callers
// can run without metrics in tests.
func (m *Metrics) RecordCycle(pass, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.CycleRunsTotal.WithLabelValues(pass, status).Inc()
	m.CycleDuration.WithLabelValues(pass).Observe(durationSeconds)
}

// RecordOrderTransition records an order state transition.
func (m *Metrics) RecordOrderTransition(status string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(status).Inc()
}

// RecordOrderPassError counts a per-order failure.
func (m *Metrics) RecordOrderPassError() {
	if m == nil {
		return
	}
	m.OrderPassErrors.Inc()
}

// SetOpenOrders updates the open-order gauge.
func (m *Metrics) SetOpenOrders(n int) {
	if m == nil {
		return
	}
	m.OpenOrders.Set(float64(n))
}

// RecordBrokerError counts a brokerage API failure.
func (m *Metrics) RecordBrokerError(broker string) {
	if m == nil {
		return
	}
	m.BrokerCallErrors.WithLabelValues(broker).Inc()
}

// RecordPositionDeleted counts a ledger row removed during reconciliation.
func (m *Metrics) RecordPositionDeleted() {
	if m == nil {
		return
	}
	m.PositionsDeleted.Inc()
}

// RecordUncategorizedClamp counts a negative uncategorized cash clamp.
func (m *Metrics) RecordUncategorizedClamp() {
	if m == nil {
		return
	}
	m.UncategorizedClamps.Inc()
}
