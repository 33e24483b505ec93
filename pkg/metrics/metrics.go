// Package metrics exposes prometheus collectors for the order watcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "orderwatch"

type Metrics struct {
	Refreshes        *prometheus.CounterVec // result=ok|error
	RefreshDuration  prometheus.Histogram
	OpenOrders       *prometheus.GaugeVec // kind
	OrderWarnings    prometheus.Gauge
	AnnotationErrors prometheus.Counter
	HeadNumber       prometheus.Gauge
	RPCCalls         *prometheus.CounterVec // method, result
	BreakerOpen      prometheus.Gauge
	Cancels          *prometheus.CounterVec // result=submitted|confirmed|failed
	WSClients        prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Order refreshes by result.",
		}, []string{"result"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Time to fetch orders and market data.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		OpenOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_orders",
			Help:      "Open orders in the current set by kind.",
		}, []string{"kind"}),
		OrderWarnings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "order_warnings",
			Help:      "Orders that cannot be executed as they stand.",
		}),
		AnnotationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "annotation_errors_total",
			Help:      "Orders that could not be annotated.",
		}),
		HeadNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "head_block_number",
			Help:      "Latest block number seen on the head subscription.",
		}),
		RPCCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "Contract calls by method and result.",
		}, []string{"method", "result"}),
		BreakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpc_breaker_open",
			Help:      "1 while the RPC circuit breaker is open.",
		}),
		Cancels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancels_total",
			Help:      "Cancel transactions by outcome.",
		}, []string{"result"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected WebSocket clients.",
		}),
	}

	reg.MustRegister(
		m.Refreshes,
		m.RefreshDuration,
		m.OpenOrders,
		m.OrderWarnings,
		m.AnnotationErrors,
		m.HeadNumber,
		m.RPCCalls,
		m.BreakerOpen,
		m.Cancels,
		m.WSClients,
	)
	return m
}

// ObserveRefresh records one refresh attempt
func (m *Metrics) ObserveRefresh(seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Refreshes.WithLabelValues(result).Inc()
	m.RefreshDuration.Observe(seconds)
}

// SetOrderCounts replaces the per-kind open order gauges
func (m *Metrics) SetOrderCounts(counts map[string]int) {
	m.OpenOrders.Reset()
	for kind, n := range counts {
		m.OpenOrders.WithLabelValues(kind).Set(float64(n))
	}
}

// ObserveRPC records one contract call
func (m *Metrics) ObserveRPC(method string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RPCCalls.WithLabelValues(method, result).Inc()
}
