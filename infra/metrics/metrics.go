// Package metrics exposes engine counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "matchcore"

type Metrics struct {
	OrdersPlaced   prometheus.Counter
	OrdersRejected *prometheus.CounterVec // by reason
	Trades         prometheus.Counter
	TradedQuantity prometheus.Counter
	RestingOrders  prometheus.Gauge
	PriceLevels    *prometheus.GaugeVec // by side
	PlaceLatency   prometheus.Histogram

	Published     prometheus.Counter
	PublishErrors prometheus.Counter
	OutboxFailed  prometheus.Counter
}

// New registers every collector on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_placed_total",
			Help: "Orders accepted by the engine.",
		}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_rejected_total",
			Help: "Orders rejected before reaching the book.",
		}, []string{"reason"}),
		Trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "trades_total",
			Help: "Trades executed.",
		}),
		TradedQuantity: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "traded_quantity_total",
			Help: "Sum of traded quantity.",
		}),
		RestingOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "arena_orders",
			Help: "Orders allocated in the arena.",
		}),
		PriceLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "price_levels",
			Help: "Live price levels per side.",
		}, []string{"side"}),
		PlaceLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "place_order_seconds",
			Help:    "PlaceOrder latency including journal and outbox writes.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_published_total",
			Help: "Trade events acknowledged by the broker.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "publish_errors_total",
			Help: "Failed publish attempts.",
		}),
		OutboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_failed_total",
			Help: "Trade events abandoned after max retries.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.OrdersPlaced, m.OrdersRejected, m.Trades, m.TradedQuantity,
			m.RestingOrders, m.PriceLevels, m.PlaceLatency,
			m.Published, m.PublishErrors, m.OutboxFailed,
		)
	}
	return m
}

// Book records occupancy after a command.
func (m *Metrics) Book(orders, bidLevels, askLevels int) {
	m.RestingOrders.Set(float64(orders))
	m.PriceLevels.WithLabelValues("buy").Set(float64(bidLevels))
	m.PriceLevels.WithLabelValues("sell").Set(float64(askLevels))
}

func (m *Metrics) Rejected(reason string) {
	m.OrdersRejected.WithLabelValues(reason).Inc()
}
