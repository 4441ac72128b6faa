package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters for one engine. Each instance owns its
// registry so tests and multiple engines never collide.
type Metrics struct {
	Observations *prometheus.CounterVec
	FeedFailures *prometheus.CounterVec
	Fallbacks    *prometheus.CounterVec
	Malformed    *prometheus.CounterVec
	Trades       *prometheus.CounterVec
	StateErrors  *prometheus.CounterVec
	Discarded    *prometheus.CounterVec
	Balance      prometheus.Gauge

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		Observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridbot_observations_total",
			Help: "Price observations delivered by the price source",
		}, []string{"asset", "source"}),
		FeedFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridbot_feed_failures_total",
			Help: "Push sessions ended by an error and failed polls",
		}, []string{"asset", "source"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridbot_fallback_activations_total",
			Help: "Times a subscription switched from push to polling",
		}, []string{"asset"}),
		Malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridbot_malformed_messages_total",
			Help: "Push messages skipped because they could not be parsed",
		}, []string{"asset"}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridbot_trades_total",
			Help: "Committed ledger events by kind",
		}, []string{"asset", "kind"}),
		StateErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridbot_state_errors_total",
			Help: "Strategy actions rejected by the ledger",
		}, []string{"asset"}),
		Discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridbot_discarded_observations_total",
			Help: "Observations dropped because their subscription was cancelled",
		}, []string{"asset"}),
		Balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridbot_balance",
			Help: "Current cash balance in quote currency",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.Observations,
		m.FeedFailures,
		m.Fallbacks,
		m.Malformed,
		m.Trades,
		m.StateErrors,
		m.Discarded,
		m.Balance,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
