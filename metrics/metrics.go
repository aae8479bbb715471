// Package metrics exports model call records as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/randalmurphal/council/tracker"
)

const namespace = "council"

// Collector is a tracker.Tracker that updates Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry
	calls    *prometheus.CounterVec
	tokens   *prometheus.CounterVec
	cost     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates a collector registered on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model calls by model and status.",
		}, []string{"model", "status"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tokens_total",
			Help:      "Tokens consumed by model and direction.",
		}, []string{"model", "direction"}),
		cost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_cost_usd_total",
			Help:      "Estimated spend in USD by model.",
		}, []string{"model"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Model call latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 45, 90, 180},
		}, []string{"model"}),
	}
	c.registry.MustRegister(c.calls, c.tokens, c.cost, c.duration)
	return c
}

// Track implements tracker.Tracker.
func (c *Collector) Track(r tracker.Record) {
	m := string(r.Model)
	c.calls.WithLabelValues(m, string(r.Status)).Inc()
	c.tokens.WithLabelValues(m, "prompt").Add(float64(r.PromptTokens))
	c.tokens.WithLabelValues(m, "completion").Add(float64(r.CompletionTokens))
	if r.CostUSD > 0 {
		c.cost.WithLabelValues(m).Add(r.CostUSD)
	}
	c.duration.WithLabelValues(m).Observe(r.Duration.Seconds())
}

// Registry returns the registry the metrics live on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

var _ tracker.Tracker = (*Collector)(nil)
