// Package metrics exposes calendarbot's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "calendarbot"

// Collector owns a private registry and every metric the bot records.
// All recording methods are safe on a nil *Collector.
type Collector struct {
	registry  *prometheus.Registry
	startTime time.Time

	turns          *prometheus.CounterVec
	turnIterations prometheus.Histogram
	llmRequests    *prometheus.CounterVec
	llmLatency     prometheus.Histogram
	toolExecutions *prometheus.CounterVec
	toolLatency    *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	invalidations  *prometheus.CounterVec
	conflictChecks *prometheus.CounterVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry:  reg,
		startTime: time.Now(),
		turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by outcome.",
		}, []string{"outcome"}),
		turnIterations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_iterations",
			Help:      "Model calls needed per turn.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "LLM API requests by result.",
		}, []string{"result"}),
		llmLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_seconds",
			Help:      "LLM request latency in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		toolExecutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_executions_total",
			Help:      "Tool executions by tool and status tag.",
		}, []string{"tool", "status"}),
		toolLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_latency_seconds",
			Help:      "Tool execution latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"tool"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Calendar cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		invalidations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidated_entries_total",
			Help:      "Cache entries removed by invalidation, per tier.",
		}, []string{"tier"}),
		conflictChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_checks_total",
			Help:      "Availability conflict checks by outcome.",
		}, []string{"outcome"}),
	}
}

// Uptime returns how long the collector has been running.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler renders the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) TurnFinished(outcome string, iterations int) {
	if c == nil {
		return
	}
	c.turns.WithLabelValues(outcome).Inc()
	c.turnIterations.Observe(float64(iterations))
}

func (c *Collector) LLMRequest(d time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.llmRequests.WithLabelValues(result).Inc()
	c.llmLatency.Observe(d.Seconds())
}

func (c *Collector) ToolExecuted(tool, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.toolExecutions.WithLabelValues(tool, status).Inc()
	c.toolLatency.WithLabelValues(tool).Observe(d.Seconds())
}

func (c *Collector) CacheLookup(tier string, hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(tier, result).Inc()
}

func (c *Collector) CacheInvalidated(tier string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.invalidations.WithLabelValues(tier).Add(float64(n))
}

func (c *Collector) ConflictChecked(outcome string) {
	if c == nil {
		return
	}
	c.conflictChecks.WithLabelValues(outcome).Inc()
}
