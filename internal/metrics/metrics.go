// Package metrics implements the process-wide counters/histograms/gauges
// and OpenMetrics text rendering, with a graceful-degradation fallback so a
// render failure never blocks serving /api/metrics.
package metrics

import (
	"bytes"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Collector holds every series the orchestrator emits, all registered
// against one explicit registry (never the global default) so tests can
// substitute isolated instances.
type Collector struct {
	registry *prometheus.Registry

	LLMCallCount        *prometheus.CounterVec
	LLMLatency          *prometheus.HistogramVec
	LLMTokensConsumed   *prometheus.CounterVec
	ToolExecutionCount  *prometheus.CounterVec
	ToolLatency         *prometheus.HistogramVec
	OrchestratorErrors  *prometheus.CounterVec
	RetryAttempts       *prometheus.CounterVec
	SessionCount        *prometheus.CounterVec
	ActiveSessions      prometheus.Gauge
	SessionDuration     *prometheus.HistogramVec
	ApplicationInfo     *prometheus.GaugeVec
}

// New constructs a Collector registered against its own registry.
func New(version string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		LLMCallCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_call_count_total",
			Help: "Total LLM calls by provider, model, and status.",
		}, []string{"provider", "model", "status"}),
		LLMLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_latency_seconds",
			Help:    "LLM call latency in seconds.",
			Buckets: latencyBuckets,
		}, []string{"provider", "model"}),
		LLMTokensConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_tokens_consumed_total",
			Help: "Tokens consumed by provider, model, and token type.",
		}, []string{"provider", "model", "token_type"}),
		ToolExecutionCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_execution_count_total",
			Help: "Tool executions by tool name and status.",
		}, []string{"tool_name", "status"}),
		ToolLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tool_latency_seconds",
			Help:    "Tool execution latency in seconds.",
			Buckets: latencyBuckets,
		}, []string{"tool_name"}),
		OrchestratorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_errors_count_total",
			Help: "Orchestrator errors by error type and component.",
		}, []string{"error_type", "component"}),
		RetryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "retry_attempts_count_total",
			Help: "Retry attempts by component and reason.",
		}, []string{"component", "retry_reason"}),
		SessionCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "session_count_total",
			Help: "Sessions by agent name and lifecycle event.",
		}, []string{"agent_name", "event"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_sessions_current",
			Help: "Currently active sessions.",
		}),
		SessionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "session_duration_seconds",
			Help:    "Session duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"agent_name"}),
		ApplicationInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "application_info",
			Help: "Static build information.",
		}, []string{"version"}),
	}
	c.ApplicationInfo.WithLabelValues(version).Set(1)
	return c
}

// Registry exposes the underlying registry so the HTTP layer can also
// mount a standard promhttp handler against the same instance if desired.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Render produces OpenMetrics text. On failure it never blocks serving: it
// returns a minimal payload containing only application_info and
// orchestrator_errors_count_total, and bumps
// orchestrator_errors_count_total{error_type=METRICS_RENDER_FAILURE}.
func (c *Collector) Render() ([]byte, error) {
	families, err := c.registry.Gather()
	if err != nil {
		c.OrchestratorErrors.WithLabelValues("METRICS_RENDER_FAILURE", "metrics").Inc()
		return c.fallback(), nil
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeOpenMetrics))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			c.OrchestratorErrors.WithLabelValues("METRICS_RENDER_FAILURE", "metrics").Inc()
			return c.fallback(), nil
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		_ = closer.Close()
	}
	return buf.Bytes(), nil
}

func (c *Collector) fallback() []byte {
	families, err := c.registry.Gather()
	if err != nil {
		return []byte("# metrics unavailable\n")
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeOpenMetrics))
	for _, mf := range families {
		if mf.GetName() != "application_info" && mf.GetName() != "orchestrator_errors_count_total" {
			continue
		}
		_ = enc.Encode(mf)
	}
	return buf.Bytes()
}
