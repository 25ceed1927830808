// Package tracer implements the per-session event recorder: every logged
// event becomes a TraceStep in the session store and, for a fixed set of
// event names, a metrics update.
package tracer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/relaycore/agentgate/internal/metrics"
	"github.com/relaycore/agentgate/internal/models"
	"github.com/relaycore/agentgate/internal/session"
)

// Tracer is a handle bound to one session_id. Construct a fresh one per
// orchestration request.
type Tracer struct {
	sessionID string
	store     *session.Store
	metrics   *metrics.Collector
	seq       int64
}

// New binds a Tracer to sessionID, backed by store and metrics.
func New(sessionID string, store *session.Store, m *metrics.Collector) *Tracer {
	return &Tracer{sessionID: sessionID, store: store, metrics: m}
}

// Log appends a TraceStep and, for the fixed event→metric mapping, updates
// the matching series. A panic while appending the trace step is recovered
// and recorded as
// orchestrator_errors_count_total{error_type=TRACE_APPEND_FAILURE}; a step
// for a session the store does not hold is dropped without a metric.
// Neither case propagates to the caller.
func (t *Tracer) Log(component, event string, details map[string]any) {
	step := models.TraceStep{
		Sequence:  atomic.AddInt64(&t.seq, 1),
		Timestamp: time.Now(),
		Component: component,
		Event:     event,
		Details:   details,
	}
	t.appendStep(step)
	t.applyMetricEffect(component, event, details)
}

func (t *Tracer) appendStep(step models.TraceStep) {
	defer func() {
		if r := recover(); r != nil {
			t.metrics.OrchestratorErrors.WithLabelValues(string(models.ErrTraceAppendFailure), "tracer").Inc()
		}
	}()
	t.store.AppendTraceStep(t.sessionID, step)
}

func (t *Tracer) applyMetricEffect(component, event string, details map[string]any) {
	switch event {
	case "llm_call_success":
		provider, _ := details["provider"].(string)
		model, _ := details["model"].(string)
		t.metrics.LLMCallCount.WithLabelValues(provider, model, "success").Inc()
		if d, ok := details["duration_seconds"].(float64); ok {
			t.metrics.LLMLatency.WithLabelValues(provider, model).Observe(d)
		}
		if pt, ok := toFloat(details["prompt_tokens"]); ok {
			t.metrics.LLMTokensConsumed.WithLabelValues(provider, model, "prompt").Add(pt)
		}
		if ct, ok := toFloat(details["completion_tokens"]); ok {
			t.metrics.LLMTokensConsumed.WithLabelValues(provider, model, "completion").Add(ct)
		}
	case "llm_call_error":
		provider, _ := details["provider"].(string)
		model, _ := details["model"].(string)
		t.metrics.LLMCallCount.WithLabelValues(provider, model, "error").Inc()
		errType, _ := details["error_type"].(string)
		t.metrics.OrchestratorErrors.WithLabelValues(errType, component).Inc()
	case "tool_execution_success":
		toolName, _ := details["tool_name"].(string)
		t.metrics.ToolExecutionCount.WithLabelValues(toolName, "success").Inc()
		if d, ok := toFloat(details["duration_seconds"]); ok {
			t.metrics.ToolLatency.WithLabelValues(toolName).Observe(d)
		}
	case "tool_execution_error":
		toolName, _ := details["tool_name"].(string)
		t.metrics.ToolExecutionCount.WithLabelValues(toolName, "error").Inc()
		errType, _ := details["error_type"].(string)
		t.metrics.OrchestratorErrors.WithLabelValues(errType, component).Inc()
	case "retry_attempt_failed":
		reason, _ := details["error_type"].(string)
		t.metrics.RetryAttempts.WithLabelValues(component, reason).Inc()
	case "session_created":
		agentName, _ := details["agent_name"].(string)
		t.metrics.SessionCount.WithLabelValues(agentName, "created").Inc()
		t.metrics.ActiveSessions.Inc()
	case "session_completed":
		agentName, _ := details["agent_name"].(string)
		t.metrics.SessionCount.WithLabelValues(agentName, "completed").Inc()
		t.metrics.ActiveSessions.Dec()
		if d, ok := toFloat(details["duration_seconds"]); ok {
			t.metrics.SessionDuration.WithLabelValues(agentName).Observe(d)
		}
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// EventDetails is a convenience constructor avoiding a bare map literal at
// every call site.
func EventDetails(pairs ...any) map[string]any {
	out := make(map[string]any, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}
		out[key] = pairs[i+1]
	}
	return out
}

// MustString renders v with fmt's %v verb. For an error this is its full
// Error() text, which for a *models.AgentError includes the Cause.
func MustString(v any) string { return fmt.Sprintf("%v", v) }
