package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/relaycore/agentgate/internal/metrics"
	"github.com/relaycore/agentgate/internal/models"
	"github.com/relaycore/agentgate/internal/provider"
	"github.com/relaycore/agentgate/internal/session"
	"github.com/relaycore/agentgate/internal/tracer"
)

type stubAdapter struct {
	tag     models.ProviderTag
	model   string
	results []struct {
		res provider.CompletionResult
		err error
	}
	calls int
}

func (s *stubAdapter) Name() models.ProviderTag { return s.tag }
func (s *stubAdapter) ModelName() string         { return s.model }
func (s *stubAdapter) SupportedTools() bool      { return true }
func (s *stubAdapter) Health(ctx context.Context) (bool, time.Duration, error) {
	return true, 0, nil
}
func (s *stubAdapter) ChatCompletion(ctx context.Context, cfg models.AgentConfig, history []models.Message, tools []models.ToolSchema) (provider.CompletionResult, error) {
	r := s.results[s.calls]
	s.calls++
	return r.res, r.err
}

func newTestTracer(t *testing.T) *tracer.Tracer {
	store := session.New()
	sess := store.Create("agent-1")
	m := metrics.New("test")
	return tracer.New(sess.SessionID, store, m)
}

func TestCallRetriesThenSucceeds(t *testing.T) {
	adapter := &stubAdapter{tag: models.ProviderOpenAI, model: "gpt-4"}
	adapter.results = []struct {
		res provider.CompletionResult
		err error
	}{
		{err: models.NewAgentError(models.ErrTransientNetwork, "boom", nil)},
		{err: models.NewAgentError(models.ErrTransientNetwork, "boom", nil)},
		{res: provider.CompletionResult{Message: models.Message{Role: models.RoleAssistant, Content: "hi"}}},
	}
	cfg := models.AgentConfig{Retry: models.RetryConfig{MaxAttempts: 3, DelayBase: 0.01}}
	result, attempts, err := Call(context.Background(), adapter, cfg, nil, nil, newTestTracer(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Message.Content != "hi" {
		t.Fatalf("got content %q, want hi", result.Message.Content)
	}
	if adapter.calls != 3 {
		t.Fatalf("got %d calls, want 3", adapter.calls)
	}
	if attempts != 3 {
		t.Fatalf("got attempts=%d, want 3", attempts)
	}
}

func TestCallExhaustsRetries(t *testing.T) {
	adapter := &stubAdapter{tag: models.ProviderOpenAI, model: "gpt-4"}
	for i := 0; i < 3; i++ {
		adapter.results = append(adapter.results, struct {
			res provider.CompletionResult
			err error
		}{err: models.NewAgentError(models.ErrRateLimited, "limited", nil)})
	}
	cfg := models.AgentConfig{Retry: models.RetryConfig{MaxAttempts: 3, DelayBase: 0.01}}
	_, attempts, err := Call(context.Background(), adapter, cfg, nil, nil, newTestTracer(t))
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	ae := models.AsAgentError(err)
	if ae.Code != models.ErrResilientLLMFailure {
		t.Fatalf("got code %s, want RESILIENT_LLM_FAILURE", ae.Code)
	}
	if adapter.calls != 3 {
		t.Fatalf("got %d calls, want 3", adapter.calls)
	}
	if attempts != 3 {
		t.Fatalf("got attempts=%d, want 3", attempts)
	}
}

func TestCallNonRetryableFailsImmediately(t *testing.T) {
	adapter := &stubAdapter{tag: models.ProviderOpenAI, model: "gpt-4"}
	adapter.results = []struct {
		res provider.CompletionResult
		err error
	}{
		{err: models.NewAgentError(models.ErrInvalidAPIKey, "bad key", nil)},
	}
	cfg := models.AgentConfig{Retry: models.RetryConfig{MaxAttempts: 3, DelayBase: 0.01}}
	_, attempts, err := Call(context.Background(), adapter, cfg, nil, nil, newTestTracer(t))
	if err == nil {
		t.Fatalf("expected error")
	}
	if adapter.calls != 1 {
		t.Fatalf("got %d calls, want 1 (no retry for non-retryable error)", adapter.calls)
	}
	if attempts != 1 {
		t.Fatalf("got attempts=%d, want 1", attempts)
	}
}
