package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relaycore/agentgate/internal/metrics"
	"github.com/relaycore/agentgate/internal/models"
	"github.com/relaycore/agentgate/internal/orchestrator"
	"github.com/relaycore/agentgate/internal/provider"
	"github.com/relaycore/agentgate/internal/providerfactory"
	"github.com/relaycore/agentgate/internal/session"
	"github.com/relaycore/agentgate/internal/tools"
)

type fakeAdapter struct {
	reply models.Message
}

func (f *fakeAdapter) Name() models.ProviderTag { return models.ProviderOpenAI }
func (f *fakeAdapter) ModelName() string         { return "gpt-4" }
func (f *fakeAdapter) SupportedTools() bool      { return true }
func (f *fakeAdapter) Health(ctx context.Context) (bool, time.Duration, error) {
	return true, 5 * time.Millisecond, nil
}
func (f *fakeAdapter) ChatCompletion(ctx context.Context, cfg models.AgentConfig, history []models.Message, toolSchemas []models.ToolSchema) (provider.CompletionResult, error) {
	return provider.CompletionResult{Message: f.reply}, nil
}

// failingAdapter always returns a retryable provider error, so resilience.Call
// exhausts every attempt and the orchestrator finalizes a terminal failure
// response instead of a success.
type failingAdapter struct{ calls int }

func (f *failingAdapter) Name() models.ProviderTag { return models.ProviderOpenAI }
func (f *failingAdapter) ModelName() string         { return "gpt-4" }
func (f *failingAdapter) SupportedTools() bool      { return true }
func (f *failingAdapter) Health(ctx context.Context) (bool, time.Duration, error) {
	return false, 0, models.NewAgentError(models.ErrTransientNetwork, "down", nil)
}
func (f *failingAdapter) ChatCompletion(ctx context.Context, cfg models.AgentConfig, history []models.Message, toolSchemas []models.ToolSchema) (provider.CompletionResult, error) {
	f.calls++
	return provider.CompletionResult{}, models.NewAgentError(models.ErrTransientNetwork, "connection reset", nil)
}

func newFailingTestServer(t *testing.T) (*Server, *failingAdapter) {
	adapter := &failingAdapter{}
	factory := providerfactory.NewWithConstructors(nil, nil, map[models.ProviderTag]providerfactory.Constructor{
		models.ProviderOpenAI: func(key, model string) provider.Adapter { return adapter },
	})
	store := session.New()
	registry := tools.NewRegistry()
	collector := metrics.New("test")
	orch := orchestrator.New(factory, store, registry, collector, orchestrator.DefaultOptions())

	srv := New(Config{
		Host:         "127.0.0.1",
		Port:         0,
		Factory:      factory,
		Store:        store,
		Orchestrator: orch,
		Metrics:      collector,
		Logger:       slog.New(slog.NewTextHandler(discardWriter{}, nil)),
	})
	return srv, adapter
}

func newTestServer(t *testing.T, origins []string) (*Server, *session.Store) {
	adapter := &fakeAdapter{reply: models.Message{Role: models.RoleAssistant, Content: "hi there"}}
	factory := providerfactory.NewWithConstructors(nil, nil, map[models.ProviderTag]providerfactory.Constructor{
		models.ProviderOpenAI: func(key, model string) provider.Adapter { return adapter },
	})
	store := session.New()
	registry := tools.NewRegistry()
	collector := metrics.New("test")
	orch := orchestrator.New(factory, store, registry, collector, orchestrator.DefaultOptions())

	srv := New(Config{
		Host:         "127.0.0.1",
		Port:         0,
		CORSOrigins:  origins,
		Factory:      factory,
		Store:        store,
		Orchestrator: orch,
		Metrics:      collector,
		Logger:       slog.New(slog.NewTextHandler(discardWriter{}, nil)),
	})
	return srv, store
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var r *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(raw))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestCreateSessionAndOrchestrate(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/sessions", map[string]any{"agent_id": "a1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("create session status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.SessionID == "" {
		t.Fatalf("expected a non-empty session_id")
	}

	orchReq := models.OrchestrationRequest{
		SessionID:   created.SessionID,
		Message:     "hello",
		AgentConfig: models.AgentConfig{AgentID: "a1", Provider: models.ProviderOpenAI, Model: "gpt-4", Retry: models.DefaultRetryConfig()},
	}
	rec = doJSON(t, h, http.MethodPost, "/api/orchestrate", orchReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("orchestrate status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp models.OrchestrationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Content != "hi there" {
		t.Fatalf("got content %q", resp.Content)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/sessions/"+created.SessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session status = %d", rec.Code)
	}
}

func TestOrchestrateTerminalProviderFailureReturns502WithMetadata(t *testing.T) {
	srv, adapter := newFailingTestServer(t)
	h := srv.Handler()

	orchReq := models.OrchestrationRequest{
		Message:     "hello",
		AgentConfig: models.AgentConfig{AgentID: "a1", Provider: models.ProviderOpenAI, Model: "gpt-4", Retry: models.RetryConfig{MaxAttempts: 3, DelayBase: 0.1}},
	}
	rec := doJSON(t, h, http.MethodPost, "/api/orchestrate", orchReq)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("got status %d, want 502, body = %s", rec.Code, rec.Body.String())
	}
	var resp models.OrchestrationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Metadata.ErrorCode != models.ErrResilientLLMFailure {
		t.Fatalf("got error_code %q, want RESILIENT_LLM_FAILURE", resp.Metadata.ErrorCode)
	}
	if resp.Metadata.Attempts != 3 {
		t.Fatalf("got metadata.attempts=%d, want 3", resp.Metadata.Attempts)
	}
	if !resp.Metadata.RetriesHappened {
		t.Fatalf("expected metadata.retries_happened=true")
	}
	if resp.SessionID == "" {
		t.Fatalf("expected a session ID even on terminal failure")
	}
	if adapter.calls != 3 {
		t.Fatalf("got %d calls, want 3 (all attempts exhausted)", adapter.calls)
	}
}

func TestOrchestrateMalformedRequestReturns400(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/orchestrate", models.OrchestrationRequest{
		Message:     "",
		AgentConfig: models.AgentConfig{AgentID: "a1", Provider: models.ProviderOpenAI, Model: "gpt-4"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["error_code"] != string(models.ErrMalformedRequest) {
		t.Fatalf("got error_code %v, want %s", body["error_code"], models.ErrMalformedRequest)
	}
}

func TestGetUnknownSessionReturns404(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/sessions/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", rec.Code)
	}
}

func TestSessionHistoryPagination(t *testing.T) {
	srv, store := newTestServer(t, nil)
	h := srv.Handler()

	sess := store.Create("a1")
	for i := 0; i < 5; i++ {
		if err := store.AppendMessage(sess.SessionID, models.Message{Role: models.RoleUser, Content: "turn"}); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	rec := doJSON(t, h, http.MethodGet, "/api/sessions/"+sess.SessionID+"/history?limit=2&offset=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var body struct {
		Messages []models.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(body.Messages))
	}
}

func TestSessionMetricsSummarizesTrace(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/sessions", map[string]any{"agent_id": "a1"})
	var created struct {
		SessionID string `json:"session_id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	orchReq := models.OrchestrationRequest{
		SessionID:   created.SessionID,
		Message:     "hello",
		AgentConfig: models.AgentConfig{AgentID: "a1", Provider: models.ProviderOpenAI, Model: "gpt-4", Retry: models.DefaultRetryConfig()},
	}
	doJSON(t, h, http.MethodPost, "/api/orchestrate", orchReq)

	rec = doJSON(t, h, http.MethodGet, "/api/sessions/"+created.SessionID+"/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if llmCalls, ok := body["llm_calls"].(float64); !ok || llmCalls < 1 {
		t.Fatalf("got llm_calls %v, want >= 1", body["llm_calls"])
	}
}

func TestListProvidersAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/providers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("providers status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/providers/openai/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("provider health status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if healthy, _ := body["healthy"].(bool); !healthy {
		t.Fatalf("expected healthy=true, got %v", body["healthy"])
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
}

func TestCORSHeaderOnlySetForAllowedOrigin(t *testing.T) {
	srv, _ := newTestServer(t, []string{"https://allowed.example"})
	h := srv.Handler()

	r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	r.Header.Set("Origin", "https://allowed.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://allowed.example" {
		t.Fatalf("got Access-Control-Allow-Origin %q, want the allowed origin", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	r.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("got Access-Control-Allow-Origin %q, want empty for disallowed origin", got)
	}
}
