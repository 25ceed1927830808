package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/relaycore/agentgate/internal/models"
	"github.com/relaycore/agentgate/internal/session"
)

type createSessionRequest struct {
	AgentID  string         `json:"agent_id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAgentError(w, models.NewAgentError(models.ErrMalformedRequest, "request body must be valid JSON", err))
		return
	}
	sess := s.store.Create(req.AgentID)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.SessionID,
		"created_at": sess.CreatedAt,
	})
}

func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	var req models.OrchestrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAgentError(w, models.NewAgentError(models.ErrMalformedRequest, "request body must be valid JSON", err))
		return
	}
	resp, err := s.orchestrator.Run(r.Context(), req)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	status := http.StatusOK
	if resp.Metadata.ErrorCode != "" {
		status = models.StatusForCode(resp.Metadata.ErrorCode)
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(pathID(r, "id"))
	if err != nil {
		writeNotFound(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(pathID(r, "id"))
	if err != nil {
		writeNotFound(w, err)
		return
	}
	limit := queryInt(r, "limit", len(sess.Messages))
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	if offset > len(sess.Messages) {
		offset = len(sess.Messages)
	}
	end := offset + limit
	if end > len(sess.Messages) || limit < 0 {
		end = len(sess.Messages)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":  sess.Summary,
		"messages": sess.Messages[offset:end],
	})
}

func (s *Server) handleSessionMetrics(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(pathID(r, "id"))
	if err != nil {
		writeNotFound(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarizeSessionTrace(sess))
}

func summarizeSessionTrace(sess *models.Session) map[string]any {
	llmCalls, toolCalls, retries := 0, 0, 0
	providersUsed := map[string]bool{}
	for _, step := range sess.Trace {
		switch step.Event {
		case "llm_call_success", "llm_call_error":
			llmCalls++
			if p, ok := step.Details["provider"]; ok {
				providersUsed[toStringValue(p)] = true
			}
		case "tool_execution_success", "tool_execution_error":
			toolCalls++
		case "retry_attempt_failed":
			retries++
		}
	}
	providers := make([]string, 0, len(providersUsed))
	for p := range providersUsed {
		providers = append(providers, p)
	}
	return map[string]any{
		"session_id":     sess.SessionID,
		"message_count":  sess.MessageCount,
		"llm_calls":      llmCalls,
		"tool_calls":     toolCalls,
		"retry_attempts": retries,
		"providers_used": providers,
		"completed":      sess.Completed,
	}
}

func toStringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.factory.ListProviders())
}

func (s *Server) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	tag := models.ProviderTag(pathID(r, "tag"))
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	ok, latency, err := s.factory.Health(ctx, tag, "")
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider":        tag,
		"healthy":         ok,
		"latency_seconds": latency.Seconds(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Degraded provider health never fails the core health check; callers
	// inspect the per-provider list for specifics.
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"providers": s.factory.ListProviders(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	body, err := s.metrics.Render()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/openmetrics-text; version=1.0.0; charset=utf-8")
	_, _ = w.Write(body)
}

func writeNotFound(w http.ResponseWriter, err error) {
	if _, ok := err.(*session.ErrNotFound); ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error_code": "SESSION_NOT_FOUND",
			"message":    "unknown session_id",
		})
		return
	}
	writeAgentError(w, err)
}
