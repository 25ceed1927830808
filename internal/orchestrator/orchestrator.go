// Package orchestrator implements the agent orchestrator: the bounded
// think/act state machine that interleaves model calls and tool executions
// until the model emits a terminal answer.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relaycore/agentgate/internal/metrics"
	"github.com/relaycore/agentgate/internal/models"
	"github.com/relaycore/agentgate/internal/provider"
	"github.com/relaycore/agentgate/internal/providerfactory"
	"github.com/relaycore/agentgate/internal/resilience"
	"github.com/relaycore/agentgate/internal/session"
	"github.com/relaycore/agentgate/internal/summarizer"
	"github.com/relaycore/agentgate/internal/tools"
	"github.com/relaycore/agentgate/internal/tracer"
)

// Phase names the orchestrator's state machine states.
type Phase string

const (
	PhaseSummarizing    Phase = "Summarizing"
	PhaseCallingModel   Phase = "CallingModel"
	PhaseExecutingTools Phase = "ExecutingTools"
	PhaseFinalizing     Phase = "Finalizing"
)

// Options configures orchestrator-wide defaults.
type Options struct {
	MaxIterations    int
	ToolTimeout      time.Duration
	RequestTimeout   time.Duration
	SummarizerConfig summarizer.Config
	// SummarizerAdapter overrides the model used for summarization calls.
	// Nil means: summarize with the same adapter/model the running agent is
	// configured with.
	SummarizerAdapter provider.Adapter
}

// DefaultOptions returns the orchestrator's baseline configuration.
func DefaultOptions() Options {
	return Options{
		MaxIterations:    10,
		ToolTimeout:      30 * time.Second,
		RequestTimeout:   300 * time.Second,
		SummarizerConfig: summarizer.DefaultConfig(),
	}
}

// Orchestrator wires the provider factory, session store, summarizer,
// metrics collector, tracer, resilient caller, and tool registry into the
// single request-handling entry point.
type Orchestrator struct {
	factory *providerfactory.Factory
	store   *session.Store
	tools   *tools.Registry
	metrics *metrics.Collector
	opts    Options
}

// New constructs an Orchestrator.
func New(factory *providerfactory.Factory, store *session.Store, registry *tools.Registry, m *metrics.Collector, opts Options) *Orchestrator {
	return &Orchestrator{factory: factory, store: store, tools: registry, metrics: m, opts: opts}
}

// adapterSummaryProvider adapts a provider.Adapter into a
// summarizer.SummaryProvider by issuing a single resilient chat completion
// whose sole user turn is the summarization prompt.
type adapterSummaryProvider struct {
	adapter provider.Adapter
	cfg     models.AgentConfig
	tracer  *tracer.Tracer
}

func (a *adapterSummaryProvider) Summarize(ctx context.Context, prompt string) (string, error) {
	result, _, err := resilience.Call(ctx, a.adapter, a.cfg, []models.Message{{Role: models.RoleUser, Content: prompt}}, nil, a.tracer)
	if err != nil {
		return "", err
	}
	return result.Message.Content, nil
}

// Run executes one orchestration request end-to-end.
func (o *Orchestrator) Run(ctx context.Context, req models.OrchestrationRequest) (models.OrchestrationResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()

	if err := o.validateRequest(req); err != nil {
		return models.OrchestrationResponse{}, err
	}

	sess, isNew := o.resolveSession(req)
	t := tracer.New(sess.SessionID, o.store, o.metrics)
	if isNew {
		t.Log("orchestrator", "session_created", tracer.EventDetails("agent_name", req.AgentConfig.AgentID))
	}
	t.Log("orchestrator", "orchestration_start", tracer.EventDetails("agent_name", req.AgentConfig.AgentID))

	if err := o.store.AppendMessage(sess.SessionID, models.Message{Role: models.RoleUser, Content: req.Message}); err != nil {
		return models.OrchestrationResponse{}, models.NewAgentError(models.ErrMalformedRequest, "could not append user message", err)
	}

	adapter, err := o.factory.Get(req.AgentConfig.Provider, req.AgentConfig.Model)
	if err != nil {
		return models.OrchestrationResponse{}, err
	}
	toolSchemas := o.tools.Schemas(req.AgentConfig.EnabledTools)

	runStart := time.Now()
	meta := models.OrchestrationResponseMetadata{}
	var finalContent string
	var pendingToolCalls []models.ToolCall
	var iterationCapped bool
	phase := PhaseSummarizing

	for iteration := 1; ; {
		if ctx.Err() != nil {
			return models.OrchestrationResponse{}, models.NewAgentError(models.ErrRequestTimeout, "request exceeded end-to-end timeout", ctx.Err())
		}

		switch phase {
		case PhaseSummarizing:
			o.maybeSummarize(ctx, sess.SessionID, req.AgentConfig, adapter, t, &meta)
			phase = PhaseCallingModel

		case PhaseCallingModel:
			sess, err = o.store.Get(sess.SessionID)
			if err != nil {
				return models.OrchestrationResponse{}, models.NewAgentError(models.ErrResilientLLMFailure, "session disappeared mid-run", err)
			}
			history := historyWithSummary(sess)
			result, attempts, callErr := resilience.Call(ctx, adapter, req.AgentConfig, history, toolSchemas, t)
			meta.Attempts = attempts
			meta.RetriesHappened = attempts > 1
			if callErr != nil {
				ae := models.AsAgentError(callErr)
				meta.ErrorCode = ae.Code
				finalContent = ae.Message
				phase = PhaseFinalizing
				continue
			}
			meta.PromptTokens += result.Usage.PromptTokens
			meta.CompletionTokens += result.Usage.CompletionTokens
			if err := o.store.AppendMessage(sess.SessionID, result.Message); err != nil {
				return models.OrchestrationResponse{}, models.NewAgentError(models.ErrResilientLLMFailure, "could not append assistant message", err)
			}
			switch {
			case len(result.Message.ToolCalls) > 0 && iteration < o.opts.MaxIterations:
				pendingToolCalls = result.Message.ToolCalls
				phase = PhaseExecutingTools
			case len(result.Message.ToolCalls) > 0:
				// Iteration cap reached with tool calls still pending.
				finalContent = result.Message.Content
				iterationCapped = true
				phase = PhaseFinalizing
			default:
				finalContent = result.Message.Content
				phase = PhaseFinalizing
			}

		case PhaseExecutingTools:
			o.executeTools(ctx, sess.SessionID, pendingToolCalls, t, &meta)
			pendingToolCalls = nil
			iteration++
			phase = PhaseCallingModel

		case PhaseFinalizing:
			meta.IterationsUsed = iteration
			if iterationCapped || (iteration >= o.opts.MaxIterations && len(pendingToolCalls) > 0) {
				meta.ErrorCode = models.ErrMaxIterationsReached
				if finalContent == "" {
					finalContent = "I was unable to finish within the allotted number of steps. Please try again or simplify the request."
				}
			}
			t.Log("orchestrator", "final_response", tracer.EventDetails(
				"response_length", len(finalContent), "total_iterations", iteration, "summarization_fired", meta.SummarizationFired))
			_ = o.store.MarkCompleted(sess.SessionID)
			t.Log("orchestrator", "session_completed", tracer.EventDetails(
				"agent_name", req.AgentConfig.AgentID, "duration_seconds", time.Since(runStart).Seconds()))
			return models.OrchestrationResponse{
				Content:   finalContent,
				SessionID: sess.SessionID,
				Provider:  adapter.Name(),
				Model:     adapter.ModelName(),
				Duration:  time.Since(runStart),
				Metadata:  meta,
			}, nil
		}
	}
}

func (o *Orchestrator) maybeSummarize(ctx context.Context, sessionID string, cfg models.AgentConfig, adapter provider.Adapter, t *tracer.Tracer, meta *models.OrchestrationResponseMetadata) {
	sess, err := o.store.Get(sessionID)
	if err != nil {
		return
	}
	summaryAdapter := adapter
	summaryCfg := cfg
	if o.opts.SummarizerAdapter != nil {
		summaryAdapter = o.opts.SummarizerAdapter
		summaryCfg.Provider = summaryAdapter.Name()
		summaryCfg.Model = summaryAdapter.ModelName()
	}
	sp := &adapterSummaryProvider{adapter: summaryAdapter, cfg: summaryCfg, tracer: t}
	s := summarizer.New(sp, o.opts.SummarizerConfig)
	if !s.ShouldSummarize(len(sess.Messages)) {
		return
	}
	t.Log("summarizer", "summarization_start", tracer.EventDetails("before_count", len(sess.Messages)))
	start := time.Now()
	result, err := s.Summarize(ctx, sess.Summary, sess.Messages)
	if err != nil {
		t.Log("summarizer", "summarization_error", tracer.EventDetails("error", err.Error()))
		return
	}
	if result.Summary == "" {
		return
	}
	if err := o.store.ReplaceSummary(sessionID, result.Summary, result.RetainedHistory, result.CoveredCount); err != nil {
		t.Log("summarizer", "summarization_error", tracer.EventDetails("error", err.Error()))
		return
	}
	meta.SummarizationFired = true
	t.Log("summarizer", "summarization_success", tracer.EventDetails(
		"before_count", len(sess.Messages), "after_count", len(result.RetainedHistory), "elapsed_seconds", time.Since(start).Seconds()))
}

func (o *Orchestrator) executeTools(ctx context.Context, sessionID string, calls []models.ToolCall, t *tracer.Tracer, meta *models.OrchestrationResponseMetadata) {
	for _, call := range calls {
		meta.ToolsInvoked = append(meta.ToolsInvoked, call.Name)

		_, executor, ok := o.tools.Get(call.Name)
		if !ok {
			o.appendToolError(sessionID, call.ID, "unknown_tool", call.Name, t, models.ErrUnknownTool)
			continue
		}
		if err := o.tools.ValidateArguments(call.Name, call.Arguments); err != nil {
			o.appendToolError(sessionID, call.ID, "invalid_arguments", call.Name, t, models.ErrInvalidArguments)
			continue
		}

		toolCtx, cancel := context.WithTimeout(ctx, o.opts.ToolTimeout)
		start := time.Now()
		resultCh := make(chan struct {
			value any
			err   error
		}, 1)
		go func() {
			v, err := executor(toolCtx, call.Arguments)
			resultCh <- struct {
				value any
				err   error
			}{v, err}
		}()

		select {
		case <-toolCtx.Done():
			cancel()
			o.appendToolError(sessionID, call.ID, "tool_timeout", call.Name, t, models.ErrToolTimeout)
		case r := <-resultCh:
			cancel()
			duration := time.Since(start)
			if r.err != nil {
				o.appendToolError(sessionID, call.ID, "execution_error", call.Name, t, models.AsAgentError(r.err).Code)
				continue
			}
			serialized, _ := json.Marshal(r.value)
			_ = o.store.AppendMessage(sessionID, models.Message{
				Role:       models.RoleTool,
				Content:    string(serialized),
				ToolCallID: call.ID,
			})
			t.Log("orchestrator", "tool_execution_success", tracer.EventDetails(
				"tool_name", call.Name, "duration_seconds", duration.Seconds()))
		}
	}
}

func (o *Orchestrator) appendToolError(sessionID, callID, kind, toolName string, t *tracer.Tracer, code models.ErrorCode) {
	body, _ := json.Marshal(map[string]any{"error": kind, "name": toolName})
	_ = o.store.AppendMessage(sessionID, models.Message{
		Role:       models.RoleTool,
		Content:    string(body),
		ToolCallID: callID,
	})
	t.Log("orchestrator", "tool_execution_error", tracer.EventDetails("tool_name", toolName, "error_type", string(code)))
}

func (o *Orchestrator) resolveSession(req models.OrchestrationRequest) (*models.Session, bool) {
	if req.SessionID != "" {
		if sess, err := o.store.Get(req.SessionID); err == nil {
			return sess, false
		}
	}
	return o.store.Create(req.AgentConfig.AgentID), true
}

func (o *Orchestrator) validateRequest(req models.OrchestrationRequest) error {
	if req.Message == "" {
		return models.NewAgentError(models.ErrMalformedRequest, "message must not be empty", nil)
	}
	if len(req.AgentConfig.EnabledTools) > 0 {
		adapter, err := o.factory.Get(req.AgentConfig.Provider, req.AgentConfig.Model)
		if err != nil {
			return err
		}
		if !adapter.SupportedTools() {
			return models.NewAgentError(models.ErrMalformedRequest, fmt.Sprintf("provider %q does not support tool calling", req.AgentConfig.Provider), nil)
		}
	}
	return nil
}

func historyWithSummary(sess *models.Session) []models.Message {
	if sess.Summary == "" {
		return sess.Messages
	}
	out := make([]models.Message, 0, len(sess.Messages)+1)
	out = append(out, models.Message{Role: models.RoleSystem, Content: "Summary of earlier conversation: " + sess.Summary})
	out = append(out, sess.Messages...)
	return out
}
