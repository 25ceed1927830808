// Package resilience implements the resilient caller: it wraps any
// provider.Adapter chat-completion call with retry, exponential backoff,
// full failure taxonomy, and trace/metric emission, and never lets a raw
// vendor error escape.
package resilience

import (
	"context"
	"time"

	"github.com/relaycore/agentgate/internal/backoff"
	"github.com/relaycore/agentgate/internal/models"
	"github.com/relaycore/agentgate/internal/provider"
	"github.com/relaycore/agentgate/internal/tracer"
)

// Call runs adapter.ChatCompletion under the retry policy in cfg.Retry,
// retrying only when the classified failure is retryable and attempts
// remain, with exponential backoff between attempts. The returned attempts
// count is how many times ChatCompletion was actually invoked, so callers
// can report it on both success and terminal failure.
func Call(ctx context.Context, adapter provider.Adapter, cfg models.AgentConfig, history []models.Message, tools []models.ToolSchema, t *tracer.Tracer) (provider.CompletionResult, int, error) {
	retry, _ := cfg.Retry.Validate()
	policy := backoff.BackoffPolicy{
		InitialMs: retry.DelayBase * 1000,
		MaxMs:     retry.DelayBase * 1000 * float64(uint64(1)<<uint(retry.MaxAttempts)),
		Factor:    2,
		Jitter:    0,
	}

	var lastErr error
	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		t.Log("resilience", "retry_attempt_start", tracer.EventDetails("attempt", attempt, "max_attempts", retry.MaxAttempts))

		if err := ctx.Err(); err != nil {
			return provider.CompletionResult{}, attempt, models.NewAgentError(models.ErrCanceled, "context canceled before call", err)
		}

		start := time.Now()
		result, err := adapter.ChatCompletion(ctx, cfg, history, tools)
		duration := time.Since(start)

		if err == nil {
			t.Log("resilience", "llm_call_success", tracer.EventDetails(
				"provider", string(adapter.Name()),
				"model", adapter.ModelName(),
				"duration_seconds", duration.Seconds(),
				"prompt_tokens", result.Usage.PromptTokens,
				"completion_tokens", result.Usage.CompletionTokens,
			))
			return result, attempt, nil
		}

		ae := models.AsAgentError(err)
		lastErr = ae

		if !ae.Code.Retryable() {
			t.Log("resilience", "llm_call_error", tracer.EventDetails(
				"provider", string(adapter.Name()), "model", adapter.ModelName(), "error_type", string(ae.Code)))
			return provider.CompletionResult{}, attempt, models.NewAgentError(models.ErrResilientLLMFailure, "non-retryable provider error", ae)
		}

		t.Log("resilience", "retry_attempt_failed", tracer.EventDetails("attempt", attempt, "error_type", string(ae.Code)))

		if attempt < retry.MaxAttempts {
			delay := backoff.ComputeBackoffWithRand(policy, attempt, 0)
			t.Log("resilience", "retry_backoff_delay", tracer.EventDetails(
				"delay_seconds", delay.Seconds(), "backoff_formula", "delay_base*2^(attempt-1)"))
			if err := backoff.SleepWithContext(ctx, delay); err != nil {
				return provider.CompletionResult{}, attempt, models.NewAgentError(models.ErrCanceled, "canceled during backoff sleep", err)
			}
		}
	}

	safeMsg := "the model provider is currently unavailable; please retry shortly"
	t.Log("resilience", "max_retries_exceeded", tracer.EventDetails(
		"max_attempts", retry.MaxAttempts, "final_error_type", string(models.AsAgentError(lastErr).Code), "safe_error_message", safeMsg))
	return provider.CompletionResult{}, retry.MaxAttempts, models.NewAgentError(models.ErrResilientLLMFailure, safeMsg, lastErr)
}
