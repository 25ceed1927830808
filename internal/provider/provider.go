// Package provider implements the uniform adapter contract that every
// LLM backend satisfies: chat completion, tool schema translation, key
// validation, and health checking.
package provider

import (
	"context"
	"time"

	"github.com/relaycore/agentgate/internal/models"
)

// Usage reports token accounting for one completion, when the vendor
// supplies it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResult is what chat_completion returns: the assistant's reply
// plus any tool calls it requested, plus usage.
type CompletionResult struct {
	Message models.Message
	Usage   Usage
}

// Adapter is the capability set every backend must satisfy.
// Implementations must never retry internally and must never mutate
// history.
type Adapter interface {
	// Name returns the adapter's provider tag.
	Name() models.ProviderTag
	// ModelName returns the model this adapter instance targets.
	ModelName() string
	// SupportedTools returns true if this adapter can surface tool schemas
	// to its vendor at all. Adapters without tool support return false.
	SupportedTools() bool
	// ChatCompletion translates history into the vendor wire format,
	// executes one request, and translates the reply back. It raises a
	// categorized *models.AgentError on any failure.
	ChatCompletion(ctx context.Context, cfg models.AgentConfig, history []models.Message, tools []models.ToolSchema) (CompletionResult, error)
	// Health performs a minimal vendor round-trip and reports latency.
	Health(ctx context.Context) (ok bool, latency time.Duration, err error)
}
