// Package models defines the immutable value types shared across agentgate:
// messages, tool calls, agent configuration, sessions, and trace steps.
package models

import "time"

// Role identifies who produced a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-issued request to invoke a registered tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the reply to a ToolCall, carried inside a role=tool Message.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

// Message is one turn of conversation history. Immutable after it is
// appended to a Session.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ToolSchema describes a registered tool's name, purpose, and JSON-Schema
// shaped parameter descriptor.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// RetryConfig controls the resilient caller's retry/backoff behavior.
type RetryConfig struct {
	MaxAttempts int     `json:"max_attempts"`
	DelayBase   float64 `json:"delay_base"`
}

// DefaultRetryConfig returns the baseline retry policy: 3 attempts, 1.0s base.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, DelayBase: 1.0}
}

// Validate clamps out-of-range fields into the accepted bounds and reports
// whether the config was already valid.
func (r RetryConfig) Validate() (RetryConfig, bool) {
	ok := true
	if r.MaxAttempts < 1 || r.MaxAttempts > 10 {
		ok = false
		if r.MaxAttempts < 1 {
			r.MaxAttempts = 1
		}
		if r.MaxAttempts > 10 {
			r.MaxAttempts = 10
		}
	}
	if r.DelayBase < 0.1 || r.DelayBase > 60 {
		ok = false
		if r.DelayBase < 0.1 {
			r.DelayBase = 0.1
		}
		if r.DelayBase > 60 {
			r.DelayBase = 60
		}
	}
	return r, ok
}

// ProviderTag enumerates the supported backend tags.
type ProviderTag string

const (
	ProviderOpenAI    ProviderTag = "openai"
	ProviderAnthropic ProviderTag = "anthropic"
	ProviderGemini    ProviderTag = "gemini"
	ProviderMistral   ProviderTag = "mistral"
	ProviderGrok      ProviderTag = "grok"
	ProviderQwen      ProviderTag = "qwen"
	ProviderDeepseek  ProviderTag = "deepseek"
	ProviderKimi      ProviderTag = "kimi"
)

// AgentConfig is the caller-supplied configuration for one orchestration run.
type AgentConfig struct {
	AgentID       string      `json:"agent_id"`
	Provider      ProviderTag `json:"provider"`
	Model         string      `json:"model"`
	SystemPrompt  string      `json:"system_prompt,omitempty"`
	Temperature   float64     `json:"temperature"`
	MaxTokens     int         `json:"max_tokens"`
	EnabledTools  []string    `json:"tools"`
	Retry         RetryConfig `json:"retry"`
}

// TraceStep is one structured event recorded during processing of a request.
type TraceStep struct {
	Sequence  int64          `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
	Component string         `json:"component"`
	Event     string         `json:"event"`
	Details   map[string]any `json:"details,omitempty"`
}

// Session is server-side conversation state: history, optional summary, and
// a trace of everything that happened while processing requests against it.
type Session struct {
	SessionID    string      `json:"session_id"`
	AgentID      string      `json:"agent_id"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Messages     []Message   `json:"messages"`
	Summary      string      `json:"summary,omitempty"`
	SummaryCount int         `json:"summary_covered_count"`
	Trace        []TraceStep `json:"trace,omitempty"`
	MessageCount int         `json:"message_count"`
	Completed    bool        `json:"completed"`
}

// Clone returns a copy whose Messages, ToolCalls and Trace slices are
// independent of s, safe to hand to callers outside the store's lock.
// ToolCall.Arguments and TraceStep.Details maps are shared with s, not copied.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	for i, m := range cp.Messages {
		cp.Messages[i].ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	cp.Trace = append([]TraceStep(nil), s.Trace...)
	return &cp
}

// OrchestrationRequest is the input to one orchestrator run.
type OrchestrationRequest struct {
	Message     string      `json:"message"`
	AgentConfig AgentConfig `json:"agent_config"`
	SessionID   string      `json:"session_id,omitempty"`
}

// OrchestrationResponseMetadata carries the non-content facts about a run.
type OrchestrationResponseMetadata struct {
	PromptTokens       int       `json:"prompt_tokens,omitempty"`
	CompletionTokens   int       `json:"completion_tokens,omitempty"`
	SummarizationFired bool      `json:"summarization_fired"`
	RetriesHappened    bool      `json:"retries_happened"`
	Attempts           int       `json:"attempts,omitempty"`
	IterationsUsed     int       `json:"iterations_used"`
	ToolsInvoked       []string  `json:"tools_invoked,omitempty"`
	ErrorCode          ErrorCode `json:"error_code,omitempty"`
}

// OrchestrationResponse is the result of one orchestrator run.
type OrchestrationResponse struct {
	Content   string                        `json:"content"`
	SessionID string                        `json:"session_id"`
	Provider  ProviderTag                   `json:"provider"`
	Model     string                        `json:"model"`
	Duration  time.Duration                 `json:"duration_ns"`
	Metadata  OrchestrationResponseMetadata `json:"metadata"`
}
