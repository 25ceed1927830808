package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/relaycore/agentgate/internal/keys"
	"github.com/relaycore/agentgate/internal/models"
)

// AnthropicAdapter wraps the Anthropic Messages API.
type AnthropicAdapter struct {
	client anthropic.Client
	model  string
	err    error
}

func NewAnthropicAdapter(apiKey, model string) *AnthropicAdapter {
	validated, err := keys.Validate(models.ProviderAnthropic, apiKey)
	if err != nil {
		return &AnthropicAdapter{model: model, err: err}
	}
	return &AnthropicAdapter{client: anthropic.NewClient(option.WithAPIKey(validated)), model: model}
}

func (a *AnthropicAdapter) Name() models.ProviderTag { return models.ProviderAnthropic }
func (a *AnthropicAdapter) ModelName() string         { return a.model }
func (a *AnthropicAdapter) SupportedTools() bool      { return true }

func (a *AnthropicAdapter) ChatCompletion(ctx context.Context, cfg models.AgentConfig, history []models.Message, tools []models.ToolSchema) (CompletionResult, error) {
	if a.err != nil {
		return CompletionResult{}, a.err
	}
	msgs, systemText, err := convertMessagesToAnthropic(history)
	if err != nil {
		return CompletionResult{}, models.NewAgentError(models.ErrMalformedRequest, "could not convert history", err)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelOrDefault(cfg.Model, a.model)),
		Messages:  msgs,
		MaxTokens: int64(maxTokens),
	}
	// Anthropic has no role=system turn in its message list; fold any system
	// messages carried in history (e.g. the summarizer's collapsed-context
	// injection) in ahead of the caller's own system prompt.
	if systemText != "" || cfg.SystemPrompt != "" {
		var blocks []anthropic.TextBlockParam
		if systemText != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: systemText})
		}
		if cfg.SystemPrompt != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: cfg.SystemPrompt})
		}
		params.System = blocks
	}
	if len(tools) > 0 {
		params.Tools = convertToolsToAnthropic(tools)
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return CompletionResult{}, WrapError(statusFromAnthropicErr(err), err)
	}

	msg := models.Message{Role: models.RoleAssistant}
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			msg.Content += variant.Text
		case anthropic.ToolUseBlock:
			var args map[string]any
			_ = json.Unmarshal(variant.Input, &args)
			msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{ID: variant.ID, Name: variant.Name, Arguments: args})
		}
	}
	return CompletionResult{
		Message: msg,
		Usage:   Usage{PromptTokens: int(resp.Usage.InputTokens), CompletionTokens: int(resp.Usage.OutputTokens)},
	}, nil
}

func (a *AnthropicAdapter) Health(ctx context.Context) (bool, time.Duration, error) {
	if a.err != nil {
		return false, 0, a.err
	}
	start := time.Now()
	_, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("ping"))},
	})
	latency := time.Since(start)
	if err != nil {
		return false, latency, WrapError(statusFromAnthropicErr(err), err)
	}
	return true, latency, nil
}

// convertMessagesToAnthropic builds the Messages-API turn list and separately
// collects any role=system entries, since Anthropic carries system content in
// a top-level field rather than as a message in the list.
func convertMessagesToAnthropic(history []models.Message) ([]anthropic.MessageParam, string, error) {
	var out []anthropic.MessageParam
	var systemParts []string
	for _, m := range history {
		switch m.Role {
		case models.RoleSystem:
			if m.Content != "" {
				systemParts = append(systemParts, m.Content)
			}
		case models.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleTool:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		case models.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return out, strings.Join(systemParts, "\n\n"), nil
}

func convertToolsToAnthropic(tools []models.ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := t.Parameters["properties"]; ok {
			schema.Properties = props
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		toolParam.OfTool.Description = anthropic.String(t.Description)
		out = append(out, toolParam)
	}
	return out
}

func statusFromAnthropicErr(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
