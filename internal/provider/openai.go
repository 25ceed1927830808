package provider

import (
	"context"
	"encoding/json"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/relaycore/agentgate/internal/keys"
	"github.com/relaycore/agentgate/internal/models"
)

// OpenAIAdapter wraps the OpenAI chat completion API.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
	err    error
}

// NewOpenAIAdapter constructs an adapter for the given model. An empty or
// invalid key yields an adapter that fails ChatCompletion with the
// appropriate categorized error rather than panicking.
func NewOpenAIAdapter(apiKey, model string) *OpenAIAdapter {
	validated, err := keys.Validate(models.ProviderOpenAI, apiKey)
	if err != nil {
		return &OpenAIAdapter{model: model, err: err}
	}
	return &OpenAIAdapter{client: openai.NewClient(validated), model: model}
}

func (a *OpenAIAdapter) Name() models.ProviderTag { return models.ProviderOpenAI }
func (a *OpenAIAdapter) ModelName() string         { return a.model }
func (a *OpenAIAdapter) SupportedTools() bool      { return true }

func (a *OpenAIAdapter) ChatCompletion(ctx context.Context, cfg models.AgentConfig, history []models.Message, tools []models.ToolSchema) (CompletionResult, error) {
	if a.err != nil {
		return CompletionResult{}, a.err
	}
	req := openai.ChatCompletionRequest{
		Model:       modelOrDefault(cfg.Model, a.model),
		Messages:    convertMessagesToOpenAI(cfg.SystemPrompt, history),
		Temperature: float32(cfg.Temperature),
		MaxTokens:   cfg.MaxTokens,
		Tools:       convertToolsToOpenAI(tools),
	}
	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return CompletionResult{}, WrapError(statusFromOpenAIErr(err), err)
	}
	if len(resp.Choices) == 0 {
		return CompletionResult{}, models.NewAgentError(models.ErrProvider4xxNonRateLimit, "provider returned no choices", nil)
	}
	choice := resp.Choices[0]
	msg := models.Message{Role: models.RoleAssistant, Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: decodeArguments(tc.Function.Arguments)})
	}
	return CompletionResult{
		Message: msg,
		Usage:   Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens},
	}, nil
}

func (a *OpenAIAdapter) Health(ctx context.Context) (bool, time.Duration, error) {
	if a.err != nil {
		return false, 0, a.err
	}
	start := time.Now()
	_, err := a.client.ListModels(ctx)
	latency := time.Since(start)
	if err != nil {
		return false, latency, WrapError(statusFromOpenAIErr(err), err)
	}
	return true, latency, nil
}

func modelOrDefault(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}

func convertMessagesToOpenAI(systemPrompt string, history []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		switch m.Role {
		case models.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		case models.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, msg)
		default:
			out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
		}
	}
	return out
}

func convertToolsToOpenAI(tools []models.ToolSchema) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

func statusFromOpenAIErr(err error) int {
	if apiErr, ok := err.(*openai.APIError); ok {
		return apiErr.HTTPStatusCode
	}
	return 0
}

func decodeArguments(raw string) map[string]any {
	var args map[string]any
	_ = json.Unmarshal([]byte(raw), &args)
	return args
}
