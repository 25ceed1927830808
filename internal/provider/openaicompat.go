package provider

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/relaycore/agentgate/internal/keys"
	"github.com/relaycore/agentgate/internal/models"
)

// compatBaseURLs holds the OpenAI-wire-compatible endpoint for each
// non-native provider tag.
var compatBaseURLs = map[models.ProviderTag]string{
	models.ProviderMistral:  "https://api.mistral.ai/v1",
	models.ProviderGrok:     "https://api.x.ai/v1",
	models.ProviderQwen:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
	models.ProviderDeepseek: "https://api.deepseek.com/v1",
	models.ProviderKimi:     "https://api.moonshot.ai/v1",
}

// OpenAICompatAdapter serves any backend that speaks the OpenAI chat
// completion wire format behind a different base URL: grok, qwen, deepseek,
// kimi, and mistral. This keeps five of the eight required provider tags off
// hand-rolled HTTP code.
type OpenAICompatAdapter struct {
	tag    models.ProviderTag
	client *openai.Client
	model  string
	err    error
}

// NewOpenAICompatAdapter constructs an adapter for tag, pointing the OpenAI
// SDK's client at tag's vendor base URL.
func NewOpenAICompatAdapter(tag models.ProviderTag, apiKey, model string) *OpenAICompatAdapter {
	validated, err := keys.Validate(tag, apiKey)
	if err != nil {
		return &OpenAICompatAdapter{tag: tag, model: model, err: err}
	}
	baseURL, ok := compatBaseURLs[tag]
	if !ok {
		return &OpenAICompatAdapter{tag: tag, model: model, err: models.NewAgentError(models.ErrUnknownProvider, string(tag), nil)}
	}
	cfg := openai.DefaultConfig(validated)
	cfg.BaseURL = baseURL
	return &OpenAICompatAdapter{tag: tag, client: openai.NewClientWithConfig(cfg), model: model}
}

func (a *OpenAICompatAdapter) Name() models.ProviderTag { return a.tag }
func (a *OpenAICompatAdapter) ModelName() string         { return a.model }
func (a *OpenAICompatAdapter) SupportedTools() bool      { return true }

func (a *OpenAICompatAdapter) ChatCompletion(ctx context.Context, cfg models.AgentConfig, history []models.Message, tools []models.ToolSchema) (CompletionResult, error) {
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
		args := decodeArguments(tc.Function.Arguments)
		msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return CompletionResult{
		Message: msg,
		Usage:   Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens},
	}, nil
}

func (a *OpenAICompatAdapter) Health(ctx context.Context) (bool, time.Duration, error) {
	if a.err != nil {
		return false, 0, a.err
	}
	start := time.Now()
	_, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     a.model,
		Messages:  []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	latency := time.Since(start)
	if err != nil {
		return false, latency, WrapError(statusFromOpenAIErr(err), err)
	}
	return true, latency, nil
}
