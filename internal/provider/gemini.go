package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/relaycore/agentgate/internal/keys"
	"github.com/relaycore/agentgate/internal/models"
)

// GeminiAdapter wraps the Google genai GenerateContent API.
type GeminiAdapter struct {
	client *genai.Client
	model  string
	err    error
}

func NewGeminiAdapter(apiKey, model string) *GeminiAdapter {
	validated, err := keys.Validate(models.ProviderGemini, apiKey)
	if err != nil {
		return &GeminiAdapter{model: model, err: err}
	}
	client, cerr := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  validated,
		Backend: genai.BackendGeminiAPI,
	})
	if cerr != nil {
		return &GeminiAdapter{model: model, err: models.NewAgentError(models.ErrInvalidAPIKey, "could not construct gemini client", cerr)}
	}
	return &GeminiAdapter{client: client, model: model}
}

func (a *GeminiAdapter) Name() models.ProviderTag { return models.ProviderGemini }
func (a *GeminiAdapter) ModelName() string         { return a.model }
func (a *GeminiAdapter) SupportedTools() bool      { return true }

func (a *GeminiAdapter) ChatCompletion(ctx context.Context, cfg models.AgentConfig, history []models.Message, tools []models.ToolSchema) (CompletionResult, error) {
	if a.err != nil {
		return CompletionResult{}, a.err
	}
	contents := convertMessagesToGemini(history)
	config := &genai.GenerateContentConfig{}
	if cfg.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemPrompt}}}
	}
	if cfg.MaxTokens > 0 {
		config.MaxOutputTokens = int32(cfg.MaxTokens)
	}
	if len(tools) > 0 {
		config.Tools = convertToolsToGemini(tools)
	}

	resp, err := a.client.Models.GenerateContent(ctx, modelOrDefault(cfg.Model, a.model), contents, config)
	if err != nil {
		return CompletionResult{}, WrapError(0, err)
	}
	msg := models.Message{Role: models.RoleAssistant}
	var promptTokens, completionTokens int
	if resp.UsageMetadata != nil {
		promptTokens = int(resp.UsageMetadata.PromptTokenCount)
		completionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				msg.Content += part.Text
			}
			if part.FunctionCall != nil {
				argsJSON, _ := json.Marshal(part.FunctionCall.Args)
				var args map[string]any
				_ = json.Unmarshal(argsJSON, &args)
				msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{
					ID:        part.FunctionCall.Name,
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
			}
		}
	}
	return CompletionResult{Message: msg, Usage: Usage{PromptTokens: promptTokens, CompletionTokens: completionTokens}}, nil
}

func (a *GeminiAdapter) Health(ctx context.Context) (bool, time.Duration, error) {
	if a.err != nil {
		return false, 0, a.err
	}
	start := time.Now()
	_, err := a.client.Models.GenerateContent(ctx, a.model, []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{{Text: "ping"}}},
	}, &genai.GenerateContentConfig{MaxOutputTokens: 1})
	latency := time.Since(start)
	if err != nil {
		return false, latency, WrapError(0, err)
	}
	return true, latency, nil
}

func convertMessagesToGemini(history []models.Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range history {
		content := &genai.Content{}
		switch m.Role {
		case models.RoleUser, models.RoleTool:
			content.Role = genai.RoleUser
		case models.RoleAssistant:
			content.Role = genai.RoleModel
		default:
			continue
		}
		if m.Role == models.RoleTool {
			var result any
			if err := json.Unmarshal([]byte(m.Content), &result); err != nil {
				result = m.Content
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{Name: m.ToolCallID, Response: map[string]any{"result": result}},
			})
			out = append(out, content)
			continue
		}
		if m.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: tc.Arguments}})
		}
		out = append(out, content)
	}
	return out
}

func convertToolsToGemini(tools []models.ToolSchema) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGeminiSchema(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toGeminiSchema converts a JSON-Schema-shaped map to Gemini's Schema type.
func toGeminiSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}
	schema := &genai.Schema{}
	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toGeminiSchema(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = toGeminiSchema(items)
	}
	return schema
}
