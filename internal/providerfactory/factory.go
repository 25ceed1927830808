// Package providerfactory maps a provider tag to an adapter instance,
// caches instances per (tag, model), and enumerates supported providers.
package providerfactory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relaycore/agentgate/internal/models"
	"github.com/relaycore/agentgate/internal/provider"
)

// Constructor builds an Adapter for the given API key and model.
type Constructor func(apiKey, model string) provider.Adapter

var constructors = map[models.ProviderTag]Constructor{
	models.ProviderOpenAI:    func(key, model string) provider.Adapter { return provider.NewOpenAIAdapter(key, model) },
	models.ProviderAnthropic: func(key, model string) provider.Adapter { return provider.NewAnthropicAdapter(key, model) },
	models.ProviderGemini:    func(key, model string) provider.Adapter { return provider.NewGeminiAdapter(key, model) },
	models.ProviderMistral:   func(key, model string) provider.Adapter { return provider.NewOpenAICompatAdapter(models.ProviderMistral, key, model) },
	models.ProviderGrok:      func(key, model string) provider.Adapter { return provider.NewOpenAICompatAdapter(models.ProviderGrok, key, model) },
	models.ProviderQwen:      func(key, model string) provider.Adapter { return provider.NewOpenAICompatAdapter(models.ProviderQwen, key, model) },
	models.ProviderDeepseek:  func(key, model string) provider.Adapter { return provider.NewOpenAICompatAdapter(models.ProviderDeepseek, key, model) },
	models.ProviderKimi:      func(key, model string) provider.Adapter { return provider.NewOpenAICompatAdapter(models.ProviderKimi, key, model) },
}

var supportedTags = []models.ProviderTag{
	models.ProviderOpenAI, models.ProviderAnthropic, models.ProviderGemini,
	models.ProviderMistral, models.ProviderGrok, models.ProviderQwen,
	models.ProviderDeepseek, models.ProviderKimi,
}

// ProviderInfo is one row of list_providers().
type ProviderInfo struct {
	Tag            models.ProviderTag `json:"tag"`
	Healthy        bool               `json:"healthy"`
	Models         []string           `json:"models"`
	HasToolSupport bool               `json:"has_tool_support"`
	ContextWindow  int                `json:"context_window,omitempty"`
}

// contextWindows is a trimmed model→token-limit table covering the
// default model most deployments configure per tag. Unlisted models
// report a zero ContextWindow rather than guessing.
var contextWindows = map[string]int{
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
	"claude-sonnet-4-5": 200000,
	"claude-opus-4-5":   200000,
	"gemini-2.5-pro":    1000000,
	"gemini-2.5-flash":  1000000,
	"grok-4":            256000,
	"qwen-max":          32768,
	"deepseek-chat":     64000,
	"kimi-k2":           128000,
	"mistral-large":     128000,
}

// Factory holds the process-lifetime adapter cache keyed by (tag, model).
type Factory struct {
	mu           sync.Mutex
	keys         map[models.ProviderTag]string
	cache        map[string]provider.Adapter
	models       map[models.ProviderTag][]string
	constructors map[models.ProviderTag]Constructor
}

// New builds a Factory using the real vendor-backed constructors. keysByTag
// supplies the raw API key configured for each provider tag (may be absent
// or empty — adapters degrade gracefully).
func New(keysByTag map[models.ProviderTag]string, modelsByTag map[models.ProviderTag][]string) *Factory {
	return NewWithConstructors(keysByTag, modelsByTag, constructors)
}

// NewWithConstructors builds a Factory against a caller-supplied
// constructor table, letting tests substitute fake adapters without
// touching any vendor SDK.
func NewWithConstructors(keysByTag map[models.ProviderTag]string, modelsByTag map[models.ProviderTag][]string, ctors map[models.ProviderTag]Constructor) *Factory {
	return &Factory{
		keys:         keysByTag,
		cache:        make(map[string]provider.Adapter),
		models:       modelsByTag,
		constructors: ctors,
	}
}

// Get returns a cached Adapter for (tag, model), constructing one on first
// use. Unknown tags raise UNKNOWN_PROVIDER.
func (f *Factory) Get(tag models.ProviderTag, model string) (provider.Adapter, error) {
	ctor, ok := f.constructors[tag]
	if !ok {
		return nil, models.NewAgentError(models.ErrUnknownProvider, fmt.Sprintf("unknown provider %q", tag), nil)
	}
	cacheKey := string(tag) + "/" + model
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.cache[cacheKey]; ok {
		return a, nil
	}
	a := ctor(f.keys[tag], model)
	f.cache[cacheKey] = a
	return a, nil
}

// ListProviders enumerates every supported provider tag with health,
// model list, and tool-support capability.
func (f *Factory) ListProviders() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(supportedTags))
	for _, tag := range supportedTags {
		modelList := f.models[tag]
		var m string
		if len(modelList) > 0 {
			m = modelList[0]
		}
		adapter, err := f.Get(tag, m)
		info := ProviderInfo{Tag: tag, Models: modelList, HasToolSupport: true, ContextWindow: contextWindows[m]}
		if err == nil {
			info.HasToolSupport = adapter.SupportedTools()
			info.Healthy = f.keys[tag] != ""
		}
		out = append(out, info)
	}
	return out
}

// Health resolves the adapter for (tag, model) and calls its Health check.
func (f *Factory) Health(ctx context.Context, tag models.ProviderTag, model string) (bool, time.Duration, error) {
	adapter, err := f.Get(tag, model)
	if err != nil {
		return false, 0, err
	}
	return adapter.Health(ctx)
}

// KnownTags returns every supported provider tag.
func KnownTags() []models.ProviderTag {
	out := make([]models.ProviderTag, len(supportedTags))
	copy(out, supportedTags)
	return out
}
