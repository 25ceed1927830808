// Package config loads and validates the process configuration: server
// bind address, per-provider API keys and default models, and the
// orchestrator's tunables. YAML on disk is overlaid with environment
// variables, matching the precedence the deployment tooling expects.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relaycore/agentgate/internal/models"
)

// Environment selects CORS and key-validation strictness.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ProviderConfig is the per-tag key and default model.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
}

// OrchestratorConfig mirrors orchestrator.Options in wire form.
type OrchestratorConfig struct {
	MaxIterations  int           `yaml:"max_iterations"`
	ToolTimeout    time.Duration `yaml:"tool_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SummarizerConfig mirrors summarizer.Config in wire form.
type SummarizerConfig struct {
	Threshold  int `yaml:"threshold"`
	KeepRecent int `yaml:"keep_recent"`
}

// LoggingConfig holds the log level and format settings. Load fills in
// defaults; cmd/agentgated builds its slog handler from its --debug flag
// and does not read these fields.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the top-level process configuration.
type Config struct {
	Environment        Environment                            `yaml:"environment"`
	Server             ServerConfig                            `yaml:"server"`
	CORSAllowedOrigins []string                                `yaml:"cors_allowed_origins"`
	Providers          map[models.ProviderTag]ProviderConfig   `yaml:"providers"`
	Orchestrator       OrchestratorConfig                      `yaml:"orchestrator"`
	Summarizer         SummarizerConfig                        `yaml:"summarizer"`
	Logging            LoggingConfig                           `yaml:"logging"`
}

var envKeyVars = map[models.ProviderTag]string{
	models.ProviderOpenAI:    "OPENAI_API_KEY",
	models.ProviderAnthropic: "ANTHROPIC_API_KEY",
	models.ProviderGemini:    "GEMINI_API_KEY",
	models.ProviderMistral:   "MISTRAL_API_KEY",
	models.ProviderGrok:      "GROK_API_KEY",
	models.ProviderQwen:      "QWEN_API_KEY",
	models.ProviderDeepseek:  "DEEPSEEK_API_KEY",
	models.ProviderKimi:      "KIMI_K2_API_KEY",
}

// Load reads path (if it exists) and overlays environment variables on
// top. A missing file is not an error: the config starts from defaults and
// env vars are still applied.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Providers: map[models.ProviderTag]ProviderConfig{},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	if cfg.Providers == nil {
		cfg.Providers = map[models.ProviderTag]ProviderConfig{}
	}

	applyEnvOverlay(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func applyEnvOverlay(cfg *Config) {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		cfg.Environment = Environment(env)
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSAllowedOrigins = splitAndTrim(origins)
	}
	for tag, envVar := range envKeyVars {
		key := os.Getenv(envVar)
		if key == "" {
			continue
		}
		pc := cfg.Providers[tag]
		pc.APIKey = key
		cfg.Providers[tag] = pc
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = EnvDevelopment
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Orchestrator.MaxIterations == 0 {
		cfg.Orchestrator.MaxIterations = 10
	}
	if cfg.Orchestrator.ToolTimeout == 0 {
		cfg.Orchestrator.ToolTimeout = 30 * time.Second
	}
	if cfg.Orchestrator.RequestTimeout == 0 {
		cfg.Orchestrator.RequestTimeout = 300 * time.Second
	}
	if cfg.Summarizer.Threshold == 0 {
		cfg.Summarizer.Threshold = 20
	}
	if cfg.Summarizer.KeepRecent == 0 {
		cfg.Summarizer.KeepRecent = 6
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate enforces the production-mode startup requirements: at least one
// provider with a key that passes format validation, and an explicit CORS
// allow-list.
func Validate(cfg *Config, keyValidator func(models.ProviderTag, string) (string, error)) error {
	if cfg.Environment != EnvProduction {
		return nil
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		return models.NewAgentError(models.ErrMissingCORSOriginsInProd,
			"CORS_ALLOWED_ORIGINS must be set in production mode", nil)
	}
	validKeys := 0
	var failures []string
	for tag, pc := range cfg.Providers {
		if pc.APIKey == "" {
			continue
		}
		if _, err := keyValidator(tag, pc.APIKey); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %s", tag, err.Error()))
			continue
		}
		validKeys++
	}
	if validKeys == 0 {
		msg := "no provider has a key that passes format validation"
		if len(failures) > 0 {
			sort.Strings(failures)
			msg = fmt.Sprintf("%s (%s)", msg, strings.Join(failures, "; "))
		}
		return models.NewAgentError(models.ErrNoValidKeysInProd, msg, nil)
	}
	return nil
}

// KeysByTag flattens the provider map into the shape providerfactory.New
// expects.
func (c *Config) KeysByTag() map[models.ProviderTag]string {
	out := make(map[models.ProviderTag]string, len(c.Providers))
	for tag, pc := range c.Providers {
		out[tag] = pc.APIKey
	}
	return out
}

// ModelsByTag flattens each provider's configured default model into a
// single-element model list, the shape providerfactory.New expects.
func (c *Config) ModelsByTag() map[models.ProviderTag][]string {
	out := make(map[models.ProviderTag][]string, len(c.Providers))
	for tag, pc := range c.Providers {
		if pc.DefaultModel != "" {
			out[tag] = []string{pc.DefaultModel}
		}
	}
	return out
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
