// Package keys validates per-provider API key formats and renders them
// safely for logs and error messages. No component outside this package may
// render a raw key.
package keys

import (
	"fmt"
	"regexp"

	"github.com/relaycore/agentgate/internal/models"
)

var patterns = map[models.ProviderTag]*regexp.Regexp{
	models.ProviderOpenAI:    regexp.MustCompile(`^sk-[A-Za-z0-9\-_]{40,}$`),
	models.ProviderAnthropic: regexp.MustCompile(`^sk-ant-api03-[A-Za-z0-9\-_]{95}$`),
	models.ProviderGemini:    regexp.MustCompile(`^AIza[A-Za-z0-9_\-]{33,}$`),
	models.ProviderMistral:   regexp.MustCompile(`^[A-Za-z0-9]{32}$`),
	models.ProviderGrok:      regexp.MustCompile(`^xai-[A-Za-z0-9]{40}$`),
	models.ProviderQwen:      regexp.MustCompile(`^sk-[A-Za-z0-9]{40,}$`),
	models.ProviderDeepseek:  regexp.MustCompile(`^sk-[A-Za-z0-9]{40,}$`),
	models.ProviderKimi:      regexp.MustCompile(`^sk-[A-Za-z0-9]{40,}$`),
}

const ellipsis = "…"

// Mask preserves the first 4 and last 4 characters of key, replacing the
// middle with an ellipsis. Keys shorter than 12 characters render as the
// ellipsis alone.
func Mask(key string) string {
	if len(key) < 12 {
		return ellipsis
	}
	return key[:4] + ellipsis + key[len(key)-4:]
}

// Validate checks key against the format regex registered for tag. On
// success it returns key unchanged. An empty key yields MISSING_API_KEY, a
// tag with no registered pattern yields UNKNOWN_PROVIDER, and a key that
// does not match yields INVALID_API_KEY whose message carries only the
// masked key.
func Validate(tag models.ProviderTag, key string) (string, error) {
	if key == "" {
		return "", models.NewAgentError(models.ErrMissingAPIKey, fmt.Sprintf("no API key configured for provider %q", tag), nil)
	}
	re, ok := patterns[tag]
	if !ok {
		return "", models.NewAgentError(models.ErrUnknownProvider, fmt.Sprintf("unknown provider %q", tag), nil)
	}
	if !re.MatchString(key) {
		return "", models.NewAgentError(models.ErrInvalidAPIKey, fmt.Sprintf("key %s does not match the expected format for provider %q", Mask(key), tag), nil)
	}
	return key, nil
}

// KnownProvider reports whether tag has a registered key-format pattern.
func KnownProvider(tag models.ProviderTag) bool {
	_, ok := patterns[tag]
	return ok
}
