package provider

import (
	"context"
	"testing"

	"github.com/relaycore/agentgate/internal/models"
)

func TestOpenAIAdapterMissingKey(t *testing.T) {
	a := NewOpenAIAdapter("", "gpt-4")
	if a.err == nil {
		t.Fatalf("expected error for missing key")
	}
	_, err := a.ChatCompletion(nil, models.AgentConfig{}, nil, nil) //nolint:staticcheck
	if err == nil {
		t.Fatalf("expected ChatCompletion to fail without a key")
	}
	ae := models.AsAgentError(err)
	if ae.Code != models.ErrMissingAPIKey {
		t.Fatalf("got code %s, want MISSING_API_KEY", ae.Code)
	}
}

func TestOpenAICompatUnknownTag(t *testing.T) {
	a := NewOpenAICompatAdapter(models.ProviderTag("unknown"), "x", "m")
	if a.err == nil {
		t.Fatalf("expected error for unknown provider tag")
	}
}

// Every adapter must degrade gracefully at construction time rather than
// panicking, and Health must short-circuit on that construction-time error
// without attempting a live vendor call.

func TestAnthropicAdapterMissingKeyDegradesGracefully(t *testing.T) {
	a := NewAnthropicAdapter("", "claude-sonnet-4-5")
	if a.err == nil {
		t.Fatalf("expected error for missing key")
	}
	ok, _, err := a.Health(context.Background())
	if ok || err == nil {
		t.Fatalf("expected Health to fail fast on the construction-time error")
	}
	if ae := models.AsAgentError(err); ae.Code != models.ErrMissingAPIKey {
		t.Fatalf("got %s, want MISSING_API_KEY", ae.Code)
	}
}

func TestGeminiAdapterMissingKeyDegradesGracefully(t *testing.T) {
	a := NewGeminiAdapter("", "gemini-2.5-pro")
	if a.err == nil {
		t.Fatalf("expected error for missing key")
	}
	ok, _, err := a.Health(context.Background())
	if ok || err == nil {
		t.Fatalf("expected Health to fail fast on the construction-time error")
	}
	_, err = a.ChatCompletion(context.Background(), models.AgentConfig{}, nil, nil)
	if err == nil {
		t.Fatalf("expected ChatCompletion to fail without a key")
	}
}

func TestOpenAIAdapterHealthFailsFastOnMissingKey(t *testing.T) {
	a := NewOpenAIAdapter("", "gpt-4o")
	ok, _, err := a.Health(context.Background())
	if ok || err == nil {
		t.Fatalf("expected Health to fail fast on the construction-time error")
	}
}

func TestOpenAICompatAdapterMissingKeyDegradesGracefully(t *testing.T) {
	a := NewOpenAICompatAdapter(models.ProviderGrok, "", "grok-4")
	if a.err == nil {
		t.Fatalf("expected error for missing key")
	}
	ok, _, err := a.Health(context.Background())
	if ok || err == nil {
		t.Fatalf("expected Health to fail fast on the construction-time error")
	}
	_, err = a.ChatCompletion(context.Background(), models.AgentConfig{}, nil, nil)
	if err == nil {
		t.Fatalf("expected ChatCompletion to fail without a key")
	}
}

func TestConvertMessagesToAnthropicFoldsSystemMessagesOut(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleSystem, Content: "Summary of earlier conversation: the user is planning a trip."},
		{Role: models.RoleUser, Content: "where should I go next"},
	}
	msgs, systemText, err := convertMessagesToAnthropic(history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if systemText != "Summary of earlier conversation: the user is planning a trip." {
		t.Fatalf("got systemText %q, want the system message content", systemText)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (system message must not appear in the turn list)", len(msgs))
	}
}

func TestConvertMessagesToAnthropicJoinsMultipleSystemMessages(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleSystem, Content: "first"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleSystem, Content: "second"},
	}
	_, systemText, err := convertMessagesToAnthropic(history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if systemText != "first\n\nsecond" {
		t.Fatalf("got systemText %q, want both system messages joined", systemText)
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := map[int]models.ErrorCode{
		429: models.ErrRateLimited,
		500: models.ErrProvider5xx,
		503: models.ErrProvider5xx,
		404: models.ErrProvider4xxNonRateLimit,
	}
	for status, want := range cases {
		if got := ClassifyHTTPStatus(status); got != want {
			t.Errorf("status %d: got %s, want %s", status, got, want)
		}
	}
}
