package summarizer

import (
	"context"
	"testing"

	"github.com/relaycore/agentgate/internal/models"
)

type stubProvider struct {
	summary string
	err     error
}

func (s *stubProvider) Summarize(ctx context.Context, prompt string) (string, error) {
	return s.summary, s.err
}

func messages(n int) []models.Message {
	out := make([]models.Message, n)
	for i := range out {
		out[i] = models.Message{Role: models.RoleUser, Content: "m"}
	}
	return out
}

func TestShouldSummarizeThreshold(t *testing.T) {
	s := New(&stubProvider{}, DefaultConfig())
	if s.ShouldSummarize(19) {
		t.Fatalf("should not summarize below threshold")
	}
	if !s.ShouldSummarize(20) {
		t.Fatalf("should summarize at threshold")
	}
}

func TestSummarizeKeepsRecent(t *testing.T) {
	s := New(&stubProvider{summary: "dense summary"}, Config{Threshold: 20, KeepRecent: 6})
	result, err := s.Summarize(context.Background(), "", messages(21))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary != "dense summary" {
		t.Fatalf("got summary %q", result.Summary)
	}
	if len(result.RetainedHistory) != 6 {
		t.Fatalf("got %d retained messages, want 6", len(result.RetainedHistory))
	}
	if result.CoveredCount != 15 {
		t.Fatalf("got covered count %d, want 15", result.CoveredCount)
	}
}

func TestSummarizeNoOpBelowThreshold(t *testing.T) {
	s := New(&stubProvider{summary: "x"}, DefaultConfig())
	result, err := s.Summarize(context.Background(), "", messages(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary != "" {
		t.Fatalf("expected no-op result")
	}
}

func TestSummarizeErrorIsNonFatalCategory(t *testing.T) {
	s := New(&stubProvider{err: context.DeadlineExceeded}, DefaultConfig())
	_, err := s.Summarize(context.Background(), "", messages(25))
	if err == nil {
		t.Fatalf("expected error")
	}
	if ae := models.AsAgentError(err); ae.Code != models.ErrSummarizationError {
		t.Fatalf("got %s, want SUMMARIZATION_ERROR", ae.Code)
	}
}
