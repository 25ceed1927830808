// Package summarizer implements the history summarizer: it collapses an
// old message prefix into a single summary entry once a non-summary
// message-count threshold is reached.
package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/relaycore/agentgate/internal/models"
)

// Config controls when and how summarization fires.
type Config struct {
	// Threshold is the non-summary message count at which summarization
	// fires on the next loop entry. Default: 20.
	Threshold int
	// KeepRecent is how many of the most recent messages survive
	// summarization. Default: 6.
	KeepRecent int
}

// DefaultConfig returns the baseline summarization thresholds.
func DefaultConfig() Config {
	return Config{Threshold: 20, KeepRecent: 6}
}

// SummaryProvider generates a summary string for a run of messages. The
// configured summarization model may be the orchestrator's own
// adapter/model pair, or a separately configured cheaper model.
type SummaryProvider interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Summarizer drives the selection of the prefix to collapse and the call to
// the configured SummaryProvider.
type Summarizer struct {
	provider SummaryProvider
	config   Config
}

// New constructs a Summarizer.
func New(provider SummaryProvider, config Config) *Summarizer {
	if config.Threshold <= 0 {
		config.Threshold = 20
	}
	if config.KeepRecent <= 0 {
		config.KeepRecent = 6
	}
	return &Summarizer{provider: provider, config: config}
}

// ShouldSummarize reports whether nonSummaryMessageCount has reached the
// configured threshold.
func (s *Summarizer) ShouldSummarize(nonSummaryMessageCount int) bool {
	return nonSummaryMessageCount >= s.config.Threshold
}

// Result is the outcome of one Summarize call.
type Result struct {
	Summary         string
	CoveredCount    int
	RetainedHistory []models.Message
}

// Summarize selects the contiguous oldest prefix such that at least
// KeepRecent messages remain, calls the configured provider, and returns
// the new summary plus the retained tail. Callers apply Result.Summary via
// the session store's ReplaceSummary, which overwrites rather than
// concatenates — the prompt built by BuildSummarizationPrompt includes
// existingSummary when it is non-empty, so the new summary covers it.
func (s *Summarizer) Summarize(ctx context.Context, existingSummary string, history []models.Message) (Result, error) {
	if !s.ShouldSummarize(len(history)) {
		return Result{}, nil
	}
	keep := s.config.KeepRecent
	if keep > len(history) {
		keep = len(history)
	}
	prefixLen := len(history) - keep
	if prefixLen <= 0 {
		return Result{}, nil
	}
	prefix := history[:prefixLen]
	retained := append([]models.Message(nil), history[prefixLen:]...)

	prompt := BuildSummarizationPrompt(existingSummary, prefix)
	summary, err := s.provider.Summarize(ctx, prompt)
	if err != nil {
		return Result{}, models.NewAgentError(models.ErrSummarizationError, "summarization call failed", err)
	}
	return Result{Summary: summary, CoveredCount: len(prefix), RetainedHistory: retained}, nil
}

// BuildSummarizationPrompt renders the fixed meta-prompt plus the prior
// summary (if any) and the messages to fold into it.
func BuildSummarizationPrompt(existingSummary string, messages []models.Message) string {
	var sb strings.Builder
	sb.WriteString("Produce a dense factual summary of the following dialogue; ")
	sb.WriteString("preserve decisions, constraints, and open questions; ≤ 500 tokens.\n\n")
	if existingSummary != "" {
		sb.WriteString("Existing summary so far:\n")
		sb.WriteString(existingSummary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Dialogue to fold in:\n")
	for _, m := range messages {
		sb.WriteString(fmt.Sprintf("[%s]: %s\n", m.Role, m.Content))
		for _, tc := range m.ToolCalls {
			sb.WriteString(fmt.Sprintf("  [called tool: %s]\n", tc.Name))
		}
	}
	return sb.String()
}
