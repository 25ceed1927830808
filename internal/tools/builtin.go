package tools

import (
	"context"
	"time"

	"github.com/relaycore/agentgate/internal/models"
)

// currentTimeSchema describes the built-in get_current_time tool required
// by the canonical test suite.
func currentTimeSchema() models.ToolSchema {
	return models.ToolSchema{
		Name:        "get_current_time",
		Description: "Returns the current wallclock time in ISO-8601 UTC.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func currentTimeExecutor(ctx context.Context, args map[string]any) (any, error) {
	return map[string]any{"iso8601": time.Now().UTC().Format(time.RFC3339)}, nil
}
