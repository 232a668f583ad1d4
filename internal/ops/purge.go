package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/lichen/internal/db"
	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/observability"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	Workspace     *string // optional filter by workspace
	OlderThanDays *int    // optional, only purge if deleted_at < (now - N days)
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// Purge permanently deletes soft-deleted sessions.
func Purge(ctx context.Context, rt *Runtime, input PurgeInput) (*PurgeOutput, error) {
	if input.OlderThanDays != nil && *input.OlderThanDays < 0 {
		return nil, errors.NewInvalidRequest("older_than_days must not be negative")
	}

	count, err := db.PurgeDeleted(ctx, rt.DB, input.Workspace, input.OlderThanDays)
	if err != nil {
		return nil, err
	}

	if count > 0 {
		rt.emit(ctx, observability.EventSessionsPurged, observability.LevelInfo, map[string]any{
			"purged": count,
		})
	}

	return &PurgeOutput{
		Purged:  count,
		Message: formatPurgeMessage(count, input.Workspace, input.OlderThanDays),
	}, nil
}

func formatPurgeMessage(count int, workspace *string, olderThanDays *int) string {
	if count == 0 {
		return "No deleted sessions to purge"
	}

	word := "session"
	if count > 1 {
		word = "sessions"
	}
	msg := fmt.Sprintf("Permanently deleted %d %s", count, word)

	if workspace != nil {
		msg += fmt.Sprintf(" from workspace %q", *workspace)
	}
	if olderThanDays != nil {
		msg += fmt.Sprintf(" (deleted more than %d days ago)", *olderThanDays)
	}
	return msg
}
