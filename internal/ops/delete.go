package ops

import (
	"context"

	"github.com/hpungsan/lichen/internal/db"
	"github.com/hpungsan/lichen/internal/observability"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	ID        string
	Workspace string
	Name      string
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Delete soft-deletes a session.
func Delete(ctx context.Context, rt *Runtime, input DeleteInput) (*DeleteOutput, error) {
	addr, err := ValidateAddress(input.ID, input.Workspace, input.Name)
	if err != nil {
		return nil, err
	}

	// Resolve name to ID (active only)
	s, err := rt.lookup(ctx, addr, false)
	if err != nil {
		return nil, err
	}

	if err := db.SoftDelete(ctx, rt.DB, s.ID); err != nil {
		return nil, err
	}

	rt.emit(ctx, observability.EventSessionDeleted, observability.LevelInfo, map[string]any{
		"session_id": s.ID,
	})

	return &DeleteOutput{Deleted: true, ID: s.ID}, nil
}
