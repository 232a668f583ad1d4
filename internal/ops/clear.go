package ops

import (
	"context"

	"github.com/hpungsan/lichen/internal/db"
	"github.com/hpungsan/lichen/internal/observability"
)

// ClearInput contains parameters for the Clear operation.
type ClearInput struct {
	ID        string
	Workspace string
	Name      string
}

// ClearOutput contains the result of the Clear operation.
type ClearOutput struct {
	ID      string `json:"id"`
	Cleared int    `json:"cleared"` // messages removed
}

// Clear empties a session's transcript and derived state, keeping its
// policy settings.
func Clear(ctx context.Context, rt *Runtime, input ClearInput) (*ClearOutput, error) {
	addr, err := ValidateAddress(input.ID, input.Workspace, input.Name)
	if err != nil {
		return nil, err
	}
	s, unlock, err := rt.lockSession(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer unlock()

	policy, err := rt.decodePolicy(s.State)
	if err != nil {
		return nil, err
	}

	removed := policy.History().Len()
	policy.Clear()

	if err := encodePolicy(s, policy); err != nil {
		return nil, err
	}
	if err := db.UpdateState(ctx, rt.DB, s); err != nil {
		return nil, err
	}

	rt.emit(ctx, observability.EventSessionCleared, observability.LevelInfo, map[string]any{
		"session_id": s.ID,
		"removed":    removed,
	})

	return &ClearOutput{ID: s.ID, Cleared: removed}, nil
}
