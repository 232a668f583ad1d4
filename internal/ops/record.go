package ops

import (
	"context"

	"github.com/hpungsan/lichen/internal/db"
	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/observability"
	"github.com/hpungsan/lichen/internal/retention"
)

// RecordInput contains parameters for the Record operation.
// Inputs and Outputs are resolved to one text each by the policy's
// input and output keys; Input and Output are shorthands for a single
// unkeyed turn and may not be combined with the maps.
type RecordInput struct {
	ID        string
	Workspace string
	Name      string

	Inputs  map[string]string
	Outputs map[string]string

	Input  string
	Output string
}

// RecordOutput contains the result of the Record operation.
type RecordOutput struct {
	ID             string `json:"id"`
	MessageCount   int    `json:"message_count"`
	TokensEstimate int    `json:"tokens_estimate"`
	Summarized     bool   `json:"summarized,omitempty"`
	Trimmed        int    `json:"trimmed,omitempty"`
}

// Record appends one exchange to a session and persists the result.
// Concurrent calls on the same session are applied one after another.
// Resolver and collaborator errors leave the stored session unchanged.
func Record(ctx context.Context, rt *Runtime, input RecordInput) (*RecordOutput, error) {
	addr, err := ValidateAddress(input.ID, input.Workspace, input.Name)
	if err != nil {
		return nil, err
	}
	if (input.Inputs != nil || input.Outputs != nil) && (input.Input != "" || input.Output != "") {
		return nil, errors.NewInvalidRequest("use either inputs/outputs or input/output, not both")
	}

	s, unlock, err := rt.lockSession(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer unlock()

	policy, err := rt.decodePolicy(s.State)
	if err != nil {
		rt.emit(ctx, observability.EventDecodeFailed, observability.LevelError, map[string]any{
			"session_id": s.ID,
			"error":      err.Error(),
		})
		return nil, err
	}

	before := policy.History().Len()
	priorSummary := summaryBuffer(policy)

	if input.Inputs != nil || input.Outputs != nil {
		err = policy.RecordTurn(ctx, input.Inputs, input.Outputs)
	} else {
		err = policy.SaveTurn(ctx, input.Input, input.Output)
	}
	if err != nil {
		return nil, surface(err)
	}

	if err := encodePolicy(s, policy); err != nil {
		return nil, err
	}
	if err := db.UpdateState(ctx, rt.DB, s); err != nil {
		return nil, err
	}

	out := &RecordOutput{
		ID:             s.ID,
		MessageCount:   s.MessageCount,
		TokensEstimate: s.TokensEstimate,
	}

	if sb := summaryBuffer(policy); sb != priorSummary {
		out.Summarized = true
		rt.emit(ctx, observability.EventSummaryEvicted, observability.LevelInfo, map[string]any{
			"session_id":    s.ID,
			"summary_chars": len(sb),
		})
	}
	if trimmed := before + 2 - s.MessageCount; trimmed > 0 && policy.Kind() == retention.KindTokenBudget {
		out.Trimmed = trimmed
		rt.emit(ctx, observability.EventTokensTrimmed, observability.LevelVerbose, map[string]any{
			"session_id": s.ID,
			"trimmed":    trimmed,
		})
	}
	rt.emit(ctx, observability.EventTurnRecorded, observability.LevelVerbose, map[string]any{
		"session_id":    s.ID,
		"message_count": s.MessageCount,
	})

	return out, nil
}

func summaryBuffer(p retention.Policy) string {
	if sp, ok := p.(*retention.Summary); ok {
		return sp.Buffer
	}
	return ""
}
