package ops

import (
	"context"
	"encoding/json"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID             string
	Workspace      string
	Name           string
	IncludeDeleted bool
	IncludeState   *bool // default: true (nil means default)
}

// FetchOutput contains a session's metadata and, unless excluded, its
// serialized policy envelope.
type FetchOutput struct {
	ID             string          `json:"id"`
	Workspace      string          `json:"workspace"`
	WorkspaceNorm  string          `json:"workspace_norm"`
	Name           *string         `json:"name,omitempty"`
	NameNorm       *string         `json:"name_norm,omitempty"`
	Policy         string          `json:"policy"`
	State          json.RawMessage `json:"state,omitempty"`
	MessageCount   int             `json:"message_count"`
	TokensEstimate int             `json:"tokens_estimate"`
	CreatedAt      int64           `json:"created_at"`
	UpdatedAt      int64           `json:"updated_at"`
	DeletedAt      *int64          `json:"deleted_at,omitempty"`
	Session        SessionRef      `json:"session"`
}

// Fetch retrieves a session by ID or name.
func Fetch(ctx context.Context, rt *Runtime, input FetchInput) (*FetchOutput, error) {
	addr, err := ValidateAddress(input.ID, input.Workspace, input.Name)
	if err != nil {
		return nil, err
	}

	s, err := rt.lookup(ctx, addr, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	output := &FetchOutput{
		ID:             s.ID,
		Workspace:      s.WorkspaceRaw,
		WorkspaceNorm:  s.WorkspaceNorm,
		Name:           s.NameRaw,
		NameNorm:       s.NameNorm,
		Policy:         s.Policy,
		State:          s.State,
		MessageCount:   s.MessageCount,
		TokensEstimate: s.TokensEstimate,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		DeletedAt:      s.DeletedAt,
		Session:        BuildSessionRef(s),
	}

	if input.IncludeState != nil && !*input.IncludeState {
		output.State = nil
	}

	return output, nil
}
