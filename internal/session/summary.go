package session

// Summary is a session's metadata without the serialized state.
// Used by list to reduce data transfer.
type Summary struct {
	ID             string  `json:"id"`
	Workspace      string  `json:"workspace"`
	WorkspaceNorm  string  `json:"workspace_norm"`
	Name           *string `json:"name,omitempty"`
	NameNorm       *string `json:"name_norm,omitempty"`
	Policy         string  `json:"policy"`
	MessageCount   int     `json:"message_count"`
	TokensEstimate int     `json:"tokens_estimate"`
	CreatedAt      int64   `json:"created_at"`
	UpdatedAt      int64   `json:"updated_at"`
	DeletedAt      *int64  `json:"deleted_at,omitempty"`
}

// ToSummary strips the serialized state.
func (s *Session) ToSummary() Summary {
	return Summary{
		ID:             s.ID,
		Workspace:      s.WorkspaceRaw,
		WorkspaceNorm:  s.WorkspaceNorm,
		Name:           s.NameRaw,
		NameNorm:       s.NameNorm,
		Policy:         s.Policy,
		MessageCount:   s.MessageCount,
		TokensEstimate: s.TokensEstimate,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		DeletedAt:      s.DeletedAt,
	}
}
