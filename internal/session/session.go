package session

import "encoding/json"

// Session is a persisted conversational memory: a retention policy and its
// transcript, stored as a serialized envelope.
type Session struct {
	// ID is a ULID that uniquely identifies this session
	ID string

	// WorkspaceRaw is the original workspace string as provided by the user
	WorkspaceRaw string

	// WorkspaceNorm is the normalized workspace (lowercased, trimmed, collapsed spaces)
	WorkspaceNorm string

	// NameRaw is the original name as provided by the user (nullable)
	NameRaw *string

	// NameNorm is the normalized name (nullable)
	NameNorm *string

	// Policy is the retention kind: buffer, window, token_budget, summary
	Policy string

	// State is the policy's envelope encoded as JSON
	State json.RawMessage

	// MessageCount is the number of messages in the stored transcript
	MessageCount int

	// TokensEstimate is the word-based estimate of the rendered history
	TokensEstimate int

	CreatedAt int64
	UpdatedAt int64

	// DeletedAt is the Unix timestamp for soft delete (nullable)
	DeletedAt *int64
}

// Address returns "workspace/name" when named, otherwise the ID.
func (s *Session) Address() string {
	if s.NameRaw != nil {
		return s.WorkspaceRaw + "/" + *s.NameRaw
	}
	return s.ID
}
