package session

import "encoding/json"

// ExportSchemaVersion is written to the JSONL header line.
const ExportSchemaVersion = "1.0"

// ExportRecord is one line of a JSONL export file.
type ExportRecord struct {
	// Header detection field - true only for header line
	LichenExport bool `json:"_lichen_export,omitempty"`

	// Header fields (only present in header line)
	SchemaVersion string `json:"schema_version,omitempty"`
	ExportedAt    int64  `json:"exported_at,omitempty"`

	ID             string          `json:"id"`
	WorkspaceRaw   string          `json:"workspace_raw"`
	WorkspaceNorm  string          `json:"workspace_norm"` // IGNORED on import, recomputed
	NameRaw        *string         `json:"name_raw"`
	NameNorm       *string         `json:"name_norm"` // IGNORED on import, recomputed
	Policy         string          `json:"policy"`
	State          json.RawMessage `json:"state"`
	MessageCount   int             `json:"message_count"`   // IGNORED on import, recomputed
	TokensEstimate int             `json:"tokens_estimate"` // IGNORED on import, recomputed
	CreatedAt      int64           `json:"created_at"`
	UpdatedAt      int64           `json:"updated_at"`
	DeletedAt      *int64          `json:"deleted_at"`
}

// Header returns the first line of an export file.
func Header(exportedAt int64) *ExportRecord {
	return &ExportRecord{
		LichenExport:  true,
		SchemaVersion: ExportSchemaVersion,
		ExportedAt:    exportedAt,
	}
}

// ToSession converts a record, recomputing normalized fields.
// MessageCount and TokensEstimate are left for the caller to derive from State.
func (r *ExportRecord) ToSession() *Session {
	return &Session{
		ID:            r.ID,
		WorkspaceRaw:  r.WorkspaceRaw,
		WorkspaceNorm: Normalize(r.WorkspaceRaw),
		NameRaw:       r.NameRaw,
		NameNorm:      NormalizeName(r.NameRaw),
		Policy:        r.Policy,
		State:         r.State,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		DeletedAt:     r.DeletedAt,
	}
}

// ToExportRecord converts a Session for export.
func ToExportRecord(s *Session) *ExportRecord {
	return &ExportRecord{
		ID:             s.ID,
		WorkspaceRaw:   s.WorkspaceRaw,
		WorkspaceNorm:  s.WorkspaceNorm,
		NameRaw:        s.NameRaw,
		NameNorm:       s.NameNorm,
		Policy:         s.Policy,
		State:          s.State,
		MessageCount:   s.MessageCount,
		TokensEstimate: s.TokensEstimate,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		DeletedAt:      s.DeletedAt,
	}
}
