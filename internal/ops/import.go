package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hpungsan/lichen/internal/db"
	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/observability"
	"github.com/hpungsan/lichen/internal/session"
)

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on collision (atomic)
	ImportModeReplace ImportMode = "replace" // overwrite on collision
	ImportModeRename  ImportMode = "rename"  // auto-suffix name on collision
)

// maxImportLine bounds one JSONL line; session state can be large.
const maxImportLine = 16 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError represents an error that occurred during import.
type ImportError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type importRecord struct {
	line    int
	session *session.Session
}

// Import imports sessions from a JSONL export file. Every record's state
// must decode into a retention policy; counts are recomputed from it.
func Import(ctx context.Context, rt *Runtime, input ImportInput) (*ImportOutput, error) {
	if input.Path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeReplace && input.Mode != ImportModeRename {
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, rename")
	}

	if err := ValidatePath(input.Path, PathCheckRead, rt.Config); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		return nil, surface(err)
	}
	defer file.Close()

	records, parseErrors := rt.parseExportFile(file)

	var out *ImportOutput
	switch input.Mode {
	case ImportModeError:
		if len(parseErrors) > 0 {
			return &ImportOutput{Errors: parseErrors}, nil
		}
		out, err = importModeError(ctx, rt, records)
	case ImportModeReplace:
		out, err = importModeReplace(ctx, rt, records, parseErrors)
	case ImportModeRename:
		out, err = importModeRename(ctx, rt, records, parseErrors)
	}
	if err != nil {
		return nil, err
	}

	rt.emit(ctx, observability.EventImportCompleted, observability.LevelInfo, map[string]any{
		"path":     input.Path,
		"mode":     string(input.Mode),
		"imported": out.Imported,
		"skipped":  out.Skipped,
	})
	return out, nil
}

// parseExportFile parses and validates every record.
func (rt *Runtime) parseExportFile(r io.Reader) ([]importRecord, []ImportError) {
	var records []importRecord
	var parseErrors []ImportError

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record session.ExportRecord
		if err := json.Unmarshal(line, &record); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}

		if record.LichenExport {
			continue
		}

		if record.ID == "" {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "INVALID_RECORD",
				Message: "missing id field",
			})
			continue
		}

		s := record.ToSession()
		policy, err := rt.decodePolicy(s.State)
		if err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				ID:      record.ID,
				Name:    deref(record.NameRaw),
				Code:    "INVALID_STATE",
				Message: err.Error(),
			})
			continue
		}
		if err := encodePolicy(s, policy); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				ID:      record.ID,
				Code:    "INVALID_STATE",
				Message: err.Error(),
			})
			continue
		}

		records = append(records, importRecord{line: lineNum, session: s})
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}

	return records, parseErrors
}

// importModeError imports all records atomically, aborting on the first collision.
func importModeError(ctx context.Context, rt *Runtime, records []importRecord) (*ImportOutput, error) {
	tx, err := rt.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, rec := range records {
		s := rec.session

		existing, err := db.GetByID(ctx, tx, s.ID, true)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			return &ImportOutput{Errors: []ImportError{{
				Line:    rec.line,
				ID:      s.ID,
				Code:    "ID_COLLISION",
				Message: fmt.Sprintf("session with id %q already exists", s.ID),
			}}}, nil
		}

		// Soft-deleted rows never collide on name.
		if s.NameNorm != nil && s.DeletedAt == nil {
			exists, err := db.CheckNameExists(ctx, tx, s.WorkspaceNorm, *s.NameNorm)
			if err != nil {
				return nil, err
			}
			if exists {
				return &ImportOutput{Errors: []ImportError{{
					Line:    rec.line,
					ID:      s.ID,
					Name:    deref(s.NameRaw),
					Code:    "NAME_COLLISION",
					Message: fmt.Sprintf("session with name %q already exists in workspace %q", deref(s.NameRaw), s.WorkspaceRaw),
				}}}, nil
			}
		}

		if err := db.Insert(ctx, tx, s); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &ImportOutput{Imported: len(records)}, nil
}

// importModeReplace imports records, overwriting existing rows on collision.
func importModeReplace(ctx context.Context, rt *Runtime, records []importRecord, parseErrors []ImportError) (*ImportOutput, error) {
	out := &ImportOutput{Errors: parseErrors, Skipped: len(parseErrors)}

	for _, rec := range records {
		s := rec.session

		byID, err := db.GetByID(ctx, rt.DB, s.ID, true)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}

		var byName *session.Session
		if s.NameNorm != nil {
			byName, err = db.GetByName(ctx, rt.DB, s.WorkspaceNorm, *s.NameNorm, false)
			if err != nil && !errors.Is(err, errors.ErrNotFound) {
				return nil, err
			}
		}

		// ID matches one row while the name matches a different one.
		if byID != nil && byName != nil && byID.ID != byName.ID {
			out.Errors = append(out.Errors, ImportError{
				Line:    rec.line,
				ID:      s.ID,
				Name:    deref(s.NameRaw),
				Code:    "AMBIGUOUS_COLLISION",
				Message: fmt.Sprintf("id %q matches an existing session but name %q matches a different one", s.ID, deref(s.NameRaw)),
			})
			out.Skipped++
			continue
		}

		switch {
		case byID != nil:
			err = db.UpdateFull(ctx, rt.DB, s)
		case byName != nil:
			s.ID = byName.ID
			err = db.UpdateFull(ctx, rt.DB, s)
		default:
			err = db.Insert(ctx, rt.DB, s)
		}
		if err != nil {
			return nil, err
		}
		out.Imported++
	}

	return out, nil
}

// importModeRename imports records, assigning a new ID or name on collision.
func importModeRename(ctx context.Context, rt *Runtime, records []importRecord, parseErrors []ImportError) (*ImportOutput, error) {
	out := &ImportOutput{Errors: parseErrors, Skipped: len(parseErrors)}

	for _, rec := range records {
		s := rec.session

		existing, err := db.GetByID(ctx, rt.DB, s.ID, true)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			if s.ID, err = generateULID(); err != nil {
				return nil, errors.NewInternal(err)
			}
		}

		if s.NameNorm != nil && s.DeletedAt == nil {
			exists, err := db.CheckNameExists(ctx, rt.DB, s.WorkspaceNorm, *s.NameNorm)
			if err != nil {
				return nil, err
			}
			if exists {
				newName, err := db.FindUniqueName(ctx, rt.DB, s.WorkspaceNorm, *s.NameNorm)
				if err != nil {
					out.Errors = append(out.Errors, ImportError{
						Line:    rec.line,
						ID:      s.ID,
						Name:    deref(s.NameRaw),
						Code:    "RENAME_FAILED",
						Message: err.Error(),
					})
					out.Skipped++
					continue
				}
				s.NameRaw = &newName
				s.NameNorm = session.NormalizeName(&newName)
			}
		}

		if err := db.Insert(ctx, rt.DB, s); err != nil {
			out.Errors = append(out.Errors, ImportError{
				Line:    rec.line,
				ID:      s.ID,
				Name:    deref(s.NameRaw),
				Code:    "INSERT_FAILED",
				Message: fmt.Sprintf("failed to insert: %v", err),
			})
			out.Skipped++
			continue
		}
		out.Imported++
	}

	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
