package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/session"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.LichenError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

const sessionColumns = `id, workspace_raw, workspace_norm, name_raw, name_norm,
	policy, state_json, message_count, tokens_estimate,
	created_at, updated_at, deleted_at`

// Insert stores a new session. DeletedAt is preserved so imports can carry
// soft-deleted rows.
func Insert(ctx context.Context, q Querier, s *session.Session) error {
	var deletedAt sql.NullInt64
	if s.DeletedAt != nil {
		deletedAt = sql.NullInt64{Int64: *s.DeletedAt, Valid: true}
	}

	query := `INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		s.ID, s.WorkspaceRaw, s.WorkspaceNorm, toNullString(s.NameRaw), toNullString(s.NameNorm),
		s.Policy, string(s.State), s.MessageCount, s.TokensEstimate,
		s.CreatedAt, s.UpdatedAt, deletedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}

	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetByID retrieves a session by its ULID.
// If includeDeleted is false, soft-deleted sessions are excluded.
func GetByID(ctx context.Context, q Querier, id string, includeDeleted bool) (*session.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}

	s, err := scanSession(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return s, nil
}

// GetByName retrieves a session by normalized workspace and name.
// With includeDeleted, an active row is preferred over soft-deleted ones.
func GetByName(ctx context.Context, q Querier, workspaceNorm, nameNorm string, includeDeleted bool) (*session.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE workspace_norm = ? AND name_norm = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	} else {
		query += " ORDER BY (deleted_at IS NULL) DESC, updated_at DESC LIMIT 1"
	}

	s, err := scanSession(q.QueryRowContext(ctx, query, workspaceNorm, nameNorm))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(workspaceNorm + "/" + nameNorm)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return s, nil
}

// CheckNameExists checks if an active session with the given name exists.
func CheckNameExists(ctx context.Context, q Querier, workspaceNorm, nameNorm string) (bool, error) {
	query := `
		SELECT 1 FROM sessions
		WHERE workspace_norm = ? AND name_norm = ? AND deleted_at IS NULL
		LIMIT 1
	`

	var exists int
	err := q.QueryRowContext(ctx, query, workspaceNorm, nameNorm).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// UpdateState writes a session's serialized policy and derived counts.
// Sets updated_at to the current timestamp. Identity fields are unchanged.
func UpdateState(ctx context.Context, q Querier, s *session.Session) error {
	now := time.Now().Unix()

	query := `
		UPDATE sessions
		SET state_json = ?, message_count = ?, tokens_estimate = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := q.ExecContext(ctx, query, string(s.State), s.MessageCount, s.TokensEstimate, now, s.ID)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := expectRow(result, s.ID); err != nil {
		return err
	}

	s.UpdatedAt = now
	return nil
}

// UpdateFull overwrites every column except id. Used by import replace.
func UpdateFull(ctx context.Context, q Querier, s *session.Session) error {
	var deletedAt sql.NullInt64
	if s.DeletedAt != nil {
		deletedAt = sql.NullInt64{Int64: *s.DeletedAt, Valid: true}
	}

	query := `
		UPDATE sessions
		SET workspace_raw = ?, workspace_norm = ?, name_raw = ?, name_norm = ?,
			policy = ?, state_json = ?, message_count = ?, tokens_estimate = ?,
			created_at = ?, updated_at = ?, deleted_at = ?
		WHERE id = ?
	`

	result, err := q.ExecContext(ctx, query,
		s.WorkspaceRaw, s.WorkspaceNorm, toNullString(s.NameRaw), toNullString(s.NameNorm),
		s.Policy, string(s.State), s.MessageCount, s.TokensEstimate,
		s.CreatedAt, s.UpdatedAt, deletedAt,
		s.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return expectRow(result, s.ID)
}

// SoftDelete marks a session as deleted by setting deleted_at.
func SoftDelete(ctx context.Context, q Querier, id string) error {
	query := `UPDATE sessions SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	result, err := q.ExecContext(ctx, query, time.Now().Unix(), id)
	if err != nil {
		return errors.NewInternal(err)
	}
	return expectRow(result, id)
}

// ListByWorkspace returns summaries ordered by updated_at DESC along with
// the total number of matching rows.
func ListByWorkspace(ctx context.Context, q Querier, workspaceNorm string, limit, offset int, includeDeleted bool) ([]session.Summary, int, error) {
	where := "WHERE workspace_norm = ?"
	if !includeDeleted {
		where += " AND deleted_at IS NULL"
	}

	var total int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions "+where, workspaceNorm).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions ` + where +
		` ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := q.QueryContext(ctx, query, workspaceNorm, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var summaries []session.Summary
	for rows.Next() {
		s, err := ScanSessionFromRows(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		summaries = append(summaries, s.ToSummary())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	return summaries, total, nil
}

// PurgeDeleted permanently removes soft-deleted sessions, optionally limited
// to a workspace and to rows deleted more than olderThanDays ago.
func PurgeDeleted(ctx context.Context, q Querier, workspace *string, olderThanDays *int) (int, error) {
	query := "DELETE FROM sessions WHERE deleted_at IS NOT NULL"
	var args []any

	if workspace != nil {
		query += " AND workspace_norm = ?"
		args = append(args, session.Normalize(*workspace))
	}
	if olderThanDays != nil {
		cutoff := time.Now().Add(-time.Duration(*olderThanDays) * 24 * time.Hour).Unix()
		query += " AND deleted_at < ?"
		args = append(args, cutoff)
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

// StreamForExport returns rows for export ordered by created_at.
// The caller must close the rows.
func StreamForExport(ctx context.Context, q Querier, workspace *string, includeDeleted bool) (*sql.Rows, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	var args []any

	if workspace != nil {
		query += " AND workspace_norm = ?"
		args = append(args, session.Normalize(*workspace))
	}
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return rows, nil
}

// FindUniqueName returns "base-2", "base-3", ... for the first name not taken
// by an active session in the workspace.
func FindUniqueName(ctx context.Context, q Querier, workspaceNorm, baseName string) (string, error) {
	const maxAttempts = 100
	for i := 2; i <= maxAttempts+1; i++ {
		candidate := fmt.Sprintf("%s-%d", baseName, i)
		exists, err := CheckNameExists(ctx, q, workspaceNorm, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %q after %d attempts", baseName, maxAttempts)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		s         session.Session
		nameRaw   sql.NullString
		nameNorm  sql.NullString
		state     string
		deletedAt sql.NullInt64
	)

	err := row.Scan(
		&s.ID, &s.WorkspaceRaw, &s.WorkspaceNorm, &nameRaw, &nameNorm,
		&s.Policy, &state, &s.MessageCount, &s.TokensEstimate,
		&s.CreatedAt, &s.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	s.NameRaw = fromNullString(nameRaw)
	s.NameNorm = fromNullString(nameNorm)
	s.State = []byte(state)
	if deletedAt.Valid {
		s.DeletedAt = &deletedAt.Int64
	}

	return &s, nil
}

// ScanSessionFromRows scans the current row of a StreamForExport result.
func ScanSessionFromRows(rows *sql.Rows) (*session.Session, error) {
	return scanSession(rows)
}

func expectRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
