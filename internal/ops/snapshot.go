package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/lichen/internal/db"
	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/observability"
	"github.com/hpungsan/lichen/internal/serial"
	"github.com/hpungsan/lichen/internal/session"
)

// maxSnapshotBytes bounds a snapshot file read by Restore.
const maxSnapshotBytes = 64 << 20

// SnapshotExts are the file extensions accepted for snapshots.
var SnapshotExts = []string{".json", ".cbor", ".yaml", ".yml"}

// SnapshotInput contains parameters for the Snapshot operation.
type SnapshotInput struct {
	ID        string
	Workspace string
	Name      string
	Path      string // required
	Format    string // json, cbor, yaml; default: from the path extension
}

// SnapshotOutput contains the result of the Snapshot operation.
type SnapshotOutput struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Format string `json:"format"`
	Bytes  int    `json:"bytes"`
}

// Snapshot writes one session's policy envelope to a file.
func Snapshot(ctx context.Context, rt *Runtime, input SnapshotInput) (*SnapshotOutput, error) {
	format, err := snapshotFormat(input.Format, input.Path)
	if err != nil {
		return nil, err
	}
	if err := ValidatePath(input.Path, PathCheckWrite, rt.Config, SnapshotExts...); err != nil {
		return nil, err
	}

	addr, err := ValidateAddress(input.ID, input.Workspace, input.Name)
	if err != nil {
		return nil, err
	}
	s, err := rt.lookup(ctx, addr, false)
	if err != nil {
		return nil, err
	}

	var env serial.Envelope
	if err := json.Unmarshal(s.State, &env); err != nil {
		return nil, surface(err)
	}
	data, err := serial.Marshal(&env, format)
	if err != nil {
		return nil, surface(err)
	}

	err = writeFileAtomic(input.Path, func(w *bufio.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return nil, surface(err)
	}

	rt.emit(ctx, observability.EventSnapshotWritten, observability.LevelInfo, map[string]any{
		"session_id": s.ID,
		"path":       input.Path,
		"format":     string(format),
	})

	return &SnapshotOutput{ID: s.ID, Path: input.Path, Format: string(format), Bytes: len(data)}, nil
}

// RestoreInput contains parameters for the Restore operation.
type RestoreInput struct {
	Path      string  // required
	Format    string  // default: from the path extension
	Workspace string  // default: "default"
	Name      *string // optional
}

// RestoreOutput contains the result of the Restore operation.
type RestoreOutput struct {
	ID           string     `json:"id"`
	Policy       string     `json:"policy"`
	MessageCount int        `json:"message_count"`
	Session      SessionRef `json:"session"`
}

// Restore reads a snapshot, checks that it decodes into a retention
// policy and stores it as a new session.
func Restore(ctx context.Context, rt *Runtime, input RestoreInput) (*RestoreOutput, error) {
	format, err := snapshotFormat(input.Format, input.Path)
	if err != nil {
		return nil, err
	}
	if err := ValidatePath(input.Path, PathCheckRead, rt.Config, SnapshotExts...); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		return nil, surface(err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxSnapshotBytes+1))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if len(data) > maxSnapshotBytes {
		return nil, errors.NewInvalidRequest("snapshot file is too large")
	}

	env, err := serial.Unmarshal(data, format)
	if err != nil {
		return nil, surface(err)
	}
	state, err := json.Marshal(env)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	policy, err := rt.decodePolicy(state)
	if err != nil {
		return nil, err
	}

	workspace := session.WorkspaceOrDefault(input.Workspace)
	var nameNorm *string
	if input.Name != nil {
		if nameNorm = session.NormalizeName(input.Name); nameNorm == nil {
			return nil, errors.NewInvalidRequest("name must not be empty (omit it for unnamed sessions)")
		}
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := time.Now().Unix()
	s := &session.Session{
		ID:            id,
		WorkspaceRaw:  workspace,
		WorkspaceNorm: session.Normalize(workspace),
		NameRaw:       input.Name,
		NameNorm:      nameNorm,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := encodePolicy(s, policy); err != nil {
		return nil, err
	}
	if err := db.Insert(ctx, rt.DB, s); err != nil {
		if err == db.ErrUniqueConstraint && input.Name != nil {
			return nil, errors.NewNameAlreadyExists(workspace, *input.Name)
		}
		return nil, err
	}

	rt.emit(ctx, observability.EventSessionRestored, observability.LevelInfo, map[string]any{
		"session_id": s.ID,
		"path":       input.Path,
		"policy":     s.Policy,
	})

	return &RestoreOutput{
		ID:           s.ID,
		Policy:       s.Policy,
		MessageCount: s.MessageCount,
		Session:      BuildSessionRef(s),
	}, nil
}

// snapshotFormat picks the explicit format, else the one named by the
// path's extension.
func snapshotFormat(explicit, path string) (serial.Format, error) {
	if explicit != "" {
		return serial.ParseFormat(explicit)
	}
	if path == "" {
		return "", errors.NewInvalidRequest("path is required")
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return serial.ParseFormat(ext)
}
