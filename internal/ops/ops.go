// Package ops implements the session operations shared by the CLI and the
// MCP server. Every operation loads a session row, decodes its policy
// envelope, applies the change and persists the re-encoded envelope.
package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/lichen/internal/catalog"
	"github.com/hpungsan/lichen/internal/config"
	"github.com/hpungsan/lichen/internal/db"
	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/llm"
	"github.com/hpungsan/lichen/internal/observability"
	"github.com/hpungsan/lichen/internal/retention"
	"github.com/hpungsan/lichen/internal/serial"
	"github.com/hpungsan/lichen/internal/session"
	"github.com/hpungsan/lichen/internal/summarize"
	"github.com/hpungsan/lichen/internal/tokens"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

const eventSource = "lichen.ops"

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Runtime carries the dependencies shared by every operation.
type Runtime struct {
	DB       *sql.DB
	Config   *config.Config
	Observer observability.Observer

	// DecodeOptions are passed to the envelope decoder on every load.
	DecodeOptions []serial.DecodeOption

	// Model, when set, replaces the language model of every LLM summarizer
	// after decoding and on create.
	Model llm.Model

	// locks holds one *sync.Mutex per session ID. Operations that decode,
	// change and re-encode a session hold it from read to write.
	locks sync.Map
}

// NewRuntime returns a Runtime that resolves secrets from the environment.
// A nil cfg uses defaults; a nil obs discards events.
func NewRuntime(database *sql.DB, cfg *config.Config, obs observability.Observer) *Runtime {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if obs == nil {
		obs = observability.NoOpObserver{}
	}
	return &Runtime{
		DB:            database,
		Config:        cfg,
		Observer:      obs,
		DecodeOptions: []serial.DecodeOption{serial.WithSecretsFromEnv()},
	}
}

// Address represents a validated session address.
type Address struct {
	ByID      bool
	ID        string
	Workspace string // normalized, defaulted to "default" for name-mode
	Name      string // normalized
}

// ValidateAddress validates addressing parameters and returns a normalized Address.
// Rules:
// - Must specify exactly one addressing mode: id OR (workspace + name)
// - If id provided with name or workspace → ErrAmbiguousAddressing
// - If neither id nor name provided → ErrInvalidRequest
func ValidateAddress(id, workspace, name string) (*Address, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	workspace = strings.TrimSpace(workspace)

	hasID := id != ""
	hasName := name != ""

	if hasID && (hasName || workspace != "") {
		return nil, errors.NewAmbiguousAddressing()
	}
	if !hasID && !hasName {
		return nil, errors.NewInvalidRequest("must specify either id or name")
	}

	if hasID {
		return &Address{ByID: true, ID: id}, nil
	}

	nameNorm := session.Normalize(name)
	if nameNorm == "" {
		return nil, errors.NewInvalidRequest("name must not be empty")
	}
	return &Address{
		Workspace: session.Normalize(session.WorkspaceOrDefault(workspace)),
		Name:      nameNorm,
	}, nil
}

// lookup fetches the addressed session row.
func (rt *Runtime) lookup(ctx context.Context, addr *Address, includeDeleted bool) (*session.Session, error) {
	if addr.ByID {
		return db.GetByID(ctx, rt.DB, addr.ID, includeDeleted)
	}
	return db.GetByName(ctx, rt.DB, addr.Workspace, addr.Name, includeDeleted)
}

// lockSession resolves addr, takes the session's lock and re-reads the row
// under it. The caller must call unlock once the updated state is stored.
func (rt *Runtime) lockSession(ctx context.Context, addr *Address) (s *session.Session, unlock func(), err error) {
	s, err = rt.lookup(ctx, addr, false)
	if err != nil {
		return nil, nil, err
	}
	v, _ := rt.locks.LoadOrStore(s.ID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()

	s, err = db.GetByID(ctx, rt.DB, s.ID, false)
	if err != nil {
		mu.Unlock()
		return nil, nil, err
	}
	return s, mu.Unlock, nil
}

// decodePolicy reconstructs the policy stored in s.
func (rt *Runtime) decodePolicy(state []byte) (retention.Policy, error) {
	var env serial.Envelope
	if err := json.Unmarshal(state, &env); err != nil {
		if le, ok := errors.As(err); ok {
			return nil, le
		}
		return nil, errors.NewMalformedEnvelope("", err.Error())
	}
	v, err := catalog.Decoder(rt.DecodeOptions...).Decode(&env)
	if err != nil {
		return nil, err
	}
	p, ok := v.(retention.Policy)
	if !ok {
		return nil, errors.NewMalformedEnvelope("id", "envelope does not describe a retention policy")
	}
	rt.bindModel(p)
	return p, nil
}

// bindModel swaps in rt.Model for summary policies backed by an LLM.
func (rt *Runtime) bindModel(p retention.Policy) {
	if rt.Model == nil {
		return
	}
	sp, ok := p.(*retention.Summary)
	if !ok {
		return
	}
	if ls, ok := sp.Summarizer.(*summarize.LLMSummarizer); ok {
		ls.Model = rt.Model
	}
}

// encodePolicy writes p's envelope and derived counts into s.
func encodePolicy(s *session.Session, p retention.Policy) error {
	data, err := json.Marshal(catalog.Encoder().Encode(p))
	if err != nil {
		return errors.NewInternal(err)
	}
	s.State = data
	s.Policy = string(p.Kind())
	s.MessageCount = p.History().Len()
	s.TokensEstimate = tokens.EstimateText(p.Render().Text, tokens.DefaultMultiplier)
	return nil
}

// surface keeps LichenErrors and maps anything else (collaborator failures)
// to INTERNAL for transport.
func surface(err error) error {
	if err == nil {
		return nil
	}
	if le, ok := errors.As(err); ok {
		return le
	}
	return errors.NewInternal(err)
}

func (rt *Runtime) emit(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	observability.Emit(ctx, rt.Observer, typ, level, eventSource, data)
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// SessionRef identifies a session the way callers addressed it.
// Either (Name + Workspace) or ID is populated.
type SessionRef struct {
	Name      string `json:"name,omitempty"`
	Workspace string `json:"workspace,omitempty"`
	ID        string `json:"id,omitempty"`
}

// BuildSessionRef prefers the name form when the session is named.
func BuildSessionRef(s *session.Session) SessionRef {
	if s.NameRaw != nil {
		return SessionRef{Name: *s.NameRaw, Workspace: s.WorkspaceRaw}
	}
	return SessionRef{ID: s.ID}
}
