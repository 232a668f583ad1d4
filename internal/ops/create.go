package ops

import (
	"context"
	"time"

	"github.com/hpungsan/lichen/internal/db"
	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/llm"
	"github.com/hpungsan/lichen/internal/observability"
	"github.com/hpungsan/lichen/internal/retention"
	"github.com/hpungsan/lichen/internal/session"
	"github.com/hpungsan/lichen/internal/summarize"
)

// CreateInput contains parameters for the Create operation.
// Zero values fall back to config defaults.
type CreateInput struct {
	Workspace string  // default: "default"
	Name      *string // optional; unique per workspace among live sessions
	Policy    string  // default: config default_policy

	K             int // window
	MaxTokenLimit int // token_budget, summary

	HumanPrefix    string
	AIPrefix       string
	MemoryKey      string
	InputKey       string
	OutputKey      string
	ReturnMessages bool
}

// CreateOutput contains the result of the Create operation.
type CreateOutput struct {
	ID      string     `json:"id"`
	Policy  string     `json:"policy"`
	Session SessionRef `json:"session"`
}

// Create builds a new, empty policy and stores it as a session.
func Create(ctx context.Context, rt *Runtime, input CreateInput) (*CreateOutput, error) {
	cfg := rt.Config

	policyName := input.Policy
	if policyName == "" {
		policyName = cfg.DefaultPolicy
	}
	kind, err := retention.ParseKind(policyName)
	if err != nil {
		return nil, err
	}

	workspace := session.WorkspaceOrDefault(input.Workspace)
	workspaceNorm := session.Normalize(workspace)

	var nameRaw, nameNorm *string
	if input.Name != nil {
		nameNorm = session.NormalizeName(input.Name)
		if nameNorm == nil {
			return nil, errors.NewInvalidRequest("name must not be empty (omit it for unnamed sessions)")
		}
		nameRaw = input.Name
	}

	pcfg := retention.Config{
		HumanPrefix:    input.HumanPrefix,
		AIPrefix:       input.AIPrefix,
		MemoryKey:      input.MemoryKey,
		InputKey:       input.InputKey,
		OutputKey:      input.OutputKey,
		ReturnMessages: input.ReturnMessages,
	}
	opts := retention.Options{
		K:     firstPositive(input.K, cfg.WindowK),
		Limit: firstPositive(input.MaxTokenLimit, cfg.MaxTokenLimit),
	}
	if kind == retention.KindSummary {
		opts.Summarizer = newSummarizer(cfg.SummaryModel, cfg.SummaryMaxTokens, pcfg)
	}

	policy, err := retention.Build(kind, pcfg, opts)
	if err != nil {
		return nil, err
	}
	rt.bindModel(policy)

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := time.Now().Unix()

	s := &session.Session{
		ID:            id,
		WorkspaceRaw:  workspace,
		WorkspaceNorm: workspaceNorm,
		NameRaw:       nameRaw,
		NameNorm:      nameNorm,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := encodePolicy(s, policy); err != nil {
		return nil, err
	}

	if err := db.Insert(ctx, rt.DB, s); err != nil {
		if err == db.ErrUniqueConstraint && nameRaw != nil {
			return nil, errors.NewNameAlreadyExists(workspace, *nameRaw)
		}
		return nil, err
	}

	rt.emit(ctx, observability.EventSessionCreated, observability.LevelInfo, map[string]any{
		"session_id": s.ID,
		"workspace":  s.WorkspaceNorm,
		"policy":     s.Policy,
	})

	return &CreateOutput{
		ID:      s.ID,
		Policy:  s.Policy,
		Session: BuildSessionRef(s),
	}, nil
}

func newSummarizer(model string, maxTokens int, pcfg retention.Config) *summarize.LLMSummarizer {
	m := llm.NewAnthropic(model)
	if maxTokens > 0 {
		m.MaxTokens = maxTokens
	}
	s := summarize.NewLLMSummarizer(m)
	if pcfg.HumanPrefix != "" {
		s.HumanPrefix = pcfg.HumanPrefix
	}
	if pcfg.AIPrefix != "" {
		s.AIPrefix = pcfg.AIPrefix
	}
	return s
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
