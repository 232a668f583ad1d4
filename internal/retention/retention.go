// Package retention decides which part of a transcript is exposed as the
// current memory of a conversation.
//
// Four policies are provided: Buffer keeps everything, Window exposes the
// last k exchanges, TokenBudget trims the oldest exchanges once a token
// limit is exceeded, and Summary folds the transcript into a running
// summary whenever it grows past its limit.
//
// Policies are not safe for concurrent use.
package retention

import (
	"context"
	"fmt"

	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/message"
	"github.com/hpungsan/lichen/internal/resolve"
	"github.com/hpungsan/lichen/internal/serial"
	"github.com/hpungsan/lichen/internal/summarize"
	"github.com/hpungsan/lichen/internal/tokens"
	"github.com/hpungsan/lichen/internal/transcript"
)

// Kind names a policy variant.
type Kind string

const (
	KindBuffer      Kind = "buffer"
	KindWindow      Kind = "window"
	KindTokenBudget Kind = "token_budget"
	KindSummary     Kind = "summary"
)

// ParseKind validates a policy kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindBuffer, KindWindow, KindTokenBudget, KindSummary:
		return k, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown policy %q: must be one of buffer, window, token_budget, summary", s))
}

// Config holds the settings shared by every policy.
type Config struct {
	HumanPrefix    string
	AIPrefix       string
	MemoryKey      string
	InputKey       string // empty: inferred per turn
	OutputKey      string // empty: inferred per turn
	ReturnMessages bool
}

// DefaultConfig returns the default prefixes and memory key.
func DefaultConfig() Config {
	return Config{
		HumanPrefix: "Human",
		AIPrefix:    "AI",
		MemoryKey:   "history",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HumanPrefix == "" {
		c.HumanPrefix = d.HumanPrefix
	}
	if c.AIPrefix == "" {
		c.AIPrefix = d.AIPrefix
	}
	if c.MemoryKey == "" {
		c.MemoryKey = d.MemoryKey
	}
	return c
}

// Rendered is the exposed memory of a policy.
type Rendered struct {
	Key            string
	Messages       []*message.Message
	Text           string
	ReturnMessages bool
}

// Variables returns the memory under its key, as messages or as text
// depending on the policy's ReturnMessages setting.
func (r Rendered) Variables() map[string]any {
	if r.ReturnMessages {
		return map[string]any{r.Key: r.Messages}
	}
	return map[string]any{r.Key: r.Text}
}

// Policy is implemented by every retention variant.
type Policy interface {
	serial.Serializable

	Kind() Kind
	Config() Config
	History() *transcript.History

	// RecordTurn resolves the turn's input and output text and saves them.
	// Resolver errors are returned unchanged and nothing is recorded.
	RecordTurn(ctx context.Context, inputs, outputs map[string]string) error
	// SaveTurn appends a human then an AI message and applies the
	// variant's trimming rule. Collaborator errors are returned unchanged.
	SaveTurn(ctx context.Context, input, output string) error
	// Render returns the exposed memory. It has no side effects.
	Render() Rendered
	// Clear empties the transcript and any derived state.
	Clear()
	MemoryVariables() []string
}

// Options carries the variant-specific settings for Build.
type Options struct {
	K          int
	Limit      int
	Counter    tokens.Counter
	Summarizer summarize.Summarizer
}

// Build constructs a policy by kind.
func Build(kind Kind, cfg Config, opts Options) (Policy, error) {
	switch kind {
	case KindBuffer:
		return NewBuffer(cfg), nil
	case KindWindow:
		return NewWindow(cfg, opts.K)
	case KindTokenBudget:
		return NewTokenBudget(cfg, opts.Limit, opts.Counter)
	case KindSummary:
		return NewSummary(cfg, opts.Limit, opts.Summarizer, opts.Counter)
	}
	return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown policy %q", kind))
}

// base holds the transcript and shared configuration.
type base struct {
	cfg     Config
	history *transcript.History
}

func newBase(cfg Config) base {
	return base{cfg: cfg.withDefaults(), history: transcript.New()}
}

func (b *base) Config() Config { return b.cfg }

func (b *base) History() *transcript.History { return b.history }

func (b *base) MemoryVariables() []string { return []string{b.cfg.MemoryKey} }

func (b *base) resolveTurn(inputs, outputs map[string]string) (string, string, error) {
	return resolve.Turn(inputs, outputs, resolve.Keys{
		MemoryVariables: b.MemoryVariables(),
		InputKey:        b.cfg.InputKey,
		OutputKey:       b.cfg.OutputKey,
	})
}

func (b *base) appendTurn(input, output string) {
	b.history.AddUserMessage(input)
	b.history.AddAIMessage(output)
}

func (b *base) render(msgs []*message.Message) Rendered {
	return Rendered{
		Key:            b.cfg.MemoryKey,
		Messages:       msgs,
		Text:           message.BufferString(msgs, b.cfg.HumanPrefix, b.cfg.AIPrefix),
		ReturnMessages: b.cfg.ReturnMessages,
	}
}

func (b *base) fields() map[string]any {
	return map[string]any{
		"human_prefix":    b.cfg.HumanPrefix,
		"ai_prefix":       b.cfg.AIPrefix,
		"memory_key":      b.cfg.MemoryKey,
		"input_key":       optional(b.cfg.InputKey),
		"output_key":      optional(b.cfg.OutputKey),
		"return_messages": b.cfg.ReturnMessages,
		"chat_memory":     b.history,
	}
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// setField applies a shared field. ok is false when name is not shared.
func (b *base) setField(name string, value any) (ok bool, err error) {
	switch name {
	case "human_prefix":
		b.cfg.HumanPrefix, err = serial.ToString(name, value)
	case "ai_prefix":
		b.cfg.AIPrefix, err = serial.ToString(name, value)
	case "memory_key":
		b.cfg.MemoryKey, err = serial.ToString(name, value)
	case "input_key":
		b.cfg.InputKey, err = serial.ToOptionalString(name, value)
	case "output_key":
		b.cfg.OutputKey, err = serial.ToOptionalString(name, value)
	case "return_messages":
		b.cfg.ReturnMessages, err = serial.ToBool(name, value)
	case "chat_memory":
		h, isHistory := value.(*transcript.History)
		if !isHistory {
			return true, errors.NewMalformedEnvelope(name, fmt.Sprintf("expected a transcript, got %T", value))
		}
		b.history = h
	default:
		return false, nil
	}
	return true, err
}

func (b *base) validate() error {
	if b.cfg.MemoryKey == "" {
		return errors.NewMalformedEnvelope("memory_key", "must not be empty")
	}
	if b.history == nil {
		return errors.NewMalformedEnvelope("chat_memory", "is required")
	}
	return nil
}

func checkLimit(limit int) error {
	if limit < 1 {
		return errors.NewInvalidRequest("max_token_limit must be at least 1")
	}
	return nil
}
