// Package summarize folds evicted conversation lines into a running summary.
package summarize

import (
	"context"
	"fmt"

	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/llm"
	"github.com/hpungsan/lichen/internal/message"
	"github.com/hpungsan/lichen/internal/prompt"
	"github.com/hpungsan/lichen/internal/serial"
)

var llmSummarizerPath = []string{"lichen", "memory", "summary", "LLMSummarizer"}

// Summarizer produces a new summary from the existing one and the messages
// being evicted. Errors are returned as-is to the caller of RecordTurn.
type Summarizer interface {
	Summarize(ctx context.Context, existing string, msgs []*message.Message) (string, error)
}

// Func adapts a function to Summarizer. It is not registered for decoding.
type Func func(ctx context.Context, existing string, msgs []*message.Message) (string, error)

func (f Func) Summarize(ctx context.Context, existing string, msgs []*message.Message) (string, error) {
	return f(ctx, existing, msgs)
}

func (f Func) String() string { return "summarize.Func" }

// LLMSummarizer formats Prompt with the current summary and the new lines
// and asks Model for the result.
type LLMSummarizer struct {
	Model       llm.Model
	Prompt      *prompt.Template
	HumanPrefix string
	AIPrefix    string
}

// NewLLMSummarizer returns a summarizer using the default summary prompt.
func NewLLMSummarizer(model llm.Model) *LLMSummarizer {
	return &LLMSummarizer{
		Model:       model,
		Prompt:      prompt.DefaultSummary(),
		HumanPrefix: "Human",
		AIPrefix:    "AI",
	}
}

// Summarize implements Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, existing string, msgs []*message.Message) (string, error) {
	text, err := s.Prompt.Format(map[string]string{
		"summary":   existing,
		"new_lines": message.BufferString(msgs, s.HumanPrefix, s.AIPrefix),
	})
	if err != nil {
		return "", err
	}
	return s.Model.Predict(ctx, text)
}

func (s *LLMSummarizer) String() string {
	return fmt.Sprintf("LLMSummarizer(model=%v)", s.Model)
}

// TypePath implements serial.Serializable.
func (s *LLMSummarizer) TypePath() []string { return llmSummarizerPath }

// ConstructorArgs implements serial.Serializable.
func (s *LLMSummarizer) ConstructorArgs() map[string]any {
	return map[string]any{"llm": s.Model}
}

// Fields implements serial.Serializable.
func (s *LLMSummarizer) Fields() map[string]any {
	return map[string]any{
		"llm":          s.Model,
		"prompt":       s.Prompt,
		"human_prefix": s.HumanPrefix,
		"ai_prefix":    s.AIPrefix,
	}
}

// SetField implements serial.FieldSetter.
func (s *LLMSummarizer) SetField(name string, value any) error {
	var err error
	switch name {
	case "llm":
		m, ok := value.(llm.Model)
		if !ok {
			return errors.NewMalformedEnvelope(name, fmt.Sprintf("expected a language model, got %T", value))
		}
		s.Model = m
	case "prompt":
		p, ok := value.(*prompt.Template)
		if !ok {
			return errors.NewMalformedEnvelope(name, fmt.Sprintf("expected a prompt template, got %T", value))
		}
		s.Prompt = p
	case "human_prefix":
		s.HumanPrefix, err = serial.ToString(name, value)
	case "ai_prefix":
		s.AIPrefix, err = serial.ToString(name, value)
	default:
		return serial.UndeclaredField(name)
	}
	return err
}

// Finalize implements serial.Finalizer.
func (s *LLMSummarizer) Finalize() (any, error) {
	if s.Model == nil {
		return nil, errors.NewMalformedEnvelope("llm", "is required")
	}
	return s, nil
}

// Registrations returns the decoder registration for LLMSummarizer.
func Registrations() []serial.Registration {
	return []serial.Registration{{
		Path: llmSummarizerPath,
		New: func(kwargs map[string]any) (any, error) {
			if err := serial.CheckKeys(kwargs, "llm"); err != nil {
				return nil, err
			}
			s := NewLLMSummarizer(nil)
			if v, ok := kwargs["llm"]; ok {
				if err := s.SetField("llm", v); err != nil {
					return nil, err
				}
			}
			return s, nil
		},
	}}
}
