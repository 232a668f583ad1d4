// Package llm is the language-model boundary used to produce summaries.
package llm

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/serial"
)

// APIKeyEnv names the secret holding the Anthropic API key.
const APIKeyEnv = "ANTHROPIC_API_KEY"

// Defaults for the Anthropic model handle.
const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 1024
)

var anthropicPath = []string{"lichen", "llms", "anthropic", "Anthropic"}

// Model completes a single prompt.
type Model interface {
	Predict(ctx context.Context, prompt string) (string, error)
}

// Anthropic calls the Anthropic Messages API. An empty APIKey falls back
// to the ANTHROPIC_API_KEY environment variable at call time.
type Anthropic struct {
	ModelName string
	MaxTokens int
	APIKey    string

	client *anthropic.Client
}

// NewAnthropic returns a handle for model with default settings.
func NewAnthropic(model string) *Anthropic {
	if model == "" {
		model = DefaultModel
	}
	return &Anthropic{ModelName: model, MaxTokens: DefaultMaxTokens}
}

// Predict sends prompt as a single user turn and returns the text reply.
func (a *Anthropic) Predict(ctx context.Context, prompt string) (string, error) {
	if a.client == nil {
		var c anthropic.Client
		if a.APIKey != "" {
			c = anthropic.NewClient(option.WithAPIKey(a.APIKey))
		} else {
			c = anthropic.NewClient()
		}
		a.client = &c
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.ModelName),
		MaxTokens: int64(a.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic predict: %w", err)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(out.String()), nil
}

func (a *Anthropic) String() string {
	return fmt.Sprintf("Anthropic(model=%s)", a.ModelName)
}

// TypePath implements serial.Serializable.
func (a *Anthropic) TypePath() []string { return anthropicPath }

// ConstructorArgs implements serial.Serializable. The API key is written
// only as a secret reference.
func (a *Anthropic) ConstructorArgs() map[string]any {
	args := map[string]any{"model": a.ModelName}
	if a.APIKey != "" {
		args["api_key"] = serial.Secret{Name: APIKeyEnv, Value: a.APIKey}
	}
	return args
}

// Fields implements serial.Serializable.
func (a *Anthropic) Fields() map[string]any {
	f := map[string]any{
		"model":      a.ModelName,
		"max_tokens": a.MaxTokens,
	}
	if a.APIKey != "" {
		f["api_key"] = serial.Secret{Name: APIKeyEnv, Value: a.APIKey}
	}
	return f
}

// SetField implements serial.FieldSetter.
func (a *Anthropic) SetField(name string, value any) error {
	var err error
	switch name {
	case "model":
		a.ModelName, err = serial.ToString(name, value)
	case "max_tokens":
		a.MaxTokens, err = serial.ToInt(name, value)
	case "api_key":
		a.APIKey, err = serial.ToString(name, value)
	default:
		return serial.UndeclaredField(name)
	}
	return err
}

// Finalize implements serial.Finalizer.
func (a *Anthropic) Finalize() (any, error) {
	if a.ModelName == "" {
		return nil, errors.NewMalformedEnvelope("model", "must not be empty")
	}
	if a.MaxTokens < 1 {
		return nil, errors.NewMalformedEnvelope("max_tokens", "must be at least 1")
	}
	return a, nil
}

// Registrations returns the decoder registration for Anthropic.
func Registrations() []serial.Registration {
	return []serial.Registration{{
		Path: anthropicPath,
		New: func(kwargs map[string]any) (any, error) {
			if err := serial.CheckKeys(kwargs, "model", "api_key"); err != nil {
				return nil, err
			}
			a := NewAnthropic("")
			for _, key := range []string{"model", "api_key"} {
				if v, ok := kwargs[key]; ok {
					if err := a.SetField(key, v); err != nil {
						return nil, err
					}
				}
			}
			return a, nil
		},
	}}
}
