// Package tokens counts the tokens a sequence of messages would occupy in
// a model context.
package tokens

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/message"
	"github.com/hpungsan/lichen/internal/serial"
)

// DefaultMultiplier converts a word count into an approximate token count.
const DefaultMultiplier = 1.3

var wordEstimatorPath = []string{"lichen", "tokens", "WordEstimator"}

// Counter counts tokens. Implementations should be deterministic.
type Counter interface {
	Count(ctx context.Context, msgs []*message.Message) (int, error)
}

// CounterFunc adapts a function to Counter. It is not registered for
// decoding, so it encodes as a display-only envelope.
type CounterFunc func(ctx context.Context, msgs []*message.Message) (int, error)

func (f CounterFunc) Count(ctx context.Context, msgs []*message.Message) (int, error) {
	return f(ctx, msgs)
}

func (f CounterFunc) String() string { return "CounterFunc" }

// EstimateText estimates tokens in text with a word-based heuristic.
func EstimateText(text string, multiplier float64) int {
	words := strings.Fields(strings.TrimSpace(text))
	return int(math.Ceil(float64(len(words)) * multiplier))
}

// WordEstimator estimates tokens per message from its word count.
type WordEstimator struct {
	Multiplier float64
}

// NewWordEstimator returns an estimator using DefaultMultiplier.
func NewWordEstimator() *WordEstimator {
	return &WordEstimator{Multiplier: DefaultMultiplier}
}

// Count sums the estimate of every message's content.
func (w *WordEstimator) Count(_ context.Context, msgs []*message.Message) (int, error) {
	total := 0
	for _, m := range msgs {
		total += EstimateText(m.Content(), w.Multiplier)
	}
	return total, nil
}

func (w *WordEstimator) String() string {
	return fmt.Sprintf("WordEstimator(multiplier=%g)", w.Multiplier)
}

// TypePath implements serial.Serializable.
func (w *WordEstimator) TypePath() []string { return wordEstimatorPath }

// ConstructorArgs implements serial.Serializable.
func (w *WordEstimator) ConstructorArgs() map[string]any {
	return map[string]any{"multiplier": w.Multiplier}
}

// Fields implements serial.Serializable.
func (w *WordEstimator) Fields() map[string]any {
	return map[string]any{"multiplier": w.Multiplier}
}

// SetField implements serial.FieldSetter.
func (w *WordEstimator) SetField(name string, value any) error {
	if name != "multiplier" {
		return serial.UndeclaredField(name)
	}
	f, err := serial.ToFloat(name, value)
	if err != nil {
		return err
	}
	w.Multiplier = f
	return nil
}

// Finalize implements serial.Finalizer.
func (w *WordEstimator) Finalize() (any, error) {
	if w.Multiplier <= 0 {
		return nil, errors.NewMalformedEnvelope("multiplier", "must be positive")
	}
	return w, nil
}

// Registrations returns the decoder registration for WordEstimator.
func Registrations() []serial.Registration {
	return []serial.Registration{{
		Path: wordEstimatorPath,
		New: func(kwargs map[string]any) (any, error) {
			if err := serial.CheckKeys(kwargs, "multiplier"); err != nil {
				return nil, err
			}
			w := NewWordEstimator()
			if v, ok := kwargs["multiplier"]; ok {
				if err := w.SetField("multiplier", v); err != nil {
					return nil, err
				}
			}
			return w, nil
		},
	}}
}
