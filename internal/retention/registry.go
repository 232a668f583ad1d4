package retention

import (
	"fmt"
	"slices"

	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/serial"
	"github.com/hpungsan/lichen/internal/tokens"
)

// Registrations returns the decoder registrations for every policy.
// Constructors build the default state from kwargs; the decoder then
// applies the obj snapshot through SetField.
func Registrations() []serial.Registration {
	return []serial.Registration{
		{
			Path: bufferPath,
			New: func(kwargs map[string]any) (any, error) {
				if err := serial.CheckKeys(kwargs); err != nil {
					return nil, err
				}
				return NewBuffer(DefaultConfig()), nil
			},
		},
		{
			Path: windowPath,
			New: func(kwargs map[string]any) (any, error) {
				if err := serial.CheckKeys(kwargs, "k"); err != nil {
					return nil, err
				}
				p := &Window{base: newBase(DefaultConfig()), K: DefaultK}
				if err := applyKwargs(p, kwargs); err != nil {
					return nil, err
				}
				return p, nil
			},
		},
		{
			Path: tokenBudgetPath,
			New: func(kwargs map[string]any) (any, error) {
				if err := serial.CheckKeys(kwargs, "max_token_limit", "counter"); err != nil {
					return nil, err
				}
				p := &TokenBudget{base: newBase(DefaultConfig()), Limit: DefaultTokenLimit, Counter: tokens.NewWordEstimator()}
				if err := applyKwargs(p, kwargs); err != nil {
					return nil, err
				}
				return p, nil
			},
		},
		{
			Path: summaryPath,
			New: func(kwargs map[string]any) (any, error) {
				if err := serial.CheckKeys(kwargs, "max_token_limit", "summarizer", "counter"); err != nil {
					return nil, err
				}
				p := &Summary{base: newBase(DefaultConfig()), Limit: DefaultTokenLimit, Counter: tokens.NewWordEstimator()}
				if err := applyKwargs(p, kwargs); err != nil {
					return nil, err
				}
				return p, nil
			},
		},
	}
}

func applyKwargs(p serial.FieldSetter, kwargs map[string]any) error {
	for _, key := range sortedKeys(kwargs) {
		if err := p.SetField(key, kwargs[key]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func toCounter(name string, value any) (tokens.Counter, error) {
	c, ok := value.(tokens.Counter)
	if !ok {
		return nil, errors.NewMalformedEnvelope(name, fmt.Sprintf("expected a token counter, got %T", value))
	}
	return c, nil
}

var (
	_ Policy = (*Buffer)(nil)
	_ Policy = (*Window)(nil)
	_ Policy = (*TokenBudget)(nil)
	_ Policy = (*Summary)(nil)
)
