package retention

import (
	"context"

	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/message"
	"github.com/hpungsan/lichen/internal/serial"
	"github.com/hpungsan/lichen/internal/tokens"
)

var tokenBudgetPath = []string{"lichen", "memory", "token_buffer", "ConversationTokenBufferMemory"}

// DefaultTokenLimit is the token limit used when none is configured.
const DefaultTokenLimit = 2000

// TokenBudget keeps the longest suffix of the transcript that fits in
// Limit tokens. Trimming happens when a turn is saved and removes the
// oldest exchange first. The most recent exchange is always kept, even
// when it alone exceeds Limit.
type TokenBudget struct {
	base
	Limit   int
	Counter tokens.Counter
}

// NewTokenBudget returns a token-budget policy. A nil counter uses the
// word-based estimator.
func NewTokenBudget(cfg Config, limit int, counter tokens.Counter) (*TokenBudget, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	if counter == nil {
		counter = tokens.NewWordEstimator()
	}
	return &TokenBudget{base: newBase(cfg), Limit: limit, Counter: counter}, nil
}

func (p *TokenBudget) Kind() Kind { return KindTokenBudget }

func (p *TokenBudget) RecordTurn(ctx context.Context, inputs, outputs map[string]string) error {
	in, out, err := p.resolveTurn(inputs, outputs)
	if err != nil {
		return err
	}
	return p.SaveTurn(ctx, in, out)
}

// SaveTurn appends the exchange and trims. A counter error leaves the
// transcript untrimmed.
func (p *TokenBudget) SaveTurn(ctx context.Context, input, output string) error {
	p.appendTurn(input, output)
	return p.prune(ctx)
}

func (p *TokenBudget) prune(ctx context.Context) error {
	msgs := p.history.Messages()
	total, err := p.Counter.Count(ctx, msgs)
	if err != nil {
		return err
	}
	if total <= p.Limit {
		return nil
	}

	kept := msgs
	for total > p.Limit {
		drop := 1
		if isPair(kept) {
			drop = 2
		}
		if len(kept)-drop < 2 {
			break
		}
		kept = kept[drop:]
		if total, err = p.Counter.Count(ctx, kept); err != nil {
			return err
		}
	}

	if len(kept) == len(msgs) {
		return nil
	}
	p.history.Clear()
	for _, m := range kept {
		p.history.AddMessage(m)
	}
	return nil
}

// isPair reports whether msgs starts with a human message answered by an AI message.
func isPair(msgs []*message.Message) bool {
	return len(msgs) >= 2 && msgs[0].Role() == message.RoleHuman && msgs[1].Role() == message.RoleAI
}

func (p *TokenBudget) Render() Rendered {
	return p.render(p.history.Messages())
}

func (p *TokenBudget) Clear() { p.history.Clear() }

func (p *TokenBudget) TypePath() []string { return tokenBudgetPath }

func (p *TokenBudget) ConstructorArgs() map[string]any {
	return map[string]any{
		"max_token_limit": p.Limit,
		"counter":         p.Counter,
	}
}

func (p *TokenBudget) Fields() map[string]any {
	f := p.fields()
	f["max_token_limit"] = p.Limit
	f["counter"] = p.Counter
	return f
}

func (p *TokenBudget) SetField(name string, value any) error {
	if ok, err := p.setField(name, value); ok {
		return err
	}
	switch name {
	case "max_token_limit":
		limit, err := serial.ToInt(name, value)
		if err != nil {
			return err
		}
		p.Limit = limit
	case "counter":
		c, err := toCounter(name, value)
		if err != nil {
			return err
		}
		p.Counter = c
	default:
		return serial.UndeclaredField(name)
	}
	return nil
}

func (p *TokenBudget) Finalize() (any, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.Limit < 1 {
		return nil, errors.NewMalformedEnvelope("max_token_limit", "must be at least 1")
	}
	if p.Counter == nil {
		return nil, errors.NewMalformedEnvelope("counter", "is required")
	}
	return p, nil
}
