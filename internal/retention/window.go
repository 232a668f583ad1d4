package retention

import (
	"context"
	"fmt"

	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/serial"
)

var windowPath = []string{"lichen", "memory", "buffer_window", "ConversationBufferWindowMemory"}

// DefaultK is the window size used when none is configured.
const DefaultK = 5

// Window exposes the last K exchanges. The transcript itself is kept in
// full, so widening K later exposes older turns again.
type Window struct {
	base
	K int
}

// NewWindow returns a sliding-window policy. k must be at least 1.
func NewWindow(cfg Config, k int) (*Window, error) {
	if k < 1 {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("k must be at least 1, got %d", k))
	}
	return &Window{base: newBase(cfg), K: k}, nil
}

func (p *Window) Kind() Kind { return KindWindow }

func (p *Window) RecordTurn(ctx context.Context, inputs, outputs map[string]string) error {
	in, out, err := p.resolveTurn(inputs, outputs)
	if err != nil {
		return err
	}
	return p.SaveTurn(ctx, in, out)
}

func (p *Window) SaveTurn(_ context.Context, input, output string) error {
	p.appendTurn(input, output)
	return nil
}

// Render exposes at most 2K of the most recent messages.
func (p *Window) Render() Rendered {
	msgs := p.history.Messages()
	if n := len(msgs); p.K < (n+1)/2 {
		msgs = msgs[n-2*p.K:]
	}
	return p.render(msgs)
}

func (p *Window) Clear() { p.history.Clear() }

func (p *Window) TypePath() []string { return windowPath }

func (p *Window) ConstructorArgs() map[string]any {
	return map[string]any{"k": p.K}
}

func (p *Window) Fields() map[string]any {
	f := p.fields()
	f["k"] = p.K
	return f
}

func (p *Window) SetField(name string, value any) error {
	if ok, err := p.setField(name, value); ok {
		return err
	}
	if name != "k" {
		return serial.UndeclaredField(name)
	}
	k, err := serial.ToInt(name, value)
	if err != nil {
		return err
	}
	p.K = k
	return nil
}

func (p *Window) Finalize() (any, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.K < 1 {
		return nil, errors.NewMalformedEnvelope("k", "must be at least 1")
	}
	return p, nil
}
