package retention

import (
	"context"

	"github.com/hpungsan/lichen/internal/serial"
)

var bufferPath = []string{"lichen", "memory", "buffer", "ConversationBufferMemory"}

// Buffer exposes the whole transcript.
type Buffer struct {
	base
}

// NewBuffer returns an unbounded policy.
func NewBuffer(cfg Config) *Buffer {
	return &Buffer{base: newBase(cfg)}
}

func (p *Buffer) Kind() Kind { return KindBuffer }

func (p *Buffer) RecordTurn(ctx context.Context, inputs, outputs map[string]string) error {
	in, out, err := p.resolveTurn(inputs, outputs)
	if err != nil {
		return err
	}
	return p.SaveTurn(ctx, in, out)
}

func (p *Buffer) SaveTurn(_ context.Context, input, output string) error {
	p.appendTurn(input, output)
	return nil
}

func (p *Buffer) Render() Rendered {
	return p.render(p.history.Messages())
}

func (p *Buffer) Clear() { p.history.Clear() }

func (p *Buffer) TypePath() []string { return bufferPath }

func (p *Buffer) ConstructorArgs() map[string]any { return map[string]any{} }

func (p *Buffer) Fields() map[string]any { return p.fields() }

func (p *Buffer) SetField(name string, value any) error {
	if ok, err := p.setField(name, value); ok {
		return err
	}
	return serial.UndeclaredField(name)
}

func (p *Buffer) Finalize() (any, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}
