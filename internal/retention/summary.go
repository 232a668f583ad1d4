package retention

import (
	"context"
	"fmt"

	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/message"
	"github.com/hpungsan/lichen/internal/serial"
	"github.com/hpungsan/lichen/internal/summarize"
	"github.com/hpungsan/lichen/internal/tokens"
)

var summaryPath = []string{"lichen", "memory", "summary_buffer", "ConversationSummaryBufferMemory"}

// Summary keeps a running summary plus a tail of recent messages. When
// the tail exceeds Limit tokens it is handed to Summarizer together with
// the current summary, and the result replaces Buffer while the tail is
// cleared. Buffer always reflects exactly the messages evicted so far.
type Summary struct {
	base
	Limit      int
	Buffer     string
	Summarizer summarize.Summarizer
	Counter    tokens.Counter
}

// NewSummary returns a running-summary policy. A nil counter uses the
// word-based estimator.
func NewSummary(cfg Config, limit int, s summarize.Summarizer, counter tokens.Counter) (*Summary, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.NewInvalidRequest("summary policy requires a summarizer")
	}
	if counter == nil {
		counter = tokens.NewWordEstimator()
	}
	return &Summary{base: newBase(cfg), Limit: limit, Summarizer: s, Counter: counter}, nil
}

func (p *Summary) Kind() Kind { return KindSummary }

func (p *Summary) RecordTurn(ctx context.Context, inputs, outputs map[string]string) error {
	in, out, err := p.resolveTurn(inputs, outputs)
	if err != nil {
		return err
	}
	return p.SaveTurn(ctx, in, out)
}

// SaveTurn appends the exchange and summarizes the tail once it is over
// the limit. The summarizer runs synchronously; if it fails, its error is
// returned unchanged and nothing is evicted.
func (p *Summary) SaveTurn(ctx context.Context, input, output string) error {
	p.appendTurn(input, output)

	tail := p.history.Messages()
	total, err := p.Counter.Count(ctx, tail)
	if err != nil {
		return err
	}
	if total <= p.Limit {
		return nil
	}

	next, err := p.Summarizer.Summarize(ctx, p.Buffer, tail)
	if err != nil {
		return err
	}
	p.Buffer = next
	p.history.Clear()
	return nil
}

// Render exposes the summary as a leading system message, followed by the tail.
func (p *Summary) Render() Rendered {
	tail := p.history.Messages()
	if p.Buffer == "" {
		return p.render(tail)
	}
	msgs := make([]*message.Message, 0, len(tail)+1)
	msgs = append(msgs, message.NewSystem(p.Buffer))
	msgs = append(msgs, tail...)
	return p.render(msgs)
}

func (p *Summary) Clear() {
	p.history.Clear()
	p.Buffer = ""
}

func (p *Summary) TypePath() []string { return summaryPath }

func (p *Summary) ConstructorArgs() map[string]any {
	return map[string]any{
		"max_token_limit": p.Limit,
		"summarizer":      p.Summarizer,
		"counter":         p.Counter,
	}
}

func (p *Summary) Fields() map[string]any {
	f := p.fields()
	f["max_token_limit"] = p.Limit
	f["moving_summary_buffer"] = p.Buffer
	f["summarizer"] = p.Summarizer
	f["counter"] = p.Counter
	return f
}

func (p *Summary) SetField(name string, value any) error {
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
	case "moving_summary_buffer":
		buf, err := serial.ToOptionalString(name, value)
		if err != nil {
			return err
		}
		p.Buffer = buf
	case "summarizer":
		s, ok := value.(summarize.Summarizer)
		if !ok {
			return errors.NewMalformedEnvelope(name, fmt.Sprintf("expected a summarizer, got %T", value))
		}
		p.Summarizer = s
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

func (p *Summary) Finalize() (any, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.Limit < 1 {
		return nil, errors.NewMalformedEnvelope("max_token_limit", "must be at least 1")
	}
	if p.Summarizer == nil {
		return nil, errors.NewMalformedEnvelope("summarizer", "is required")
	}
	if p.Counter == nil {
		return nil, errors.NewMalformedEnvelope("counter", "is required")
	}
	return p, nil
}
