package ops

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/message"
)

// Render formats
const (
	RenderText     = "text"
	RenderMessages = "messages"
	RenderHTML     = "html"
)

// RenderInput contains parameters for the Render operation.
type RenderInput struct {
	ID        string
	Workspace string
	Name      string
	Format    string // text (default), messages, html
}

// RenderOutput contains the exposed memory of a session.
type RenderOutput struct {
	ID       string           `json:"id"`
	Key      string           `json:"key"`
	Format   string           `json:"format"`
	Text     string           `json:"text,omitempty"`
	Messages []map[string]any `json:"messages,omitempty"`
	HTML     string           `json:"html,omitempty"`
}

// Render returns what the session's policy currently exposes. It never
// writes to the database.
func Render(ctx context.Context, rt *Runtime, input RenderInput) (*RenderOutput, error) {
	format := strings.ToLower(strings.TrimSpace(input.Format))
	if format == "" {
		format = RenderText
	}
	if format != RenderText && format != RenderMessages && format != RenderHTML {
		return nil, errors.NewInvalidRequest("format must be one of: text, messages, html")
	}

	addr, err := ValidateAddress(input.ID, input.Workspace, input.Name)
	if err != nil {
		return nil, err
	}
	s, err := rt.lookup(ctx, addr, false)
	if err != nil {
		return nil, err
	}
	policy, err := rt.decodePolicy(s.State)
	if err != nil {
		return nil, err
	}

	rendered := policy.Render()
	out := &RenderOutput{ID: s.ID, Key: rendered.Key, Format: format}

	switch format {
	case RenderText:
		out.Text = rendered.Text
	case RenderMessages:
		out.Messages = make([]map[string]any, len(rendered.Messages))
		for i, m := range rendered.Messages {
			out.Messages[i] = m.ToDict()
		}
	case RenderHTML:
		cfg := policy.Config()
		html, err := renderHTML(rendered.Messages, cfg.HumanPrefix, cfg.AIPrefix)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out.HTML = html
	}

	return out, nil
}

// renderHTML writes each message as a markdown paragraph led by its bold
// speaker prefix and converts the result with goldmark.
func renderHTML(msgs []*message.Message, humanPrefix, aiPrefix string) (string, error) {
	var md strings.Builder
	for i, m := range msgs {
		if i > 0 {
			md.WriteString("\n\n")
		}
		fmt.Fprintf(&md, "**%s:** %s", m.Prefix(humanPrefix, aiPrefix), m.Content())
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
