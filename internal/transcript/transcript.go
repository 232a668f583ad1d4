// Package transcript holds the ordered record of messages a retention
// policy wraps.
package transcript

import (
	"fmt"
	"slices"

	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/message"
	"github.com/hpungsan/lichen/internal/serial"
)

var typePath = []string{"lichen", "memory", "chat_message_histories", "InMemoryHistory"}

// History is an append-only message sequence. It is not safe for
// concurrent mutation; the owning policy serializes access.
type History struct {
	messages []*message.Message
}

// New returns a history seeded with msgs.
func New(msgs ...*message.Message) *History {
	return &History{messages: slices.Clone(msgs)}
}

// AddMessage appends m.
func (h *History) AddMessage(m *message.Message) {
	h.messages = append(h.messages, m)
}

// AddUserMessage appends a human message.
func (h *History) AddUserMessage(text string) {
	h.AddMessage(message.NewHuman(text))
}

// AddAIMessage appends an AI message.
func (h *History) AddAIMessage(text string) {
	h.AddMessage(message.NewAI(text))
}

// Clear empties the history. Calling it on an empty history is a no-op.
func (h *History) Clear() {
	h.messages = nil
}

// Messages returns the messages in append order. The slice is a copy;
// the messages themselves are immutable.
func (h *History) Messages() []*message.Message {
	return slices.Clone(h.messages)
}

// Len returns the number of stored messages.
func (h *History) Len() int {
	return len(h.messages)
}

// Equal reports whether a and b hold equal messages in the same order.
func Equal(a, b *History) bool {
	return message.EqualSlices(a.messages, b.messages)
}

// TypePath implements serial.Serializable.
func (h *History) TypePath() []string { return typePath }

// ConstructorArgs implements serial.Serializable.
func (h *History) ConstructorArgs() map[string]any { return map[string]any{} }

// Fields implements serial.Serializable. Messages are stored in their
// leaf {type, data} form rather than as nested envelopes.
func (h *History) Fields() map[string]any {
	return map[string]any{"messages": message.ToDicts(h.messages)}
}

// SetField implements serial.FieldSetter.
func (h *History) SetField(name string, value any) error {
	if name != "messages" {
		return serial.UndeclaredField(name)
	}
	msgs, err := FromValue(name, value)
	if err != nil {
		return err
	}
	h.messages = msgs
	return nil
}

// FromValue converts a decoded list of leaf dicts (or already decoded
// messages) into messages. field names the list in errors.
func FromValue(field string, value any) ([]*message.Message, error) {
	if value == nil {
		return nil, nil
	}
	items, err := serial.ToSlice(field, value)
	if err != nil {
		return nil, err
	}
	msgs := make([]*message.Message, 0, len(items))
	for i, item := range items {
		at := fmt.Sprintf("%s[%d]", field, i)
		switch x := item.(type) {
		case *message.Message:
			msgs = append(msgs, x)
		default:
			d, err := serial.ToMap(at, x)
			if err != nil {
				return nil, err
			}
			m, err := message.FromDict(d)
			if err != nil {
				return nil, errors.Nest(at, err)
			}
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

// Registrations returns the decoder registration for History.
func Registrations() []serial.Registration {
	return []serial.Registration{{
		Path: typePath,
		New: func(kwargs map[string]any) (any, error) {
			if err := serial.CheckKeys(kwargs); err != nil {
				return nil, err
			}
			return New(), nil
		},
	}}
}
