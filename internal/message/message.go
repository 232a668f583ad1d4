// Package message defines the immutable conversational turn stored by
// transcripts and rendered by retention policies.
package message

import (
	"encoding/json"
	"maps"
	"strings"

	"github.com/hpungsan/lichen/internal/errors"
)

// Role identifies who produced a message.
type Role string

const (
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
	RoleOther  Role = "other"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleHuman, RoleAI, RoleSystem, RoleOther:
		return true
	}
	return false
}

// Message is one conversational turn. It is never mutated after construction.
type Message struct {
	role     Role
	content  string
	metadata map[string]any
	example  bool
	speaker  string
}

// Option configures a Message at construction.
type Option func(*Message)

// WithMetadata attaches free-form metadata. Values are normalized so that
// integers of any width compare equal after a round trip through any wire format.
func WithMetadata(md map[string]any) Option {
	return func(m *Message) {
		if len(md) == 0 {
			return
		}
		m.metadata = make(map[string]any, len(md))
		for k, v := range md {
			m.metadata[k] = normalize(v)
		}
	}
}

// AsExample marks the message as a few-shot example turn.
func AsExample() Option {
	return func(m *Message) { m.example = true }
}

func newMessage(role Role, content string, opts []Option) *Message {
	m := &Message{role: role, content: content}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewHuman creates a human message.
func NewHuman(content string, opts ...Option) *Message {
	return newMessage(RoleHuman, content, opts)
}

// NewAI creates an AI message.
func NewAI(content string, opts ...Option) *Message {
	return newMessage(RoleAI, content, opts)
}

// NewSystem creates a system message.
func NewSystem(content string, opts ...Option) *Message {
	return newMessage(RoleSystem, content, opts)
}

// NewOther creates a message from an arbitrary named speaker.
func NewOther(speaker, content string, opts ...Option) *Message {
	m := newMessage(RoleOther, content, opts)
	m.speaker = speaker
	return m
}

func (m *Message) Role() Role { return m.role }

func (m *Message) Content() string { return m.content }

func (m *Message) IsExample() bool { return m.example }

// Speaker is the free-form role name of an other-role message.
func (m *Message) Speaker() string { return m.speaker }

// Metadata returns a copy of the message metadata. Never nil.
func (m *Message) Metadata() map[string]any {
	out := make(map[string]any, len(m.metadata))
	maps.Copy(out, m.metadata)
	return out
}

// Prefix returns the label used for this message in buffer text.
func (m *Message) Prefix(humanPrefix, aiPrefix string) string {
	switch m.role {
	case RoleHuman:
		return humanPrefix
	case RoleAI:
		return aiPrefix
	case RoleSystem:
		return "System"
	default:
		return m.speaker
	}
}

// Equal reports whether a and b hold the same role, content, metadata and flags.
func Equal(a, b *Message) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.role != b.role || a.content != b.content || a.example != b.example || a.speaker != b.speaker {
		return false
	}
	return valuesEqual(mapOrEmpty(a.metadata), mapOrEmpty(b.metadata))
}

// EqualSlices compares two message sequences element by element.
func EqualSlices(a, b []*Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// BufferString renders messages as "{prefix}: {content}" lines joined by newlines.
func BufferString(msgs []*Message, humanPrefix, aiPrefix string) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.Prefix(humanPrefix, aiPrefix)+": "+m.content)
	}
	return strings.Join(lines, "\n")
}

// ToDict returns the leaf form {"type": role, "data": {...}} used inside
// transcript snapshots.
func (m *Message) ToDict() map[string]any {
	data := map[string]any{
		"content":           m.content,
		"additional_kwargs": m.Metadata(),
		"example":           m.example,
		"type":              string(m.role),
	}
	if m.role == RoleOther {
		data["role"] = m.speaker
	}
	return map[string]any{
		"type": string(m.role),
		"data": data,
	}
}

// FromDict rebuilds a message from its leaf form.
func FromDict(d map[string]any) (*Message, error) {
	rawType, ok := d["type"].(string)
	if !ok {
		return nil, errors.NewMalformedEnvelope("type", "message type must be a string")
	}
	role := Role(rawType)
	if !role.Valid() {
		return nil, errors.NewMalformedEnvelope("type", "unknown message type "+rawType)
	}
	data, ok := d["data"].(map[string]any)
	if !ok {
		return nil, errors.NewMalformedEnvelope("data", "message data must be a map")
	}
	if inner, present := data["type"]; present && inner != rawType {
		return nil, errors.NewMalformedEnvelope("data.type", "does not match message type "+rawType)
	}

	b := &builder{role: role}
	for _, key := range []string{"content", "additional_kwargs", "example", "role"} {
		v, present := data[key]
		if !present {
			continue
		}
		if err := b.SetField(key, v); err != nil {
			return nil, errors.Nest("data", err)
		}
	}
	return b.build(), nil
}

// MarshalJSON encodes the message in its leaf form.
func (m *Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToDict())
}

// UnmarshalJSON decodes the leaf form.
func (m *Message) UnmarshalJSON(data []byte) error {
	var d map[string]any
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	decoded, err := FromDict(d)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}

// ToDicts converts a sequence of messages to leaf form.
func ToDicts(msgs []*Message) []any {
	out := make([]any, len(msgs))
	for i, m := range msgs {
		out[i] = m.ToDict()
	}
	return out
}
