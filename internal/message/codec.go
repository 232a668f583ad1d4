package message

import (
	"encoding/json"
	"math"
	"reflect"

	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/serial"
)

var typePaths = map[Role][]string{
	RoleHuman:  {"lichen", "schema", "messages", "HumanMessage"},
	RoleAI:     {"lichen", "schema", "messages", "AIMessage"},
	RoleSystem: {"lichen", "schema", "messages", "SystemMessage"},
	RoleOther:  {"lichen", "schema", "messages", "ChatMessage"},
}

// Registrations returns the decoder registrations for every message role.
func Registrations() []serial.Registration {
	regs := make([]serial.Registration, 0, len(typePaths))
	for _, role := range []Role{RoleHuman, RoleAI, RoleSystem, RoleOther} {
		role := role
		regs = append(regs, serial.Registration{
			Path: typePaths[role],
			New: func(kwargs map[string]any) (any, error) {
				if err := serial.CheckKeys(kwargs, "content", "role"); err != nil {
					return nil, err
				}
				b := &builder{role: role}
				for _, key := range []string{"content", "role"} {
					if v, ok := kwargs[key]; ok {
						if err := b.SetField(key, v); err != nil {
							return nil, err
						}
					}
				}
				return b, nil
			},
		})
	}
	return regs
}

// TypePath implements serial.Serializable.
func (m *Message) TypePath() []string {
	return typePaths[m.role]
}

// ConstructorArgs implements serial.Serializable.
func (m *Message) ConstructorArgs() map[string]any {
	args := map[string]any{"content": m.content}
	if m.role == RoleOther {
		args["role"] = m.speaker
	}
	return args
}

// Fields implements serial.Serializable.
func (m *Message) Fields() map[string]any {
	return m.ToDict()["data"].(map[string]any)
}

// builder accumulates decoded fields and produces an immutable Message.
type builder struct {
	role Role
	m    Message
}

func (b *builder) SetField(name string, value any) error {
	switch name {
	case "content":
		s, err := serial.ToString(name, value)
		if err != nil {
			return err
		}
		b.m.content = s
	case "additional_kwargs":
		md, err := serial.ToMap(name, value)
		if err != nil {
			return err
		}
		WithMetadata(md)(&b.m)
	case "example":
		v, err := serial.ToBool(name, value)
		if err != nil {
			return err
		}
		b.m.example = v
	case "role":
		s, err := serial.ToString(name, value)
		if err != nil {
			return err
		}
		b.m.speaker = s
	case "type":
		if value != string(b.role) {
			return errors.NewMalformedEnvelope(name, "does not match message role "+string(b.role))
		}
	default:
		return serial.UndeclaredField(name)
	}
	return nil
}

// Finalize implements serial.Finalizer.
func (b *builder) Finalize() (any, error) {
	return b.build(), nil
}

func (b *builder) build() *Message {
	m := b.m
	m.role = b.role
	if m.role != RoleOther {
		m.speaker = ""
	}
	return &m
}

// normalize maps numeric metadata values onto int64 or float64 and recurses
// into nested collections, so decoded values compare equal to the originals
// regardless of which wire format carried them.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return uintToValue(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return uintToValue(x)
	case float32:
		return float64(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

func uintToValue(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

func mapOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// valuesEqual compares normalized values. int64 and float64 holding the
// same number are equal, since JSON cannot distinguish 2 from 2.0.
func valuesEqual(a, b any) bool {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
		return false
	case float64:
		switch y := b.(type) {
		case int64:
			return x == float64(y)
		case float64:
			return x == y
		}
		return false
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !valuesEqual(xv, yv) {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !valuesEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}
