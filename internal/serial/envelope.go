// Package serial converts live object graphs into self-describing,
// versioned envelopes and reconstructs them again.
//
// An envelope is a nested map:
//
//	{
//	  "format_marker": 1,
//	  "kind": "constructor" | "not_implemented" | "secret",
//	  "type_path": ["lichen", "memory", "ConversationBufferMemory"],
//	  "kwargs": {...}, "obj": {...}   // constructor
//	  "repr": "..."                   // not_implemented
//	}
//
// Values inside kwargs and obj are scalars, collections, or further envelopes.
package serial

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/hpungsan/lichen/internal/errors"
)

// FormatMarker identifies the envelope encoding version.
const FormatMarker = 1

// Kind tags what an envelope can be turned back into.
type Kind string

const (
	KindConstructor    Kind = "constructor"
	KindNotImplemented Kind = "not_implemented"
	KindSecret         Kind = "secret"
)

// Wire keys.
const (
	keyFormatMarker = "format_marker"
	keyKind         = "kind"
	keyTypePath     = "type_path"
	keyKwargs       = "kwargs"
	keyObj          = "obj"
	keyRepr         = "repr"
)

// Envelope is the decoded form of one serialized object. Nested envelopes
// inside Kwargs and Obj are held as *Envelope.
type Envelope struct {
	FormatMarker int
	Kind         Kind
	TypePath     []string
	Kwargs       map[string]any
	Obj          map[string]any
	Repr         string
}

// Map returns the wire representation of e.
func (e *Envelope) Map() map[string]any {
	m := map[string]any{
		keyFormatMarker: e.FormatMarker,
		keyKind:         string(e.Kind),
		keyTypePath:     append([]string(nil), e.TypePath...),
	}
	switch e.Kind {
	case KindConstructor:
		m[keyKwargs] = toWire(nonNil(e.Kwargs))
		m[keyObj] = toWire(nonNil(e.Obj))
	case KindNotImplemented:
		m[keyRepr] = e.Repr
	}
	return m
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func toWire(v any) any {
	switch x := v.(type) {
	case *Envelope:
		return x.Map()
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
			out[k] = toWire(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = toWire(val)
		}
		return out
	default:
		return v
	}
}

// IsEnvelope reports whether m looks like a wire envelope.
func IsEnvelope(m map[string]any) bool {
	_, hasMarker := m[keyFormatMarker]
	_, hasKind := m[keyKind]
	return hasMarker && hasKind
}

// Parse validates a wire map and returns the envelope it describes.
// Nested envelopes are parsed recursively. Unknown keys are ignored.
func Parse(m map[string]any) (*Envelope, error) {
	if !IsEnvelope(m) {
		return nil, errors.NewMalformedEnvelope("", "not an envelope: format_marker and kind are required")
	}

	marker, err := ToInt(keyFormatMarker, m[keyFormatMarker])
	if err != nil {
		return nil, err
	}
	if marker != FormatMarker {
		return nil, errors.NewMalformedEnvelope(keyFormatMarker, "unsupported format marker")
	}

	kindStr, err := ToString(keyKind, m[keyKind])
	if err != nil {
		return nil, err
	}
	kind := Kind(kindStr)
	switch kind {
	case KindConstructor, KindNotImplemented, KindSecret:
	default:
		return nil, errors.NewMalformedEnvelope(keyKind, "unknown kind "+kindStr)
	}

	path, err := ToStringSlice(keyTypePath, m[keyTypePath])
	if err != nil {
		return nil, err
	}
	if len(path) == 0 {
		return nil, errors.NewMalformedEnvelope(keyTypePath, "must not be empty")
	}

	env := &Envelope{FormatMarker: marker, Kind: kind, TypePath: path}
	switch kind {
	case KindConstructor:
		if env.Kwargs, err = parseSection(m, keyKwargs); err != nil {
			return nil, err
		}
		if env.Obj, err = parseSection(m, keyObj); err != nil {
			return nil, err
		}
	case KindNotImplemented:
		if raw, ok := m[keyRepr]; ok && raw != nil {
			if env.Repr, err = ToString(keyRepr, raw); err != nil {
				return nil, err
			}
		}
	}
	return env, nil
}

func parseSection(m map[string]any, key string) (map[string]any, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return map[string]any{}, nil
	}
	section, err := ToMap(key, raw)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(section))
	for k, v := range section {
		parsed, err := fromWire(v)
		if err != nil {
			return nil, errors.Nest(key+"."+k, err)
		}
		out[k] = parsed
	}
	return out, nil
}

func fromWire(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if IsEnvelope(x) {
			return Parse(x)
		}
		out := make(map[string]any, len(x))
		for k, val := range x {
			parsed, err := fromWire(val)
			if err != nil {
				return nil, errors.Nest(k, err)
			}
			out[k] = parsed
		}
		return out, nil
	case map[any]any:
		m, err := ToMap("", x)
		if err != nil {
			return nil, err
		}
		return fromWire(m)
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			parsed, err := fromWire(val)
			if err != nil {
				return nil, errors.Nest("["+strconv.Itoa(i)+"]", err)
			}
			out[i] = parsed
		}
		return out, nil
	default:
		return v, nil
	}
}

// MarshalJSON encodes the wire map.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Map())
}

// UnmarshalJSON decodes and validates a wire map. Numbers are kept exact.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	parsed, err := Parse(m)
	if err != nil {
		return err
	}
	*e = *parsed
	return nil
}
