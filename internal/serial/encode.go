package serial

import (
	"fmt"
	"reflect"
	"strings"
)

// Encoder turns values into envelopes. Only types registered in its
// registry become constructor envelopes.
type Encoder struct {
	registry *Registry
}

// NewEncoder returns an encoder bound to reg.
func NewEncoder(reg *Registry) *Encoder {
	return &Encoder{registry: reg}
}

// Encode converts v to an envelope. It never fails: values that are not
// registered, or that panic while being inspected, degrade to a
// not_implemented envelope carrying a display string.
func (e *Encoder) Encode(v any) (env *Envelope) {
	defer func() {
		if r := recover(); r != nil {
			env = &Envelope{
				FormatMarker: FormatMarker,
				Kind:         KindNotImplemented,
				TypePath:     goTypePath(v),
				Repr:         fmt.Sprintf("%T", v),
			}
		}
	}()

	if s, ok := v.(Serializable); ok && !isNilPointer(v) && e.registry.Has(s.TypePath()) {
		return &Envelope{
			FormatMarker: FormatMarker,
			Kind:         KindConstructor,
			TypePath:     append([]string(nil), s.TypePath()...),
			Kwargs:       e.encodeMap(s.ConstructorArgs()),
			Obj:          e.encodeMap(s.Fields()),
		}
	}
	return NotImplemented(v)
}

// NotImplemented returns the display-only envelope for v.
func NotImplemented(v any) *Envelope {
	repr := fmt.Sprintf("%T", v)
	if s, ok := v.(fmt.Stringer); ok && !isNilPointer(v) {
		if str := s.String(); str != "" {
			repr = str
		}
	}
	if v == nil {
		repr = "<nil>"
	}
	return &Envelope{
		FormatMarker: FormatMarker,
		Kind:         KindNotImplemented,
		TypePath:     goTypePath(v),
		Repr:         repr,
	}
}

func (e *Encoder) encodeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = e.encodeValue(v)
	}
	return out
}

func (e *Encoder) encodeValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return x
	case Secret:
		return &Envelope{FormatMarker: FormatMarker, Kind: KindSecret, TypePath: []string{x.Name}}
	case *Envelope:
		return x
	case Serializable:
		return e.Encode(x)
	case map[string]any:
		return e.encodeMap(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = e.encodeValue(item)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = item
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = e.encodeValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				out[iter.Key().String()] = e.encodeValue(iter.Value().Interface())
			}
			return out
		}
	}
	return e.Encode(v)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// goTypePath derives a path from the Go package path and type name.
func goTypePath(v any) []string {
	if v == nil {
		return []string{"go", "nil"}
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return []string{"go", t.String()}
	}
	path := strings.Split(t.PkgPath(), "/")
	return append(path, t.Name())
}
