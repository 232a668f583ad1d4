package serial_test

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/serial"
)

type widget struct {
	name  string
	size  int
	tags  []string
	child *widget
	token string
}

func (w *widget) TypePath() []string { return []string{"test", "Widget"} }

func (w *widget) ConstructorArgs() map[string]any {
	return map[string]any{"name": w.name}
}

func (w *widget) Fields() map[string]any {
	f := map[string]any{"name": w.name, "size": w.size, "tags": w.tags, "child": nil}
	if w.child != nil {
		f["child"] = w.child
	}
	if w.token != "" {
		f["token"] = serial.Secret{Name: "WIDGET_TOKEN", Value: w.token}
	}
	return f
}

func (w *widget) SetField(name string, value any) error {
	var err error
	switch name {
	case "name":
		w.name, err = serial.ToString(name, value)
	case "size":
		w.size, err = serial.ToInt(name, value)
	case "tags":
		w.tags, err = serial.ToStringSlice(name, value)
	case "token":
		w.token, err = serial.ToString(name, value)
	case "child":
		if value == nil {
			w.child = nil
			return nil
		}
		c, ok := value.(*widget)
		if !ok {
			return errors.NewMalformedEnvelope(name, fmt.Sprintf("expected widget, got %T", value))
		}
		w.child = c
	default:
		return serial.UndeclaredField(name)
	}
	return err
}

func widgetRegistrations() []serial.Registration {
	return []serial.Registration{{
		Path: []string{"test", "Widget"},
		New: func(kwargs map[string]any) (any, error) {
			if err := serial.CheckKeys(kwargs, "name"); err != nil {
				return nil, err
			}
			w := &widget{}
			if v, ok := kwargs["name"]; ok {
				if err := w.SetField("name", v); err != nil {
					return nil, err
				}
			}
			return w, nil
		},
	}}
}

func newRegistry(t *testing.T) *serial.Registry {
	t.Helper()
	reg, err := serial.NewRegistry(widgetRegistrations())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

type opaque struct{ label string }

func (o *opaque) String() string { return "opaque(" + o.label + ")" }

type exploding struct{}

func (exploding) TypePath() []string              { return []string{"test", "Widget"} }
func (exploding) ConstructorArgs() map[string]any { panic("boom") }
func (exploding) Fields() map[string]any          { return nil }

func sampleWidget() *widget {
	return &widget{
		name: "outer",
		size: 3,
		tags: []string{"a", "b"},
		child: &widget{
			name: "inner",
			size: 1,
			tags: []string{},
		},
	}
}

func TestEncode_Registered(t *testing.T) {
	enc := serial.NewEncoder(newRegistry(t))
	env := enc.Encode(sampleWidget())

	if env.Kind != serial.KindConstructor {
		t.Fatalf("Kind = %q, want %q", env.Kind, serial.KindConstructor)
	}
	if env.FormatMarker != serial.FormatMarker {
		t.Errorf("FormatMarker = %d, want %d", env.FormatMarker, serial.FormatMarker)
	}
	if got := env.Kwargs["name"]; got != "outer" {
		t.Errorf("Kwargs[name] = %v, want %q", got, "outer")
	}
	child, ok := env.Obj["child"].(*serial.Envelope)
	if !ok {
		t.Fatalf("Obj[child] = %T, want *serial.Envelope", env.Obj["child"])
	}
	if child.Kind != serial.KindConstructor {
		t.Errorf("child Kind = %q, want constructor", child.Kind)
	}
}

func TestEncode_Unregistered(t *testing.T) {
	enc := serial.NewEncoder(newRegistry(t))

	tests := []struct {
		name     string
		value    any
		wantRepr string
	}{
		{"stringer", &opaque{label: "x"}, "opaque(x)"},
		{"func", func() {}, "func()"},
		{"nil", nil, "<nil>"},
		{"panicking serializable", exploding{}, "serial_test.exploding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := enc.Encode(tt.value)
			if env.Kind != serial.KindNotImplemented {
				t.Fatalf("Kind = %q, want not_implemented", env.Kind)
			}
			if env.Repr != tt.wantRepr {
				t.Errorf("Repr = %q, want %q", env.Repr, tt.wantRepr)
			}
			if len(env.TypePath) == 0 {
				t.Error("TypePath is empty")
			}
		})
	}
}

func TestEncode_NestedUnregisteredDoesNotAbort(t *testing.T) {
	reg, err := serial.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	enc := serial.NewEncoder(reg)
	env := enc.Encode(sampleWidget())
	if env.Kind != serial.KindNotImplemented {
		t.Errorf("Kind = %q, want not_implemented for unregistered root", env.Kind)
	}
}

func TestRoundTrip(t *testing.T) {
	reg := newRegistry(t)
	enc := serial.NewEncoder(reg)
	dec := serial.NewDecoder(reg)
	orig := sampleWidget()

	for _, f := range []serial.Format{serial.FormatJSON, serial.FormatCBOR, serial.FormatYAML} {
		t.Run(string(f), func(t *testing.T) {
			data, err := serial.Marshal(enc.Encode(orig), f)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			env, err := serial.Unmarshal(data, f)
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			got, err := dec.Decode(env)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			w, ok := got.(*widget)
			if !ok {
				t.Fatalf("Decode() = %T, want *widget", got)
			}
			if !enc.Equal(orig, w) {
				t.Errorf("decoded widget differs: %+v", w)
			}
			if w.child == nil || w.child.name != "inner" {
				t.Errorf("child = %+v, want inner", w.child)
			}
		})
	}
}

func TestEnvelope_JSON(t *testing.T) {
	enc := serial.NewEncoder(newRegistry(t))
	data, err := json.Marshal(enc.Encode(sampleWidget()))
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	for _, key := range []string{"format_marker", "kind", "type_path", "kwargs", "obj"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("wire map missing %q", key)
		}
	}

	var env serial.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Envelope.UnmarshalJSON() error = %v", err)
	}
	if env.Kind != serial.KindConstructor {
		t.Errorf("Kind = %q, want constructor", env.Kind)
	}
}

func TestParse_IgnoresUnknownKeys(t *testing.T) {
	m := map[string]any{
		"format_marker": 1,
		"kind":          "constructor",
		"type_path":     []any{"test", "Widget"},
		"kwargs":        map[string]any{"name": "w"},
		"obj":           map[string]any{},
		"added_later":   true,
	}
	env, err := serial.Parse(m)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	got, err := serial.NewDecoder(newRegistry(t)).Decode(env)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.(*widget).name != "w" {
		t.Errorf("name = %q, want %q", got.(*widget).name, "w")
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name      string
		m         map[string]any
		wantField string
	}{
		{
			name:      "missing kind",
			m:         map[string]any{"format_marker": 1, "type_path": []any{"x"}},
			wantField: "",
		},
		{
			name:      "wrong marker",
			m:         map[string]any{"format_marker": 2, "kind": "constructor", "type_path": []any{"x"}},
			wantField: "format_marker",
		},
		{
			name:      "unknown kind",
			m:         map[string]any{"format_marker": 1, "kind": "bogus", "type_path": []any{"x"}},
			wantField: "kind",
		},
		{
			name:      "empty type path",
			m:         map[string]any{"format_marker": 1, "kind": "constructor", "type_path": []any{}},
			wantField: "type_path",
		},
		{
			name:      "non-string path segment",
			m:         map[string]any{"format_marker": 1, "kind": "constructor", "type_path": []any{"x", 3}},
			wantField: "type_path[1]",
		},
		{
			name: "malformed nested envelope",
			m: map[string]any{
				"format_marker": 1,
				"kind":          "constructor",
				"type_path":     []any{"test", "Widget"},
				"obj": map[string]any{
					"child": map[string]any{"format_marker": 1, "kind": "constructor", "type_path": "oops"},
				},
			},
			wantField: "obj.child.type_path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := serial.Parse(tt.m)
			if !errors.Is(err, errors.ErrMalformedEnvelope) {
				t.Fatalf("Parse() error = %v, want MALFORMED_ENVELOPE", err)
			}
			lErr, _ := errors.As(err)
			if lErr.Details["field"] != tt.wantField {
				t.Errorf("field = %v, want %q", lErr.Details["field"], tt.wantField)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	reg := newRegistry(t)
	dec := serial.NewDecoder(reg)

	constructor := func(path []string, kwargs, obj map[string]any) *serial.Envelope {
		return &serial.Envelope{
			FormatMarker: serial.FormatMarker,
			Kind:         serial.KindConstructor,
			TypePath:     path,
			Kwargs:       kwargs,
			Obj:          obj,
		}
	}

	tests := []struct {
		name      string
		env       *serial.Envelope
		wantCode  errors.ErrorCode
		wantField string
	}{
		{
			name:     "unknown type",
			env:      constructor([]string{"test", "Gadget"}, nil, nil),
			wantCode: errors.ErrUnknownType,
		},
		{
			name:      "undeclared kwarg",
			env:       constructor([]string{"test", "Widget"}, map[string]any{"color": "red"}, nil),
			wantCode:  errors.ErrMalformedEnvelope,
			wantField: "kwargs.color",
		},
		{
			name:      "undeclared obj field",
			env:       constructor([]string{"test", "Widget"}, nil, map[string]any{"weight": 2}),
			wantCode:  errors.ErrMalformedEnvelope,
			wantField: "obj.weight",
		},
		{
			name:      "wrong obj type",
			env:       constructor([]string{"test", "Widget"}, nil, map[string]any{"size": "big"}),
			wantCode:  errors.ErrMalformedEnvelope,
			wantField: "obj.size",
		},
		{
			name: "nested unknown type",
			env: constructor([]string{"test", "Widget"}, nil, map[string]any{
				"child": constructor([]string{"test", "Gadget"}, nil, nil),
			}),
			wantCode: errors.ErrUnknownType,
		},
		{
			name: "nested malformed",
			env: constructor([]string{"test", "Widget"}, nil, map[string]any{
				"child": constructor([]string{"test", "Widget"}, nil, map[string]any{"size": 1.5}),
			}),
			wantCode:  errors.ErrMalformedEnvelope,
			wantField: "obj.child.obj.size",
		},
		{
			name:     "not implemented",
			env:      serial.NotImplemented(&opaque{label: "llm"}),
			wantCode: errors.ErrNotReconstructable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dec.Decode(tt.env)
			if !errors.Is(err, tt.wantCode) {
				t.Fatalf("Decode() error = %v, want %s", err, tt.wantCode)
			}
			if tt.wantField != "" {
				lErr, _ := errors.As(err)
				if lErr.Details["field"] != tt.wantField {
					t.Errorf("field = %v, want %q", lErr.Details["field"], tt.wantField)
				}
			}
		})
	}
}

func TestDecode_CollaboratorBinding(t *testing.T) {
	live := &opaque{label: "live"}
	env := serial.NotImplemented(&opaque{label: "stale"})

	dec := serial.NewDecoder(newRegistry(t), serial.WithCollaborator(env.TypePath, live))
	got, err := dec.Decode(env)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != live {
		t.Errorf("Decode() = %v, want bound collaborator", got)
	}
}

func TestSecrets(t *testing.T) {
	reg := newRegistry(t)
	enc := serial.NewEncoder(reg)
	w := &widget{name: "s", tags: []string{}, token: "hunter2"}

	data, err := serial.Marshal(enc.Encode(w), serial.FormatJSON)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "hunter2") {
		t.Fatalf("secret value leaked into envelope: %s", data)
	}
	env, err := serial.Unmarshal(data, serial.FormatJSON)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	t.Run("missing", func(t *testing.T) {
		_, err := serial.NewDecoder(reg).Decode(env)
		if !errors.Is(err, errors.ErrMissingSecret) {
			t.Fatalf("Decode() error = %v, want MISSING_SECRET", err)
		}
	})

	t.Run("explicit", func(t *testing.T) {
		got, err := serial.NewDecoder(reg, serial.WithSecrets(map[string]string{"WIDGET_TOKEN": "hunter2"})).Decode(env)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if got.(*widget).token != "hunter2" {
			t.Errorf("token = %q, want %q", got.(*widget).token, "hunter2")
		}
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("WIDGET_TOKEN", "from-env")
		got, err := serial.NewDecoder(reg, serial.WithSecretsFromEnv()).Decode(env)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if got.(*widget).token != "from-env" {
			t.Errorf("token = %q, want %q", got.(*widget).token, "from-env")
		}
	})
}

func TestNewRegistry_Duplicate(t *testing.T) {
	_, err := serial.NewRegistry(widgetRegistrations(), widgetRegistrations())
	if err == nil {
		t.Fatal("NewRegistry() error = nil, want duplicate error")
	}
}

func TestRegistry_Paths(t *testing.T) {
	reg := newRegistry(t)
	paths := reg.Paths()
	if len(paths) != 1 || paths[0][1] != "Widget" {
		t.Errorf("Paths() = %v, want [[test Widget]]", paths)
	}
	if reg.Has([]string{"test", "Gadget"}) {
		t.Error("Has(Gadget) = true, want false")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    serial.Format
		wantErr bool
	}{
		{"", serial.FormatJSON, false},
		{"json", serial.FormatJSON, false},
		{"cbor", serial.FormatCBOR, false},
		{"yml", serial.FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := serial.ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
