package message

import (
	"encoding/json"
	"testing"

	"github.com/hpungsan/lichen/internal/errors"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		role Role
	}{
		{"human", NewHuman("hi"), RoleHuman},
		{"ai", NewAI("yo"), RoleAI},
		{"system", NewSystem("be brief"), RoleSystem},
		{"other", NewOther("narrator", "meanwhile"), RoleOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.msg.Role() != tt.role {
				t.Errorf("Role() = %q, want %q", tt.msg.Role(), tt.role)
			}
		})
	}
}

func TestMetadata_IsCopied(t *testing.T) {
	md := map[string]any{"turn": 1}
	m := NewHuman("hi", WithMetadata(md))
	md["turn"] = 2

	got := m.Metadata()
	if got["turn"] != int64(1) {
		t.Errorf("Metadata()[turn] = %v (%T), want int64(1)", got["turn"], got["turn"])
	}
	got["turn"] = 3
	if m.Metadata()["turn"] != int64(1) {
		t.Error("Metadata() returned the internal map")
	}
}

func TestEqual(t *testing.T) {
	base := NewHuman("hi", WithMetadata(map[string]any{"n": 2}))

	tests := []struct {
		name  string
		other *Message
		want  bool
	}{
		{"identical", NewHuman("hi", WithMetadata(map[string]any{"n": 2})), true},
		{"float metadata", NewHuman("hi", WithMetadata(map[string]any{"n": 2.0})), true},
		{"json number metadata", NewHuman("hi", WithMetadata(map[string]any{"n": json.Number("2")})), true},
		{"different role", NewAI("hi", WithMetadata(map[string]any{"n": 2})), false},
		{"different content", NewHuman("ho", WithMetadata(map[string]any{"n": 2})), false},
		{"example flag", NewHuman("hi", WithMetadata(map[string]any{"n": 2}), AsExample()), false},
		{"missing metadata", NewHuman("hi"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(base, tt.other); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}

	if !Equal(NewAI("x"), NewAI("x", WithMetadata(map[string]any{}))) {
		t.Error("nil and empty metadata should be equal")
	}
}

func TestBufferString(t *testing.T) {
	msgs := []*Message{
		NewHuman("hi"),
		NewAI("what's up"),
		NewSystem("summary"),
		NewOther("Narrator", "later"),
	}
	want := "Human: hi\nAI: what's up\nSystem: summary\nNarrator: later"
	if got := BufferString(msgs, "Human", "AI"); got != want {
		t.Errorf("BufferString() = %q, want %q", got, want)
	}
	if got := BufferString(nil, "Human", "AI"); got != "" {
		t.Errorf("BufferString(nil) = %q, want empty", got)
	}
}

func TestDict_RoundTrip(t *testing.T) {
	msgs := []*Message{
		NewHuman("hi", WithMetadata(map[string]any{"lang": "en", "n": 3})),
		NewAI("yo", AsExample()),
		NewSystem("rules"),
		NewOther("tool", "42"),
	}
	for _, m := range msgs {
		t.Run(string(m.Role()), func(t *testing.T) {
			d := m.ToDict()
			if d["type"] != string(m.Role()) {
				t.Errorf("type = %v, want %q", d["type"], m.Role())
			}
			got, err := FromDict(d)
			if err != nil {
				t.Fatalf("FromDict() error = %v", err)
			}
			if !Equal(m, got) {
				t.Errorf("FromDict(ToDict()) = %+v, want %+v", got, m)
			}
		})
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	m := NewOther("critic", "meh", WithMetadata(map[string]any{"score": 7}))
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if !Equal(m, &got) {
		t.Errorf("round trip = %+v, want %+v", &got, m)
	}
	if got.Speaker() != "critic" {
		t.Errorf("Speaker() = %q, want %q", got.Speaker(), "critic")
	}
}

func TestFromDict_Malformed(t *testing.T) {
	tests := []struct {
		name      string
		d         map[string]any
		wantField string
	}{
		{"missing type", map[string]any{"data": map[string]any{}}, "type"},
		{"unknown type", map[string]any{"type": "robot", "data": map[string]any{}}, "type"},
		{"missing data", map[string]any{"type": "human"}, "data"},
		{"mismatched inner type", map[string]any{"type": "human", "data": map[string]any{"type": "ai"}}, "data.type"},
		{"bad content", map[string]any{"type": "human", "data": map[string]any{"content": 5}}, "data.content"},
		{"undeclared", map[string]any{"type": "human", "data": map[string]any{"content": "x", "extra": 1}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromDict(tt.d)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("FromDict() error = %v, want extra data keys ignored", err)
				}
				return
			}
			if !errors.Is(err, errors.ErrMalformedEnvelope) {
				t.Fatalf("FromDict() error = %v, want MALFORMED_ENVELOPE", err)
			}
			lErr, _ := errors.As(err)
			if lErr.Details["field"] != tt.wantField {
				t.Errorf("field = %v, want %q", lErr.Details["field"], tt.wantField)
			}
		})
	}
}
