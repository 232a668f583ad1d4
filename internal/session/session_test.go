package session

import (
	"encoding/json"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple lowercase", input: "Hello World", want: "hello world"},
		{name: "trim whitespace", input: "  hello  ", want: "hello"},
		{name: "collapse internal whitespace", input: "hello    world", want: "hello world"},
		{name: "tabs and newlines", input: "hello\t\n  world", want: "hello world"},
		{name: "empty string", input: "", want: ""},
		{name: "unicode characters", input: "  ÉCOLE   Über  ", want: "école über"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeName(t *testing.T) {
	if NormalizeName(nil) != nil {
		t.Error("NormalizeName(nil) should be nil")
	}
	if NormalizeName(strPtr("   ")) != nil {
		t.Error("NormalizeName(blank) should be nil")
	}
	got := NormalizeName(strPtr(" Support  Chat "))
	if got == nil || *got != "support chat" {
		t.Errorf("NormalizeName() = %v, want support chat", got)
	}
}

func TestWorkspaceOrDefault(t *testing.T) {
	if got := WorkspaceOrDefault("  "); got != DefaultWorkspace {
		t.Errorf("WorkspaceOrDefault(blank) = %q, want %q", got, DefaultWorkspace)
	}
	if got := WorkspaceOrDefault("Proj"); got != "Proj" {
		t.Errorf("WorkspaceOrDefault(Proj) = %q", got)
	}
}

func TestAddress(t *testing.T) {
	named := &Session{ID: "01X", WorkspaceRaw: "proj", NameRaw: strPtr("chat")}
	if got := named.Address(); got != "proj/chat" {
		t.Errorf("Address() = %q, want proj/chat", got)
	}
	unnamed := &Session{ID: "01X", WorkspaceRaw: "proj"}
	if got := unnamed.Address(); got != "01X" {
		t.Errorf("Address() = %q, want 01X", got)
	}
}

func TestExportRecord_RecomputesNormalized(t *testing.T) {
	rec := &ExportRecord{
		ID:            "01ABC",
		WorkspaceRaw:  "My Project",
		WorkspaceNorm: "stale",
		NameRaw:       strPtr("Main  Chat"),
		NameNorm:      strPtr("stale"),
		Policy:        "window",
		State:         json.RawMessage(`{"lc":1}`),
		MessageCount:  99,
	}

	s := rec.ToSession()
	if s.WorkspaceNorm != "my project" {
		t.Errorf("WorkspaceNorm = %q, want my project", s.WorkspaceNorm)
	}
	if s.NameNorm == nil || *s.NameNorm != "main chat" {
		t.Errorf("NameNorm = %v, want main chat", s.NameNorm)
	}
	if s.MessageCount != 0 {
		t.Errorf("MessageCount = %d, want 0 (derived by caller)", s.MessageCount)
	}

	back := ToExportRecord(s)
	if back.ID != rec.ID || string(back.State) != string(rec.State) || back.Policy != "window" {
		t.Errorf("ToExportRecord() = %+v", back)
	}
}

func TestToSummary(t *testing.T) {
	s := &Session{ID: "01A", WorkspaceRaw: "W", WorkspaceNorm: "w", Policy: "buffer", MessageCount: 4, State: json.RawMessage(`{}`)}
	sum := s.ToSummary()
	if sum.ID != "01A" || sum.Workspace != "W" || sum.MessageCount != 4 || sum.Policy != "buffer" {
		t.Errorf("ToSummary() = %+v", sum)
	}
}
