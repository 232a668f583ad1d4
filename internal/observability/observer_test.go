package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/lichen/internal/observability"
)

type captureObserver struct {
	events *[]observability.Event
}

func (c *captureObserver) OnEvent(_ context.Context, event observability.Event) {
	*c.events = append(*c.events, event)
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		name  string
		level observability.Level
		want  string
	}{
		{name: "trace range", level: 1, want: "TRACE"},
		{name: "verbose maps to DEBUG", level: observability.LevelVerbose, want: "DEBUG"},
		{name: "info maps to INFO", level: observability.LevelInfo, want: "INFO"},
		{name: "warning maps to WARN", level: observability.LevelWarning, want: "WARN"},
		{name: "error maps to ERROR", level: observability.LevelError, want: "ERROR"},
		{name: "fatal range", level: 21, want: "FATAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
			}
		})
	}
}

func TestLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		level observability.Level
		want  slog.Level
	}{
		{observability.LevelVerbose, slog.LevelDebug},
		{observability.LevelInfo, slog.LevelInfo},
		{observability.LevelWarning, slog.LevelWarn},
		{observability.LevelError, slog.LevelError},
	}
	for _, tt := range tests {
		if got := tt.level.SlogLevel(); got != tt.want {
			t.Errorf("Level(%d).SlogLevel() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestSlogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := observability.NewSlogObserver(logger)

	obs.OnEvent(context.Background(), observability.Event{
		Type:      observability.EventTurnRecorded,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "ops",
		Data:      map[string]any{"session_id": "01ABC"},
	})

	out := buf.String()
	for _, want := range []string{"memory.turn.recorded", "source=ops", "session_id=01ABC", "level=INFO"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestMultiObserver(t *testing.T) {
	var events1, events2 []observability.Event
	multi := observability.NewMultiObserver(&captureObserver{events: &events1}, nil, &captureObserver{events: &events2})

	observability.Emit(context.Background(), multi, observability.EventSessionCleared, observability.LevelInfo, "test", nil)

	if len(events1) != 1 || len(events2) != 1 {
		t.Fatalf("events = %d, %d; want 1, 1", len(events1), len(events2))
	}
	if events1[0].Type != observability.EventSessionCleared {
		t.Errorf("Type = %q, want %q", events1[0].Type, observability.EventSessionCleared)
	}
	if events1[0].Timestamp.IsZero() {
		t.Error("Emit() did not stamp the event")
	}
}

func TestEmit_NilObserver(t *testing.T) {
	observability.Emit(context.Background(), nil, observability.EventSessionCreated, observability.LevelInfo, "test", nil)
}

func TestRegistry(t *testing.T) {
	if _, err := observability.GetObserver("noop"); err != nil {
		t.Errorf("GetObserver(noop) error = %v", err)
	}
	if _, err := observability.GetObserver("missing"); err == nil {
		t.Error("GetObserver(missing) error = nil, want error")
	}

	var events []observability.Event
	observability.RegisterObserver("capture", &captureObserver{events: &events})
	obs, err := observability.GetObserver("capture")
	if err != nil {
		t.Fatalf("GetObserver(capture) error = %v", err)
	}
	obs.OnEvent(context.Background(), observability.Event{Type: "x"})
	if len(events) != 1 {
		t.Errorf("captured %d events, want 1", len(events))
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := observability.ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
