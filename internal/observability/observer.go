// Package observability emits structured events from memory operations.
// Level values follow OpenTelemetry severity numbers so events can be
// forwarded to a collector without translation.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Level is event severity aligned with OTel SeverityNumber ranges.
type Level int

const (
	LevelVerbose Level = 5  // OTel DEBUG (5-8)
	LevelInfo    Level = 9  // OTel INFO (9-12)
	LevelWarning Level = 13 // OTel WARN (13-16)
	LevelError   Level = 17 // OTel ERROR (17-20)
)

// String returns the OTel severity text for the level.
func (l Level) String() string {
	switch {
	case l <= 4:
		return "TRACE"
	case l <= 8:
		return "DEBUG"
	case l <= 12:
		return "INFO"
	case l <= 16:
		return "WARN"
	case l <= 20:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// SlogLevel maps the level onto slog.
func (l Level) SlogLevel() slog.Level {
	switch {
	case l <= 8:
		return slog.LevelDebug
	case l <= 12:
		return slog.LevelInfo
	case l <= 16:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// EventType identifies the kind of event.
type EventType string

const (
	EventSessionCreated  EventType = "memory.session.created"
	EventTurnRecorded    EventType = "memory.turn.recorded"
	EventSummaryEvicted  EventType = "memory.summary.evicted"
	EventTokensTrimmed   EventType = "memory.tokens.trimmed"
	EventSessionCleared  EventType = "memory.session.cleared"
	EventSessionDeleted  EventType = "memory.session.deleted"
	EventSessionsPurged  EventType = "memory.sessions.purged"
	EventExportCompleted EventType = "memory.export.completed"
	EventImportCompleted EventType = "memory.import.completed"
	EventSnapshotWritten EventType = "memory.snapshot.written"
	EventSessionRestored EventType = "memory.session.restored"
	EventDecodeFailed    EventType = "memory.decode.failed"
)

// Event is one observability record. Fields map onto an OTel LogRecord:
// Type is the event name, Source the instrumentation scope, Data the attributes.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Observer receives events.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// Emit sends an event stamped with the current time. A nil observer is ignored.
func Emit(ctx context.Context, obs Observer, typ EventType, level Level, source string, data map[string]any) {
	if obs == nil {
		return
	}
	obs.OnEvent(ctx, Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	})
}
