// Package observability carries the explicit hook the chat core reports to.
// Services emit Events at fixed points (request start, gateway call, success,
// failure) instead of being wrapped by tracing decorators.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Level is the severity of an event.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// SlogLevel maps the level onto slog.
func (l Level) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// EventType names an event, e.g. "chat.respond.start". Each emitting package
// declares its own constants.
type EventType string

// Event is a single observation emitted by a service.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	SessionID string
	Data      map[string]any
}

// Observer receives events. Implementations must be safe for concurrent use.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// Emit stamps the event and forwards it to obs. A nil observer is ignored.
func Emit(ctx context.Context, obs Observer, event Event) {
	if obs == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	obs.OnEvent(ctx, event)
}
