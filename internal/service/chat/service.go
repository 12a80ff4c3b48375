// Package chat orchestrates one conversational exchange: read the session
// history, call the model gateway, and commit both turns on success.
package chat

import (
	"context"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/samber/oops"

	chatmodel "github.com/zhouzirui/z-voice/backend/internal/model/chat"
	"github.com/zhouzirui/z-voice/backend/internal/observability"
	"github.com/zhouzirui/z-voice/backend/internal/service/ai"
	"github.com/zhouzirui/z-voice/backend/internal/service/session"
)

const (
	EventRespondStart   observability.EventType = "chat.respond.start"
	EventGatewayCall    observability.EventType = "chat.gateway.call"
	EventRespondSuccess observability.EventType = "chat.respond.success"
	EventRespondFailure observability.EventType = "chat.respond.failure"
	EventSessionClear   observability.EventType = "session.clear"
)

const eventSource = "chat.service"

// Service owns the session store and the gateway. Respond calls on the same
// session run one at a time; different sessions proceed in parallel.
type Service struct {
	store        *session.Store
	gateway      ai.Gateway
	observer     observability.Observer
	modelTimeout time.Duration
}

type Option func(*Service)

func WithObserver(obs observability.Observer) Option {
	return func(s *Service) { s.observer = obs }
}

// WithModelTimeout bounds every gateway call. Zero disables the bound.
func WithModelTimeout(timeout time.Duration) Option {
	return func(s *Service) { s.modelTimeout = timeout }
}

func NewService(store *session.Store, gateway ai.Gateway, opts ...Option) *Service {
	svc := &Service{
		store:    store,
		gateway:  gateway,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Respond produces the assistant reply for userText in sessionID, creating
// the session on first use. On success the user turn and the assistant turn
// are appended in that order. On failure nothing is appended and the error
// is a *ModelInvocationError.
func (s *Service) Respond(ctx context.Context, sessionID, userText string, metadata map[string]any) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrSessionIDRequired
	}
	if strings.TrimSpace(userText) == "" {
		return "", ErrEmptyMessage
	}

	errb := oops.In("chat").With("session_id", sessionID)

	sess := s.store.GetOrCreate(sessionID)
	if err := sess.Acquire(ctx); err != nil {
		s.emit(ctx, EventRespondFailure, observability.LevelWarn, sessionID, map[string]any{
			"error": err.Error(),
			"op":    OpAcquire,
		})
		return "", errb.Wrapf(&ModelInvocationError{SessionID: sessionID, Op: OpAcquire, Err: err}, "waiting for session")
	}
	defer sess.Release()

	history := sess.Turns()
	s.emit(ctx, EventRespondStart, observability.LevelInfo, sessionID, map[string]any{
		"history_len": len(history),
		"input_len":   len(userText),
	})

	start := time.Now()
	reply, err := s.invoke(ctx, sessionID, userText, history, metadata)
	elapsed := time.Since(start)

	if err != nil {
		s.emit(ctx, EventRespondFailure, observability.LevelError, sessionID, map[string]any{
			"error":       err.Error(),
			"op":          OpRespond,
			"duration_ms": elapsed.Milliseconds(),
		})
		return "", errb.With("duration", elapsed).Wrap(&ModelInvocationError{SessionID: sessionID, Op: OpRespond, Err: err})
	}

	sess.Append(
		chatmodel.Turn{Role: chatmodel.RoleUser, Content: userText},
		chatmodel.Turn{Role: chatmodel.RoleAssistant, Content: reply},
	)

	s.emit(ctx, EventRespondSuccess, observability.LevelInfo, sessionID, map[string]any{
		"duration_ms": elapsed.Milliseconds(),
		"reply_len":   len(reply),
		"history_len": sess.Len(),
	})
	return reply, nil
}

// invoke detaches the gateway call from caller cancellation. Only the model
// timeout can end it early, so a dropped client never leaves a half-written
// exchange.
func (s *Service) invoke(ctx context.Context, sessionID, userText string, history []chatmodel.Turn, metadata map[string]any) (string, error) {
	callCtx := context.WithoutCancel(ctx)
	if s.modelTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, s.modelTimeout)
		defer cancel()
	}

	callMeta := make(map[string]any, len(metadata)+1)
	maps.Copy(callMeta, metadata)
	callMeta["session_id"] = sessionID

	s.emit(ctx, EventGatewayCall, observability.LevelDebug, sessionID, map[string]any{
		"timeout": s.modelTimeout.String(),
	})
	return s.gateway.Generate(callCtx, userText, history, callMeta)
}

// Clear empties the session history, waiting for any in-flight Respond on the
// same session. Unknown sessions yield ErrSessionNotFound.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := s.store.Clear(ctx, sessionID); err != nil {
		return oops.In("chat").With("session_id", sessionID).Wrap(err)
	}
	s.emit(ctx, EventSessionClear, observability.LevelInfo, sessionID, nil)
	slog.Info("[chat] session cleared", "session_id", sessionID)
	return nil
}

// Transcript returns a copy of the session history.
func (s *Service) Transcript(sessionID string) ([]chatmodel.Turn, error) {
	return s.store.Transcript(sessionID)
}

func (s *Service) emit(ctx context.Context, eventType observability.EventType, level observability.Level, sessionID string, data map[string]any) {
	observability.Emit(ctx, s.observer, observability.Event{
		Type:      eventType,
		Level:     level,
		Source:    eventSource,
		SessionID: sessionID,
		Data:      data,
	})
}
