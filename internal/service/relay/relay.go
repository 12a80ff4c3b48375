// Package relay hands finished assistant replies from the request path to a
// downstream consumer such as speech synthesis.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/do"

	"github.com/zhouzirui/z-voice/backend/internal/observability"
)

const (
	DefaultCapacity = 64

	EventPublish observability.EventType = "relay.publish"
	EventDrop    observability.EventType = "relay.drop"
)

var _ do.Shutdownable = (*Relay)(nil)

// Message is one assistant reply waiting to be consumed.
type Message struct {
	SessionID   string
	Text        string
	PublishedAt time.Time
}

// Relay is a bounded FIFO. Publish never blocks: when the buffer is full the
// oldest pending message is dropped to make room. Each message is taken at
// most once.
type Relay struct {
	mu       sync.RWMutex
	closed   bool
	queue    chan Message
	observer observability.Observer
}

func New(capacity int, observer observability.Observer) *Relay {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &Relay{
		queue:    make(chan Message, capacity),
		observer: observer,
	}
}

// Publish enqueues a reply. It is a no-op once the relay is closed.
func (r *Relay) Publish(ctx context.Context, sessionID, text string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	msg := Message{SessionID: sessionID, Text: text, PublishedAt: time.Now().UTC()}
	for {
		select {
		case r.queue <- msg:
			observability.Emit(ctx, r.observer, observability.Event{
				Type:      EventPublish,
				Level:     observability.LevelDebug,
				Source:    "relay",
				SessionID: sessionID,
				Data:      map[string]any{"pending": len(r.queue)},
			})
			return
		default:
		}

		select {
		case dropped := <-r.queue:
			slog.Warn("[relay] queue is full, dropping oldest message", "dropped_session_id", dropped.SessionID)
			observability.Emit(ctx, r.observer, observability.Event{
				Type:      EventDrop,
				Level:     observability.LevelWarn,
				Source:    "relay",
				SessionID: dropped.SessionID,
				Data:      map[string]any{"capacity": cap(r.queue)},
			})
		default:
		}
	}
}

// TryTake returns the oldest pending message without blocking.
func (r *Relay) TryTake() (Message, bool) {
	select {
	case msg, ok := <-r.queue:
		return msg, ok
	default:
		return Message{}, false
	}
}

// Len is the number of pending messages.
func (r *Relay) Len() int {
	return len(r.queue)
}

// Close stops accepting messages. Pending messages stay takeable.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.queue)
}

func (r *Relay) Shutdown() error {
	r.Close()
	return nil
}
