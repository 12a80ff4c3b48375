// Package session holds one ordered transcript per session identifier.
//
// The store is an arena of sessions keyed by id. The store-level lock only
// guards the map; every Session owns its own gate and transcript lock, so
// work on one session never blocks another.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/google/uuid"

	"github.com/zhouzirui/z-voice/backend/internal/model/chat"
)

// ErrSessionNotFound is returned for ids that were never created.
var ErrSessionNotFound = errors.New("session not found")

// Session is a single conversation. It is created lazily by the Store and is
// never removed except by Store.Reset.
type Session struct {
	id        string
	createdAt time.Time

	// gate is a one-slot semaphore that linearizes read→call→append cycles.
	gate chan struct{}

	mu    sync.RWMutex
	turns []chat.Turn
}

func newSession(id string) *Session {
	return &Session{
		id:        id,
		createdAt: time.Now().UTC(),
		gate:      make(chan struct{}, 1),
		turns:     make([]chat.Turn, 0, 16),
	}
}

// ID returns the caller-supplied session key.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was first referenced.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Acquire takes the session gate. It blocks until the gate is free or ctx is done.
func (s *Session) Acquire(ctx context.Context) error {
	select {
	case s.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the gate taken by Acquire.
func (s *Session) Release() {
	<-s.gate
}

// Turns returns a copy of the transcript.
func (s *Session) Turns() []chat.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]chat.Turn, len(s.turns))
	copy(copied, s.turns)
	return copied
}

// Len returns the number of turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Append adds turns in the given order. Missing ids and timestamps are filled
// in. Callers hold the gate so appends from different requests never interleave.
func (s *Session) Append(turns ...chat.Turn) {
	if len(turns) == 0 {
		return
	}

	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, turn := range turns {
		if turn.ID == "" {
			turn.ID = uuid.NewString()
		}
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = now
		}
		s.turns = append(s.turns, turn)
	}
}

func (s *Session) clear() {
	s.mu.Lock()
	s.turns = s.turns[:0:0]
	s.mu.Unlock()
}

// Store is the in-memory arena of sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for id, creating an empty one if needed.
func (st *Store) GetOrCreate(id string) *Session {
	st.mu.RLock()
	sess, ok := st.sessions[id]
	st.mu.RUnlock()
	if ok {
		return sess
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if sess, ok = st.sessions[id]; ok {
		return sess
	}
	sess = newSession(id)
	st.sessions[id] = sess
	return sess
}

// Get looks up an existing session.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sess, ok := st.sessions[id]
	return sess, ok
}

// Transcript returns a copy of the session's turns.
func (st *Store) Transcript(id string) ([]chat.Turn, error) {
	sess, ok := st.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Turns(), nil
}

// Clear empties the transcript of an existing session; the session itself
// stays in the store. Clear waits for an in-flight cycle on the same session.
func (st *Store) Clear(ctx context.Context, id string) error {
	sess, ok := st.Get(id)
	if !ok {
		return ErrSessionNotFound
	}

	if err := sess.Acquire(ctx); err != nil {
		return err
	}
	defer sess.Release()

	sess.clear()
	return nil
}

// Len returns the number of known sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// IDs lists known session ids in lexical order.
func (st *Store) IDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return pie.Sort(pie.Keys(st.sessions))
}

// Reset drops every session. Used on process teardown.
func (st *Store) Reset() {
	st.mu.Lock()
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()
}
