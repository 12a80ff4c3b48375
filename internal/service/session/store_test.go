package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/z-voice/backend/internal/model/chat"
	"github.com/zhouzirui/z-voice/backend/internal/service/session"
)

func TestGetOrCreateIsIdempotent(t *testing.T) {
	store := session.NewStore()

	a := store.GetOrCreate("s1")
	b := store.GetOrCreate("s1")

	if a != b {
		t.Fatal("expected the same session for repeated GetOrCreate")
	}
	if a.Len() != 0 {
		t.Fatalf("new session should be empty, got %d turns", a.Len())
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", store.Len())
	}
}

func TestAppendKeepsOrderAndFillsFields(t *testing.T) {
	store := session.NewStore()
	sess := store.GetOrCreate("s1")

	sess.Append(
		chat.Turn{Role: chat.RoleUser, Content: "hello"},
		chat.Turn{Role: chat.RoleAssistant, Content: "hi"},
	)

	turns, err := store.Transcript("s1")
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != chat.RoleUser || turns[1].Role != chat.RoleAssistant {
		t.Fatalf("unexpected order: %+v", turns)
	}
	for _, turn := range turns {
		if turn.ID == "" || turn.CreatedAt.IsZero() {
			t.Fatalf("turn fields not filled: %+v", turn)
		}
	}
}

func TestTurnsReturnsCopy(t *testing.T) {
	store := session.NewStore()
	sess := store.GetOrCreate("s1")
	sess.Append(chat.Turn{Role: chat.RoleUser, Content: "hello"})

	turns := sess.Turns()
	turns[0].Content = "mutated"

	if got := sess.Turns()[0].Content; got != "hello" {
		t.Fatalf("transcript mutated through copy: %q", got)
	}
}

func TestClearKeepsSession(t *testing.T) {
	store := session.NewStore()
	ctx := context.Background()
	sess := store.GetOrCreate("s1")
	sess.Append(chat.Turn{Role: chat.RoleUser, Content: "hello"})

	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear err: %v", err)
	}

	turns, err := store.Transcript("s1")
	if err != nil {
		t.Fatalf("session should still exist after clear: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected empty transcript, got %d", len(turns))
	}
	if store.GetOrCreate("s1") != sess {
		t.Fatal("GetOrCreate after clear returned a different session")
	}

	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatalf("second clear should succeed on an existing empty session: %v", err)
	}
}

func TestClearUnknownSession(t *testing.T) {
	store := session.NewStore()

	err := store.Clear(context.Background(), "unknown")
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := store.Transcript("unknown"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound from Transcript, got %v", err)
	}
}

func TestClearWaitsForGate(t *testing.T) {
	store := session.NewStore()
	sess := store.GetOrCreate("s1")

	if err := sess.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire err: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := store.Clear(ctx, "s1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected clear to block on held gate, got %v", err)
	}

	sess.Release()
	if err := store.Clear(context.Background(), "s1"); err != nil {
		t.Fatalf("Clear after release err: %v", err)
	}
}

func TestGatesAreIndependentAcrossSessions(t *testing.T) {
	store := session.NewStore()
	a := store.GetOrCreate("a")
	b := store.GetOrCreate("b")

	if err := a.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	defer a.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.Acquire(ctx); err != nil {
		t.Fatalf("session b blocked by session a: %v", err)
	}
	b.Release()
}

func TestConcurrentGetOrCreate(t *testing.T) {
	store := session.NewStore()

	var wg sync.WaitGroup
	results := make([]*session.Session, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()

	for _, sess := range results {
		if sess != results[0] {
			t.Fatal("concurrent GetOrCreate produced different sessions")
		}
	}
}

func TestResetAndIDs(t *testing.T) {
	store := session.NewStore()
	store.GetOrCreate("b")
	store.GetOrCreate("a")

	ids := store.IDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected ids: %v", ids)
	}

	store.Reset()
	if store.Len() != 0 {
		t.Fatalf("expected empty store after reset, got %d", store.Len())
	}
	if _, ok := store.Get("a"); ok {
		t.Fatal("session survived reset")
	}
}
