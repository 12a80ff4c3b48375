package observability

import (
	"context"
	"sync"
)

// Counter tallies events by type. It backs the counters shown by the health
// details endpoint and is handy in tests.
type Counter struct {
	mu     sync.Mutex
	counts map[EventType]int
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[EventType]int)}
}

func (c *Counter) OnEvent(_ context.Context, event Event) {
	c.mu.Lock()
	c.counts[event.Type]++
	c.mu.Unlock()
}

// Count returns how many events of type t were seen.
func (c *Counter) Count(t EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[t]
}

// Snapshot copies the current tallies keyed by event name.
func (c *Counter) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[string(k)] = v
	}
	return out
}
