package relay

import (
	"context"
	"log/slog"
	"time"
)

const DefaultPollInterval = 100 * time.Millisecond

// Sink receives every message the consumer takes from the relay.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg Message) error

func (f SinkFunc) Deliver(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Consumer drains the relay on a fixed poll interval.
type Consumer struct {
	relay    *Relay
	sink     Sink
	interval time.Duration
}

func NewConsumer(relay *Relay, sink Sink, interval time.Duration) *Consumer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Consumer{relay: relay, sink: sink, interval: interval}
}

// Run polls until ctx is done, delivering everything pending on each tick.
// Sink errors are logged and do not stop the loop.
func (c *Consumer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	slog.Info("[relay] consumer started", "interval", c.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("[relay] consumer stopped")
			return nil
		case <-ticker.C:
			c.drain(ctx)
		}
	}
}

// drain stops early once ctx is done; undelivered messages stay queued.
func (c *Consumer) drain(ctx context.Context) {
	for ctx.Err() == nil {
		msg, ok := c.relay.TryTake()
		if !ok {
			return
		}

		start := time.Now()
		if err := c.sink.Deliver(ctx, msg); err != nil {
			slog.Error("[relay] deliver failed", "session_id", msg.SessionID, "error", err)
			continue
		}
		slog.Debug("[relay] delivered", "session_id", msg.SessionID, "latency", time.Since(msg.PublishedAt), "took", time.Since(start))
	}
}
