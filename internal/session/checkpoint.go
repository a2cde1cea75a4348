package session

import (
	"context"
	"sync"
	"time"
)

// defaultCheckpointInterval is the default period between checkpoint flushes.
const defaultCheckpointInterval = 30 * time.Second

// flusher is the slice of the engine the checkpointer needs.
type flusher interface {
	Checkpoint(ctx context.Context)
}

// Checkpointer periodically re-flushes the engine's latest finalized text to
// the store. Persistence failures are swallowed at write time, so periodic
// re-flush is what bounds data loss for long-running sessions.
//
// All methods are safe for concurrent use.
type Checkpointer struct {
	engine   flusher
	interval time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// NewCheckpointer creates a [Checkpointer] flushing eng every interval.
// A non-positive interval falls back to the default of 30s.
func NewCheckpointer(eng flusher, interval time.Duration) *Checkpointer {
	if interval <= 0 {
		interval = defaultCheckpointInterval
	}
	return &Checkpointer{
		engine:   eng,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins periodic flushing in a background goroutine. The goroutine
// runs until [Checkpointer.Stop] is called or ctx is cancelled.
func (c *Checkpointer) Start(ctx context.Context) {
	go c.loop(ctx)
}

// Stop halts the flush loop. Safe to call multiple times.
func (c *Checkpointer) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

// FlushNow performs an immediate checkpoint flush.
func (c *Checkpointer) FlushNow(ctx context.Context) {
	c.engine.Checkpoint(ctx)
}

func (c *Checkpointer) loop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.engine.Checkpoint(ctx)
		}
	}
}
