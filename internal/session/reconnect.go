// Package session wires one practice session together: the realtime event
// stream, the local fallback recognizer, the synchronization engine and the
// periodic checkpoint flush. It owns the lifecycle of every acquired
// resource and guarantees release on all exit paths.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transport"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// ErrReconnectExhausted is returned by [Reconnector.Redial] when every
// attempt failed.
var ErrReconnectExhausted = errors.New("session: reconnect attempts exhausted")

// Reconnector owns the live transport stream and re-establishes it with
// exponential backoff after a drop. All methods are safe for concurrent use.
type Reconnector struct {
	dialer     transport.Dialer
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration

	mu       sync.Mutex
	stream   transport.Stream
	done     chan struct{}
	stopOnce sync.Once
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Dialer establishes streams.
	Dialer transport.Dialer

	// MaxRetries caps redial attempts per drop. Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the initial delay between attempts, doubling up to
	// MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff caps the delay. Defaults to 30s if zero.
	MaxBackoff time.Duration
}

// NewReconnector creates a [Reconnector] with the given configuration.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &Reconnector{
		dialer:     cfg.Dialer,
		maxRetries: maxRetries,
		backoff:    backoff,
		maxBackoff: maxBackoff,
		done:       make(chan struct{}),
	}
}

// Connect performs the initial dial.
func (r *Reconnector) Connect(ctx context.Context) (transport.Stream, error) {
	stream, err := r.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: initial connect: %w", err)
	}

	r.mu.Lock()
	r.stream = stream
	r.mu.Unlock()
	return stream, nil
}

// Redial re-establishes the stream with exponential backoff after a drop,
// closing the dead stream once the replacement is live. The caller is
// expected to checkpoint-flush the engine before calling, so a failed
// reconnect never costs finalized text.
func (r *Reconnector) Redial(ctx context.Context) (transport.Stream, error) {
	backoff := r.backoff

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.done:
			return nil, ErrReconnectExhausted
		default:
		}

		slog.Info("attempting stream reconnect",
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"backoff", backoff,
		)

		stream, err := r.dialer.Dial(ctx)
		if err == nil {
			r.mu.Lock()
			old := r.stream
			r.stream = stream
			r.mu.Unlock()

			if old != nil {
				_ = old.Close()
			}

			slog.Info("stream reconnect successful", "attempt", attempt)
			return stream, nil
		}

		slog.Warn("stream reconnect attempt failed",
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.done:
			return nil, ErrReconnectExhausted
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}

	return nil, ErrReconnectExhausted
}

// Stream returns the current live stream. May be nil mid-reconnect.
func (r *Reconnector) Stream() transport.Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream
}

// Stop halts any in-flight redial and closes the current stream. Safe to
// call multiple times.
func (r *Reconnector) Stop() error {
	r.stopOnce.Do(func() {
		close(r.done)
	})

	r.mu.Lock()
	stream := r.stream
	r.stream = nil
	r.mu.Unlock()

	if stream != nil {
		return stream.Close()
	}
	return nil
}
