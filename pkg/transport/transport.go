// Package transport defines the abstract bidirectional event channel the
// synchronization engine consumes. The channel delivers tagged JSON events in
// send order with at-least-once semantics; everything about the underlying
// connection is an implementation detail of the concrete stream.
package transport

import (
	"context"
	"time"
)

// Event is one raw inbound message from the realtime channel. Payload decoding
// is deliberately left to the consumer.
type Event struct {
	// Data is the raw JSON payload.
	Data []byte

	// ReceivedAt is when the local end read the event.
	ReceivedAt time.Time
}

// Stream is one live bidirectional event channel.
//
// Events are delivered in send order on the Events channel, which is closed
// when the stream terminates for any reason. After the channel closes, Err
// reports why: nil for a locally requested close, the transport error
// otherwise.
type Stream interface {
	// Events returns the inbound event channel.
	Events() <-chan Event

	// Send transmits one JSON payload to the remote end.
	Send(ctx context.Context, data []byte) error

	// Err returns the terminal stream error, if any. Valid after the Events
	// channel closes.
	Err() error

	// Close tears the stream down. Safe to call multiple times.
	Close() error
}

// Dialer establishes streams. Implementations carry the endpoint and
// credential configuration; the session layer redials through this interface
// after a disconnect.
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}
