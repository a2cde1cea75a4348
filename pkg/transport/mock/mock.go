// Package mock provides scriptable test doubles for [transport.Stream] and
// [transport.Dialer].
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transport"
)

// Compile-time interface checks.
var _ transport.Stream = (*Stream)(nil)
var _ transport.Dialer = (*Dialer)(nil)

// Stream is a scriptable in-memory event stream. Tests push inbound events
// with [Stream.Push] and terminate the stream with [Stream.Fail] or Close.
type Stream struct {
	mu     sync.Mutex
	events chan transport.Event
	sent   [][]byte
	err    error
	closed bool

	// SendErr is returned by Send when non-nil.
	SendErr error
}

// NewStream creates an open mock stream.
func NewStream() *Stream {
	return &Stream{events: make(chan transport.Event, 64)}
}

// Push delivers one inbound event to the consumer.
func (s *Stream) Push(data []byte) {
	s.events <- transport.Event{Data: data, ReceivedAt: time.Now()}
}

// Fail terminates the stream with err, simulating a dropped connection.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.events)
}

// Sent returns a copy of every payload passed to Send.
func (s *Stream) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

// Events implements [transport.Stream].
func (s *Stream) Events() <-chan transport.Event { return s.events }

// Send implements [transport.Stream].
func (s *Stream) Send(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, append([]byte(nil), data...))
	return s.SendErr
}

// Err implements [transport.Stream].
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements [transport.Stream].
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// Dialer hands out a scripted sequence of streams. When the script is
// exhausted it returns DialErr (or a fresh empty stream when DialErr is nil).
type Dialer struct {
	mu      sync.Mutex
	streams []*Stream
	dials   int

	// DialErr is returned once the scripted streams run out.
	DialErr error
}

// NewDialer creates a dialer that hands out the given streams in order.
func NewDialer(streams ...*Stream) *Dialer {
	return &Dialer{streams: streams}
}

// Dial implements [transport.Dialer].
func (d *Dialer) Dial(_ context.Context) (transport.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.streams) == 0 {
		if d.DialErr != nil {
			return nil, d.DialErr
		}
		return NewStream(), nil
	}
	s := d.streams[0]
	d.streams = d.streams[1:]
	return s, nil
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
