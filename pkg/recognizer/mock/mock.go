// Package mock provides scriptable test doubles for [recognizer.Recognizer]
// and [recognizer.Session].
package mock

import (
	"context"
	"sync"

	"github.com/taylorparsons/interview-practice-app-sub000/pkg/recognizer"
)

// Compile-time interface checks.
var _ recognizer.Recognizer = (*Recognizer)(nil)
var _ recognizer.Session = (*Session)(nil)

// Session is a scriptable recognition session. Tests emit results with
// EmitInterim and EmitFinal and inspect the audio fed to it with Audio.
type Session struct {
	mu       sync.Mutex
	audio    [][]byte
	interims chan recognizer.Result
	finals   chan recognizer.Result
	closed   bool

	// SendAudioErr is returned by SendAudio when non-nil.
	SendAudioErr error
}

// NewSession creates an open mock session.
func NewSession() *Session {
	return &Session{
		interims: make(chan recognizer.Result, 64),
		finals:   make(chan recognizer.Result, 64),
	}
}

// EmitInterim delivers an interim result to the consumer.
func (s *Session) EmitInterim(text string, confidence float64) {
	s.interims <- recognizer.Result{Text: text, Confidence: confidence}
}

// EmitFinal delivers a final result to the consumer.
func (s *Session) EmitFinal(text string, confidence float64) {
	s.finals <- recognizer.Result{Text: text, Confidence: confidence}
}

// Audio returns a copy of every chunk passed to SendAudio.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SendAudio implements [recognizer.Session].
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, append([]byte(nil), chunk...))
	return s.SendAudioErr
}

// Interims implements [recognizer.Session].
func (s *Session) Interims() <-chan recognizer.Result { return s.interims }

// Finals implements [recognizer.Session].
func (s *Session) Finals() <-chan recognizer.Result { return s.finals }

// Close implements [recognizer.Session].
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.interims)
		close(s.finals)
	}
	return nil
}

// Recognizer hands out scripted sessions in order.
type Recognizer struct {
	mu       sync.Mutex
	sessions []*Session
	starts   int
	closed   bool

	// StartErr is returned by Start when non-nil.
	StartErr error
}

// NewRecognizer creates a recognizer that hands out the given sessions.
func NewRecognizer(sessions ...*Session) *Recognizer {
	return &Recognizer{sessions: sessions}
}

// Start implements [recognizer.Recognizer].
func (r *Recognizer) Start(_ context.Context, _ recognizer.Config) (recognizer.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	if r.StartErr != nil {
		return nil, r.StartErr
	}
	if len(r.sessions) == 0 {
		return NewSession(), nil
	}
	s := r.sessions[0]
	r.sessions = r.sessions[1:]
	return s, nil
}

// Close implements [recognizer.Recognizer].
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Starts returns how many times Start was called.
func (r *Recognizer) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

// Closed reports whether Close was called.
func (r *Recognizer) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
