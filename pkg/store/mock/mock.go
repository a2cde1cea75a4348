// Package mock provides an in-memory test double for [store.SessionStore].
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what it returns. It also maintains real
// in-memory state (slot maps and flat log), so persist-then-fetch round
// trips behave like a live store. Safe for concurrent use.
//
// Typical usage:
//
//	st := &mock.SessionStore{}
//
//	// inject st into the system under test …
//
//	if got := st.CallCount("PersistCandidate"); got != 1 {
//	    t.Errorf("expected 1 PersistCandidate call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/taylorparsons/interview-practice-app-sub000/pkg/store"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transcript"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// SessionStore is a configurable test double for [store.SessionStore].
// All exported *Err fields default to nil (success).
type SessionStore struct {
	mu sync.Mutex

	calls []Call

	candidate map[int]string
	coach     map[int]string
	log       []transcript.Utterance

	// Questions is returned in fetched snapshots.
	Questions []string

	// PersistCandidateErr is returned by PersistCandidate when non-nil.
	// The write is not recorded in the in-memory state on error.
	PersistCandidateErr error

	// PersistCoachErr is returned by PersistCoach when non-nil.
	PersistCoachErr error

	// AppendLogErr is returned by AppendLog when non-nil.
	AppendLogErr error

	// FetchSnapshotErr is returned by FetchSnapshot when non-nil.
	FetchSnapshotErr error
}

// Compile-time interface check.
var _ store.SessionStore = (*SessionStore)(nil)

// Calls returns a copy of all recorded method invocations.
func (m *SessionStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *SessionStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering stored state or response
// configuration.
func (m *SessionStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Log returns a copy of all utterances appended to the flat log.
func (m *SessionStore) Log() []transcript.Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]transcript.Utterance, len(m.log))
	copy(out, m.log)
	return out
}

// PersistCandidate implements [store.SessionStore].
func (m *SessionStore) PersistCandidate(_ context.Context, sessionID string, questionIndex int, text string, source transcript.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "PersistCandidate", Args: []any{sessionID, questionIndex, text, source}})
	if m.PersistCandidateErr != nil {
		return m.PersistCandidateErr
	}
	if m.candidate == nil {
		m.candidate = make(map[int]string)
	}
	m.candidate[questionIndex] = text
	return nil
}

// PersistCoach implements [store.SessionStore].
func (m *SessionStore) PersistCoach(_ context.Context, sessionID string, questionIndex int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "PersistCoach", Args: []any{sessionID, questionIndex, text}})
	if m.PersistCoachErr != nil {
		return m.PersistCoachErr
	}
	if m.coach == nil {
		m.coach = make(map[int]string)
	}
	m.coach[questionIndex] = text
	return nil
}

// AppendLog implements [store.SessionStore].
func (m *SessionStore) AppendLog(_ context.Context, sessionID string, utt transcript.Utterance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "AppendLog", Args: []any{sessionID, utt}})
	if m.AppendLogErr != nil {
		return m.AppendLogErr
	}
	m.log = append(m.log, utt)
	return nil
}

// FetchSnapshot implements [store.SessionStore].
func (m *SessionStore) FetchSnapshot(_ context.Context, sessionID string) (*store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "FetchSnapshot", Args: []any{sessionID}})
	if m.FetchSnapshotErr != nil {
		return nil, m.FetchSnapshotErr
	}

	snap := &store.Snapshot{
		Questions:           append([]string(nil), m.Questions...),
		CandidateByQuestion: make(map[int]string, len(m.candidate)),
		CoachByQuestion:     make(map[int]string, len(m.coach)),
		FlatLog:             append([]transcript.Utterance(nil), m.log...),
	}
	for k, v := range m.candidate {
		snap.CandidateByQuestion[k] = v
	}
	for k, v := range m.coach {
		snap.CoachByQuestion[k] = v
	}
	return snap, nil
}

// SeedCandidate pre-populates a candidate slot without recording a call.
// Useful for hydration and gap-fill tests.
func (m *SessionStore) SeedCandidate(questionIndex int, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.candidate == nil {
		m.candidate = make(map[int]string)
	}
	m.candidate[questionIndex] = text
}

// SeedCoach pre-populates a coach slot without recording a call.
func (m *SessionStore) SeedCoach(questionIndex int, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.coach == nil {
		m.coach = make(map[int]string)
	}
	m.coach[questionIndex] = text
}
