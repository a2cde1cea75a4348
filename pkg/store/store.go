// Package store defines the session persistence interfaces of the transcript
// engine.
//
// The engine persists two projections of the same conversation: a flat,
// timestamped utterance log (canonical, reconciled at export time) and a pair
// of per-question text slots (a cheap cached projection used for mid-session
// resume). Writes are fire-and-forget from the engine's point of view; the
// idempotence layer above this package suppresses redundant writes and relies
// on checkpoint re-flush rather than retries.
//
// Implementations must be safe for concurrent use.
package store

import (
	"context"

	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transcript"
)

// Snapshot is the full persisted transcript state of one practice session.
type Snapshot struct {
	// Questions lists the session's interview questions in order. The list
	// may name question indexes that have no transcript text yet.
	Questions []string

	// CandidateByQuestion maps a question index to the candidate's answer
	// text. At most one value per index; last write wins.
	CandidateByQuestion map[int]string

	// CoachByQuestion maps a question index to the coach's turn text.
	CoachByQuestion map[int]string

	// FlatLog is the ordered raw utterance log. It may contain multiple
	// records per question; the reconciliation engine coalesces them.
	FlatLog []transcript.Utterance
}

// SessionStore persists and reconstructs per-session transcript state.
type SessionStore interface {
	// PersistCandidate writes the candidate's answer text for one question
	// slot. The write is last-write-wins per question index.
	PersistCandidate(ctx context.Context, sessionID string, questionIndex int, text string, source transcript.Source) error

	// PersistCoach writes the coach's turn text for one question slot.
	PersistCoach(ctx context.Context, sessionID string, questionIndex int, text string) error

	// AppendLog appends one finalized utterance to the session's flat log.
	AppendLog(ctx context.Context, sessionID string, utt transcript.Utterance) error

	// FetchSnapshot returns the session's full persisted transcript state.
	// The snapshot maps are never nil.
	FetchSnapshot(ctx context.Context, sessionID string) (*Snapshot, error)
}
