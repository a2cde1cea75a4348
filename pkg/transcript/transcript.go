// Package transcript defines the shared types of the transcript
// synchronization engine.
//
// These types form the lingua franca between the protocol decoder, the merge
// engine, the persistence layer, and the reconciliation engine. They are
// intentionally minimal: each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package transcript

import (
	"strings"
	"time"
	"unicode"
)

// Role identifies the speaker of an utterance.
type Role string

const (
	// RoleCandidate is the interviewee practising their answers.
	RoleCandidate Role = "candidate"

	// RoleCoach is the AI interviewer asking questions and giving feedback.
	RoleCoach Role = "coach"

	// RoleSystem marks synthetic notices (e.g. surfaced upstream errors).
	RoleSystem Role = "system"
)

// Rank returns the deterministic ordering rank of a role, used as a sort
// tie-break when timestamps are missing: candidate before coach before system.
func (r Role) Rank() int {
	switch r {
	case RoleCandidate:
		return 0
	case RoleCoach:
		return 1
	default:
		return 2
	}
}

// Source identifies which recognition path produced a candidate utterance.
type Source string

const (
	// SourcePrimary is the remote/server-side recognition arriving over the
	// realtime event channel.
	SourcePrimary Source = "primary"

	// SourceFallback is the local on-device recognition safety net.
	SourceFallback Source = "fallback"

	// SourceNone marks utterances with no recognition source (coach turns,
	// system notices, synthesized export records).
	SourceNone Source = ""
)

// Utterance is one speaker turn, streaming or finalized.
//
// Role is immutable after creation. Text may only be replaced or extended
// while Streaming is true; once Streaming is false the utterance is finalized
// and must not be mutated again.
type Utterance struct {
	// Role identifies the speaker. Immutable after creation.
	Role Role

	// Text is the utterance text, cumulative while streaming.
	Text string

	// CreatedAt records when the utterance was opened. Zero when unknown
	// (e.g. records synthesized from legacy snapshot data).
	CreatedAt time.Time

	// QuestionIndex is the interview question this utterance belongs to.
	QuestionIndex int

	// Source identifies the recognition path for candidate utterances.
	Source Source

	// Streaming is true while the utterance is still receiving updates.
	Streaming bool
}

// Normalize reduces text to a canonical comparison form: lowercased, with all
// non-alphanumeric runes dropped and whitespace collapsed to single spaces.
// Two finalizations of the same spoken phrase normalize to the same string
// even when the recognizers disagree on casing and punctuation.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	space := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}
