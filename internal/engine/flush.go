package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transcript"
)

// markKey identifies one persist slot: the latest finalized text for a role
// within a question.
type markKey struct {
	role     transcript.Role
	question int
}

// persistSlot writes the latest finalized text for (role, question) unless an
// identical write was already acknowledged. Marks are updated only on
// success, so a failed write is naturally re-driven by the next checkpoint.
// Must be called with e.mu held.
func (e *Engine) persistSlot(ctx context.Context, role transcript.Role, question int, text string, source transcript.Source) {
	if text == "" {
		return
	}
	key := markKey{role, question}
	if e.marks[key] == text {
		return
	}

	var err error
	switch role {
	case transcript.RoleCandidate:
		err = e.store.PersistCandidate(ctx, e.sessionID, question, text, source)
	case transcript.RoleCoach:
		err = e.store.PersistCoach(ctx, e.sessionID, question, text)
	default:
		return
	}
	if err != nil {
		e.logWriteFailure(ctx, "persist", err)
		return
	}

	e.marks[key] = text
	e.metrics.PersistWrites.Add(ctx, 1,
		metric.WithAttributes(attribute.String("role", string(role))))
}

// appendLog records one finalized utterance in the append-only session log.
// Must be called with e.mu held.
func (e *Engine) appendLog(ctx context.Context, utt transcript.Utterance) {
	if err := e.store.AppendLog(ctx, e.sessionID, utt); err != nil {
		e.logWriteFailure(ctx, "append_log", err)
	}
}

// flushQuestion re-persists both roles' latest text for one question. Writes
// already acknowledged at the same text are skipped by the mark comparison.
// Must be called with e.mu held.
func (e *Engine) flushQuestion(ctx context.Context, question int) {
	start := e.now()

	if text, ok := e.candidateText[question]; ok {
		e.persistSlot(ctx, transcript.RoleCandidate, question, text, transcript.SourcePrimary)
	}
	if text, ok := e.coachText[question]; ok {
		e.persistSlot(ctx, transcript.RoleCoach, question, text, transcript.SourceNone)
	}

	e.metrics.FlushDuration.Record(ctx, e.now().Sub(start).Seconds())
}

// flushAll re-persists every question's latest text. Must be called with
// e.mu held.
func (e *Engine) flushAll(ctx context.Context) {
	seen := make(map[int]bool, len(e.candidateText)+len(e.coachText))
	for q := range e.candidateText {
		seen[q] = true
	}
	for q := range e.coachText {
		seen[q] = true
	}
	for q := range seen {
		e.flushQuestion(ctx, q)
	}
}
