package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL: canonical flat utterance log
// ─────────────────────────────────────────────────────────────────────────────

const ddlTranscriptLog = `
CREATE TABLE IF NOT EXISTS transcript_log (
    id             BIGSERIAL    PRIMARY KEY,
    session_id     TEXT         NOT NULL,
    role           TEXT         NOT NULL,
    text           TEXT         NOT NULL,
    question_index INT          NOT NULL DEFAULT 0,
    source         TEXT         NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_transcript_log_session
    ON transcript_log (session_id, id);
`

// ─────────────────────────────────────────────────────────────────────────────
// DDL: per-question slot projections
// ─────────────────────────────────────────────────────────────────────────────

const ddlCandidateAnswers = `
CREATE TABLE IF NOT EXISTS candidate_answers (
    session_id     TEXT         NOT NULL,
    question_index INT          NOT NULL,
    text           TEXT         NOT NULL,
    source         TEXT         NOT NULL DEFAULT '',
    updated_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (session_id, question_index)
);
`

const ddlCoachTurns = `
CREATE TABLE IF NOT EXISTS coach_turns (
    session_id     TEXT         NOT NULL,
    question_index INT          NOT NULL,
    text           TEXT         NOT NULL,
    updated_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (session_id, question_index)
);
`

const ddlSessionQuestions = `
CREATE TABLE IF NOT EXISTS session_questions (
    session_id     TEXT NOT NULL,
    question_index INT  NOT NULL,
    text           TEXT NOT NULL,
    PRIMARY KEY (session_id, question_index)
);
`

// Migrate creates all tables and indexes required by [Store] if they do not
// already exist. It is idempotent and safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []struct {
		name string
		ddl  string
	}{
		{"transcript_log", ddlTranscriptLog},
		{"candidate_answers", ddlCandidateAnswers},
		{"coach_turns", ddlCoachTurns},
		{"session_questions", ddlSessionQuestions},
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt.ddl); err != nil {
			return fmt.Errorf("migrate %s: %w", stmt.name, err)
		}
	}
	return nil
}
