// Package postgres provides a PostgreSQL-backed implementation of
// [store.SessionStore].
//
// Two projections of the session transcript share a single [pgxpool.Pool]:
// the canonical flat utterance log (transcript_log) and the per-question slot
// tables (candidate_answers, coach_turns) used for cheap mid-session resume.
// Slot writes are upserts keyed on (session_id, question_index), so repeated
// checkpoint flushes of the same value are harmless.
//
// Usage:
//
//	st, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//
//	_ = st.PersistCandidate(ctx, sessionID, 3, "I led the team.", transcript.SourcePrimary)
//	snap, _ := st.FetchSnapshot(ctx, sessionID)
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taylorparsons/interview-practice-app-sub000/pkg/store"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transcript"
)

// Compile-time interface check.
var _ store.SessionStore = (*Store)(nil)

// Store implements [store.SessionStore] on top of PostgreSQL.
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, and runs [Migrate] to ensure all required tables exist.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("session store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("session store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("session store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// PersistCandidate implements [store.SessionStore]. The write is an upsert:
// a question index maps to at most one candidate text, last write wins.
func (s *Store) PersistCandidate(ctx context.Context, sessionID string, questionIndex int, text string, source transcript.Source) error {
	const q = `
		INSERT INTO candidate_answers (session_id, question_index, text, source, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (session_id, question_index)
		DO UPDATE SET text = EXCLUDED.text, source = EXCLUDED.source, updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, sessionID, questionIndex, text, string(source)); err != nil {
		return fmt.Errorf("session store: persist candidate: %w", err)
	}
	return nil
}

// PersistCoach implements [store.SessionStore].
func (s *Store) PersistCoach(ctx context.Context, sessionID string, questionIndex int, text string) error {
	const q = `
		INSERT INTO coach_turns (session_id, question_index, text, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (session_id, question_index)
		DO UPDATE SET text = EXCLUDED.text, updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, sessionID, questionIndex, text); err != nil {
		return fmt.Errorf("session store: persist coach: %w", err)
	}
	return nil
}

// AppendLog implements [store.SessionStore]. It appends utt to the canonical
// flat log.
func (s *Store) AppendLog(ctx context.Context, sessionID string, utt transcript.Utterance) error {
	const q = `
		INSERT INTO transcript_log (session_id, role, text, question_index, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	var createdAt *time.Time
	if !utt.CreatedAt.IsZero() {
		createdAt = &utt.CreatedAt
	}

	_, err := s.pool.Exec(ctx, q,
		sessionID,
		string(utt.Role),
		utt.Text,
		utt.QuestionIndex,
		string(utt.Source),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("session store: append log: %w", err)
	}
	return nil
}

// FetchSnapshot implements [store.SessionStore]. It reads both projections
// plus the question list in insertion order.
func (s *Store) FetchSnapshot(ctx context.Context, sessionID string) (*store.Snapshot, error) {
	snap := &store.Snapshot{
		CandidateByQuestion: make(map[int]string),
		CoachByQuestion:     make(map[int]string),
	}

	questions, err := s.fetchQuestions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap.Questions = questions

	if err := s.fetchSlots(ctx, sessionID, "candidate_answers", snap.CandidateByQuestion); err != nil {
		return nil, err
	}
	if err := s.fetchSlots(ctx, sessionID, "coach_turns", snap.CoachByQuestion); err != nil {
		return nil, err
	}

	log, err := s.fetchLog(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap.FlatLog = log

	return snap, nil
}

func (s *Store) fetchQuestions(ctx context.Context, sessionID string) ([]string, error) {
	const q = `
		SELECT text
		FROM   session_questions
		WHERE  session_id = $1
		ORDER  BY question_index`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session store: fetch questions: %w", err)
	}
	questions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("session store: scan questions: %w", err)
	}
	if questions == nil {
		questions = []string{}
	}
	return questions, nil
}

// fetchSlots reads one per-question slot table into dst. The table name is
// one of the two fixed projection tables, never caller input.
func (s *Store) fetchSlots(ctx context.Context, sessionID, table string, dst map[int]string) error {
	q := fmt.Sprintf(`SELECT question_index, text FROM %s WHERE session_id = $1`, table)

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return fmt.Errorf("session store: fetch %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			idx  int
			text string
		)
		if err := rows.Scan(&idx, &text); err != nil {
			return fmt.Errorf("session store: scan %s: %w", table, err)
		}
		dst[idx] = text
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("session store: iterate %s: %w", table, err)
	}
	return nil
}

func (s *Store) fetchLog(ctx context.Context, sessionID string) ([]transcript.Utterance, error) {
	const q = `
		SELECT role, text, question_index, source, created_at
		FROM   transcript_log
		WHERE  session_id = $1
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session store: fetch log: %w", err)
	}

	log, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (transcript.Utterance, error) {
		var (
			u         transcript.Utterance
			role      string
			source    string
			createdAt *time.Time
		)
		if err := row.Scan(&role, &u.Text, &u.QuestionIndex, &source, &createdAt); err != nil {
			return transcript.Utterance{}, err
		}
		u.Role = transcript.Role(role)
		u.Source = transcript.Source(source)
		if createdAt != nil {
			u.CreatedAt = *createdAt
		}
		return u, nil
	})
	if err != nil {
		return nil, fmt.Errorf("session store: scan log: %w", err)
	}
	if log == nil {
		log = []transcript.Utterance{}
	}
	return log, nil
}
