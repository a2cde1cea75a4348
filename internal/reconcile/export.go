package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/taylorparsons/interview-practice-app-sub000/internal/observe"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/store"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transcript"
)

// Export reconstructs the export timeline from the flat log plus the
// per-question snapshot maps: snapshot text missing from the log is
// synthesized back in, records are ordered by the hybrid timestamp sort, and
// runs of candidate segments are coalesced the way the live view joins them.
func Export(snap *store.Snapshot) []transcript.Utterance {
	if snap == nil {
		return nil
	}

	records := append([]transcript.Utterance(nil), snap.FlatLog...)
	records = append(records, gapFill(snap)...)
	sortRecords(records)
	return coalesceRuns(records)
}

// ExportSession fetches the session snapshot and renders its export
// timeline.
func ExportSession(ctx context.Context, st store.SessionStore, sessionID string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "reconcile.export")
	defer span.End()

	snap, err := st.FetchSnapshot(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("reconcile: fetch snapshot: %w", err)
	}
	return Render(Export(snap)), nil
}

// gapFill synthesizes records for question slots whose snapshot text has no
// matching flat-log record, so legacy or partially-logged sessions are never
// silently truncated in export. Synthesized records carry no timestamp and
// sort by the positional tie-break.
func gapFill(snap *store.Snapshot) []transcript.Utterance {
	logged := make(map[markKey]bool, len(snap.FlatLog))
	for _, rec := range snap.FlatLog {
		logged[markKey{rec.Role, rec.QuestionIndex}] = true
	}

	var out []transcript.Utterance
	for _, q := range questionIndexes(snap) {
		if text := snap.CandidateByQuestion[q]; text != "" && !logged[markKey{transcript.RoleCandidate, q}] {
			out = append(out, transcript.Utterance{
				Role:          transcript.RoleCandidate,
				Text:          text,
				QuestionIndex: q,
			})
		}
		if text := snap.CoachByQuestion[q]; text != "" && !logged[markKey{transcript.RoleCoach, q}] {
			out = append(out, transcript.Utterance{
				Role:          transcript.RoleCoach,
				Text:          text,
				QuestionIndex: q,
			})
		}
	}
	return out
}

type markKey struct {
	role     transcript.Role
	question int
}

// sortRecords orders records by timestamp when both sides have one, falling
// back to (question index, role rank) with insertion order preserved by the
// stable sort. Timestamp coverage in the log is best effort, so the fallback
// keeps partially-stamped exports deterministic.
func sortRecords(records []transcript.Utterance) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CreatedAt.IsZero() && !b.CreatedAt.IsZero() && !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.QuestionIndex != b.QuestionIndex {
			return a.QuestionIndex < b.QuestionIndex
		}
		return a.Role.Rank() < b.Role.Rank()
	})
}

// coalesceRuns merges each run of consecutive candidate records within the
// same question into one record, space-joining the text and keeping the
// earliest timestamp of the run.
func coalesceRuns(records []transcript.Utterance) []transcript.Utterance {
	out := make([]transcript.Utterance, 0, len(records))
	for _, rec := range records {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if rec.Role == transcript.RoleCandidate &&
				last.Role == transcript.RoleCandidate &&
				last.QuestionIndex == rec.QuestionIndex {
				last.Text = joinSegments(last.Text, rec.Text)
				if last.CreatedAt.IsZero() ||
					(!rec.CreatedAt.IsZero() && rec.CreatedAt.Before(last.CreatedAt)) {
					last.CreatedAt = rec.CreatedAt
				}
				continue
			}
		}
		out = append(out, rec)
	}
	return out
}

func joinSegments(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

// Render formats a timeline as plain UTF-8 text, one utterance per line:
//
//	[2026-03-14T10:02:07Z] Candidate: I led the team.
//
// The bracketed timestamp is omitted for records without one.
func Render(records []transcript.Utterance) string {
	var b strings.Builder
	for _, rec := range records {
		if !rec.CreatedAt.IsZero() {
			b.WriteByte('[')
			b.WriteString(rec.CreatedAt.UTC().Format(time.RFC3339))
			b.WriteString("] ")
		}
		b.WriteString(roleLabel(rec.Role))
		b.WriteString(": ")
		b.WriteString(rec.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

func roleLabel(role transcript.Role) string {
	switch role {
	case transcript.RoleCandidate:
		return "Candidate"
	case transcript.RoleCoach:
		return "Coach"
	case transcript.RoleSystem:
		return "System"
	default:
		return string(role)
	}
}
