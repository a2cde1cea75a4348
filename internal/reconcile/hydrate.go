// Package reconcile rebuilds ordered transcript timelines from persisted
// session state. It serves two consumers with different fidelity needs:
// mid-session resume, which only needs per-question grouping, and full
// session export, which reconstructs the closest possible chronological
// order from the flat log.
package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/taylorparsons/interview-practice-app-sub000/internal/observe"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/store"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transcript"
)

// Hydrate rebuilds a resume timeline from the per-question snapshot maps.
// Entries are grouped by question index in ascending order, candidate before
// coach within each question. Cross-question chronological order is not
// reconstructed; the export path is the high-fidelity one.
func Hydrate(snap *store.Snapshot) []transcript.Utterance {
	if snap == nil {
		return nil
	}

	indexes := questionIndexes(snap)
	out := make([]transcript.Utterance, 0, 2*len(indexes))
	for _, q := range indexes {
		if text := snap.CandidateByQuestion[q]; text != "" {
			out = append(out, transcript.Utterance{
				Role:          transcript.RoleCandidate,
				Text:          text,
				QuestionIndex: q,
			})
		}
		if text := snap.CoachByQuestion[q]; text != "" {
			out = append(out, transcript.Utterance{
				Role:          transcript.RoleCoach,
				Text:          text,
				QuestionIndex: q,
			})
		}
	}
	return out
}

// HydrateSession fetches the session snapshot and rebuilds its resume
// timeline.
func HydrateSession(ctx context.Context, st store.SessionStore, sessionID string) ([]transcript.Utterance, error) {
	ctx, span := observe.StartSpan(ctx, "reconcile.hydrate")
	defer span.End()

	snap, err := st.FetchSnapshot(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: fetch snapshot: %w", err)
	}
	return Hydrate(snap), nil
}

// questionIndexes returns every question index present in either snapshot
// map or implied by the question list, ascending.
func questionIndexes(snap *store.Snapshot) []int {
	seen := make(map[int]bool, len(snap.CandidateByQuestion)+len(snap.CoachByQuestion))
	for q := range snap.CandidateByQuestion {
		seen[q] = true
	}
	for q := range snap.CoachByQuestion {
		seen[q] = true
	}
	for q := range snap.Questions {
		seen[q] = true
	}

	out := make([]int, 0, len(seen))
	for q := range seen {
		out = append(out, q)
	}
	sort.Ints(out)
	return out
}
