package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transcript"
)

// The candidate merger arbitrates between two asynchronous producers
// describing the same speaker turn: Primary (server-side recognition from
// the decoded event channel) and Fallback (local on-device recognition).
// Primary is generally higher quality; Fallback is a safety net that must
// not garble an in-progress higher-quality stream once Primary has
// established recency.

// candidateUpdate is one producer callback flattened to its essentials.
type candidateUpdate struct {
	source     transcript.Source
	text       string
	final      bool
	confidence float64
}

// applyCandidate routes one candidate update through arbitration, extension,
// coalescing and dedup. Must be called with e.mu held.
func (e *Engine) applyCandidate(ctx context.Context, up candidateUpdate) {
	if !e.acceptCandidate(up.source) {
		e.metrics.ArbitrationRejects.Add(ctx, 1,
			metric.WithAttributes(attribute.String("source", string(up.source))))
		return
	}

	if up.final {
		e.finalizeCandidate(ctx, up)
		return
	}
	e.streamCandidate(up)
}

// acceptCandidate implements the arbitration rule. A Primary update is
// always accepted: it either owns the slot, takes over a Fallback-tagged
// slot, or opens a new one. A Fallback update is accepted when the active
// slot is Fallback-tagged, or when Primary has shown no activity within the
// freshness window, including the window after a Primary finalize, so a
// trailing Fallback echo of a just-finalized turn is ignored rather than
// coalesced back in.
func (e *Engine) acceptCandidate(source transcript.Source) bool {
	if source == transcript.SourcePrimary {
		return true
	}
	if slot := e.slots.active(transcript.RoleCandidate); slot != nil && slot.source == transcript.SourceFallback {
		return true
	}
	return e.lastPrimaryAt.IsZero() || e.now().Sub(e.lastPrimaryAt) > e.freshness
}

// streamCandidate applies a non-final update to the active slot, opening one
// (or continuing the last finalized candidate entry) when none is active.
func (e *Engine) streamCandidate(up candidateUpdate) {
	slot := e.slots.active(transcript.RoleCandidate)
	if slot == nil {
		slot = e.openCandidateSlot(up.source)
		if slot == nil {
			return
		}
	}

	// Takeover retags the slot; extension semantics follow the new source.
	slot.source = up.source

	if up.source == transcript.SourcePrimary {
		// Primary deltas are incremental fragments.
		slot.cur += up.text
		e.lastPrimaryAt = e.now()
	} else {
		// Fallback callbacks report the full cumulative phrase.
		slot.cur = up.text
	}

	slot.utt.Text = slot.text()
	slot.utt.Source = up.source
	slot.lastUpdate = e.now()
}

// finalizeCandidate completes the candidate's current turn: the finalize
// payload replaces the streamed segment when non-empty, near-simultaneous
// duplicate finalizations are discarded, and the surviving text is
// persisted and scanned for the memorize command phrase.
func (e *Engine) finalizeCandidate(ctx context.Context, up candidateUpdate) {
	if up.source == transcript.SourcePrimary {
		e.lastPrimaryAt = e.now()
	}

	slot := e.slots.active(transcript.RoleCandidate)
	if slot == nil {
		// Both producers finalizing the same utterance moments apart is the
		// common duplicate shape: the second arrives after the slot closed.
		if up.text == "" {
			return
		}
		if last := e.lastCandidate; last != nil &&
			transcript.Normalize(up.text) == transcript.Normalize(last.Text) {
			e.candidateText[last.QuestionIndex] = last.Text
			e.metrics.DedupDrops.Add(ctx, 1)
			return
		}
		slot = e.openCandidateSlot(up.source)
		if slot == nil {
			return
		}
	}

	if up.text != "" {
		slot.cur = up.text
		slot.source = up.source
	}

	// A continuation whose new segment merely restates the already-final
	// base is the duplicate arriving while a slot happened to be open.
	if slot.base != "" && transcript.Normalize(slot.cur) == transcript.Normalize(slot.base) {
		slot.cur = ""
		e.metrics.DedupDrops.Add(ctx, 1)
	}

	e.slots.release(transcript.RoleCandidate)

	final := slot.text()
	if final == "" {
		// Nothing was ever streamed into this slot; drop its placeholder
		// entry rather than finalizing an empty utterance.
		if e.isLastTimelineEntry(slot.utt) && slot.utt.Text == "" {
			e.timeline = e.timeline[:len(e.timeline)-1]
		}
		return
	}

	utt := slot.utt
	utt.Text = final
	utt.Source = slot.source
	utt.Streaming = false
	e.lastCandidate = utt
	e.candidateText[utt.QuestionIndex] = final

	if slot.cur != "" {
		// Log the newly finalized segment only; export-time run coalescing
		// joins consecutive candidate segments exactly like the live view.
		segment := *utt
		segment.Text = slot.cur
		segment.CreatedAt = slot.startedAt
		e.appendLog(ctx, segment)
		e.persistSlot(ctx, transcript.RoleCandidate, utt.QuestionIndex, final, slot.source)
		e.scanForTrigger(ctx, utt.QuestionIndex, final)
	}
}

// openCandidateSlot opens a fresh streaming slot, or a continuation of the
// most recently finalized candidate entry when one exists for the current
// question (split-turn delivery: a provider emitting several short finalize
// events for one continuous answer).
func (e *Engine) openCandidateSlot(source transcript.Source) *streamingSlot {
	now := e.now()

	if last := e.lastCandidate; last != nil && !last.Streaming &&
		last.QuestionIndex == e.question && e.isLastTimelineEntry(last) {
		slot := &streamingSlot{
			utt:       last,
			source:    source,
			base:      last.Text,
			startedAt: now,
		}
		if err := e.slots.tryAcquire(transcript.RoleCandidate, slot); err != nil {
			return nil
		}
		last.Streaming = true
		return slot
	}

	utt := &transcript.Utterance{
		Role:          transcript.RoleCandidate,
		QuestionIndex: e.question,
		CreatedAt:     now,
		Source:        source,
		Streaming:     true,
	}
	slot := &streamingSlot{utt: utt, source: source, startedAt: now}
	if err := e.slots.tryAcquire(transcript.RoleCandidate, slot); err != nil {
		return nil
	}
	e.timeline = append(e.timeline, utt)
	return slot
}

// isLastTimelineEntry reports whether utt is the newest timeline entry, i.e.
// no coach turn or system notice has been interposed since it finalized.
func (e *Engine) isLastTimelineEntry(utt *transcript.Utterance) bool {
	return len(e.timeline) > 0 && e.timeline[len(e.timeline)-1] == utt
}
