package engine

import (
	"context"

	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transcript"
)

// agentAccumulator assembles the coach's streamed text into one finalized
// turn per question. Structured output-text deltas build the visible
// streaming utterance; raw audio-transcript deltas accumulate in a side
// buffer that serves as the fallback source of truth for providers that
// never emit structured deltas.
type agentAccumulator struct {
	buf string
	raw string
}

// handleAgentDelta appends a structured coach delta, opening the streaming
// coach utterance on the first fragment. Must be called with e.mu held.
func (e *Engine) handleAgentDelta(text string) {
	slot := e.slots.active(transcript.RoleCoach)
	if slot == nil {
		utt := &transcript.Utterance{
			Role:          transcript.RoleCoach,
			QuestionIndex: e.question,
			CreatedAt:     e.now(),
			Streaming:     true,
		}
		slot = &streamingSlot{utt: utt, startedAt: utt.CreatedAt}
		if err := e.slots.tryAcquire(transcript.RoleCoach, slot); err != nil {
			// Unreachable while e.mu serializes dispatch; dropping the
			// fragment is still safer than corrupting the active slot.
			return
		}
		e.timeline = append(e.timeline, utt)
	}

	e.agent.buf += text
	slot.cur = e.agent.buf
	slot.utt.Text = e.agent.buf
	slot.lastUpdate = e.now()
}

// handleAgentRawDelta accumulates a raw audio-transcript fragment. Raw text
// never drives a streaming utterance; it only backs finalization when no
// structured buffer exists. Must be called with e.mu held.
func (e *Engine) handleAgentRawDelta(text string) {
	e.agent.raw += text
}

// handleAgentFinalize flushes the coach's current turn: the structured
// buffer when present, else the raw accumulator, else the finalize payload
// itself. A finalize with nothing buffered and no payload is a no-op.
// Must be called with e.mu held.
func (e *Engine) handleAgentFinalize(ctx context.Context, payload string) {
	text := e.agent.buf
	if text == "" {
		text = e.agent.raw
	}
	if text == "" {
		text = payload
	}

	slot := e.slots.release(transcript.RoleCoach)
	e.agent.buf = ""
	e.agent.raw = ""

	if text == "" {
		return
	}

	utt := slotUtterance(slot)
	if utt == nil {
		utt = &transcript.Utterance{
			Role:          transcript.RoleCoach,
			QuestionIndex: e.question,
			CreatedAt:     e.now(),
		}
		e.timeline = append(e.timeline, utt)
	}
	utt.Text = text
	utt.Streaming = false

	e.coachText[utt.QuestionIndex] = text
	e.appendLog(ctx, *utt)
	e.persistSlot(ctx, transcript.RoleCoach, utt.QuestionIndex, text, transcript.SourceNone)
}

// slotUtterance returns the utterance held by slot, or nil.
func slotUtterance(slot *streamingSlot) *transcript.Utterance {
	if slot == nil {
		return nil
	}
	return slot.utt
}
