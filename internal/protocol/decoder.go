// Package protocol normalizes the tagged JSON events of the realtime coaching
// transport into a small canonical action set.
//
// The upstream event taxonomy is not contractually stable across environments
// and transport versions, so decoding is layered: a dispatch table handles the
// known type strings, and anything unrecognised is routed through a bounded
// generic extraction pass (see extract.go) before degrading to a no-op. A
// malformed or unknown event is never an error; the worst case is that one
// event contributes nothing to the transcript.
package protocol

import (
	"encoding/json"
	"strings"
)

// Kind enumerates the canonical actions a decoded event can map to.
type Kind int

const (
	// KindNoop means the event carried nothing of interest.
	KindNoop Kind = iota

	// KindAgentDelta is an incremental fragment of the coach's structured
	// output text.
	KindAgentDelta

	// KindAgentRawDelta is an incremental fragment of the coach's raw audio
	// transcript, emitted by providers that transcribe their own synthesized
	// speech outside the structured text channel.
	KindAgentRawDelta

	// KindAgentFinalize marks the coach's current turn as complete.
	KindAgentFinalize

	// KindCandidateDelta is an incremental fragment of the candidate's
	// server-side transcription.
	KindCandidateDelta

	// KindCandidateFinalize carries the candidate's completed transcription.
	KindCandidateFinalize

	// KindErrorNotice surfaces a non-fatal upstream error event.
	KindErrorNotice
)

// String returns a short label for logging and metric attributes.
func (k Kind) String() string {
	switch k {
	case KindAgentDelta:
		return "agent_delta"
	case KindAgentRawDelta:
		return "agent_raw_delta"
	case KindAgentFinalize:
		return "agent_finalize"
	case KindCandidateDelta:
		return "candidate_delta"
	case KindCandidateFinalize:
		return "candidate_finalize"
	case KindErrorNotice:
		return "error_notice"
	default:
		return "noop"
	}
}

// Action is the canonical, decoded form of one inbound transport event.
type Action struct {
	Kind Kind

	// Text carries the delta fragment or final transcript, depending on Kind.
	Text string

	// Confidence is the recognizer's confidence for a candidate finalize,
	// 0 when the event did not report one.
	Confidence float64

	// Message is the human-readable error text for KindErrorNotice.
	Message string

	// Generic is true when the action was produced by generic extraction
	// rather than the known-type dispatch table.
	Generic bool
}

// serverEvent is the superset of fields this engine reads from known event
// shapes. Field names differ between event families (delta vs. transcript vs.
// nested content parts), so everything is optional.
type serverEvent struct {
	Type string `json:"type"`

	// response.output_text.delta / response.audio_transcript.delta /
	// conversation.item.input_audio_transcription.delta
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// response.output_text.done
	Text string `json:"text,omitempty"`

	Confidence float64 `json:"confidence,omitempty"`

	// conversation.item.created / conversation.item.completed
	Item *eventItem `json:"item,omitempty"`

	// error event
	Error *errorDetail `json:"error,omitempty"`
}

type eventItem struct {
	Role    string        `json:"role,omitempty"`
	Status  string        `json:"status,omitempty"`
	Content []contentPart `json:"content,omitempty"`
}

type contentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// errorDetail is the nested error object of an error event:
// {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type errorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Decode maps one raw transport event to exactly one canonical [Action].
// It never fails: events that cannot be parsed or carry no extractable text
// decode to a no-op.
func Decode(data []byte) Action {
	var evt serverEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return Action{Kind: KindNoop}
	}

	switch evt.Type {
	case "response.output_text.delta", "response.text.delta":
		if evt.Delta == "" {
			return Action{Kind: KindNoop}
		}
		return Action{Kind: KindAgentDelta, Text: evt.Delta}

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return Action{Kind: KindNoop}
		}
		return Action{Kind: KindAgentRawDelta, Text: evt.Delta}

	case "response.output_text.done", "response.text.done",
		"response.audio_transcript.done",
		"response.done", "response.completed":
		return Action{Kind: KindAgentFinalize, Text: evt.Text}

	case "conversation.item.input_audio_transcription.delta":
		if evt.Delta == "" {
			return Action{Kind: KindNoop}
		}
		return Action{Kind: KindCandidateDelta, Text: evt.Delta}

	case "conversation.item.input_audio_transcription.completed":
		return Action{
			Kind:       KindCandidateFinalize,
			Text:       evt.Transcript,
			Confidence: evt.Confidence,
		}

	case "conversation.item.input_audio_transcription.failed":
		return errorAction(evt.Error, "input transcription failed")

	case "conversation.item.created", "conversation.item.completed":
		return decodeItem(evt.Item, evt.Type)

	case "error":
		return errorAction(evt.Error, "unknown upstream error")
	}

	return extractGeneric(data, evt.Type)
}

// decodeItem handles item-created/-completed variants, which carry the role
// and text inside nested content parts.
func decodeItem(item *eventItem, eventType string) Action {
	if item == nil {
		return Action{Kind: KindNoop}
	}

	text := itemText(item)
	if text == "" {
		return Action{Kind: KindNoop}
	}

	final := strings.HasSuffix(eventType, ".completed") || item.Status == "completed"

	switch item.Role {
	case "user", "candidate":
		if final {
			return Action{Kind: KindCandidateFinalize, Text: text}
		}
		return Action{Kind: KindCandidateDelta, Text: text}
	case "assistant", "coach":
		if final {
			// Item completion carries the full turn text; the accumulator
			// uses a finalize payload when no deltas were streamed.
			return Action{Kind: KindAgentFinalize, Text: text}
		}
		return Action{Kind: KindAgentDelta, Text: text}
	}
	return Action{Kind: KindNoop}
}

// itemText returns the first non-empty text or transcript of an item's
// content parts.
func itemText(item *eventItem) string {
	for _, part := range item.Content {
		if part.Text != "" {
			return part.Text
		}
		if part.Transcript != "" {
			return part.Transcript
		}
	}
	return ""
}

func errorAction(detail *errorDetail, fallback string) Action {
	msg := fallback
	if detail != nil && detail.Message != "" {
		msg = detail.Message
	}
	return Action{Kind: KindErrorNotice, Message: msg}
}
