package protocol

import (
	"encoding/json"
	"strings"
)

// Bounds for the generic extraction walk. Real provider payloads are shallow;
// the limits only exist to keep worst-case work on hostile input trivial.
const (
	maxExtractDepth = 6
	maxExtractNodes = 64
)

// textKeys is the prioritized list of field names searched for transcript
// content when an event type is not in the dispatch table.
var textKeys = []string{"transcript", "text", "value", "caption", "utterance"}

// roleKeys is the list of field names that may carry an explicit speaker role.
var roleKeys = []string{"role", "speaker", "participant"}

// extractGeneric is the defense against silently losing transcript content
// when a new or renamed event type appears upstream. It searches the payload
// for the highest-priority string field from textKeys, infers the speaker
// role from any role-like field or from the event type name, and classifies
// the event as a delta or finalize from the type name. Events with no
// extractable text decode to a no-op.
func extractGeneric(data []byte, eventType string) Action {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return Action{Kind: KindNoop}
	}

	w := walker{budget: maxExtractNodes}
	text := w.findString(payload, textKeys)
	if text == "" {
		return Action{Kind: KindNoop}
	}

	role := w.findString(payload, roleKeys)
	candidate := isCandidateRole(role, eventType)
	final := isFinalType(eventType)

	switch {
	case candidate && final:
		return Action{Kind: KindCandidateFinalize, Text: text, Generic: true}
	case candidate:
		return Action{Kind: KindCandidateDelta, Text: text, Generic: true}
	case final:
		return Action{Kind: KindAgentFinalize, Text: text, Generic: true}
	default:
		return Action{Kind: KindAgentDelta, Text: text, Generic: true}
	}
}

// walker performs the bounded recursive search. The node budget doubles as a
// cycle guard: decoded JSON cannot contain reference cycles, but the walk
// also accepts values handed in by tests, so it never trusts the shape.
type walker struct {
	budget int
}

// findString searches v breadth-first-by-priority: the full tree is searched
// for keys[0] before keys[1] is considered, so a deeply nested "transcript"
// wins over a top-level "text".
func (w *walker) findString(v any, keys []string) string {
	for _, key := range keys {
		w.budget = maxExtractNodes
		if s := w.find(v, key, 0); s != "" {
			return s
		}
	}
	return ""
}

func (w *walker) find(v any, key string, depth int) string {
	if depth > maxExtractDepth || w.budget <= 0 {
		return ""
	}
	w.budget--

	switch val := v.(type) {
	case map[string]any:
		if s, ok := val[key].(string); ok && s != "" {
			return s
		}
		for _, child := range val {
			if s := w.find(child, key, depth+1); s != "" {
				return s
			}
		}
	case []any:
		for _, child := range val {
			if s := w.find(child, key, depth+1); s != "" {
				return s
			}
		}
	}
	return ""
}

// isCandidateRole reports whether the event describes candidate speech,
// either from an explicit role value or from type-name heuristics.
func isCandidateRole(role, eventType string) bool {
	switch strings.ToLower(role) {
	case "user", "candidate", "human":
		return true
	case "assistant", "coach", "agent", "system":
		return false
	}
	t := strings.ToLower(eventType)
	return strings.Contains(t, "input_audio") ||
		strings.Contains(t, "speech") ||
		strings.Contains(t, "transcription")
}

// isFinalType reports whether the type name marks a completed utterance
// rather than an in-progress fragment.
func isFinalType(eventType string) bool {
	t := strings.ToLower(eventType)
	return strings.Contains(t, "done") ||
		strings.Contains(t, "completed") ||
		strings.Contains(t, "complete") ||
		strings.Contains(t, "final") ||
		strings.Contains(t, "stopped")
}
