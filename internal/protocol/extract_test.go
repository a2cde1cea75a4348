package protocol

import (
	"fmt"
	"testing"
)

func TestExtractGeneric(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Action
	}{
		{
			name: "renamed candidate event with transcript field",
			data: `{"type":"input_audio_transcription.v2.completed","transcript":"renamed but intact"}`,
			want: Action{Kind: KindCandidateFinalize, Text: "renamed but intact", Generic: true},
		},
		{
			name: "nested transcript wins over top-level text",
			data: `{"type":"speech.partial","text":"outer","result":{"alternatives":[{"transcript":"inner"}]}}`,
			want: Action{Kind: KindCandidateDelta, Text: "inner", Generic: true},
		},
		{
			name: "explicit role field beats type heuristic",
			data: `{"type":"speech.chunk","role":"assistant","text":"coach speaking"}`,
			want: Action{Kind: KindAgentDelta, Text: "coach speaking", Generic: true},
		},
		{
			name: "caption field as last-resort key",
			data: `{"type":"captions.update","caption":"low priority key"}`,
			want: Action{Kind: KindAgentDelta, Text: "low priority key", Generic: true},
		},
		{
			name: "finalize inferred from type name",
			data: `{"type":"utterance.final","role":"user","value":"all done"}`,
			want: Action{Kind: KindCandidateFinalize, Text: "all done", Generic: true},
		},
		{
			name: "no extractable text",
			data: `{"type":"session.heartbeat","seq":41}`,
			want: Action{Kind: KindNoop},
		},
		{
			name: "numeric text field is ignored",
			data: `{"type":"mystery.event","text":42}`,
			want: Action{Kind: KindNoop},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decode([]byte(tt.data)); got != tt.want {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtractGenericDepthBound(t *testing.T) {
	// Bury the transcript below the depth limit; the walk must give up
	// rather than recurse indefinitely.
	inner := `{"transcript":"too deep"}`
	for i := 0; i < maxExtractDepth+2; i++ {
		inner = fmt.Sprintf(`{"nested":%s}`, inner)
	}
	data := fmt.Sprintf(`{"type":"mystery.deep","payload":%s}`, inner)

	if got := Decode([]byte(data)); got.Kind != KindNoop {
		t.Errorf("expected noop for over-deep payload, got %+v", got)
	}
}

func TestExtractGenericNodeBudget(t *testing.T) {
	// A wide payload with the text hidden past the node budget must degrade
	// to a noop instead of scanning without bound. An array keeps the walk
	// order deterministic.
	data := `{"type":"mystery.wide","items":[`
	for i := 0; i < maxExtractNodes+8; i++ {
		data += `{"pad":1},`
	}
	data += `{"transcript":"beyond budget"}]}`

	if got := Decode([]byte(data)); got.Kind != KindNoop {
		t.Errorf("expected noop once node budget is exhausted, got %+v", got)
	}
}
