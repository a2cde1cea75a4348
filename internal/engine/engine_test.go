package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	memorizemock "github.com/taylorparsons/interview-practice-app-sub000/internal/memorize/mock"
	"github.com/taylorparsons/interview-practice-app-sub000/internal/observe"
	"github.com/taylorparsons/interview-practice-app-sub000/internal/protocol"
	storemock "github.com/taylorparsons/interview-practice-app-sub000/pkg/store/mock"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transcript"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *storemock.SessionStore, *fakeClock) {
	t.Helper()
	st := &storemock.SessionStore{}
	clk := newFakeClock()
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return New("sess-1", st, opts...), st, clk
}

func agentDelta(text string) protocol.Action {
	return protocol.Action{Kind: protocol.KindAgentDelta, Text: text}
}

func candidateDelta(text string) protocol.Action {
	return protocol.Action{Kind: protocol.KindCandidateDelta, Text: text}
}

func candidateFinalize(text string) protocol.Action {
	return protocol.Action{Kind: protocol.KindCandidateFinalize, Text: text}
}

func TestAgentAccumulation(t *testing.T) {
	ctx := context.Background()

	t.Run("structured deltas join into one coach turn", func(t *testing.T) {
		e, st, _ := newTestEngine(t)

		e.Apply(ctx, agentDelta("Tell me"))
		e.Apply(ctx, agentDelta(" about"))
		e.Apply(ctx, agentDelta(" yourself."))

		tl := e.Timeline()
		if len(tl) != 1 {
			t.Fatalf("timeline length = %d, want 1", len(tl))
		}
		if !tl[0].Streaming || tl[0].Text != "Tell me about yourself." {
			t.Errorf("streaming entry = %+v", tl[0])
		}

		e.Apply(ctx, protocol.Action{Kind: protocol.KindAgentFinalize})

		tl = e.Timeline()
		if tl[0].Streaming {
			t.Error("entry still streaming after finalize")
		}
		if tl[0].Text != "Tell me about yourself." {
			t.Errorf("final text = %q", tl[0].Text)
		}
		if got := st.CallCount("PersistCoach"); got != 1 {
			t.Errorf("PersistCoach calls = %d, want 1", got)
		}
		if got := st.CallCount("AppendLog"); got != 1 {
			t.Errorf("AppendLog calls = %d, want 1", got)
		}
	})

	t.Run("raw transcript backs finalize when no structured deltas", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		e.Apply(ctx, protocol.Action{Kind: protocol.KindAgentRawDelta, Text: "Walk me "})
		e.Apply(ctx, protocol.Action{Kind: protocol.KindAgentRawDelta, Text: "through it."})

		if got := len(e.Timeline()); got != 0 {
			t.Fatalf("raw deltas must not stream; timeline length = %d", got)
		}

		e.Apply(ctx, protocol.Action{Kind: protocol.KindAgentFinalize})

		tl := e.Timeline()
		if len(tl) != 1 || tl[0].Text != "Walk me through it." {
			t.Fatalf("timeline = %+v, want single raw-backed turn", tl)
		}
		if tl[0].Role != transcript.RoleCoach {
			t.Errorf("role = %q", tl[0].Role)
		}
	})

	t.Run("structured buffer wins over raw and payload", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		e.Apply(ctx, agentDelta("Structured."))
		e.Apply(ctx, protocol.Action{Kind: protocol.KindAgentRawDelta, Text: "Raw."})
		e.Apply(ctx, protocol.Action{Kind: protocol.KindAgentFinalize, Text: "Payload."})

		tl := e.Timeline()
		if len(tl) != 1 || tl[0].Text != "Structured." {
			t.Fatalf("timeline = %+v, want structured text", tl)
		}
	})

	t.Run("finalize with nothing buffered is a no-op", func(t *testing.T) {
		e, st, _ := newTestEngine(t)

		e.Apply(ctx, protocol.Action{Kind: protocol.KindAgentFinalize})

		if got := len(e.Timeline()); got != 0 {
			t.Errorf("timeline length = %d, want 0", got)
		}
		if got := len(st.Calls()); got != 0 {
			t.Errorf("store calls = %d, want 0", got)
		}
	})
}

func TestCandidateStreaming(t *testing.T) {
	ctx := context.Background()

	t.Run("finalize payload replaces streamed fragments", func(t *testing.T) {
		e, st, _ := newTestEngine(t)

		e.Apply(ctx, candidateDelta("I led "))
		e.Apply(ctx, candidateDelta("the tea"))
		e.Apply(ctx, candidateFinalize("I led the team."))

		tl := e.Timeline()
		if len(tl) != 1 {
			t.Fatalf("timeline length = %d, want 1", len(tl))
		}
		if tl[0].Text != "I led the team." || tl[0].Streaming {
			t.Errorf("entry = %+v", tl[0])
		}
		if got := st.CallCount("PersistCandidate"); got != 1 {
			t.Errorf("PersistCandidate calls = %d, want 1", got)
		}
	})

	t.Run("finalize without prior deltas creates the entry", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		e.Apply(ctx, candidateFinalize("Short answer."))

		tl := e.Timeline()
		if len(tl) != 1 || tl[0].Text != "Short answer." {
			t.Fatalf("timeline = %+v", tl)
		}
	})

	t.Run("empty finalize keeps the streamed text", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		e.Apply(ctx, candidateDelta("Partial answer"))
		e.Apply(ctx, candidateFinalize(""))

		tl := e.Timeline()
		if len(tl) != 1 || tl[0].Text != "Partial answer" {
			t.Fatalf("timeline = %+v", tl)
		}
	})

	t.Run("empty finalize with no slot is a no-op", func(t *testing.T) {
		e, st, _ := newTestEngine(t)

		e.Apply(ctx, candidateFinalize(""))

		if got := len(e.Timeline()); got != 0 {
			t.Errorf("timeline length = %d, want 0", got)
		}
		if got := len(st.Calls()); got != 0 {
			t.Errorf("store calls = %d, want 0", got)
		}
	})
}

func TestArbitration(t *testing.T) {
	ctx := context.Background()

	t.Run("fallback rejected while primary is fresh", func(t *testing.T) {
		e, _, clk := newTestEngine(t)

		e.Apply(ctx, candidateDelta("I led "))
		clk.Advance(200 * time.Millisecond)
		e.FallbackInterim("I led the", 0.8)

		tl := e.Timeline()
		if len(tl) != 1 || tl[0].Text != "I led " {
			t.Fatalf("fallback must not touch a fresh primary slot; entry = %+v", tl[0])
		}
		if tl[0].Source != transcript.SourcePrimary {
			t.Errorf("source = %q", tl[0].Source)
		}
	})

	t.Run("fallback echo after primary finalize is ignored", func(t *testing.T) {
		e, st, clk := newTestEngine(t)

		e.Apply(ctx, candidateDelta("I led "))
		clk.Advance(100 * time.Millisecond)
		e.Apply(ctx, candidateDelta("the team"))
		clk.Advance(100 * time.Millisecond)
		e.Apply(ctx, candidateFinalize("I led the team."))
		clk.Advance(200 * time.Millisecond)
		e.FallbackInterim("I led the", 0.8)

		tl := e.Timeline()
		if len(tl) != 1 {
			t.Fatalf("timeline length = %d, want 1", len(tl))
		}
		if tl[0].Text != "I led the team." || tl[0].Streaming {
			t.Errorf("entry = %+v", tl[0])
		}
		if got := st.CallCount("AppendLog"); got != 1 {
			t.Errorf("AppendLog calls = %d, want 1", got)
		}
	})

	t.Run("fallback accepted once primary goes stale", func(t *testing.T) {
		e, _, clk := newTestEngine(t, WithFreshnessWindow(1200*time.Millisecond))

		e.Apply(ctx, candidateDelta("I led "))
		clk.Advance(2 * time.Second)
		e.FallbackInterim("I led the team and", 0.8)

		tl := e.Timeline()
		if len(tl) != 1 {
			t.Fatalf("timeline length = %d, want 1", len(tl))
		}
		if tl[0].Text != "I led the team and" {
			t.Errorf("text = %q, want fallback takeover text", tl[0].Text)
		}
		if tl[0].Source != transcript.SourceFallback {
			t.Errorf("source = %q, want fallback", tl[0].Source)
		}
	})

	t.Run("fallback interims replace rather than append", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		e.FallbackInterim("I led", 0.7)
		e.FallbackInterim("I led the team", 0.8)

		tl := e.Timeline()
		if len(tl) != 1 || tl[0].Text != "I led the team" {
			t.Fatalf("timeline = %+v, want single cumulative entry", tl)
		}
	})

	t.Run("primary reclaims a fallback slot immediately", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		e.FallbackInterim("i led the", 0.7)
		e.Apply(ctx, candidateFinalize("I led the team."))

		tl := e.Timeline()
		if len(tl) != 1 || tl[0].Text != "I led the team." {
			t.Fatalf("timeline = %+v", tl)
		}
		if tl[0].Source != transcript.SourcePrimary {
			t.Errorf("source = %q, want primary", tl[0].Source)
		}
	})
}

func TestDuplicateFinalize(t *testing.T) {
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	e, st, clk := newTestEngine(t, WithMetrics(metrics))

	e.Apply(ctx, candidateFinalize("I led the team."))
	clk.Advance(2 * time.Second)
	e.FallbackFinal(ctx, "i led the team", 0.8)

	tl := e.Timeline()
	if len(tl) != 1 {
		t.Fatalf("timeline length = %d, want 1", len(tl))
	}
	if tl[0].Text != "I led the team." {
		t.Errorf("text = %q, want first finalization kept verbatim", tl[0].Text)
	}
	if got := st.CallCount("AppendLog"); got != 1 {
		t.Errorf("AppendLog calls = %d, want 1", got)
	}
	if got := st.CallCount("PersistCandidate"); got != 1 {
		t.Errorf("PersistCandidate calls = %d, want 1", got)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := counterValue(t, rm, "coach.transcript.dedup_drops"); got != 1 {
		t.Errorf("dedup_drops = %d, want 1", got)
	}
}

// counterValue sums all data points of the named Int64 counter.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s has unexpected data type %T", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestSplitTurnCoalescing(t *testing.T) {
	ctx := context.Background()

	t.Run("continuation extends the finalized entry", func(t *testing.T) {
		e, st, clk := newTestEngine(t)

		e.Apply(ctx, candidateFinalize("I led the team."))
		clk.Advance(500 * time.Millisecond)
		e.Apply(ctx, candidateDelta("We shipped on time."))
		e.Apply(ctx, candidateFinalize(""))

		tl := e.Timeline()
		if len(tl) != 1 {
			t.Fatalf("timeline length = %d, want 1 coalesced entry", len(tl))
		}
		want := "I led the team. We shipped on time."
		if tl[0].Text != want {
			t.Errorf("text = %q, want %q", tl[0].Text, want)
		}

		// The log keeps both segments; the persisted slot holds the join.
		if got := st.CallCount("AppendLog"); got != 2 {
			t.Errorf("AppendLog calls = %d, want 2", got)
		}
		snap, _ := st.FetchSnapshot(ctx, "sess-1")
		if snap.CandidateByQuestion[0] != want {
			t.Errorf("persisted = %q, want %q", snap.CandidateByQuestion[0], want)
		}
	})

	t.Run("no coalescing across an interposed coach turn", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		e.Apply(ctx, candidateFinalize("First answer."))
		e.Apply(ctx, agentDelta("Good. Next question."))
		e.Apply(ctx, protocol.Action{Kind: protocol.KindAgentFinalize})
		e.Apply(ctx, candidateFinalize("Second answer."))

		tl := e.Timeline()
		if len(tl) != 3 {
			t.Fatalf("timeline length = %d, want 3 distinct entries", len(tl))
		}
		if tl[2].Text != "Second answer." {
			t.Errorf("third entry = %q", tl[2].Text)
		}
	})

	t.Run("continuation restating the base is dropped", func(t *testing.T) {
		e, st, _ := newTestEngine(t)

		e.Apply(ctx, candidateFinalize("I led the team."))
		e.Apply(ctx, candidateDelta("i led the team"))
		e.Apply(ctx, candidateFinalize(""))

		tl := e.Timeline()
		if len(tl) != 1 || tl[0].Text != "I led the team." {
			t.Fatalf("timeline = %+v, want the original entry unchanged", tl)
		}
		if got := st.CallCount("AppendLog"); got != 1 {
			t.Errorf("AppendLog calls = %d, want 1", got)
		}
	})
}

func TestQuestionTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("advance finalizes streaming and flushes", func(t *testing.T) {
		e, st, _ := newTestEngine(t)

		e.Apply(ctx, candidateDelta("Answer in progress"))
		e.SetQuestion(ctx, 1)

		tl := e.Timeline()
		if len(tl) != 1 || tl[0].Streaming {
			t.Fatalf("timeline = %+v, want finalized entry", tl)
		}
		if tl[0].QuestionIndex != 0 {
			t.Errorf("question index = %d, want 0", tl[0].QuestionIndex)
		}
		if e.Question() != 1 {
			t.Errorf("Question() = %d, want 1", e.Question())
		}
		if got := st.CallCount("PersistCandidate"); got != 1 {
			t.Errorf("PersistCandidate calls = %d, want 1", got)
		}
	})

	t.Run("no coalescing across a question boundary", func(t *testing.T) {
		e, _, _ := newTestEngine(t)

		e.Apply(ctx, candidateFinalize("Answer one."))
		e.SetQuestion(ctx, 1)
		e.Apply(ctx, candidateFinalize("Answer two."))

		tl := e.Timeline()
		if len(tl) != 2 {
			t.Fatalf("timeline length = %d, want 2", len(tl))
		}
		if tl[1].QuestionIndex != 1 {
			t.Errorf("second entry question = %d, want 1", tl[1].QuestionIndex)
		}
	})

	t.Run("same index is a no-op", func(t *testing.T) {
		e, st, _ := newTestEngine(t)

		e.Apply(ctx, candidateFinalize("Answer."))
		st.Reset()
		e.SetQuestion(ctx, 0)

		if got := len(st.Calls()); got != 0 {
			t.Errorf("store calls = %d, want 0", got)
		}
	})
}

func TestCheckpointRedrive(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newTestEngine(t)

	st.PersistCandidateErr = context.DeadlineExceeded
	e.Apply(ctx, candidateFinalize("I led the team."))

	if got := st.CallCount("PersistCandidate"); got != 1 {
		t.Fatalf("PersistCandidate calls = %d, want 1", got)
	}

	// The failed write left no mark, so the next checkpoint re-drives it.
	st.PersistCandidateErr = nil
	e.Checkpoint(ctx)

	if got := st.CallCount("PersistCandidate"); got != 2 {
		t.Errorf("PersistCandidate calls after checkpoint = %d, want 2", got)
	}

	// Once acknowledged, further checkpoints skip the unchanged slot.
	e.Checkpoint(ctx)
	if got := st.CallCount("PersistCandidate"); got != 2 {
		t.Errorf("PersistCandidate calls after second checkpoint = %d, want 2", got)
	}
}

func TestMemorizeTrigger(t *testing.T) {
	ctx := context.Background()

	t.Run("command phrase fires once", func(t *testing.T) {
		mem := &memorizemock.Memorizer{}
		e, _, _ := newTestEngine(t, WithMemorizer(mem))

		e.Apply(ctx, candidateFinalize("Please remember that I rewrote the billing system."))
		e.Finish(ctx)

		triggers := mem.Triggers()
		if len(triggers) != 1 {
			t.Fatalf("triggers = %d, want 1", len(triggers))
		}
		if triggers[0].QuestionIndex != 0 {
			t.Errorf("trigger question = %d, want 0", triggers[0].QuestionIndex)
		}
	})

	t.Run("duplicate finalize does not re-fire", func(t *testing.T) {
		mem := &memorizemock.Memorizer{}
		e, _, clk := newTestEngine(t, WithMemorizer(mem))

		e.Apply(ctx, candidateFinalize("Remember this for later."))
		clk.Advance(2 * time.Second)
		e.FallbackFinal(ctx, "remember this for later", 0.8)
		e.Finish(ctx)

		if got := mem.Count(); got != 1 {
			t.Errorf("triggers = %d, want 1", got)
		}
	})

	t.Run("near-duplicate within the debounce window is suppressed", func(t *testing.T) {
		mem := &memorizemock.Memorizer{}
		e, _, clk := newTestEngine(t, WithMemorizer(mem))

		e.Apply(ctx, candidateFinalize("Please remember that I rewrote the billing system."))
		e.Apply(ctx, agentDelta("Noted."))
		e.Apply(ctx, protocol.Action{Kind: protocol.KindAgentFinalize})
		clk.Advance(2 * time.Second)
		e.Apply(ctx, candidateFinalize("Please remember that I rewrote the billing systems."))
		e.Finish(ctx)

		if got := mem.Count(); got != 1 {
			t.Errorf("triggers = %d, want 1", got)
		}
	})

	t.Run("re-fires after the debounce window", func(t *testing.T) {
		mem := &memorizemock.Memorizer{}
		e, _, clk := newTestEngine(t, WithMemorizer(mem))

		e.Apply(ctx, candidateFinalize("Please remember that I mentored two juniors."))
		e.Apply(ctx, agentDelta("Noted."))
		e.Apply(ctx, protocol.Action{Kind: protocol.KindAgentFinalize})
		clk.Advance(10 * time.Second)
		e.Apply(ctx, candidateFinalize("Please remember that I mentored two juniors there."))
		e.Finish(ctx)

		if got := mem.Count(); got != 2 {
			t.Errorf("triggers = %d, want 2", got)
		}
	})

	t.Run("no phrase no trigger", func(t *testing.T) {
		mem := &memorizemock.Memorizer{}
		e, _, _ := newTestEngine(t, WithMemorizer(mem))

		e.Apply(ctx, candidateFinalize("I remembered to bring the slides."))
		e.Finish(ctx)

		if got := mem.Count(); got != 0 {
			t.Errorf("triggers = %d, want 0", got)
		}
	})
}

func TestErrorNotice(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newTestEngine(t)

	e.Apply(ctx, protocol.Action{Kind: protocol.KindErrorNotice, Message: "session expired"})

	tl := e.Timeline()
	if len(tl) != 1 {
		t.Fatalf("timeline length = %d, want 1", len(tl))
	}
	if tl[0].Role != transcript.RoleSystem || tl[0].Text != "session expired" {
		t.Errorf("entry = %+v", tl[0])
	}
	if got := st.CallCount("AppendLog"); got != 1 {
		t.Errorf("AppendLog calls = %d, want 1", got)
	}
}

func TestHydrate(t *testing.T) {
	ctx := context.Background()
	e, _, clk := newTestEngine(t)

	base := clk.Now().Add(-time.Hour)
	e.Hydrate([]transcript.Utterance{
		{Role: transcript.RoleCoach, Text: "Tell me about a conflict.", QuestionIndex: 0, CreatedAt: base},
		{Role: transcript.RoleCandidate, Text: "I disagreed with my manager.", QuestionIndex: 0, CreatedAt: base.Add(time.Minute), Source: transcript.SourcePrimary},
		{Role: transcript.RoleCoach, Text: "How did it resolve?", QuestionIndex: 1, CreatedAt: base.Add(2 * time.Minute)},
	})

	if got := e.Question(); got != 1 {
		t.Errorf("Question() = %d, want 1", got)
	}
	if got := len(e.Timeline()); got != 3 {
		t.Fatalf("timeline length = %d, want 3", got)
	}

	// A late duplicate of the hydrated candidate answer is still deduped.
	e.Apply(ctx, candidateFinalize("i disagreed with my manager"))
	if got := len(e.Timeline()); got != 3 {
		t.Errorf("timeline length after duplicate = %d, want 3", got)
	}
}

func TestFinishFinalizesEverything(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newTestEngine(t)

	e.Apply(ctx, candidateDelta("Half an answer"))
	e.Apply(ctx, agentDelta("Half a question"))
	e.Finish(ctx)

	for _, utt := range e.Timeline() {
		if utt.Streaming {
			t.Errorf("entry still streaming after Finish: %+v", utt)
		}
	}
	if got := st.CallCount("PersistCandidate"); got != 1 {
		t.Errorf("PersistCandidate calls = %d, want 1", got)
	}
	if got := st.CallCount("PersistCoach"); got != 1 {
		t.Errorf("PersistCoach calls = %d, want 1", got)
	}
}
