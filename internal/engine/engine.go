// Package engine merges asynchronous transcript producers into one coherent
// per-session timeline. It arbitrates between the primary decoded event
// stream and the local fallback recognizer, accumulates the coach's streamed
// turns, deduplicates near-simultaneous finalizations and writes every
// finalized utterance through the session store.
package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/taylorparsons/interview-practice-app-sub000/internal/memorize"
	"github.com/taylorparsons/interview-practice-app-sub000/internal/observe"
	"github.com/taylorparsons/interview-practice-app-sub000/internal/protocol"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/store"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transcript"
)

// DefaultFreshnessWindow is how long after the last accepted primary update
// fallback updates for the candidate keep being rejected.
const DefaultFreshnessWindow = 1200 * time.Millisecond

// Engine is the per-session synchronization core. All producer callbacks
// funnel through its mutex, so slot transitions and timeline appends are
// serialized regardless of how many goroutines feed it.
type Engine struct {
	sessionID string
	store     store.SessionStore
	memorizer memorize.Memorizer
	metrics   *observe.Metrics

	now       func() time.Time
	freshness time.Duration

	mu       sync.Mutex
	question int
	timeline []*transcript.Utterance
	slots    *streamingSlots
	agent    agentAccumulator

	lastPrimaryAt time.Time
	lastCandidate *transcript.Utterance

	candidateText map[int]string
	coachText     map[int]string
	marks         map[markKey]string

	lastTriggerText string
	lastTriggerAt   time.Time
	triggerWG       sync.WaitGroup
}

// Option customizes an [Engine].
type Option func(*Engine)

// WithClock overrides the engine's time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithFreshnessWindow overrides [DefaultFreshnessWindow].
func WithFreshnessWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.freshness = d
		}
	}
}

// WithMemorizer attaches the knowledge-capture collaborator that receives
// command-phrase triggers. Without it, trigger scanning is disabled.
func WithMemorizer(m memorize.Memorizer) Option {
	return func(e *Engine) { e.memorizer = m }
}

// WithMetrics overrides the default shared instruments. Intended for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine for one session. The store receives every finalized
// utterance; write failures are logged and never propagate to producers.
func New(sessionID string, st store.SessionStore, opts ...Option) *Engine {
	e := &Engine{
		sessionID:     sessionID,
		store:         st,
		now:           time.Now,
		freshness:     DefaultFreshnessWindow,
		slots:         newStreamingSlots(),
		candidateText: make(map[int]string),
		coachText:     make(map[int]string),
		marks:         make(map[markKey]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Apply dispatches one decoded action from the primary event stream.
func (e *Engine) Apply(ctx context.Context, act protocol.Action) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.metrics.DecodedEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", act.Kind.String())))

	switch act.Kind {
	case protocol.KindAgentDelta:
		e.handleAgentDelta(act.Text)
	case protocol.KindAgentRawDelta:
		e.handleAgentRawDelta(act.Text)
	case protocol.KindAgentFinalize:
		e.handleAgentFinalize(ctx, act.Text)
	case protocol.KindCandidateDelta:
		e.applyCandidate(ctx, candidateUpdate{
			source:     transcript.SourcePrimary,
			text:       act.Text,
			confidence: act.Confidence,
		})
	case protocol.KindCandidateFinalize:
		e.applyCandidate(ctx, candidateUpdate{
			source:     transcript.SourcePrimary,
			text:       act.Text,
			final:      true,
			confidence: act.Confidence,
		})
	case protocol.KindErrorNotice:
		e.appendSystemNotice(ctx, act.Message)
	case protocol.KindNoop:
	}
}

// FallbackInterim feeds a cumulative interim result from the local fallback
// recognizer into candidate arbitration.
func (e *Engine) FallbackInterim(text string, confidence float64) {
	if text == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyCandidate(context.Background(), candidateUpdate{
		source:     transcript.SourceFallback,
		text:       text,
		confidence: confidence,
	})
}

// FallbackFinal feeds a final result from the local fallback recognizer.
func (e *Engine) FallbackFinal(ctx context.Context, text string, confidence float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyCandidate(ctx, candidateUpdate{
		source:     transcript.SourceFallback,
		text:       text,
		final:      true,
		confidence: confidence,
	})
}

// SetQuestion advances the session to a new question index. Any in-progress
// streaming utterances are finalized with their buffered text first, and the
// outgoing question's slots are flushed so a crash after the switch loses
// nothing from the answered question.
func (e *Engine) SetQuestion(ctx context.Context, index int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if index == e.question {
		return
	}

	e.finalizeStreamingLocked(ctx)
	e.flushQuestion(ctx, e.question)
	e.question = index
	e.lastCandidate = nil
}

// Question returns the current question index.
func (e *Engine) Question() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.question
}

// Finish finalizes any streaming utterances, flushes every question's latest
// text and waits for in-flight memorize deliveries to settle.
func (e *Engine) Finish(ctx context.Context) {
	e.mu.Lock()
	e.finalizeStreamingLocked(ctx)
	e.flushAll(ctx)
	e.mu.Unlock()

	e.triggerWG.Wait()
}

// Checkpoint re-persists the latest finalized text for every question that
// has drifted from its last acknowledged write. Safe to call periodically.
func (e *Engine) Checkpoint(ctx context.Context) {
	ctx, span := observe.StartSpan(ctx, "engine.checkpoint")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.flushAll(ctx)
}

// finalizeStreamingLocked force-finalizes both roles' active slots using
// whatever text has been streamed so far. Must be called with e.mu held.
func (e *Engine) finalizeStreamingLocked(ctx context.Context) {
	if slot := e.slots.active(transcript.RoleCandidate); slot != nil {
		e.finalizeCandidate(ctx, candidateUpdate{
			source: slot.source,
			final:  true,
		})
	}
	if e.slots.active(transcript.RoleCoach) != nil || e.agent.buf != "" || e.agent.raw != "" {
		e.handleAgentFinalize(ctx, "")
	}
}

// appendSystemNotice records a decoded error event as a finalized system
// utterance so the disruption is visible in the transcript itself.
func (e *Engine) appendSystemNotice(ctx context.Context, message string) {
	if message == "" {
		message = "stream error"
	}
	utt := &transcript.Utterance{
		Role:          transcript.RoleSystem,
		Text:          message,
		QuestionIndex: e.question,
		CreatedAt:     e.now(),
	}
	e.timeline = append(e.timeline, utt)
	e.appendLog(ctx, *utt)
}

// Hydrate seeds the engine from previously persisted utterances, typically
// after a process restart mid-session. It must be called before any producer
// callback is dispatched.
func (e *Engine) Hydrate(entries []transcript.Utterance) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range entries {
		utt := entries[i]
		utt.Streaming = false
		p := &utt
		e.timeline = append(e.timeline, p)

		switch utt.Role {
		case transcript.RoleCandidate:
			e.candidateText[utt.QuestionIndex] = utt.Text
			e.marks[markKey{transcript.RoleCandidate, utt.QuestionIndex}] = utt.Text
			e.lastCandidate = p
		case transcript.RoleCoach:
			e.coachText[utt.QuestionIndex] = utt.Text
			e.marks[markKey{transcript.RoleCoach, utt.QuestionIndex}] = utt.Text
		}
		if utt.QuestionIndex > e.question {
			e.question = utt.QuestionIndex
		}
	}
}

// Timeline returns a snapshot of the session timeline in insertion order.
// Streaming entries carry their partial text as of the call.
func (e *Engine) Timeline() []transcript.Utterance {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]transcript.Utterance, len(e.timeline))
	for i, utt := range e.timeline {
		out[i] = *utt
	}
	return out
}

// CandidateText returns the latest finalized candidate answer per question.
func (e *Engine) CandidateText() map[int]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int]string, len(e.candidateText))
	for k, v := range e.candidateText {
		out[k] = v
	}
	return out
}

// CoachText returns the latest finalized coach turn per question.
func (e *Engine) CoachText() map[int]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int]string, len(e.coachText))
	for k, v := range e.coachText {
		out[k] = v
	}
	return out
}

// logWriteFailure reports a swallowed store error. Producers never see store
// failures; checkpointing re-drives unacknowledged text later.
func (e *Engine) logWriteFailure(ctx context.Context, op string, err error) {
	observe.Logger(ctx).Warn("session store write failed",
		"session_id", e.sessionID,
		"op", op,
		"error", err,
	)
}
