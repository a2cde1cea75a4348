package engine

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/taylorparsons/interview-practice-app-sub000/internal/memorize"
	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transcript"
)

// memorizePattern matches the spoken command phrase that asks the coach to
// capture part of the answer. The scan window is capped so pathological
// finalize payloads cannot make the match expensive.
var memorizePattern = regexp.MustCompile(
	`(?i)\b(?:please\s+)?remember\s+(?:that|this|it|the\s+last\s+part)\b`)

const (
	// triggerScanWindow caps how much of the final text is scanned, from
	// the end, where the command phrase lands in natural speech.
	triggerScanWindow = 2048

	// triggerDebounce suppresses re-fires for near-duplicate finalizations
	// arriving shortly after a fired trigger.
	triggerDebounce = 5 * time.Second

	// triggerSimilarity is the Jaro-Winkler score at or above which two
	// normalized texts count as the same spoken phrase.
	triggerSimilarity = 0.92

	// memorizeTimeout bounds the fire-and-forget delivery attempt.
	memorizeTimeout = 10 * time.Second
)

// scanForTrigger checks a successfully finalized candidate text for the
// memorize command phrase and, when found, emits the trigger to the
// knowledge-capture collaborator. Emission is asynchronous and its outcome
// never influences the merge pipeline. Must be called with e.mu held.
func (e *Engine) scanForTrigger(ctx context.Context, questionIndex int, text string) {
	if e.memorizer == nil {
		return
	}

	window := text
	if len(window) > triggerScanWindow {
		window = window[len(window)-triggerScanWindow:]
	}
	if !memorizePattern.MatchString(window) {
		return
	}

	if e.isTriggerDebounced(text) {
		return
	}
	e.lastTriggerText = text
	e.lastTriggerAt = e.now()
	e.metrics.MemorizeTriggers.Add(ctx, 1)

	trigger := memorize.Trigger{QuestionIndex: questionIndex, Text: text}
	e.triggerWG.Add(1)
	go func() {
		defer e.triggerWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), memorizeTimeout)
		defer cancel()
		if err := e.memorizer.Memorize(ctx, trigger); err != nil {
			slog.Warn("memorize trigger delivery failed",
				"session_id", e.sessionID,
				"question_index", trigger.QuestionIndex,
				"error", err,
			)
		}
	}()
}

// isTriggerDebounced reports whether text is a near-duplicate of the last
// fired trigger within the debounce window. Exact duplicates never reach
// this point (the merger discards them); this catches the same phrase
// re-finalized with recognizer spelling variance.
func (e *Engine) isTriggerDebounced(text string) bool {
	if e.lastTriggerText == "" || e.now().Sub(e.lastTriggerAt) > triggerDebounce {
		return false
	}
	score := matchr.JaroWinkler(transcript.Normalize(text), transcript.Normalize(e.lastTriggerText), false)
	return score >= triggerSimilarity
}
