// Package memorize defines the knowledge-capture collaborator that receives
// "remember that" command triggers from the merge pipeline.
//
// The trigger is strictly fire-and-forget: the merge pipeline never blocks on
// a memorize call and ignores its outcome. The concrete implementation
// ([Client]) forwards triggers to an external MCP server exposing a
// "memorize" tool; tests use the mock subpackage.
package memorize

import "context"

// Trigger is the payload emitted to the knowledge-capture collaborator.
type Trigger struct {
	// QuestionIndex is the interview question the remembered text belongs to.
	QuestionIndex int

	// Text is the full finalized candidate utterance that contained the
	// command phrase.
	Text string
}

// Memorizer receives command-phrase triggers. Implementations must be safe
// for concurrent use; callers do not wait for or act on the returned error
// beyond logging it.
type Memorizer interface {
	Memorize(ctx context.Context, trigger Trigger) error
}
