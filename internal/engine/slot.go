package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transcript"
)

// ErrSlotActive is returned by [streamingSlots.tryAcquire] when the role
// already has an unfinalized streaming slot.
var ErrSlotActive = errors.New("streaming slot already active for role")

// streamingSlot is the single in-progress utterance for one role.
//
// base carries the already-finalized text when the slot continues an existing
// timeline entry (split-turn delivery); cur is the segment being streamed
// right now. The visible utterance text is the space-join of both.
type streamingSlot struct {
	utt    *transcript.Utterance
	source transcript.Source

	base string
	cur  string

	startedAt  time.Time
	lastUpdate time.Time
}

// text returns the utterance text the slot currently represents.
func (s *streamingSlot) text() string {
	switch {
	case s.base == "":
		return s.cur
	case s.cur == "":
		return s.base
	default:
		return s.base + " " + s.cur
	}
}

// streamingSlots enforces the at-most-one-streaming-utterance-per-role
// invariant. Creating a slot for a role requires the previous slot for that
// role to be released first; acquisition and release are atomic with respect
// to interleaved producer callbacks.
type streamingSlots struct {
	mu     sync.Mutex
	byRole map[transcript.Role]*streamingSlot
}

func newStreamingSlots() *streamingSlots {
	return &streamingSlots{byRole: make(map[transcript.Role]*streamingSlot)}
}

// tryAcquire installs slot as the active streaming slot for role. It fails
// with [ErrSlotActive] when a slot is already held, so no producer can ever
// act on a partially-updated slot of another producer.
func (s *streamingSlots) tryAcquire(role transcript.Role, slot *streamingSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byRole[role] != nil {
		return ErrSlotActive
	}
	s.byRole[role] = slot
	return nil
}

// active returns the currently held slot for role, or nil.
func (s *streamingSlots) active(role transcript.Role) *streamingSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byRole[role]
}

// release gives up the slot for role and returns it. Releasing an unheld
// role returns nil.
func (s *streamingSlots) release(role transcript.Role) *streamingSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := s.byRole[role]
	delete(s.byRole, role)
	return slot
}
