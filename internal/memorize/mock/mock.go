// Package mock provides an in-memory test double for [memorize.Memorizer].
package mock

import (
	"context"
	"sync"

	"github.com/taylorparsons/interview-practice-app-sub000/internal/memorize"
)

// Memorizer records every trigger it receives. Safe for concurrent use.
type Memorizer struct {
	mu       sync.Mutex
	triggers []memorize.Trigger

	// Err is returned by Memorize when non-nil. The trigger is still
	// recorded, matching the fire-and-forget contract.
	Err error
}

// Compile-time interface check.
var _ memorize.Memorizer = (*Memorizer)(nil)

// Memorize implements [memorize.Memorizer].
func (m *Memorizer) Memorize(_ context.Context, trigger memorize.Trigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers = append(m.triggers, trigger)
	return m.Err
}

// Triggers returns a copy of all recorded triggers.
func (m *Memorizer) Triggers() []memorize.Trigger {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]memorize.Trigger, len(m.triggers))
	copy(out, m.triggers)
	return out
}

// Count returns how many triggers were recorded.
func (m *Memorizer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.triggers)
}
