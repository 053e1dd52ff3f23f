package contextfact

import "sync"

// DefaultWindowSize is the default rolling window size per user.
const DefaultWindowSize = 20

// Window keeps the most recent N context facts per user. Facts beyond the
// window are evicted oldest-first. All mutation happens under a per-user
// lock; unrelated users never contend.
type Window struct {
	mu    sync.Mutex
	size  int
	users map[string]*userWindow
}

type userWindow struct {
	mu    sync.Mutex
	facts []*ContextFact
}

// NewWindow creates a rolling window with the given per-user capacity.
func NewWindow(size int) *Window {
	if size < 1 {
		size = DefaultWindowSize
	}
	return &Window{
		size:  size,
		users: make(map[string]*userWindow),
	}
}

// Push appends a fact to the user's window, evicting the oldest fact if
// the window is full.
func (w *Window) Push(fact *ContextFact) {
	uw := w.forUser(fact.UserID)

	uw.mu.Lock()
	defer uw.mu.Unlock()

	uw.facts = append(uw.facts, fact)
	if len(uw.facts) > w.size {
		// Shift instead of re-slicing so the evicted fact is released.
		copy(uw.facts, uw.facts[1:])
		uw.facts[len(uw.facts)-1] = nil
		uw.facts = uw.facts[:len(uw.facts)-1]
	}
}

// Latest returns the most recent fact for the user, or nil if none.
func (w *Window) Latest(userID string) *ContextFact {
	uw := w.forUser(userID)

	uw.mu.Lock()
	defer uw.mu.Unlock()

	if len(uw.facts) == 0 {
		return nil
	}
	return uw.facts[len(uw.facts)-1]
}

// Recent returns up to n most recent facts for the user, newest first.
func (w *Window) Recent(userID string, n int) []*ContextFact {
	uw := w.forUser(userID)

	uw.mu.Lock()
	defer uw.mu.Unlock()

	if n <= 0 || n > len(uw.facts) {
		n = len(uw.facts)
	}
	out := make([]*ContextFact, 0, n)
	for i := len(uw.facts) - 1; i >= len(uw.facts)-n; i-- {
		out = append(out, uw.facts[i])
	}
	return out
}

// Len returns the number of facts currently held for the user.
func (w *Window) Len(userID string) int {
	uw := w.forUser(userID)

	uw.mu.Lock()
	defer uw.mu.Unlock()
	return len(uw.facts)
}

// forUser returns the per-user window, creating it lazily. The outer lock
// only guards map access, never fact mutation.
func (w *Window) forUser(userID string) *userWindow {
	w.mu.Lock()
	defer w.mu.Unlock()

	uw, ok := w.users[userID]
	if !ok {
		uw = &userWindow{}
		w.users[userID] = uw
	}
	return uw
}
