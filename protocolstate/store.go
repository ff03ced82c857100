package protocolstate

import "sync"

// Store is an interior-mutable cell around a single State value: an
// explicit, testable type instead of hidden package-level globals. Go has
// real OS threads, so a mutex is the equivalent of a single logical
// executor rather than a bare global variable.
type Store struct {
	mu    sync.Mutex
	state *State

	// SelfTest runs CheckInvariants after every Mutate when true — the
	// "instrumented build" post-condition check from spec.md §4.10. A
	// violation panics from within CheckInvariants itself, so Mutate
	// aborts the process rather than returning a corrupted state to the
	// caller.
	SelfTest bool
}

// NewStore wraps an already-constructed State (e.g. the result of replay
// or NewFromInit).
func NewStore(s *State) *Store {
	return &Store{state: s}
}

// Read runs fn under the store's mutex, the same exclusive lock Mutate
// takes; fn must treat the state as read-only by convention.
func (st *Store) Read(fn func(*State)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state == nil {
		panic("protocolstate: state not initialized")
	}
	fn(st.state)
}

// Mutate runs fn with exclusive access to the state.
func (st *Store) Mutate(fn func(*State)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state == nil {
		panic("protocolstate: state not initialized")
	}
	fn(st.state)
	if st.SelfTest {
		st.state.CheckInvariants()
	}
}

// Replace swaps in a new State wholesale (used after a full log replay).
func (st *Store) Replace(s *State) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = s
}

// Snapshot returns a value suitable for read-only inspection outside the
// lock — callers must not mutate the returned State's maps.
func (st *Store) Snapshot() *State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}
