// Package guard implements the protocol's three cooperative locks:
// a per-principal reentrancy guard capped at a fixed number of concurrent
// holders, and two process-wide singleton guards for the pending-transfer
// timer and the oracle-fetch loop. All three use scoped acquisition with
// guaranteed release on every exit path, the same RAII-style shape as
// native/common/guard.go's PauseView/Guard, adapted from a single pause
// check into an acquire/release pair since this protocol's guards are
// mutually-exclusive holds rather than a static paused/unpaused flag.
package guard

import (
	"errors"
	"fmt"
	"sync"

	"talvault/principal"
)

// ErrAlreadyProcessing is returned when the caller already holds the
// principal guard — the protocol's AlreadyProcessing error.
var ErrAlreadyProcessing = errors.New("guard: caller already has a request in flight")

// ErrTooManyConcurrentRequests is returned when the process-wide cap on
// concurrent principal guards is exceeded.
var ErrTooManyConcurrentRequests = errors.New("guard: too many concurrent requests")

// PrincipalGuards enforces at most one in-flight mutating request per
// caller, with a process-wide cap on the number of simultaneously held
// guards.
type PrincipalGuards struct {
	mu      sync.Mutex
	held    map[principal.Principal]struct{}
	maxSize int
}

// NewPrincipalGuards constructs a guard set with the given concurrency cap.
func NewPrincipalGuards(maxSize int) *PrincipalGuards {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &PrincipalGuards{held: make(map[principal.Principal]struct{}), maxSize: maxSize}
}

// Release is returned by Acquire; callers must defer it immediately so the
// guard is released on every exit path, including panics.
type Release func()

// Acquire takes the guard for p, or returns an error if p already holds it
// or the process-wide cap is full.
func (g *PrincipalGuards) Acquire(p principal.Principal) (Release, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[p]; ok {
		return nil, ErrAlreadyProcessing
	}
	if len(g.held) >= g.maxSize {
		return nil, ErrTooManyConcurrentRequests
	}
	g.held[p] = struct{}{}

	released := false
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if released {
			return
		}
		released = true
		delete(g.held, p)
	}, nil
}

// Len reports how many guards are currently held, for metrics.
func (g *PrincipalGuards) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}

// Singleton is a process-wide mutual-exclusion guard used by the
// pending-transfer worker and the oracle-fetch loop: at most one instance
// of each may run at a time.
type Singleton struct {
	mu   sync.Mutex
	held bool
	name string
}

// NewSingleton constructs a named singleton guard (the name is used only in
// error messages).
func NewSingleton(name string) *Singleton {
	return &Singleton{name: name}
}

// TryAcquire attempts to take the singleton guard, returning ok=false if it
// is already held.
func (s *Singleton) TryAcquire() (release Release, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held {
		return nil, false
	}
	s.held = true

	released := false
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if released {
			return
		}
		released = true
		s.held = false
	}, true
}

// MustAcquire acquires or panics — used at call sites that have already
// checked IsHeld and are certain of exclusive access (programming bug
// otherwise).
func (s *Singleton) MustAcquire() Release {
	release, ok := s.TryAcquire()
	if !ok {
		panic(fmt.Sprintf("guard: %s singleton already held", s.name))
	}
	return release
}

// IsHeld reports whether the singleton is currently held.
func (s *Singleton) IsHeld() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}
