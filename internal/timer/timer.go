// Package timer provides generation-tagged one-shot timers.
//
// A Set owns at most one running timer per Role. Starting a role that is
// already running cancels the old instance first. Every firing is delivered
// as an Expiry carrying the generation it was started with, and the owner
// calls Claim before acting on it, so a firing that raced with a cancel is
// recognised and dropped.
package timer

import (
	"fmt"
	"time"
)

// Role names one logical timer owned by a Set.
type Role uint8

// Expiry is posted when a timer fires.
type Expiry struct {
	Role Role
	Gen  uint64
}

func (e Expiry) String() string {
	return fmt.Sprintf("timer(role=%d gen=%d)", e.Role, e.Gen)
}

// Stopper cancels a scheduled callback.
type Stopper interface {
	Stop() bool
}

// Clock schedules callbacks. System returns the wall clock; Manual is a
// deterministic clock for tests and simulations.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

type systemClock struct{}

// System returns a Clock backed by the time package.
func System() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

type entry struct {
	gen      uint64
	duration time.Duration
	stop     Stopper
}

// Set is not safe for concurrent use. It is meant to be driven from a single
// dispatch goroutine; only the fire callback runs on the clock's goroutine.
type Set struct {
	clock  Clock
	fire   func(Expiry)
	gen    uint64
	active map[Role]entry
}

// NewSet creates a Set that reports expiries through fire.
func NewSet(clock Clock, fire func(Expiry)) *Set {
	if clock == nil {
		clock = System()
	}
	return &Set{
		clock:  clock,
		fire:   fire,
		active: make(map[Role]entry),
	}
}

// Start (re)arms role to fire after d and returns the new generation.
func (s *Set) Start(role Role, d time.Duration) uint64 {
	s.Stop(role)
	s.gen++
	gen := s.gen
	stop := s.clock.AfterFunc(d, func() {
		s.fire(Expiry{Role: role, Gen: gen})
	})
	s.active[role] = entry{gen: gen, duration: d, stop: stop}
	return gen
}

// Stop cancels role. It reports whether a timer was running.
func (s *Set) Stop(role Role) bool {
	e, ok := s.active[role]
	if !ok {
		return false
	}
	e.stop.Stop()
	delete(s.active, role)
	return true
}

// StopAll cancels every running timer.
func (s *Set) StopAll() {
	for role := range s.active {
		s.Stop(role)
	}
}

// Running reports whether role has an armed timer.
func (s *Set) Running(role Role) bool {
	_, ok := s.active[role]
	return ok
}

// Duration returns the period role was last started with, if running.
func (s *Set) Duration(role Role) (time.Duration, bool) {
	e, ok := s.active[role]
	return e.duration, ok
}

// Claim reports whether e is the current instance of its role. A matching
// expiry clears the role; a stale one leaves the running timer untouched.
func (s *Set) Claim(e Expiry) bool {
	cur, ok := s.active[e.Role]
	if !ok || cur.gen != e.Gen {
		return false
	}
	delete(s.active, e.Role)
	return true
}
