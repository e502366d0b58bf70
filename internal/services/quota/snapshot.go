// Package quota exposes the read-only quota snapshot the resolver consults.
// The snapshot itself is owned and refreshed by the quota-tracking subsystem
// outside this core; this package only defines the consumption surface.
package quota

import (
	"sync"
	"time"
)

// State is the last-known quota standing of one provider+model pair.
type State struct {
	Exhausted bool      `json:"exhausted"`
	Remaining int64     `json:"remaining,omitempty"`
	ResetAt   time.Time `json:"reset_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Snapshot is a point-in-time, read-only view of quota state. Implementations
// must be safe for concurrent readers.
type Snapshot interface {
	// Exhausted reports whether the pair is believed out of quota. Absence of
	// data reads as not exhausted; the snapshot may be stale either way.
	Exhausted(provider, model string) bool
	// Lookup returns the full state when one is known.
	Lookup(provider, model string) (State, bool)
}

// Source hands out the current snapshot. The bridge reads it per request so
// refreshes by the owning subsystem take effect without restarts.
type Source interface {
	Snapshot() Snapshot
}

func key(provider, model string) string { return provider + "/" + model }

// Static is a fixed snapshot, used in tests and as the zero-data default.
type Static map[string]State

func (s Static) Exhausted(provider, model string) bool {
	st, ok := s[key(provider, model)]
	return ok && st.Exhausted
}

func (s Static) Lookup(provider, model string) (State, bool) {
	st, ok := s[key(provider, model)]
	return st, ok
}

// Set records the state for a provider+model pair (builder-style, pre-share).
func (s Static) Set(provider, model string, st State) Static {
	s[key(provider, model)] = st
	return s
}

// Swappable is a Source whose snapshot the quota subsystem replaces
// wholesale. Single writer, any number of readers.
type Swappable struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewSwappable starts with an empty snapshot.
func NewSwappable() *Swappable {
	return &Swappable{snap: Static{}}
}

func (s *Swappable) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Swap installs a new snapshot atomically.
func (s *Swappable) Swap(snap Snapshot) {
	if snap == nil {
		snap = Static{}
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}
