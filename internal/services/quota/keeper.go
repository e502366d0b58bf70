package quota

import (
	"sync"
	"time"
)

// Keeper is the in-process quota bookkeeper: it turns the 429 and
// authorization-denied signals surfaced by the retry engine into snapshot
// state the resolver reads on the next request. Exhaustion self-expires so a
// provider that resets upstream is retried without manual intervention.
type Keeper struct {
	mu     sync.RWMutex
	states map[string]State
	// ttl is how long a 429 keeps a pair deprioritized when the upstream
	// does not say when it resets.
	ttl time.Duration
}

const DefaultExhaustionTTL = 5 * time.Minute

func NewKeeper(ttl time.Duration) *Keeper {
	if ttl <= 0 {
		ttl = DefaultExhaustionTTL
	}
	return &Keeper{states: make(map[string]State), ttl: ttl}
}

// MarkExhausted records a quota rejection for the pair.
func (k *Keeper) MarkExhausted(provider, model string) {
	now := time.Now()
	k.mu.Lock()
	k.states[key(provider, model)] = State{
		Exhausted: true,
		ResetAt:   now.Add(k.ttl),
		UpdatedAt: now,
	}
	k.mu.Unlock()
}

// MarkBlocked records an authorization denial for a provider. Blocks do not
// expire on their own; clearing requires Reset (operator or config reload).
func (k *Keeper) MarkBlocked(provider string) {
	now := time.Now()
	k.mu.Lock()
	k.states[key(provider, "")] = State{Exhausted: true, UpdatedAt: now}
	k.mu.Unlock()
}

// Reset clears all recorded state.
func (k *Keeper) Reset() {
	k.mu.Lock()
	k.states = make(map[string]State)
	k.mu.Unlock()
}

// Snapshot returns a point-in-time copy. Expired exhaustions are dropped
// from the copy rather than mutated in place; a read never writes.
func (k *Keeper) Snapshot() Snapshot {
	now := time.Now()
	k.mu.RLock()
	defer k.mu.RUnlock()

	snap := make(Static, len(k.states))
	for id, st := range k.states {
		if st.Exhausted && !st.ResetAt.IsZero() && now.After(st.ResetAt) {
			continue
		}
		snap[id] = st
	}
	return snap
}

// Exhausted implements Snapshot directly for callers that want live reads.
// A provider-wide block covers every model of that provider.
func (k *Keeper) Exhausted(provider, model string) bool {
	now := time.Now()
	k.mu.RLock()
	defer k.mu.RUnlock()

	for _, id := range []string{key(provider, model), key(provider, "")} {
		st, ok := k.states[id]
		if !ok || !st.Exhausted {
			continue
		}
		if !st.ResetAt.IsZero() && now.After(st.ResetAt) {
			continue
		}
		return true
	}
	return false
}

// Lookup implements Snapshot.
func (k *Keeper) Lookup(provider, model string) (State, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	st, ok := k.states[key(provider, model)]
	return st, ok
}
