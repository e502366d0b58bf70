package circuitbreaker

import "sync"

// Registry hands out one breaker per provider, creating them lazily so
// providers added to the configuration at runtime get tracked without a
// restart.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	config   Config
	store    SharedStore
}

// NewRegistry creates a registry. store may be nil; then breaker state stays
// local to this instance.
func NewRegistry(store SharedStore, config Config) *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
		store:    store,
	}
}

// For returns the breaker for a provider, creating it on first use.
func (r *Registry) For(provider string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[provider]
	if !ok {
		cb = NewWithConfig(r.store, provider, r.config)
		r.breakers[provider] = cb
	}
	return cb
}

// Healthy reports provider health without forcing breaker creation.
func (r *Registry) Healthy(provider string) bool {
	r.mu.Lock()
	cb, ok := r.breakers[provider]
	r.mu.Unlock()
	if !ok {
		return true
	}
	return cb.Healthy()
}

// States returns a snapshot of every tracked provider's state.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]State, len(r.breakers))
	for provider, cb := range r.breakers {
		out[provider] = cb.GetState()
	}
	return out
}
