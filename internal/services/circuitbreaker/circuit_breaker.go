package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zhangshican/quotio-bridge/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

type Config struct {
	FailureThreshold int
	SuccessThreshold int
	OpenFor          time.Duration
}

func defaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		OpenFor:          30 * time.Second,
	}
}

// FromBreakerConfig builds a Config from the YAML settings, filling defaults.
func FromBreakerConfig(bc models.BreakerConfig) Config {
	cfg := defaultConfig()
	if bc.FailureThreshold > 0 {
		cfg.FailureThreshold = bc.FailureThreshold
	}
	if bc.SuccessThreshold > 0 {
		cfg.SuccessThreshold = bc.SuccessThreshold
	}
	if bc.OpenForMs > 0 {
		cfg.OpenFor = time.Duration(bc.OpenForMs) * time.Millisecond
	}
	return cfg
}

const redisKeyPrefix = "bridge:breaker:"

// SharedStore holds breaker state shared between bridge instances. Load
// misses report ok=false; Store failures are swallowed by implementations.
type SharedStore interface {
	Load(ctx context.Context, provider string) (State, bool)
	Store(ctx context.Context, provider string, state State, ttl time.Duration)
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a redis client as a SharedStore.
func NewRedisStore(client *redis.Client) SharedStore {
	return &redisStore{client: client}
}

func (s *redisStore) Load(ctx context.Context, provider string) (State, bool) {
	val, err := s.client.Get(ctx, redisKeyPrefix+provider).Int()
	if err != nil {
		return Closed, false
	}
	return State(val), true
}

func (s *redisStore) Store(ctx context.Context, provider string, state State, ttl time.Duration) {
	if err := s.client.Set(ctx, redisKeyPrefix+provider, int(state), ttl).Err(); err != nil {
		fiberlog.Debugf("CircuitBreaker: failed to mirror %s state: %v", provider, err)
	}
}

// CircuitBreaker tracks the health of one upstream provider. State lives in
// process memory; when a shared store is supplied the state is mirrored there
// and peer verdicts are adopted, so multiple bridge instances share provider
// health. The resolver consults it to deprioritize (never drop) unhealthy
// providers.
type CircuitBreaker struct {
	provider string
	config   Config
	store    SharedStore

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailure     time.Time
	lastMirrorCheck time.Time
}

// NewForProvider creates a breaker with default thresholds. store may be nil.
func NewForProvider(store SharedStore, provider string) *CircuitBreaker {
	return NewWithConfig(store, provider, defaultConfig())
}

func NewWithConfig(store SharedStore, provider string, config Config) *CircuitBreaker {
	cb := &CircuitBreaker{
		provider: provider,
		config:   config,
		store:    store,
		state:    Closed,
	}
	if store != nil {
		// A freshly created breaker inherits an Open verdict a peer
		// instance already reached for this provider.
		go cb.adoptMirror()
	}
	return cb
}

// Healthy reports whether the provider should keep its place in the attempt
// plan. Open circuits transition to HalfOpen after the open interval so the
// provider is probed again rather than shunned forever.
func (cb *CircuitBreaker) Healthy() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		cb.maybeRefreshMirrorLocked()
		return true
	case HalfOpen:
		return true
	case Open:
		if time.Since(cb.lastFailure) > cb.config.OpenFor {
			cb.transitionLocked(HalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess resets failure accounting and, from HalfOpen, closes the
// circuit once enough successes accumulate.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	if cb.state == HalfOpen {
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.transitionLocked(Closed)
		}
	}
}

// RecordFailure counts a failure and opens the circuit at the threshold. A
// failure while HalfOpen reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailure = time.Now()

	if cb.state == HalfOpen || (cb.state == Closed && cb.failureCount >= cb.config.FailureThreshold) {
		cb.transitionLocked(Open)
	}
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker back to Closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
	cb.successCount = 0
	cb.transitionLocked(Closed)
}

func (cb *CircuitBreaker) transitionLocked(newState State) {
	if cb.state == newState {
		return
	}
	cb.state = newState
	cb.successCount = 0

	switch newState {
	case Open:
		fiberlog.Warnf("CircuitBreaker: %s transitioned to Open", cb.provider)
	default:
		fiberlog.Debugf("CircuitBreaker: %s transitioned to %s", cb.provider, newState)
	}

	cb.mirrorState(newState)
}

// mirrorState publishes the new state to the shared store, fire-and-forget.
// Shared state is advisory; local memory stays authoritative for this
// instance.
func (cb *CircuitBreaker) mirrorState(newState State) {
	if cb.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cb.store.Store(ctx, cb.provider, newState, cb.config.OpenFor*2)
	}()
}

// maybeRefreshMirrorLocked schedules an adoption check at most once per open
// interval, so a Closed breaker eventually notices a peer's Open verdict
// without a store round-trip on every request.
func (cb *CircuitBreaker) maybeRefreshMirrorLocked() {
	if cb.store == nil || time.Since(cb.lastMirrorCheck) < cb.config.OpenFor {
		return
	}
	cb.lastMirrorCheck = time.Now()
	go cb.adoptMirror()
}

// adoptMirror reads the shared state and adopts a peer's Open verdict when
// the local breaker has no failure evidence of its own. Only Closed→Open is
// adopted; recovery is always earned locally through the HalfOpen probe.
func (cb *CircuitBreaker) adoptMirror() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	state, ok := cb.store.Load(ctx, cb.provider)
	if !ok || state != Open {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != Closed {
		return
	}
	cb.state = Open
	cb.successCount = 0
	cb.lastFailure = time.Now()
	fiberlog.Warnf("CircuitBreaker: %s adopted Open state from a peer instance", cb.provider)
}
