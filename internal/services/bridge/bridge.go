// Package bridge is the local listener: it accepts client traffic, runs the
// classify/resolve/convert/retry pipeline against upstream providers, and
// forwards everything it does not own to the local target port.
package bridge

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/zhangshican/quotio-bridge/internal/config"
	"github.com/zhangshican/quotio-bridge/internal/models"
	"github.com/zhangshican/quotio-bridge/internal/services/circuitbreaker"
	"github.com/zhangshican/quotio-bridge/internal/services/quota"
	"github.com/zhangshican/quotio-bridge/internal/services/resolver"
	"github.com/zhangshican/quotio-bridge/internal/services/retry"
	"github.com/zhangshican/quotio-bridge/internal/services/routecache"
	"github.com/zhangshican/quotio-bridge/internal/services/tracker"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
)

// State is the bridge lifecycle state.
type State int

const (
	StateNotReady State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "not_ready"
	}
}

// Bridge owns the listener and the request pipeline. Configuration is held
// behind a lock and read per request, so a reload takes effect without
// restarting the listener and no handler reads shared mutable state ad hoc.
type Bridge struct {
	mu         sync.RWMutex
	state      State
	listenPort int
	targetPort int
	cfg        *config.Config
	startedAt  time.Time

	app      *fiber.App
	resolver *resolver.Resolver
	engine   *retry.Engine
	tracker  *tracker.Tracker
	cache    *routecache.Cache
	breakers *circuitbreaker.Registry
	keeper   *quota.Keeper
	pool     *upstreamPool
	target   *fasthttp.HostClient
}

// New wires the pipeline from configuration. The listener is not bound
// until Start.
func New(cfg *config.Config) (*Bridge, error) {
	cache, err := routecache.New(cfg.RouteCache.Capacity, time.Duration(cfg.RouteCache.FreshTTLMs)*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("route cache: %w", err)
	}

	var breakerStore circuitbreaker.SharedStore
	if cfg.Breaker.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Breaker.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("breaker redis url: %w", err)
		}
		breakerStore = circuitbreaker.NewRedisStore(redis.NewClient(opts))
	}

	b := &Bridge{
		state:    StateNotReady,
		cfg:      cfg,
		cache:    cache,
		tracker:  tracker.New(cfg.Tracker.Capacity),
		breakers: circuitbreaker.NewRegistry(breakerStore, circuitbreaker.FromBreakerConfig(cfg.Breaker)),
		keeper:   quota.NewKeeper(0),
		pool:     newUpstreamPool(cfg),
	}
	b.resolver = resolver.New(cache)
	b.engine = retry.New(b.pool, b.breakers, cfg.SanitizePatterns, retry.Hooks{
		OnForbidden: func(err *models.AppError) {
			b.keeper.MarkBlocked(err.Provider)
		},
		OnQuotaExhausted: func(err *models.AppError) {
			b.keeper.MarkExhausted(err.Provider, err.Model)
		},
	})
	return b, nil
}

// Configure stores binding parameters. No side effects; Start does the work.
func (b *Bridge) Configure(listenPort, targetPort int) {
	b.mu.Lock()
	b.listenPort = listenPort
	b.targetPort = targetPort
	b.mu.Unlock()
}

// State returns the lifecycle state.
func (b *Bridge) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Tracker exposes the request record stream for collaborators.
func (b *Bridge) Tracker() *tracker.Tracker { return b.tracker }

// UpdateSettings swaps in new configuration. The upstream pool picks up the
// new provider set, dropping connections whose parameters changed. Route
// cache entries for fallback entries that no longer exist are removed;
// everything else keeps its freshness state, so reorders and unrelated edits
// are invisible to the cache.
func (b *Bridge) UpdateSettings(cfg *config.Config) {
	b.mu.Lock()
	old := b.cfg
	b.cfg = cfg
	b.mu.Unlock()

	b.pool.Reconfigure(cfg)

	kept := make(map[string]struct{})
	for _, vm := range cfg.Fallback.VirtualModels {
		for _, entry := range vm.Entries {
			kept[entry.ID] = struct{}{}
		}
	}
	for _, vm := range old.Fallback.VirtualModels {
		for _, entry := range vm.Entries {
			if _, ok := kept[entry.ID]; !ok {
				b.cache.Remove(entry.ID)
			}
		}
	}
}

func (b *Bridge) settings() *config.Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// Start binds the listener and begins serving. The bind happens in the
// caller's goroutine so a port conflict is reported synchronously and moves
// the state to failed; serving then continues in the background.
func (b *Bridge) Start() error {
	b.mu.Lock()
	if b.state == StateReady {
		b.mu.Unlock()
		return fmt.Errorf("bridge already started")
	}
	listenPort := b.listenPort
	targetPort := b.targetPort
	b.mu.Unlock()

	if listenPort <= 0 {
		return fmt.Errorf("bridge not configured: listen port unset")
	}

	app := b.newApp()

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", listenPort))
	if err != nil {
		b.mu.Lock()
		b.state = StateFailed
		b.mu.Unlock()
		return fmt.Errorf("bind listen port %d: %w", listenPort, err)
	}

	b.mu.Lock()
	b.app = app
	b.target = &fasthttp.HostClient{
		Addr:     fmt.Sprintf("127.0.0.1:%d", targetPort),
		MaxConns: 64,
	}
	b.state = StateReady
	b.startedAt = time.Now()
	b.mu.Unlock()

	fiberlog.Infof("bridge: listening on %s, forwarding unmatched traffic to port %d", ln.Addr(), targetPort)

	go func() {
		if err := app.Listener(ln); err != nil {
			fiberlog.Errorf("bridge: listener stopped: %v", err)
			b.mu.Lock()
			b.state = StateFailed
			b.mu.Unlock()
		}
	}()
	return nil
}

// Stop shuts the listener down gracefully: in-flight handlers are allowed to
// finish, and already-dispatched upstream calls run to their own deadlines.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	app := b.app
	b.app = nil
	b.state = StateNotReady
	b.mu.Unlock()

	if app == nil {
		return nil
	}
	return app.ShutdownWithTimeout(10 * time.Second)
}

func (b *Bridge) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "quotio-bridge",
		DisableStartupMessage: true,
		ReadTimeout:           2 * time.Minute,
		WriteTimeout:          5 * time.Minute,
		IdleTimeout:           2 * time.Minute,
		ErrorHandler:          b.errorHandler,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	if !b.settings().IsProduction() {
		// Per-request access log is development tooling; production keeps
		// the structured event log only.
		app.Use(logger.New(logger.Config{
			Format: "${time} | ${status} | ${latency} | ${method} ${path}\n",
		}))
	}
	b.registerRoutes(app)
	return app
}

func (b *Bridge) registerRoutes(app *fiber.App) {
	app.Post("/v1/messages", b.handleChat(models.FamilyClaude))
	app.Post("/v1/chat/completions", b.handleChat(models.FamilyGPT))

	app.Get("/v1/models", b.handleModels)
	app.Get("/health", b.handleHealth)
	app.Get("/internal/requests", b.handleRequests)

	app.All("/*", b.handlePassthrough)
}

// errorHandler renders uncaught errors in the structured error shape.
func (b *Bridge) errorHandler(c *fiber.Ctx, err error) error {
	if appErr, ok := err.(*models.AppError); ok {
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr})
	}
	if fiberErr, ok := err.(*fiber.Error); ok {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiber.Map{"type": "internal", "message": fiberErr.Message},
		})
	}
	fiberlog.Errorf("bridge: unhandled error: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": fiber.Map{"type": "internal", "message": "internal server error"},
	})
}
