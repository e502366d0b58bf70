// Package routecache is a stale-while-revalidate cache of resolved upstream
// routes, keyed by fallback entry ID so chain reorders never invalidate it.
package routecache

import (
	"sync"
	"time"

	"github.com/zhangshican/quotio-bridge/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ResolveFunc rebuilds the endpoint for an entry. It may touch the network,
// which is why the cache controls when it runs.
type ResolveFunc func(entryID string) (models.Endpoint, error)

type cached struct {
	endpoint        models.Endpoint
	lastValidatedAt time.Time
	// needSync forces the next resolution for this entry to wait for
	// revalidation instead of serving the stale value again.
	needSync bool
}

// Cache bounds storage with an LRU and dedups concurrent revalidations per
// entry ID with a singleflight group.
type Cache struct {
	mu       sync.Mutex
	entries  *lru.Cache[string, *cached]
	freshTTL time.Duration
	group    singleflight.Group
}

// New creates a cache with the given capacity and freshness window.
func New(capacity int, freshTTL time.Duration) (*Cache, error) {
	entries, err := lru.New[string, *cached](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries, freshTTL: freshTTL}, nil
}

// Get returns the most recent cached value immediately if one exists,
// regardless of freshness; freshness is reported separately.
func (c *Cache) Get(entryID string) (models.RouteCacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(entryID)
	if !ok {
		return models.RouteCacheEntry{}, false
	}
	return models.RouteCacheEntry{
		Endpoint:        e.endpoint,
		LastValidatedAt: e.lastValidatedAt,
		IsFresh:         time.Since(e.lastValidatedAt) < c.freshTTL,
	}, true
}

// Put overwrites unconditionally and marks the entry freshly validated.
func (c *Cache) Put(entryID string, endpoint models.Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(entryID, &cached{endpoint: endpoint, lastValidatedAt: time.Now()})
}

// Remove drops an entry. Only called when the fallback entry itself is
// deleted; priority or order changes never reach here.
func (c *Cache) Remove(entryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(entryID)
	c.group.Forget(entryID)
}

// GetOrResolve is the resolver's entry point. A fresh hit is served
// immediately with a background revalidation; a stale hit is served
// immediately too but pins the next call to a synchronous revalidation; a
// miss resolves synchronously. served reports whether the returned endpoint
// came from the cache rather than a resolution completed during this call.
func (c *Cache) GetOrResolve(entryID string, resolve ResolveFunc) (endpoint models.Endpoint, served bool, err error) {
	c.mu.Lock()
	e, ok := c.entries.Get(entryID)
	if !ok {
		c.mu.Unlock()
		return c.resolveSync(entryID, resolve)
	}

	if e.needSync {
		c.mu.Unlock()
		fiberlog.Debugf("routecache: entry %s pinned for synchronous revalidation", entryID)
		return c.resolveSync(entryID, resolve)
	}

	fresh := time.Since(e.lastValidatedAt) < c.freshTTL
	if !fresh {
		e.needSync = true
	}
	endpoint = e.endpoint
	c.mu.Unlock()

	// Both fresh and stale hits refresh in the background; the singleflight
	// group collapses concurrent revalidations for the same entry.
	go c.revalidate(entryID, resolve)

	return endpoint, true, nil
}

func (c *Cache) resolveSync(entryID string, resolve ResolveFunc) (models.Endpoint, bool, error) {
	v, err, _ := c.group.Do(entryID, func() (any, error) {
		ep, err := resolve(entryID)
		if err != nil {
			return models.Endpoint{}, err
		}
		c.Put(entryID, ep)
		return ep, nil
	})
	if err != nil {
		return models.Endpoint{}, false, err
	}
	return v.(models.Endpoint), false, nil
}

func (c *Cache) revalidate(entryID string, resolve ResolveFunc) {
	if _, _, err := c.resolveSync(entryID, resolve); err != nil {
		fiberlog.Warnf("routecache: background revalidation for %s failed: %v", entryID, err)
	}
}
