// Package resolver turns a virtual model into an ordered attempt plan: the
// chain the retry engine walks. Quota-exhausted entries are pushed to the
// tail rather than dropped, and resolved endpoints come through the route
// cache so repeat resolutions stay off the hot path.
package resolver

import (
	"github.com/zhangshican/quotio-bridge/internal/models"
	"github.com/zhangshican/quotio-bridge/internal/services/quota"
	"github.com/zhangshican/quotio-bridge/internal/services/routecache"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// PlannedAttempt is one slot in the chain. Skipped slots are never sent
// upstream but still appear in the request trace.
type PlannedAttempt struct {
	Entry    models.FallbackEntry
	Endpoint models.Endpoint
	Family   models.ModelFamily

	// Skipped is set at resolution time for entries whose provider is
	// disabled or unknown; SkipReason says which.
	Skipped    bool
	SkipReason string

	// FromCache marks the endpoint as served out of the route cache rather
	// than resolved during this call.
	FromCache bool

	// Deprioritized marks an entry moved to the tail because the quota
	// snapshot believed it exhausted.
	Deprioritized bool
}

// Plan is the ordered chain for one request.
type Plan struct {
	VirtualModel string
	Attempts     []PlannedAttempt
}

// FromCachedRoute reports whether the plan's first attemptable slot was
// served from the route cache.
func (p Plan) FromCachedRoute() bool {
	for _, a := range p.Attempts {
		if a.Skipped {
			continue
		}
		return a.FromCache
	}
	return false
}

// Resolver builds attempt plans. Configuration is passed in per call, never
// read from shared globals, so a caller can refresh providers or swap
// snapshots without coordinating with in-flight resolutions.
type Resolver struct {
	cache *routecache.Cache
}

func New(cache *routecache.Cache) *Resolver {
	return &Resolver{cache: cache}
}

// Resolve produces the attempt plan for a virtual model. Entries are taken
// in priority order, exhausted ones are moved to the tail with relative
// order preserved, and each attemptable entry's endpoint is pulled through
// the route cache. If every entry is believed exhausted the original order
// stands: the snapshot may be stale and the upstream may already have reset,
// so the head is still attempted. Never blocks on network I/O unless the
// cache has no value for an entry at all.
func (r *Resolver) Resolve(vm *models.VirtualModel, providers map[string]models.ProviderConfig, snap quota.Snapshot) Plan {
	plan := Plan{VirtualModel: vm.Name}

	entries := vm.SortedEntries()
	ordered := deprioritizeExhausted(entries, snap)

	for _, oe := range ordered {
		attempt := PlannedAttempt{
			Entry:         oe.entry,
			Family:        models.DetectModelFamily(oe.entry.Model),
			Deprioritized: oe.deprioritized,
		}

		pc, ok := providers[oe.entry.Provider]
		switch {
		case !ok:
			attempt.Skipped = true
			attempt.SkipReason = "unknown provider"
		case !pc.IsEnabled():
			attempt.Skipped = true
			attempt.SkipReason = "provider disabled"
		default:
			endpoint, served, err := r.cache.GetOrResolve(oe.entry.ID, func(string) (models.Endpoint, error) {
				return models.Endpoint{
					Provider: oe.entry.Provider,
					Model:    oe.entry.Model,
					BaseURL:  pc.BaseURL,
				}, nil
			})
			if err != nil {
				// Resolution failures are recoverable the same way provider
				// misconfiguration is: skip the slot, keep the chain alive.
				fiberlog.Warnf("resolver: route resolution failed for entry %s (%s/%s): %v",
					oe.entry.ID, oe.entry.Provider, oe.entry.Model, err)
				attempt.Skipped = true
				attempt.SkipReason = "route resolution failed"
			} else {
				attempt.Endpoint = endpoint
				attempt.FromCache = served
			}
		}

		plan.Attempts = append(plan.Attempts, attempt)
	}
	return plan
}

type orderedEntry struct {
	entry         models.FallbackEntry
	deprioritized bool
}

// deprioritizeExhausted stably partitions entries into believed-available
// and believed-exhausted, available first. When nothing is available the
// partition is a no-op and the chain keeps its configured order.
func deprioritizeExhausted(entries []models.FallbackEntry, snap quota.Snapshot) []orderedEntry {
	if snap == nil {
		out := make([]orderedEntry, len(entries))
		for i, e := range entries {
			out[i] = orderedEntry{entry: e}
		}
		return out
	}

	available := make([]orderedEntry, 0, len(entries))
	var exhausted []orderedEntry
	for _, e := range entries {
		if snap.Exhausted(e.Provider, e.Model) {
			exhausted = append(exhausted, orderedEntry{entry: e, deprioritized: true})
		} else {
			available = append(available, orderedEntry{entry: e})
		}
	}

	if len(available) == 0 {
		for i := range exhausted {
			exhausted[i].deprioritized = false
		}
		return exhausted
	}
	return append(available, exhausted...)
}
