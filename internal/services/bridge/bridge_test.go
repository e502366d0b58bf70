package bridge

import (
	"testing"

	"github.com/zhangshican/quotio-bridge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRequiresConfigure(t *testing.T) {
	b, err := New(testConfig())
	require.NoError(t, err)

	assert.Equal(t, StateNotReady, b.State())
	assert.ErrorContains(t, b.Start(), "listen port unset")
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	b, err := New(testConfig())
	require.NoError(t, err)

	assert.NoError(t, b.Stop())
	assert.Equal(t, StateNotReady, b.State())
}

func TestUpdateSettingsEvictsRemovedEntries(t *testing.T) {
	b, err := New(testConfig())
	require.NoError(t, err)

	// Warm the cache for both chain entries.
	cfg := b.settings()
	snap := healthSnapshot{keeper: b.keeper, breakers: b.breakers}
	b.resolver.Resolve(&cfg.Fallback.VirtualModels[0], cfg.Providers, snap)

	_, ok := b.cache.Get("e-k")
	require.True(t, ok)

	next := testConfig()
	next.Fallback.VirtualModels[0] = next.Fallback.VirtualModels[0].RemoveEntry("e-k")
	b.UpdateSettings(next)

	_, ok = b.cache.Get("e-k")
	assert.False(t, ok, "removing the fallback entry evicts its route")
	_, ok = b.cache.Get("e-a")
	assert.True(t, ok, "surviving entries keep their freshness state")
}

func TestUpdateSettingsRefreshesUpstreamPool(t *testing.T) {
	b, err := New(testConfig())
	require.NoError(t, err)

	_, ok := b.pool.providerConfig("newprov")
	require.False(t, ok)

	next := testConfig()
	next.Providers["newprov"] = models.ProviderConfig{BaseURL: "https://newprov.example"}
	next.Fallback.VirtualModels[0].Entries = append(next.Fallback.VirtualModels[0].Entries,
		models.FallbackEntry{ID: "e-n", Provider: "newprov", Model: "claude-sonnet-4-5", Priority: 3})
	b.UpdateSettings(next)

	pc, ok := b.pool.providerConfig("newprov")
	require.True(t, ok, "the send path sees providers added by a reload")
	assert.Equal(t, "https://newprov.example", pc.BaseURL)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "not_ready", StateNotReady.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
}
