package localwatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/ordserve/internal/cache"
	"git.home.luguber.info/inful/ordserve/internal/fingerprint"
	"git.home.luguber.info/inful/ordserve/internal/ord"
)

func newWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	loader := &cache.Loader{
		Cache: cache.New(),
		Processor: &ord.Processor{
			BaseURL:    "https://ord.example.com",
			Strategies: []ord.AccessStrategy{{Type: ord.StrategyOpen}},
		},
	}
	w, err := New(dir, loader)
	require.NoError(t, err)
	t.Cleanup(w.Stop)
	return w, dir
}

func TestReloadWarmsCache(t *testing.T) {
	w, dir := newWatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"),
		[]byte(`{"openResourceDiscovery": "1.9"}`), 0o644))

	require.NoError(t, w.reload(context.Background()))

	fp, err := fingerprint.ForDirectory(dir)
	require.NoError(t, err)
	assert.NotNil(t, w.loader.Cache.GetCachedOrdConfig(fp))
}

func TestReloadIsIdempotentPerFingerprint(t *testing.T) {
	w, dir := newWatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"),
		[]byte(`{"openResourceDiscovery": "1.9"}`), 0o644))

	require.NoError(t, w.reload(context.Background()))
	fp, err := fingerprint.ForDirectory(dir)
	require.NoError(t, err)
	first := w.loader.Cache.GetCachedOrdConfig(fp)

	require.NoError(t, w.reload(context.Background()))
	assert.Same(t, first, w.loader.Cache.GetCachedOrdConfig(fp), "warm fingerprint is not rebuilt")
}

func TestWatcherDetectsWrites(t *testing.T) {
	w, dir := newWatcher(t)
	w.debounceTime = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"),
		[]byte(`{"openResourceDiscovery": "1.9"}`), 0o644))

	require.Eventually(t, func() bool {
		fp, err := fingerprint.ForDirectory(dir)
		if err != nil {
			return false
		}
		return w.loader.Cache.GetCachedOrdConfig(fp) != nil
	}, 5*time.Second, 20*time.Millisecond, "cache should warm after the debounced reload")
}
