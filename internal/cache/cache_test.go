package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/ordserve/internal/ord"
)

func TestHasDirectoryHashChanged(t *testing.T) {
	c := New()

	assert.False(t, c.HasDirectoryHashChanged("/data/current", "h1"), "first sighting records, no change")
	assert.False(t, c.HasDirectoryHashChanged("/data/current", "h1"))

	c.CacheDocument("doc1.json", "h1", ord.Document{"openResourceDiscovery": "1.9"})
	require.NotNil(t, c.GetDocumentFromCache("doc1.json", "h1"))

	assert.True(t, c.HasDirectoryHashChanged("/data/current", "h2"))
	assert.Nil(t, c.GetDocumentFromCache("doc1.json", "h1"), "old fingerprint entries are purged")
	assert.False(t, c.HasDirectoryHashChanged("/data/current", "h2"), "new hash is now remembered")
}

func TestCacheDocumentIndexesPathOnce(t *testing.T) {
	c := New()
	c.CacheDocument("a.json", "h1", ord.Document{"v": 1.0})
	c.CacheDocument("a.json", "h1", ord.Document{"v": 2.0})
	c.CacheDocument("b.json", "h1", ord.Document{})

	assert.Equal(t, []string{"a.json", "b.json"}, c.GetCachedDirectoryDocumentPaths("h1"))
	assert.Equal(t, ord.Document{"v": 2.0}, c.GetDocumentFromCache("a.json", "h1"))
}

func TestPublishConfiguration(t *testing.T) {
	c := New()
	cfg := ord.NewConfigurationPayload("https://example.com", nil)
	fqn := ord.FqnMap{"ns:apiResource:orders:v1": {{FileName: "orders.json", FilePath: "/orders.json"}}}

	c.PublishConfiguration("h1", &cfg, []string{"a.json"}, fqn)

	assert.Same(t, &cfg, c.GetCachedOrdConfig("h1"))
	assert.Equal(t, []string{"a.json"}, c.GetCachedDirectoryDocumentPaths("h1"))
	assert.Equal(t, fqn, c.GetCachedFqnMap("h1"))
}

func TestInvalidateCacheForDirectory(t *testing.T) {
	c := New()
	assert.False(t, c.HasDirectoryHashChanged("/d", "h1"))
	cfg := ord.NewConfigurationPayload("https://example.com", nil)
	c.PublishConfiguration("h1", &cfg, []string{"a.json"}, ord.FqnMap{})
	c.CacheDocument("a.json", "h1", ord.Document{})

	c.InvalidateCacheForDirectory("h1")

	assert.Nil(t, c.GetCachedOrdConfig("h1"))
	assert.Nil(t, c.GetDocumentFromCache("a.json", "h1"))
	assert.Nil(t, c.GetCachedFqnMap("h1"))
	assert.Empty(t, c.GetCachedDirectoryDocumentPaths("h1"))
	assert.False(t, c.HasDirectoryHashChanged("/d", "h2"), "directory association was dropped with the fingerprint")
}

func TestClearCache(t *testing.T) {
	c := New()
	c.CacheDocument("a.json", "h1", ord.Document{})
	cfg := ord.NewConfigurationPayload("https://example.com", nil)
	c.SetCachedOrdConfig("h1", &cfg)

	c.ClearCache()

	assert.Nil(t, c.GetCachedOrdConfig("h1"))
	assert.Equal(t, Stats{}, c.Stats())
}

func TestStats(t *testing.T) {
	c := New()
	cfgA := ord.NewConfigurationPayload("https://example.com", nil)
	c.CacheDocument("a.json", "h1", ord.Document{})
	c.CacheDocument("b.json", "h1", ord.Document{})
	c.SetCachedOrdConfig("h1", &cfgA)

	s := c.Stats()
	assert.Equal(t, 1, s.Fingerprints)
	assert.Equal(t, 2, s.Documents)
}
