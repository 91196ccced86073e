// Package cache holds processed ORD documents, configuration payloads and FQN
// maps keyed by content fingerprint. Entries for superseded fingerprints are
// invalidated when the directory hash changes.
package cache

import (
	"sync"

	"git.home.luguber.info/inful/ordserve/internal/ord"
)

// Cache is the fingerprint-keyed store. All methods are safe for concurrent use.
type Cache struct {
	mu sync.RWMutex

	docByPath map[string]map[string]ord.Document
	pathsOf   map[string][]string
	configOf  map[string]*ord.ConfigurationPayload
	fqnOf     map[string]ord.FqnMap

	// lastHash remembers the fingerprint last seen per directory, so a change
	// can invalidate the stale entries.
	lastHash map[string]string
}

func New() *Cache {
	c := &Cache{}
	c.reset()
	return c
}

func (c *Cache) reset() {
	c.docByPath = make(map[string]map[string]ord.Document)
	c.pathsOf = make(map[string][]string)
	c.configOf = make(map[string]*ord.ConfigurationPayload)
	c.fqnOf = make(map[string]ord.FqnMap)
	c.lastHash = make(map[string]string)
}

// HasDirectoryHashChanged reports whether dir's fingerprint differs from the
// one last recorded. The first call for a directory records the fingerprint
// and returns false. On a change, every entry keyed by the previous
// fingerprint is invalidated before the new one is recorded.
func (c *Cache) HasDirectoryHashChanged(dir, fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous, seen := c.lastHash[dir]
	if !seen {
		c.lastHash[dir] = fingerprint
		return false
	}
	if previous == fingerprint {
		return false
	}
	c.invalidateLocked(previous)
	c.lastHash[dir] = fingerprint
	return true
}

// CacheDocument stores a processed document and indexes its path.
func (c *Cache) CacheDocument(path, fingerprint string, doc ord.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs := c.docByPath[fingerprint]
	if docs == nil {
		docs = make(map[string]ord.Document)
		c.docByPath[fingerprint] = docs
	}
	if _, present := docs[path]; !present {
		c.pathsOf[fingerprint] = append(c.pathsOf[fingerprint], path)
	}
	docs[path] = doc
}

// GetDocumentFromCache returns the stored document or nil.
func (c *Cache) GetDocumentFromCache(path, fingerprint string) ord.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docByPath[fingerprint][path]
}

func (c *Cache) SetCachedOrdConfig(fingerprint string, cfg *ord.ConfigurationPayload) {
	c.mu.Lock()
	c.configOf[fingerprint] = cfg
	c.mu.Unlock()
}

func (c *Cache) GetCachedOrdConfig(fingerprint string) *ord.ConfigurationPayload {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configOf[fingerprint]
}

func (c *Cache) SetCachedFqnMap(fingerprint string, m ord.FqnMap) {
	c.mu.Lock()
	c.fqnOf[fingerprint] = m
	c.mu.Unlock()
}

func (c *Cache) GetCachedFqnMap(fingerprint string) ord.FqnMap {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fqnOf[fingerprint]
}

func (c *Cache) SetCachedDirectoryDocumentPaths(fingerprint string, paths []string) {
	c.mu.Lock()
	c.pathsOf[fingerprint] = paths
	c.mu.Unlock()
}

func (c *Cache) GetCachedDirectoryDocumentPaths(fingerprint string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pathsOf[fingerprint]
}

// PublishConfiguration installs configuration, paths and FQN map for a
// fingerprint in one step, so readers never observe a configuration without
// its companions.
func (c *Cache) PublishConfiguration(fingerprint string, cfg *ord.ConfigurationPayload, paths []string, fqn ord.FqnMap) {
	c.mu.Lock()
	c.pathsOf[fingerprint] = paths
	c.fqnOf[fingerprint] = fqn
	c.configOf[fingerprint] = cfg
	c.mu.Unlock()
}

// InvalidateCacheForDirectory purges every entry keyed by the fingerprint and
// forgets directories that pointed at it.
func (c *Cache) InvalidateCacheForDirectory(fingerprint string) {
	c.mu.Lock()
	c.invalidateLocked(fingerprint)
	c.mu.Unlock()
}

func (c *Cache) invalidateLocked(fingerprint string) {
	delete(c.docByPath, fingerprint)
	delete(c.pathsOf, fingerprint)
	delete(c.configOf, fingerprint)
	delete(c.fqnOf, fingerprint)
	for dir, h := range c.lastHash {
		if h == fingerprint {
			delete(c.lastHash, dir)
		}
	}
}

// ClearCache drops everything.
func (c *Cache) ClearCache() {
	c.mu.Lock()
	c.reset()
	c.mu.Unlock()
}

// Stats summarizes cache occupancy for the status surface.
type Stats struct {
	Fingerprints int `json:"fingerprints"`
	Documents    int `json:"documents"`
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{Fingerprints: len(c.configOf)}
	for _, docs := range c.docByPath {
		s.Documents += len(docs)
	}
	return s
}
