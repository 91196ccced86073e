// Package document serves processed ORD documents, the well-known
// configuration payload and referenced definition files out of the
// fingerprint-keyed cache, loading on demand when the cache is cold.
package document

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/ordserve/internal/cache"
	"git.home.luguber.info/inful/ordserve/internal/fingerprint"
	"git.home.luguber.info/inful/ordserve/internal/ord"
)

// CacheWarmer is the slice of the bulk warmer the service joins instead of
// starting its own overlapping load. *cache.Warmer implements it.
type CacheWarmer interface {
	IsWarming() bool
	CurrentHash() string
	WaitForCompletion(ctx context.Context) error
}

// Service answers all content reads. Safe for concurrent use.
type Service struct {
	source ContentSource
	cache  *cache.Cache
	loader *cache.Loader
	warmer CacheWarmer // nil in local mode

	loads singleflight.Group
}

func NewService(source ContentSource, c *cache.Cache, loader *cache.Loader, warmer CacheWarmer) *Service {
	return &Service{source: source, cache: c, loader: loader, warmer: warmer}
}

// GetProcessedDocument returns the processed document for a request path
// (without the .json extension). Cache misses load just the one file.
func (s *Service) GetProcessedDocument(ctx context.Context, relPath string) (ord.Document, error) {
	clean, err := cleanRelPath(relPath)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(clean, ".json") {
		clean += ".json"
	}

	fp, err := s.currentFingerprint()
	if err != nil {
		return nil, err
	}
	if doc := s.cache.GetDocumentFromCache(clean, fp); doc != nil {
		return doc, nil
	}

	raw, err := os.ReadFile(filepath.Join(s.source.DocumentsDir(), filepath.FromSlash(clean)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: clean}
		}
		return nil, fmt.Errorf("read document %s: %w", clean, err)
	}
	doc, err := ord.ParseDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("parse document %s: %w", clean, err)
	}

	processed := s.loader.Processor.Process(doc, fp)
	s.cache.CacheDocument(clean, fp, processed)
	return processed, nil
}

// GetOrdConfiguration returns the configuration payload, optionally filtered
// to a single perspective.
func (s *Service) GetOrdConfiguration(ctx context.Context, perspective string) (*ord.ConfigurationPayload, error) {
	fp, err := s.currentFingerprint()
	if err != nil {
		return nil, err
	}
	if err := s.ensureDataLoaded(ctx, fp); err != nil {
		return nil, err
	}
	cfg := s.cache.GetCachedOrdConfig(fp)
	if cfg == nil {
		return nil, fmt.Errorf("configuration missing after load for %s", fp)
	}
	if perspective == "" {
		return cfg, nil
	}
	filtered := ord.NewConfigurationPayload(cfg.BaseURL,
		ord.FilterByPerspective(cfg.OpenResourceDiscovery.Documents, perspective))
	return &filtered, nil
}

// GetFqnMap returns the ordId to definition-file index for the current snapshot.
func (s *Service) GetFqnMap(ctx context.Context) (ord.FqnMap, error) {
	fp, err := s.currentFingerprint()
	if err != nil {
		return nil, err
	}
	if err := s.ensureDataLoaded(ctx, fp); err != nil {
		return nil, err
	}
	m := s.cache.GetCachedFqnMap(fp)
	if m == nil {
		m = ord.FqnMap{}
	}
	return m, nil
}

// GetFileContent returns the raw bytes of a referenced definition file.
func (s *Service) GetFileContent(relPath string) ([]byte, error) {
	clean, err := cleanRelPath(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.source.DocumentsDir(), filepath.FromSlash(clean)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: clean}
		}
		return nil, fmt.Errorf("read file %s: %w", clean, err)
	}
	return data, nil
}

// currentFingerprint resolves the snapshot fingerprint and invalidates stale
// cache entries when the directory content has moved on.
func (s *Service) currentFingerprint() (string, error) {
	fp, err := s.source.Fingerprint()
	if err != nil {
		return "", err
	}
	s.cache.HasDirectoryHashChanged(s.source.DocumentsDir(), fp)
	return fp, nil
}

// ensureDataLoaded makes the configuration for fp available: join an
// overlapping in-flight warm, otherwise run an inline load deduplicated per
// fingerprint.
func (s *Service) ensureDataLoaded(ctx context.Context, fp string) error {
	for {
		if s.cache.GetCachedOrdConfig(fp) != nil {
			return nil
		}
		if s.warmer == nil || !s.warmer.IsWarming() {
			break
		}
		if !fingerprint.PrefixOverlap(s.warmer.CurrentHash(), fp) {
			break
		}
		if err := s.warmer.WaitForCompletion(ctx); err != nil && ctx.Err() != nil {
			return err
		}
		// Warming finished (or failed); re-check and fall back to an inline
		// load if the entry still is not there.
		if s.cache.GetCachedOrdConfig(fp) != nil {
			return nil
		}
		break
	}

	_, err, _ := s.loads.Do(fp, func() (any, error) {
		if s.cache.GetCachedOrdConfig(fp) != nil {
			return nil, nil
		}
		return nil, s.loader.Load(ctx, s.source.DocumentsDir(), fp)
	})
	return err
}

// cleanRelPath normalizes a request path to a safe slash-separated relative
// path. Unicode is normalized to NFC so differently-composed spellings of the
// same name resolve to one file.
func cleanRelPath(relPath string) (string, error) {
	p := norm.NFC.String(relPath)
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" || p == "." || strings.HasPrefix(p, "..") {
		return "", &NotFoundError{Path: relPath}
	}
	// Dot-prefixed names (.git, .metadata.json) are snapshot internals, never
	// served content.
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return "", &NotFoundError{Path: relPath}
		}
	}
	return p, nil
}
