package cache

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"git.home.luguber.info/inful/ordserve/internal/logfields"
	"git.home.luguber.info/inful/ordserve/internal/ord"
)

// yieldEvery is the number of documents processed between scheduler yield and
// cancellation checks during a bulk load.
const yieldEvery = 100

// Loader reads every ORD document below a directory, processes it and
// publishes the resulting cache entries for one fingerprint.
type Loader struct {
	Cache     *Cache
	Processor *ord.Processor

	// loadHook, when set, runs at every yield point. Tests use it to hold a
	// load at a deterministic spot.
	loadHook func()
}

// Load walks docsDir, caches each processed document, and finally publishes
// the configuration payload, path index and FQN map together. Documents that
// fail to parse are skipped with a warning. Returns ctx.Err() when canceled
// mid-load; nothing is published in that case.
func (l *Loader) Load(ctx context.Context, docsDir, fingerprint string) error {
	paths, err := ListDocumentPaths(docsDir)
	if err != nil {
		return fmt.Errorf("listing documents in %s: %w", docsDir, err)
	}

	descriptors := make([]ord.DocumentDescriptor, 0, len(paths))
	cachedPaths := make([]string, 0, len(paths))
	fqn := make(ord.FqnMap)

	for i, relPath := range paths {
		if (i+1)%yieldEvery == 0 {
			if l.loadHook != nil {
				l.loadHook()
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			runtime.Gosched()
		}

		raw, err := os.ReadFile(filepath.Join(docsDir, filepath.FromSlash(relPath)))
		if err != nil {
			slog.Warn("Skipping unreadable document", logfields.Path(relPath), logfields.Error(err))
			continue
		}
		doc, err := ord.ParseDocument(raw)
		if err != nil {
			slog.Warn("Skipping invalid ORD document", logfields.Path(relPath), logfields.Error(err))
			continue
		}

		processed := l.Processor.Process(doc, fingerprint)
		l.Cache.CacheDocument(relPath, fingerprint, processed)
		cachedPaths = append(cachedPaths, relPath)
		descriptors = append(descriptors, ord.DescriptorForPath(relPath, l.Processor.Strategies, processed.Perspective()))
		collectFqnEntries(fqn, processed)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	ord.SortDescriptors(descriptors)
	cfg := ord.NewConfigurationPayload(l.Processor.BaseURL, descriptors)
	l.Cache.PublishConfiguration(fingerprint, &cfg, cachedPaths, fqn)

	slog.Info("Document cache loaded",
		logfields.Fingerprint(fingerprint),
		slog.Int("documents", len(cachedPaths)))
	return nil
}

// ListDocumentPaths returns the slash-separated relative paths of all .json
// documents below dir, sorted. Dot-prefixed files and directories (.git, the
// metadata sidecar) are skipped.
func ListDocumentPaths(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && p != dir {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// collectFqnEntries records, per resource ordId, the definition files serving it.
func collectFqnEntries(fqn ord.FqnMap, doc ord.Document) {
	doc.Resources(func(resource map[string]any) {
		id := ord.OrdID(resource)
		if id == "" {
			return
		}
		for _, def := range ord.ResourceDefinitions(resource) {
			u, ok := def["url"].(string)
			if !ok || u == "" {
				continue
			}
			fqn[id] = append(fqn[id], ord.FqnLocation{
				FileName: path.Base(u),
				FilePath: strings.TrimPrefix(u, ord.ServerPathPrefix),
			})
		}
	})
}
