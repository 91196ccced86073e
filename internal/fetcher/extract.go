package fetcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// extractSubpath makes target/<subpath> the working root of target:
// the subtree is copied to stagingDir, everything in target except .git/ is
// removed, and staging's children are moved back next to .git/. On any
// failure staging is deleted and the error surfaces; target is then
// observably broken and the update pipeline discards it.
func extractSubpath(target, subpath, stagingDir string) (err error) {
	defer func() {
		if rerr := os.RemoveAll(stagingDir); rerr != nil && err == nil {
			err = fmt.Errorf("remove staging: %w", rerr)
		}
	}()

	src := filepath.Join(target, subpath)
	info, serr := os.Stat(src)
	if serr != nil {
		return fmt.Errorf("subpath %s: %w", subpath, serr)
	}
	if !info.IsDir() {
		return fmt.Errorf("subpath %s is not a directory", subpath)
	}

	if err := os.RemoveAll(stagingDir); err != nil {
		return fmt.Errorf("clear staging: %w", err)
	}
	if err := moveTree(src, stagingDir); err != nil {
		return fmt.Errorf("stage subpath: %w", err)
	}

	entries, rerr := os.ReadDir(target)
	if rerr != nil {
		return fmt.Errorf("read target: %w", rerr)
	}
	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(target, entry.Name())); err != nil {
			return fmt.Errorf("clear %s: %w", entry.Name(), err)
		}
	}

	staged, rerr := os.ReadDir(stagingDir)
	if rerr != nil {
		return fmt.Errorf("read staging: %w", rerr)
	}
	for _, entry := range staged {
		from := filepath.Join(stagingDir, entry.Name())
		to := filepath.Join(target, entry.Name())
		if err := os.Rename(from, to); err != nil {
			return fmt.Errorf("move %s into target: %w", entry.Name(), err)
		}
	}
	return nil
}

// moveTree renames src to dst, falling back to a copy when rename crosses
// filesystems.
func moveTree(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyDir(src, dst); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(p) // #nosec G304 - paths come from the managed working tree
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}
