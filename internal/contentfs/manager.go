// Package contentfs manages the three sibling content directories under the
// data root: current/ (served), temp/ (in-progress fetches) and staging/
// (subpath extraction scratch). Only current/ is ever read by request-serving
// code; the others belong to the update pipeline.
package contentfs

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/ordserve/internal/logfields"
)

const (
	currentDirName = "current"
	tempDirName    = "temp"
	stagingDirName = "staging"
	backupDirName  = "backup"
)

// Manager owns the directory layout under a single data root.
type Manager struct {
	root string
}

// NewManager creates the data root if needed and removes recoverable garbage
// (leftover temp/, staging/ and backup/ from an interrupted earlier run).
func NewManager(root string) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve data root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create data root %s: %w", abs, err)
	}
	m := &Manager{root: abs}
	for _, leftover := range []string{m.TempDir(), m.StagingDir(), m.backupDir()} {
		if _, serr := os.Stat(leftover); serr == nil {
			slog.Warn("Removing leftover directory from interrupted run", logfields.Path(leftover))
			if rerr := os.RemoveAll(leftover); rerr != nil {
				return nil, fmt.Errorf("remove leftover %s: %w", leftover, rerr)
			}
		}
	}
	return m, nil
}

func (m *Manager) Root() string       { return m.root }
func (m *Manager) CurrentDir() string { return filepath.Join(m.root, currentDirName) }
func (m *Manager) TempDir() string    { return filepath.Join(m.root, tempDirName) }
func (m *Manager) StagingDir() string { return filepath.Join(m.root, stagingDirName) }
func (m *Manager) backupDir() string  { return filepath.Join(m.root, backupDirName) }

// HasCurrent reports whether a served snapshot exists.
func (m *Manager) HasCurrent() bool {
	info, err := os.Stat(m.CurrentDir())
	return err == nil && info.IsDir()
}

// PrepareTempDirectory ensures temp/ exists and is empty.
func (m *Manager) PrepareTempDirectory() error {
	if err := os.RemoveAll(m.TempDir()); err != nil {
		return fmt.Errorf("clear temp: %w", err)
	}
	if err := os.MkdirAll(m.TempDir(), 0o755); err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	return nil
}

// PrepareTempDirectoryWithGit clears temp/ and, when current/.git exists,
// copies it into temp/ so the fetcher can pull instead of a full clone.
func (m *Manager) PrepareTempDirectoryWithGit() error {
	if err := m.PrepareTempDirectory(); err != nil {
		return err
	}
	srcGit := filepath.Join(m.CurrentDir(), ".git")
	info, err := os.Stat(srcGit)
	if err != nil || !info.IsDir() {
		return nil
	}
	if err := copyTree(srcGit, filepath.Join(m.TempDir(), ".git")); err != nil {
		// A broken .git copy only costs a full clone; do not fail the update.
		slog.Warn("Failed to carry .git into temp, fetch will clone", logfields.Error(err))
		return m.PrepareTempDirectory()
	}
	return nil
}

// SwapDirectories atomically replaces current/ with temp/ via rename:
// current -> backup, temp -> current, then the backup is deleted. A failure
// between the renames restores the previous current/.
func (m *Manager) SwapDirectories() error {
	backup := m.backupDir()
	if err := os.RemoveAll(backup); err != nil {
		return fmt.Errorf("clear backup: %w", err)
	}

	hadCurrent := m.HasCurrent()
	if hadCurrent {
		if err := os.Rename(m.CurrentDir(), backup); err != nil {
			return fmt.Errorf("move current aside: %w", err)
		}
	}
	if err := os.Rename(m.TempDir(), m.CurrentDir()); err != nil {
		if hadCurrent {
			if rerr := os.Rename(backup, m.CurrentDir()); rerr != nil {
				return fmt.Errorf("promote temp failed (%v) and restore failed: %w", err, rerr)
			}
		}
		return fmt.Errorf("promote temp: %w", err)
	}
	if err := os.RemoveAll(backup); err != nil {
		slog.Warn("Failed to remove backup after swap", logfields.Error(err))
	}
	return nil
}

// CleanupTempDirectory removes temp/ and any leftover staging/.
func (m *Manager) CleanupTempDirectory() error {
	if err := os.RemoveAll(m.TempDir()); err != nil {
		return fmt.Errorf("remove temp: %w", err)
	}
	if err := os.RemoveAll(m.StagingDir()); err != nil {
		return fmt.Errorf("remove staging: %w", err)
	}
	return nil
}

// CountFiles walks a directory counting regular files, skipping .git/ and the
// metadata sidecar.
func CountFiles(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == MetadataFileName {
			return nil
		}
		if d.Type().IsRegular() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count files in %s: %w", root, err)
	}
	return count, nil
}

// copyTree copies a directory recursively, preserving file modes.
func copyTree(src, dst string) error {
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
		return copyFile(p, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - paths are within the managed data root
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()) // #nosec G304
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
