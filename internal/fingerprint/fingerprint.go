// Package fingerprint produces stable content identifiers for working
// directories. Fingerprints key every cache in the server: a changed
// fingerprint means a new content snapshot.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// ForCommit builds the remote-mode fingerprint "<commitSha>:<subpath>".
// The commit SHA alone identifies the tree; the subpath disambiguates two
// deployments serving different roots of the same commit.
func ForCommit(commitSha, subpath string) string {
	if subpath == "" {
		subpath = "."
	}
	return commitSha + ":" + subpath
}

// CommitOf returns the commit portion of a remote-mode fingerprint, or the
// whole fingerprint when it carries no subpath.
func CommitOf(fp string) string {
	if i := strings.IndexByte(fp, ':'); i >= 0 {
		return fp[:i]
	}
	return fp
}

// PrefixOverlap reports whether two fingerprints refer to the same snapshot
// for warming purposes: equal, or sharing the first 7 hex characters of their
// commit portion. The prefix rule tolerates fingerprints computed from short
// and full commit SHAs of the same commit.
func PrefixOverlap(a, b string) bool {
	if a == b {
		return true
	}
	ca, cb := CommitOf(a), CommitOf(b)
	if len(ca) < 7 || len(cb) < 7 {
		return false
	}
	return ca[:7] == cb[:7]
}

// ForDirectory computes the local-mode fingerprint: SHA-256 over the ordered
// sequence of (absolute path, mtime-ms) pairs for every regular file under
// root. Matching mtimes with changed content go undetected; this is a known,
// documented limitation of local mode.
func ForDirectory(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", root, err)
	}

	type entry struct {
		path    string
		mtimeMS int64
	}
	var entries []entry
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			return ierr
		}
		entries = append(entries, entry{path: p, mtimeMS: info.ModTime().UnixMilli()})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", abs, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	h := sha256.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%s:%d\n", e.path, e.mtimeMS)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
