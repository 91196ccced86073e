// Package fetcher materializes a branch of a remote GitHub(-Enterprise)
// repository into a target directory and answers remote head queries. Only one
// fetch runs per process at a time; the scheduler enforces that.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/ordserve/internal/contentfs"
	"git.home.luguber.info/inful/ordserve/internal/logfields"
	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Coordinates identifies the remote repository and branch to mirror.
type Coordinates struct {
	APIURL string // e.g. https://api.github.com or https://ghe.example.com/api/v3
	Owner  string
	Repo   string
	Branch string
	Token  string // optional; used as basic-auth username with x-oauth-basic
}

// Repository returns "<owner>/<repo>".
func (c Coordinates) Repository() string { return c.Owner + "/" + c.Repo }

// CloneURL derives the HTTPS clone URL from the API URL. github.com's API
// lives on its own host; GitHub Enterprise serves the API under /api/v3 of the
// main host.
func (c Coordinates) CloneURL() string {
	base := strings.TrimSuffix(strings.TrimRight(c.APIURL, "/"), "/api/v3")
	if strings.Contains(base, "api.github.com") {
		base = "https://github.com"
	}
	return fmt.Sprintf("%s/%s/%s.git", base, c.Owner, c.Repo)
}

func (c Coordinates) auth() *http.BasicAuth {
	if c.Token == "" {
		return nil
	}
	return &http.BasicAuth{Username: c.Token, Password: "x-oauth-basic"}
}

// Fetcher clones or updates the working tree for one repository.
type Fetcher struct {
	coords   Coordinates
	subpath  string // working root inside the repository, "." for the whole tree
	progress io.Writer
}

// New creates a Fetcher. subpath selects the working root inside the
// repository; "." or "" keeps the whole tree. progress may be nil.
func New(coords Coordinates, subpath string, progress io.Writer) *Fetcher {
	if subpath == "" {
		subpath = "."
	}
	return &Fetcher{coords: coords, subpath: subpath, progress: progress}
}

// Fetch materializes the branch into target: clone when target has no .git/,
// otherwise fetch + hard reset to origin/<branch>. When a subpath is
// configured it is extracted through stagingDir so that target's root holds
// the working root next to .git/. Returns snapshot metadata on success.
//
// Cancellation is honored at every network boundary; on cancellation the
// target is left observably broken and the caller cleans it up.
func (f *Fetcher) Fetch(ctx context.Context, target, stagingDir string) (*contentfs.Metadata, error) {
	repository, err := f.cloneOrUpdate(ctx, target)
	if err != nil {
		return nil, err
	}

	if f.subpath != "." {
		if err := extractSubpath(target, f.subpath, stagingDir); err != nil {
			return nil, classify(err, "extract", f.coords.Repository(), f.coords.Branch)
		}
	}

	head, err := repository.Head()
	if err != nil {
		return nil, classify(err, "resolve head", f.coords.Repository(), f.coords.Branch)
	}
	totalFiles, err := contentfs.CountFiles(target)
	if err != nil {
		return nil, classify(err, "count files", f.coords.Repository(), f.coords.Branch)
	}

	meta := &contentfs.Metadata{
		CommitHash: head.Hash().String(),
		FetchTime:  time.Now().UTC(),
		Branch:     f.coords.Branch,
		Repository: f.coords.Repository(),
		TotalFiles: totalFiles,
	}
	slog.Info("Content fetched",
		logfields.Repository(meta.Repository),
		logfields.Branch(meta.Branch),
		logfields.Commit(meta.CommitHash),
		slog.Int("total_files", totalFiles))
	return meta, nil
}

func (f *Fetcher) cloneOrUpdate(ctx context.Context, target string) (*git.Repository, error) {
	if _, err := os.Stat(filepath.Join(target, ".git")); err != nil {
		return f.clone(ctx, target)
	}
	repository, err := f.update(ctx, target)
	if err != nil {
		if classified(err) {
			return nil, err
		}
		// A broken working copy is recoverable by a fresh clone.
		slog.Warn("Update failed, falling back to full clone", logfields.Error(err))
		if rerr := os.RemoveAll(target); rerr != nil {
			return nil, fmt.Errorf("clear broken working copy: %w", rerr)
		}
		return f.clone(ctx, target)
	}
	return repository, nil
}

func (f *Fetcher) clone(ctx context.Context, target string) (*git.Repository, error) {
	slog.Debug("Cloning repository",
		logfields.Repository(f.coords.Repository()),
		logfields.Branch(f.coords.Branch),
		logfields.Path(target))
	opts := &git.CloneOptions{
		URL:           f.coords.CloneURL(),
		ReferenceName: plumbing.NewBranchReferenceName(f.coords.Branch),
		SingleBranch:  true,
		Progress:      f.progress,
	}
	if auth := f.coords.auth(); auth != nil {
		opts.Auth = auth
	}
	repository, err := git.PlainCloneContext(ctx, target, false, opts)
	if err != nil {
		return nil, classify(err, "clone", f.coords.Repository(), f.coords.Branch)
	}
	return repository, nil
}

// update fetches origin and hard-resets the worktree onto origin/<branch>.
// The hard reset also recovers from a dirty or diverged index left behind by
// an interrupted earlier run.
func (f *Fetcher) update(ctx context.Context, target string) (*git.Repository, error) {
	repository, err := git.PlainOpen(target)
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	fetchOpts := &git.FetchOptions{
		RemoteName: "origin",
		Tags:       git.NoTags,
		RefSpecs:   []ggitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
		Progress:   f.progress,
	}
	if auth := f.coords.auth(); auth != nil {
		fetchOpts.Auth = auth
	}
	if err := repository.FetchContext(ctx, fetchOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, classify(err, "fetch", f.coords.Repository(), f.coords.Branch)
	}

	remoteRef, err := repository.Reference(plumbing.NewRemoteReferenceName("origin", f.coords.Branch), true)
	if err != nil {
		return nil, &BranchNotFoundError{Op: "update", Branch: f.coords.Branch, Err: err}
	}
	wt, err := repository.Worktree()
	if err != nil {
		return nil, fmt.Errorf("worktree: %w", err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return nil, fmt.Errorf("hard reset to origin/%s: %w", f.coords.Branch, err)
	}
	return repository, nil
}

// GetLatestCommitSha inspects the remote head of the branch without touching
// the filesystem.
func (f *Fetcher) GetLatestCommitSha(ctx context.Context) (string, error) {
	remote := git.NewRemote(memory.NewStorage(), &ggitcfg.RemoteConfig{
		Name: "origin",
		URLs: []string{f.coords.CloneURL()},
	})
	listOpts := &git.ListOptions{}
	if auth := f.coords.auth(); auth != nil {
		listOpts.Auth = auth
	}
	refs, err := remote.ListContext(ctx, listOpts)
	if err != nil {
		return "", classify(err, "list remote", f.coords.Repository(), f.coords.Branch)
	}
	want := plumbing.NewBranchReferenceName(f.coords.Branch)
	for _, ref := range refs {
		if ref.Name() == want {
			return ref.Hash().String(), nil
		}
	}
	return "", &BranchNotFoundError{Op: "list remote", Branch: f.coords.Branch,
		Err: fmt.Errorf("branch not present on remote")}
}

// HeadCommit resolves the HEAD commit of a local working copy.
func HeadCommit(dir string) (string, error) {
	repository, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", dir, err)
	}
	head, err := repository.Head()
	if err != nil {
		return "", fmt.Errorf("resolve head: %w", err)
	}
	return head.Hash().String(), nil
}
