package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Typed fetch errors enabling structured classification without string parsing
// upstream. Raw go-git and OS errors are wrapped exactly once at this boundary;
// already-typed errors pass through unchanged.

type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s network error: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

type RepositoryNotFoundError struct {
	Op, Repository string
	Err            error
}

func (e *RepositoryNotFoundError) Error() string {
	return fmt.Sprintf("%s repository %s not found: %v", e.Op, e.Repository, e.Err)
}
func (e *RepositoryNotFoundError) Unwrap() error { return e.Err }

type BranchNotFoundError struct {
	Op, Branch string
	Err        error
}

func (e *BranchNotFoundError) Error() string {
	return fmt.Sprintf("%s branch %q not found: %v", e.Op, e.Branch, e.Err)
}
func (e *BranchNotFoundError) Unwrap() error { return e.Err }

type DiskSpaceError struct {
	Op  string
	Err error
}

func (e *DiskSpaceError) Error() string { return fmt.Sprintf("%s out of disk space: %v", e.Op, e.Err) }
func (e *DiskSpaceError) Unwrap() error { return e.Err }

type MemoryError struct {
	Op  string
	Err error
}

func (e *MemoryError) Error() string { return fmt.Sprintf("%s out of memory: %v", e.Op, e.Err) }
func (e *MemoryError) Unwrap() error { return e.Err }

type AbortedError struct {
	Op  string
	Err error
}

func (e *AbortedError) Error() string { return fmt.Sprintf("%s aborted: %v", e.Op, e.Err) }
func (e *AbortedError) Unwrap() error { return e.Err }

// classified reports whether err already carries one of the typed wrappers.
func classified(err error) bool {
	var (
		network  *NetworkError
		repo     *RepositoryNotFoundError
		branch   *BranchNotFoundError
		disk     *DiskSpaceError
		memory   *MemoryError
		aborted  *AbortedError
	)
	return errors.As(err, &network) || errors.As(err, &repo) || errors.As(err, &branch) ||
		errors.As(err, &disk) || errors.As(err, &memory) || errors.As(err, &aborted)
}

// classify wraps a raw error into its typed variant. Errors that match no
// known class propagate verbatim.
func classify(err error, op, repository, branch string) error {
	if err == nil || classified(err) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AbortedError{Op: op, Err: err}
	}
	if errors.Is(err, syscall.ENOSPC) {
		return &DiskSpaceError{Op: op, Err: err}
	}
	if errors.Is(err, syscall.ENOMEM) {
		return &MemoryError{Op: op, Err: err}
	}
	if errors.Is(err, transport.ErrRepositoryNotFound) {
		return &RepositoryNotFoundError{Op: op, Repository: repository, Err: err}
	}
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return &BranchNotFoundError{Op: op, Branch: branch, Err: err}
	}

	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "404") || strings.Contains(l, "repository not found"):
		return &RepositoryNotFoundError{Op: op, Repository: repository, Err: err}
	case (strings.Contains(l, "could not find") || strings.Contains(l, "couldn't find")) &&
		(strings.Contains(l, "branch") || strings.Contains(l, "remote ref")):
		return &BranchNotFoundError{Op: op, Branch: branch, Err: err}
	case strings.Contains(l, "no such host") || strings.Contains(l, "enotfound") ||
		strings.Contains(l, "network is unreachable") || strings.Contains(l, "connection refused") ||
		strings.Contains(l, "i/o timeout"):
		return &NetworkError{Op: op, Err: err}
	case strings.Contains(l, "no space left on device"):
		return &DiskSpaceError{Op: op, Err: err}
	case strings.Contains(l, "cannot allocate memory"):
		return &MemoryError{Op: op, Err: err}
	}
	return err
}
