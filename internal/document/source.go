package document

import (
	"errors"

	"git.home.luguber.info/inful/ordserve/internal/contentfs"
	"git.home.luguber.info/inful/ordserve/internal/fingerprint"
)

// ContentSource yields the directory holding ORD documents and the fingerprint
// identifying the snapshot it currently contains.
type ContentSource interface {
	DocumentsDir() string
	Fingerprint() (string, error)
}

// RemoteSource serves from the managed current/ directory. The fingerprint is
// derived from the fetched commit recorded in the metadata sidecar.
type RemoteSource struct {
	Manager *contentfs.Manager
	Subpath string
}

func (s *RemoteSource) DocumentsDir() string { return s.Manager.CurrentDir() }

func (s *RemoteSource) Fingerprint() (string, error) {
	meta, err := s.Manager.GetMetadata()
	if err != nil {
		return "", &ConfigError{Err: err}
	}
	if meta == nil || meta.CommitHash == "" {
		return "", &ConfigError{Err: errors.New("no content has been fetched yet")}
	}
	return fingerprint.ForCommit(meta.CommitHash, s.Subpath), nil
}

// LocalSource serves a directory on disk directly; the fingerprint is a hash
// over file paths and modification times, so edits are picked up between
// requests.
type LocalSource struct {
	Dir string
}

func (s *LocalSource) DocumentsDir() string { return s.Dir }

func (s *LocalSource) Fingerprint() (string, error) {
	fp, err := fingerprint.ForDirectory(s.Dir)
	if err != nil {
		return "", &ConfigError{Err: err}
	}
	return fp, nil
}
