// Package status aggregates the server's observable state for the JSON status
// endpoint, the HTML dashboard and the WebSocket stream.
package status

import (
	"time"

	"git.home.luguber.info/inful/ordserve/internal/cache"
	"git.home.luguber.info/inful/ordserve/internal/contentfs"
	"git.home.luguber.info/inful/ordserve/internal/state"
)

// ContentInfo describes the served content snapshot.
type ContentInfo struct {
	CommitHash string    `json:"commitHash"`
	Branch     string    `json:"branch,omitempty"`
	Repository string    `json:"repository,omitempty"`
	FetchTime  time.Time `json:"fetchTime"`
	TotalFiles int       `json:"totalFiles"`
}

// Snapshot is the full status document.
type Snapshot struct {
	Mode      string         `json:"mode"` // "local" or "github"
	StartedAt time.Time      `json:"startedAt"`
	Now       time.Time      `json:"now"`
	State     state.Snapshot `json:"state"`
	Content   *ContentInfo   `json:"content,omitempty"`
	Cache     cache.Stats    `json:"cache"`
}

// Provider assembles snapshots on demand. Content is nil in local mode.
type Provider struct {
	Mode      string
	StartedAt time.Time
	State     *state.Manager
	Content   *contentfs.Manager
	Cache     *cache.Cache
}

func (p *Provider) Snapshot() Snapshot {
	s := Snapshot{
		Mode:      p.Mode,
		StartedAt: p.StartedAt,
		Now:       time.Now().UTC(),
	}
	if p.State != nil {
		s.State = p.State.Snapshot()
	}
	if p.Cache != nil {
		s.Cache = p.Cache.Stats()
	}
	if p.Content != nil {
		if meta, err := p.Content.GetMetadata(); err == nil && meta != nil {
			s.Content = &ContentInfo{
				CommitHash: meta.CommitHash,
				Branch:     meta.Branch,
				Repository: meta.Repository,
				FetchTime:  meta.FetchTime,
				TotalFiles: meta.TotalFiles,
			}
		}
	}
	return s
}
