// Package scheduler serializes content updates: a debounce loop collapses
// bursts of push notifications into single runs, and a runner executes the
// fetch-swap-warm pipeline one update at a time.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/ordserve/internal/cache"
	"git.home.luguber.info/inful/ordserve/internal/contentfs"
	"git.home.luguber.info/inful/ordserve/internal/events"
	"git.home.luguber.info/inful/ordserve/internal/fetcher"
	"git.home.luguber.info/inful/ordserve/internal/fingerprint"
	"git.home.luguber.info/inful/ordserve/internal/history"
	"git.home.luguber.info/inful/ordserve/internal/logfields"
	"git.home.luguber.info/inful/ordserve/internal/metrics"
	"git.home.luguber.info/inful/ordserve/internal/state"
)

// ContentFetcher is the slice of the git fetcher the pipeline needs.
type ContentFetcher interface {
	Fetch(ctx context.Context, target, stagingDir string) (*contentfs.Metadata, error)
	GetLatestCommitSha(ctx context.Context) (string, error)
}

// Runner executes one content update end to end. Runs are serialized by an
// internal mutex; callers may invoke RunOnce from any goroutine.
type Runner struct {
	Fetcher ContentFetcher
	Content *contentfs.Manager
	Cache   *cache.Cache
	Warmer  *cache.Warmer
	State   *state.Manager
	Bus     *events.Bus
	History *history.Store
	Metrics metrics.Recorder
	Subpath string

	mu      sync.Mutex
	running atomic.Bool
}

// IsRunning reports whether an update is in flight.
func (r *Runner) IsRunning() bool { return r.running.Load() }

// RunOnce performs a single update. Exactly one of UpdateCompleted or
// UpdateFailed is emitted per invocation.
func (r *Runner) RunOnce(ctx context.Context, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running.Store(true)
	defer r.running.Store(false)

	id := uuid.NewString()
	start := time.Now().UTC()
	r.State.StartUpdate(source)
	r.publish(ctx, events.UpdateStarted{ID: id, Source: source, StartedAt: start})
	slog.Info("Content update started", logfields.UpdateID(id), logfields.Source(source))

	commit, unchanged, err := r.update(ctx, id)
	duration := time.Since(start)
	r.Metrics.ObserveUpdateDuration(source, duration)

	rec := history.Record{
		UpdateID:   id,
		Source:     source,
		Commit:     commit,
		StartedAt:  start,
		FinishedAt: start.Add(duration),
		DurationMS: duration.Milliseconds(),
	}

	if err != nil {
		r.State.FailUpdate(err, commit)
		r.publish(ctx, events.UpdateFailed{ID: id, Commit: commit, Error: err.Error(), FailedAt: time.Now().UTC()})
		r.Metrics.IncUpdateOutcome(history.OutcomeFailed)
		rec.Outcome = history.OutcomeFailed
		rec.Error = err.Error()
		r.append(ctx, rec)
		slog.Error("Content update failed",
			logfields.UpdateID(id), logfields.Error(err), logfields.DurationMS(float64(duration.Milliseconds())))
		return err
	}

	fp := fingerprint.ForCommit(commit, r.Subpath)
	r.State.CompleteUpdate(commit)
	r.publish(ctx, events.UpdateCompleted{
		ID: id, Commit: commit, Fingerprint: fp,
		Unchanged: unchanged, Duration: duration, CompletedAt: time.Now().UTC(),
	})

	rec.Fingerprint = fp
	rec.Outcome = history.OutcomeSucceeded
	if unchanged {
		rec.Outcome = history.OutcomeUnchanged
	}
	r.Metrics.IncUpdateOutcome(rec.Outcome)
	r.Metrics.SetCachedDocuments(r.Cache.Stats().Documents)
	r.append(ctx, rec)

	slog.Info("Content update completed",
		logfields.UpdateID(id), logfields.Commit(commit),
		slog.Bool("unchanged", unchanged), logfields.DurationMS(float64(duration.Milliseconds())))
	return nil
}

// update drives the pipeline and reports the served commit and whether the
// remote head already matched it.
func (r *Runner) update(ctx context.Context, id string) (string, bool, error) {
	head, err := r.Fetcher.GetLatestCommitSha(ctx)
	if err != nil {
		return "", false, err
	}
	r.publish(ctx, events.UpdateProgress{ID: id, Message: "resolved remote head " + head})

	meta, metaErr := r.Content.GetMetadata()
	if metaErr != nil {
		slog.Warn("Unreadable content metadata, treating as absent", logfields.Error(metaErr))
		meta = nil
	}

	// A sidecar that disagrees with .git/HEAD means the snapshot was damaged;
	// force a full re-clone instead of trusting the incremental path.
	corrupt := false
	if meta != nil {
		if dirHead, herr := fetcher.HeadCommit(r.Content.CurrentDir()); herr == nil && dirHead != meta.CommitHash {
			slog.Warn("Content metadata does not match git HEAD, forcing re-clone",
				logfields.Commit(meta.CommitHash), slog.String("git_head", dirHead))
			corrupt = true
		}
	}

	if meta != nil && !corrupt && meta.CommitHash == head {
		// Nothing new upstream, but in-memory caches may still be cold after
		// a restart.
		if err := r.warm(ctx, head); err != nil {
			return head, true, err
		}
		return head, true, nil
	}

	prepare := r.Content.PrepareTempDirectoryWithGit
	if corrupt {
		prepare = r.Content.PrepareTempDirectory
	}
	if err := prepare(); err != nil {
		return head, false, err
	}

	newMeta, err := r.Fetcher.Fetch(ctx, r.Content.TempDir(), r.Content.StagingDir())
	if err != nil {
		_ = r.Content.CleanupTempDirectory()
		return head, false, err
	}
	r.publish(ctx, events.UpdateProgress{ID: id, Message: "fetched " + newMeta.CommitHash})

	if err := r.Content.SwapDirectories(); err != nil {
		_ = r.Content.CleanupTempDirectory()
		return head, false, err
	}
	if err := r.Content.SaveMetadata(newMeta); err != nil {
		return newMeta.CommitHash, false, err
	}

	if err := r.warm(ctx, newMeta.CommitHash); err != nil {
		return newMeta.CommitHash, false, err
	}
	return newMeta.CommitHash, false, nil
}

func (r *Runner) warm(ctx context.Context, commit string) error {
	r.State.StartCacheWarming()
	if r.Warmer == nil {
		return nil
	}
	fp := fingerprint.ForCommit(commit, r.Subpath)
	r.Cache.HasDirectoryHashChanged(r.Content.CurrentDir(), fp)

	start := time.Now()
	if err := r.Warmer.Warm(ctx, r.Content.CurrentDir(), fp); err != nil {
		return err
	}
	r.Metrics.ObserveWarmDuration(time.Since(start))
	return nil
}

func (r *Runner) publish(ctx context.Context, evt any) {
	if r.Bus == nil {
		return
	}
	_ = r.Bus.Publish(ctx, evt)
}

func (r *Runner) append(ctx context.Context, rec history.Record) {
	if r.History == nil {
		return
	}
	if err := r.History.Append(ctx, rec); err != nil {
		slog.Warn("Failed to record update history", logfields.UpdateID(rec.UpdateID), logfields.Error(err))
	}
}
