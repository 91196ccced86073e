// Package state tracks the content-update lifecycle: idle -> updating ->
// warming -> idle, with failed as the terminal phase of a broken run. The
// readiness gate and the status observer both hang off this state.
package state

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/ordserve/internal/events"
	"git.home.luguber.info/inful/ordserve/internal/logfields"
)

// Phase is one of the update lifecycle states.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseUpdating Phase = "updating"
	PhaseWarming  Phase = "warming"
	PhaseFailed   Phase = "failed"
)

// ErrWaitTimeout is returned by WaitForReady when the bound elapses.
var ErrWaitTimeout = errors.New("timed out waiting for content to become ready")

// Snapshot is a copyable view of the update state.
type Snapshot struct {
	Phase               Phase      `json:"phase"`
	LastUpdateTime      time.Time  `json:"lastUpdateTime"`
	ScheduledUpdateTime *time.Time `json:"scheduledUpdateTime,omitempty"`
	LastUpdateFailed    bool       `json:"lastUpdateFailed"`
	FailedUpdates       int        `json:"failedUpdates"`
	CurrentVersion      string     `json:"currentVersion,omitempty"`
	FailedCommitHash    string     `json:"failedCommitHash,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
}

// Manager owns the state and broadcasts every transition.
type Manager struct {
	mu    sync.Mutex
	snap  Snapshot
	ready chan struct{} // closed while phase is idle or failed
	bus   *events.Bus
}

// NewManager starts in idle (ready). bus may be nil in tests.
func NewManager(bus *events.Bus) *Manager {
	ready := make(chan struct{})
	close(ready)
	return &Manager{
		snap:  Snapshot{Phase: PhaseIdle},
		ready: ready,
		bus:   bus,
	}
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Phase returns the current phase.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Phase
}

// StartUpdate transitions idle|failed -> updating.
func (m *Manager) StartUpdate(source string) {
	m.transition(PhaseUpdating, func(s *Snapshot) {
		s.ScheduledUpdateTime = nil
	})
	slog.Debug("Update started", logfields.Source(source))
}

// StartCacheWarming transitions updating -> warming.
func (m *Manager) StartCacheWarming() {
	m.transition(PhaseWarming, nil)
}

// CompleteUpdate transitions updating|warming -> idle and clears failure marks.
func (m *Manager) CompleteUpdate(version string) {
	m.transition(PhaseIdle, func(s *Snapshot) {
		s.LastUpdateTime = time.Now().UTC()
		s.LastUpdateFailed = false
		s.LastError = ""
		s.FailedCommitHash = ""
		if version != "" {
			s.CurrentVersion = version
		}
	})
}

// FailUpdate transitions updating|warming -> failed. failedCommit is the
// would-be commit when the trigger announced one.
func (m *Manager) FailUpdate(reason error, failedCommit string) {
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	m.transition(PhaseFailed, func(s *Snapshot) {
		s.LastUpdateTime = time.Now().UTC()
		s.LastUpdateFailed = true
		s.FailedUpdates++
		s.LastError = msg
		s.FailedCommitHash = failedCommit
	})
	slog.Warn("Update failed", logfields.Error(reason), logfields.Commit(failedCommit))
}

// SetScheduled records (or clears, with nil) the next planned update time.
func (m *Manager) SetScheduled(at *time.Time) {
	m.mu.Lock()
	m.snap.ScheduledUpdateTime = at
	m.mu.Unlock()
}

// SetCurrentVersion records the served commit without a phase transition
// (used at startup when existing content is discovered).
func (m *Manager) SetCurrentVersion(version string) {
	m.mu.Lock()
	m.snap.CurrentVersion = version
	m.mu.Unlock()
}

func (m *Manager) transition(to Phase, mutate func(*Snapshot)) {
	m.mu.Lock()
	m.snap.Phase = to
	if mutate != nil {
		mutate(&m.snap)
	}
	switch to {
	case PhaseIdle, PhaseFailed:
		select {
		case <-m.ready:
			// already open for readers
		default:
			close(m.ready)
		}
	default:
		select {
		case <-m.ready:
			m.ready = make(chan struct{})
		default:
		}
	}
	bus := m.bus
	m.mu.Unlock()

	if bus != nil {
		_ = bus.Publish(context.Background(), events.StateChanged{Phase: string(to), At: time.Now().UTC()})
	}
}

// WaitForReady blocks until the phase is idle or failed, the timeout elapses
// (ErrWaitTimeout), or ctx is canceled. A failed state counts as ready:
// requests then serve the previously-good snapshot.
func (m *Manager) WaitForReady(ctx context.Context, timeout time.Duration) error {
	m.mu.Lock()
	ready := m.ready
	m.mu.Unlock()

	select {
	case <-ready:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrWaitTimeout
	}
}
