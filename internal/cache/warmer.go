package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/ordserve/internal/logfields"
)

// Warmer runs at most one bulk cache load at a time. Starting a load for a
// new fingerprint cancels the in-flight one; waiters on the superseded load
// are released when it stops at its next yield point.
type Warmer struct {
	loader *Loader

	mu   sync.Mutex
	slot *warmingSlot
}

type warmingSlot struct {
	fingerprint string
	cancel      context.CancelFunc
	done        chan struct{}
	err         error
}

func NewWarmer(loader *Loader) *Warmer {
	return &Warmer{loader: loader}
}

// Warm loads all documents below docsDir for the fingerprint. Idempotent per
// fingerprint: already-warm returns immediately, an in-flight load for the
// same fingerprint is joined, and a load for a different fingerprint is
// canceled and superseded.
func (w *Warmer) Warm(ctx context.Context, docsDir, fingerprint string) error {
	if w.loader.Cache.GetCachedOrdConfig(fingerprint) != nil {
		return nil
	}

	w.mu.Lock()
	if current := w.slot; current != nil {
		if current.fingerprint == fingerprint {
			w.mu.Unlock()
			select {
			case <-current.done:
				return current.err
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		slog.Info("Superseding cache warming", logfields.Fingerprint(current.fingerprint))
		current.cancel()
	}

	warmCtx, cancel := context.WithCancel(ctx)
	slot := &warmingSlot{fingerprint: fingerprint, cancel: cancel, done: make(chan struct{})}
	w.slot = slot
	w.mu.Unlock()

	start := time.Now()
	slot.err = w.loader.Load(warmCtx, docsDir, fingerprint)
	cancel()

	w.mu.Lock()
	if w.slot == slot {
		w.slot = nil
	}
	w.mu.Unlock()
	close(slot.done)

	if slot.err != nil {
		slog.Warn("Cache warming failed", logfields.Fingerprint(fingerprint), logfields.Error(slot.err))
	} else {
		slog.Info("Cache warmed", logfields.Fingerprint(fingerprint), logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	}
	return slot.err
}

// IsWarming reports whether a load is in flight.
func (w *Warmer) IsWarming() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.slot != nil
}

// CurrentHash returns the fingerprint being warmed, or empty.
func (w *Warmer) CurrentHash() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.slot == nil {
		return ""
	}
	return w.slot.fingerprint
}

// WaitForCompletion blocks until the in-flight load terminates, successfully
// or not. Returns immediately when nothing is warming.
func (w *Warmer) WaitForCompletion(ctx context.Context) error {
	w.mu.Lock()
	slot := w.slot
	w.mu.Unlock()
	if slot == nil {
		return nil
	}
	select {
	case <-slot.done:
		return slot.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
