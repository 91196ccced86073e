package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/ordserve/internal/config"
	"git.home.luguber.info/inful/ordserve/internal/metrics"
	"git.home.luguber.info/inful/ordserve/internal/server/responses"
	"git.home.luguber.info/inful/ordserve/internal/state"
)

// ReadyWaiter blocks until the served content is stable.
type ReadyWaiter interface {
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// GatedPath reports whether a request path must wait for content readiness.
// Status, webhook, websocket and health endpoints pass through.
func GatedPath(path string) bool {
	return path == config.WellKnownPath || strings.HasPrefix(path, config.ORDPathPrefix)
}

// ReadinessGate holds ORD requests while an update is swapping or warming. A
// nil waiter (local mode) makes the gate an identity middleware.
func ReadinessGate(waiter ReadyWaiter, timeout time.Duration, rec metrics.Recorder) func(http.Handler) http.Handler {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return func(next http.Handler) http.Handler {
		if waiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !GatedPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			err := waiter.WaitForReady(r.Context(), timeout)
			rec.ObserveGateWait(time.Since(start))
			if err != nil {
				if errors.Is(err, state.ErrWaitTimeout) {
					rec.IncGateTimeout()
					responses.WriteError(w, http.StatusServiceUnavailable,
						responses.CodeTimeout, "timed out waiting for content update to finish", r.URL.Path)
					return
				}
				// Client went away while waiting.
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
