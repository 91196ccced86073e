package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyUpdateID    = "update_id"
	KeySource      = "source"
	KeyCommit      = "commit"
	KeyBranch      = "branch"
	KeyRepo        = "repository"
	KeyFingerprint = "fingerprint"
	KeyPath        = "path"
	KeyState       = "state"
	KeyDurationMS  = "duration_ms"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func UpdateID(id string) slog.Attr    { return slog.String(KeyUpdateID, id) }
func Source(s string) slog.Attr       { return slog.String(KeySource, s) }
func Commit(sha string) slog.Attr     { return slog.String(KeyCommit, shorten(sha)) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func Repository(r string) slog.Attr   { return slog.String(KeyRepo, r) }
func Fingerprint(h string) slog.Attr  { return slog.String(KeyFingerprint, shorten(h)) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

func shorten(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
