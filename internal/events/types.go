package events

import "time"

// UpdateRequested asks the scheduler for a content update. Source names the
// trigger: "webhook", "startup", "resync", "local-change".
type UpdateRequested struct {
	Source      string
	Commit      string // announced head, when the trigger knows it
	RequestedAt time.Time
}

// UpdateScheduled reports the time a debounced update will run.
type UpdateScheduled struct {
	Source string
	At     time.Time
}

// UpdateStarted marks the beginning of an update run.
type UpdateStarted struct {
	ID        string
	Source    string
	StartedAt time.Time
}

// UpdateProgress carries coarse progress messages from the fetch pipeline.
type UpdateProgress struct {
	ID      string
	Message string
}

// UpdateCompleted marks a successful update run. Unchanged is true when the
// remote head matched the served snapshot and no fetch happened.
type UpdateCompleted struct {
	ID          string
	Commit      string
	Fingerprint string
	Unchanged   bool
	Duration    time.Duration
	CompletedAt time.Time
}

// UpdateFailed marks a failed update run.
type UpdateFailed struct {
	ID       string
	Commit   string // would-be commit, when known
	Error    string
	FailedAt time.Time
}

// StateChanged broadcasts every update-state transition.
type StateChanged struct {
	Phase string
	At    time.Time
}
