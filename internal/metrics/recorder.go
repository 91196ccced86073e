// Package metrics defines the observability hooks for the update pipeline and
// request serving, with a Prometheus implementation and a no-op default.
package metrics

import "time"

// Recorder defines the metric hooks. All implementations must tolerate nil
// receivers so injection stays optional.
type Recorder interface {
	ObserveUpdateDuration(source string, d time.Duration)
	IncUpdateOutcome(outcome string) // succeeded|unchanged|failed
	ObserveWarmDuration(d time.Duration)
	SetCachedDocuments(n int)
	ObserveGateWait(d time.Duration)
	IncGateTimeout()
	IncWebhookReceived(accepted bool)
}

// NoopRecorder does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveUpdateDuration(string, time.Duration) {}
func (NoopRecorder) IncUpdateOutcome(string)                     {}
func (NoopRecorder) ObserveWarmDuration(time.Duration)           {}
func (NoopRecorder) SetCachedDocuments(int)                      {}
func (NoopRecorder) ObserveGateWait(time.Duration)               {}
func (NoopRecorder) IncGateTimeout()                             {}
func (NoopRecorder) IncWebhookReceived(bool)                     {}
