package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/ordserve/internal/events"
	"git.home.luguber.info/inful/ordserve/internal/state"
)

func startScheduler(t *testing.T, f *fakeFetcher, cooldown time.Duration) (*Scheduler, *events.Bus, <-chan events.UpdateCompleted) {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	r := newTestRunner(t, f, bus)
	r.State = state.NewManager(bus)

	s, err := New(bus, r, r.State, cooldown)
	require.NoError(t, err)

	completed, unsub := events.Subscribe[events.UpdateCompleted](bus, 16)
	t.Cleanup(unsub)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = s.Run(ctx) }()
	<-s.Ready()

	return s, bus, completed
}

func waitCompleted(t *testing.T, ch <-chan events.UpdateCompleted, timeout time.Duration) events.UpdateCompleted {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(timeout):
		t.Fatal("timed out waiting for UpdateCompleted")
		return events.UpdateCompleted{}
	}
}

func TestSchedulerValidation(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	_, err := New(nil, &Runner{}, nil, time.Second)
	assert.Error(t, err)
	_, err = New(bus, nil, nil, time.Second)
	assert.Error(t, err)
	_, err = New(bus, &Runner{}, nil, 0)
	assert.Error(t, err)
}

func TestSchedulerRunsImmediately(t *testing.T) {
	f := &fakeFetcher{head: "abc1234def5678"}
	s, _, completed := startScheduler(t, f, 10*time.Second)

	require.NoError(t, s.RequestUpdate(context.Background(), "webhook", "abc1234def5678"))

	evt := waitCompleted(t, completed, 5*time.Second)
	assert.Equal(t, "abc1234def5678", evt.Commit)
	assert.Equal(t, 1, f.fetchCount())
}

func TestSchedulerQueuesOneFollowUpWhileRunning(t *testing.T) {
	f := &fakeFetcher{head: "abc1234def5678", delay: 150 * time.Millisecond}
	s, _, completed := startScheduler(t, f, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, s.RequestUpdate(ctx, "webhook", ""))

	// Wait until the run is actually in flight, then pile on requests.
	require.Eventually(t, s.runnerIsRunning, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.RequestUpdate(ctx, "webhook", ""))
	require.NoError(t, s.RequestUpdate(ctx, "webhook", ""))
	require.NoError(t, s.RequestUpdate(ctx, "webhook", ""))

	waitCompleted(t, completed, 5*time.Second) // initial run
	second := waitCompleted(t, completed, 5*time.Second)
	assert.True(t, second.Unchanged, "follow-up sees the same head")

	// The burst collapsed into exactly one follow-up.
	select {
	case <-completed:
		t.Fatal("more than one follow-up ran")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSchedulerAnnouncesScheduledFollowUp(t *testing.T) {
	f := &fakeFetcher{head: "abc1234def5678", delay: 150 * time.Millisecond}
	s, bus, completed := startScheduler(t, f, time.Minute)
	ctx := context.Background()

	scheduled, unsub := events.Subscribe[events.UpdateScheduled](bus, 4)
	defer unsub()

	require.NoError(t, s.RequestUpdate(ctx, "webhook", ""))
	require.Eventually(t, s.runnerIsRunning, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.RequestUpdate(ctx, "webhook", ""))

	waitCompleted(t, completed, 5*time.Second)

	select {
	case evt := <-scheduled:
		assert.WithinDuration(t, time.Now().Add(time.Minute), evt.At, 5*time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("missing UpdateScheduled event")
	}
	require.NotNil(t, s.NextScheduled())
}

func (s *Scheduler) runnerIsRunning() bool { return s.runner.IsRunning() }
