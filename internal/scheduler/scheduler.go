package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/ordserve/internal/events"
	"git.home.luguber.info/inful/ordserve/internal/logfields"
	"git.home.luguber.info/inful/ordserve/internal/state"
)

// Scheduler turns UpdateRequested events into serialized runs with a cooldown
// between consecutive runs:
//   - a request while nothing runs and nothing is scheduled starts immediately
//   - a request while a run is in flight queues exactly one follow-up
//   - a request while a follow-up is scheduled re-derives the scheduled time
//     from the last finished run, so only the most recent push survives
//
// All loop state is owned by the single Run goroutine.
type Scheduler struct {
	bus      *events.Bus
	runner   *Runner
	state    *state.Manager
	cooldown time.Duration

	readyOnce sync.Once
	ready     chan struct{}

	// owned by Run
	running      bool
	queued       bool
	lastFinished time.Time
	lastSource   string
}

func New(bus *events.Bus, runner *Runner, st *state.Manager, cooldown time.Duration) (*Scheduler, error) {
	if bus == nil {
		return nil, errors.New("scheduler: bus is required")
	}
	if runner == nil {
		return nil, errors.New("scheduler: runner is required")
	}
	if cooldown <= 0 {
		return nil, errors.New("scheduler: cooldown must be > 0")
	}
	return &Scheduler{
		bus:      bus,
		runner:   runner,
		state:    st,
		cooldown: cooldown,
		ready:    make(chan struct{}),
	}, nil
}

// Ready is closed once Run has subscribed to events. Intended for tests and
// deterministic startup sequencing.
func (s *Scheduler) Ready() <-chan struct{} { return s.ready }

// RequestUpdate publishes an update request onto the bus.
func (s *Scheduler) RequestUpdate(ctx context.Context, source, commit string) error {
	return s.bus.Publish(ctx, events.UpdateRequested{
		Source:      source,
		Commit:      commit,
		RequestedAt: time.Now().UTC(),
	})
}

// NextScheduled returns the time the pending follow-up will run, or nil.
func (s *Scheduler) NextScheduled() *time.Time {
	if s.state == nil {
		return nil
	}
	return s.state.Snapshot().ScheduledUpdateTime
}

// Run processes requests until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	reqCh, unsubscribe := events.Subscribe[events.UpdateRequested](s.bus, 64)
	defer unsubscribe()

	s.readyOnce.Do(func() { close(s.ready) })

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	var timerC <-chan time.Time

	resetTimer := func(after time.Duration) {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(after)
		timerC = timer.C
	}

	done := make(chan struct{}, 1)
	startRun := func(source string) {
		s.running = true
		if s.state != nil {
			s.state.SetScheduled(nil)
		}
		go func() {
			_ = s.runner.RunOnce(ctx, source)
			done <- struct{}{}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case req, ok := <-reqCh:
			if !ok {
				return nil
			}
			if req.Source != "" {
				s.lastSource = req.Source
			}
			switch {
			case s.running:
				s.queued = true
				slog.Debug("Update queued behind running update", logfields.Source(req.Source))
			case timerC != nil:
				at := s.lastFinished.Add(s.cooldown)
				resetTimer(time.Until(at))
				s.announceScheduled(ctx, req.Source, at)
			default:
				startRun(req.Source)
			}

		case <-timerC:
			timerC = nil
			startRun(s.lastSource)

		case <-done:
			s.running = false
			s.lastFinished = time.Now()
			if s.queued {
				s.queued = false
				at := s.lastFinished.Add(s.cooldown)
				resetTimer(s.cooldown)
				s.announceScheduled(ctx, s.lastSource, at)
			}
		}
	}
}

func (s *Scheduler) announceScheduled(ctx context.Context, source string, at time.Time) {
	if s.state != nil {
		s.state.SetScheduled(&at)
	}
	_ = s.bus.Publish(ctx, events.UpdateScheduled{Source: source, At: at})
	slog.Info("Update scheduled", logfields.Source(source), slog.Time("at", at))
}
