package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/ordserve/internal/events"
	"git.home.luguber.info/inful/ordserve/internal/logfields"
)

// Resync periodically requests an update so missed webhooks cannot leave the
// served content stale forever.
type Resync struct {
	scheduler gocron.Scheduler
}

// StartResync begins publishing UpdateRequested events every interval.
func StartResync(bus *events.Bus, interval time.Duration) (*Resync, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create resync scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if perr := bus.Publish(ctx, events.UpdateRequested{Source: "resync", RequestedAt: time.Now().UTC()}); perr != nil {
				slog.Warn("Failed to request periodic resync", logfields.Error(perr))
			}
		}),
		gocron.WithName("content-resync"),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("create resync job: %w", err)
	}

	s.Start()
	slog.Info("Periodic resync enabled", slog.Duration("interval", interval))
	return &Resync{scheduler: s}, nil
}

// Stop shuts the periodic job down.
func (r *Resync) Stop() error {
	return r.scheduler.Shutdown()
}
