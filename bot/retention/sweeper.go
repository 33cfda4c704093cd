// Package retention removes registrations older than the configured window.
// A record is purged once its age reaches the window, regardless of whether
// the registration is complete: a pending user who stalled past the window
// restarts from scratch on their next message. That is accepted behaviour,
// not a bug.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
	"log/slog"

	"github.com/jituformyself-glitch/enjoy-bot/bot/storage"
	"github.com/jituformyself-glitch/enjoy-bot/core/logger"
)

// Sweep deletes every record created at or before cutoff and reports how many
// records were removed. Individual delete failures do not stop the pass.
func Sweep(ctx context.Context, store storage.Store, cutoff time.Time) (int, error) {
	records, err := store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("retention: list records: %w", err)
	}

	var (
		purged int
		errs   *multierror.Error
	)
	for _, rec := range records {
		if rec.CreatedAt.After(cutoff) {
			continue
		}
		if err := store.Delete(ctx, rec.UserID); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("retention: delete %d: %w", rec.UserID, err))
			continue
		}
		purged++
	}
	return purged, errs.ErrorOrNil()
}

// Sweeper runs Sweep on a cron schedule so idle stores are purged even when
// no inbound traffic triggers the inline sweep.
type Sweeper struct {
	store    storage.Store
	window   time.Duration
	schedule string
	cron     *cron.Cron
}

// NewSweeper builds a background sweeper. The schedule accepts standard cron
// specs and descriptors such as "@hourly".
func NewSweeper(store storage.Store, window time.Duration, schedule string) *Sweeper {
	return &Sweeper{
		store:    store,
		window:   window,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("retention: invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	logger.SWEEP.Info("sweeper started",
		slog.String("event", "sweep.start"),
		slog.String("schedule", s.schedule),
		slog.Duration("window", s.window),
	)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.SWEEP.Info("sweeper stopped", slog.String("event", "sweep.stop"))
}

func (s *Sweeper) run() {
	ctx := context.Background()
	start := time.Now()
	purged, err := Sweep(ctx, s.store, time.Now().Add(-s.window))
	if err != nil {
		logger.SWEEP.Error("sweep failed",
			slog.String("event", "sweep.run"),
			slog.Int("purged", purged),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return
	}
	if purged > 0 {
		logger.SWEEP.Info("sweep complete",
			slog.String("event", "sweep.run"),
			slog.Int("purged", purged),
			slog.Duration("duration", logger.Took(start)),
		)
	}
}
