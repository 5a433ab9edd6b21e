// Package retention prunes old readings and alerts on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Pruner deletes rows older than a cutoff.
type Pruner interface {
	DeleteReadingsBefore(ctx context.Context, olderThan time.Time) (int64, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// Job removes history older than MaxAge.
type Job struct {
	store  Pruner
	maxAge time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewJob constructs a retention job.
func NewJob(store Pruner, maxAge time.Duration, logger zerolog.Logger) *Job {
	return &Job{
		store:  store,
		maxAge: maxAge,
		now:    time.Now,
		logger: logger.With().Str("component", "retention").Logger(),
	}
}

// Prune deletes everything created before now minus MaxAge.
func (j *Job) Prune(ctx context.Context) (readings, alerts int64, err error) {
	cutoff := j.now().UTC().Add(-j.maxAge)

	readings, err = j.store.DeleteReadingsBefore(ctx, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("prune readings: %w", err)
	}
	alerts, err = j.store.DeleteAlertsBefore(ctx, cutoff)
	if err != nil {
		return readings, 0, fmt.Errorf("prune alerts: %w", err)
	}

	j.logger.Info().
		Time("cutoff", cutoff).
		Int64("readings", readings).
		Int64("alerts", alerts).
		Msg("history pruned")
	return readings, alerts, nil
}

// Run schedules Prune with the standard five-field cron spec and blocks until
// ctx is cancelled.
func (j *Job) Run(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, _, err := j.Prune(ctx); err != nil {
			j.logger.Error().Err(err).Msg("scheduled prune failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule retention %q: %w", spec, err)
	}

	j.logger.Info().Str("schedule", spec).Dur("max_age", j.maxAge).Msg("retention scheduled")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
