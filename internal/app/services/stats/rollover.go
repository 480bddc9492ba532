// Package stats hosts the daily aggregate rollover.
package stats

import (
	"context"

	"github.com/robfig/cron/v3"

	domain "github.com/ReLoop-Network/market_layer/internal/app/domain/stats"
	"github.com/ReLoop-Network/market_layer/internal/app/storage"
	"github.com/ReLoop-Network/market_layer/internal/app/system"
	"github.com/ReLoop-Network/market_layer/pkg/logger"
)

// Rollover resets the completed-today counter at midnight UTC.
type Rollover struct {
	store    storage.StatsStore
	schedule string
	log      *logger.Logger
	cron     *cron.Cron
}

var _ system.Service = (*Rollover)(nil)

// NewRollover creates the scheduled reset. An empty schedule defaults to
// midnight.
func NewRollover(store storage.StatsStore, schedule string, log *logger.Logger) *Rollover {
	if log == nil {
		log = logger.NewDefault("stats-rollover")
	}
	if schedule == "" {
		schedule = "@midnight"
	}
	return &Rollover{store: store, schedule: schedule, log: log}
}

func (r *Rollover) Name() string { return "stats-rollover" }

func (r *Rollover) Start(context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(r.schedule, r.reset); err != nil {
		return err
	}
	c.Start()
	r.cron = c
	r.log.WithField("schedule", r.schedule).Info("stats rollover scheduled")
	return nil
}

func (r *Rollover) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	stopped := r.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Rollover) reset() {
	ctx := context.Background()
	agg, err := r.store.GetStats(ctx)
	if err != nil {
		r.log.WithError(err).Warn("stats read failed during rollover")
		return
	}
	if agg.CompletedToday == 0 {
		return
	}
	agg.CompletedToday = 0
	if _, err := r.store.PutStats(ctx, agg); err != nil {
		r.log.WithError(err).Warn("stats reset failed")
		return
	}
	r.log.Info("completed-today counter reset")
}

// Reset is the test hook for the scheduled job.
func Reset(ctx context.Context, store storage.StatsStore) (domain.Aggregate, error) {
	agg, err := store.GetStats(ctx)
	if err != nil {
		return domain.Aggregate{}, err
	}
	agg.CompletedToday = 0
	return store.PutStats(ctx, agg)
}
