// Package retention prunes old verification history on a schedule.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// HistoryPruner deletes verification history rows older than a cutoff.
type HistoryPruner interface {
	PruneVerificationAttempts(ctx context.Context, before time.Time) (int64, error)
}

// Sweeper runs the scheduled retention sweep. Retention of zero days
// disables it.
type Sweeper struct {
	logger    *slog.Logger
	pruner    HistoryPruner
	retention time.Duration
	schedule  string
	cron      *cron.Cron
}

// NewSweeper creates the sweeper.
func NewSweeper(log *slog.Logger, pruner HistoryPruner, retentionDays int, schedule string) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		logger:    log.With(slog.String("component", "retention")),
		pruner:    pruner,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		schedule:  schedule,
	}
}

// Start schedules the sweep. No-op when retention is disabled.
func (s *Sweeper) Start() error {
	if s.retention <= 0 {
		s.logger.Info("history retention disabled")
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("history retention scheduled",
		slog.String("schedule", s.schedule), slog.Duration("retention", s.retention))
	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep prunes immediately, independent of the schedule.
func (s *Sweeper) Sweep(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.retention)
	pruned, err := s.pruner.PruneVerificationAttempts(ctx, cutoff)
	if err != nil {
		s.logger.Error("history sweep failed", slog.Any("error", err))
		return
	}
	if pruned > 0 {
		s.logger.Info("history sweep complete", slog.Int64("pruned", pruned))
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	s.Sweep(ctx)
}
