// Package jobs runs the server's periodic background work.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// sweepTimeout bounds one run so a stuck database cannot pile up runs.
const sweepTimeout = 30 * time.Second

// BanExpirer clears bans whose expiry has passed and reports how many.
type BanExpirer interface {
	ExpireBans(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron     *cron.Cron
	bans     BanExpirer
	schedule string
	logger   *slog.Logger
}

// NewScheduler builds a scheduler that runs the ban sweep on schedule, a
// standard five-field cron spec or a descriptor such as "@every 1m".
func NewScheduler(bans BanExpirer, schedule string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		// SkipIfStillRunning keeps sweeps from overlapping when one is slow.
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		bans:     bans,
		schedule: schedule,
		logger:   logger,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweepBans); err != nil {
		return fmt.Errorf("scheduling ban sweep %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", slog.String("banSweep", s.schedule))
	return nil
}

// Stop stops scheduling new runs and waits for a running sweep to finish
// or for ctx to expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// sweepBans never fails the process; a failed run is logged and the next
// tick tries again.
func (s *Scheduler) sweepBans() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	n, err := s.bans.ExpireBans(ctx)
	if err != nil {
		s.logger.Error("ban sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.Info("ban sweep lifted expired bans", slog.Int("count", n))
	}
}
