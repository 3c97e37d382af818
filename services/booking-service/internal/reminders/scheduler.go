package reminders

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the sweep on a cron schedule, skipping a tick while the previous sweep is
// still running.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	sweeper *Sweeper
	timeout time.Duration
}

func NewScheduler(spec string, loc *time.Location, sweeper *Sweeper, logger *slog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		logger:  logger,
		sweeper: sweeper,
		timeout: 30 * time.Second,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	s.logger.Info("reminder scheduler started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("reminder scheduler stopped")
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("reminder sweep failed", "err", err)
		return
	}
	if n > 0 {
		s.logger.Info("reminders enqueued", "count", n)
	}
}
