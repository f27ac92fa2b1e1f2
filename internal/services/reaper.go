package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartReaper runs a periodic sweep that force-ends expired matches. The lazy
// evaluation on reads and writes already guarantees correctness; the sweep
// only makes expiry visible without waiting for the next client poll.
func (s *MatchService) StartReaper(ctx context.Context) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			if err := s.EvaluateExpired(ctx); err != nil {
				slog.Warn("Match reaper sweep failed", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	slog.Info("Match reaper started", "interval", "1m")
	return sched, nil
}
