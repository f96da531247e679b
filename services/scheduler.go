// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StartLeaderboardScheduler refreshes the leaderboard snapshot once right away and
// then every interval. Overlapping runs are skipped. Call Shutdown on the
// returned scheduler to stop it.
func (s *LeaderboardService) StartLeaderboardScheduler(interval time.Duration) (gocron.Scheduler, error) {
	if interval <= 0 {
		interval = time.Minute
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if err := s.Refresh(ctx); err != nil {
				s.Log.Warn("scheduled leaderboard refresh failed", zap.Error(err))
			}
		}),
		gocron.WithName("leaderboard-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule leaderboard refresh: %w", err)
	}

	sched.Start()
	s.Log.Info("leaderboard scheduler started", zap.Duration("interval", interval))
	return sched, nil
}
