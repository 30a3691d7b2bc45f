package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rivaleye/rivaleye/internal/monitor"
)

// Scheduler seeds crawl jobs for targets whose recrawl is due. It backstops
// the per-job recrawl enqueue, which can be lost when a job is dropped.
type Scheduler struct {
	queue     monitor.JobQueue
	targets   monitor.TargetStore
	clock     monitor.Clock
	frequency time.Duration
	maxAttempts int
	logger    *zap.Logger
}

// NewScheduler builds a Scheduler.
func NewScheduler(queue monitor.JobQueue, targets monitor.TargetStore, clock monitor.Clock, frequency time.Duration, maxAttempts int, logger *zap.Logger) *Scheduler {
	if frequency <= 0 {
		frequency = 24 * time.Hour
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Scheduler{
		queue:       queue,
		targets:     targets,
		clock:       clock,
		frequency:   frequency,
		maxAttempts: maxAttempts,
		logger:      logger.Named("scheduler"),
	}
}

// SeedDueTargets enqueues one job per due target without a pending job.
// Returns the number of jobs created.
func (s *Scheduler) SeedDueTargets(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.targets.ListDue(ctx, now, s.frequency)
	if err != nil {
		return 0, fmt.Errorf("list due targets: %w", err)
	}

	seeded := 0
	for _, target := range due {
		if err := s.queue.Enqueue(ctx, monitor.EnqueueRequest{
			TargetID:    target.ID,
			URL:         target.URL,
			MaxAttempts: s.maxAttempts,
			NotBefore:   now,
		}); err != nil {
			s.logger.Error("seed enqueue failed",
				zap.String("target_id", target.ID), zap.Error(err))
			continue
		}
		seeded++
	}
	if seeded > 0 {
		s.logger.Info("seeded due targets", zap.Int("count", seeded))
	}
	return seeded, nil
}
