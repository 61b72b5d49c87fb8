package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/viralideas/analysis-queue/internal/domain"
	"github.com/viralideas/analysis-queue/internal/queue"
	"github.com/viralideas/analysis-queue/internal/repository"
)

// RerunScheduler periodically moves auto-rerun jobs whose next scheduled run
// has arrived back onto the queue. The repository reschedule is a
// compare-and-set, so overlapping ticks or a concurrent drain can never
// double-book a job.
type RerunScheduler struct {
	repo     repository.QueueRepository
	producer queue.Producer
	interval time.Duration
	logger   *log.Logger
	now      func() time.Time
}

func NewRerunScheduler(
	repo repository.QueueRepository,
	producer queue.Producer,
	interval time.Duration,
	logger *log.Logger,
) *RerunScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RerunScheduler{
		repo:     repo,
		producer: producer,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start ticks until the context is cancelled.
func (s *RerunScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && s.logger != nil {
				s.logger.Printf("rerun sweep failed: %v", err)
			}
		}
	}
}

// RunOnce performs a single sweep and reports how many jobs were requeued.
func (s *RerunScheduler) RunOnce(ctx context.Context) (int, error) {
	due, err := s.repo.ListDueForRerun(ctx)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, job := range due {
		if err := s.repo.RescheduleForRerun(ctx, job.ID); err != nil {
			if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
				// Lost to a concurrent sweep or a manual rerun.
				continue
			}
			return requeued, err
		}

		message := domain.QueueMessage{
			JobID:       job.ID,
			SessionID:   job.SessionID,
			SubjectID:   job.SubjectID,
			RequestedAt: s.now(),
		}
		if err := s.producer.Enqueue(ctx, message); err != nil {
			if s.logger != nil {
				s.logger.Printf("rerun enqueue failed job_id=%s: %v", job.ID, err)
			}
			continue
		}
		requeued++
		if s.logger != nil {
			s.logger.Printf("job rescheduled job_id=%s run=%d", job.ID, job.TotalRuns+1)
		}
	}
	return requeued, nil
}
