package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/viralideas/analysis-queue/internal/cache"
	"github.com/viralideas/analysis-queue/internal/domain"
	"github.com/viralideas/analysis-queue/internal/queue"
	"github.com/viralideas/analysis-queue/internal/repository"
)

// ErrValidation marks submissions rejected before any write.
var ErrValidation = errors.New("invalid submission")

// SubmitInput is everything a client provides when requesting an analysis.
type SubmitInput struct {
	SessionID           string
	SubjectID           string
	FormData            domain.FormData
	Competitors         []string
	AutoRerunEnabled    bool
	RerunFrequencyHours int
}

// QueueService owns the job state machine: submissions, pickup signals,
// batch draining and cancellation. Status transitions themselves happen in
// the repository so its compare-and-set semantics stay the single authority.
type QueueService struct {
	repo     repository.QueueRepository
	producer queue.Producer
	cache    *cache.SummaryCache
	logger   *log.Logger
	now      func() time.Time
}

// NewQueueService wires the write side; summaryCache may be nil and is only
// used to drop stale projections after a user-visible mutation.
func NewQueueService(
	repo repository.QueueRepository,
	producer queue.Producer,
	summaryCache *cache.SummaryCache,
	logger *log.Logger,
) *QueueService {
	return &QueueService{
		repo:     repo,
		producer: producer,
		cache:    summaryCache,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *QueueService) Submit(ctx context.Context, input SubmitInput) (*domain.Job, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	subjectID := strings.TrimSpace(input.SubjectID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrValidation)
	}
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject_id is required", ErrValidation)
	}
	if input.RerunFrequencyHours < 0 {
		return nil, fmt.Errorf("%w: rerun_frequency_hours must not be negative", ErrValidation)
	}

	now := s.now()
	job := &domain.Job{
		ID:                  uuid.NewString(),
		SessionID:           sessionID,
		SubjectID:           subjectID,
		FormData:            input.FormData,
		Status:              domain.JobStatusPending,
		Priority:            domain.DefaultPriority,
		AutoRerunEnabled:    input.AutoRerunEnabled,
		RerunFrequencyHours: input.RerunFrequencyHours,
		SubmittedAt:         now,
	}

	competitors := make([]domain.CompetitorEntry, 0, len(input.Competitors))
	for _, raw := range input.Competitors {
		username := strings.TrimSpace(raw)
		if username == "" {
			return nil, fmt.Errorf("%w: competitor usernames must not be empty", ErrValidation)
		}
		competitors = append(competitors, domain.CompetitorEntry{
			JobID:           job.ID,
			Username:        username,
			SelectionMethod: domain.SelectionManual,
			IsActive:        true,
			Status:          domain.CompetitorStatusPending,
			AddedAt:         now,
		})
	}

	if err := s.repo.CreateJob(ctx, job, competitors); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.producer.Enqueue(ctx, s.pickupMessage(job)); err != nil {
		// The row exists but no worker will ever see it; fail it so polling
		// clients are not left watching a job that never starts.
		if _, completeErr := s.repo.CompleteJob(ctx, job.ID, domain.JobStatusFailed, "failed to enqueue job"); completeErr != nil && s.logger != nil {
			s.logger.Printf("mark enqueue failure job_id=%s err=%v", job.ID, completeErr)
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// StartJob re-signals a job for pickup. It never flips the status itself:
// pending→processing belongs to the worker's claim, so a crashed worker can
// not be faked into a false processing state from here.
func (s *QueueService) StartJob(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status == domain.JobStatusPending {
		if err := s.producer.Enqueue(ctx, s.pickupMessage(job)); err != nil {
			return nil, fmt.Errorf("enqueue pickup signal: %w", err)
		}
	}
	return job, nil
}

// DrainPending enqueues a pickup signal for every pending job in priority
// order and returns how many were handed over. Individual job outcomes are
// recorded on their own rows; draining never waits for them.
func (s *QueueService) DrainPending(ctx context.Context) (int, error) {
	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	messages := make([]domain.QueueMessage, 0, len(pending))
	for i := range pending {
		messages = append(messages, s.pickupMessage(&pending[i]))
	}
	if err := s.producer.EnqueueBatch(ctx, messages); err != nil {
		return 0, fmt.Errorf("enqueue pending batch: %w", err)
	}

	if s.logger != nil {
		s.logger.Printf("drain started jobs=%d", len(messages))
	}
	return len(messages), nil
}

// Cancel flags the job for cooperative cancellation. Pending jobs are
// finalized immediately; processing ones stop at the worker's next step
// boundary.
func (s *QueueService) Cancel(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := s.repo.RequestCancel(ctx, jobID)
	if err != nil {
		return nil, err
	}

	defer s.invalidate(job.SessionID)

	if job.Status == domain.JobStatusPending {
		finalized, err := s.repo.CompleteJob(ctx, jobID, domain.JobStatusCancelled, "cancelled before pickup")
		if err == nil {
			return finalized, nil
		}
		// A worker claimed the job between the flag and the finalize; the
		// flag is set, so the worker will stop on its own.
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}
	}
	return job, nil
}

func (s *QueueService) SetCompetitorActive(ctx context.Context, jobID, username string, active bool) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := s.repo.SetCompetitorActive(ctx, jobID, username, active); err != nil {
		return err
	}
	s.invalidate(job.SessionID)
	return nil
}

func (s *QueueService) invalidate(sessionID string) {
	if s.cache != nil {
		s.cache.Invalidate(sessionID)
	}
}

func (s *QueueService) pickupMessage(job *domain.Job) domain.QueueMessage {
	return domain.QueueMessage{
		JobID:       job.ID,
		SessionID:   job.SessionID,
		SubjectID:   job.SubjectID,
		Attempt:     0,
		RequestedAt: s.now(),
	}
}
