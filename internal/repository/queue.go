package repository

import (
	"context"
	"errors"

	"github.com/viralideas/analysis-queue/internal/domain"
)

var (
	ErrNotFound  = errors.New("resource not found")
	ErrConflict  = errors.New("state precondition failed")
	ErrDuplicate = errors.New("duplicate resource")
)

// RecentJob is a job row joined with its active-competitor count, used by the
// system-status view.
type RecentJob struct {
	Job               domain.Job
	ActiveCompetitors int
}

// QueueRepository is the source of truth for jobs and their comparison
// subjects. Implementations must make CreateJob all-or-nothing and ClaimJob a
// compare-and-set so that a pending job is claimed exactly once.
type QueueRepository interface {
	// CreateJob persists the job together with its competitor rows. Either
	// everything is visible afterwards or nothing is.
	CreateJob(ctx context.Context, job *domain.Job, competitors []domain.CompetitorEntry) error

	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	GetJobBySession(ctx context.Context, sessionID string) (*domain.Job, error)

	ListCompetitors(ctx context.Context, jobID string, activeOnly bool) ([]domain.CompetitorEntry, error)
	SetCompetitorActive(ctx context.Context, jobID, username string, active bool) error
	UpdateCompetitorStatus(ctx context.Context, jobID, username string, status domain.CompetitorStatus, errorMessage string) error

	// ClaimJob transitions pending→processing iff the job is still pending,
	// stamping started_processing_at. Returns ErrConflict when another worker
	// won the race or the job left pending through some other path.
	ClaimJob(ctx context.Context, jobID string) (*domain.Job, error)

	// UpdateProgress stores a worker progress report. Values lower than the
	// stored percentage and reports against non-processing jobs return
	// ErrConflict and leave the row untouched.
	UpdateProgress(ctx context.Context, jobID string, percentage int, currentStep string) error

	// CompleteJob finalizes a pending or processing job. Completed jobs get
	// progress 100, a cleared step and, when auto-rerun is enabled, their next
	// scheduled run.
	CompleteJob(ctx context.Context, jobID string, outcome domain.JobStatus, errorMessage string) (*domain.Job, error)

	// RequestCancel flags a pending or processing job for cooperative
	// cancellation. The worker observes the flag at step boundaries.
	RequestCancel(ctx context.Context, jobID string) (*domain.Job, error)

	// RescheduleForRerun transitions a completed or failed auto-rerun job back
	// to pending, incrementing total_runs and resetting run-scoped fields.
	// ErrConflict when the job is no longer eligible (double-claim guard).
	RescheduleForRerun(ctx context.Context, jobID string) error

	ListPending(ctx context.Context) ([]domain.Job, error)
	ListDueForRerun(ctx context.Context) ([]domain.Job, error)
	ListRecent(ctx context.Context, limit int) ([]RecentJob, error)
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)
}
