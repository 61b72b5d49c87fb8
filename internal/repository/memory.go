package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/viralideas/analysis-queue/internal/domain"
)

// MemoryQueueRepository stores jobs in memory for local development and tests.
type MemoryQueueRepository struct {
	mu          sync.RWMutex
	jobs        map[string]*domain.Job
	bySession   map[string]string
	competitors map[string][]*domain.CompetitorEntry

	now func() time.Time
}

func NewMemoryQueueRepository() *MemoryQueueRepository {
	return &MemoryQueueRepository{
		jobs:        make(map[string]*domain.Job),
		bySession:   make(map[string]string),
		competitors: make(map[string][]*domain.CompetitorEntry),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryQueueRepository) CreateJob(
	_ context.Context,
	job *domain.Job,
	competitors []domain.CompetitorEntry,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return ErrDuplicate
	}
	if _, exists := r.bySession[job.SessionID]; exists {
		return ErrDuplicate
	}
	seen := make(map[string]struct{}, len(competitors))
	for _, competitor := range competitors {
		if _, dup := seen[competitor.Username]; dup {
			return ErrDuplicate
		}
		seen[competitor.Username] = struct{}{}
	}

	r.jobs[job.ID] = cloneJob(job)
	r.bySession[job.SessionID] = job.ID
	entries := make([]*domain.CompetitorEntry, 0, len(competitors))
	for i := range competitors {
		entry := competitors[i]
		entry.JobID = job.ID
		entries = append(entries, &entry)
	}
	r.competitors[job.ID] = entries
	return nil
}

func (r *MemoryQueueRepository) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryQueueRepository) GetJobBySession(_ context.Context, sessionID string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobID, ok := r.bySession[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(r.jobs[jobID]), nil
}

func (r *MemoryQueueRepository) ListCompetitors(
	_ context.Context,
	jobID string,
	activeOnly bool,
) ([]domain.CompetitorEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.jobs[jobID]; !ok {
		return nil, ErrNotFound
	}

	entries := make([]domain.CompetitorEntry, 0, len(r.competitors[jobID]))
	for _, entry := range r.competitors[jobID] {
		if activeOnly && !entry.IsActive {
			continue
		}
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AddedAt.Before(entries[j].AddedAt)
	})
	return entries, nil
}

func (r *MemoryQueueRepository) SetCompetitorActive(
	_ context.Context,
	jobID, username string,
	active bool,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.findCompetitor(jobID, username)
	if entry == nil {
		return ErrNotFound
	}
	entry.IsActive = active
	return nil
}

func (r *MemoryQueueRepository) UpdateCompetitorStatus(
	_ context.Context,
	jobID, username string,
	status domain.CompetitorStatus,
	errorMessage string,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.findCompetitor(jobID, username)
	if entry == nil {
		return ErrNotFound
	}
	entry.Status = status
	entry.ErrorMessage = errorMessage
	if status == domain.CompetitorStatusCompleted || status == domain.CompetitorStatusFailed {
		processedAt := r.now()
		entry.ProcessedAt = &processedAt
	}
	return nil
}

func (r *MemoryQueueRepository) ClaimJob(_ context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if job.Status != domain.JobStatusPending {
		return nil, ErrConflict
	}

	startedAt := r.now()
	job.Status = domain.JobStatusProcessing
	job.StartedProcessingAt = &startedAt
	return cloneJob(job), nil
}

func (r *MemoryQueueRepository) UpdateProgress(
	_ context.Context,
	jobID string,
	percentage int,
	currentStep string,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status != domain.JobStatusProcessing || percentage < job.ProgressPercentage {
		return ErrConflict
	}
	job.ProgressPercentage = percentage
	job.CurrentStep = currentStep
	return nil
}

func (r *MemoryQueueRepository) CompleteJob(
	_ context.Context,
	jobID string,
	outcome domain.JobStatus,
	errorMessage string,
) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if job.Status.Terminal() || job.Status == domain.JobStatusPaused {
		return nil, ErrConflict
	}

	completedAt := r.now()
	job.Status = outcome
	job.ErrorMessage = errorMessage
	job.CompletedAt = &completedAt
	job.CurrentStep = ""
	if outcome == domain.JobStatusCompleted {
		job.ProgressPercentage = 100
		job.LastAnalysisAt = &completedAt
	}
	if job.AutoRerunEnabled && job.RerunFrequencyHours > 0 && outcome != domain.JobStatusCancelled {
		nextRun := completedAt.Add(time.Duration(job.RerunFrequencyHours) * time.Hour)
		job.NextScheduledRun = &nextRun
	}
	return cloneJob(job), nil
}

func (r *MemoryQueueRepository) RequestCancel(_ context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if !job.CanBeCancelled() {
		return nil, ErrConflict
	}
	job.CancelRequested = true
	return cloneJob(job), nil
}

func (r *MemoryQueueRepository) RescheduleForRerun(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if !job.CanBeRerun() || !job.AutoRerunEnabled {
		return ErrConflict
	}

	job.Status = domain.JobStatusPending
	job.TotalRuns++
	job.ProgressPercentage = 0
	job.CurrentStep = ""
	job.ErrorMessage = ""
	job.CancelRequested = false
	job.StartedProcessingAt = nil
	job.CompletedAt = nil
	job.NextScheduledRun = nil
	return nil
}

func (r *MemoryQueueRepository) ListPending(_ context.Context) ([]domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := make([]domain.Job, 0)
	for _, job := range r.jobs {
		if job.Status == domain.JobStatusPending {
			pending = append(pending, *cloneJob(job))
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority < pending[j].Priority
		}
		return pending[i].SubmittedAt.Before(pending[j].SubmittedAt)
	})
	return pending, nil
}

func (r *MemoryQueueRepository) ListDueForRerun(_ context.Context) ([]domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	due := make([]domain.Job, 0)
	for _, job := range r.jobs {
		if !job.AutoRerunEnabled || !job.CanBeRerun() {
			continue
		}
		if job.NextScheduledRun == nil || job.NextScheduledRun.After(now) {
			continue
		}
		due = append(due, *cloneJob(job))
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextScheduledRun.Before(*due[j].NextScheduledRun)
	})
	return due, nil
}

func (r *MemoryQueueRepository) ListRecent(_ context.Context, limit int) ([]RecentJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	jobs := make([]*domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].SubmittedAt.After(jobs[j].SubmittedAt)
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}

	recent := make([]RecentJob, 0, len(jobs))
	for _, job := range jobs {
		active := 0
		for _, entry := range r.competitors[job.ID] {
			if entry.IsActive {
				active++
			}
		}
		recent = append(recent, RecentJob{Job: *cloneJob(job), ActiveCompetitors: active})
	}
	return recent, nil
}

func (r *MemoryQueueRepository) CountByStatus(_ context.Context) (map[domain.JobStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.JobStatus]int)
	for _, job := range r.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (r *MemoryQueueRepository) findCompetitor(jobID, username string) *domain.CompetitorEntry {
	for _, entry := range r.competitors[jobID] {
		if entry.Username == username {
			return entry
		}
	}
	return nil
}

func cloneJob(job *domain.Job) *domain.Job {
	if job == nil {
		return nil
	}
	clone := *job
	clone.StartedProcessingAt = cloneTime(job.StartedProcessingAt)
	clone.CompletedAt = cloneTime(job.CompletedAt)
	clone.LastAnalysisAt = cloneTime(job.LastAnalysisAt)
	clone.NextScheduledRun = cloneTime(job.NextScheduledRun)
	return &clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
