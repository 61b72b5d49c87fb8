package service

import (
	"context"
	"fmt"
	"time"

	"github.com/viralideas/analysis-queue/internal/cache"
	"github.com/viralideas/analysis-queue/internal/domain"
	"github.com/viralideas/analysis-queue/internal/repository"
)

// SummaryService is the read side of the queue: it flattens a job and its
// competitors into one projection for polling clients. It never writes to
// the stores and resolves in two backing reads (job by session, competitor
// list), fronted by a short-TTL cache.
type SummaryService struct {
	repo  repository.QueueRepository
	cache *cache.SummaryCache
	now   func() time.Time
}

// NewSummaryService builds the read path; cache may be nil to disable it.
func NewSummaryService(repo repository.QueueRepository, summaryCache *cache.SummaryCache) *SummaryService {
	return &SummaryService{
		repo:  repo,
		cache: summaryCache,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *SummaryService) GetStatus(ctx context.Context, sessionID string) (*domain.QueueSummary, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(sessionID); ok {
			// Computed fields are time-sensitive; refresh them on the
			// cached snapshot so overdue/ETA never lag behind the TTL.
			refreshComputed(&cached, s.now())
			return &cached, nil
		}
	}

	job, err := s.repo.GetJobBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	competitors, err := s.repo.ListCompetitors(ctx, job.ID, false)
	if err != nil {
		return nil, fmt.Errorf("list competitors: %w", err)
	}

	summary := buildSummary(job, competitors, s.now())
	if s.cache != nil {
		s.cache.Set(sessionID, *summary)
	}
	return summary, nil
}

func buildSummary(job *domain.Job, competitors []domain.CompetitorEntry, now time.Time) *domain.QueueSummary {
	summary := &domain.QueueSummary{
		JobID:              job.ID,
		SessionID:          job.SessionID,
		SubjectID:          job.SubjectID,
		Status:             job.Status,
		Priority:           job.Priority,
		ProgressPercentage: job.ProgressPercentage,
		CurrentStep:        job.CurrentStep,
		ErrorMessage:       job.ErrorMessage,

		ContentType:    job.FormData.ContentType,
		TargetAudience: job.FormData.TargetAudience,
		MainGoals:      job.FormData.MainGoals,

		AutoRerunEnabled:    job.AutoRerunEnabled,
		RerunFrequencyHours: job.RerunFrequencyHours,
		TotalRuns:           job.TotalRuns,

		SubmittedAt:         job.SubmittedAt,
		StartedProcessingAt: job.StartedProcessingAt,
		CompletedAt:         job.CompletedAt,
		LastAnalysisAt:      job.LastAnalysisAt,
		NextScheduledRun:    job.NextScheduledRun,

		TotalCompetitorsCount: len(competitors),
		Competitors:           make([]domain.CompetitorView, 0, len(competitors)),

		Computed: domain.Compute(job, now),
	}

	for _, competitor := range competitors {
		if !competitor.IsActive {
			continue
		}
		summary.ActiveCompetitorsCount++
		summary.Competitors = append(summary.Competitors, domain.CompetitorView{
			Username:        competitor.Username,
			SelectionMethod: competitor.SelectionMethod,
			Status:          competitor.Status,
			ErrorMessage:    competitor.ErrorMessage,
			AddedAt:         competitor.AddedAt,
			ProcessedAt:     competitor.ProcessedAt,
		})
	}

	return summary
}

func refreshComputed(summary *domain.QueueSummary, now time.Time) {
	job := domain.Job{
		Status:              summary.Status,
		ProgressPercentage:  summary.ProgressPercentage,
		StartedProcessingAt: summary.StartedProcessingAt,
		CompletedAt:         summary.CompletedAt,
	}
	summary.Computed = domain.Compute(&job, now)
}
