package service

import (
	"context"
	"fmt"
	"time"

	"github.com/viralideas/analysis-queue/internal/domain"
	"github.com/viralideas/analysis-queue/internal/repository"
)

const (
	recentWindowSize = 10

	// capacityFloor keeps usage meaningful on a near-empty queue.
	capacityFloor = 10

	efficiencyTarget  = 95.0
	acceptableMinutes = 20.0

	maxEfficiencyPenalty = 50.0
	maxDurationPenalty   = 30.0
	overduePenalty       = 10.0
)

// StatsService computes the aggregate system view: per-status counts, the
// recent-activity window and a composite health score. Pure reads only.
type StatsService struct {
	repo repository.QueueRepository
	now  func() time.Time
}

func NewStatsService(repo repository.QueueRepository) *StatsService {
	return &StatsService{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *StatsService) GetSystemStatus(ctx context.Context) (*domain.SystemStatus, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}

	recent, err := s.repo.ListRecent(ctx, recentWindowSize)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}

	now := s.now()
	total := 0
	for _, count := range counts {
		total += count
	}

	items := make([]domain.RecentItem, 0, len(recent))
	for _, row := range recent {
		job := row.Job
		items = append(items, domain.RecentItem{
			JobID:                  job.ID,
			SessionID:              job.SessionID,
			SubjectID:              job.SubjectID,
			Status:                 job.Status,
			ProgressPercentage:     job.ProgressPercentage,
			CurrentStep:            job.CurrentStep,
			SubmittedAt:            job.SubmittedAt,
			ActiveCompetitorsCount: row.ActiveCompetitors,
			Computed:               domain.Compute(&job, now),
		})
	}

	return &domain.SystemStatus{
		Counts:      counts,
		Total:       total,
		RecentItems: items,
		Metrics:     computeMetrics(counts, total, items),
		GeneratedAt: now,
	}, nil
}

func computeMetrics(counts map[domain.JobStatus]int, total int, recent []domain.RecentItem) domain.SystemMetrics {
	metrics := domain.SystemMetrics{}

	inFlight := counts[domain.JobStatusPending] + counts[domain.JobStatusProcessing]
	denominator := total
	if denominator < capacityFloor {
		denominator = capacityFloor
	}
	metrics.QueueCapacityUsage = float64(inFlight) / float64(denominator) * 100.0

	recentCompleted := 0
	recentFailed := 0
	durationSum := 0.0
	durationCount := 0
	for _, item := range recent {
		switch item.Status {
		case domain.JobStatusCompleted:
			recentCompleted++
		case domain.JobStatusFailed:
			recentFailed++
		}
		if item.Computed.ProcessingDurationMinutes != nil {
			durationSum += *item.Computed.ProcessingDurationMinutes
			durationCount++
		}
		if item.Computed.IsOverdue {
			metrics.OverdueJobs++
		}
	}

	if recentCompleted+recentFailed == 0 {
		metrics.ProcessingEfficiency = 100.0
	} else {
		metrics.ProcessingEfficiency = float64(recentCompleted) / float64(recentCompleted+recentFailed) * 100.0
	}

	if durationCount > 0 {
		average := durationSum / float64(durationCount)
		metrics.AverageProcessingTimeMinutes = &average
	}

	metrics.SystemHealthScore = healthScore(metrics)
	return metrics
}

func healthScore(metrics domain.SystemMetrics) float64 {
	score := 100.0

	if metrics.ProcessingEfficiency < efficiencyTarget {
		penalty := efficiencyTarget - metrics.ProcessingEfficiency
		if penalty > maxEfficiencyPenalty {
			penalty = maxEfficiencyPenalty
		}
		score -= penalty
	}

	if metrics.AverageProcessingTimeMinutes != nil && *metrics.AverageProcessingTimeMinutes > acceptableMinutes {
		penalty := *metrics.AverageProcessingTimeMinutes - acceptableMinutes
		if penalty > maxDurationPenalty {
			penalty = maxDurationPenalty
		}
		score -= penalty
	}

	score -= overduePenalty * float64(metrics.OverdueJobs)

	if score < 0 {
		score = 0
	}
	return score
}
