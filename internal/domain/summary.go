package domain

import "time"

// OverdueThreshold is how long a job may sit in processing before the
// polling surface flags it.
const OverdueThreshold = 30 * time.Minute

// StatusCategory buckets a job status for display filtering.
func StatusCategory(status JobStatus) string {
	switch status {
	case JobStatusPending:
		return "waiting"
	case JobStatusProcessing:
		return "active"
	case JobStatusCompleted:
		return "success"
	case JobStatusFailed:
		return "error"
	case JobStatusPaused, JobStatusCancelled:
		return "warning"
	default:
		return "unknown"
	}
}

// ProgressStage buckets a progress percentage into a coarse stage label.
func ProgressStage(percentage int) string {
	switch {
	case percentage <= 0:
		return "not_started"
	case percentage < 25:
		return "initializing"
	case percentage < 50:
		return "processing"
	case percentage < 75:
		return "analyzing"
	case percentage < 100:
		return "finalizing"
	default:
		return "completed"
	}
}

// ComputedFields are derived at read time and never persisted.
type ComputedFields struct {
	ProcessingDurationMinutes *float64 `json:"processing_duration_minutes"`
	IsOverdue                 bool     `json:"is_overdue"`
	EstimatedMinutesRemaining *float64 `json:"estimated_minutes_remaining"`
	CanBeCancelled            bool     `json:"can_be_cancelled"`
	CanBeRerun                bool     `json:"can_be_rerun"`
	StatusCategory            string   `json:"status_category"`
	ProgressStage             string   `json:"progress_stage"`
}

// Compute derives the read-side fields for a job at the given instant.
func Compute(job *Job, now time.Time) ComputedFields {
	fields := ComputedFields{
		CanBeCancelled: job.CanBeCancelled(),
		CanBeRerun:     job.CanBeRerun(),
		StatusCategory: StatusCategory(job.Status),
		ProgressStage:  ProgressStage(job.ProgressPercentage),
	}

	if job.StartedProcessingAt != nil && job.CompletedAt != nil {
		minutes := job.CompletedAt.Sub(*job.StartedProcessingAt).Minutes()
		fields.ProcessingDurationMinutes = &minutes
	}

	if job.Status == JobStatusProcessing && job.StartedProcessingAt != nil {
		elapsed := now.Sub(*job.StartedProcessingAt)
		fields.IsOverdue = elapsed > OverdueThreshold

		if job.ProgressPercentage > 0 {
			remaining := elapsed.Minutes() * (100.0/float64(job.ProgressPercentage) - 1.0)
			fields.EstimatedMinutesRemaining = &remaining
		}
	}

	return fields
}

// CompetitorView is the per-subject slice of the summary projection.
type CompetitorView struct {
	Username        string           `json:"username"`
	SelectionMethod SelectionMethod  `json:"selection_method"`
	Status          CompetitorStatus `json:"processing_status"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	AddedAt         time.Time        `json:"added_at"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
}

// QueueSummary is the flattened job+competitors projection served to polling
// clients. Form-data sub-fields are promoted so clients never parse the blob.
type QueueSummary struct {
	JobID              string    `json:"job_id"`
	SessionID          string    `json:"session_id"`
	SubjectID          string    `json:"subject_id"`
	Status             JobStatus `json:"status"`
	Priority           int       `json:"priority"`
	ProgressPercentage int       `json:"progress_percentage"`
	CurrentStep        string    `json:"current_step,omitempty"`
	ErrorMessage       string    `json:"error_message,omitempty"`

	ContentType    string `json:"content_type,omitempty"`
	TargetAudience string `json:"target_audience,omitempty"`
	MainGoals      string `json:"main_goals,omitempty"`

	AutoRerunEnabled    bool `json:"auto_rerun_enabled"`
	RerunFrequencyHours int  `json:"rerun_frequency_hours"`
	TotalRuns           int  `json:"total_runs"`

	SubmittedAt         time.Time  `json:"submitted_at"`
	StartedProcessingAt *time.Time `json:"started_processing_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	LastAnalysisAt      *time.Time `json:"last_analysis_at,omitempty"`
	NextScheduledRun    *time.Time `json:"next_scheduled_run,omitempty"`

	ActiveCompetitorsCount int              `json:"active_competitors_count"`
	TotalCompetitorsCount  int              `json:"total_competitors_count"`
	Competitors            []CompetitorView `json:"competitors"`

	Computed ComputedFields `json:"computed"`
}
