package domain

import "time"

// RecentItem is one row of the system-status view: a recently submitted job
// annotated with the same computed fields served on the polling path.
type RecentItem struct {
	JobID                  string         `json:"job_id"`
	SessionID              string         `json:"session_id"`
	SubjectID              string         `json:"subject_id"`
	Status                 JobStatus      `json:"status"`
	ProgressPercentage     int            `json:"progress_percentage"`
	CurrentStep            string         `json:"current_step,omitempty"`
	SubmittedAt            time.Time      `json:"submitted_at"`
	ActiveCompetitorsCount int            `json:"active_competitors_count"`
	Computed               ComputedFields `json:"computed"`
}

// SystemMetrics are derived over the status counts and the recent window.
type SystemMetrics struct {
	QueueCapacityUsage           float64  `json:"queue_capacity_usage"`
	ProcessingEfficiency         float64  `json:"processing_efficiency"`
	AverageProcessingTimeMinutes *float64 `json:"average_processing_time_minutes"`
	OverdueJobs                  int      `json:"overdue_jobs"`
	SystemHealthScore            float64  `json:"system_health_score"`
}

// SystemStatus is the aggregate health view of the whole queue.
type SystemStatus struct {
	Counts      map[JobStatus]int `json:"counts"`
	Total       int               `json:"total"`
	RecentItems []RecentItem      `json:"recent_items"`
	Metrics     SystemMetrics     `json:"metrics"`
	GeneratedAt time.Time         `json:"generated_at"`
}
