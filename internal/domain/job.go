package domain

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusPaused     JobStatus = "paused"
	JobStatusCancelled  JobStatus = "cancelled"
)

// DefaultPriority is advisory. Lower values dequeue first; 5 is the midpoint.
const DefaultPriority = 5

// Job is one submitted viral-ideas analysis request and its lifecycle state.
// Rows are mutated only by the queue service (transitions) and the analysis
// worker (progress, terminal outcome); the aggregators read, never write.
type Job struct {
	ID                 string
	SessionID          string
	SubjectID          string
	FormData           FormData
	Status             JobStatus
	Priority           int
	ProgressPercentage int
	CurrentStep        string
	ErrorMessage       string

	AutoRerunEnabled    bool
	RerunFrequencyHours int
	TotalRuns           int

	CancelRequested bool

	SubmittedAt         time.Time
	StartedProcessingAt *time.Time
	CompletedAt         *time.Time
	LastAnalysisAt      *time.Time
	NextScheduledRun    *time.Time
}

// Terminal reports whether the status admits no further worker activity.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

func (j *Job) CanBeCancelled() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusProcessing
}

func (j *Job) CanBeRerun() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// QueueMessage is the transport format handed to queue backends when a
// pending job is drained or signalled for pickup.
type QueueMessage struct {
	JobID       string    `json:"job_id"`
	SessionID   string    `json:"session_id"`
	SubjectID   string    `json:"subject_id"`
	Attempt     int       `json:"attempt"`
	RequestedAt time.Time `json:"requested_at"`
}
