package domain

import "time"

type SelectionMethod string

const (
	SelectionManual    SelectionMethod = "manual"
	SelectionSuggested SelectionMethod = "suggested"
	SelectionAPI       SelectionMethod = "api"
)

type CompetitorStatus string

const (
	CompetitorStatusPending    CompetitorStatus = "pending"
	CompetitorStatusProcessing CompetitorStatus = "processing"
	CompetitorStatusCompleted  CompetitorStatus = "completed"
	CompetitorStatusFailed     CompetitorStatus = "failed"
)

// CompetitorEntry is one comparison subject attached to a job. Usernames are
// unique within a job; inactive rows are excluded from analysis and from
// active counts but kept for history.
type CompetitorEntry struct {
	JobID           string
	Username        string
	SelectionMethod SelectionMethod
	IsActive        bool
	Status          CompetitorStatus
	ErrorMessage    string
	AddedAt         time.Time
	ProcessedAt     *time.Time
}
