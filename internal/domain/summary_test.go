package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCategory(t *testing.T) {
	cases := map[JobStatus]string{
		JobStatusPending:    "waiting",
		JobStatusProcessing: "active",
		JobStatusCompleted:  "success",
		JobStatusFailed:     "error",
		JobStatusPaused:     "warning",
		JobStatusCancelled:  "warning",
		JobStatus("bogus"):  "unknown",
	}
	for status, expected := range cases {
		assert.Equal(t, expected, StatusCategory(status), "status %s", status)
	}
}

func TestProgressStage(t *testing.T) {
	cases := []struct {
		percentage int
		expected   string
	}{
		{-5, "not_started"},
		{0, "not_started"},
		{1, "initializing"},
		{24, "initializing"},
		{25, "processing"},
		{49, "processing"},
		{50, "analyzing"},
		{74, "analyzing"},
		{75, "finalizing"},
		{99, "finalizing"},
		{100, "completed"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, ProgressStage(tc.percentage), "percentage %d", tc.percentage)
	}
}

func TestComputeOverdueBoundary(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	started := now.Add(-OverdueThreshold)
	job := &Job{Status: JobStatusProcessing, ProgressPercentage: 10, StartedProcessingAt: &started}
	assert.False(t, Compute(job, now).IsOverdue, "exactly at threshold is not overdue")

	started = now.Add(-OverdueThreshold - time.Second)
	job.StartedProcessingAt = &started
	assert.True(t, Compute(job, now).IsOverdue)

	// Non-processing jobs are never overdue, regardless of elapsed time.
	old := now.Add(-3 * time.Hour)
	for _, status := range []JobStatus{JobStatusPending, JobStatusCompleted, JobStatusFailed, JobStatusPaused} {
		job := &Job{Status: status, StartedProcessingAt: &old}
		assert.False(t, Compute(job, now).IsOverdue, "status %s", status)
	}
}

func TestComputeEstimatedRemaining(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	started := now.Add(-10 * time.Minute)

	job := &Job{Status: JobStatusProcessing, ProgressPercentage: 50, StartedProcessingAt: &started}
	fields := Compute(job, now)
	require.NotNil(t, fields.EstimatedMinutesRemaining)
	assert.InDelta(t, 10.0, *fields.EstimatedMinutesRemaining, 0.001)

	job.ProgressPercentage = 0
	assert.Nil(t, Compute(job, now).EstimatedMinutesRemaining)

	job.ProgressPercentage = 50
	job.Status = JobStatusCompleted
	assert.Nil(t, Compute(job, now).EstimatedMinutesRemaining)
}

func TestComputeProcessingDuration(t *testing.T) {
	now := time.Now().UTC()
	started := now.Add(-25 * time.Minute)
	completed := started.Add(20 * time.Minute)

	job := &Job{Status: JobStatusCompleted, StartedProcessingAt: &started, CompletedAt: &completed}
	fields := Compute(job, now)
	require.NotNil(t, fields.ProcessingDurationMinutes)
	assert.InDelta(t, 20.0, *fields.ProcessingDurationMinutes, 0.001)

	job.CompletedAt = nil
	assert.Nil(t, Compute(job, now).ProcessingDurationMinutes)
}

func TestComputeActionFlags(t *testing.T) {
	for _, tc := range []struct {
		status    JobStatus
		cancel    bool
		rerun     bool
	}{
		{JobStatusPending, true, false},
		{JobStatusProcessing, true, false},
		{JobStatusCompleted, false, true},
		{JobStatusFailed, false, true},
		{JobStatusPaused, false, false},
		{JobStatusCancelled, false, false},
	} {
		job := &Job{Status: tc.status}
		fields := Compute(job, time.Now().UTC())
		assert.Equal(t, tc.cancel, fields.CanBeCancelled, "cancel %s", tc.status)
		assert.Equal(t, tc.rerun, fields.CanBeRerun, "rerun %s", tc.status)
	}
}
