package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralideas/analysis-queue/internal/domain"
)

func newTestJob(sessionID string) *domain.Job {
	return &domain.Job{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		SubjectID: "creator_one",
		Status:    domain.JobStatusPending,
		Priority:  domain.DefaultPriority,
		FormData: domain.FormData{
			ContentType:    "reels",
			TargetAudience: "creators",
		},
		SubmittedAt: time.Now().UTC(),
	}
}

func newTestCompetitors(usernames ...string) []domain.CompetitorEntry {
	entries := make([]domain.CompetitorEntry, 0, len(usernames))
	for _, username := range usernames {
		entries = append(entries, domain.CompetitorEntry{
			Username:        username,
			SelectionMethod: domain.SelectionManual,
			IsActive:        true,
			Status:          domain.CompetitorStatusPending,
			AddedAt:         time.Now().UTC(),
		})
	}
	return entries
}

func TestCreateJobWithCompetitors(t *testing.T) {
	repo := NewMemoryQueueRepository()
	ctx := context.Background()

	job := newTestJob("session-1")
	require.NoError(t, repo.CreateJob(ctx, job, newTestCompetitors("rival_a", "rival_b")))

	stored, err := repo.GetJobBySession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, stored.ID)
	assert.Equal(t, domain.JobStatusPending, stored.Status)

	competitors, err := repo.ListCompetitors(ctx, job.ID, false)
	require.NoError(t, err)
	assert.Len(t, competitors, 2)
}

func TestCreateJobRejectsDuplicateUsernames(t *testing.T) {
	repo := NewMemoryQueueRepository()
	ctx := context.Background()

	job := newTestJob("session-dup")
	err := repo.CreateJob(ctx, job, newTestCompetitors("rival_a", "rival_a"))
	require.ErrorIs(t, err, ErrDuplicate)

	// Atomicity: the failed creation must not leave the job behind.
	_, err = repo.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetJobBySession(ctx, "session-dup")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateJobRejectsDuplicateSession(t *testing.T) {
	repo := NewMemoryQueueRepository()
	ctx := context.Background()

	require.NoError(t, repo.CreateJob(ctx, newTestJob("session-same"), nil))
	err := repo.CreateJob(ctx, newTestJob("session-same"), nil)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestClaimJobExactlyOnce(t *testing.T) {
	repo := NewMemoryQueueRepository()
	ctx := context.Background()

	job := newTestJob("session-claim")
	require.NoError(t, repo.CreateJob(ctx, job, nil))

	const racers = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	conflicts := make(chan struct{}, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := repo.ClaimJob(ctx, job.ID)
			switch {
			case err == nil:
				wins <- struct{}{}
				assert.Equal(t, domain.JobStatusProcessing, claimed.Status)
				assert.NotNil(t, claimed.StartedProcessingAt)
			default:
				assert.ErrorIs(t, err, ErrConflict)
				conflicts <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)
	close(conflicts)

	assert.Equal(t, 1, len(wins), "exactly one claimer must win")
	assert.Equal(t, racers-1, len(conflicts))
}

func TestClaimJobUnknownID(t *testing.T) {
	repo := NewMemoryQueueRepository()
	_, err := repo.ClaimJob(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProgressMonotonic(t *testing.T) {
	repo := NewMemoryQueueRepository()
	ctx := context.Background()

	job := newTestJob("session-progress")
	require.NoError(t, repo.CreateJob(ctx, job, nil))
	_, err := repo.ClaimJob(ctx, job.ID)
	require.NoError(t, err)

	require.NoError(t, repo.UpdateProgress(ctx, job.ID, 40, "Extracting hooks"))
	require.NoError(t, repo.UpdateProgress(ctx, job.ID, 40, "Extracting hooks"))

	// A stale report must be rejected without touching the stored value.
	err = repo.UpdateProgress(ctx, job.ID, 25, "Old step")
	assert.ErrorIs(t, err, ErrConflict)

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, stored.ProgressPercentage)
	assert.Equal(t, "Extracting hooks", stored.CurrentStep)
}

func TestUpdateProgressRequiresProcessing(t *testing.T) {
	repo := NewMemoryQueueRepository()
	ctx := context.Background()

	job := newTestJob("session-pending-progress")
	require.NoError(t, repo.CreateJob(ctx, job, nil))

	err := repo.UpdateProgress(ctx, job.ID, 10, "step")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCompleteJobSuccess(t *testing.T) {
	repo := NewMemoryQueueRepository()
	ctx := context.Background()

	job := newTestJob("session-complete")
	job.AutoRerunEnabled = true
	job.RerunFrequencyHours = 24
	require.NoError(t, repo.CreateJob(ctx, job, nil))
	_, err := repo.ClaimJob(ctx, job.ID)
	require.NoError(t, err)

	done, err := repo.CompleteJob(ctx, job.ID, domain.JobStatusCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
	assert.Equal(t, 100, done.ProgressPercentage)
	assert.Empty(t, done.CurrentStep)
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.LastAnalysisAt)
	require.NotNil(t, done.NextScheduledRun, "auto-rerun jobs get their next run scheduled")

	// Terminal jobs cannot be completed again.
	_, err = repo.CompleteJob(ctx, job.ID, domain.JobStatusFailed, "late")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCompleteJobFailureKeepsProgress(t *testing.T) {
	repo := NewMemoryQueueRepository()
	ctx := context.Background()

	job := newTestJob("session-fail")
	require.NoError(t, repo.CreateJob(ctx, job, nil))
	_, err := repo.ClaimJob(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateProgress(ctx, job.ID, 60, "Generating scripts"))

	failed, err := repo.CompleteJob(ctx, job.ID, domain.JobStatusFailed, "profile fetch failed")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, failed.Status)
	assert.Equal(t, 60, failed.ProgressPercentage)
	assert.Equal(t, "profile fetch failed", failed.ErrorMessage)
	assert.Nil(t, failed.LastAnalysisAt)
}

func TestRescheduleForRerun(t *testing.T) {
	repo := NewMemoryQueueRepository()
	ctx := context.Background()

	job := newTestJob("session-rerun")
	job.AutoRerunEnabled = true
	job.RerunFrequencyHours = 1
	require.NoError(t, repo.CreateJob(ctx, job, nil))
	_, err := repo.ClaimJob(ctx, job.ID)
	require.NoError(t, err)
	_, err = repo.CompleteJob(ctx, job.ID, domain.JobStatusFailed, "boom")
	require.NoError(t, err)

	require.NoError(t, repo.RescheduleForRerun(ctx, job.ID))

	rerun, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, rerun.Status)
	assert.Equal(t, 1, rerun.TotalRuns)
	assert.Zero(t, rerun.ProgressPercentage)
	assert.Empty(t, rerun.ErrorMessage)
	assert.Nil(t, rerun.StartedProcessingAt)
	assert.Nil(t, rerun.CompletedAt)

	// A second reschedule races against the first and must lose.
	err = repo.RescheduleForRerun(ctx, job.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRequestCancel(t *testing.T) {
	repo := NewMemoryQueueRepository()
	ctx := context.Background()

	job := newTestJob("session-cancel")
	require.NoError(t, repo.CreateJob(ctx, job, nil))

	flagged, err := repo.RequestCancel(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, flagged.CancelRequested)

	_, err = repo.ClaimJob(ctx, job.ID)
	require.NoError(t, err)
	_, err = repo.CompleteJob(ctx, job.ID, domain.JobStatusCancelled, "cancelled by user")
	require.NoError(t, err)

	_, err = repo.RequestCancel(ctx, job.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestListPendingOrdering(t *testing.T) {
	repo := NewMemoryQueueRepository()
	ctx := context.Background()

	base := time.Now().UTC()
	for i, tc := range []struct {
		session  string
		priority int
		offset   time.Duration
	}{
		{"s-late-low", 7, 0},
		{"s-early-low", 7, -2 * time.Minute},
		{"s-high", 1, -1 * time.Minute},
	} {
		job := newTestJob(tc.session)
		job.Priority = tc.priority
		job.SubmittedAt = base.Add(tc.offset)
		require.NoError(t, repo.CreateJob(ctx, job, nil), "job %d", i)
	}

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "s-high", pending[0].SessionID)
	assert.Equal(t, "s-early-low", pending[1].SessionID)
	assert.Equal(t, "s-late-low", pending[2].SessionID)
}

func TestListRecentWithActiveCounts(t *testing.T) {
	repo := NewMemoryQueueRepository()
	ctx := context.Background()

	older := newTestJob("session-older")
	older.SubmittedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.CreateJob(ctx, older, newTestCompetitors("a", "b", "c")))
	require.NoError(t, repo.SetCompetitorActive(ctx, older.ID, "c", false))

	newer := newTestJob("session-newer")
	require.NoError(t, repo.CreateJob(ctx, newer, nil))

	recent, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, newer.ID, recent[0].Job.ID, "newest first")
	assert.Zero(t, recent[0].ActiveCompetitors)
	assert.Equal(t, 2, recent[1].ActiveCompetitors)
}

func TestCountByStatus(t *testing.T) {
	repo := NewMemoryQueueRepository()
	ctx := context.Background()

	first := newTestJob("session-count-1")
	second := newTestJob("session-count-2")
	require.NoError(t, repo.CreateJob(ctx, first, nil))
	require.NoError(t, repo.CreateJob(ctx, second, nil))
	_, err := repo.ClaimJob(ctx, second.ID)
	require.NoError(t, err)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.JobStatusPending])
	assert.Equal(t, 1, counts[domain.JobStatusProcessing])
}

func TestCompetitorStatusUpdates(t *testing.T) {
	repo := NewMemoryQueueRepository()
	ctx := context.Background()

	job := newTestJob("session-competitors")
	require.NoError(t, repo.CreateJob(ctx, job, newTestCompetitors("rival_a")))

	require.NoError(t, repo.UpdateCompetitorStatus(ctx, job.ID, "rival_a", domain.CompetitorStatusCompleted, ""))

	competitors, err := repo.ListCompetitors(ctx, job.ID, true)
	require.NoError(t, err)
	require.Len(t, competitors, 1)
	assert.Equal(t, domain.CompetitorStatusCompleted, competitors[0].Status)
	assert.NotNil(t, competitors[0].ProcessedAt)

	err = repo.UpdateCompetitorStatus(ctx, job.ID, "ghost", domain.CompetitorStatusFailed, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}
