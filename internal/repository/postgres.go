package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/viralideas/analysis-queue/internal/domain"
)

const jobColumns = `
	id, session_id, subject_id, form_data, status, priority,
	progress_percentage, current_step, error_message,
	auto_rerun_enabled, rerun_frequency_hours, total_runs, cancel_requested,
	submitted_at, started_processing_at, completed_at, last_analysis_at, next_scheduled_run`

// PostgresQueueRepository persists jobs and competitors in Postgres. The
// claim, progress and reschedule paths are single conditional UPDATEs so the
// row-level guarantees come straight from the database.
type PostgresQueueRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresQueueRepository(ctx context.Context, databaseURL string) (*PostgresQueueRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresQueueRepository{pool: pool}, nil
}

// NewPostgresQueueRepositoryFromPool wraps an existing pool (tests).
func NewPostgresQueueRepositoryFromPool(pool *pgxpool.Pool) *PostgresQueueRepository {
	return &PostgresQueueRepository{pool: pool}
}

func (r *PostgresQueueRepository) Close() {
	r.pool.Close()
}

func (r *PostgresQueueRepository) CreateJob(
	ctx context.Context,
	job *domain.Job,
	competitors []domain.CompetitorEntry,
) error {
	formData, err := json.Marshal(job.FormData)
	if err != nil {
		return fmt.Errorf("encode form data: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO viral_ideas_queue (
			id, session_id, subject_id, form_data, status, priority,
			progress_percentage, current_step, error_message,
			auto_rerun_enabled, rerun_frequency_hours, total_runs, cancel_requested,
			submitted_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		job.ID,
		job.SessionID,
		job.SubjectID,
		formData,
		string(job.Status),
		job.Priority,
		job.ProgressPercentage,
		job.CurrentStep,
		job.ErrorMessage,
		job.AutoRerunEnabled,
		job.RerunFrequencyHours,
		job.TotalRuns,
		job.CancelRequested,
		job.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", translateError(err))
	}

	for _, competitor := range competitors {
		_, err = tx.Exec(ctx, `
			INSERT INTO viral_ideas_competitors (
				job_id, username, selection_method, is_active,
				processing_status, error_message, added_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			job.ID,
			competitor.Username,
			string(competitor.SelectionMethod),
			competitor.IsActive,
			string(competitor.Status),
			competitor.ErrorMessage,
			competitor.AddedAt,
		)
		if err != nil {
			return fmt.Errorf("insert competitor %s: %w", competitor.Username, translateError(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit job creation: %w", err)
	}
	return nil
}

func (r *PostgresQueueRepository) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM viral_ideas_queue WHERE id = $1`, jobID)
	return scanJob(row)
}

func (r *PostgresQueueRepository) GetJobBySession(ctx context.Context, sessionID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM viral_ideas_queue WHERE session_id = $1`, sessionID)
	return scanJob(row)
}

func (r *PostgresQueueRepository) ListCompetitors(
	ctx context.Context,
	jobID string,
	activeOnly bool,
) ([]domain.CompetitorEntry, error) {
	query := `
		SELECT job_id, username, selection_method, is_active,
			processing_status, error_message, added_at, processed_at
		FROM viral_ideas_competitors
		WHERE job_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY added_at ASC, username ASC`

	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list competitors: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.CompetitorEntry, 0)
	for rows.Next() {
		var (
			entry  domain.CompetitorEntry
			method string
			status string
		)
		if err := rows.Scan(
			&entry.JobID,
			&entry.Username,
			&method,
			&entry.IsActive,
			&status,
			&entry.ErrorMessage,
			&entry.AddedAt,
			&entry.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("scan competitor: %w", err)
		}
		entry.SelectionMethod = domain.SelectionMethod(method)
		entry.Status = domain.CompetitorStatus(status)
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate competitors: %w", rows.Err())
	}
	return entries, nil
}

func (r *PostgresQueueRepository) SetCompetitorActive(
	ctx context.Context,
	jobID, username string,
	active bool,
) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE viral_ideas_competitors
		SET is_active = $3
		WHERE job_id = $1 AND username = $2
	`, jobID, username, active)
	if err != nil {
		return fmt.Errorf("toggle competitor: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresQueueRepository) UpdateCompetitorStatus(
	ctx context.Context,
	jobID, username string,
	status domain.CompetitorStatus,
	errorMessage string,
) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE viral_ideas_competitors
		SET processing_status = $3,
			error_message = $4,
			processed_at = CASE WHEN $3 IN ('completed','failed') THEN now() ELSE processed_at END
		WHERE job_id = $1 AND username = $2
	`, jobID, username, string(status), errorMessage)
	if err != nil {
		return fmt.Errorf("update competitor status: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresQueueRepository) ClaimJob(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE viral_ideas_queue
		SET status = 'processing',
			started_processing_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+jobColumns, jobID)

	job, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		return nil, r.classifyMiss(ctx, jobID)
	}
	return job, err
}

func (r *PostgresQueueRepository) UpdateProgress(
	ctx context.Context,
	jobID string,
	percentage int,
	currentStep string,
) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE viral_ideas_queue
		SET progress_percentage = $2,
			current_step = $3
		WHERE id = $1 AND status = 'processing' AND progress_percentage <= $2
	`, jobID, percentage, currentStep)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if command.RowsAffected() == 0 {
		return r.classifyMiss(ctx, jobID)
	}
	return nil
}

func (r *PostgresQueueRepository) CompleteJob(
	ctx context.Context,
	jobID string,
	outcome domain.JobStatus,
	errorMessage string,
) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE viral_ideas_queue
		SET status = $2,
			error_message = $3,
			completed_at = now(),
			current_step = '',
			progress_percentage = CASE WHEN $2 = 'completed' THEN 100 ELSE progress_percentage END,
			last_analysis_at = CASE WHEN $2 = 'completed' THEN now() ELSE last_analysis_at END,
			next_scheduled_run = CASE
				WHEN auto_rerun_enabled AND rerun_frequency_hours > 0 AND $2 <> 'cancelled'
				THEN now() + make_interval(hours => rerun_frequency_hours)
				ELSE next_scheduled_run
			END
		WHERE id = $1 AND status IN ('pending','processing')
		RETURNING `+jobColumns, jobID, string(outcome), errorMessage)

	job, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		return nil, r.classifyMiss(ctx, jobID)
	}
	return job, err
}

func (r *PostgresQueueRepository) RequestCancel(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE viral_ideas_queue
		SET cancel_requested = TRUE
		WHERE id = $1 AND status IN ('pending','processing')
		RETURNING `+jobColumns, jobID)

	job, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		return nil, r.classifyMiss(ctx, jobID)
	}
	return job, err
}

func (r *PostgresQueueRepository) RescheduleForRerun(ctx context.Context, jobID string) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE viral_ideas_queue
		SET status = 'pending',
			total_runs = total_runs + 1,
			progress_percentage = 0,
			current_step = '',
			error_message = '',
			cancel_requested = FALSE,
			started_processing_at = NULL,
			completed_at = NULL,
			next_scheduled_run = NULL
		WHERE id = $1 AND status IN ('completed','failed') AND auto_rerun_enabled
	`, jobID)
	if err != nil {
		return fmt.Errorf("reschedule for rerun: %w", err)
	}
	if command.RowsAffected() == 0 {
		return r.classifyMiss(ctx, jobID)
	}
	return nil
}

func (r *PostgresQueueRepository) ListPending(ctx context.Context) ([]domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM viral_ideas_queue
		WHERE status = 'pending'
		ORDER BY priority ASC, submitted_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return collectJobs(rows)
}

func (r *PostgresQueueRepository) ListDueForRerun(ctx context.Context) ([]domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM viral_ideas_queue
		WHERE status IN ('completed','failed')
			AND auto_rerun_enabled
			AND next_scheduled_run IS NOT NULL
			AND next_scheduled_run <= now()
		ORDER BY next_scheduled_run ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list due for rerun: %w", err)
	}
	return collectJobs(rows)
}

func (r *PostgresQueueRepository) ListRecent(ctx context.Context, limit int) ([]RecentJob, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`,
			(SELECT COUNT(*) FROM viral_ideas_competitors c
				WHERE c.job_id = viral_ideas_queue.id AND c.is_active) AS active_competitors
		FROM viral_ideas_queue
		ORDER BY submitted_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	defer rows.Close()

	recent := make([]RecentJob, 0, limit)
	for rows.Next() {
		var item RecentJob
		if err := scanJobFields(rows, &item.Job, &item.ActiveCompetitors); err != nil {
			return nil, fmt.Errorf("scan recent job: %w", err)
		}
		recent = append(recent, item)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate recent jobs: %w", rows.Err())
	}
	return recent, nil
}

func (r *PostgresQueueRepository) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM viral_ideas_queue
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.JobStatus(status)] = count
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate status counts: %w", rows.Err())
	}
	return counts, nil
}

// classifyMiss distinguishes a conditional-update miss caused by a missing row
// from one caused by a failed state precondition.
func (r *PostgresQueueRepository) classifyMiss(ctx context.Context, jobID string) error {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM viral_ideas_queue WHERE id = $1)`, jobID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("classify update miss: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := scanJobFields(row, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func scanJobFields(row pgx.Row, job *domain.Job, extra ...any) error {
	var (
		formData []byte
		status   string
	)
	targets := []any{
		&job.ID,
		&job.SessionID,
		&job.SubjectID,
		&formData,
		&status,
		&job.Priority,
		&job.ProgressPercentage,
		&job.CurrentStep,
		&job.ErrorMessage,
		&job.AutoRerunEnabled,
		&job.RerunFrequencyHours,
		&job.TotalRuns,
		&job.CancelRequested,
		&job.SubmittedAt,
		&job.StartedProcessingAt,
		&job.CompletedAt,
		&job.LastAnalysisAt,
		&job.NextScheduledRun,
	}
	targets = append(targets, extra...)

	if err := row.Scan(targets...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan job: %w", err)
	}

	job.Status = domain.JobStatus(status)
	if len(formData) > 0 {
		if err := json.Unmarshal(formData, &job.FormData); err != nil {
			return fmt.Errorf("decode form data: %w", err)
		}
	}
	normalizeTimes(job)
	return nil
}

func collectJobs(rows pgx.Rows) ([]domain.Job, error) {
	defer rows.Close()

	jobs := make([]domain.Job, 0)
	for rows.Next() {
		var job domain.Job
		if err := scanJobFields(rows, &job); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate jobs: %w", rows.Err())
	}
	return jobs, nil
}

func normalizeTimes(job *domain.Job) {
	job.SubmittedAt = job.SubmittedAt.UTC()
	for _, value := range []*time.Time{
		job.StartedProcessingAt,
		job.CompletedAt,
		job.LastAnalysisAt,
		job.NextScheduledRun,
	} {
		if value != nil {
			*value = value.UTC()
		}
	}
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
