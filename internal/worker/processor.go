package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/viralideas/analysis-queue/internal/domain"
	"github.com/viralideas/analysis-queue/internal/queue"
	"github.com/viralideas/analysis-queue/internal/repository"
)

// Processor consumes pickup signals and drives claimed jobs through analysis.
type Processor struct {
	consumer queue.Consumer
	repo     repository.QueueRepository
	analyzer Analyzer
	logger   *log.Logger
	workers  int
}

func NewProcessor(
	consumer queue.Consumer,
	repo repository.QueueRepository,
	analyzer Analyzer,
	workers int,
	logger *log.Logger,
) *Processor {
	if workers < 1 {
		workers = 1
	}
	return &Processor{
		consumer: consumer,
		repo:     repo,
		analyzer: analyzer,
		logger:   logger,
		workers:  workers,
	}
}

// Start runs the worker pool and blocks until the context is cancelled and
// every worker has drained.
func (p *Processor) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.consumeLoop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Processor) consumeLoop(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.processMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		if p.logger != nil {
			p.logger.Printf("worker consume loop error worker=%d: %v", id, err)
		}

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Processor) processMessage(ctx context.Context, message domain.QueueMessage) error {
	job, err := p.repo.GetJob(ctx, message.JobID)
	if errors.Is(err, repository.ErrNotFound) {
		p.logf("pickup dropped, job gone job_id=%s", message.JobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job %s: %w", message.JobID, err)
	}
	if job.Status != domain.JobStatusPending {
		// Stale signal: the job was already claimed, cancelled before pickup,
		// or rescheduled under a fresh signal.
		p.logf("pickup skipped job_id=%s status=%s", job.ID, job.Status)
		return nil
	}

	job, err = p.repo.ClaimJob(ctx, message.JobID)
	if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
		p.logf("claim lost job_id=%s: %v", message.JobID, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim job %s: %w", message.JobID, err)
	}

	competitors, err := p.repo.ListCompetitors(ctx, job.ID, true)
	if err != nil {
		p.finalize(ctx, job.ID, domain.JobStatusFailed, fmt.Sprintf("load competitors: %v", err))
		return nil
	}

	report := &jobReporter{processor: p, jobID: job.ID}
	analysisErr := p.analyzer.Analyze(ctx, *job, competitors, report)
	switch {
	case analysisErr == nil:
		p.finalize(ctx, job.ID, domain.JobStatusCompleted, "")
		p.logf("job completed job_id=%s session_id=%s", job.ID, job.SessionID)
	case errors.Is(analysisErr, ErrCancelled):
		p.finalize(ctx, job.ID, domain.JobStatusCancelled, "cancelled during processing")
		p.logf("job cancelled job_id=%s", job.ID)
	default:
		p.finalize(ctx, job.ID, domain.JobStatusFailed, analysisErr.Error())
		p.logf("job failed job_id=%s: %v", job.ID, analysisErr)
	}
	return nil
}

// finalize records the terminal outcome. Reports against jobs that already
// left processing are logged and dropped so a lost race never poisons the
// consume loop.
func (p *Processor) finalize(ctx context.Context, jobID string, outcome domain.JobStatus, errorMessage string) {
	_, err := p.repo.CompleteJob(ctx, jobID, outcome, errorMessage)
	if err == nil {
		return
	}
	if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
		p.logf("terminal report dropped job_id=%s outcome=%s: %v", jobID, outcome, err)
		return
	}
	p.logf("terminal report failed job_id=%s outcome=%s: %v", jobID, outcome, err)
}

func (p *Processor) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

// jobReporter is the per-message Reporter handed to the analyzer. Progress
// piggybacks the cancellation check: every report re-reads the job so a
// cancel flag set mid-run stops the analyzer at the next step boundary.
type jobReporter struct {
	processor *Processor
	jobID     string
}

func (r *jobReporter) Progress(ctx context.Context, percentage int, step string) error {
	current, err := r.processor.repo.GetJob(ctx, r.jobID)
	if errors.Is(err, repository.ErrNotFound) {
		r.processor.logf("progress report dropped, job gone job_id=%s", r.jobID)
		return ErrCancelled
	}
	if err != nil {
		return err
	}
	if current.CancelRequested || current.Status != domain.JobStatusProcessing {
		return ErrCancelled
	}

	err = r.processor.repo.UpdateProgress(ctx, r.jobID, percentage, step)
	if errors.Is(err, repository.ErrConflict) {
		r.processor.logf("progress report dropped job_id=%s pct=%d: %v", r.jobID, percentage, err)
		return nil
	}
	return err
}

func (r *jobReporter) Competitor(ctx context.Context, username string, status domain.CompetitorStatus, errorMessage string) {
	err := r.processor.repo.UpdateCompetitorStatus(ctx, r.jobID, username, status, errorMessage)
	if err != nil {
		r.processor.logf("competitor report dropped job_id=%s username=%s: %v", r.jobID, username, err)
	}
}
