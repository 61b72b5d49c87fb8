package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viralideas/analysis-queue/internal/domain"
)

// ErrCancelled is returned by a Reporter when the job it reports against has
// been flagged for cancellation. Analyzers must stop at the next step boundary
// and propagate it.
var ErrCancelled = errors.New("analysis cancelled")

// Reporter is how a running analysis surfaces progress back to the queue.
// Progress returns ErrCancelled once cancellation has been requested;
// competitor updates are fire-and-forget.
type Reporter interface {
	Progress(ctx context.Context, percentage int, step string) error
	Competitor(ctx context.Context, username string, status domain.CompetitorStatus, errorMessage string)
}

// Analyzer runs the content analysis for one claimed job. Implementations
// report progress at every step boundary and walk each competitor through its
// status lifecycle via the reporter.
type Analyzer interface {
	Analyze(ctx context.Context, job domain.Job, competitors []domain.CompetitorEntry, report Reporter) error
}

// ScriptedAnalyzer is the built-in pipeline stand-in. It walks the step
// sequence a real analysis run reports, flipping each competitor through its
// lifecycle, without calling any external service.
type ScriptedAnalyzer struct {
	// StepDelay is the pause between reported steps. Zero runs the whole
	// script immediately, which is what tests want.
	StepDelay time.Duration
}

func (a *ScriptedAnalyzer) Analyze(
	ctx context.Context,
	job domain.Job,
	competitors []domain.CompetitorEntry,
	report Reporter,
) error {
	openingSteps := []struct {
		pct  int
		step string
	}{
		{5, "fetching profile data"},
		{15, "extracting hooks"},
	}
	for _, s := range openingSteps {
		if err := a.step(ctx, report, s.pct, s.step); err != nil {
			return err
		}
	}

	for i, competitor := range competitors {
		report.Competitor(ctx, competitor.Username, domain.CompetitorStatusProcessing, "")
		pct := 15 + (i+1)*55/len(competitors)
		err := a.step(ctx, report, pct, fmt.Sprintf("analyzing @%s", competitor.Username))
		if err != nil {
			report.Competitor(ctx, competitor.Username, domain.CompetitorStatusFailed, err.Error())
			return err
		}
		report.Competitor(ctx, competitor.Username, domain.CompetitorStatusCompleted, "")
	}

	closingSteps := []struct {
		pct  int
		step string
	}{
		{80, "ranking hooks"},
		{95, "generating scripts"},
	}
	for _, s := range closingSteps {
		if err := a.step(ctx, report, s.pct, s.step); err != nil {
			return err
		}
	}
	return nil
}

func (a *ScriptedAnalyzer) step(ctx context.Context, report Reporter, pct int, step string) error {
	if a.StepDelay > 0 {
		timer := time.NewTimer(a.StepDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}
	return report.Progress(ctx, pct, step)
}
