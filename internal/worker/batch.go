package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/lifecycle-service/internal/config"
	"github.com/spec-kit/lifecycle-service/internal/domain"
	"github.com/spec-kit/lifecycle-service/internal/events"
	"github.com/spec-kit/lifecycle-service/internal/fetch"
	"github.com/spec-kit/lifecycle-service/internal/orchestrate"
	"github.com/spec-kit/lifecycle-service/internal/repository"
	"github.com/spec-kit/lifecycle-service/internal/resolve"
	"github.com/spec-kit/lifecycle-service/internal/ticketsource"
)

// CacheClearer drops memoized lookups between batches.
type CacheClearer interface {
	ClearCaches()
}

// BatchReport summarizes one batch run.
type BatchReport struct {
	TicketsFetched int
	RunsExecuted   int
	RunsSucceeded  int
	RunsFailed     int
	StartedAt      time.Time
	Duration       time.Duration
	Outcomes       []*domain.TerminationOutcome
}

// BatchRunner executes the full pipeline: fetch actionable tickets, parse
// them into termination records, then run the phase plan for each record
// with bounded concurrency. Runs for different employees proceed in
// parallel; phases within one run stay sequential.
type BatchRunner struct {
	fetcher      *fetch.Fetcher
	resolver     *resolve.Resolver
	orchestrator *orchestrate.Orchestrator
	runs         repository.RunRepository
	events       *events.Dispatcher
	caches       CacheClearer
	srcCfg       config.TicketSourceConfig
	concurrency  int
	logger       *zap.Logger
}

// NewBatchRunner wires the pipeline stages together.
func NewBatchRunner(
	fetcher *fetch.Fetcher,
	resolver *resolve.Resolver,
	orchestrator *orchestrate.Orchestrator,
	runs repository.RunRepository,
	dispatcher *events.Dispatcher,
	caches CacheClearer,
	srcCfg config.TicketSourceConfig,
	concurrency int,
	logger *zap.Logger,
) *BatchRunner {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &BatchRunner{
		fetcher:      fetcher,
		resolver:     resolver,
		orchestrator: orchestrator,
		runs:         runs,
		events:       dispatcher,
		caches:       caches,
		srcCfg:       srcCfg,
		concurrency:  concurrency,
		logger:       logger,
	}
}

// RunBatch processes every actionable termination ticket once.
func (b *BatchRunner) RunBatch(ctx context.Context) (*BatchReport, error) {
	report := &BatchReport{StartedAt: time.Now()}

	filter := ticketsource.ListFilter{SubcategoryID: b.srcCfg.TerminationCategoryID}
	tickets, err := b.fetcher.FetchActionable(ctx, filter, b.srcCfg.PageSize)
	if err != nil {
		return nil, err
	}
	report.TicketsFetched = len(tickets)
	b.logger.Info("batch fetched actionable tickets", zap.Int("count", len(tickets)))

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(b.concurrency)
	for _, ticket := range tickets {
		ticket := ticket
		group.Go(func() error {
			record := b.resolver.BuildRecord(ticket)
			outcome := b.orchestrator.Run(groupCtx, record)
			if b.runs != nil {
				if err := b.runs.SaveOutcome(groupCtx, outcome); err != nil {
					b.logger.Warn("failed to persist run outcome",
						zap.String("run_id", outcome.RunID),
						zap.Error(err))
				}
			}
			mu.Lock()
			defer mu.Unlock()
			report.RunsExecuted++
			if outcome.OverallSuccess {
				report.RunsSucceeded++
			} else {
				report.RunsFailed++
			}
			report.Outcomes = append(report.Outcomes, outcome)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	if b.caches != nil {
		b.caches.ClearCaches()
	}
	report.Duration = time.Since(report.StartedAt)
	if b.events != nil {
		b.events.Publish(events.Event{
			Type:    events.BatchCompleted,
			Success: report.RunsFailed == 0,
			Payload: map[string]any{
				"tickets":   report.TicketsFetched,
				"executed":  report.RunsExecuted,
				"succeeded": report.RunsSucceeded,
				"failed":    report.RunsFailed,
			},
		})
	}
	b.logger.Info("batch complete",
		zap.Int("executed", report.RunsExecuted),
		zap.Int("succeeded", report.RunsSucceeded),
		zap.Int("failed", report.RunsFailed),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// RunOne processes a single ticket by id, regardless of batch state.
func (b *BatchRunner) RunOne(ctx context.Context, source ticketsource.Source, ticketID string) (*domain.TerminationOutcome, error) {
	ticket, err := source.GetOne(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	record := b.resolver.BuildRecord(ticket)
	outcome := b.orchestrator.Run(ctx, record)
	if b.runs != nil {
		if err := b.runs.SaveOutcome(ctx, outcome); err != nil {
			b.logger.Warn("failed to persist run outcome",
				zap.String("run_id", outcome.RunID),
				zap.Error(err))
		}
	}
	return outcome, nil
}
