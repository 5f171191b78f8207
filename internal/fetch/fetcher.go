package fetch

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/lifecycle-service/internal/config"
	"github.com/spec-kit/lifecycle-service/internal/domain"
	"github.com/spec-kit/lifecycle-service/internal/observability"
	"github.com/spec-kit/lifecycle-service/internal/ticketsource"
)

// Fetcher pulls every page of matching tickets from the service desk
// concurrently and deduplicates the combined result.
type Fetcher struct {
	source  ticketsource.Source
	cfg     config.FetchConfig
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewFetcher builds a fetcher over the given source.
func NewFetcher(source ticketsource.Source, cfg config.FetchConfig, metrics *observability.Metrics, logger *zap.Logger) *Fetcher {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 60
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 15
	}
	return &Fetcher{source: source, cfg: cfg, metrics: metrics, logger: logger}
}

// FetchAll retrieves up to MaxPages pages, Concurrency at a time, and merges
// them into one deduplicated slice ordered by ticket id. Pages are fetched in
// waves; the first wave that yields an empty page ends the fetch, since the
// source pads no gaps between populated pages. A page that fails after its
// retry budget contributes nothing and is logged, not fatal: a partial batch
// is more useful than none.
func (f *Fetcher) FetchAll(ctx context.Context, filter ticketsource.ListFilter, pageSize int) ([]*domain.RawTicket, error) {
	var (
		mu       sync.Mutex
		seen     = make(map[string]*domain.RawTicket)
		deduped  int
		sawEmpty bool
	)

	for start := 1; start <= f.cfg.MaxPages && !sawEmpty; start += f.cfg.Concurrency {
		end := start + f.cfg.Concurrency - 1
		if end > f.cfg.MaxPages {
			end = f.cfg.MaxPages
		}

		group, groupCtx := errgroup.WithContext(ctx)
		for page := start; page <= end; page++ {
			page := page
			group.Go(func() error {
				tickets, err := f.source.ListPage(groupCtx, filter, page, pageSize)
				if err != nil {
					f.metrics.Inc(observability.MetricPagesFailed)
					f.logger.Warn("page fetch failed, skipping",
						zap.Int("page", page),
						zap.Error(err))
					return nil
				}
				f.metrics.Inc(observability.MetricPagesFetched)

				mu.Lock()
				defer mu.Unlock()
				if len(tickets) == 0 {
					sawEmpty = true
					return nil
				}
				for _, ticket := range tickets {
					if _, dup := seen[ticket.ID]; dup {
						deduped++
						continue
					}
					seen[ticket.ID] = ticket
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	tickets := make([]*domain.RawTicket, 0, len(seen))
	for _, ticket := range seen {
		tickets = append(tickets, ticket)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].ID < tickets[j].ID })

	f.metrics.Add(observability.MetricTicketsFetched, int64(len(tickets)))
	f.metrics.Add(observability.MetricTicketsDeduped, int64(deduped))
	f.logger.Info("fetch complete",
		zap.Int("tickets", len(tickets)),
		zap.Int("duplicates_dropped", deduped))
	return tickets, nil
}

// FetchActionable retrieves all tickets and keeps only those in a state the
// pipeline may act on.
func (f *Fetcher) FetchActionable(ctx context.Context, filter ticketsource.ListFilter, pageSize int) ([]*domain.RawTicket, error) {
	tickets, err := f.FetchAll(ctx, filter, pageSize)
	if err != nil {
		return nil, err
	}
	actionable := tickets[:0]
	for _, ticket := range tickets {
		if ticket.Actionable() {
			actionable = append(actionable, ticket)
		}
	}
	return actionable, nil
}
