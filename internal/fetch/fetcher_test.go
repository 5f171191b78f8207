package fetch

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-service/internal/config"
	"github.com/spec-kit/lifecycle-service/internal/domain"
	"github.com/spec-kit/lifecycle-service/internal/observability"
	"github.com/spec-kit/lifecycle-service/internal/ticketsource"
	"github.com/spec-kit/lifecycle-service/pkg/util"
)

type fakeSource struct {
	mu       sync.Mutex
	pages    map[int][]*domain.RawTicket
	failures map[int]error
	calls    []int
}

func (f *fakeSource) ListPage(_ context.Context, _ ticketsource.ListFilter, page, _ int) ([]*domain.RawTicket, error) {
	f.mu.Lock()
	f.calls = append(f.calls, page)
	f.mu.Unlock()
	if err, ok := f.failures[page]; ok {
		return nil, err
	}
	return f.pages[page], nil
}

func (f *fakeSource) GetOne(context.Context, string) (*domain.RawTicket, error) {
	return nil, util.NewNotFound("ticket")
}

func (f *fakeSource) UpdateStatus(context.Context, string, domain.TicketState, string) (bool, error) {
	return false, nil
}

func (f *fakeSource) AddComment(context.Context, string, string, bool) (bool, error) {
	return false, nil
}

func ticket(id string) *domain.RawTicket {
	return &domain.RawTicket{ID: id, State: domain.TicketStateAwaitingInput}
}

func newTestFetcher(source ticketsource.Source, concurrency int) *Fetcher {
	cfg := config.FetchConfig{MaxPages: 10, Concurrency: concurrency}
	return NewFetcher(source, cfg, observability.NewMetrics(), zap.NewNop())
}

func TestFetchAllDeduplicatesAcrossPages(t *testing.T) {
	source := &fakeSource{pages: map[int][]*domain.RawTicket{
		1: {ticket("1"), ticket("2")},
		2: {ticket("2"), ticket("3")},
		3: {},
	}}
	f := newTestFetcher(source, 3)

	tickets, err := f.FetchAll(context.Background(), ticketsource.ListFilter{}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tickets) != 3 {
		t.Fatalf("expected 3 unique tickets, got %d", len(tickets))
	}
	seen := map[string]bool{}
	for _, tk := range tickets {
		if seen[tk.ID] {
			t.Fatalf("duplicate ticket %s in result", tk.ID)
		}
		seen[tk.ID] = true
	}
}

func TestFetchAllSkipsFailedPages(t *testing.T) {
	source := &fakeSource{
		pages: map[int][]*domain.RawTicket{
			1: {ticket("1")},
			3: {ticket("3")},
			4: {},
		},
		failures: map[int]error{2: util.NewTransient("page 2 exploded", nil)},
	}
	f := newTestFetcher(source, 4)

	tickets, err := f.FetchAll(context.Background(), ticketsource.ListFilter{}, 1)
	if err != nil {
		t.Fatalf("a failed page must not fail the batch: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("expected the 2 tickets from surviving pages, got %d", len(tickets))
	}
}

func TestFetchAllStopsAfterEmptyWave(t *testing.T) {
	source := &fakeSource{pages: map[int][]*domain.RawTicket{
		1: {ticket("1")},
		2: {},
	}}
	f := newTestFetcher(source, 2)

	if _, err := f.FetchAll(context.Background(), ticketsource.ListFilter{}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	source.mu.Lock()
	defer source.mu.Unlock()
	for _, page := range source.calls {
		if page > 2 {
			t.Fatalf("fetched page %d after an empty page ended the batch", page)
		}
	}
}

func TestFetchActionableFiltersStates(t *testing.T) {
	closed := &domain.RawTicket{ID: "9", State: domain.TicketStateClosed}
	source := &fakeSource{pages: map[int][]*domain.RawTicket{
		1: {ticket("1"), closed},
		2: {},
	}}
	f := newTestFetcher(source, 2)

	tickets, err := f.FetchActionable(context.Background(), ticketsource.ListFilter{}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tickets) != 1 || tickets[0].ID != "1" {
		t.Fatalf("expected only the awaiting-input ticket, got %+v", tickets)
	}
}
