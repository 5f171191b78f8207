package ticketsource

import (
	"context"

	"github.com/spec-kit/lifecycle-service/internal/domain"
)

// ListFilter narrows a page listing.
type ListFilter struct {
	SubcategoryID string
	State         string
}

// Source is the service-desk collaborator consumed by the pipeline. A
// rate-limit response surfaces as a transient error distinguishable via
// util.IsRateLimited; the fetcher and client handle it below this boundary.
type Source interface {
	ListPage(ctx context.Context, filter ListFilter, page, pageSize int) ([]*domain.RawTicket, error)
	GetOne(ctx context.Context, id string) (*domain.RawTicket, error)
	UpdateStatus(ctx context.Context, id string, state domain.TicketState, note string) (bool, error)
	AddComment(ctx context.Context, id, body string, private bool) (bool, error)
}
