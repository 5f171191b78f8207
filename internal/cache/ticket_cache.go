package cache

import (
	"sync"

	"github.com/spec-kit/lifecycle-service/internal/domain"
)

// TicketCache holds fetched tickets by id. Unlike Memo it supports
// invalidation, because a ticket becomes stale the moment its status is
// updated at the source.
type TicketCache struct {
	mu      sync.RWMutex
	tickets map[string]*domain.RawTicket
}

// NewTicketCache builds an empty ticket cache.
func NewTicketCache() *TicketCache {
	return &TicketCache{tickets: make(map[string]*domain.RawTicket)}
}

// Get returns the cached ticket for id.
func (c *TicketCache) Get(id string) (*domain.RawTicket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ticket, ok := c.tickets[id]
	return ticket, ok
}

// Put stores a ticket.
func (c *TicketCache) Put(ticket *domain.RawTicket) {
	if ticket == nil || ticket.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickets[ticket.ID] = ticket
}

// Invalidate drops the cached ticket for id; called after any write to the
// ticket at the source.
func (c *TicketCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tickets, id)
}

// Clear drops all cached tickets.
func (c *TicketCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickets = make(map[string]*domain.RawTicket)
}
