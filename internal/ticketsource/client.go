package ticketsource

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-service/internal/cache"
	"github.com/spec-kit/lifecycle-service/internal/config"
	"github.com/spec-kit/lifecycle-service/internal/domain"
	"github.com/spec-kit/lifecycle-service/internal/httpclient"
)

// Client talks to a Samanage-style service-desk JSON API.
type Client struct {
	http    *httpclient.Client
	tickets *cache.TicketCache
	logger  *zap.Logger
}

// NewClient builds the service-desk client.
func NewClient(cfg config.TicketSourceConfig, tickets *cache.TicketCache, logger *zap.Logger) *Client {
	httpClient := httpclient.New(httpclient.Options{
		BaseURL: cfg.BaseURL,
		Headers: map[string]string{
			"X-Samanage-Authorization": "Bearer " + cfg.Token,
			"Accept":                   "application/vnd.samanage.v2.1+json",
		},
		Timeout:           cfg.Timeout(),
		MaxConcurrent:     cfg.MaxConcurrent,
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxRetries:        cfg.MaxRetries,
	}, logger)
	return &Client{http: httpClient, tickets: tickets, logger: logger}
}

// ListPage fetches one page of incidents. The page number seeds retry
// jitter so concurrently throttled pages do not retry in lockstep.
func (c *Client) ListPage(ctx context.Context, filter ListFilter, page, pageSize int) ([]*domain.RawTicket, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(pageSize))
	query.Set("sort", "created_at")
	query.Set("sort_order", "desc")
	if filter.SubcategoryID != "" {
		query.Set("subcategory_id", filter.SubcategoryID)
	}
	if filter.State != "" {
		query.Set("state", filter.State)
	}

	var payload []wireTicket
	if err := c.http.GetJSONSeeded(ctx, "/incidents.json", query, &payload, int64(page)); err != nil {
		return nil, err
	}

	tickets := make([]*domain.RawTicket, 0, len(payload))
	for i := range payload {
		tickets = append(tickets, payload[i].toDomain())
	}
	return tickets, nil
}

// GetOne fetches a single ticket by id, serving from cache when possible.
func (c *Client) GetOne(ctx context.Context, id string) (*domain.RawTicket, error) {
	if c.tickets != nil {
		if ticket, ok := c.tickets.Get(id); ok {
			return ticket, nil
		}
	}

	var payload wireTicket
	if err := c.http.GetJSON(ctx, fmt.Sprintf("/incidents/%s.json", id), nil, &payload); err != nil {
		return nil, err
	}
	ticket := payload.toDomain()
	if c.tickets != nil {
		c.tickets.Put(ticket)
	}
	return ticket, nil
}

// UpdateStatus sets a ticket's state and optionally appends a note. The
// cached copy is invalidated on write.
func (c *Client) UpdateStatus(ctx context.Context, id string, state domain.TicketState, note string) (bool, error) {
	body := map[string]any{
		"incident": map[string]any{"state": string(state)},
	}
	if err := c.http.PutJSON(ctx, fmt.Sprintf("/incidents/%s.json", id), body, nil); err != nil {
		return false, err
	}
	if c.tickets != nil {
		c.tickets.Invalidate(id)
	}
	c.logger.Info("ticket status updated",
		zap.String("ticket_id", id),
		zap.String("state", string(state)))

	if strings.TrimSpace(note) != "" {
		if _, err := c.AddComment(ctx, id, note, true); err != nil {
			// The state change landed; a lost note is not worth failing for.
			c.logger.Warn("failed to add ticket note", zap.String("ticket_id", id), zap.Error(err))
		}
	}
	return true, nil
}

// AddComment appends a comment to a ticket.
func (c *Client) AddComment(ctx context.Context, id, body string, private bool) (bool, error) {
	payload := map[string]any{
		"comment": map[string]any{
			"body":       body,
			"is_private": private,
		},
	}
	if err := c.http.PostJSON(ctx, fmt.Sprintf("/incidents/%s/comments.json", id), payload, nil); err != nil {
		return false, err
	}
	if c.tickets != nil {
		c.tickets.Invalidate(id)
	}
	return true, nil
}

// wireTicket mirrors the service-desk incident payload.
type wireTicket struct {
	ID                 int64             `json:"id"`
	Number             int64             `json:"number"`
	State              string            `json:"state"`
	CreatedAt          string            `json:"created_at"`
	Name               string            `json:"name"`
	Subcategory        *wireNamed        `json:"subcategory"`
	CustomFields       map[string]string `json:"custom_fields"`
	CustomFieldsValues []wireField       `json:"custom_fields_values"`
}

type wireNamed struct {
	Name string `json:"name"`
}

type wireField struct {
	Name  string    `json:"name"`
	Value string    `json:"value"`
	User  *wireUser `json:"user"`
}

type wireUser struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (w *wireTicket) toDomain() *domain.RawTicket {
	ticket := &domain.RawTicket{
		ID:            strconv.FormatInt(w.ID, 10),
		DisplayNumber: strconv.FormatInt(w.Number, 10),
		State:         domain.TicketState(w.State),
		Subject:       w.Name,
		CustomFields:  w.CustomFields,
	}
	if ticket.CustomFields == nil {
		ticket.CustomFields = map[string]string{}
	}
	if w.Subcategory != nil {
		ticket.Subcategory = w.Subcategory.Name
	}
	if created, err := time.Parse(time.RFC3339, w.CreatedAt); err == nil {
		ticket.CreatedAt = created
	}
	for _, field := range w.CustomFieldsValues {
		entry := domain.FieldEntry{
			Name:  strings.TrimSpace(field.Name),
			Value: strings.TrimSpace(field.Value),
		}
		if field.User != nil {
			entry.UserRef = &domain.UserRef{
				ID:          strconv.FormatInt(field.User.ID, 10),
				Email:       field.User.Email,
				DisplayName: field.User.Name,
			}
		}
		ticket.FieldEntries = append(ticket.FieldEntries, entry)
	}
	return ticket
}

var _ Source = (*Client)(nil)
