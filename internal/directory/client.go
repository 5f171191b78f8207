package directory

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-service/internal/cache"
	"github.com/spec-kit/lifecycle-service/internal/config"
	"github.com/spec-kit/lifecycle-service/internal/httpclient"
	"github.com/spec-kit/lifecycle-service/internal/observability"
	"github.com/spec-kit/lifecycle-service/pkg/util"
)

// Client implements Admin against an Okta-style directory API. Lookups are
// memoized for the life of a batch; all three memos are first-writer-wins so
// concurrent runs resolving the same group or employee agree on one answer.
type Client struct {
	http    *httpclient.Client
	groups  *cache.Memo[string]
	emails  *cache.Memo[string]
	users   *cache.Memo[User]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewClient builds the directory client.
func NewClient(cfg config.DirectoryConfig, metrics *observability.Metrics, logger *zap.Logger) *Client {
	httpClient := httpclient.New(httpclient.Options{
		BaseURL: cfg.BaseURL,
		Headers: map[string]string{
			"Authorization": "SSWS " + cfg.Token,
		},
		Timeout:           cfg.Timeout(),
		MaxConcurrent:     cfg.MaxConcurrent,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, logger)
	return &Client{
		http:    httpClient,
		groups:  cache.NewMemo[string]("group-name-id", logger),
		emails:  cache.NewMemo[string]("employee-id-email", logger),
		users:   cache.NewMemo[User]("email-user", logger),
		metrics: metrics,
		logger:  logger,
	}
}

type wireProfile struct {
	Email          string `json:"email"`
	Login          string `json:"login"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	EmployeeNumber string `json:"employeeNumber"`
}

type wireUser struct {
	ID      string      `json:"id"`
	Status  string      `json:"status"`
	Profile wireProfile `json:"profile"`
}

type wireGroup struct {
	ID      string `json:"id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

func (w *wireUser) toUser() User {
	email := w.Profile.Email
	if email == "" {
		email = w.Profile.Login
	}
	return User{
		ID:        w.ID,
		Email:     email,
		FirstName: w.Profile.FirstName,
		LastName:  w.Profile.LastName,
		Status:    w.Status,
	}
}

// LookupByEmployeeID maps an employee number to the directory email. The
// mapping is memoized; a miss is a typed not-found error so callers can mark
// the identity unresolved rather than inventing an address.
func (c *Client) LookupByEmployeeID(ctx context.Context, employeeID string) (string, error) {
	if email, ok := c.emails.Get(employeeID); ok {
		c.metrics.Inc(observability.MetricCacheHits)
		return email, nil
	}
	c.metrics.Inc(observability.MetricCacheMisses)

	query := url.Values{}
	query.Set("search", fmt.Sprintf(`profile.employeeNumber eq "%s"`, employeeID))
	query.Set("limit", "1")

	var payload []wireUser
	if err := c.http.GetJSON(ctx, "/api/v1/users", query, &payload); err != nil {
		return "", err
	}
	if len(payload) == 0 {
		return "", util.NewNotFound(fmt.Sprintf("no directory user with employee number %s", employeeID))
	}
	user := payload[0].toUser()
	if user.Email == "" {
		return "", util.NewNotFound(fmt.Sprintf("directory user for employee number %s has no email", employeeID))
	}
	c.emails.Put(employeeID, user.Email)
	c.users.Put(user.Email, user)
	return user.Email, nil
}

// GetUserByEmail fetches the directory profile for an email.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if user, ok := c.users.Get(email); ok {
		c.metrics.Inc(observability.MetricCacheHits)
		return &user, nil
	}
	c.metrics.Inc(observability.MetricCacheMisses)

	var payload wireUser
	if err := c.http.GetJSON(ctx, "/api/v1/users/"+url.PathEscape(email), nil, &payload); err != nil {
		return nil, err
	}
	user := payload.toUser()
	c.users.Put(email, user)
	return &user, nil
}

// FindGroupID maps a group name to its id, memoized for the batch.
func (c *Client) FindGroupID(ctx context.Context, name string) (string, error) {
	if id, ok := c.groups.Get(name); ok {
		c.metrics.Inc(observability.MetricCacheHits)
		return id, nil
	}
	c.metrics.Inc(observability.MetricCacheMisses)

	query := url.Values{}
	query.Set("q", name)

	var payload []wireGroup
	if err := c.http.GetJSON(ctx, "/api/v1/groups", query, &payload); err != nil {
		return "", err
	}
	for _, group := range payload {
		if group.Profile.Name == name {
			c.groups.Put(name, group.ID)
			return group.ID, nil
		}
	}
	return "", util.NewNotFound(fmt.Sprintf("no directory group named %q", name))
}

// RemoveFromGroup removes a user from a group.
func (c *Client) RemoveFromGroup(ctx context.Context, groupID, userID string) error {
	return c.http.DeleteJSON(ctx, fmt.Sprintf("/api/v1/groups/%s/users/%s", groupID, userID), nil)
}

// ClearSessions revokes all active sessions for a user.
func (c *Client) ClearSessions(ctx context.Context, userID string) error {
	return c.http.DeleteJSON(ctx, fmt.Sprintf("/api/v1/users/%s/sessions", userID), nil)
}

// DeactivateUser deactivates a directory account.
func (c *Client) DeactivateUser(ctx context.Context, userID string) error {
	return c.http.PostJSON(ctx, fmt.Sprintf("/api/v1/users/%s/lifecycle/deactivate", userID), nil, nil)
}

// ClearCaches drops all memoized lookups. Called between batches so a
// long-running process does not serve stale directory state.
func (c *Client) ClearCaches() {
	c.groups.Clear()
	c.emails.Clear()
	c.users.Clear()
}

var _ Admin = (*Client)(nil)
