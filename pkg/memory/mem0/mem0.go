// Package mem0 implements memory.Driver against the mem0 platform REST API.
package mem0

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/papercomputeco/recall/pkg/memory"
)

const (
	// DefaultURL is the hosted mem0 platform.
	DefaultURL = "https://api.mem0.ai"

	defaultTimeout = 30 * time.Second
)

// Config holds configuration for the mem0 driver.
type Config struct {
	// URL is the mem0 API base URL. Defaults to DefaultURL.
	URL string

	// APIKey is sent as "Authorization: Token <key>".
	APIKey string

	Timeout time.Duration
	Logger  *slog.Logger
}

// Driver implements memory.Driver using the mem0 API.
type Driver struct {
	client *resty.Client
	logger *slog.Logger
}

// NewDriver creates a mem0 driver.
func NewDriver(c Config) (*Driver, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("mem0 API key is required: %w", memory.ErrNotConfigured)
	}
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	client := resty.New().
		SetBaseURL(c.URL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Token "+c.APIKey).
		SetTimeout(c.Timeout)

	return &Driver{
		client: client,
		logger: c.Logger.With("memory_provider", "mem0"),
	}, nil
}

// Add stores content for the user. mem0 distills the content into one or
// more memories on its side.
func (d *Driver) Add(ctx context.Context, userID, content string, meta memory.Metadata) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(addRequest{
			Messages: []message{{Role: "user", Content: content}},
			UserID:   userID,
			Metadata: meta,
		}).
		Post("/v1/memories/")
	if err != nil {
		return fmt.Errorf("mem0 add request: %w", err)
	}
	if resp.IsError() {
		return statusError("add", resp)
	}

	d.logger.Debug("stored memory", "user_id", userID, "length", len(content))
	return nil
}

// Search returns memories relevant to query.
func (d *Driver) Search(ctx context.Context, userID, query string, limit int) ([]memory.Entry, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(searchRequest{Query: query, UserID: userID, Limit: limit}).
		Post("/v1/memories/search/")
	if err != nil {
		return nil, fmt.Errorf("mem0 search request: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("search", resp)
	}

	return d.entries(resp.Body(), userID)
}

// List returns every memory of the user.
func (d *Driver) List(ctx context.Context, userID string) ([]memory.Entry, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParam("user_id", userID).
		Get("/v1/memories/")
	if err != nil {
		return nil, fmt.Errorf("mem0 list request: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("list", resp)
	}

	return d.entries(resp.Body(), userID)
}

// Delete removes a memory by id.
func (d *Driver) Delete(ctx context.Context, _ string, entryID string) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetPathParam("id", entryID).
		Delete("/v1/memories/{id}/")
	if err != nil {
		return fmt.Errorf("mem0 delete request: %w", err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return statusError("delete", resp)
	}
	return nil
}

// Close is a no-op; resty clients hold no resources that need releasing.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) entries(body []byte, userID string) ([]memory.Entry, error) {
	objs, err := decodeMemories(body)
	if err != nil {
		return nil, fmt.Errorf("decoding mem0 response: %w", err)
	}

	out := make([]memory.Entry, 0, len(objs))
	for _, o := range objs {
		e := o.toEntry(userID)
		if e.Content == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func statusError(op string, resp *resty.Response) error {
	return fmt.Errorf("mem0 %s: unexpected status %d: %s", op, resp.StatusCode(), resp.String())
}
