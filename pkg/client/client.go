// Package client provides a Go client for the Den API: a thin HTTP wrapper
// plus a sync engine implementing the shared client pattern (local cache,
// optimistic create, debounced saves, reconnecting event stream).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/starford/den/internal/apperr"
	"github.com/starford/den/internal/models"
)

// Config identifies a Den server and the shared secret to present.
type Config struct {
	ServerURL string `json:"server"`
	Token     string `json:"token"`
}

// Client is a thin HTTP wrapper over the Den API.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a client for the given server.
func New(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateNote holds the fields for a new note.
type CreateNote struct {
	Title   string   `json:"title,omitempty"`
	Content string   `json:"content"`
	Pinned  bool     `json:"pinned,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// UpdateNote holds a partial update; nil fields are not sent.
type UpdateNote struct {
	Title   *string   `json:"title,omitempty"`
	Content *string   `json:"content,omitempty"`
	Pinned  *bool     `json:"pinned,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`
}

// ListParams control pagination and filtering.
type ListParams struct {
	Limit  int
	Offset int
	Pinned *bool
	Search string
}

// ListResult is a page of notes plus the total matching count.
type ListResult struct {
	Notes []models.Note `json:"notes"`
	Total int           `json:"total"`
}

// Health is the server liveness payload.
type Health struct {
	OK      bool `json:"ok"`
	Clients int  `json:"clients"`
}

// GetHealth probes the unauthenticated health endpoint.
func (c *Client) GetHealth(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create creates a note.
func (c *Client) Create(ctx context.Context, n CreateNote) (*models.Note, error) {
	var out models.Note
	if err := c.do(ctx, http.MethodPost, "/api/notes", n, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List fetches a page of notes.
func (c *Client) List(ctx context.Context, p ListParams) (*ListResult, error) {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.Pinned != nil {
		q.Set("pinned", strconv.FormatBool(*p.Pinned))
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	path := "/api/notes"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out ListResult
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches a single note by id.
func (c *Client) Get(ctx context.Context, id string) (*models.Note, error) {
	var out models.Note
	if err := c.do(ctx, http.MethodGet, "/api/notes/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update applies a partial update to a note.
func (c *Client) Update(ctx context.Context, id string, u UpdateNote) (*models.Note, error) {
	var out models.Note
	if err := c.do(ctx, http.MethodPut, "/api/notes/"+url.PathEscape(id), u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a note.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/notes/"+url.PathEscape(id), nil, nil)
}

// WebSocketURL derives the streaming endpoint, including the token
// connection parameter, from the configured server URL.
func (c *Client) WebSocketURL() string {
	ws := c.cfg.ServerURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return strings.TrimRight(ws, "/") + "/ws?token=" + url.QueryEscape(c.cfg.Token)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.ServerURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return apperr.ErrNotFound
	case http.StatusUnauthorized:
		return apperr.ErrUnauthorized
	}
	if body.Error != "" {
		return fmt.Errorf("client: server returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("client: server returned %d", resp.StatusCode)
}
