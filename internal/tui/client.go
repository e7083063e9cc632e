package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/billie-coop/ollamagate/internal/app"
	"github.com/billie-coop/ollamagate/internal/llm"
	"github.com/billie-coop/ollamagate/internal/llm/queue"
)

// Client talks to a running gateway's admin and status endpoints.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the gateway at baseURL, e.g. "http://127.0.0.1:11435".
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimSuffix(baseURL, "/"), http: hc}
}

// Status is the admin view of the queue.
type Status struct {
	queue.Status
	Observers int `json:"observers"`
	Streams   int `json:"streams"`
}

func (c *Client) Settings(ctx context.Context) (app.Settings, error) {
	var s app.Settings
	err := c.do(ctx, http.MethodGet, "/admin/settings", nil, &s)
	return s, err
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var s Status
	err := c.do(ctx, http.MethodGet, "/admin/status", nil, &s)
	return s, err
}

func (c *Client) SetLimits(ctx context.Context, limits queue.Limits) (queue.Limits, error) {
	var applied queue.Limits
	err := c.do(ctx, http.MethodPut, "/admin/limits", limits, &applied)
	return applied, err
}

// Clear drops every waiting request and returns how many were dropped.
func (c *Client) Clear(ctx context.Context) (int, error) {
	var resp struct {
		Cleared int `json:"cleared"`
	}
	err := c.do(ctx, http.MethodPost, "/admin/clear", nil, &resp)
	return resp.Cleared, err
}

func (c *Client) AllowAll(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/admin/origins/allow-all", nil, nil)
}

func (c *Client) Models(ctx context.Context) ([]llm.Model, error) {
	var resp struct {
		Models []llm.Model `json:"models"`
	}
	err := c.do(ctx, http.MethodGet, "/admin/models", nil, &resp)
	return resp.Models, err
}

// WatchStatus calls fn with every queue snapshot until ctx ends or the
// connection drops.
func (c *Client) WatchStatus(ctx context.Context, fn func(queue.Snapshot)) error {
	u, err := url.Parse(c.base + "/v1/status")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect to status stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var s queue.Snapshot
		if err := conn.ReadJSON(&s); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("status stream: %w", err)
		}
		fn(s)
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure llm.Result
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &failure) == nil && failure.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, failure.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
