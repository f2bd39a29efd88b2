// Package restc is the console's JSON client for the backend directory
// API.
package restc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/calldeck/calldeck/internal/domain"
)

type Client struct {
	base string
	http *http.Client
}

func New(base string) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

type apiResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	User    *domain.User      `json:"user"`
	Users   []domain.User     `json:"users"`
	Logs    []domain.LogEntry `json:"logs"`
}

func (c *Client) Register(ctx context.Context, username string) (*domain.User, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/register", map[string]string{"username": username})
	if err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, fmt.Errorf("register: response missing user")
	}
	return resp.User, nil
}

func (c *Client) Heartbeat(ctx context.Context, username string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/heartbeat", map[string]string{"username": username})
	return err
}

func (c *Client) Users(ctx context.Context) ([]domain.User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/users", nil)
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *Client) Logs(ctx context.Context) ([]domain.LogEntry, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/logs", nil)
	if err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

func (c *Client) ClearLogs(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/logs", nil)
	return err
}

func (c *Client) InitiateCall(ctx context.Context, caller, callee string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/call/initiate", map[string]string{
		"caller": caller,
		"callee": callee,
	})
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*apiResponse, error) {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, buf)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	if !resp.Success {
		if resp.Error == "" {
			resp.Error = httpResp.Status
		}
		return nil, fmt.Errorf("%s %s: %s", method, path, resp.Error)
	}
	return &resp, nil
}
