package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kylegalloway/applyflow/internal/orchestrator"
	"github.com/kylegalloway/applyflow/internal/session"
)

// Client talks to a running applyflow server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a Client for baseURL, e.g. "http://localhost:3000".
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Start asks the server to start a session and returns its id.
func (c *Client) Start(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(startRequest{Email: email, Password: password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/start-automation", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out startResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// Status fetches the snapshot of session id.
func (c *Client) Status(ctx context.Context, id string) (session.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/automation-status/"+url.PathEscape(id), nil)
	if err != nil {
		return session.Snapshot{}, err
	}
	var snap session.Snapshot
	if err := c.do(req, &snap); err != nil {
		return session.Snapshot{}, err
	}
	snap.ID = id
	return snap, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var msg messageResponse
		_ = json.NewDecoder(resp.Body).Decode(&msg)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return session.ErrSessionNotFound
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %s", orchestrator.ErrInvalidInput, msg.Message)
		default:
			return fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, msg.Message)
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
