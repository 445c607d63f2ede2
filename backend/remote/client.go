// Package remote is the HTTP client for the sync server's pull/push endpoints.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cookbooksync/backend"
	"cookbooksync/internal/utils"

	"github.com/google/uuid"
)

const (
	defaultTimeout = 20 * time.Second
	maxErrorBody   = 4096
)

// TokenSource returns the bearer token for uid, or "" to send none
type TokenSource func(uid string) string

// Client talks to POST {base}/sync/{entity}/pull and /push
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
}

type pullRequest struct {
	UID string `json:"uid"`
}

type pullResponse struct {
	Items []json.RawMessage `json:"items"`
}

type pushRequest struct {
	UID   string `json:"uid"`
	Items any    `json:"items"`
}

// NewClient creates a client for the server at baseURL.
// A zero timeout uses the default of 20 seconds.
func NewClient(baseURL string, timeout time.Duration, token TokenSource) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if token == nil {
		token = func(string) string { return "" }
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
	}
}

// BaseURL returns the server root the client was created with
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Pull fetches every remote document of entity for uid
func (c *Client) Pull(ctx context.Context, entity, uid string) ([]json.RawMessage, error) {
	resp, err := c.doRequest(ctx, "Pull", entity, uid, pullRequest{UID: uid})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out pullResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, backend.NewBackendError("Pull", 0, "failed to decode response").
			WithEntity(entity).WithUID(uid).WithError(err)
	}
	if out.Items == nil {
		out.Items = []json.RawMessage{}
	}
	utils.Debugf("Pulled %d %s for %s", len(out.Items), entity, uid)
	return out.Items, nil
}

// Push uploads items of entity for uid. Any 2xx response is an ack.
func (c *Client) Push(ctx context.Context, entity, uid string, items any) error {
	resp, err := c.doRequest(ctx, "Push", entity, uid, pushRequest{UID: uid, Items: items})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// doRequest posts body as JSON and returns a 2xx response or a BackendError
func (c *Client) doRequest(ctx context.Context, op, entity, uid string, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/sync/%s/%s", c.baseURL, entity, strings.ToLower(op))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token := c.token(uid); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		msg := "request failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "request timed out"
		}
		return nil, backend.NewBackendError(op, 0, msg).WithEntity(entity).WithUID(uid).WithError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, backend.NewBackendError(op, resp.StatusCode, http.StatusText(resp.StatusCode)).
			WithEntity(entity).WithUID(uid).WithBody(string(data))
	}
	return resp, nil
}
