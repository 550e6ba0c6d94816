package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"digidiary/pkg/response"
)

// ErrUnauthenticated is returned when a call needs an access token and the
// client has none.
var ErrUnauthenticated = errors.New("not signed in")

// TokenSource hands out a valid access token, refreshing it if needed.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) AccessToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// Client is the HTTP transport shared by the note store and the account
// endpoints.
type Client struct {
	baseURL  string
	http     *http.Client
	tokens   TokenSource
	deviceID string
	logger   *slog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

func WithTokenSource(tokens TokenSource) ClientOption {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// WithDeviceID tags writes so that the server does not echo their change
// events back to this device.
func WithDeviceID(id string) ClientOption {
	return func(c *Client) {
		c.deviceID = id
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  discardLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, authenticated bool) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-ID", c.deviceID)
	}

	if authenticated {
		if c.tokens == nil {
			return ErrUnauthenticated
		}
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("remote call", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	return response.Decode(resp, out)
}
