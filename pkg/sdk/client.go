package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 5 * time.Minute

// Client is the docchat API client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithAPIKey sends the key as a Bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client. The client's timeout
// must accommodate a full streamed answer, not a single round trip.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("sdk: encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("sdk: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// errorFromResponse maps a non-2xx response to a sentinel-wrapped error.
func errorFromResponse(resp *http.Response) error {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	sentinel := ErrServer
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		sentinel = ErrUnauthorized
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		sentinel = ErrBadRequest
	case resp.StatusCode == http.StatusBadGateway:
		sentinel = ErrAnswerFailed
	}

	if body.Message != "" {
		return fmt.Errorf("sdk: %s (HTTP %d): %w", body.Message, resp.StatusCode, sentinel)
	}
	return fmt.Errorf("sdk: HTTP %d: %w", resp.StatusCode, sentinel)
}
