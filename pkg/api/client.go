// Package api is the HTTP client for the Locksy server.
//
// Request bodies never contain plaintext secrets: passwords travel as
// ciphertext produced by the envelope package.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds every request made by a Client.
const DefaultTimeout = 30 * time.Second

const maxResponseSize = 8 << 20

// TokenSource supplies bearer tokens for protected endpoints.
type TokenSource interface {
	// Token returns the current access token.
	Token(ctx context.Context) (string, error)
	// Refresh replaces stale with a fresh token. Concurrent callers holding the
	// same stale token must share one refresh.
	Refresh(ctx context.Context, stale string) (string, error)
}

// Client talks to the Locksy server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithTokenSource sets the source of bearer tokens.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("api: invalid base URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("api: invalid base URL %q", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetTokenSource installs ts after construction. The session manager needs a
// client to refresh with, so the two are wired in two steps.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do performs a public request.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	payload, err := encodeBody(body)
	if err != nil {
		return err
	}
	_, err = c.send(ctx, method, path, payload, "", result)
	return err
}

// doAuth performs a protected request. On a 401 the token source is asked to
// refresh once and the request is retried once with the new token.
func (c *Client) doAuth(ctx context.Context, method, path string, body, result any) error {
	if c.tokens == nil {
		return ErrNoTokenSource
	}
	payload, err := encodeBody(body)
	if err != nil {
		return err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	status, err := c.send(ctx, method, path, payload, token, result)
	if status != http.StatusUnauthorized {
		return err
	}

	c.logger.Debug("access token rejected, refreshing", slog.String("path", path))
	fresh, rerr := c.tokens.Refresh(ctx, token)
	if rerr != nil {
		return rerr
	}
	_, err = c.send(ctx, method, path, payload, fresh, result)
	return err
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("api: marshal request: %w", err)
	}
	return b, nil
}

// send executes one HTTP round trip and returns the status code (0 on
// transport failure).
func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string, result any) (int, error) {
	reqURL := c.baseURL + path

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("api: create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "locksy-client")
	requestID := newRequestID()
	req.Header.Set("X-Request-Id", requestID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, &NetworkError{Err: err, URL: reqURL}
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", requestID),
		slog.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= 400 {
		return resp.StatusCode, parseErrorResponse(resp, requestID)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(result); err != nil {
			if errors.Is(err, io.EOF) {
				return resp.StatusCode, nil
			}
			return resp.StatusCode, fmt.Errorf("api: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// parseErrorResponse builds an *APIError from an HTTP error response.
func parseErrorResponse(resp *http.Response, requestID string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: requestID}
	if id := resp.Header.Get("X-Request-Id"); id != "" {
		apiErr.RequestID = id
	}

	var errResp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Message != "" {
			apiErr.Message = errResp.Message
		} else {
			apiErr.Message = errResp.Error
		}
	}
	return apiErr
}
