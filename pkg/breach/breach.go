// Package breach checks passwords against a k-anonymity breach corpus.
//
// Only the first five hex characters of the password's SHA-1 digest leave
// the device. The returned candidate suffixes are matched locally.
package breach

import (
	"bufio"
	"context"
	"crypto/sha1" //nolint:gosec // SHA-1 is the lookup key of the range API, not a security primitive here
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public Pwned Passwords range API.
	DefaultBaseURL = "https://api.pwnedpasswords.com"

	// DefaultTimeout bounds a single lookup.
	DefaultTimeout = 5 * time.Second

	// DefaultRate and DefaultBurst pace lookups per Checker.
	DefaultRate  = rate.Limit(10)
	DefaultBurst = 10

	prefixLength = 5
	maxBodySize  = 4 << 20
)

// ErrUnavailable indicates the lookup could not be completed. It is distinct
// from a count of zero: the password's status is unknown.
var ErrUnavailable = errors.New("breach: check unavailable")

// Checker performs range lookups.
type Checker struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithBaseURL overrides the range API base URL.
func WithBaseURL(u string) Option {
	return func(c *Checker) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout overrides the per-lookup timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient sets the HTTP client used for lookups.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Checker) { c.httpClient = hc }
}

// WithRateLimit paces lookups to r per second with the given burst. A
// limit of rate.Inf disables pacing.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Checker) { c.limiter = rate.NewLimiter(r, burst) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{
		baseURL:    DefaultBaseURL,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(DefaultRate, DefaultBurst),
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the configured lookup bound.
func (c *Checker) Timeout() time.Duration {
	return c.timeout
}

// CheckCount returns how many times password appears in the corpus.
//
// It returns 0 for an empty password, for no match, and when the range has
// no data (404). Network failures, timeouts and other non-2xx responses
// return an error wrapping ErrUnavailable.
func (c *Checker) CheckCount(ctx context.Context, password string) (int, error) {
	if password == "" {
		return 0, nil
	}

	sum := sha1.Sum([]byte(password)) //nolint:gosec
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:prefixLength], digest[prefixLength:]

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Waiting for a slot counts toward the lookup bound.
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/range/"+prefix, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Add-Padding", "true")
	req.Header.Set("User-Agent", "locksy")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("breach lookup failed", slog.String("prefix", prefix), slog.Any("error", err))
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	count, err := scanRange(io.LimitReader(resp.Body, maxBodySize), suffix)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

// scanRange finds suffix in "SUFFIX:COUNT" lines. Padding rows carry a
// count of zero and never match a real password.
func scanRange(r io.Reader, suffix string) (int, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		candidate, countStr, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(candidate, suffix) {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(countStr))
		if err != nil {
			return 0, fmt.Errorf("invalid count %q", countStr)
		}
		return count, nil
	}
	return 0, sc.Err()
}
