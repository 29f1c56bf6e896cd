// Package httpclient is the resilient HTTP client behind asset fetching:
// a circuit breaker per origin client, bounded retries with exponential
// backoff, transparent gzip/deflate/brotli decoding and a post-decoding
// response size cap.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Errors returned by Do.
var (
	ErrCircuitOpen      = errors.New("circuit breaker is open")
	ErrMaxRetries       = errors.New("max retries exceeded")
	ErrResponseTooLarge = errors.New("response body exceeds maximum size limit")
)

// Defaults used by DefaultConfig.
const (
	DefaultTimeout              = 30 * time.Second
	DefaultRetryAttempts        = 3
	DefaultRetryDelay           = 250 * time.Millisecond
	DefaultRetryMaxDelay        = 5 * time.Second
	DefaultBackoffMultiplier    = 2.0
	DefaultCircuitThreshold     = 5
	DefaultCircuitTimeout       = 30 * time.Second
	DefaultCircuitHalfOpenMax   = 1
	DefaultAcceptEncodingHeader = "gzip, deflate, br"
	DefaultUserAgentHeader      = "scvv-httpclient/1.0"
)

// Header names set or read by the client.
const (
	HeaderAcceptEncoding  = "Accept-Encoding"
	HeaderContentEncoding = "Content-Encoding"
	HeaderUserAgent       = "User-Agent"
)

// Config holds the configuration for the HTTP client.
type Config struct {
	// Timeout bounds each request of the default base client. 0 leaves the
	// request context as the only deadline.
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	RetryAttempts     int
	RetryDelay        time.Duration
	RetryMaxDelay     time.Duration
	BackoffMultiplier float64

	// CircuitThreshold consecutive failures open the circuit for CircuitTimeout.
	CircuitThreshold   int
	CircuitTimeout     time.Duration
	CircuitHalfOpenMax int

	UserAgent           string
	EnableDecompression bool

	// MaxResponseSize caps the decoded body. 0 disables the cap.
	MaxResponseSize int64

	// AcceptableStatusCodes count as breaker successes. Empty means 2xx.
	AcceptableStatusCodes *StatusCodeSet

	Logger     *slog.Logger
	BaseClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:             DefaultTimeout,
		RetryAttempts:       DefaultRetryAttempts,
		RetryDelay:          DefaultRetryDelay,
		RetryMaxDelay:       DefaultRetryMaxDelay,
		BackoffMultiplier:   DefaultBackoffMultiplier,
		CircuitThreshold:    DefaultCircuitThreshold,
		CircuitTimeout:      DefaultCircuitTimeout,
		CircuitHalfOpenMax:  DefaultCircuitHalfOpenMax,
		UserAgent:           DefaultUserAgentHeader,
		EnableDecompression: true,
		Logger:              slog.Default(),
	}
}

// Client wraps an http.Client with a circuit breaker and retries.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *CircuitBreaker
	logger  *slog.Logger
}

// New creates a client from cfg.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = DefaultBackoffMultiplier
	}
	base := cfg.BaseClient
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		cfg:     cfg,
		http:    base,
		breaker: NewCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitTimeout, cfg.CircuitHalfOpenMax),
		logger:  cfg.Logger,
	}
	c.breaker.OnStateChange(func(from, to CircuitState) {
		c.logger.Warn("circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return c
}

// NewWithDefaults creates a client with DefaultConfig.
func NewWithDefaults() *Client {
	return New(DefaultConfig())
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.Do(req)
}

// Do sends req, retrying transport errors and retryable statuses with
// backoff. The request context bounds every attempt and every wait. A
// response with a non-retryable status is returned without error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	c.setDefaultHeaders(req)

	wait := c.cfg.RetryDelay
	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			wait = c.nextDelay(wait)
		}

		resp, retry, err := c.attempt(req, attempt)
		if !retry {
			return resp, err
		}
		lastErr = err
	}

	if errors.Is(lastErr, ErrCircuitOpen) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %w", ErrMaxRetries, lastErr)
}

// attempt makes one request. retry reports whether another attempt may help.
func (c *Client) attempt(req *http.Request, n int) (resp *http.Response, retry bool, err error) {
	log := c.logger.With(slog.String("url", req.URL.Redacted()), slog.Int("attempt", n))

	if !c.breaker.Allow() {
		log.Debug("circuit breaker open, skipping request")
		return nil, true, ErrCircuitOpen
	}

	start := time.Now()
	resp, err = c.http.Do(req)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		// Cancellation is the caller's doing, not the origin's.
		if errors.Is(err, context.Canceled) || req.Context().Err() != nil {
			return nil, false, err
		}
		c.breaker.RecordFailure()
		log.Debug("request failed", slog.Duration("duration", elapsed), slog.String("error", err.Error()))
		return nil, !errors.Is(err, context.DeadlineExceeded), err

	case isRetryableStatus(resp.StatusCode) && n < c.cfg.RetryAttempts:
		c.breaker.RecordFailure()
		log.Debug("retryable status", slog.Int("status", resp.StatusCode))
		discard(resp.Body)
		return nil, true, fmt.Errorf("retryable status code: %d", resp.StatusCode)
	}

	if c.acceptable(resp.StatusCode) {
		c.breaker.RecordSuccess()
	} else {
		c.breaker.RecordFailure()
	}
	log.Debug("request completed",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", elapsed),
		slog.Int64("content_length", resp.ContentLength),
	)

	resp.Body = c.wrapBody(resp)
	return resp, false, nil
}

// Breaker returns the client's circuit breaker.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// CircuitState returns the current state of the circuit breaker.
func (c *Client) CircuitState() CircuitState {
	return c.breaker.State()
}

func (c *Client) setDefaultHeaders(req *http.Request) {
	if req.Header.Get(HeaderUserAgent) == "" && c.cfg.UserAgent != "" {
		req.Header.Set(HeaderUserAgent, c.cfg.UserAgent)
	}
	if c.cfg.EnableDecompression && req.Header.Get(HeaderAcceptEncoding) == "" {
		req.Header.Set(HeaderAcceptEncoding, DefaultAcceptEncodingHeader)
	}
}

func (c *Client) nextDelay(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * c.cfg.BackoffMultiplier)
	if c.cfg.RetryMaxDelay > 0 && d > c.cfg.RetryMaxDelay {
		return c.cfg.RetryMaxDelay
	}
	return d
}

func (c *Client) acceptable(code int) bool {
	if !c.cfg.AcceptableStatusCodes.IsEmpty() {
		return c.cfg.AcceptableStatusCodes.Contains(code)
	}
	return code >= 200 && code < 300
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
