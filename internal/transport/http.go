package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmylchreest/scvv/internal/config"
	"github.com/jmylchreest/scvv/internal/version"
	"github.com/jmylchreest/scvv/pkg/httpclient"
)

// NewClient builds the resilient HTTP client used for session assets.
// A 404 counts as a breaker success; live origins expire frames.
func NewClient(cfg config.HTTPConfig, logger *slog.Logger) *httpclient.Client {
	hc := httpclient.DefaultConfig()
	hc.Timeout = 0 // per-request deadline comes from HTTPFetcher
	hc.RetryAttempts = cfg.RetryAttempts
	hc.CircuitThreshold = cfg.CircuitBreakerThreshold
	hc.CircuitTimeout = cfg.CircuitBreakerTimeout
	hc.MaxResponseSize = cfg.MaxResponseSize.Bytes()
	hc.AcceptableStatusCodes = httpclient.MustParseStatusCodes("200-299,404")
	hc.Logger = logger
	hc.UserAgent = cfg.UserAgent
	if hc.UserAgent == "" {
		hc.UserAgent = version.UserAgent()
	}
	return httpclient.New(hc)
}

// HTTPFetcher fetches assets over HTTP(S) with a per-request timeout.
type HTTPFetcher struct {
	client  *httpclient.Client
	timeout time.Duration
}

// NewHTTPFetcher creates a fetcher around client. A timeout of 0 leaves
// requests bounded only by the caller's context.
func NewHTTPFetcher(client *httpclient.Client, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: client, timeout: timeout}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, kind AssetKind) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	resp, err := f.client.Get(ctx, rawURL)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &NetworkError{
			URL:    rawURL,
			Kind:   kind,
			Status: resp.StatusCode,
			Err:    errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Kind: kind, Err: fmt.Errorf("reading body: %w", err)}
	}
	return body, nil
}
