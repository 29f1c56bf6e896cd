package httpclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = 5 * time.Millisecond
	cfg.RetryMaxDelay = 20 * time.Millisecond
	return cfg
}

func TestClient_Get(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			_, _ = w.Write([]byte(`{"isStreaming":false}`))
		}))
		defer server.Close()

		resp, err := NewWithDefaults().Get(context.Background(), server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, `{"isStreaming":false}`, string(body))
	})

	t.Run("sets default headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "scvv-test/1.0", r.Header.Get(HeaderUserAgent))
			assert.Equal(t, DefaultAcceptEncodingHeader, r.Header.Get(HeaderAcceptEncoding))
		}))
		defer server.Close()

		cfg := DefaultConfig()
		cfg.UserAgent = "scvv-test/1.0"
		resp, err := New(cfg).Get(context.Background(), server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	})
}

func TestClient_Retries(t *testing.T) {
	t.Run("retries on 503 then succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("mesh"))
		}))
		defer server.Close()

		resp, err := New(fastConfig()).Get(context.Background(), server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	})

	t.Run("no retries when attempts is zero", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		cfg := fastConfig()
		cfg.RetryAttempts = 0
		resp, err := New(cfg).Get(context.Background(), server.URL)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	})

	t.Run("does not retry 404", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		resp, err := New(fastConfig()).Get(context.Background(), server.URL)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	})

	t.Run("context cancellation stops retries", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		cfg := fastConfig()
		cfg.RetryDelay = time.Second
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := New(cfg).Get(ctx, server.URL)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestClient_Decompression(t *testing.T) {
	payload := bytes.Repeat([]byte("frame-data "), 64)

	t.Run("gzip", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(HeaderContentEncoding, EncodingGzip)
			gz := gzip.NewWriter(w)
			_, _ = gz.Write(payload)
			_ = gz.Close()
		}))
		defer server.Close()

		cfg := DefaultConfig()
		cfg.BaseClient = &http.Client{Transport: &http.Transport{DisableCompression: true}}
		resp, err := New(cfg).Get(context.Background(), server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, payload, body)
	})

	t.Run("brotli", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(HeaderContentEncoding, EncodingBrotli)
			bw := brotli.NewWriter(w)
			_, _ = bw.Write(payload)
			_ = bw.Close()
		}))
		defer server.Close()

		resp, err := NewWithDefaults().Get(context.Background(), server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, payload, body)
	})
}

func TestClient_MaxResponseSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 2048))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.MaxResponseSize = 1024
	resp, err := New(cfg).Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	_, err = io.ReadAll(resp.Body)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestClient_CircuitBreakerIntegration(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := fastConfig()
	cfg.RetryAttempts = 0
	cfg.CircuitThreshold = 2
	cfg.CircuitTimeout = time.Hour
	client := New(cfg)

	for range 2 {
		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, CircuitOpen, client.CircuitState())

	_, err := client.Get(context.Background(), server.URL)
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestClient_AcceptableStatusCodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := fastConfig()
	cfg.CircuitThreshold = 1
	cfg.AcceptableStatusCodes = MustParseStatusCodes("200-299,404")
	client := New(cfg)

	for range 3 {
		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, CircuitClosed, client.CircuitState())
}

func TestCircuitBreaker(t *testing.T) {
	t.Run("opens at threshold and recovers through half-open", func(t *testing.T) {
		now := time.Unix(0, 0)
		cb := NewCircuitBreaker(2, time.Second, 1)
		cb.now = func() time.Time { return now }

		cb.RecordFailure()
		assert.Equal(t, CircuitClosed, cb.State())
		cb.RecordFailure()
		assert.Equal(t, CircuitOpen, cb.State())
		assert.False(t, cb.Allow())

		now = now.Add(time.Second)
		assert.True(t, cb.Allow())
		assert.Equal(t, CircuitHalfOpen, cb.State())
		assert.False(t, cb.Allow(), "only one probe while half-open")

		cb.RecordSuccess()
		assert.Equal(t, CircuitClosed, cb.State())
	})

	t.Run("failure while half-open reopens", func(t *testing.T) {
		now := time.Unix(0, 0)
		cb := NewCircuitBreaker(1, time.Second, 1)
		cb.now = func() time.Time { return now }

		cb.RecordFailure()
		now = now.Add(2 * time.Second)
		require.True(t, cb.Allow())
		cb.RecordFailure()
		assert.Equal(t, CircuitOpen, cb.State())
	})

	t.Run("stats", func(t *testing.T) {
		cb := NewCircuitBreaker(5, time.Second, 1)
		cb.RecordFailure()
		cb.RecordSuccess()
		cb.RecordFailure()

		stats := cb.Stats()
		assert.Equal(t, "closed", stats.State)
		assert.Equal(t, 1, stats.ConsecutiveFailures)
		assert.Equal(t, int64(3), stats.TotalRequests)
		assert.Equal(t, int64(2), stats.TotalFailures)
	})
}

func TestParseStatusCodes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		in      []int
		out     []int
		wantErr bool
		wantNil bool
	}{
		{name: "single", input: "200", in: []int{200}, out: []int{201}},
		{name: "range and code", input: "200-299, 404", in: []int{200, 250, 299, 404}, out: []int{300, 500}},
		{name: "empty", input: "  ", wantNil: true},
		{name: "inverted range", input: "299-200", wantErr: true},
		{name: "out of bounds", input: "700", wantErr: true},
		{name: "garbage", input: "ok", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := ParseStatusCodes(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, set)
				assert.True(t, set.IsEmpty())
				return
			}
			for _, code := range tt.in {
				assert.True(t, set.Contains(code), "expected %d in set", code)
			}
			for _, code := range tt.out {
				assert.False(t, set.Contains(code), "expected %d not in set", code)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("manifest", NewWithDefaults())
	failing := NewWithDefaults()
	failing.Breaker().RecordFailure()
	reg.Register("assets", failing)

	assert.Same(t, failing, reg.Get("assets"))

	statuses := reg.CircuitBreakerStatuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "assets", statuses[0].Name)
	assert.Equal(t, 1, statuses[0].Failures)
	assert.Equal(t, "closed", statuses[1].State)

	reg.Unregister("assets")
	assert.Nil(t, reg.Get("assets"))
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(1, time.Second, 1)
	cb.now = func() time.Time { return now }

	var transitions []string
	cb.OnStateChange(func(from, to CircuitState) {
		transitions = append(transitions, from.String()+">"+to.String())
	})

	cb.RecordFailure()
	cb.RecordFailure()
	now = now.Add(time.Second)
	require.True(t, cb.Allow())
	cb.RecordSuccess()
	cb.Reset()

	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, transitions)
	assert.Equal(t, "unknown", CircuitState(9).String())
}

func TestClient_MaxResponseSizeExact(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 1024))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.MaxResponseSize = 1024
	resp, err := New(cfg).Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Len(t, data, 1024)
}
