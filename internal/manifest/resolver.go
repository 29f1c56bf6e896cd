package manifest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/scvv/internal/config"
	"github.com/jmylchreest/scvv/internal/observability"
	"github.com/jmylchreest/scvv/internal/task"
	"github.com/jmylchreest/scvv/internal/transport"
)

// Resolver fetches and parses session manifests.
type Resolver struct {
	fetcher           transport.Fetcher
	logger            *slog.Logger
	defaultExpiration time.Duration

	mu        sync.Mutex
	sequences map[string]*uidSequence
}

// NewResolver creates a resolver. defaultExpiration is used for streaming
// manifests that do not declare frameExpiration.
func NewResolver(fetcher transport.Fetcher, defaultExpiration time.Duration) *Resolver {
	return &Resolver{
		fetcher:           fetcher,
		logger:            slog.Default(),
		defaultExpiration: defaultExpiration,
		sequences:         make(map[string]*uidSequence),
	}
}

// WithLogger sets a custom logger.
func (r *Resolver) WithLogger(logger *slog.Logger) *Resolver {
	r.logger = logger
	return r
}

// Fetch retrieves and parses {baseURL}/scvv.json. Errors are
// *transport.NetworkError or *ParseError.
func (r *Resolver) Fetch(ctx context.Context, baseURL string) (m *SessionManifest, err error) {
	baseURL = transport.NormalizeBase(baseURL)
	done := observability.TimedOperationWithError(ctx, r.logger, "fetch_manifest", &err)
	defer done()

	data, err := r.fetcher.Fetch(ctx, transport.Join(baseURL, FileName), transport.KindManifest)
	if err != nil {
		return nil, err
	}
	return parse(data, baseURL, r.defaultExpiration, r.sequence(baseURL))
}

// sequence returns the UID numbering shared by every fetch of baseURL.
func (r *Resolver) sequence(baseURL string) *uidSequence {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq, ok := r.sequences[baseURL]
	if !ok {
		seq = newUIDSequence()
		r.sequences[baseURL] = seq
	}
	return seq
}

// PollConfig controls manifest polling cadence.
type PollConfig struct {
	RetryInterval    time.Duration
	BusyInterval     time.Duration
	IdleInterval     time.Duration
	BacklogThreshold int
}

// PollConfigFrom converts the manifest configuration section.
func PollConfigFrom(cfg config.ManifestConfig) PollConfig {
	return PollConfig{
		RetryInterval:    cfg.RetryInterval,
		BusyInterval:     cfg.BusyInterval,
		IdleInterval:     cfg.IdleInterval,
		BacklogThreshold: cfg.BacklogThreshold,
	}
}

// NextDelay picks the re-poll delay for a live stream from the number of
// frames still waiting in the decode worker.
func (pc PollConfig) NextDelay(backlog int) time.Duration {
	if backlog > pc.BacklogThreshold {
		return pc.BusyInterval
	}
	return pc.IdleInterval
}

// PollFunc returns a repeating task that fetches the manifest and hands each
// successful result to deliver. Failures are retried after RetryInterval
// forever. Static manifests end the task after the first success; streaming
// manifests re-poll at a cadence chosen from backlog().
func (r *Resolver) PollFunc(baseURL string, pc PollConfig, backlog func() int, deliver func(*SessionManifest)) task.Func {
	return func(ctx context.Context) time.Duration {
		m, err := r.Fetch(ctx, baseURL)
		if err != nil {
			if ctx.Err() != nil {
				return task.Done
			}
			r.logger.Warn("manifest fetch failed, retrying",
				slog.String("base_url", baseURL),
				slog.Duration("retry_in", pc.RetryInterval),
				slog.String("error", err.Error()),
			)
			return pc.RetryInterval
		}

		deliver(m)

		if !m.Streaming() {
			return task.Done
		}
		return pc.NextDelay(backlog())
	}
}
