// Package recorder copies a recorded clip from an origin into local storage
// so it can be replayed offline as local://<name>.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/scvv/internal/manifest"
	"github.com/jmylchreest/scvv/internal/storage"
	"github.com/jmylchreest/scvv/internal/transport"
)

// ErrLiveSession is returned when asked to save a streaming session.
var ErrLiveSession = errors.New("live sessions cannot be saved")

// Summary reports what Save stored.
type Summary struct {
	Name    string
	Frames  int
	Files   int
	Bytes   int64
	Skipped []string // absolute asset URLs left pointing at their origin
}

// Recorder saves clips into a sandbox.
type Recorder struct {
	fetcher     transport.Fetcher
	sandbox     *storage.Sandbox
	concurrency int
	logger      *slog.Logger
}

// New creates a recorder that fetches with up to concurrency parallel requests.
func New(fetcher transport.Fetcher, sandbox *storage.Sandbox, concurrency int) *Recorder {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Recorder{
		fetcher:     fetcher,
		sandbox:     sandbox,
		concurrency: concurrency,
		logger:      slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (r *Recorder) WithLogger(logger *slog.Logger) *Recorder {
	r.logger = logger
	return r
}

type asset struct {
	path string
	kind transport.AssetKind
}

// Save copies the clip at baseURL into the recording called name. The
// manifest is written last, so an interrupted save never looks complete.
func (r *Recorder) Save(ctx context.Context, baseURL, name string) (*Summary, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid recording name %q", name)
	}

	manifestURL := transport.Join(baseURL, manifest.FileName)
	raw, err := r.fetcher.Fetch(ctx, manifestURL, transport.KindManifest)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Parse(raw, transport.NormalizeBase(baseURL), 0)
	if err != nil {
		return nil, err
	}
	if m.Streaming() {
		return nil, ErrLiveSession
	}

	sum := &Summary{Name: name, Frames: len(m.Frames)}
	var assets []asset
	for _, f := range m.Frames {
		assets = append(assets, asset{f.MeshPath, transport.KindMesh}, asset{f.TexturePath, transport.KindTexture})
	}
	if m.Audio != "" {
		assets = append(assets, asset{m.Audio, transport.KindAudio})
	}

	var files, written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, a := range assets {
		if strings.Contains(a.path, "://") {
			sum.Skipped = append(sum.Skipped, a.path)
			continue
		}
		g.Go(func() error {
			data, err := r.fetcher.Fetch(gctx, m.URL(a.path), a.kind)
			if err != nil {
				return err
			}
			if err := r.sandbox.WriteFile(name+"/"+strings.TrimLeft(a.path, "/"), data); err != nil {
				return err
			}
			files.Add(1)
			written.Add(int64(len(data)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("saving %s: %w", name, err)
	}

	if err := r.sandbox.WriteFile(name+"/"+manifest.FileName, raw); err != nil {
		return nil, fmt.Errorf("saving %s: %w", name, err)
	}

	sum.Files = int(files.Load()) + 1
	sum.Bytes = written.Load() + int64(len(raw))
	r.logger.Info("recording saved",
		slog.String("name", name),
		slog.String("source", m.BaseURL),
		slog.Int("frames", sum.Frames),
		slog.Int("files", sum.Files),
		slog.Int64("bytes", sum.Bytes),
		slog.Int("skipped", len(sum.Skipped)),
	)
	return sum, nil
}
