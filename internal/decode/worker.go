package decode

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/scvv/internal/manifest"
	"github.com/jmylchreest/scvv/internal/mesh"
	"github.com/jmylchreest/scvv/internal/transport"
)

// Worker owns the unfetched, fetched and completed queues of one session.
// Each cycle it merges new requests, drops expired live frames, then runs a
// fetch stage and a decode stage concurrently.
type Worker struct {
	fetcher transport.Fetcher
	codecs  *mesh.Registry
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	in  chan Request
	out chan Result

	// Owned by the Run goroutine.
	sctx      SessionContext
	unfetched map[uint64]manifest.FrameRef
	fetched   map[uint64]*rawFrame
	completed map[uint64]struct{}

	nUnfetched atomic.Int64
	nFetched   atomic.Int64
	nCompleted atomic.Int64
	decoded    atomic.Int64
	failed     atomic.Int64
	expired    atomic.Int64
}

// NewWorker creates a worker. Zero config values fall back to defaults.
func NewWorker(fetcher transport.Fetcher, codecs *mesh.Registry, cfg Config) *Worker {
	if cfg.FetchConcurrency < 1 {
		cfg.FetchConcurrency = 50
	}
	if cfg.DecodeConcurrency < 1 {
		cfg.DecodeConcurrency = 150
	}
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 100 * time.Millisecond
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}

	return &Worker{
		fetcher:   fetcher,
		codecs:    codecs,
		cfg:       cfg,
		logger:    slog.Default(),
		now:       time.Now,
		in:        make(chan Request, cfg.QueueSize),
		out:       make(chan Result, cfg.QueueSize),
		unfetched: make(map[uint64]manifest.FrameRef),
		fetched:   make(map[uint64]*rawFrame),
		completed: make(map[uint64]struct{}),
	}
}

// WithLogger sets a custom logger.
func (w *Worker) WithLogger(logger *slog.Logger) *Worker {
	w.logger = logger
	return w
}

// Submit queues a request without blocking. It returns false when the inbox
// is full; the caller keeps the frames and tries again later.
func (w *Worker) Submit(req Request) bool {
	select {
	case w.in <- req:
		return true
	default:
		return false
	}
}

// Results delivers one Result per frame that was decoded or failed.
func (w *Worker) Results() <-chan Result {
	return w.out
}

// Stats returns a snapshot of queue sizes and counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Unfetched: int(w.nUnfetched.Load()),
		Fetched:   int(w.nFetched.Load()),
		Completed: int(w.nCompleted.Load()),
		Decoded:   w.decoded.Load(),
		Failed:    w.failed.Load(),
		Expired:   w.expired.Load(),
	}
}

// Run processes requests until ctx is cancelled. When every queue is empty it
// blocks on the inbox instead of polling.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug("decode worker started",
		slog.Int("fetch_concurrency", w.cfg.FetchConcurrency),
		slog.Int("decode_concurrency", w.cfg.DecodeConcurrency),
		slog.Int("workers", w.cfg.Workers),
	)
	defer w.logger.Debug("decode worker stopped")

	for {
		if len(w.unfetched) == 0 && len(w.fetched) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case req := <-w.in:
				w.merge(req)
			}
		}
		w.drainInbox()
		w.expireStale()
		w.cycle(ctx)
		w.publishSizes()

		if ctx.Err() != nil {
			return nil
		}
		if len(w.unfetched) == 0 && len(w.fetched) == 0 {
			continue
		}

		timer := time.NewTimer(w.cfg.IdleInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (w *Worker) drainInbox() {
	for {
		select {
		case req := <-w.in:
			w.merge(req)
		default:
			return
		}
	}
}

// merge adds refs not already queued or completed.
func (w *Worker) merge(req Request) {
	w.sctx = req.Context
	for _, ref := range req.Frames {
		if _, ok := w.completed[ref.UID]; ok {
			continue
		}
		if _, ok := w.fetched[ref.UID]; ok {
			continue
		}
		if _, ok := w.unfetched[ref.UID]; ok {
			continue
		}
		w.unfetched[ref.UID] = ref
	}
	w.publishSizes()
}

// expireStale silently drops live frames captured longer ago than the
// expiration window. Frames without a capture time never expire.
func (w *Worker) expireStale() {
	if !w.sctx.Streaming || w.sctx.FrameExpiration <= 0 {
		return
	}
	now := w.now()
	for uid, ref := range w.unfetched {
		ts, ok := ref.Timestamp()
		if ok && now.Sub(ts) > w.sctx.FrameExpiration {
			delete(w.unfetched, uid)
			w.completed[uid] = struct{}{}
			w.expired.Add(1)
		}
	}
}

// cycle runs one fetch stage and one decode stage concurrently and waits for both.
func (w *Worker) cycle(ctx context.Context) {
	fetchBatch := oldestRefs(w.unfetched, w.cfg.FetchConcurrency)
	for _, ref := range fetchBatch {
		delete(w.unfetched, ref.UID)
	}
	decodeBatch := oldestRaw(w.fetched, w.cfg.DecodeConcurrency)
	for _, raw := range decodeBatch {
		delete(w.fetched, raw.ref.UID)
		w.completed[raw.ref.UID] = struct{}{}
	}

	var fetchedNow []*rawFrame
	var failedNow []uint64
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		fetchedNow, failedNow = w.fetchStage(ctx, fetchBatch)
	}()
	go func() {
		defer wg.Done()
		w.decodeStage(ctx, decodeBatch)
	}()
	wg.Wait()

	for _, raw := range fetchedNow {
		w.fetched[raw.ref.UID] = raw
	}
	for _, uid := range failedNow {
		w.completed[uid] = struct{}{}
	}
}

func (w *Worker) fetchStage(ctx context.Context, batch []manifest.FrameRef) ([]*rawFrame, []uint64) {
	if len(batch) == 0 {
		return nil, nil
	}
	base := w.sctx.BaseURL

	var mu sync.Mutex
	var ok []*rawFrame
	var failed []uint64

	g := new(errgroup.Group)
	g.SetLimit(w.cfg.FetchConcurrency)
	for _, ref := range batch {
		g.Go(func() error {
			raw, err := w.fetchFrame(ctx, base, ref)
			if ctx.Err() != nil {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, ref.UID)
				w.emitError(ctx, ref, ErrorNetwork, err)
				return nil
			}
			ok = append(ok, raw)
			return nil
		})
	}
	_ = g.Wait()
	return ok, failed
}

// fetchFrame downloads mesh and texture concurrently.
func (w *Worker) fetchFrame(ctx context.Context, base string, ref manifest.FrameRef) (*rawFrame, error) {
	raw := &rawFrame{ref: ref}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := w.fetcher.Fetch(gctx, transport.Join(base, ref.MeshPath), transport.KindMesh)
		raw.mesh = data
		return err
	})
	g.Go(func() error {
		data, err := w.fetcher.Fetch(gctx, transport.Join(base, ref.TexturePath), transport.KindTexture)
		raw.texture = data
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return raw, nil
}

func (w *Worker) decodeStage(ctx context.Context, batch []*rawFrame) {
	if len(batch) == 0 {
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(w.cfg.Workers)
	for _, raw := range batch {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			frame, err := w.decodeFrame(raw)
			if err != nil {
				w.emitError(ctx, raw.ref, ErrorCodec, err)
				return nil
			}
			w.decoded.Add(1)
			w.emit(ctx, Result{Ref: raw.ref, Frame: frame})
			return nil
		})
	}
	_ = g.Wait()
}

func (w *Worker) decodeFrame(raw *rawFrame) (*mesh.DecodedFrame, error) {
	geometry, err := w.codecs.Decode(raw.ref.MeshPath, raw.mesh)
	if err != nil {
		return nil, err
	}
	texture, err := mesh.ProbeTexture(raw.ref.TexturePath, raw.texture)
	if err != nil {
		return nil, err
	}
	return mesh.NewDecodedFrame(raw.ref, geometry, texture), nil
}

func (w *Worker) emitError(ctx context.Context, ref manifest.FrameRef, kind ErrorKind, err error) {
	w.failed.Add(1)
	w.logger.Debug("frame failed",
		slog.Uint64("uid", ref.UID),
		slog.String("kind", kind.String()),
		slog.String("error", err.Error()),
	)
	w.emit(ctx, Result{Ref: ref, Err: &FrameError{Ref: ref, Kind: kind, Err: err}})
}

// emit blocks until the session drains a slot or the worker is cancelled.
func (w *Worker) emit(ctx context.Context, r Result) {
	select {
	case w.out <- r:
	case <-ctx.Done():
	}
}

func (w *Worker) publishSizes() {
	w.nUnfetched.Store(int64(len(w.unfetched)))
	w.nFetched.Store(int64(len(w.fetched)))
	w.nCompleted.Store(int64(len(w.completed)))
}

func oldestRefs(m map[uint64]manifest.FrameRef, n int) []manifest.FrameRef {
	out := make([]manifest.FrameRef, 0, len(m))
	for _, ref := range m {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func oldestRaw(m map[uint64]*rawFrame, n int) []*rawFrame {
	out := make([]*rawFrame, 0, len(m))
	for _, raw := range m {
		out = append(out, raw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ref.UID < out[j].ref.UID })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
