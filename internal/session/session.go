// Package session wires one playback session together: manifest polling,
// admission, the decode worker, the frame buffer, the scheduler and audio.
// Host events arrive on a single goroutine; background work reports back
// through channels and slices drained in Tick.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/scvv/internal/admission"
	"github.com/jmylchreest/scvv/internal/audio"
	"github.com/jmylchreest/scvv/internal/buffer"
	"github.com/jmylchreest/scvv/internal/config"
	"github.com/jmylchreest/scvv/internal/decode"
	"github.com/jmylchreest/scvv/internal/manifest"
	"github.com/jmylchreest/scvv/internal/mesh"
	"github.com/jmylchreest/scvv/internal/observability"
	"github.com/jmylchreest/scvv/internal/playback"
	"github.com/jmylchreest/scvv/internal/task"
	"github.com/jmylchreest/scvv/internal/transport"
)

// Options carries the collaborators a session needs. Device may be nil to
// run without audio.
type Options struct {
	Config   *config.Config
	Fetcher  transport.Fetcher
	Codecs   *mesh.Registry
	Renderer Renderer
	Device   audio.Device
	Decoder  audio.Decoder
	Logger   *slog.Logger
}

// Session is a single player instance. Tick, Start, Stop, SourceChanged,
// SetHostActive, SetTrackingReady and Close must be called from one
// goroutine. Snapshot and Post are safe from any goroutine.
type Session struct {
	id       string
	cfg      *config.Config
	fetcher  transport.Fetcher
	codecs   *mesh.Registry
	renderer Renderer
	device   audio.Device
	decoder  audio.Decoder
	logger   *slog.Logger
	resolver *manifest.Resolver

	ctx    context.Context
	cancel context.CancelFunc

	pipe          *pipeline
	enabled       bool
	hostActive    bool
	trackingReady bool
	closed        bool

	commands chan Command
	snapshot atomic.Pointer[Snapshot]
}

// pipeline is the per-source state, replaced wholesale on SourceChanged.
type pipeline struct {
	source string
	runner *task.Runner

	worker       *decode.Worker
	workerCancel context.CancelFunc
	workerDone   chan struct{}

	filter   *admission.Filter
	manifest *manifest.SessionManifest
	sctx     decode.SessionContext
	outbox   []manifest.FrameRef

	buf    *buffer.FrameBuffer
	sched  *playback.Scheduler
	clip   *audio.Clip
	stream *audio.Stream

	placed     bool
	autoplayed bool

	mu       sync.Mutex
	incoming []*manifest.SessionManifest
	polls    atomic.Int64
}

// New creates an idle session. Call SourceChanged to begin loading.
func New(parent context.Context, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := ulid.Make().String()
	logger = observability.WithSession(observability.WithComponent(logger, "session"), id)

	codecs := opts.Codecs
	if codecs == nil {
		codecs = mesh.DefaultRegistry()
	}
	decoder := opts.Decoder
	if decoder == nil {
		decoder = audio.ChainDecoder{}
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:            id,
		cfg:           opts.Config,
		fetcher:       opts.Fetcher,
		codecs:        codecs,
		renderer:      opts.Renderer,
		device:        opts.Device,
		decoder:       decoder,
		logger:        logger,
		resolver:      manifest.NewResolver(opts.Fetcher, opts.Config.Manifest.FrameExpiration).WithLogger(logger),
		ctx:           ctx,
		cancel:        cancel,
		hostActive:    true,
		trackingReady: true,
		commands:      make(chan Command, commandQueueSize),
	}
	s.publish()
	return s
}

// ID returns the session's ULID.
func (s *Session) ID() string {
	return s.id
}

// SourceChanged tears down the current source and starts loading baseURL.
// Frames, quarantine and audio from the previous source are discarded.
func (s *Session) SourceChanged(baseURL string) {
	if s.closed {
		return
	}
	s.teardown()

	source := transport.NormalizeBase(baseURL)
	p := &pipeline{
		source: source,
		runner: task.NewRunner(s.ctx).WithLogger(s.logger),
		filter: admission.NewFilter(),
	}

	p.worker = decode.NewWorker(s.fetcher, s.codecs, decode.ConfigFrom(s.cfg.Decode)).
		WithLogger(observability.WithComponent(s.logger, "decode"))
	workerCtx, workerCancel := context.WithCancel(s.ctx)
	p.workerCancel = workerCancel
	p.workerDone = make(chan struct{})
	go func() {
		defer close(p.workerDone)
		_ = p.worker.Run(workerCtx)
	}()

	pc := manifest.PollConfigFrom(s.cfg.Manifest)
	backlog := func() int {
		st := p.worker.Stats()
		return st.Unfetched + st.Fetched
	}
	poll := s.resolver.PollFunc(source, pc, backlog, func(m *manifest.SessionManifest) {
		p.polls.Add(1)
		p.mu.Lock()
		p.incoming = append(p.incoming, m)
		p.mu.Unlock()
	})
	p.runner.Repeat("manifest-poll", 0, poll)

	s.pipe = p
	s.logger.Info("source changed", slog.String("source", source))
	s.publish()
}

// Start enables playback. It takes effect once the first manifest arrives.
func (s *Session) Start() {
	if s.closed {
		return
	}
	s.enabled = true
	if p := s.pipe; p != nil && p.sched != nil {
		s.startPlayback(p)
	}
	s.publish()
}

// Stop disables playback and silences audio.
func (s *Session) Stop() {
	if s.closed {
		return
	}
	s.enabled = false
	if p := s.pipe; p != nil {
		if p.sched != nil {
			p.sched.Stop()
		}
		if p.stream != nil {
			p.stream.Stop()
		}
	}
	s.publish()
}

// SetHostActive gates playback on host visibility.
func (s *Session) SetHostActive(active bool) {
	s.hostActive = active
	if p := s.pipe; p != nil && p.sched != nil {
		p.sched.SetHostActive(active)
	}
}

// SetTrackingReady gates playback on spatial tracking.
func (s *Session) SetTrackingReady(ready bool) {
	s.trackingReady = ready
	if p := s.pipe; p != nil && p.sched != nil {
		p.sched.SetTrackingReady(ready)
	}
}

// Tick advances the session by delta. It never blocks on network or decode
// work; whatever has arrived since the last tick is applied.
func (s *Session) Tick(delta time.Duration) *mesh.DecodedFrame {
	if s.closed {
		return nil
	}
	s.applyCommands()
	p := s.pipe
	if p == nil {
		s.publish()
		return nil
	}

	p.mu.Lock()
	incoming := p.incoming
	p.incoming = nil
	p.mu.Unlock()
	for _, m := range incoming {
		s.applyManifest(p, m)
	}

	if len(p.outbox) > 0 && p.worker.Submit(decode.Request{Frames: p.outbox, Context: p.sctx}) {
		p.outbox = nil
	}

	s.drainResults(p)

	if p.buf != nil && s.cfg.Playback.Autoplay && !p.autoplayed && p.buf.Ready() {
		p.autoplayed = true
		s.enabled = true
		s.startPlayback(p)
	}

	var shown *mesh.DecodedFrame
	if p.sched != nil {
		shown = p.sched.Tick(delta)
	}
	s.publish()
	return shown
}

func (s *Session) applyManifest(p *pipeline, m *manifest.SessionManifest) {
	if p.manifest == nil {
		s.initPlayback(p, m)
	}
	p.manifest = m
	p.sctx = decode.ContextFrom(m)

	admitted := p.filter.Admit(m.Frames)
	p.outbox = append(p.outbox, admitted...)

	s.logger.Debug("manifest applied",
		slog.String("mode", m.Mode.String()),
		slog.Int("frames", len(m.Frames)),
		slog.Int("admitted", len(admitted)),
	)
}

// initPlayback sizes the buffer and builds the scheduler and audio from the
// first manifest of a source.
func (s *Session) initPlayback(p *pipeline, m *manifest.SessionManifest) {
	streaming := m.Streaming()
	p.buf = buffer.ForManifest(m, s.cfg.Buffer)
	p.sched = playback.NewScheduler(p.buf, playback.PacerFor(streaming, s.cfg.Playback), playback.Options{
		Loop:         s.cfg.Playback.Loop,
		Streaming:    streaming,
		InitialDelay: s.cfg.Playback.InitialDelay,
	}).WithLogger(observability.WithComponent(s.logger, "playback"))
	if s.renderer != nil {
		p.sched.WithDisplay(s.renderer)
	}
	p.sched.SetHostActive(s.hostActive)
	p.sched.SetTrackingReady(s.trackingReady)

	if s.device != nil && s.cfg.Audio.Enabled {
		audioLogger := observability.WithComponent(s.logger, "audio")
		switch {
		case streaming:
			p.stream = audio.NewStream(s.fetcher, m.BaseURL, s.device, audio.StreamConfigFrom(s.cfg.Audio), p.runner).
				WithLogger(audioLogger)
		case m.AudioURL() != "":
			p.clip = audio.NewClip(s.fetcher, m.AudioURL(), m.AudioOffset, s.device, s.decoder, p.runner).
				WithLogger(audioLogger)
			p.sched.WithAudio(p.clip)
		}
	}

	s.logger.Info("playback initialised",
		slog.String("mode", m.Mode.String()),
		slog.Int("capacity", p.buf.Capacity()),
		slog.Int("min_buffered", p.buf.MinBuffered()),
		slog.Bool("clip_audio", p.clip != nil),
		slog.Bool("live_audio", p.stream != nil),
	)

	if s.enabled {
		s.startPlayback(p)
	}
}

func (s *Session) startPlayback(p *pipeline) {
	p.sched.Start()
	if p.stream != nil {
		p.stream.Start(p.buf.MinBuffered())
	}
}

func (s *Session) drainResults(p *pipeline) {
	for {
		select {
		case r := <-p.worker.Results():
			s.handleResult(p, r)
		default:
			return
		}
	}
}

func (s *Session) handleResult(p *pipeline, r decode.Result) {
	if r.Err != nil {
		p.filter.MarkBad(r.Ref.UID)
		s.logger.Debug("frame quarantined",
			slog.Uint64("uid", r.Ref.UID),
			slog.String("kind", r.Err.Kind.String()),
			slog.String("error", r.Err.Error()),
		)
		return
	}
	if p.buf == nil || p.filter.IsBad(r.Ref.UID) {
		r.Frame.Release()
		return
	}

	p.buf.Insert(r.Frame)
	if !p.placed && s.renderer != nil {
		p.placed = true
		s.renderer.Place(PlacementFor(p.manifest, r.Frame))
	}
}

// Close stops every background task and releases buffered frames. The
// session cannot be reused.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.teardown()
	s.closed = true
	s.cancel()
	s.publish()
	s.logger.Info("session closed")
}

func (s *Session) teardown() {
	p := s.pipe
	if p == nil {
		return
	}
	s.pipe = nil

	if p.sched != nil {
		p.sched.Stop()
	}
	if p.clip != nil {
		p.clip.Stop()
	}
	if p.stream != nil {
		p.stream.Stop()
	}
	p.runner.Stop()
	p.workerCancel()
	<-p.workerDone
	if p.buf != nil {
		p.buf.Clear()
	}
}
