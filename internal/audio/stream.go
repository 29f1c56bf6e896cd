package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/scvv/internal/config"
	"github.com/jmylchreest/scvv/internal/task"
	"github.com/jmylchreest/scvv/internal/transport"
)

// DescriptorFile is polled for the newest live audio chunk.
const DescriptorFile = "audio.json"

// Descriptor announces the newest audio chunk of a live session.
type Descriptor struct {
	Timestamp json.Number `json:"timestamp"`
	Path      string      `json:"scvv_audio"`
}

// StreamConfig controls live audio polling and playback.
type StreamConfig struct {
	PollInterval       time.Duration
	RetryInterval      time.Duration
	Lookahead          int
	MinSamples         int
	StartDelayBase     time.Duration
	StartDelayPerFrame time.Duration
}

// StreamConfigFrom converts the audio configuration section.
func StreamConfigFrom(cfg config.AudioConfig) StreamConfig {
	return StreamConfig{
		PollInterval:       cfg.PollInterval,
		RetryInterval:      cfg.RetryInterval,
		Lookahead:          cfg.Lookahead,
		MinSamples:         cfg.MinSamples,
		StartDelayBase:     cfg.StartDelayBase,
		StartDelayPerFrame: cfg.StartDelayPerFrame,
	}
}

// StartDelay is how long playback waits so audio trails the frame buffer.
func (c StreamConfig) StartDelay(minBuffered int) time.Duration {
	return c.StartDelayBase + time.Duration(minBuffered)*c.StartDelayPerFrame
}

// StreamStats is a point-in-time view of a Stream.
type StreamStats struct {
	LastTimestamp float64 `json:"last_timestamp"`
	Queued        int     `json:"queued"`
	Enqueued      int64   `json:"enqueued"`
	Played        int64   `json:"played"`
	Dropped       int64   `json:"dropped"`
}

// Stream plays live audio with two independent tasks: one polls for new
// chunks and queues them, the other plays the queue back to back.
type Stream struct {
	fetcher transport.Fetcher
	baseURL string
	device  Device
	cfg     StreamConfig
	runner  *task.Runner
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	queue   []*Buffer
	last    float64
	hasLast bool
	stats   StreamStats
	poll    *task.Handle
	play    *task.Handle
}

// NewStream creates a live audio player for the session at baseURL.
func NewStream(fetcher transport.Fetcher, baseURL string, device Device, cfg StreamConfig, runner *task.Runner) *Stream {
	return &Stream{
		fetcher: fetcher,
		baseURL: baseURL,
		device:  device,
		cfg:     cfg,
		runner:  runner,
		logger:  slog.Default(),
		now:     time.Now,
	}
}

// WithLogger sets a custom logger.
func (s *Stream) WithLogger(logger *slog.Logger) *Stream {
	s.logger = logger
	return s
}

// Start launches both tasks. Calling it while running has no effect.
func (s *Stream) Start(minBuffered int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poll != nil {
		return
	}

	s.poll = s.runner.Repeat("audio-poll", 0, func(ctx context.Context) time.Duration {
		if err := s.PollOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Debug("live audio poll failed", slog.String("error", err.Error()))
		}
		return s.cfg.PollInterval
	})
	s.play = s.runner.Repeat("audio-play", s.cfg.StartDelay(minBuffered), s.playNext)

	s.logger.Debug("live audio started",
		slog.Duration("start_delay", s.cfg.StartDelay(minBuffered)),
	)
}

// Stop cancels both tasks, waits for them to exit, drops queued audio and
// silences the device.
func (s *Stream) Stop() {
	s.mu.Lock()
	poll, play := s.poll, s.play
	s.poll, s.play = nil, nil
	s.mu.Unlock()

	for _, h := range []*task.Handle{poll, play} {
		if h != nil {
			h.Cancel()
			<-h.Done()
		}
	}

	s.mu.Lock()
	clear(s.queue)
	s.queue = nil
	s.mu.Unlock()
	s.device.Stop()
}

// PollOnce fetches the descriptor and, when it names a newer chunk, queues it.
func (s *Stream) PollOnce(ctx context.Context) error {
	descURL := transport.WithCacheBust(transport.Join(s.baseURL, DescriptorFile), s.now())
	raw, err := s.fetcher.Fetch(ctx, descURL, transport.KindAudioDescriptor)
	if err != nil {
		return err
	}

	var desc Descriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return fmt.Errorf("parsing %s: %w", DescriptorFile, err)
	}
	ts, err := desc.Timestamp.Float64()
	if err != nil {
		return fmt.Errorf("parsing %s timestamp: %w", DescriptorFile, err)
	}

	if !s.claim(ts) {
		return nil
	}
	if desc.Path == "" {
		return fmt.Errorf("%s has no scvv_audio path", DescriptorFile)
	}

	data, err := s.fetcher.Fetch(ctx, transport.Join(s.baseURL, desc.Path), transport.KindAudio)
	if err != nil {
		return err
	}
	buf, err := FromFloat32LE(data, s.device.SampleRate())
	if err != nil {
		return fmt.Errorf("chunk %s: %w", desc.Path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if buf.Len() < s.cfg.MinSamples {
		s.stats.Dropped++
		return nil
	}
	s.queue = append(s.queue, buf)
	s.stats.Enqueued++
	return nil
}

// claim records ts as the newest timestamp if it is newer than the last one.
func (s *Stream) claim(ts float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasLast && ts <= s.last {
		return false
	}
	s.last = ts
	s.hasLast = true
	return true
}

func (s *Stream) playNext(ctx context.Context) time.Duration {
	s.mu.Lock()
	if len(s.queue) < max(s.cfg.Lookahead, 1) {
		s.mu.Unlock()
		return s.cfg.RetryInterval
	}
	buf := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.stats.Played++
	s.mu.Unlock()

	if ctx.Err() != nil {
		return task.Done
	}
	if err := s.device.Play(buf, 0); err != nil {
		s.logger.Warn("live audio play failed", slog.String("error", err.Error()))
		return s.cfg.RetryInterval
	}
	return buf.Duration()
}

// Stats returns a snapshot of queue and counters.
func (s *Stream) Stats() StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.LastTimestamp = s.last
	st.Queued = len(s.queue)
	return st
}
