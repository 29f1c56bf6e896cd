// Package playback advances the frame buffer cursor on host ticks. The
// scheduler never owns a timer; the host drives it with elapsed deltas.
package playback

import (
	"log/slog"
	"time"

	"github.com/jmylchreest/scvv/internal/buffer"
	"github.com/jmylchreest/scvv/internal/mesh"
)

// State is the playback lifecycle state.
type State int

const (
	StateIdle State = iota
	StateBuffering
	StatePlaying
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Display receives each frame as it becomes current.
type Display interface {
	Display(f *mesh.DecodedFrame)
}

// AudioCue is the clip audio control the scheduler drives at pass boundaries.
type AudioCue interface {
	Cue(elapsed time.Duration)
	Stop()
}

// Options configures a Scheduler.
type Options struct {
	Loop         bool
	Streaming    bool
	InitialDelay time.Duration
}

// Status is a read-only view of the scheduler.
type Status struct {
	State         string        `json:"state"`
	Enabled       bool          `json:"enabled"`
	HostActive    bool          `json:"host_active"`
	TrackingReady bool          `json:"tracking_ready"`
	Cursor        int           `json:"cursor"`
	CurrentUID    uint64        `json:"current_uid"`
	Displayed     int64         `json:"displayed"`
	Loops         int64         `json:"loops"`
	Elapsed       time.Duration `json:"elapsed"`
	Delay         time.Duration `json:"delay"`
}

// Scheduler is owned by a single session and is not safe for concurrent use.
type Scheduler struct {
	buf     *buffer.FrameBuffer
	pacer   Pacer
	opts    Options
	display Display
	audio   AudioCue
	logger  *slog.Logger

	state         State
	enabled       bool
	hostActive    bool
	trackingReady bool

	accum       time.Duration
	delay       time.Duration
	elapsed     time.Duration
	passElapsed time.Duration

	started   bool
	held      bool
	displayed int64
	loops     int64
	current   uint64
}

// NewScheduler creates an idle scheduler over buf. Host gates start open.
func NewScheduler(buf *buffer.FrameBuffer, pacer Pacer, opts Options) *Scheduler {
	return &Scheduler{
		buf:           buf,
		pacer:         pacer,
		opts:          opts,
		logger:        slog.Default(),
		state:         StateIdle,
		hostActive:    true,
		trackingReady: true,
		delay:         opts.InitialDelay,
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// WithDisplay sets the frame sink.
func (s *Scheduler) WithDisplay(d Display) *Scheduler {
	s.display = d
	return s
}

// WithAudio sets the clip audio cue.
func (s *Scheduler) WithAudio(a AudioCue) *Scheduler {
	s.audio = a
	return s
}

// Start enables playback. Calling it while enabled has no effect.
func (s *Scheduler) Start() {
	if s.enabled {
		return
	}
	s.enabled = true
	if !s.started {
		s.started = true
		s.buf.SetCursor(0)
	}
	s.state = StateBuffering
	s.logger.Debug("playback started")
}

// Stop disables playback and stops audio. Calling it while stopped has no effect.
func (s *Scheduler) Stop() {
	if !s.enabled {
		return
	}
	s.enabled = false
	s.state = StateStopped
	if s.audio != nil {
		s.audio.Stop()
	}
	s.logger.Debug("playback stopped", slog.Int64("displayed", s.displayed))
}

// SetHostActive opens or closes the host visibility gate.
func (s *Scheduler) SetHostActive(active bool) { s.hostActive = active }

// SetTrackingReady opens or closes the spatial tracking gate.
func (s *Scheduler) SetTrackingReady(ready bool) { s.trackingReady = ready }

// State returns the current lifecycle state.
func (s *Scheduler) State() State { return s.state }

// Tick accumulates delta and displays at most one frame when the delay has
// elapsed and every gate is open. It returns the displayed frame or nil.
func (s *Scheduler) Tick(delta time.Duration) *mesh.DecodedFrame {
	s.accum += delta

	if !s.enabled || !s.hostActive || !s.trackingReady {
		return nil
	}
	if s.buf.Len() <= s.buf.MinBuffered() {
		s.state = StateBuffering
		return nil
	}
	if s.held {
		if s.buf.LastIndex() <= s.buf.Cursor() {
			if s.opts.Streaming {
				s.state = StateBuffering
			}
			return nil
		}
		s.held = false
		s.buf.SetCursor(s.buf.Cursor() + 1)
	}
	if s.accum < s.delay {
		return nil
	}

	f := s.buf.Current()
	if f == nil {
		return nil
	}
	if s.buf.Cursor() == 0 && s.audio != nil {
		s.audio.Cue(s.passElapsed)
	}

	s.delay = s.pacer.Delay(f, s.buf.FramesLeft())
	if s.display != nil {
		s.display.Display(f)
	}
	s.elapsed += s.accum
	s.passElapsed += s.accum
	s.accum = 0
	s.buf.MarkShown()
	s.displayed++
	s.current = f.UID
	s.state = StatePlaying

	s.advance()
	return f
}

func (s *Scheduler) advance() {
	cursor := s.buf.Cursor()
	switch {
	case cursor < s.buf.LastIndex():
		s.buf.SetCursor(cursor + 1)
	case !s.opts.Streaming && s.opts.Loop:
		s.buf.SetCursor(0)
		s.passElapsed = 0
		s.loops++
		if s.audio != nil {
			s.audio.Stop()
		}
	default:
		s.held = true
	}
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	return Status{
		State:         s.state.String(),
		Enabled:       s.enabled,
		HostActive:    s.hostActive,
		TrackingReady: s.trackingReady,
		Cursor:        s.buf.Cursor(),
		CurrentUID:    s.current,
		Displayed:     s.displayed,
		Loops:         s.loops,
		Elapsed:       s.elapsed,
		Delay:         s.delay,
	}
}
