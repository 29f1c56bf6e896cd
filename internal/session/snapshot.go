package session

import (
	"time"

	"github.com/jmylchreest/scvv/internal/audio"
	"github.com/jmylchreest/scvv/internal/decode"
	"github.com/jmylchreest/scvv/internal/playback"
)

// Snapshot is a copy of session state published after every host event.
type Snapshot struct {
	ID              string             `json:"id"`
	Source          string             `json:"source,omitempty"`
	Closed          bool               `json:"closed"`
	Enabled         bool               `json:"enabled"`
	Mode            string             `json:"mode,omitempty"`
	ManifestVersion string             `json:"manifest_version,omitempty"`
	ManifestFrames  int                `json:"manifest_frames"`
	ManifestPolls   int64              `json:"manifest_polls"`
	Admitted        int                `json:"admitted"`
	Quarantined     int                `json:"quarantined"`
	Pending         int                `json:"pending"`
	Buffered        int                `json:"buffered"`
	BufferBytes     int                `json:"buffer_bytes"`
	Capacity        int                `json:"capacity"`
	MinBuffered     int                `json:"min_buffered"`
	Ready           bool               `json:"ready"`
	Placed          bool               `json:"placed"`
	Playback        *playback.Status   `json:"playback,omitempty"`
	Decode          *decode.Stats      `json:"decode,omitempty"`
	LiveAudio       *audio.StreamStats `json:"live_audio,omitempty"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// Snapshot returns the most recently published state.
func (s *Session) Snapshot() Snapshot {
	return *s.snapshot.Load()
}

func (s *Session) publish() {
	snap := &Snapshot{
		ID:        s.id,
		Closed:    s.closed,
		Enabled:   s.enabled,
		UpdatedAt: time.Now(),
	}

	if p := s.pipe; p != nil {
		snap.Source = p.source
		snap.ManifestPolls = p.polls.Load()
		snap.Admitted = p.filter.SeenCount()
		snap.Quarantined = p.filter.BadCount()
		snap.Pending = len(p.outbox)
		snap.Placed = p.placed

		ds := p.worker.Stats()
		snap.Decode = &ds

		if m := p.manifest; m != nil {
			snap.Mode = m.Mode.String()
			snap.ManifestVersion = m.Version
			snap.ManifestFrames = len(m.Frames)
		}
		if p.buf != nil {
			snap.Buffered = p.buf.Len()
			snap.BufferBytes = p.buf.SizeBytes()
			snap.Capacity = p.buf.Capacity()
			snap.MinBuffered = p.buf.MinBuffered()
			snap.Ready = p.buf.Ready()
		}
		if p.sched != nil {
			st := p.sched.Status()
			snap.Playback = &st
		}
		if p.stream != nil {
			st := p.stream.Stats()
			snap.LiveAudio = &st
		}
	}

	s.snapshot.Store(snap)
}
