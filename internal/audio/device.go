package audio

import (
	"sync"
	"time"
)

// Device is an audio output. Implementations must be safe for concurrent use.
type Device interface {
	SampleRate() int
	// Play replaces whatever is playing with buf, starting offset into it.
	Play(buf *Buffer, offset time.Duration) error
	Stop()
	Playing() bool
}

// Playback records one Play call on a ClockDevice.
type Playback struct {
	Samples int
	Offset  time.Duration
	At      time.Time
}

// DefaultHistoryLimit is how many Play calls a ClockDevice remembers.
const DefaultHistoryLimit = 256

// ClockDevice tracks what would be audible without producing sound. It keeps
// the most recent Play calls and a running total.
type ClockDevice struct {
	mu         sync.Mutex
	sampleRate int
	now        func() time.Time

	current   *Buffer
	startedAt time.Time
	offset    time.Duration
	history   []Playback
	limit     int
	plays     int64
}

// NewClockDevice creates a silent device at sampleRate.
func NewClockDevice(sampleRate int) *ClockDevice {
	return &ClockDevice{sampleRate: sampleRate, now: time.Now, limit: DefaultHistoryLimit}
}

// WithHistoryLimit sets how many recent Play calls are kept. Values below 1
// keep one.
func (d *ClockDevice) WithHistoryLimit(n int) *ClockDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.limit = max(n, 1)
	if over := len(d.history) - d.limit; over > 0 {
		d.history = append(d.history[:0], d.history[over:]...)
	}
	return d
}

func (d *ClockDevice) SampleRate() int {
	return d.sampleRate
}

func (d *ClockDevice) Play(buf *Buffer, offset time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	d.current = buf
	d.startedAt = now
	d.offset = offset
	if len(d.history) == d.limit {
		d.history = append(d.history[:0], d.history[1:]...)
	}
	d.history = append(d.history, Playback{Samples: buf.Len(), Offset: offset, At: now})
	d.plays++
	return nil
}

func (d *ClockDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = nil
}

// Playing reports whether the current buffer has audio left at the device clock.
func (d *ClockDevice) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return false
	}
	return d.now().Sub(d.startedAt) < d.current.Duration()-d.offset
}

// Plays returns the number of Play calls since creation.
func (d *ClockDevice) Plays() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.plays
}

// History returns the most recent Play calls, oldest first.
func (d *ClockDevice) History() []Playback {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Playback(nil), d.history...)
}
