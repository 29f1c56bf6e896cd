// Package buffer holds decoded frames in a bounded window sorted by UID,
// with a playback cursor that keeps pointing at the same frame across
// out-of-order inserts and evictions.
package buffer

import (
	"math"
	"sort"

	"github.com/jmylchreest/scvv/internal/config"
	"github.com/jmylchreest/scvv/internal/manifest"
	"github.com/jmylchreest/scvv/internal/mesh"
)

// FrameBuffer is owned by a single session and is not safe for concurrent use.
type FrameBuffer struct {
	frames      []*mesh.DecodedFrame
	capacity    int
	minBuffered int
	cursor      int
	shown       bool // frame under the cursor has been displayed
	ready       bool
}

// New creates a buffer holding at most capacity frames. Playback may begin
// once more than minBuffered frames are present.
func New(capacity, minBuffered int) *FrameBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if minBuffered < 0 {
		minBuffered = 0
	}
	return &FrameBuffer{
		frames:      make([]*mesh.DecodedFrame, 0, capacity),
		capacity:    capacity,
		minBuffered: minBuffered,
	}
}

// Sizing returns capacity and minBuffered for a manifest. Static clips hold
// the whole clip and need a fixed share of it before playing; live sessions
// use the configured window.
func Sizing(m *manifest.SessionManifest, cfg config.BufferConfig) (capacity, minBuffered int) {
	if m.Streaming() {
		return cfg.StreamingCapacity, cfg.StreamingMinBuffered
	}
	n := len(m.Frames)
	return n, int(math.Floor(cfg.StaticReadyRatio * float64(n)))
}

// ForManifest creates a buffer sized for m.
func ForManifest(m *manifest.SessionManifest, cfg config.BufferConfig) *FrameBuffer {
	capacity, minBuffered := Sizing(m, cfg)
	return New(capacity, minBuffered)
}

// Insert upserts a frame by UID and evicts the oldest frames beyond capacity.
// It returns the number of frames evicted.
func (b *FrameBuffer) Insert(f *mesh.DecodedFrame) int {
	i := sort.Search(len(b.frames), func(i int) bool { return b.frames[i].UID >= f.UID })

	if i < len(b.frames) && b.frames[i].UID == f.UID {
		if old := b.frames[i]; old != f {
			old.Release()
			b.frames[i] = f
		}
		return 0
	}

	b.frames = append(b.frames, nil)
	copy(b.frames[i+1:], b.frames[i:])
	b.frames[i] = f
	if len(b.frames) > 1 && (i < b.cursor || (i == b.cursor && b.shown)) {
		b.cursor++
	}

	evicted := b.evict()

	if !b.ready && len(b.frames) > b.minBuffered {
		b.ready = true
	}
	return evicted
}

func (b *FrameBuffer) evict() int {
	k := len(b.frames) - b.capacity
	if k <= 0 {
		return 0
	}
	for _, f := range b.frames[:k] {
		f.Release()
	}
	clear(b.frames[:k])
	b.frames = append(b.frames[:0], b.frames[k:]...)
	if b.cursor < k {
		b.shown = false
	}
	b.cursor = max(b.cursor-k, 0)
	return k
}

// Len returns the number of buffered frames.
func (b *FrameBuffer) Len() int { return len(b.frames) }

// Capacity returns the maximum number of frames held.
func (b *FrameBuffer) Capacity() int { return b.capacity }

// MinBuffered returns the length that must be exceeded before playback.
func (b *FrameBuffer) MinBuffered() int { return b.minBuffered }

// Ready reports whether the buffer has ever held more than minBuffered
// frames. Once true it stays true.
func (b *FrameBuffer) Ready() bool { return b.ready }

// Cursor returns the index of the next frame to display.
func (b *FrameBuffer) Cursor() int { return b.cursor }

// SetCursor moves the cursor, clamped to the buffer bounds. The frame it
// lands on counts as not yet displayed.
func (b *FrameBuffer) SetCursor(i int) {
	b.cursor = min(max(i, 0), max(len(b.frames)-1, 0))
	b.shown = false
}

// MarkShown records that the frame under the cursor has been displayed.
// Until then an insert at the cursor index takes its place as the next
// frame; afterwards the cursor follows the displayed frame.
func (b *FrameBuffer) MarkShown() {
	b.shown = len(b.frames) > 0
}

// LastIndex returns the index of the newest frame, or -1 when empty.
func (b *FrameBuffer) LastIndex() int { return len(b.frames) - 1 }

// FramesLeft returns how many frames follow the cursor.
func (b *FrameBuffer) FramesLeft() int {
	return max(b.LastIndex()-b.cursor, 0)
}

// At returns the frame at index i, or nil when out of range.
func (b *FrameBuffer) At(i int) *mesh.DecodedFrame {
	if i < 0 || i >= len(b.frames) {
		return nil
	}
	return b.frames[i]
}

// Current returns the frame under the cursor, or nil when empty.
func (b *FrameBuffer) Current() *mesh.DecodedFrame {
	return b.At(b.cursor)
}

// Contains reports whether a frame with uid is buffered.
func (b *FrameBuffer) Contains(uid uint64) bool {
	i := sort.Search(len(b.frames), func(i int) bool { return b.frames[i].UID >= uid })
	return i < len(b.frames) && b.frames[i].UID == uid
}

// UIDs returns the buffered UIDs in ascending order.
func (b *FrameBuffer) UIDs() []uint64 {
	out := make([]uint64, len(b.frames))
	for i, f := range b.frames {
		out[i] = f.UID
	}
	return out
}

// SizeBytes sums the payload size of all buffered frames.
func (b *FrameBuffer) SizeBytes() int {
	total := 0
	for _, f := range b.frames {
		total += f.SizeBytes()
	}
	return total
}

// Clear releases every frame and resets the cursor. The ready latch is kept.
func (b *FrameBuffer) Clear() {
	for _, f := range b.frames {
		f.Release()
	}
	clear(b.frames)
	b.frames = b.frames[:0]
	b.cursor = 0
	b.shown = false
}
