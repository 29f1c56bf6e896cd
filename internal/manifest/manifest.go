// Package manifest resolves and parses session manifests (scvv.json) into
// typed frame references, and polls live manifests for new frames.
package manifest

import (
	"fmt"
	"time"

	"github.com/jmylchreest/scvv/internal/transport"
)

// FileName is the manifest file name under a session base URL.
const FileName = "scvv.json"

// Mode distinguishes finite clips from unbounded live streams.
type Mode int

const (
	ModeStatic Mode = iota
	ModeStreaming
)

func (m Mode) String() string {
	if m == ModeStreaming {
		return "streaming"
	}
	return "static"
}

// FrameRef identifies one frame and where its assets live. UIDs are unique
// and monotonically increasing in capture order.
type FrameRef struct {
	UID uint64
	// Timestamped is set when UID is a capture time in Unix microseconds.
	// Other frames are numbered by the manifest's listing order.
	Timestamped bool
	MeshPath    string
	TexturePath string
	DelayMicros int64
	Index       int
}

// Timestamp interprets the UID as Unix microseconds. ok is false for frames
// without a capture time.
func (f FrameRef) Timestamp() (ts time.Time, ok bool) {
	if !f.Timestamped {
		return time.Time{}, false
	}
	return time.UnixMicro(int64(f.UID)), true
}

// Delay is the recorded display duration of the frame.
func (f FrameRef) Delay() time.Duration {
	return time.Duration(f.DelayMicros) * time.Microsecond
}

// SessionManifest is one parsed fetch of scvv.json. It is never mutated after Parse.
type SessionManifest struct {
	BaseURL         string
	Mode            Mode
	Version         string
	Frames          []FrameRef
	Audio           string
	AudioOffset     time.Duration
	Transform       Matrix4
	FrameExpiration time.Duration
}

// Streaming reports whether the manifest describes a live stream.
func (m *SessionManifest) Streaming() bool {
	return m.Mode == ModeStreaming
}

// URL resolves an asset path against the session base URL.
func (m *SessionManifest) URL(path string) string {
	return transport.Join(m.BaseURL, path)
}

// AudioURL returns the clip audio URL, or "" when the clip has no audio.
func (m *SessionManifest) AudioURL() string {
	if m.Audio == "" {
		return ""
	}
	return m.URL(m.Audio)
}

// ParseError reports a manifest payload that could not be decoded.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing manifest %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
