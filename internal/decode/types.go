// Package decode fetches and decodes frame assets off the playback path. The
// Worker runs in its own goroutine and talks to its session only through
// channels.
package decode

import (
	"fmt"
	"time"

	"github.com/jmylchreest/scvv/internal/config"
	"github.com/jmylchreest/scvv/internal/manifest"
	"github.com/jmylchreest/scvv/internal/mesh"
)

// SessionContext is the per-session information the worker needs to resolve
// and expire frames.
type SessionContext struct {
	BaseURL         string
	Streaming       bool
	FrameExpiration time.Duration
}

// ContextFrom builds a SessionContext from a manifest.
func ContextFrom(m *manifest.SessionManifest) SessionContext {
	return SessionContext{
		BaseURL:         m.BaseURL,
		Streaming:       m.Streaming(),
		FrameExpiration: m.FrameExpiration,
	}
}

// Request hands newly admitted frames to the worker.
type Request struct {
	Frames  []manifest.FrameRef
	Context SessionContext
}

// ErrorKind classifies frame failures.
type ErrorKind int

const (
	ErrorNetwork ErrorKind = iota
	ErrorCodec
)

func (k ErrorKind) String() string {
	if k == ErrorCodec {
		return "codec"
	}
	return "network"
}

// FrameError reports a frame that could not be fetched or decoded. It is
// never retried.
type FrameError struct {
	Ref  manifest.FrameRef
	Kind ErrorKind
	Err  error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %s error: %v", e.Ref.UID, e.Kind, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Result carries exactly one of Frame or Err.
type Result struct {
	Ref   manifest.FrameRef
	Frame *mesh.DecodedFrame
	Err   *FrameError
}

// Config controls worker concurrency and pacing.
type Config struct {
	FetchConcurrency  int
	DecodeConcurrency int
	Workers           int
	IdleInterval      time.Duration
	QueueSize         int
}

// ConfigFrom converts the decode configuration section.
func ConfigFrom(cfg config.DecodeConfig) Config {
	return Config{
		FetchConcurrency:  cfg.FetchConcurrency,
		DecodeConcurrency: cfg.DecodeConcurrency,
		Workers:           cfg.Workers,
		IdleInterval:      cfg.IdleInterval,
		QueueSize:         cfg.QueueSize,
	}
}

// Stats is a point-in-time view of worker progress.
type Stats struct {
	Unfetched int   `json:"unfetched"`
	Fetched   int   `json:"fetched"`
	Completed int   `json:"completed"`
	Decoded   int64 `json:"decoded"`
	Failed    int64 `json:"failed"`
	Expired   int64 `json:"expired"`
}

type rawFrame struct {
	ref     manifest.FrameRef
	mesh    []byte
	texture []byte
}
