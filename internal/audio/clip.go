package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jmylchreest/scvv/internal/task"
	"github.com/jmylchreest/scvv/internal/transport"
)

// Clip plays the single audio track of a static clip, aligned to the
// first frame of each playback pass.
type Clip struct {
	fetcher transport.Fetcher
	url     string
	offset  time.Duration
	device  Device
	decoder Decoder
	runner  *task.Runner
	logger  *slog.Logger

	loads singleflight.Group

	mu      sync.Mutex
	buf     *Buffer
	pending *task.Handle
}

// NewClip creates a player for the track at url. A positive offset delays
// audio behind the first frame; a negative one skips into the track.
func NewClip(fetcher transport.Fetcher, url string, offset time.Duration, device Device, decoder Decoder, runner *task.Runner) *Clip {
	return &Clip{
		fetcher: fetcher,
		url:     url,
		offset:  offset,
		device:  device,
		decoder: decoder,
		runner:  runner,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (c *Clip) WithLogger(logger *slog.Logger) *Clip {
	c.logger = logger
	return c
}

// Load downloads and decodes the track once. Concurrent callers share the
// same download; failures are not cached.
func (c *Clip) Load(ctx context.Context) (*Buffer, error) {
	c.mu.Lock()
	buf := c.buf
	c.mu.Unlock()
	if buf != nil {
		return buf, nil
	}

	v, err, _ := c.loads.Do(c.url, func() (any, error) {
		data, err := c.fetcher.Fetch(ctx, c.url, transport.KindAudio)
		if err != nil {
			return nil, err
		}
		decoded, err := c.decoder.Decode(ctx, data, c.device.SampleRate())
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", c.url, err)
		}
		c.mu.Lock()
		c.buf = decoded
		c.mu.Unlock()
		c.logger.Debug("clip audio loaded",
			slog.String("url", c.url),
			slog.Duration("duration", decoded.Duration()),
		)
		return decoded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Buffer), nil
}

// Cue schedules playback for a pass that has been running for elapsed. It
// never blocks; loading happens on the task runner.
func (c *Clip) Cue(elapsed time.Duration) {
	delay, position := time.Duration(0), elapsed-c.offset
	if c.offset > 0 {
		delay, position = c.offset, 0
	}

	h := c.runner.After("clip-audio", delay, func(ctx context.Context) {
		buf, err := c.Load(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("clip audio unavailable", slog.String("error", err.Error()))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err := c.device.Play(buf, position); err != nil {
			c.logger.Warn("clip audio play failed", slog.String("error", err.Error()))
		}
	})

	c.mu.Lock()
	prev := c.pending
	c.pending = h
	c.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
}

// Stop cancels any pending cue, waits for it to exit and silences the device.
func (c *Clip) Stop() {
	c.mu.Lock()
	prev := c.pending
	c.pending = nil
	c.mu.Unlock()
	if prev != nil {
		prev.Cancel()
		<-prev.Done()
	}
	c.device.Stop()
}
