package playback

import (
	"time"

	"github.com/jmylchreest/scvv/internal/config"
	"github.com/jmylchreest/scvv/internal/mesh"
)

// Pacer decides how long the frame just displayed stays on screen.
type Pacer interface {
	Delay(f *mesh.DecodedFrame, framesLeft int) time.Duration
}

// StaticPacer uses each frame's recorded delay minus a fixed render overhead.
type StaticPacer struct {
	RenderOverhead  time.Duration
	MinFrameSpacing time.Duration
}

// Delay returns floor(delay to ms) - overhead, never below MinFrameSpacing.
func (p StaticPacer) Delay(f *mesh.DecodedFrame, _ int) time.Duration {
	d := f.Delay.Truncate(time.Millisecond) - p.RenderOverhead
	return max(d, p.MinFrameSpacing)
}

// RampPacer plays faster as the backlog grows so live playback catches up
// with the capture edge.
type RampPacer struct {
	MinDelay        time.Duration
	MaxDelay        time.Duration
	Step            time.Duration
	HighWater       int
	MinFrameSpacing time.Duration
}

// Delay ignores the frame and ramps on the number of frames behind the cursor.
func (p RampPacer) Delay(_ *mesh.DecodedFrame, framesLeft int) time.Duration {
	d := p.MinDelay
	if framesLeft < p.HighWater {
		d = max(p.MaxDelay-time.Duration(framesLeft)*p.Step, p.MinDelay)
	}
	return max(d, p.MinFrameSpacing)
}

// PacerFor picks the pacer for a session mode.
func PacerFor(streaming bool, cfg config.PlaybackConfig) Pacer {
	if streaming {
		return RampPacer{
			MinDelay:        cfg.Ramp.MinDelay,
			MaxDelay:        cfg.Ramp.MaxDelay,
			Step:            cfg.Ramp.Step,
			HighWater:       cfg.Ramp.HighWater,
			MinFrameSpacing: cfg.MinFrameSpacing,
		}
	}
	return StaticPacer{
		RenderOverhead:  cfg.RenderOverhead,
		MinFrameSpacing: cfg.MinFrameSpacing,
	}
}
