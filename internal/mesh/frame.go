package mesh

import (
	"time"

	"github.com/jmylchreest/scvv/internal/manifest"
)

// DecodedFrame is a displayable frame: geometry plus texture, tagged with the
// reference it was decoded from.
type DecodedFrame struct {
	UID      uint64
	Ref      manifest.FrameRef
	Geometry *Geometry
	Texture  *TextureHandle
	Delay    time.Duration
}

// NewDecodedFrame assembles a frame from its decoded parts.
func NewDecodedFrame(ref manifest.FrameRef, g *Geometry, tex *TextureHandle) *DecodedFrame {
	return &DecodedFrame{
		UID:      ref.UID,
		Ref:      ref,
		Geometry: g,
		Texture:  tex,
		Delay:    ref.Delay(),
	}
}

// Released reports whether Release has been called.
func (f *DecodedFrame) Released() bool {
	return f.Geometry == nil && f.Texture == nil
}

// Release drops the frame's buffers once it leaves the playback window.
func (f *DecodedFrame) Release() {
	f.Geometry = nil
	f.Texture = nil
}

// SizeBytes estimates the memory held by the frame.
func (f *DecodedFrame) SizeBytes() int {
	size := 0
	if f.Geometry != nil {
		size += f.Geometry.SizeBytes()
	}
	if f.Texture != nil {
		size += len(f.Texture.Data)
	}
	return size
}
