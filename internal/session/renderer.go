package session

import (
	"log/slog"

	"github.com/jmylchreest/scvv/internal/manifest"
	"github.com/jmylchreest/scvv/internal/mesh"
)

// Placement positions content in the host scene. Offset is applied before
// Transform.
type Placement struct {
	Transform manifest.Matrix4 `json:"transform"`
	Offset    [3]float64       `json:"offset"`
}

// PlacementFor centres content on the first frame: pushed back along z by
// half its bounding radius, then converted to the host's axes.
func PlacementFor(m *manifest.SessionManifest, first *mesh.DecodedFrame) Placement {
	p := Placement{Transform: m.Transform}
	if first.Geometry != nil {
		p.Offset[2] = -first.Geometry.BoundingSphere().Radius / 2
	}
	return p
}

// Renderer is the host's display surface. It is called only from the host
// goroutine.
type Renderer interface {
	Display(f *mesh.DecodedFrame)
	Place(p Placement)
}

// LogRenderer logs frames instead of drawing them.
type LogRenderer struct {
	logger *slog.Logger
}

// NewLogRenderer creates a renderer that logs at debug level.
func NewLogRenderer(logger *slog.Logger) *LogRenderer {
	return &LogRenderer{logger: logger}
}

func (r *LogRenderer) Display(f *mesh.DecodedFrame) {
	r.logger.Debug("frame displayed",
		slog.Uint64("uid", f.UID),
		slog.Int("vertices", f.Geometry.VertexCount()),
	)
}

func (r *LogRenderer) Place(p Placement) {
	r.logger.Info("content placed", slog.Float64("offset_z", p.Offset[2]))
}
