// Package mesh holds decoded frame geometry and textures and the codecs that
// produce them.
package mesh

import (
	"fmt"
	"math"
)

// Standard attribute names.
const (
	AttrPosition = "position"
	AttrNormal   = "normal"
	AttrColor    = "color"
	AttrUV       = "uv"
)

// Kind is the primitive type of a geometry.
type Kind int

const (
	KindTriangleMesh Kind = iota
	KindPointCloud
)

func (k Kind) String() string {
	if k == KindPointCloud {
		return "point_cloud"
	}
	return "triangle_mesh"
}

// Attribute is a tightly packed per-vertex buffer.
type Attribute struct {
	Components int
	Data       []float32
}

// Count returns the number of vertices the attribute covers.
func (a Attribute) Count() int {
	if a.Components == 0 {
		return 0
	}
	return len(a.Data) / a.Components
}

// Geometry is a decoded mesh or point cloud.
type Geometry struct {
	Kind       Kind
	Attributes map[string]Attribute
	Indices    []uint32
}

// VertexCount returns the number of positions.
func (g *Geometry) VertexCount() int {
	return g.Attributes[AttrPosition].Count()
}

// Validate checks that attributes agree on vertex count and indices are in range.
func (g *Geometry) Validate() error {
	pos, ok := g.Attributes[AttrPosition]
	if !ok || pos.Components != 3 {
		return fmt.Errorf("geometry has no 3-component position attribute")
	}
	n := pos.Count()
	for name, attr := range g.Attributes {
		if attr.Components < 1 || len(attr.Data)%attr.Components != 0 {
			return fmt.Errorf("attribute %s: %d values do not divide into %d components", name, len(attr.Data), attr.Components)
		}
		if attr.Count() != n {
			return fmt.Errorf("attribute %s has %d vertices, position has %d", name, attr.Count(), n)
		}
	}
	if g.Kind == KindTriangleMesh && len(g.Indices)%3 != 0 {
		return fmt.Errorf("index count %d is not a multiple of 3", len(g.Indices))
	}
	for i, idx := range g.Indices {
		if int(idx) >= n {
			return fmt.Errorf("index %d references vertex %d of %d", i, idx, n)
		}
	}
	return nil
}

// Sphere is a bounding sphere.
type Sphere struct {
	Center [3]float64
	Radius float64
}

// BoundingSphere returns the sphere centred on the position bounding box that
// encloses every vertex.
func (g *Geometry) BoundingSphere() Sphere {
	pos := g.Attributes[AttrPosition]
	n := pos.Count()
	if n == 0 {
		return Sphere{}
	}

	lo := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			v := float64(pos.Data[i*3+c])
			lo[c] = math.Min(lo[c], v)
			hi[c] = math.Max(hi[c], v)
		}
	}

	var s Sphere
	for c := 0; c < 3; c++ {
		s.Center[c] = (lo[c] + hi[c]) / 2
	}
	var maxSq float64
	for i := 0; i < n; i++ {
		var sq float64
		for c := 0; c < 3; c++ {
			d := float64(pos.Data[i*3+c]) - s.Center[c]
			sq += d * d
		}
		maxSq = math.Max(maxSq, sq)
	}
	s.Radius = math.Sqrt(maxSq)
	return s
}

// SizeBytes estimates the memory held by the geometry buffers.
func (g *Geometry) SizeBytes() int {
	size := len(g.Indices) * 4
	for _, a := range g.Attributes {
		size += len(a.Data) * 4
	}
	return size
}
