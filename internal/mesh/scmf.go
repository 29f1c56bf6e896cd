package mesh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// SCMF is a raw interleaved mesh: a 12 byte header ("SCMF", point count, face
// count, little-endian u32) followed by 12 float32 per point laid out as
// uv(4) position(4) normal(4), then three u32 indices per face.
const (
	scmfMagic      = "SCMF"
	scmfHeaderSize = 12
	scmfStride     = 12
)

// SCMFCodec decodes SCMF meshes.
type SCMFCodec struct{}

// Decode implements Codec.
func (SCMFCodec) Decode(data []byte) (*Geometry, error) {
	if len(data) < scmfHeaderSize || string(data[:4]) != scmfMagic {
		return nil, errors.New("not an SCMF payload")
	}
	points := int(binary.LittleEndian.Uint32(data[4:8]))
	faces := int(binary.LittleEndian.Uint32(data[8:12]))

	want := scmfHeaderSize + points*scmfStride*4 + faces*3*4
	if points < 0 || faces < 0 || len(data) != want {
		return nil, fmt.Errorf("SCMF payload is %d bytes, header implies %d", len(data), want)
	}

	uv := make([]float32, 0, points*2)
	pos := make([]float32, 0, points*3)
	nrm := make([]float32, 0, points*3)
	off := scmfHeaderSize
	readF := func() float32 {
		v := math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		return v
	}
	for i := 0; i < points; i++ {
		var p [scmfStride]float32
		for j := range p {
			p[j] = readF()
		}
		uv = append(uv, p[0], p[1])
		pos = append(pos, p[4], p[5], p[6])
		nrm = append(nrm, p[8], p[9], p[10])
	}

	indices := make([]uint32, faces*3)
	for i := range indices {
		indices[i] = binary.LittleEndian.Uint32(data[off:])
		off += 4
	}

	kind := KindTriangleMesh
	if faces == 0 {
		kind = KindPointCloud
	}
	return &Geometry{
		Kind: kind,
		Attributes: map[string]Attribute{
			AttrPosition: {Components: 3, Data: pos},
			AttrNormal:   {Components: 3, Data: nrm},
			AttrUV:       {Components: 2, Data: uv},
		},
		Indices: indices,
	}, nil
}

// EncodeSCMF writes g in SCMF layout. Missing normals or UVs are written as zeros.
func EncodeSCMF(g *Geometry) []byte {
	points := g.VertexCount()
	faces := len(g.Indices) / 3
	buf := make([]byte, scmfHeaderSize+points*scmfStride*4+faces*3*4)
	copy(buf, scmfMagic)
	binary.LittleEndian.PutUint32(buf[4:], uint32(points))
	binary.LittleEndian.PutUint32(buf[8:], uint32(faces))

	pos := g.Attributes[AttrPosition]
	nrm := g.Attributes[AttrNormal]
	uv := g.Attributes[AttrUV]
	at := func(a Attribute, i, c int) float32 {
		if a.Components == 0 || c >= a.Components || i*a.Components+c >= len(a.Data) {
			return 0
		}
		return a.Data[i*a.Components+c]
	}

	off := scmfHeaderSize
	for i := 0; i < points; i++ {
		p := [scmfStride]float32{
			at(uv, i, 0), at(uv, i, 1), 0, 0,
			at(pos, i, 0), at(pos, i, 1), at(pos, i, 2), 1,
			at(nrm, i, 0), at(nrm, i, 1), at(nrm, i, 2), 0,
		}
		for _, v := range p {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
			off += 4
		}
	}
	for _, idx := range g.Indices[:faces*3] {
		binary.LittleEndian.PutUint32(buf[off:], idx)
		off += 4
	}
	return buf
}
