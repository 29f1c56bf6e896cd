package mesh

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/jmylchreest/scvv/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triangle() *Geometry {
	return &Geometry{
		Kind: KindTriangleMesh,
		Attributes: map[string]Attribute{
			AttrPosition: {Components: 3, Data: []float32{0, 0, 0, 2, 0, 0, 0, 2, 0}},
			AttrNormal:   {Components: 3, Data: []float32{0, 0, 1, 0, 0, 1, 0, 0, 1}},
			AttrUV:       {Components: 2, Data: []float32{0, 0, 1, 0, 0, 1}},
		},
		Indices: []uint32{0, 1, 2},
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSCMF_RoundTrip(t *testing.T) {
	data := EncodeSCMF(triangle())

	g, err := SCMFCodec{}.Decode(data)
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	assert.Equal(t, KindTriangleMesh, g.Kind)
	assert.Equal(t, 3, g.VertexCount())
	assert.Equal(t, triangle().Attributes, g.Attributes)
	assert.Equal(t, []uint32{0, 1, 2}, g.Indices)
}

func TestSCMF_PointCloud(t *testing.T) {
	g := triangle()
	g.Indices = nil
	decoded, err := SCMFCodec{}.Decode(EncodeSCMF(g))
	require.NoError(t, err)
	assert.Equal(t, KindPointCloud, decoded.Kind)
}

func TestSCMF_Corrupt(t *testing.T) {
	data := EncodeSCMF(triangle())

	_, err := SCMFCodec{}.Decode([]byte("DRACO"))
	assert.Error(t, err)

	_, err = SCMFCodec{}.Decode(data[:len(data)-4])
	assert.Error(t, err)
}

func TestRegistry_Decode(t *testing.T) {
	reg := DefaultRegistry()
	data := EncodeSCMF(triangle())

	g, err := reg.Decode("frames/0001.SCMF?v=2", data)
	require.NoError(t, err)
	assert.Equal(t, 3, g.VertexCount())

	_, err = reg.Decode("frames/0001.drc", data)
	var ce *CodecError
	require.True(t, errors.As(err, &ce))
	assert.ErrorIs(t, err, ErrNoCodec)
	assert.Equal(t, "frames/0001.drc", ce.Path)

	reg.Register("drc", CodecFunc(func([]byte) (*Geometry, error) { return triangle(), nil }))
	_, err = reg.Decode("frames/0001.drc", nil)
	assert.NoError(t, err)
}

func TestRegistry_RejectsInvalidGeometry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(".bad", CodecFunc(func([]byte) (*Geometry, error) {
		g := triangle()
		g.Indices = []uint32{0, 1, 9}
		return g, nil
	}))

	_, err := reg.Decode("x.bad", nil)
	var ce *CodecError
	assert.True(t, errors.As(err, &ce))
}

func TestGeometry_Validate(t *testing.T) {
	g := triangle()
	g.Attributes[AttrUV] = Attribute{Components: 2, Data: []float32{0, 0}}
	assert.Error(t, g.Validate())

	g = triangle()
	delete(g.Attributes, AttrPosition)
	assert.Error(t, g.Validate())
}

func TestGeometry_BoundingSphere(t *testing.T) {
	s := triangle().BoundingSphere()
	assert.InDeltaSlice(t, []float64{1, 1, 0}, s.Center[:], 1e-9)
	assert.InDelta(t, 1.4142135, s.Radius, 1e-6)

	assert.Equal(t, Sphere{}, (&Geometry{}).BoundingSphere())
}

func TestProbeTexture(t *testing.T) {
	tex, err := ProbeTexture("t/1.png", pngBytes(t, 4, 2))
	require.NoError(t, err)
	assert.Equal(t, "png", tex.Format)
	assert.Equal(t, 4, tex.Width)
	assert.Equal(t, 2, tex.Height)

	_, err = ProbeTexture("t/2.png", []byte("not an image"))
	var ce *CodecError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "t/2.png", ce.Path)
}

func TestDecodedFrame_Release(t *testing.T) {
	ref := manifest.FrameRef{UID: 9, DelayMicros: 33000}
	f := NewDecodedFrame(ref, triangle(), &TextureHandle{Data: []byte{1, 2, 3}})

	assert.Equal(t, uint64(9), f.UID)
	assert.Equal(t, 33000000, int(f.Delay))
	assert.Positive(t, f.SizeBytes())
	assert.False(t, f.Released())

	f.Release()
	assert.True(t, f.Released())
	assert.Zero(t, f.SizeBytes())
}
