package manifest

import (
	"math"
	"strconv"
	"strings"
)

// Matrix4 is a column-major 4x4 transform.
type Matrix4 [16]float64

// Identity returns the identity matrix.
func Identity() Matrix4 {
	return Matrix4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Legacy capture-space corrections. Clips recorded before the manifest carried
// a version were captured with Y down and Z away from the viewer; 0.x and 1.0
// clips were captured Z-up.
var (
	preVersionedTransform = Matrix4{
		1, 0, 0, 0,
		0, -1, 0, 0,
		0, 0, -1, 0,
		0, 0, 0, 1,
	}
	zUpTransform = Matrix4{
		1, 0, 0, 0,
		0, 0, -1, 0,
		0, 1, 0, 0,
		0, 0, 0, 1,
	}
)

// TransformFor returns the capture-to-display transform for a manifest
// version. Versions newer than 1.0 use the manifest's explicit transform, or
// identity when it has none.
func TransformFor(version string, explicit []float64) Matrix4 {
	version = strings.TrimSpace(strings.TrimPrefix(version, "v"))
	if version == "" {
		return preVersionedTransform
	}

	if major, minor, ok := parseMajorMinor(version); ok && (major == 0 || (major == 1 && minor == 0)) {
		return zUpTransform
	}

	if len(explicit) == 16 {
		var m Matrix4
		copy(m[:], explicit)
		return m
	}
	return Identity()
}

func parseMajorMinor(version string) (int, int, bool) {
	parts := strings.SplitN(version, ".", 3)
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minor := 0
	if len(parts) > 1 {
		if minor, err = strconv.Atoi(parts[1]); err != nil {
			return 0, 0, false
		}
	}
	return major, minor, true
}

// Apply transforms the point (x, y, z, 1).
func (m Matrix4) Apply(x, y, z float64) (float64, float64, float64) {
	return m[0]*x + m[4]*y + m[8]*z + m[12],
		m[1]*x + m[5]*y + m[9]*z + m[13],
		m[2]*x + m[6]*y + m[10]*z + m[14]
}

// ApproxEqual compares two matrices element-wise within eps.
func (m Matrix4) ApproxEqual(o Matrix4, eps float64) bool {
	for i := range m {
		if math.Abs(m[i]-o[i]) > eps {
			return false
		}
	}
	return true
}
