package spatialmath

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

// TransformPoint applies the affine 4x4 matrix m to the point p.
func TransformPoint(m mgl64.Mat4, p r3.Vector) r3.Vector {
	out := m.Mul4x1(mgl64.Vec4{p.X, p.Y, p.Z, 1})
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}
}

// MatrixFromRowMajor builds a Mat4 from 16 row-major values, the layout scene files use.
// mgl64 stores matrices column-major.
func MatrixFromRowMajor(v [16]float64) mgl64.Mat4 {
	return mgl64.Mat4{
		v[0], v[4], v[8], v[12],
		v[1], v[5], v[9], v[13],
		v[2], v[6], v[10], v[14],
		v[3], v[7], v[11], v[15],
	}
}
