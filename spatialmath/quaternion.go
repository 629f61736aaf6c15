// Package spatialmath defines the rotation and pose math used to move camera poses between
// coordinate conventions.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// QuatNorm returns the Euclidean norm of all four quaternion components.
func QuatNorm(q quat.Number) float64 {
	return quat.Abs(q)
}

// NormalizeQuat scales q to unit norm. The zero quaternion normalizes to the identity.
func NormalizeQuat(q quat.Number) quat.Number {
	norm := QuatNorm(q)
	if norm == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/norm, q)
}

// QuaternionAlmostEqual reports whether each component of a and b differs by less than tol. q and -q compare unequal.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	return math.Abs(a.Real-b.Real) < tol &&
		math.Abs(a.Imag-b.Imag) < tol &&
		math.Abs(a.Jmag-b.Jmag) < tol &&
		math.Abs(a.Kmag-b.Kmag) < tol
}

// QuatToRotationMatrix returns the 3x3 rotation matrix of q. The quaternion is expected to be unit
// norm; it is not renormalized.
func QuatToRotationMatrix(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// RotateVector applies the rotation matrix rot to v.
func RotateVector(rot mat.Matrix, v r3.Vector) r3.Vector {
	var out mat.VecDense
	out.MulVec(rot, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vector{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// EulerXYZToQuat converts XYZ euler angles (radians), applied X first, then Y, then Z,
// to a unit quaternion.
func EulerXYZToQuat(euler r3.Vector) quat.Number {
	ci, si := math.Cos(euler.X/2), math.Sin(euler.X/2)
	cj, sj := math.Cos(euler.Y/2), math.Sin(euler.Y/2)
	ch, sh := math.Cos(euler.Z/2), math.Sin(euler.Z/2)
	cc := ci * ch
	cs := ci * sh
	sc := si * ch
	ss := si * sh

	return quat.Number{
		Real: cj*cc + sj*ss,
		Imag: cj*sc - sj*cs,
		Jmag: cj*ss + sj*cc,
		Kmag: cj*cs - sj*sc,
	}
}

// QuatToEulerXYZ is the inverse of EulerXYZToQuat away from gimbal lock.
func QuatToEulerXYZ(q quat.Number) r3.Vector {
	rot := QuatToRotationMatrix(NormalizeQuat(q))
	sy := -rot.At(2, 0)
	sy = math.Max(-1, math.Min(1, sy))
	pitch := math.Asin(sy)
	if math.Abs(sy) > 1-1e-12 {
		// Gimbal lock: fold the roll into the yaw.
		return r3.Vector{X: 0, Y: pitch, Z: math.Atan2(-rot.At(0, 1), rot.At(1, 1))}
	}
	return r3.Vector{
		X: math.Atan2(rot.At(2, 1), rot.At(2, 2)),
		Y: pitch,
		Z: math.Atan2(rot.At(1, 0), rot.At(0, 0)),
	}
}
