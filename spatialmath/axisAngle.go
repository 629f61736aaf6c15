package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// See here for a thorough explanation: https://en.wikipedia.org/wiki/Axis%E2%80%93angle_representation
// An orientation can be expressed by first specifying an axis, i.e. a line from the origin
// to a point on the unit sphere, represented by (rx, ry, rz), and a rotation around that axis, theta.

// R4AA represents an R4 axis angle.
type R4AA struct {
	Theta float64 `json:"th"`
	RX    float64 `json:"x"`
	RY    float64 `json:"y"`
	RZ    float64 `json:"z"`
}

// NewR4AA creates an empty R4AA struct.
func NewR4AA() *R4AA {
	return &R4AA{Theta: 0, RX: 0, RY: 0, RZ: 1}
}

// ToQuat converts an R4 axis angle to a unit quaternion. A zero axis yields the identity.
// See: https://www.euclideanspace.com/maths/geometry/rotations/conversions/angleToQuaternion/index.htm
func (r4 *R4AA) ToQuat() quat.Number {
	norm := math.Sqrt(r4.RX*r4.RX + r4.RY*r4.RY + r4.RZ*r4.RZ)
	if norm == 0 {
		return quat.Number{Real: 1}
	}
	sinA := math.Sin(r4.Theta / 2)
	return quat.Number{
		Real: math.Cos(r4.Theta / 2),
		Imag: r4.RX / norm * sinA,
		Jmag: r4.RY / norm * sinA,
		Kmag: r4.RZ / norm * sinA,
	}
}

// QuatToR4AA converts a quaternion to an R4 axis angle.
func QuatToR4AA(q quat.Number) *R4AA {
	q = NormalizeQuat(q)
	denom := math.Sqrt(1 - q.Real*q.Real)
	if denom < 1e-12 {
		return NewR4AA()
	}
	return &R4AA{
		Theta: 2 * math.Acos(math.Max(-1, math.Min(1, q.Real))),
		RX:    q.Imag / denom,
		RY:    q.Jmag / denom,
		RZ:    q.Kmag / denom,
	}
}
