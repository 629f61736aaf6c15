package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// HostToTargetQuat re-expresses a host (Z-up) camera orientation in the target convention, whose
// camera looks down +Z with +Y pointing down the image. The host quaternion (x, y, z, w) maps to the
// target quaternion (w', x', y', z') = (x, w, z, -y). A permutation with one sign flip keeps unit norm.
func HostToTargetQuat(host quat.Number) quat.Number {
	return quat.Number{
		Real: host.Imag,
		Imag: host.Real,
		Jmag: host.Kmag,
		Kmag: -host.Jmag,
	}
}

// HostPoseToExtrinsics converts a host camera orientation and world position into the world-to-camera
// rotation quaternion and translation t = -R·p.
func HostPoseToExtrinsics(orientation quat.Number, position r3.Vector) (quat.Number, r3.Vector) {
	qvec := HostToTargetQuat(orientation)
	rot := QuatToRotationMatrix(qvec)
	return qvec, RotateVector(rot, position).Mul(-1)
}

// CameraCenter recovers the world position of a camera from its extrinsics, -Rᵀ·t.
func CameraCenter(qvec quat.Number, tvec r3.Vector) r3.Vector {
	rot := QuatToRotationMatrix(qvec)
	return RotateVector(rot.T(), tvec).Mul(-1)
}

// ProjectionMatrix returns the 3x4 matrix [R | t].
func ProjectionMatrix(qvec quat.Number, tvec r3.Vector) *mat.Dense {
	rot := QuatToRotationMatrix(qvec)
	out := mat.NewDense(3, 4, nil)
	out.Slice(0, 3, 0, 3).(*mat.Dense).Copy(rot)
	out.Set(0, 3, tvec.X)
	out.Set(1, 3, tvec.Y)
	out.Set(2, 3, tvec.Z)
	return out
}
