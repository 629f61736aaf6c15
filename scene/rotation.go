package scene

import (
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/num/quat"
)

// ReadQuaternion reads a camera's rotation as a quaternion. The camera is switched to QUATERNION mode
// for the read and its original mode is restored on every return path.
func ReadQuaternion(cam Camera) (q quat.Number, err error) {
	original := cam.RotationMode()
	if err := cam.SetRotationMode(RotationQuaternion); err != nil {
		return quat.Number{}, err
	}
	defer func() {
		err = multierr.Combine(err, cam.SetRotationMode(original))
	}()
	return cam.RotationQuaternion()
}
