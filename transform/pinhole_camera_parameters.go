// Package transform derives camera intrinsics from lens and sensor dimensions.
package transform

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is returned when intrinsics are missing or cannot describe a real camera.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError wraps ErrNoIntrinsics with a reason.
func NewNoIntrinsicsError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNoIntrinsics, format, args...)
}

// PinholeCameraModel pairs pinhole intrinsics with a lens distortion model.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               Distorter `json:"distortion"`
}

// DistortionMap returns a function taking an undistorted pixel (u, v) to the pixel the lens
// actually images it at.
func (params *PinholeCameraModel) DistortionMap() func(u, v float64) (float64, float64) {
	return func(u, v float64) (float64, float64) {
		x, y := params.Distortion.Transform(params.normalize(u, v))
		return x*params.Fx + params.Ppx, y*params.Fy + params.Ppy
	}
}

// PinholeCameraIntrinsics are the linear part of the OPENCV camera: focal lengths and principal
// point in pixels for an image of Width x Height.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid returns an ErrNoIntrinsics error naming the first unusable field.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	switch {
	case params == nil:
		return NewNoIntrinsicsError("intrinsics do not exist")
	case params.Width <= 0 || params.Height <= 0:
		return NewNoIntrinsicsError("invalid size (%d, %d)", params.Width, params.Height)
	case params.Fx <= 0 || params.Fy <= 0:
		return NewNoIntrinsicsError("invalid focal length (%v, %v)", params.Fx, params.Fy)
	case params.Ppx < 0 || params.Ppy < 0:
		return NewNoIntrinsicsError("invalid principal point (%v, %v)", params.Ppx, params.Ppy)
	default:
		return nil
	}
}

func (params *PinholeCameraIntrinsics) normalize(u, v float64) (float64, float64) {
	return (u - params.Ppx) / params.Fx, (v - params.Ppy) / params.Fy
}

// PointToPixel projects a camera-frame point to sub-pixel image coordinates. ok is false for points
// on or behind the image plane.
func (params *PinholeCameraIntrinsics) PointToPixel(x, y, z float64) (u, v float64, ok bool) {
	if z <= 0 {
		return 0, 0, false
	}
	return x/z*params.Fx + params.Ppx, y/z*params.Fy + params.Ppy, true
}

// CameraMatrix returns the 3x3 calibration matrix K.
//
//	[fx  0 ppx]
//	[ 0 fy ppy]
//	[ 0  0   1]
func (params *PinholeCameraIntrinsics) CameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	return mat.NewDense(3, 3, []float64{
		params.Fx, 0, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}
