package transform

import (
	"github.com/pkg/errors"

	"github.com/viam-labs/sfm-export/model"
)

// ErrInvalidSensor is returned when a lens has a non-positive sensor dimension.
var ErrInvalidSensor = errors.New("sensor width and height must be positive")

// Lens describes a camera lens. All three values share one linear unit, usually millimeters.
type Lens struct {
	FocalLength  float64 `json:"lens"`
	SensorWidth  float64 `json:"sensor_width"`
	SensorHeight float64 `json:"sensor_height"`
}

// CheckValid reports a configuration error for unusable lens values.
func (l Lens) CheckValid() error {
	if l.SensorWidth <= 0 || l.SensorHeight <= 0 {
		return errors.Wrapf(ErrInvalidSensor, "got (%v, %v)", l.SensorWidth, l.SensorHeight)
	}
	if l.FocalLength <= 0 {
		return errors.Errorf("focal length must be positive, got %v", l.FocalLength)
	}
	return nil
}

// NewIntrinsicsFromLens computes pinhole intrinsics for an image of the given size taken through lens.
// The principal point is the image center.
func NewIntrinsicsFromLens(width, height int, lens Lens) (*PinholeCameraIntrinsics, error) {
	if err := lens.CheckValid(); err != nil {
		return nil, err
	}
	intrinsics := &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     lens.FocalLength * float64(width) / lens.SensorWidth,
		Fy:     lens.FocalLength * float64(height) / lens.SensorHeight,
		Ppx:    float64(width) / 2,
		Ppy:    float64(height) / 2,
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	return intrinsics, nil
}

// OpenCVParams flattens intrinsics and distortion into the OPENCV params vector
// [fx, fy, cx, cy, k1, k2, p1, p2]. A nil distortion contributes zeros.
func OpenCVParams(intrinsics *PinholeCameraIntrinsics, distortion *OpenCVDistortion) []float64 {
	params := []float64{intrinsics.Fx, intrinsics.Fy, intrinsics.Ppx, intrinsics.Ppy}
	return append(params, distortion.Parameters()...)
}

// NewCameraFromLens builds an undistorted OPENCV camera for an image of the given size. The returned
// camera has no id yet.
func NewCameraFromLens(width, height int, lens Lens) (*model.Camera, error) {
	intrinsics, err := NewIntrinsicsFromLens(width, height, lens)
	if err != nil {
		return nil, err
	}
	return &model.Camera{
		Model:  model.OpenCV,
		Width:  width,
		Height: height,
		Params: OpenCVParams(intrinsics, nil),
	}, nil
}

// IntrinsicsFromCamera recovers pinhole intrinsics and distortion from an OPENCV camera.
func IntrinsicsFromCamera(c *model.Camera) (*PinholeCameraModel, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Model != model.OpenCV {
		return nil, errors.Wrapf(model.ErrUnknownCameraModel, "%s", c.Model)
	}
	distortion, err := NewDistorter(OpenCVDistortionType, c.Params[4:])
	if err != nil {
		return nil, err
	}
	return &PinholeCameraModel{
		PinholeCameraIntrinsics: &PinholeCameraIntrinsics{
			Width:  c.Width,
			Height: c.Height,
			Fx:     c.Params[0],
			Fy:     c.Params[1],
			Ppx:    c.Params[2],
			Ppy:    c.Params[3],
		},
		Distortion: distortion,
	}, nil
}
