// Package model holds the in-memory structure-from-motion model: cameras, posed images and 3D points.
package model

import (
	"github.com/pkg/errors"
)

// CameraModel identifies an intrinsic parameterization. Values are the COLMAP model ids.
type CameraModel int

// OpenCV is the pinhole model with two radial and two tangential distortion terms:
// fx, fy, cx, cy, k1, k2, p1, p2.
const OpenCV CameraModel = 4

type cameraModelInfo struct {
	name      string
	numParams int
}

var cameraModels = map[CameraModel]cameraModelInfo{
	OpenCV: {name: "OPENCV", numParams: 8},
}

// ErrUnknownCameraModel is returned when a model name or id is not supported.
var ErrUnknownCameraModel = errors.New("unknown camera model")

// String returns the COLMAP name of the model.
func (m CameraModel) String() string {
	if info, ok := cameraModels[m]; ok {
		return info.name
	}
	return "UNKNOWN"
}

// NumParams returns the length of the params vector for the model, or 0 if the model is unknown.
func (m CameraModel) NumParams() int {
	return cameraModels[m].numParams
}

// ID returns the numeric model id used by the binary encoding.
func (m CameraModel) ID() int {
	return int(m)
}

// CameraModelFromName parses a model name such as "OPENCV".
func CameraModelFromName(name string) (CameraModel, error) {
	for m, info := range cameraModels {
		if info.name == name {
			return m, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownCameraModel, "%q", name)
}

// CameraModelFromID resolves a numeric model id.
func CameraModelFromID(id int) (CameraModel, error) {
	m := CameraModel(id)
	if _, ok := cameraModels[m]; !ok {
		return 0, errors.Wrapf(ErrUnknownCameraModel, "id %d", id)
	}
	return m, nil
}

// Camera holds the intrinsics shared by one or more images.
type Camera struct {
	ID     int
	Model  CameraModel
	Width  int
	Height int
	Params []float64
}

// Validate checks the camera's invariants.
func (c *Camera) Validate() error {
	if c.ID <= 0 {
		return errors.Errorf("camera id must be positive, got %d", c.ID)
	}
	if _, ok := cameraModels[c.Model]; !ok {
		return errors.Wrapf(ErrUnknownCameraModel, "camera %d: id %d", c.ID, int(c.Model))
	}
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Errorf("camera %d: invalid size (%d, %d)", c.ID, c.Width, c.Height)
	}
	if len(c.Params) != c.Model.NumParams() {
		return errors.Errorf("camera %d: model %s expects %d params, got %d",
			c.ID, c.Model, c.Model.NumParams(), len(c.Params))
	}
	return nil
}
