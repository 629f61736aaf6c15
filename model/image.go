package model

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// NoPoint3D marks a 2D observation without a 3D correspondence.
const NoPoint3D = -1

// qvecTolerance is how far from unit norm an image rotation may drift.
const qvecTolerance = 1e-6

// Image is a posed view: the world-to-camera rotation and translation of one camera, plus its
// 2D observations.
type Image struct {
	ID       int
	Qvec     quat.Number
	Tvec     r3.Vector
	CameraID int
	Name     string

	Xys        []r2.Point
	Point3DIDs []int
}

// NumObservations returns the number of 2D points in the image.
func (img *Image) NumObservations() int {
	return len(img.Xys)
}

// Validate checks the image's invariants, excluding references into other collections.
func (img *Image) Validate() error {
	if img.ID <= 0 {
		return errors.Errorf("image id must be positive, got %d", img.ID)
	}
	if img.Name == "" {
		return errors.Errorf("image %d: name is empty", img.ID)
	}
	if len(img.Xys) != len(img.Point3DIDs) {
		return errors.Errorf("image %d: %d observations but %d point3D ids",
			img.ID, len(img.Xys), len(img.Point3DIDs))
	}
	// written as a negated <= so a NaN norm is rejected
	if norm := quat.Abs(img.Qvec); !(math.Abs(norm-1) <= qvecTolerance) {
		return errors.Errorf("image %d: qvec is not unit norm (%v)", img.ID, norm)
	}
	return nil
}
