package model

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Point3D is a colored world-space point and its track of image observations.
type Point3D struct {
	ID    int
	XYZ   r3.Vector
	RGB   [3]uint8
	Error float64

	ImageIDs    []int
	Point2DIdxs []int
}

// TrackLength returns the number of observations of the point.
func (p *Point3D) TrackLength() int {
	return len(p.ImageIDs)
}

// Validate checks the point's invariants, excluding references into other collections.
func (p *Point3D) Validate() error {
	if p.ID <= 0 {
		return errors.Errorf("point3D id must be positive, got %d", p.ID)
	}
	if p.Error < 0 {
		return errors.Errorf("point3D %d: negative error %v", p.ID, p.Error)
	}
	if len(p.ImageIDs) != len(p.Point2DIdxs) {
		return errors.Errorf("point3D %d: %d image ids but %d point2D indices",
			p.ID, len(p.ImageIDs), len(p.Point2DIdxs))
	}
	return nil
}
