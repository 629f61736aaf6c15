package model

import (
	"slices"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
)

// Record is a complete model: cameras, images and 3D points keyed by id. Ids within each
// collection are assigned independently and are never reused.
type Record struct {
	Cameras  map[int]*Camera
	Images   map[int]*Image
	Points3D map[int]*Point3D

	lastCameraID  int
	lastImageID   int
	lastPoint3DID int
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{
		Cameras:  map[int]*Camera{},
		Images:   map[int]*Image{},
		Points3D: map[int]*Point3D{},
	}
}

// AddCamera assigns the next camera id to c and stores it.
func (r *Record) AddCamera(c *Camera) int {
	r.lastCameraID++
	c.ID = r.lastCameraID
	r.Cameras[c.ID] = c
	return c.ID
}

// AddImage assigns the next image id to img and stores it.
func (r *Record) AddImage(img *Image) int {
	r.lastImageID++
	img.ID = r.lastImageID
	r.Images[img.ID] = img
	return img.ID
}

// AddPoint3D assigns the next point id to p and stores it.
func (r *Record) AddPoint3D(p *Point3D) int {
	r.lastPoint3DID++
	p.ID = r.lastPoint3DID
	r.Points3D[p.ID] = p
	return p.ID
}

// PutCamera stores c under its existing id. Used when decoding.
func (r *Record) PutCamera(c *Camera) error {
	if _, ok := r.Cameras[c.ID]; ok {
		return errors.Errorf("duplicate camera id %d", c.ID)
	}
	r.Cameras[c.ID] = c
	r.lastCameraID = max(r.lastCameraID, c.ID)
	return nil
}

// PutImage stores img under its existing id. Used when decoding.
func (r *Record) PutImage(img *Image) error {
	if _, ok := r.Images[img.ID]; ok {
		return errors.Errorf("duplicate image id %d", img.ID)
	}
	r.Images[img.ID] = img
	r.lastImageID = max(r.lastImageID, img.ID)
	return nil
}

// PutPoint3D stores p under its existing id. Used when decoding.
func (r *Record) PutPoint3D(p *Point3D) error {
	if _, ok := r.Points3D[p.ID]; ok {
		return errors.Errorf("duplicate point3D id %d", p.ID)
	}
	r.Points3D[p.ID] = p
	r.lastPoint3DID = max(r.lastPoint3DID, p.ID)
	return nil
}

// SortedCameraIDs returns the camera ids in ascending order.
func (r *Record) SortedCameraIDs() []int {
	return sortedKeys(r.Cameras)
}

// SortedImageIDs returns the image ids in ascending order.
func (r *Record) SortedImageIDs() []int {
	return sortedKeys(r.Images)
}

// SortedPoint3DIDs returns the point ids in ascending order.
func (r *Record) SortedPoint3DIDs() []int {
	return sortedKeys(r.Points3D)
}

func sortedKeys[V any](m map[int]V) []int {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}

// MeanObservationsPerImage is the average number of 2D points per image, 0 without images.
func (r *Record) MeanObservationsPerImage() float64 {
	counts := lo.MapToSlice(r.Images, func(_ int, img *Image) float64 {
		return float64(img.NumObservations())
	})
	return meanOrZero(counts)
}

// MeanTrackLength is the average track length over all points, 0 without points.
func (r *Record) MeanTrackLength() float64 {
	lengths := lo.MapToSlice(r.Points3D, func(_ int, p *Point3D) float64 {
		return float64(p.TrackLength())
	})
	return meanOrZero(lengths)
}

func meanOrZero(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return 0
	}
	return mean
}

// Validate checks every entity and the references between collections.
func (r *Record) Validate() error {
	var errs error
	for _, id := range r.SortedCameraIDs() {
		c := r.Cameras[id]
		if c.ID != id {
			errs = multierr.Append(errs, errors.Errorf("camera stored under id %d has id %d", id, c.ID))
			continue
		}
		errs = multierr.Append(errs, c.Validate())
	}
	for _, id := range r.SortedImageIDs() {
		img := r.Images[id]
		if img.ID != id {
			errs = multierr.Append(errs, errors.Errorf("image stored under id %d has id %d", id, img.ID))
			continue
		}
		if err := img.Validate(); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if _, ok := r.Cameras[img.CameraID]; !ok {
			errs = multierr.Append(errs, errors.Errorf("image %d: camera %d does not exist", img.ID, img.CameraID))
		}
		for i, pid := range img.Point3DIDs {
			if pid == NoPoint3D {
				continue
			}
			if _, ok := r.Points3D[pid]; !ok {
				errs = multierr.Append(errs, errors.Errorf("image %d: observation %d references missing point3D %d", img.ID, i, pid))
			}
		}
	}
	for _, id := range r.SortedPoint3DIDs() {
		p := r.Points3D[id]
		if p.ID != id {
			errs = multierr.Append(errs, errors.Errorf("point3D stored under id %d has id %d", id, p.ID))
			continue
		}
		if err := p.Validate(); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for i, imageID := range p.ImageIDs {
			img, ok := r.Images[imageID]
			if !ok {
				errs = multierr.Append(errs, errors.Errorf("point3D %d: track references missing image %d", p.ID, imageID))
				continue
			}
			if idx := p.Point2DIdxs[i]; idx < 0 || idx >= img.NumObservations() {
				errs = multierr.Append(errs, errors.Errorf("point3D %d: point2D index %d out of range for image %d", p.ID, idx, imageID))
			}
		}
	}
	return errs
}
