package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/viam-labs/sfm-export/model"
	"github.com/viam-labs/sfm-export/spatialmath"
)

// ProjectPoint projects the world point through a posed camera, applying its lens distortion.
// ok is false when the point is not in front of the camera.
func (params *PinholeCameraModel) ProjectPoint(img *model.Image, world r3.Vector) (r2.Point, bool) {
	var cam mat.VecDense
	cam.MulVec(spatialmath.ProjectionMatrix(img.Qvec, img.Tvec), mat.NewVecDense(4, []float64{world.X, world.Y, world.Z, 1}))
	u, v, ok := params.PointToPixel(cam.AtVec(0), cam.AtVec(1), cam.AtVec(2))
	if !ok {
		return r2.Point{}, false
	}
	if params.Distortion != nil {
		u, v = params.DistortionMap()(u, v)
	}
	return r2.Point{X: u, Y: v}, true
}

// ReprojectionStats summarizes how far observations lie from their projected 3D points, in pixels.
type ReprojectionStats struct {
	Observations int
	// Behind counts observations whose point is not in front of the observing camera.
	Behind int
	Mean   float64
	Max    float64
}

// Reprojection measures every 2D observation of rec that references a 3D point.
func Reprojection(rec *model.Record) (ReprojectionStats, error) {
	var res ReprojectionStats
	var dists []float64
	for _, id := range rec.SortedImageIDs() {
		img := rec.Images[id]
		camera, ok := rec.Cameras[img.CameraID]
		if !ok {
			return res, errors.Errorf("image %d: camera %d does not exist", id, img.CameraID)
		}
		pinhole, err := IntrinsicsFromCamera(camera)
		if err != nil {
			return res, errors.Wrapf(err, "camera %d", img.CameraID)
		}
		for i, pid := range img.Point3DIDs {
			if pid == model.NoPoint3D {
				continue
			}
			p, ok := rec.Points3D[pid]
			if !ok {
				return res, errors.Errorf("image %d: observation %d references missing point3D %d", id, i, pid)
			}
			projected, ok := pinhole.ProjectPoint(img, p.XYZ)
			if !ok {
				res.Behind++
				continue
			}
			dists = append(dists, projected.Sub(img.Xys[i]).Norm())
		}
	}
	res.Observations = len(dists) + res.Behind
	if len(dists) == 0 {
		return res, nil
	}
	mean, err := stats.Mean(dists)
	if err != nil {
		return res, err
	}
	maxDist, err := stats.Max(dists)
	if err != nil {
		return res, err
	}
	res.Mean, res.Max = mean, maxDist
	if math.IsNaN(res.Mean) {
		return res, errors.New("reprojection error is not a number")
	}
	return res, nil
}
