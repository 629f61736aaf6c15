// Package export drives an export run: it converts the scene's cameras into a model, optionally
// renders an image through each camera, samples mesh points, and writes the model files.
package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/viam-labs/sfm-export/codec"
	"github.com/viam-labs/sfm-export/config"
	"github.com/viam-labs/sfm-export/logging"
	"github.com/viam-labs/sfm-export/model"
	"github.com/viam-labs/sfm-export/pointcloud"
	"github.com/viam-labs/sfm-export/render"
	"github.com/viam-labs/sfm-export/sampler"
	"github.com/viam-labs/sfm-export/scene"
	"github.com/viam-labs/sfm-export/spatialmath"
	"github.com/viam-labs/sfm-export/transform"
	"github.com/viam-labs/sfm-export/utils"
)

// ImagesDir is the subdirectory of the output directory rendered images are saved to.
const ImagesDir = "images"

// PCDFile is the name of the optional point cloud preview.
const PCDFile = "points3D.pcd"

var (
	// ErrNoCameras is returned when the scene holds no cameras.
	ErrNoCameras = errors.New("no cameras found in scene")
	// ErrRenderTimeout is the error of a render that did not complete in time.
	ErrRenderTimeout = errors.New("render timed out")
	// ErrRenderAttemptsExhausted is returned when a camera could not be rendered within the allowed attempts.
	ErrRenderAttemptsExhausted = errors.New("render attempts exhausted")
)

// Result summarizes a completed export.
type Result struct {
	Cameras        int
	Images         int
	Points         int
	RenderAttempts int
	// Files lists every file written, rendered images first.
	Files []string
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock sets the clock render timeouts are measured with.
func WithClock(c clock.Clock) Option {
	return func(e *Exporter) {
		e.clock = c
	}
}

// Exporter runs one export. It owns the render state for the run, so separate Exporters are
// independent of each other.
type Exporter struct {
	cfg      config.Config
	scene    scene.Scene
	renderer render.Renderer
	logger   logging.Logger
	clock    clock.Clock

	tracker render.Tracker
}

// NewExporter returns an exporter for sc. The renderer may be nil when the config disables rendering.
func NewExporter(cfg config.Config, sc scene.Scene, r render.Renderer, logger logging.Logger, opts ...Option) (*Exporter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate("export"); err != nil {
		return nil, err
	}
	if cfg.ShouldRender() && r == nil {
		return nil, errors.New("rendering is enabled but no renderer was given")
	}
	e := &Exporter{
		cfg:      cfg,
		scene:    sc,
		renderer: r,
		logger:   logger,
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// plannedImage is an image to render and the path it is saved to.
type plannedImage struct {
	camera scene.Camera
	path   string
}

// Run performs the export. Every camera is validated before anything is written. When ctx is
// cancelled during rendering, images already saved are kept and the partial image is removed.
func (e *Exporter) Run(ctx context.Context) (*Result, error) {
	rec, plan, err := e.buildModel()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(e.cfg.OutputDirectory, 0o750); err != nil {
		return nil, errors.Wrap(err, "failed to create output directory")
	}
	res := &Result{Cameras: len(rec.Cameras), Images: len(rec.Images)}

	if e.cfg.ShouldRender() {
		if err := os.MkdirAll(filepath.Join(e.cfg.OutputDirectory, ImagesDir), 0o750); err != nil {
			return nil, errors.Wrap(err, "failed to create images directory")
		}
		if err := e.renderAll(ctx, plan, res); err != nil {
			return res, err
		}
	}

	if e.cfg.ExportPoints {
		s, err := sampler.NewSampler(e.cfg.Sampler(), nil, e.logger.Sublogger("sampler"))
		if err != nil {
			return res, err
		}
		n, err := s.AddTo(ctx, rec, e.scene.Meshes(e.cfg.PointsSelectedOnly))
		if err != nil {
			return res, errors.Wrap(err, "failed to sample points")
		}
		res.Points = n
		e.logger.Infow("sampled points", "points", n)
	}

	written, err := codec.WriteModel(e.cfg.OutputDirectory, rec, e.cfg.Encoding)
	res.Files = append(res.Files, written...)
	if err != nil {
		return res, err
	}

	if e.cfg.ExportPCD {
		path, err := e.writePCD(rec)
		if err != nil {
			return res, err
		}
		res.Files = append(res.Files, path)
	}

	e.logger.Infow("export complete", "directory", e.cfg.OutputDirectory,
		"cameras", res.Cameras, "images", res.Images, "points", res.Points)
	return res, nil
}

// buildModel converts every camera, sorted by name, into a camera and image of a new record.
func (e *Exporter) buildModel() (*model.Record, []plannedImage, error) {
	cams := e.scene.Cameras()
	if len(cams) == 0 {
		return nil, nil, ErrNoCameras
	}
	cams = slices.Clone(cams)
	slices.SortFunc(cams, func(a, b scene.Camera) int {
		return strings.Compare(a.Name(), b.Name())
	})

	width, height := e.scene.Resolution()
	imagesDir := filepath.Join(e.cfg.OutputDirectory, ImagesDir)
	rec := model.NewRecord()
	plan := make([]plannedImage, 0, len(cams))
	for _, cam := range cams {
		c, err := transform.NewCameraFromLens(width, height, cam.Lens())
		if err != nil {
			return nil, nil, errors.Wrapf(err, "camera %q", cam.Name())
		}
		q, err := scene.ReadQuaternion(cam)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "camera %q", cam.Name())
		}
		qvec, tvec := spatialmath.HostPoseToExtrinsics(q, cam.Location())

		name := cam.Name() + render.ImageExt
		path, err := utils.SafeJoinDir(imagesDir, name)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "camera %q", cam.Name())
		}

		cameraID := rec.AddCamera(c)
		rec.AddImage(&model.Image{Qvec: qvec, Tvec: tvec, CameraID: cameraID, Name: name})
		plan = append(plan, plannedImage{camera: cam, path: path})
	}
	return rec, plan, nil
}

func (e *Exporter) writePCD(rec *model.Record) (string, error) {
	points := make([]*model.Point3D, 0, len(rec.Points3D))
	for _, id := range rec.SortedPoint3DIDs() {
		points = append(points, rec.Points3D[id])
	}
	var buf bytes.Buffer
	if err := pointcloud.ToPCD(points, &buf, pointcloud.PCDBinary); err != nil {
		return "", err
	}
	path := filepath.Join(e.cfg.OutputDirectory, PCDFile)
	if err := utils.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// renderTimeout returns the per-render timeout, zero for none.
func (e *Exporter) renderTimeout() time.Duration {
	return e.cfg.RenderTimeoutDuration()
}

// cleanupPartial removes the zero-length file a cancelled render may leave behind.
func (e *Exporter) cleanupPartial(path string) error {
	removed, err := utils.RemoveIfEmpty(path)
	if removed {
		e.logger.Debugw("removed partial image", "path", path)
	}
	return err
}

// restoreActive puts back the camera that was active before the run.
func (e *Exporter) restoreActive(original scene.Camera) {
	e.scene.SetActiveCamera(original)
}

// combineCleanup joins a run error with cleanup errors, keeping the run error first.
func combineCleanup(err error, cleanup ...error) error {
	return multierr.Combine(append([]error{err}, cleanup...)...)
}
