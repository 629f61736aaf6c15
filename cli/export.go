package cli

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/viam-labs/sfm-export/codec"
	"github.com/viam-labs/sfm-export/config"
	"github.com/viam-labs/sfm-export/export"
	"github.com/viam-labs/sfm-export/logging"
	"github.com/viam-labs/sfm-export/render"
	"github.com/viam-labs/sfm-export/scene"
	"github.com/viam-labs/sfm-export/spatialmath"
	"github.com/viam-labs/sfm-export/transform"
)

func newLogger(c *cli.Context, debug bool) logging.Logger {
	if debug || c.Bool(flagDebug) {
		return logging.NewDebugLogger("sfmexport")
	}
	return logging.NewLogger("sfmexport")
}

// ExportAction runs an export described by a config file and a scene file.
func ExportAction(c *cli.Context) error {
	cfg, err := config.Read(c.String(flagConfig), func(cfg *config.Config) {
		if out := c.String(flagOutput); out != "" {
			cfg.OutputDirectory = out
		}
		if src := c.String(flagRenderSource); src != "" {
			cfg.RenderSource = src
		}
	})
	if err != nil {
		return err
	}
	logger := newLogger(c, cfg.Debug)
	defer func() {
		//nolint:errcheck
		logger.Sync()
	}()

	sc, err := scene.ReadFile(c.String(flagScene))
	if err != nil {
		return err
	}

	var renderer render.Renderer
	if cfg.ShouldRender() {
		if cfg.RenderSource == "" {
			return errors.Errorf("rendering is enabled; set render_source or pass --%s", flagRenderSource)
		}
		dr, err := render.NewDirectoryRenderer(cfg.RenderSource, logger.Sublogger("render"))
		if err != nil {
			return err
		}
		renderer = dr
	}

	exporter, err := export.NewExporter(*cfg, sc, renderer, logger.Sublogger("export"))
	if err != nil {
		return err
	}
	res, err := exporter.Run(c.Context)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "exported %d cameras, %d images and %d points to %s",
		res.Cameras, res.Images, res.Points, cfg.OutputDirectory)
	return nil
}

func readModelArg(c *cli.Context, idx int) (string, codec.Format, error) {
	dir := c.Args().Get(idx)
	if dir == "" {
		return "", 0, errors.New("model directory is required")
	}
	format, err := codec.DetectFormat(dir)
	if err != nil {
		return "", 0, err
	}
	return filepath.Clean(dir), format, nil
}

// InspectAction prints a summary of a model directory. Reading fails on any inconsistency.
func InspectAction(c *cli.Context) error {
	dir, format, err := readModelArg(c, 0)
	if err != nil {
		return err
	}
	rec, err := codec.ReadModel(dir, format)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "model: %s (%s)", dir, format)
	printf(c.App.Writer, "cameras: %d", len(rec.Cameras))
	for _, id := range rec.SortedCameraIDs() {
		pinhole, err := transform.IntrinsicsFromCamera(rec.Cameras[id])
		if err != nil {
			return errors.Wrapf(err, "camera %d", id)
		}
		k := pinhole.CameraMatrix()
		printf(c.App.Writer, "  camera %d: %dx%d fx=%g fy=%g cx=%g cy=%g",
			id, pinhole.Width, pinhole.Height, k.At(0, 0), k.At(1, 1), k.At(0, 2), k.At(1, 2))
	}
	printf(c.App.Writer, "images: %d, mean observations per image: %g", len(rec.Images), rec.MeanObservationsPerImage())
	for _, id := range rec.SortedImageIDs() {
		img := rec.Images[id]
		center := spatialmath.CameraCenter(img.Qvec, img.Tvec)
		printf(c.App.Writer, "  image %d: %s camera=%d center=(%.4f, %.4f, %.4f)",
			id, img.Name, img.CameraID, center.X, center.Y, center.Z)
	}
	printf(c.App.Writer, "points: %d, mean track length: %g", len(rec.Points3D), rec.MeanTrackLength())
	reproj, err := transform.Reprojection(rec)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "mean reprojection error: %g px (max %g) over %d observations, %d behind camera",
		reproj.Mean, reproj.Max, reproj.Observations, reproj.Behind)
	return nil
}

// ConvertAction rewrites a model directory in another encoding.
func ConvertAction(c *cli.Context) error {
	dir, format, err := readModelArg(c, 0)
	if err != nil {
		return err
	}
	outDir := c.Args().Get(1)
	if outDir == "" {
		return errors.New("output directory is required")
	}
	target, err := codec.ParseFormat(c.String(flagFormat))
	if err != nil {
		return err
	}
	rec, err := codec.ReadModel(dir, format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}
	written, err := codec.WriteModel(outDir, rec, target)
	if err != nil {
		return err
	}
	for _, path := range written {
		printf(c.App.Writer, "wrote %s", path)
	}
	return nil
}
