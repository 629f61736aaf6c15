// Package config defines the export configuration.
package config

import (
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/viam-labs/sfm-export/codec"
	"github.com/viam-labs/sfm-export/sampler"
)

// Config describes one export run.
type Config struct {
	OutputDirectory string       `json:"output_directory"`
	Encoding        codec.Format `json:"encoding"`

	// RenderImages defaults to true.
	RenderImages *bool `json:"render_images,omitempty"`
	// RenderSource is the directory pre-rendered images are read from by the directory renderer.
	RenderSource      string `json:"render_source,omitempty"`
	RenderTimeout     string `json:"render_timeout,omitempty"`
	MaxRenderAttempts int    `json:"max_render_attempts,omitempty"`

	ExportPoints         bool   `json:"export_points"`
	PointsSelectedOnly   bool   `json:"points_selected_only"`
	PointsSampleFaces    bool   `json:"points_sample_faces"`
	PointsSamplesPerFace int    `json:"points_samples_per_face,omitempty"`
	PointsSeed           uint64 `json:"points_seed,omitempty"`

	// ExportPCD also writes the points as points3D.pcd.
	ExportPCD bool `json:"export_pcd,omitempty"`
	Debug     bool `json:"debug,omitempty"`
}

// ApplyDefaults fills unset optional fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.RenderImages == nil {
		render := true
		cfg.RenderImages = &render
	}
	if cfg.PointsSamplesPerFace == 0 {
		cfg.PointsSamplesPerFace = sampler.DefaultSamplesPerFace
	}
}

// ShouldRender reports whether images are rendered.
func (cfg *Config) ShouldRender() bool {
	return cfg.RenderImages == nil || *cfg.RenderImages
}

// RenderTimeoutDuration returns the per-render timeout, zero for none. Call Validate first.
func (cfg *Config) RenderTimeoutDuration() time.Duration {
	if cfg.RenderTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(cfg.RenderTimeout)
	if err != nil {
		return 0
	}
	return d
}

// Sampler returns the point sampling settings.
func (cfg *Config) Sampler() sampler.Config {
	return sampler.Config{
		SelectedOnly:   cfg.PointsSelectedOnly,
		SampleFaces:    cfg.PointsSampleFaces,
		SamplesPerFace: cfg.PointsSamplesPerFace,
		Seed:           cfg.PointsSeed,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.OutputDirectory == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "output_directory")
	}
	if cfg.Encoding != codec.Text && cfg.Encoding != codec.Binary {
		return utils.NewConfigValidationError(path, errors.Wrapf(codec.ErrUnknownFormat, "encoding %d", int(cfg.Encoding)))
	}
	if cfg.RenderTimeout != "" {
		d, err := time.ParseDuration(cfg.RenderTimeout)
		if err != nil {
			return utils.NewConfigValidationError(path, errors.Wrap(err, "render_timeout"))
		}
		if d < 0 {
			return utils.NewConfigValidationError(path, errors.Errorf("render_timeout must not be negative, got %s", d))
		}
	}
	if cfg.MaxRenderAttempts < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("max_render_attempts must not be negative, got %d", cfg.MaxRenderAttempts))
	}
	if cfg.ExportPoints {
		if err := cfg.Sampler().Validate(); err != nil {
			return utils.NewConfigValidationError(path, errors.Wrap(err, "points_samples_per_face"))
		}
	}
	return nil
}
