// Package sampler turns scene meshes into colored 3D points, either one per vertex or by sampling
// triangle surfaces.
package sampler

import (
	"github.com/pkg/errors"
)

// Bounds and default for the number of samples drawn per triangle.
const (
	DefaultSamplesPerFace = 3
	MinSamplesPerFace     = 1
	MaxSamplesPerFace     = 100
)

// Config controls which meshes are sampled and how.
type Config struct {
	SelectedOnly   bool
	SampleFaces    bool
	SamplesPerFace int
	Seed           uint64
}

// Validate checks that SamplesPerFace is in range when faces are sampled.
func (cfg Config) Validate() error {
	if !cfg.SampleFaces {
		return nil
	}
	if cfg.SamplesPerFace < MinSamplesPerFace || cfg.SamplesPerFace > MaxSamplesPerFace {
		return errors.Errorf("samples per face must be in [%d, %d], got %d",
			MinSamplesPerFace, MaxSamplesPerFace, cfg.SamplesPerFace)
	}
	return nil
}
