package sampler

import (
	"context"
	"math/rand/v2"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/viam-labs/sfm-export/logging"
	"github.com/viam-labs/sfm-export/model"
	"github.com/viam-labs/sfm-export/scene"
	"github.com/viam-labs/sfm-export/spatialmath"
)

// Source supplies uniform random numbers in [0, 1).
type Source interface {
	Float64() float64
}

// NewSource returns a deterministic source for seed.
func NewSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Sampler extracts points from meshes.
type Sampler struct {
	cfg    Config
	src    Source
	logger logging.Logger

	vertexPolicy FirstLoopColorPolicy
	facePolicy   BarycentricBlendPolicy
}

// NewSampler returns a sampler for cfg. A nil src uses NewSource(cfg.Seed).
func NewSampler(cfg Config, src Source, logger logging.Logger) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		src = NewSource(cfg.Seed)
	}
	return &Sampler{cfg: cfg, src: src, logger: logger}, nil
}

// Sample returns the points of every mesh, in mesh order, with ids 1..N.
func Sample(ctx context.Context, meshes []scene.Mesh, cfg Config, logger logging.Logger) ([]*model.Point3D, error) {
	s, err := NewSampler(cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	return s.Sample(ctx, meshes)
}

// Sample returns the points of every mesh, in mesh order, with ids 1..N. Meshes without geometry are
// skipped.
func (s *Sampler) Sample(ctx context.Context, meshes []scene.Mesh) ([]*model.Point3D, error) {
	var points []*model.Point3D
	for _, mesh := range meshes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := mesh.Evaluate()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to evaluate mesh %q", mesh.Name())
		}
		if data == nil || len(data.Vertices) == 0 {
			s.logger.Debugw("skipping mesh without geometry", "mesh", mesh.Name())
			continue
		}
		if err := data.Validate(); err != nil {
			return nil, errors.Wrapf(err, "mesh %q", mesh.Name())
		}

		before := len(points)
		if s.cfg.SampleFaces {
			points = s.sampleFaces(points, mesh, data)
		} else {
			points = s.sampleVertices(points, mesh, data)
		}
		s.logger.Debugw("sampled mesh", "mesh", mesh.Name(), "points", len(points)-before)
	}
	for i, p := range points {
		p.ID = i + 1
	}
	return points, nil
}

// AddTo samples meshes into record, assigning the record's next point ids. It returns the number of
// points added.
func (s *Sampler) AddTo(ctx context.Context, record *model.Record, meshes []scene.Mesh) (int, error) {
	points, err := s.Sample(ctx, meshes)
	if err != nil {
		return 0, err
	}
	for _, p := range points {
		record.AddPoint3D(p)
	}
	return len(points), nil
}

func (s *Sampler) sampleVertices(points []*model.Point3D, mesh scene.Mesh, data *scene.MeshData) []*model.Point3D {
	world := mesh.WorldMatrix()
	colors := s.vertexPolicy.VertexColors(data, fallbackRGB(mesh))
	for i, v := range data.Vertices {
		points = append(points, newPoint(spatialmath.TransformPoint(world, v), colors[i]))
	}
	return points
}

func (s *Sampler) sampleFaces(points []*model.Point3D, mesh scene.Mesh, data *scene.MeshData) []*model.Point3D {
	world := mesh.WorldMatrix()
	fallback := fallbackRGB(mesh)
	for _, tri := range data.Triangles {
		var corners [3]r3.Vector
		for i, loop := range tri {
			corners[i] = spatialmath.TransformPoint(world, data.Vertices[data.LoopVertices[loop]])
		}
		for range s.cfg.SamplesPerFace {
			w := s.barycentric()
			pos := corners[0].Mul(w[0]).Add(corners[1].Mul(w[1])).Add(corners[2].Mul(w[2]))
			points = append(points, newPoint(pos, s.facePolicy.SampleColor(data, tri, w, fallback)))
		}
	}
	return points
}

// barycentric draws weights uniformly over a triangle by reflecting draws that fall outside it.
func (s *Sampler) barycentric() [3]float64 {
	r1, r2 := s.src.Float64(), s.src.Float64()
	if r1+r2 > 1 {
		r1, r2 = 1-r1, 1-r2
	}
	return [3]float64{r1, r2, 1 - r1 - r2}
}

func newPoint(xyz r3.Vector, rgb [3]uint8) *model.Point3D {
	return &model.Point3D{XYZ: xyz, RGB: rgb}
}
