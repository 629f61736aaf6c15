package sampler

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/viam-labs/sfm-export/logging"
	"github.com/viam-labs/sfm-export/model"
	"github.com/viam-labs/sfm-export/scene"
)

// sequence replays fixed values, cycling when exhausted.
type sequence struct {
	values []float64
	next   int
}

func (s *sequence) Float64() float64 {
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

var triangle = []r3.Vector{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}}

func newMesh(t *testing.T, cfg scene.MeshConfig) scene.Mesh {
	t.Helper()
	m, err := scene.NewFileMesh(cfg)
	test.That(t, err, test.ShouldBeNil)
	return m
}

func TestVertexModeGrayTriangle(t *testing.T) {
	mesh := newMesh(t, scene.MeshConfig{Name: "Tri", Vertices: triangle, Polygons: [][]int{{0, 1, 2}}})

	points, err := Sample(context.Background(), []scene.Mesh{mesh}, Config{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, points, test.ShouldHaveLength, 3)
	for i, p := range points {
		test.That(t, p.ID, test.ShouldEqual, i+1)
		test.That(t, p.XYZ, test.ShouldResemble, triangle[i])
		test.That(t, p.RGB, test.ShouldResemble, [3]uint8{128, 128, 128})
		test.That(t, p.Error, test.ShouldEqual, 0.0)
		test.That(t, p.ImageIDs, test.ShouldBeEmpty)
		test.That(t, p.Point2DIdxs, test.ShouldBeEmpty)
	}
}

func TestVertexModeWorldMatrix(t *testing.T) {
	world := mgl64.Translate3D(10, 0, -2)
	rowMajor := [16]float64{}
	for r := range 4 {
		for c := range 4 {
			rowMajor[r*4+c] = world.At(r, c)
		}
	}
	mesh := newMesh(t, scene.MeshConfig{
		Name: "Tri", Vertices: triangle, Polygons: [][]int{{0, 1, 2}}, MatrixWorld: &rowMajor,
	})

	points, err := Sample(context.Background(), []scene.Mesh{mesh}, Config{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, points[1].XYZ, test.ShouldResemble, r3.Vector{X: 11, Y: 0, Z: -2})
}

func TestVertexModeFirstLoopColor(t *testing.T) {
	// vertex 0 is referenced by loops 0 and 3; the first one wins
	mesh := newMesh(t, scene.MeshConfig{
		Name:     "Quad",
		Vertices: append(append([]r3.Vector{}, triangle...), r3.Vector{X: 1, Y: 1}, r3.Vector{X: 5, Y: 5}),
		Polygons: [][]int{{0, 1, 2}, {0, 2, 3}},
		LoopColors: [][4]float64{
			{1, 0, 0, 1}, {0, 1, 0, 1}, {0, 0, 1, 1},
			{0, 1, 1, 1}, {1, 1, 1, 1}, {0.5, 0.5, 0.5, 1},
		},
		Materials: []scene.MaterialConfig{{BaseColor: [4]float64{0, 0, 0.2, 1}}},
	})

	points, err := Sample(context.Background(), []scene.Mesh{mesh}, Config{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, points, test.ShouldHaveLength, 5)
	test.That(t, points[0].RGB, test.ShouldResemble, [3]uint8{255, 0, 0})
	test.That(t, points[1].RGB, test.ShouldResemble, [3]uint8{0, 255, 0})
	test.That(t, points[2].RGB, test.ShouldResemble, [3]uint8{0, 0, 255})
	test.That(t, points[3].RGB, test.ShouldResemble, [3]uint8{127, 127, 127})
	// unreferenced vertex falls back to the material
	test.That(t, points[4].RGB, test.ShouldResemble, [3]uint8{0, 0, 51})
}

func TestFaceModeCountAndIDs(t *testing.T) {
	mesh := newMesh(t, scene.MeshConfig{
		Name:     "Quad",
		Vertices: append(append([]r3.Vector{}, triangle...), r3.Vector{X: 1, Y: 1}),
		Polygons: [][]int{{0, 1, 3, 2}},
	})
	cfg := Config{SampleFaces: true, SamplesPerFace: 5, Seed: 7}

	points, err := Sample(context.Background(), []scene.Mesh{mesh}, cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, points, test.ShouldHaveLength, 10)
	for i, p := range points {
		test.That(t, p.ID, test.ShouldEqual, i+1)
		// the quad is the unit square
		test.That(t, p.XYZ.X, test.ShouldBeBetweenOrEqual, 0.0, 1.0)
		test.That(t, p.XYZ.Y, test.ShouldBeBetweenOrEqual, 0.0, 1.0)
		test.That(t, p.XYZ.Z, test.ShouldEqual, 0.0)
		test.That(t, p.RGB, test.ShouldResemble, DefaultColor)
	}
}

func TestFaceModeContainment(t *testing.T) {
	mesh := newMesh(t, scene.MeshConfig{Name: "Tri", Vertices: triangle, Polygons: [][]int{{0, 1, 2}}})
	s, err := NewSampler(Config{SampleFaces: true, SamplesPerFace: 100, Seed: 42}, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	points, err := s.Sample(context.Background(), []scene.Mesh{mesh})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, points, test.ShouldHaveLength, 100)
	for _, p := range points {
		// r1 weights v0 at the origin, so inside means x, y >= 0 and x + y <= 1
		test.That(t, p.XYZ.X, test.ShouldBeGreaterThanOrEqualTo, 0.0)
		test.That(t, p.XYZ.Y, test.ShouldBeGreaterThanOrEqualTo, 0.0)
		test.That(t, p.XYZ.X+p.XYZ.Y, test.ShouldBeLessThanOrEqualTo, 1+1e-12)
	}
}

func TestFaceModeReflection(t *testing.T) {
	mesh := newMesh(t, scene.MeshConfig{
		Name: "Tri", Vertices: triangle, Polygons: [][]int{{0, 1, 2}},
		LoopColors: [][4]float64{{1, 0, 0, 1}, {0, 1, 0, 1}, {0, 0, 1, 1}},
	})
	// (0.75, 0.75) reflects to (0.25, 0.25) leaving 0.5 for the third corner
	s, err := NewSampler(Config{SampleFaces: true, SamplesPerFace: 1}, &sequence{values: []float64{0.75, 0.75}},
		logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	points, err := s.Sample(context.Background(), []scene.Mesh{mesh})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, points, test.ShouldHaveLength, 1)
	test.That(t, points[0].XYZ.X, test.ShouldAlmostEqual, 0.25)
	test.That(t, points[0].XYZ.Y, test.ShouldAlmostEqual, 0.5)
	test.That(t, points[0].RGB, test.ShouldResemble, [3]uint8{63, 63, 127})
}

func TestSeedDeterminism(t *testing.T) {
	mesh := newMesh(t, scene.MeshConfig{Name: "Tri", Vertices: triangle, Polygons: [][]int{{0, 1, 2}}})
	cfg := Config{SampleFaces: true, SamplesPerFace: 10, Seed: 3}
	a, err := Sample(context.Background(), []scene.Mesh{mesh}, cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	b, err := Sample(context.Background(), []scene.Mesh{mesh}, cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, a, test.ShouldResemble, b)
}

func TestSkipsMeshesWithoutGeometry(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	empty := newMesh(t, scene.MeshConfig{Name: "Empty"})
	tri := newMesh(t, scene.MeshConfig{Name: "Tri", Vertices: triangle, Polygons: [][]int{{0, 1, 2}}})

	points, err := Sample(context.Background(), []scene.Mesh{empty, tri, empty, tri}, Config{}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, points, test.ShouldHaveLength, 6)
	test.That(t, points[5].ID, test.ShouldEqual, 6)
	test.That(t, logs.FilterMessage("skipping mesh without geometry").Len(), test.ShouldEqual, 2)
}

type brokenMesh struct {
	scene.Mesh
}

func (brokenMesh) Name() string { return "Broken" }

func (brokenMesh) Evaluate() (*scene.MeshData, error) {
	return nil, errors.New("modifier failed")
}

func TestEvaluateError(t *testing.T) {
	_, err := Sample(context.Background(), []scene.Mesh{brokenMesh{}}, Config{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "modifier failed")
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tri := newMesh(t, scene.MeshConfig{Name: "Tri", Vertices: triangle, Polygons: [][]int{{0, 1, 2}}})
	_, err := Sample(ctx, []scene.Mesh{tri}, Config{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeError, context.Canceled)
}

func TestConfigValidate(t *testing.T) {
	test.That(t, Config{}.Validate(), test.ShouldBeNil)
	test.That(t, Config{SampleFaces: true, SamplesPerFace: 1}.Validate(), test.ShouldBeNil)
	test.That(t, Config{SampleFaces: true, SamplesPerFace: 100}.Validate(), test.ShouldBeNil)
	test.That(t, Config{SampleFaces: true, SamplesPerFace: 0}.Validate(), test.ShouldNotBeNil)
	test.That(t, Config{SampleFaces: true, SamplesPerFace: 101}.Validate(), test.ShouldNotBeNil)

	_, err := NewSampler(Config{SampleFaces: true}, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestAddToContinuesIDs(t *testing.T) {
	record := model.NewRecord()
	record.AddPoint3D(&model.Point3D{})
	tri := newMesh(t, scene.MeshConfig{Name: "Tri", Vertices: triangle, Polygons: [][]int{{0, 1, 2}}})
	s, err := NewSampler(Config{}, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	n, err := s.AddTo(context.Background(), record, []scene.Mesh{tri})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 3)
	test.That(t, record.SortedPoint3DIDs(), test.ShouldResemble, []int{1, 2, 3, 4})
}

func TestColorToRGB(t *testing.T) {
	test.That(t, ColorToRGB(colorful.Color{R: 1, G: 0.5, B: 0}), test.ShouldResemble, [3]uint8{255, 127, 0})
	test.That(t, ColorToRGB(colorful.Color{R: 1.5, G: -0.2, B: 0.999}), test.ShouldResemble, [3]uint8{255, 0, 254})
}
