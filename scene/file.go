package scene

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"gonum.org/v1/gonum/num/quat"

	"github.com/viam-labs/sfm-export/spatialmath"
	"github.com/viam-labs/sfm-export/transform"
)

// RenderSettings are the scene's output image settings.
type RenderSettings struct {
	ResolutionX int `json:"resolution_x"`
	ResolutionY int `json:"resolution_y"`
	// ResolutionPercentage scales both dimensions. Zero means 100.
	ResolutionPercentage int `json:"resolution_percentage,omitempty"`
}

// Size returns the scaled image size.
func (r RenderSettings) Size() (int, int) {
	pct := r.ResolutionPercentage
	if pct == 0 {
		pct = 100
	}
	return r.ResolutionX * pct / 100, r.ResolutionY * pct / 100
}

// CameraConfig describes a camera in a scene file.
type CameraConfig struct {
	Name               string       `json:"name"`
	Location           r3.Vector    `json:"location"`
	RotationMode       RotationMode `json:"rotation_mode"`
	RotationEuler      *r3.Vector   `json:"rotation_euler,omitempty"`
	RotationQuaternion *[4]float64  `json:"rotation_quaternion,omitempty"`
	RotationAxisAngle  *[4]float64  `json:"rotation_axis_angle,omitempty"`
	transform.Lens
}

// MaterialConfig is the part of a material the exporter reads.
type MaterialConfig struct {
	BaseColor [4]float64 `json:"base_color"`
}

// MeshConfig describes a mesh object in a scene file. Polygons list vertex indices; their corners
// become loops in polygon order.
type MeshConfig struct {
	Name        string           `json:"name"`
	Selected    bool             `json:"selected"`
	MatrixWorld *[16]float64     `json:"matrix_world,omitempty"`
	Vertices    []r3.Vector      `json:"vertices"`
	Polygons    [][]int          `json:"polygons"`
	LoopColors  [][4]float64     `json:"loop_colors,omitempty"`
	Materials   []MaterialConfig `json:"materials,omitempty"`
}

// FileConfig is the JSON layout of a scene file.
type FileConfig struct {
	Render       RenderSettings `json:"render"`
	ActiveCamera string         `json:"active_camera,omitempty"`
	Cameras      []CameraConfig `json:"cameras"`
	Meshes       []MeshConfig   `json:"meshes"`
}

// FileScene is a Scene held in memory, typically loaded from a JSON scene file.
type FileScene struct {
	render  RenderSettings
	cameras []*FileCamera
	meshes  []*FileMesh
	active  Camera
}

// ReadFile loads a scene from a JSON5 file, so hand-edited scenes may carry comments and
// trailing commas.
func ReadFile(path string) (*FileScene, error) {
	//nolint:gosec
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scene file")
	}
	var cfg FileConfig
	if err := json5.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse scene file %q", path)
	}
	return NewFileScene(cfg)
}

// NewFileScene builds a scene from its description.
func NewFileScene(cfg FileConfig) (*FileScene, error) {
	s := &FileScene{render: cfg.Render}
	names := map[string]struct{}{}
	for _, cc := range cfg.Cameras {
		if _, ok := names[cc.Name]; ok {
			return nil, errors.Errorf("duplicate object name %q", cc.Name)
		}
		names[cc.Name] = struct{}{}
		cam, err := NewFileCamera(cc)
		if err != nil {
			return nil, err
		}
		s.cameras = append(s.cameras, cam)
	}
	for _, mc := range cfg.Meshes {
		if _, ok := names[mc.Name]; ok {
			return nil, errors.Errorf("duplicate object name %q", mc.Name)
		}
		names[mc.Name] = struct{}{}
		mesh, err := NewFileMesh(mc)
		if err != nil {
			return nil, err
		}
		s.meshes = append(s.meshes, mesh)
	}
	if cfg.ActiveCamera != "" {
		idx := slices.IndexFunc(s.cameras, func(c *FileCamera) bool { return c.name == cfg.ActiveCamera })
		if idx < 0 {
			return nil, errors.Errorf("active camera %q not found", cfg.ActiveCamera)
		}
		s.active = s.cameras[idx]
	}
	return s, nil
}

// Cameras returns the scene's cameras in file order.
func (s *FileScene) Cameras() []Camera {
	out := make([]Camera, 0, len(s.cameras))
	for _, c := range s.cameras {
		out = append(out, c)
	}
	return out
}

// Meshes returns the scene's meshes, optionally only the selected ones.
func (s *FileScene) Meshes(selectedOnly bool) []Mesh {
	out := make([]Mesh, 0, len(s.meshes))
	for _, m := range s.meshes {
		if selectedOnly && !m.selected {
			continue
		}
		out = append(out, m)
	}
	return out
}

// ActiveCamera returns the active camera or nil.
func (s *FileScene) ActiveCamera() Camera {
	return s.active
}

// SetActiveCamera changes the active camera.
func (s *FileScene) SetActiveCamera(cam Camera) {
	s.active = cam
}

// Resolution returns the scaled render resolution.
func (s *FileScene) Resolution() (int, int) {
	return s.render.Size()
}

// FileCamera is an in-memory Camera. Like a host camera it keeps one rotation field per mode; switching
// modes fills the new mode's field from whichever field was last set explicitly, so switching back and
// forth never alters the explicit value.
type FileCamera struct {
	name      string
	location  r3.Vector
	lens      transform.Lens
	mode      RotationMode
	authority RotationMode

	euler      r3.Vector
	quaternion quat.Number
	axisAngle  spatialmath.R4AA
}

// NewFileCamera builds a camera from its description. The rotation field matching the rotation mode
// must be present.
func NewFileCamera(cfg CameraConfig) (*FileCamera, error) {
	if cfg.Name == "" {
		return nil, errors.New("camera name is required")
	}
	mode := cfg.RotationMode
	if mode == "" {
		mode = RotationEulerXYZ
	}
	if err := mode.Validate(); err != nil {
		return nil, errors.Wrapf(err, "camera %q", cfg.Name)
	}
	c := &FileCamera{
		name:       cfg.Name,
		location:   cfg.Location,
		lens:       cfg.Lens,
		mode:       mode,
		authority:  mode,
		quaternion: quat.Number{Real: 1},
		axisAngle:  *spatialmath.NewR4AA(),
	}
	switch mode {
	case RotationEulerXYZ:
		if cfg.RotationEuler != nil {
			c.euler = *cfg.RotationEuler
		}
	case RotationQuaternion:
		if q := cfg.RotationQuaternion; q != nil {
			c.quaternion = quat.Number{Real: q[0], Imag: q[1], Jmag: q[2], Kmag: q[3]}
		}
	case RotationAxisAngle:
		if aa := cfg.RotationAxisAngle; aa != nil {
			c.axisAngle = spatialmath.R4AA{Theta: aa[0], RX: aa[1], RY: aa[2], RZ: aa[3]}
		}
	}
	return c, nil
}

// Name returns the camera's object name.
func (c *FileCamera) Name() string { return c.name }

// Location returns the camera's world position.
func (c *FileCamera) Location() r3.Vector { return c.location }

// Lens returns the camera's lens.
func (c *FileCamera) Lens() transform.Lens { return c.lens }

// RotationMode returns the current rotation mode.
func (c *FileCamera) RotationMode() RotationMode { return c.mode }

// SetRotationMode switches modes, converting the explicitly set rotation into the new mode's field.
func (c *FileCamera) SetRotationMode(mode RotationMode) error {
	if err := mode.Validate(); err != nil {
		return err
	}
	if mode == c.mode {
		return nil
	}
	if mode != c.authority {
		q := c.quaternionOf(c.authority)
		switch mode {
		case RotationQuaternion:
			c.quaternion = q
		case RotationEulerXYZ:
			c.euler = spatialmath.QuatToEulerXYZ(q)
		case RotationAxisAngle:
			c.axisAngle = *spatialmath.QuatToR4AA(q)
		}
	}
	c.mode = mode
	return nil
}

// RotationQuaternion returns the quaternion rotation field. It is only meaningful in QUATERNION mode.
func (c *FileCamera) RotationQuaternion() (quat.Number, error) {
	if c.mode != RotationQuaternion {
		return quat.Number{}, errors.Errorf("camera %q: rotation mode is %s, not %s", c.name, c.mode, RotationQuaternion)
	}
	return spatialmath.NormalizeQuat(c.quaternion), nil
}

func (c *FileCamera) quaternionOf(mode RotationMode) quat.Number {
	switch mode {
	case RotationEulerXYZ:
		return spatialmath.EulerXYZToQuat(c.euler)
	case RotationAxisAngle:
		aa := c.axisAngle
		return aa.ToQuat()
	default:
		return spatialmath.NormalizeQuat(c.quaternion)
	}
}

// FileMesh is an in-memory Mesh.
type FileMesh struct {
	name     string
	selected bool
	world    mgl64.Mat4
	data     *MeshData
	fallback *colorful.Color
}

// NewFileMesh builds a mesh from its description, triangulating polygons as fans.
func NewFileMesh(cfg MeshConfig) (*FileMesh, error) {
	if cfg.Name == "" {
		return nil, errors.New("mesh name is required")
	}
	m := &FileMesh{name: cfg.Name, selected: cfg.Selected, world: mgl64.Ident4()}
	if cfg.MatrixWorld != nil {
		m.world = spatialmath.MatrixFromRowMajor(*cfg.MatrixWorld)
	}
	if len(cfg.Materials) > 0 {
		bc := cfg.Materials[0].BaseColor
		m.fallback = &colorful.Color{R: bc[0], G: bc[1], B: bc[2]}
	}
	if len(cfg.Vertices) == 0 {
		return m, nil
	}

	data := &MeshData{Vertices: cfg.Vertices}
	for i, poly := range cfg.Polygons {
		if len(poly) < 3 {
			return nil, errors.Errorf("mesh %q: polygon %d has %d corners", cfg.Name, i, len(poly))
		}
		first := len(data.LoopVertices)
		data.LoopVertices = append(data.LoopVertices, poly...)
		for k := 1; k+1 < len(poly); k++ {
			data.Triangles = append(data.Triangles, [3]int{first, first + k, first + k + 1})
		}
	}
	for _, lc := range cfg.LoopColors {
		data.LoopColors = append(data.LoopColors, colorful.Color{R: lc[0], G: lc[1], B: lc[2]})
	}
	if err := data.Validate(); err != nil {
		return nil, errors.Wrapf(err, "mesh %q", cfg.Name)
	}
	m.data = data
	return m, nil
}

// Name returns the mesh's object name.
func (m *FileMesh) Name() string { return m.name }

// WorldMatrix returns the object-to-world matrix.
func (m *FileMesh) WorldMatrix() mgl64.Mat4 { return m.world }

// Evaluate returns the triangulated geometry, or nil for a mesh without vertices.
func (m *FileMesh) Evaluate() (*MeshData, error) {
	return m.data, nil
}

// FallbackColor returns the first material's base color.
func (m *FileMesh) FallbackColor() (colorful.Color, bool) {
	if m.fallback == nil {
		return colorful.Color{}, false
	}
	return *m.fallback, true
}
