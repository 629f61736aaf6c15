// Package scene describes the host scene the exporter reads cameras and meshes from, and provides
// a scene backed by a JSON description file.
package scene

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/viam-labs/sfm-export/transform"
)

// RotationMode is how a host object currently stores its rotation.
type RotationMode string

// Rotation modes understood by the exporter.
const (
	RotationQuaternion RotationMode = "QUATERNION"
	RotationAxisAngle  RotationMode = "AXIS_ANGLE"
	RotationEulerXYZ   RotationMode = "XYZ"
)

// Validate reports an error for unsupported modes.
func (m RotationMode) Validate() error {
	switch m {
	case RotationQuaternion, RotationAxisAngle, RotationEulerXYZ:
		return nil
	default:
		return errors.Errorf("unsupported rotation mode %q", m)
	}
}

// Scene enumerates the objects of a host scene.
type Scene interface {
	// Cameras returns every camera in the scene in host order.
	Cameras() []Camera
	// Meshes returns mesh objects, either all of them or only the selected ones.
	Meshes(selectedOnly bool) []Mesh
	// ActiveCamera returns the camera renders are taken from, or nil.
	ActiveCamera() Camera
	// SetActiveCamera changes the camera renders are taken from.
	SetActiveCamera(cam Camera)
	// Resolution returns the rendered image size in pixels.
	Resolution() (width, height int)
}

// Camera is a host camera object. Its rotation is host-owned mutable state: the quaternion can only
// be read while the camera is in QUATERNION mode.
type Camera interface {
	// Name is the full, unique object name.
	Name() string
	Location() r3.Vector
	RotationMode() RotationMode
	SetRotationMode(mode RotationMode) error
	RotationQuaternion() (quat.Number, error)
	Lens() transform.Lens
}

// Mesh is a host mesh object.
type Mesh interface {
	Name() string
	// WorldMatrix maps object space to world space.
	WorldMatrix() mgl64.Mat4
	// Evaluate returns the mesh geometry with modifiers applied. A nil result without error means the
	// object has no geometry to offer.
	Evaluate() (*MeshData, error)
	// FallbackColor is the base color of the first material, if there is one.
	FallbackColor() (colorful.Color, bool)
}

// MeshData is evaluated mesh geometry. Faces are split into loops (face corners), each referencing one
// vertex; triangles reference loops.
type MeshData struct {
	Vertices     []r3.Vector
	LoopVertices []int
	Triangles    [][3]int
	// LoopColors is empty or holds one color per loop.
	LoopColors []colorful.Color
}

// HasVertexColors reports whether a per-loop color layer is present.
func (d *MeshData) HasVertexColors() bool {
	return len(d.LoopColors) > 0
}

// Validate checks that every index is in range.
func (d *MeshData) Validate() error {
	for loop, v := range d.LoopVertices {
		if v < 0 || v >= len(d.Vertices) {
			return errors.Errorf("loop %d references vertex %d of %d", loop, v, len(d.Vertices))
		}
	}
	for i, tri := range d.Triangles {
		for _, loop := range tri {
			if loop < 0 || loop >= len(d.LoopVertices) {
				return errors.Errorf("triangle %d references loop %d of %d", i, loop, len(d.LoopVertices))
			}
		}
	}
	if d.HasVertexColors() && len(d.LoopColors) != len(d.LoopVertices) {
		return errors.Errorf("%d loop colors for %d loops", len(d.LoopColors), len(d.LoopVertices))
	}
	return nil
}
