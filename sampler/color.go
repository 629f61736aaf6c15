package sampler

import (
	"github.com/lucasb-eyer/go-colorful"

	"github.com/viam-labs/sfm-export/scene"
)

// DefaultColor is used when a mesh has neither vertex colors nor a material.
var DefaultColor = [3]uint8{128, 128, 128}

// ColorToRGB converts a color with channels in [0, 1] to bytes. Channels are truncated, not rounded,
// and clamped to the byte range.
func ColorToRGB(c colorful.Color) [3]uint8 {
	return [3]uint8{channelToByte(c.R), channelToByte(c.G), channelToByte(c.B)}
}

func channelToByte(v float64) uint8 {
	b := int(v * 255)
	switch {
	case b < 0:
		return 0
	case b > 255:
		return 255
	default:
		return uint8(b)
	}
}

// fallbackRGB is the color of points on a mesh without vertex colors.
func fallbackRGB(mesh scene.Mesh) [3]uint8 {
	if c, ok := mesh.FallbackColor(); ok {
		return ColorToRGB(c)
	}
	return DefaultColor
}

// FirstLoopColorPolicy colors each vertex with the color of the first loop, in loop order, that
// references it. Vertices no loop references get the fallback.
type FirstLoopColorPolicy struct{}

// VertexColors returns one color per vertex of data.
func (FirstLoopColorPolicy) VertexColors(data *scene.MeshData, fallback [3]uint8) [][3]uint8 {
	colors := make([][3]uint8, len(data.Vertices))
	seen := make([]bool, len(data.Vertices))
	if data.HasVertexColors() {
		for loop, v := range data.LoopVertices {
			if seen[v] {
				continue
			}
			seen[v] = true
			colors[v] = ColorToRGB(data.LoopColors[loop])
		}
	}
	for v := range colors {
		if !seen[v] {
			colors[v] = fallback
		}
	}
	return colors
}

// BarycentricBlendPolicy colors a surface sample by blending the colors of the triangle's three loops
// with the sample's barycentric weights. Bytes are taken after blending.
type BarycentricBlendPolicy struct{}

// SampleColor returns the color at barycentric weights w of triangle tri.
func (BarycentricBlendPolicy) SampleColor(data *scene.MeshData, tri [3]int, w [3]float64, fallback [3]uint8) [3]uint8 {
	if !data.HasVertexColors() {
		return fallback
	}
	var blended colorful.Color
	for i, loop := range tri {
		c := data.LoopColors[loop]
		blended.R += w[i] * c.R
		blended.G += w[i] * c.G
		blended.B += w[i] * c.B
	}
	return ColorToRGB(blended)
}
