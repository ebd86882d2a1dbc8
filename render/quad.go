package render

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"
)

type Vertex struct {
	Position mgl32.Vec2
	TexCoord mgl32.Vec2
}

// UniformBufferObject matches the uniform block at binding 0 of quad.vert.
type UniformBufferObject struct {
	Transform mgl32.Mat4
}

var quadVertices = []Vertex{
	{Position: mgl32.Vec2{-1, -1}, TexCoord: mgl32.Vec2{0, 0}},
	{Position: mgl32.Vec2{1, -1}, TexCoord: mgl32.Vec2{1, 0}},
	{Position: mgl32.Vec2{1, 1}, TexCoord: mgl32.Vec2{1, 1}},
	{Position: mgl32.Vec2{-1, 1}, TexCoord: mgl32.Vec2{0, 1}},
}

var quadIndices = []uint32{0, 1, 2, 2, 3, 0}

func getVertexBindingDescription() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func getVertexAttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.TexCoord)),
		},
	}
}

// quadTransform maps the unit quad onto the swapchain. With preserveAspect
// the texture keeps its aspect ratio and is centered, leaving bars in the
// clear color on the long axis.
func quadTransform(extent core1_0.Extent2D, textureWidth, textureHeight int, preserveAspect bool) mgl32.Mat4 {
	if !preserveAspect || extent.Width <= 0 || extent.Height <= 0 || textureWidth <= 0 || textureHeight <= 0 {
		return mgl32.Ident4()
	}

	surfaceAspect := float32(extent.Width) / float32(extent.Height)
	textureAspect := float32(textureWidth) / float32(textureHeight)

	scaleX, scaleY := float32(1), float32(1)
	if textureAspect > surfaceAspect {
		scaleY = surfaceAspect / textureAspect
	} else {
		scaleX = textureAspect / surfaceAspect
	}

	return mgl32.Scale3D(scaleX, scaleY, 1)
}
