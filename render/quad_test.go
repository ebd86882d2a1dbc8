package render

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"
)

func TestQuadTransformLetterbox(t *testing.T) {
	tests := []struct {
		name           string
		extent         core1_0.Extent2D
		width, height  int
		scaleX, scaleY float32
	}{
		{"same aspect", core1_0.Extent2D{Width: 800, Height: 600}, 320, 240, 1, 1},
		{"wide texture", core1_0.Extent2D{Width: 800, Height: 800}, 400, 200, 1, 0.5},
		{"tall texture", core1_0.Extent2D{Width: 800, Height: 400}, 200, 200, 0.5, 1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := quadTransform(test.extent, test.width, test.height, true)
			if !mgl32.FloatEqual(m.At(0, 0), test.scaleX) || !mgl32.FloatEqual(m.At(1, 1), test.scaleY) {
				t.Errorf("scale = (%v, %v), want (%v, %v)", m.At(0, 0), m.At(1, 1), test.scaleX, test.scaleY)
			}

			// Corners of the quad stay inside clip space.
			for _, v := range quadVertices {
				p := m.Mul4x1(mgl32.Vec4{v.Position.X(), v.Position.Y(), 0, 1})
				if p.X() < -1.0001 || p.X() > 1.0001 || p.Y() < -1.0001 || p.Y() > 1.0001 {
					t.Errorf("vertex %v maps outside clip space to %v", v.Position, p)
				}
			}
		})
	}
}

func TestQuadTransformIdentity(t *testing.T) {
	extent := core1_0.Extent2D{Width: 800, Height: 600}

	if m := quadTransform(extent, 100, 50, false); m != mgl32.Ident4() {
		t.Errorf("stretching should use the identity, got %v", m)
	}
	if m := quadTransform(core1_0.Extent2D{}, 100, 50, true); m != mgl32.Ident4() {
		t.Errorf("zero extent should use the identity, got %v", m)
	}
	if m := quadTransform(extent, 0, 50, true); m != mgl32.Ident4() {
		t.Errorf("empty texture should use the identity, got %v", m)
	}
}

func TestVertexLayout(t *testing.T) {
	bindings := getVertexBindingDescription()
	if len(bindings) != 1 || bindings[0].Stride != 16 {
		t.Fatalf("bindings = %+v, want one binding with a 16 byte stride", bindings)
	}

	attributes := getVertexAttributeDescriptions()
	if len(attributes) != 2 {
		t.Fatalf("got %d attributes, want 2", len(attributes))
	}
	if attributes[0].Offset != 0 || attributes[1].Offset != 8 {
		t.Errorf("offsets = %d, %d, want 0, 8", attributes[0].Offset, attributes[1].Offset)
	}
	if attributes[0].Location != 0 || attributes[1].Location != 1 {
		t.Errorf("locations = %d, %d, want 0, 1", attributes[0].Location, attributes[1].Location)
	}
}

func TestQuadIndicesInRange(t *testing.T) {
	if len(quadIndices)%3 != 0 {
		t.Fatalf("%d indices do not form triangles", len(quadIndices))
	}
	for _, index := range quadIndices {
		if int(index) >= len(quadVertices) {
			t.Errorf("index %d out of range", index)
		}
	}
}
