package render

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// Window is the windowing system the renderer presents into.
type Window interface {
	// GlobalDriver loads Vulkan through the window system's
	// vkGetInstanceProcAddr.
	GlobalDriver() (core1_0.GlobalDriver, error)
	// InstanceExtensions lists the instance extensions needed to present to
	// this window.
	InstanceExtensions() []string
	CreateSurface(instance core1_0.Instance, surfaceDriver khr_surface.ExtensionDriver) (khr_surface.Surface, error)
	// DrawableSize is the current size of the drawable area in pixels.
	DrawableSize() (width, height int)
	// WaitEvent blocks until the window system delivers the next event.
	WaitEvent()
	Closing() bool
}

// Overlay records its own draw commands into the frame's command buffer.
// Render is called once per frame while the main render pass is open.
type Overlay interface {
	Render(commandBuffer core1_0.CommandBuffer) error
}

// OverlayResources is what an Overlay may use for its own pipeline and
// texture bindings.
type OverlayResources struct {
	RenderPass          core1_0.RenderPass
	DescriptorPool      core1_0.DescriptorPool
	DescriptorSetLayout core1_0.DescriptorSetLayout
	Queue               core1_0.Queue
	QueueFamilyIndex    int
	ImageCount          int
}

// waitForDrawableExtent blocks on window events until the drawable size is
// non-zero. It returns ErrWindowClosed if the window starts closing first.
func waitForDrawableExtent(window Window) (core1_0.Extent2D, error) {
	for {
		width, height := window.DrawableSize()
		if width > 0 && height > 0 {
			return core1_0.Extent2D{Width: width, Height: height}, nil
		}
		if window.Closing() {
			return core1_0.Extent2D{}, ErrWindowClosed
		}
		window.WaitEvent()
	}
}
