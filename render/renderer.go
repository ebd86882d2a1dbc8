package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// Renderer presents a single texture, stretched or letterboxed, to a window.
// It owns every Vulkan object it creates; Shutdown releases them in reverse
// order of creation. A Renderer is driven from one goroutine.
type Renderer struct {
	options Options
	window  Window
	overlay Overlay

	device      *DeviceContext
	surface     khr_surface.Surface
	allocator   *Allocator
	descriptors *Descriptors
	pipeline    *Pipeline
	swapchain   *SwapchainManager
	frames      *FrameSynchronizer
	recorder    *CommandRecorder
	loop        *RenderLoop

	vertexBuffer *Buffer
	indexBuffer  *Buffer
	texture      *Texture

	initialized bool
}

var _ frameBackend = (*Renderer)(nil)

func New(options Options) *Renderer {
	return &Renderer{options: options}
}

// Init brings up the device, the swapchain at extent and everything needed to
// draw. On failure whatever was created is released again.
func (r *Renderer) Init(window Window, extent core1_0.Extent2D) error {
	if r.initialized {
		return misuse("init", "renderer is already initialized")
	}

	err := r.options.Validate()
	if err != nil {
		return fatalInit("validate options", 0, err)
	}

	err = r.init(window, extent)
	if err != nil {
		r.teardown()
		return err
	}

	r.initialized = true
	return nil
}

func (r *Renderer) init(window Window, extent core1_0.Extent2D) error {
	r.window = window

	globalDriver, err := window.GlobalDriver()
	if err != nil {
		return fatalInit("load vulkan", 0, err)
	}

	r.device = NewDeviceContext(globalDriver)
	err = r.device.CreateInstance(r.options.AppName, window.InstanceExtensions(), r.options.EnableValidation)
	if err != nil {
		return err
	}

	r.surface, err = window.CreateSurface(r.device.Instance().Instance(), r.device.SurfaceDriver())
	if err != nil {
		return fatalInit("create surface", 0, err)
	}

	err = r.device.SelectPhysicalDevice(r.surface)
	if err != nil {
		return err
	}

	err = r.device.CreateLogicalDeviceAndQueues()
	if err != nil {
		return err
	}

	r.allocator, err = NewAllocator(r.device)
	if err != nil {
		return err
	}

	r.descriptors = NewDescriptors(r.device, r.allocator)
	err = r.descriptors.CreateLayouts()
	if err != nil {
		return err
	}

	r.pipeline = NewPipeline(r.device, r.options.VertexShader, r.options.FragmentShader, r.descriptors.SetLayout())

	r.swapchain = NewSwapchainManager(r.device, r.surface, r.pipeline, r.options.PreferredFormat)
	err = r.swapchain.Create(extent)
	if err != nil {
		return err
	}

	r.frames = NewFrameSynchronizer(r.device)
	err = r.frames.CreateSlots(r.options.FramesInFlight)
	if err != nil {
		return err
	}

	err = r.descriptors.CreateSets(r.options.FramesInFlight)
	if err != nil {
		return err
	}

	r.vertexBuffer, err = r.allocator.UploadBuffer(quadVertices, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return err
	}

	r.indexBuffer, err = r.allocator.UploadBuffer(quadIndices, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		return err
	}

	r.texture, err = createTexture(r.device, r.allocator, placeholderPixel, 1, 1, r.options.NearestFilter, r.options.FramesInFlight)
	if err != nil {
		return err
	}

	err = r.descriptors.BindTexture(r.texture)
	if err != nil {
		return err
	}

	r.recorder = &CommandRecorder{
		device:       r.device,
		allocator:    r.allocator,
		frames:       r.frames,
		swapchain:    r.swapchain,
		pipeline:     r.pipeline,
		descriptors:  r.descriptors,
		vertexBuffer: r.vertexBuffer,
		indexBuffer:  r.indexBuffer,
		indexCount:   len(quadIndices),
		texture:      r.texture,
		clearColor:   r.options.ClearColor,
		overlay:      r.overlay,
	}
	r.loop = newRenderLoop(r, r.frames.ring)

	return nil
}

// DrawFrame renders and presents one frame.
func (r *Renderer) DrawFrame() error {
	if !r.initialized {
		return misuse("draw frame", "renderer is not initialized")
	}
	return r.loop.DrawFrame()
}

// NotifyResize makes the next frame rebuild the swapchain at the window's
// drawable size.
func (r *Renderer) NotifyResize() {
	if r.loop != nil {
		r.loop.NotifyResize()
	}
}

func (r *Renderer) SetOverlay(overlay Overlay) {
	r.overlay = overlay
	if r.recorder != nil {
		r.recorder.SetOverlay(overlay)
	}
}

// OverlayResources is valid after Init. The render pass changes if the
// swapchain format ever does, so overlays should fetch it again after a
// resize.
func (r *Renderer) OverlayResources() OverlayResources {
	return OverlayResources{
		RenderPass:          r.pipeline.RenderPass(),
		DescriptorPool:      r.descriptors.OverlayPool(),
		DescriptorSetLayout: r.descriptors.OverlayLayout(),
		Queue:               r.device.GraphicsQueue(),
		QueueFamilyIndex:    *r.device.QueueFamilies().GraphicsFamily,
		ImageCount:          r.swapchain.ImageCount(),
	}
}

func (r *Renderer) DeviceInfo() DeviceInfo {
	if r.device == nil {
		return DeviceInfo{}
	}
	return r.device.Info()
}

func (r *Renderer) Stats() FrameStats {
	if r.loop == nil {
		return FrameStats{}
	}
	return *r.loop.Stats()
}

// LoadTexture replaces the displayed texture with pixels, which hold
// width*height tightly packed RGBA8 values.
func (r *Renderer) LoadTexture(pixels []byte, width, height int) error {
	if !r.initialized {
		return misuse("load texture", "renderer is not initialized")
	}

	err := checkPixels("load texture", pixels, width, height)
	if err != nil {
		return err
	}

	err = r.frames.WaitAll()
	if err != nil {
		return err
	}

	texture, err := createTexture(r.device, r.allocator, pixels, width, height, r.options.NearestFilter, r.frames.Count())
	if err != nil {
		return err
	}

	err = r.descriptors.BindTexture(texture)
	if err != nil {
		destroyTexture(r.device, r.allocator, texture)
		return err
	}

	destroyTexture(r.device, r.allocator, r.texture)
	r.texture = texture
	r.recorder.texture = texture

	Logger().Debug("texture loaded", "width", width, "height", height)
	return nil
}

// UpdateTexture overwrites the current texture with pixels of the same size.
// The pixels show up from the next DrawFrame on; frames already in flight keep
// the previous contents. Use LoadTexture when the size changes.
func (r *Renderer) UpdateTexture(pixels []byte) error {
	if !r.initialized {
		return misuse("update texture", "renderer is not initialized")
	}

	if len(pixels) != r.texture.Image.ByteSize() {
		return misuse("update texture", "got %d bytes, current %dx%d texture needs %d",
			len(pixels), r.texture.Width(), r.texture.Height(), r.texture.Image.ByteSize())
	}

	slot := r.frames.Current()
	err := r.frames.Wait(slot)
	if err != nil {
		return err
	}

	return r.texture.stage(r.allocator, slot, pixels)
}

// Shutdown waits for the device to go idle and releases everything Init
// created. The Renderer cannot be used afterwards.
func (r *Renderer) Shutdown() error {
	if !r.initialized {
		return nil
	}
	r.initialized = false

	err := r.device.WaitIdle()
	r.teardown()
	return err
}

func (r *Renderer) teardown() {
	if r.device == nil {
		return
	}

	if r.device.Device() != nil {
		destroyTexture(r.device, r.allocator, r.texture)
		r.texture = nil

		if r.allocator != nil {
			r.allocator.FreeBuffer(r.indexBuffer)
			r.allocator.FreeBuffer(r.vertexBuffer)
		}
		r.indexBuffer = nil
		r.vertexBuffer = nil

		if r.descriptors != nil {
			r.descriptors.destroySets()
		}
		if r.frames != nil {
			r.frames.Destroy()
		}
		if r.swapchain != nil {
			r.swapchain.Destroy()
		}
		if r.pipeline != nil {
			r.pipeline.Destroy()
		}
		if r.descriptors != nil {
			r.descriptors.destroyLayouts()
		}
		if r.allocator != nil {
			r.allocator.Destroy()
		}
	}

	r.device.DestroySurface(r.surface)
	r.surface = khr_surface.Surface{}
	r.device.Destroy()

	r.recorder = nil
	r.loop = nil
	r.swapchain = nil
	r.pipeline = nil
	r.frames = nil
	r.descriptors = nil
	r.allocator = nil
	r.device = nil
}

func (r *Renderer) waitForSlot(slot int) error {
	return r.frames.Wait(slot)
}

// presentStatusFor maps the result of an acquire or present call. Out-of-date
// and suboptimal surfaces are recoverable whatever err says; any other error
// is returned as is.
func presentStatusFor(res common.VkResult, err error) (PresentStatus, error) {
	switch {
	case res == khr_swapchain.VKErrorOutOfDate:
		return PresentOutOfDate, nil
	case res == khr_swapchain.VKSuboptimal:
		return PresentSuboptimal, nil
	case err != nil:
		return PresentOptimal, err
	}
	return PresentOptimal, nil
}

func (r *Renderer) acquireImage(slot int) (int, PresentStatus, error) {
	imageIndex, res, err := r.swapchain.Driver().AcquireNextImage(r.swapchain.Swapchain(), common.NoTimeout, &r.frames.Slot(slot).ImageAcquired, nil)
	status, err := presentStatusFor(res, err)
	if err != nil {
		return 0, status, frameFailure("acquire next image", res, err)
	}
	if status == PresentOutOfDate {
		return 0, status, nil
	}
	return imageIndex, status, nil
}

func (r *Renderer) resetSlot(slot int) error {
	return r.frames.Reset(slot)
}

func (r *Renderer) recordSlot(slot int, imageIndex int) error {
	ubo := UniformBufferObject{
		Transform: quadTransform(r.swapchain.Extent(), r.texture.Width(), r.texture.Height(), r.options.PreserveAspect),
	}
	err := r.descriptors.WriteUniforms(slot, ubo)
	if err != nil {
		return err
	}

	return r.recorder.Record(slot, imageIndex)
}

func (r *Renderer) submitSlot(slot int) error {
	frame := r.frames.Slot(slot)

	res, err := r.device.Device().QueueSubmit(r.device.GraphicsQueue(), &frame.InFlight,
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{frame.ImageAcquired},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{frame.CommandBuffer},
			SignalSemaphores: []core1_0.Semaphore{frame.RenderFinished},
		},
	)
	if err != nil {
		return frameFailure("submit frame", res, err)
	}
	return nil
}

func (r *Renderer) presentImage(slot int, imageIndex int) (PresentStatus, error) {
	res, err := r.swapchain.Driver().QueuePresent(r.device.PresentQueue(), khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{r.frames.Slot(slot).RenderFinished},
		Swapchains:     []khr_swapchain.Swapchain{r.swapchain.Swapchain()},
		ImageIndices:   []int{imageIndex},
	})
	status, err := presentStatusFor(res, err)
	if err != nil {
		return status, frameFailure("present", res, err)
	}
	return status, nil
}

func (r *Renderer) recreateSwapchain() error {
	extent, err := waitForDrawableExtent(r.window)
	if err != nil {
		return err
	}

	err = r.swapchain.Recreate(extent)
	if err != nil {
		return errors.Wrap(err, "recreate swapchain")
	}
	return nil
}
