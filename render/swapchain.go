package render

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

type SwapchainSupportDetails struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

func querySwapchainSupport(surfaceDriver khr_surface.ExtensionDriver, surface khr_surface.Surface, device core1_0.PhysicalDevice) (SwapchainSupportDetails, error) {
	var details SwapchainSupportDetails

	capabilities, res, err := surfaceDriver.GetPhysicalDeviceSurfaceCapabilities(surface, device)
	if err != nil {
		return details, fatalInit("get surface capabilities", res, err)
	}
	details.Capabilities = capabilities

	details.Formats, res, err = surfaceDriver.GetPhysicalDeviceSurfaceFormats(surface, device)
	if err != nil {
		return details, fatalInit("get surface formats", res, err)
	}

	details.PresentModes, res, err = surfaceDriver.GetPhysicalDeviceSurfacePresentModes(surface, device)
	if err != nil {
		return details, fatalInit("get surface present modes", res, err)
	}

	return details, nil
}

func chooseSurfaceFormat(availableFormats []khr_surface.SurfaceFormat, preferred core1_0.Format) khr_surface.SurfaceFormat {
	for _, format := range availableFormats {
		if format.Format == preferred && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return availableFormats[0]
}

// choosePresentMode always picks FIFO. It is the one mode every
// implementation supports and it never tears, so mailbox and immediate are
// ignored even when offered.
func choosePresentMode(availablePresentModes []khr_surface.PresentMode) khr_surface.PresentMode {
	return khr_surface.PresentModeFIFO
}

// chooseImageCount asks for one image more than the minimum, clamped to
// the surface's range. A MaxImageCount of 0 means there is no upper bound.
func chooseImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}
	if imageCount < capabilities.MinImageCount {
		imageCount = capabilities.MinImageCount
	}
	return imageCount
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// extentUndefined reports whether the surface leaves the extent to the
// swapchain. Vulkan signals that with 0xFFFFFFFF, which arrives here either
// as -1 or as 4294967295 depending on how the driver widened it.
func extentUndefined(extent core1_0.Extent2D) bool {
	return uint32(extent.Width) == math.MaxUint32 || uint32(extent.Height) == math.MaxUint32
}

// chooseExtent uses the surface's current extent when the surface dictates
// one, otherwise the requested extent. Either way the result is clamped to
// the supported range.
func chooseExtent(capabilities *khr_surface.SurfaceCapabilities, requested core1_0.Extent2D) core1_0.Extent2D {
	extent := requested
	if !extentUndefined(capabilities.CurrentExtent) {
		extent = capabilities.CurrentExtent
	}

	return core1_0.Extent2D{
		Width:  clampInt(extent.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clampInt(extent.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

type swapchainPlan struct {
	Format             khr_surface.SurfaceFormat
	PresentMode        khr_surface.PresentMode
	Extent             core1_0.Extent2D
	ImageCount         int
	SharingMode        core1_0.SharingMode
	QueueFamilyIndices []int
}

func planSwapchain(support SwapchainSupportDetails, requested core1_0.Extent2D, preferred core1_0.Format, indices QueueFamilyIndices) swapchainPlan {
	plan := swapchainPlan{
		Format:      chooseSurfaceFormat(support.Formats, preferred),
		PresentMode: choosePresentMode(support.PresentModes),
		Extent:      chooseExtent(support.Capabilities, requested),
		ImageCount:  chooseImageCount(support.Capabilities),
		SharingMode: core1_0.SharingModeExclusive,
	}

	if *indices.GraphicsFamily != *indices.PresentFamily {
		plan.SharingMode = core1_0.SharingModeConcurrent
		plan.QueueFamilyIndices = []int{*indices.GraphicsFamily, *indices.PresentFamily}
	}

	return plan
}

// renderPassSource hands out a render pass compatible with the given
// swapchain format, rebuilding it if the format changed.
type renderPassSource interface {
	RenderPassFor(format core1_0.Format) (core1_0.RenderPass, error)
}

// SwapchainManager owns the swapchain plus one image view and one
// framebuffer per swapchain image. The surface belongs to the caller.
type SwapchainManager struct {
	device          *DeviceContext
	surface         khr_surface.Surface
	swapchainDriver khr_swapchain.ExtensionDriver
	renderPasses    renderPassSource
	preferredFormat core1_0.Format

	swapchain    khr_swapchain.Swapchain
	format       khr_surface.SurfaceFormat
	presentMode  khr_surface.PresentMode
	extent       core1_0.Extent2D
	images       []core1_0.Image
	views        []core1_0.ImageView
	framebuffers []core1_0.Framebuffer
}

func NewSwapchainManager(device *DeviceContext, surface khr_surface.Surface, renderPasses renderPassSource, preferredFormat core1_0.Format) *SwapchainManager {
	return &SwapchainManager{
		device:          device,
		surface:         surface,
		swapchainDriver: khr_swapchain.CreateExtensionDriverFromCoreDriver(device.Device()),
		renderPasses:    renderPasses,
		preferredFormat: preferredFormat,
	}
}

func (m *SwapchainManager) Driver() khr_swapchain.ExtensionDriver { return m.swapchainDriver }
func (m *SwapchainManager) Swapchain() khr_swapchain.Swapchain    { return m.swapchain }
func (m *SwapchainManager) Format() core1_0.Format                { return m.format.Format }
func (m *SwapchainManager) Extent() core1_0.Extent2D              { return m.extent }
func (m *SwapchainManager) ImageCount() int                       { return len(m.images) }

func (m *SwapchainManager) Framebuffer(imageIndex int) core1_0.Framebuffer {
	return m.framebuffers[imageIndex]
}

// NegotiatedFormat reports the surface format Create would pick, without
// creating anything.
func (m *SwapchainManager) NegotiatedFormat() (core1_0.Format, error) {
	support, err := querySwapchainSupport(m.device.SurfaceDriver(), m.surface, m.device.PhysicalDevice())
	if err != nil {
		return 0, err
	}
	if len(support.Formats) == 0 {
		return 0, fatalInit("negotiate surface format", 0, errors.New("surface reports no formats"))
	}
	return chooseSurfaceFormat(support.Formats, m.preferredFormat).Format, nil
}

// Create builds the swapchain, its image views and framebuffers.
func (m *SwapchainManager) Create(extent core1_0.Extent2D) error {
	support, err := querySwapchainSupport(m.device.SurfaceDriver(), m.surface, m.device.PhysicalDevice())
	if err != nil {
		return err
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return fatalInit("create swapchain", 0, errors.New("surface reports no formats or present modes"))
	}

	plan := planSwapchain(support, extent, m.preferredFormat, m.device.QueueFamilies())

	swapchain, res, err := m.swapchainDriver.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: m.surface,

		MinImageCount:    plan.ImageCount,
		ImageFormat:      plan.Format.Format,
		ImageColorSpace:  plan.Format.ColorSpace,
		ImageExtent:      plan.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   plan.SharingMode,
		QueueFamilyIndices: plan.QueueFamilyIndices,

		PreTransform:   support.Capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    plan.PresentMode,
		Clipped:        true,
	})
	if err != nil {
		return fatalInit("create swapchain", res, err)
	}
	m.swapchain = swapchain
	m.format = plan.Format
	m.presentMode = plan.PresentMode
	m.extent = plan.Extent

	images, res, err := m.swapchainDriver.GetSwapchainImages(m.swapchain)
	if err != nil {
		return fatalInit("get swapchain images", res, err)
	}
	m.images = images

	for _, image := range images {
		view, err := createImageView(m.device.Device(), image, m.format.Format)
		if err != nil {
			return err
		}
		m.views = append(m.views, view)
	}

	renderPass, err := m.renderPasses.RenderPassFor(m.format.Format)
	if err != nil {
		return err
	}

	for _, view := range m.views {
		framebuffer, res, err := m.device.Device().CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  renderPass,
			Layers:      1,
			Attachments: []core1_0.ImageView{view},
			Width:       m.extent.Width,
			Height:      m.extent.Height,
		})
		if err != nil {
			return fatalInit("create framebuffer", res, err)
		}
		m.framebuffers = append(m.framebuffers, framebuffer)
	}

	Logger().Info("swapchain created",
		"format", m.format.Format,
		"presentMode", m.presentMode,
		"width", m.extent.Width,
		"height", m.extent.Height,
		"images", len(m.images))
	return nil
}

// Recreate rebuilds the swapchain for a new extent. The caller must have
// waited on the current frame's fence; Recreate waits for the whole device
// before tearing anything down.
func (m *SwapchainManager) Recreate(extent core1_0.Extent2D) error {
	err := m.device.WaitIdle()
	if err != nil {
		return err
	}

	m.Destroy()
	return m.Create(extent)
}

// Destroy releases framebuffers, views and the swapchain. The swapchain
// images belong to the presentation engine and go away with the swapchain.
func (m *SwapchainManager) Destroy() {
	driver := m.device.Device()

	for _, framebuffer := range m.framebuffers {
		driver.DestroyFramebuffer(framebuffer, nil)
	}
	m.framebuffers = nil

	for _, view := range m.views {
		driver.DestroyImageView(view, nil)
	}
	m.views = nil
	m.images = nil

	if m.swapchain.Initialized() {
		m.swapchainDriver.DestroySwapchain(m.swapchain, nil)
		m.swapchain = khr_swapchain.Swapchain{}
	}
}
