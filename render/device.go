package render

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

type QueueFamilyIndices struct {
	GraphicsFamily *int
	PresentFamily  *int
}

func (i QueueFamilyIndices) IsComplete() bool {
	return i.GraphicsFamily != nil && i.PresentFamily != nil
}

// Unique returns the distinct families, graphics first.
func (i QueueFamilyIndices) Unique() []int {
	families := []int{*i.GraphicsFamily}
	if *i.PresentFamily != *i.GraphicsFamily {
		families = append(families, *i.PresentFamily)
	}
	return families
}

// DeviceInfo describes the physical device the renderer picked.
type DeviceInfo struct {
	Name      string
	Type      core1_0.PhysicalDeviceType
	CacheUUID uuid.UUID
	Score     int
}

// deviceCandidate is everything device selection needs to know about one
// physical device.
type deviceCandidate struct {
	device core1_0.PhysicalDevice

	name                string
	deviceType          core1_0.PhysicalDeviceType
	maxImageDimension2D int
	cacheUUID           uuid.UUID

	indices          QueueFamilyIndices
	hasExtensions    bool
	formatCount      int
	presentModeCount int
	anisotropy       bool
}

func (c deviceCandidate) eligible() bool {
	return c.indices.IsComplete() &&
		c.hasExtensions &&
		c.formatCount > 0 &&
		c.presentModeCount > 0 &&
		c.anisotropy
}

func deviceTypeBonus(deviceType core1_0.PhysicalDeviceType) int {
	switch deviceType {
	case core1_0.PhysicalDeviceTypeDiscreteGPU:
		return 8000
	case core1_0.PhysicalDeviceTypeIntegratedGPU:
		return 1000
	case core1_0.PhysicalDeviceTypeVirtualGPU:
		return 100
	case core1_0.PhysicalDeviceTypeCPU:
		return 1
	}
	return 0
}

func (c deviceCandidate) score() int {
	return deviceTypeBonus(c.deviceType) + c.maxImageDimension2D
}

// pickDevice returns the eligible candidate with the highest score. Ties keep
// enumeration order.
func pickDevice(candidates []deviceCandidate) (deviceCandidate, bool) {
	var best deviceCandidate
	bestScore := -1
	for _, candidate := range candidates {
		if !candidate.eligible() {
			continue
		}
		if score := candidate.score(); score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	return best, bestScore >= 0
}

// DeviceContext owns the instance, the debug messenger, the chosen physical
// device, the logical device and its queues. It is created once and destroyed
// last.
type DeviceContext struct {
	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger
	surfaceDriver  khr_surface.ExtensionDriver

	physicalDevice core1_0.PhysicalDevice
	indices        QueueFamilyIndices
	graphicsQueue  core1_0.Queue
	presentQueue   core1_0.Queue

	validation bool
	info       DeviceInfo
}

func NewDeviceContext(globalDriver core1_0.GlobalDriver) *DeviceContext {
	return &DeviceContext{globalDriver: globalDriver}
}

func (c *DeviceContext) Instance() core1_0.CoreInstanceDriver { return c.instanceDriver }
func (c *DeviceContext) Device() core1_0.CoreDeviceDriver     { return c.deviceDriver }
func (c *DeviceContext) SurfaceDriver() khr_surface.ExtensionDriver {
	return c.surfaceDriver
}
func (c *DeviceContext) PhysicalDevice() core1_0.PhysicalDevice { return c.physicalDevice }
func (c *DeviceContext) QueueFamilies() QueueFamilyIndices      { return c.indices }
func (c *DeviceContext) GraphicsQueue() core1_0.Queue           { return c.graphicsQueue }
func (c *DeviceContext) PresentQueue() core1_0.Queue            { return c.presentQueue }
func (c *DeviceContext) Info() DeviceInfo                       { return c.info }

// CreateInstance builds the Vulkan instance and, when validation is enabled,
// the debug messenger that forwards validation output to Logger.
func (c *DeviceContext) CreateInstance(appName string, requiredExtensions []string, enableValidation bool) error {
	c.validation = enableValidation

	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    appName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "framehost",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, res, err := c.globalDriver.AvailableExtensions()
	if err != nil {
		return fatalInit("enumerate instance extensions", res, err)
	}

	for _, ext := range requiredExtensions {
		if _, hasExt := extensions[ext]; !hasExt {
			return fatalInit("create instance", 0, errors.Newf("missing required extension %s", ext))
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if enableValidation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	if _, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]; enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if enableValidation {
		layers, res, err := c.globalDriver.AvailableLayers()
		if err != nil {
			return fatalInit("enumerate instance layers", res, err)
		}

		for _, layer := range validationLayers {
			if _, hasValidation := layers[layer]; !hasValidation {
				return fatalInit("create instance", 0, errors.Newf("validation layer %s not available- install the Vulkan SDK", layer))
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		instanceOptions.Next = c.debugMessengerOptions()
	}

	instance, res, err := c.globalDriver.CreateInstance(nil, instanceOptions)
	if err != nil {
		return fatalInit("create instance", res, err)
	}

	c.instanceDriver, err = c.globalDriver.BuildInstanceDriver(instance)
	if err != nil {
		return fatalInit("build instance driver", 0, err)
	}
	c.surfaceDriver = khr_surface.CreateExtensionDriverFromCoreDriver(c.instanceDriver)

	if !enableValidation {
		return nil
	}

	c.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(c.instanceDriver)
	c.debugMessenger, res, err = c.debugDriver.CreateDebugUtilsMessenger(nil, c.debugMessengerOptions())
	if err != nil {
		return fatalInit("create debug messenger", res, err)
	}

	return nil
}

func (c *DeviceContext) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning | ext_debug_utils.SeverityInfo | ext_debug_utils.SeverityVerbose,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    c.logDebug,
	}
}

func (c *DeviceContext) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	Logger().Log(context.Background(), debugSeverityLevel(severity), data.Message, "type", msgType)
	return false
}

// SelectPhysicalDevice scores every physical device that can present to
// surface and keeps the best one.
func (c *DeviceContext) SelectPhysicalDevice(surface khr_surface.Surface) error {
	physicalDevices, res, err := c.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return fatalInit("enumerate physical devices", res, err)
	}

	var candidates []deviceCandidate
	for _, device := range physicalDevices {
		candidate, err := c.describeDevice(device, surface)
		if err != nil {
			return err
		}

		Logger().Debug("physical device",
			"name", candidate.name,
			"type", candidate.deviceType,
			"eligible", candidate.eligible(),
			"score", candidate.score())
		candidates = append(candidates, candidate)
	}

	best, found := pickDevice(candidates)
	if !found {
		return fatalInit("select physical device", 0, errors.New("failed to find a suitable GPU"))
	}

	c.physicalDevice = best.device
	c.indices = best.indices
	c.info = DeviceInfo{
		Name:      best.name,
		Type:      best.deviceType,
		CacheUUID: best.cacheUUID,
		Score:     best.score(),
	}

	Logger().Info("selected physical device",
		"name", c.info.Name,
		"type", c.info.Type,
		"cacheUUID", c.info.CacheUUID.String(),
		"score", c.info.Score)
	return nil
}

func (c *DeviceContext) describeDevice(device core1_0.PhysicalDevice, surface khr_surface.Surface) (deviceCandidate, error) {
	candidate := deviceCandidate{device: device}

	properties, err := c.instanceDriver.GetPhysicalDeviceProperties(device)
	if err != nil {
		return candidate, fatalInit("get physical device properties", 0, err)
	}
	candidate.name = properties.DriverName
	candidate.deviceType = properties.DriverType
	candidate.maxImageDimension2D = int(properties.Limits.MaxImageDimension2D)
	candidate.cacheUUID = properties.PipelineCacheUUID

	candidate.indices, err = c.findQueueFamilies(device, surface)
	if err != nil {
		return candidate, err
	}

	candidate.hasExtensions = c.checkDeviceExtensionSupport(device)
	if candidate.hasExtensions {
		support, err := querySwapchainSupport(c.surfaceDriver, surface, device)
		if err != nil {
			return candidate, err
		}
		candidate.formatCount = len(support.Formats)
		candidate.presentModeCount = len(support.PresentModes)
	}

	features := c.instanceDriver.GetPhysicalDeviceFeatures(device)
	candidate.anisotropy = features.SamplerAnisotropy

	return candidate, nil
}

func (c *DeviceContext) checkDeviceExtensionSupport(device core1_0.PhysicalDevice) bool {
	extensions, _, err := c.instanceDriver.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return false
	}

	for _, extension := range deviceExtensions {
		if _, hasExtension := extensions[extension]; !hasExtension {
			return false
		}
	}

	return true
}

func (c *DeviceContext) findQueueFamilies(device core1_0.PhysicalDevice, surface khr_surface.Surface) (QueueFamilyIndices, error) {
	indices := QueueFamilyIndices{}
	queueFamilies := c.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(device)

	for queueFamilyIdx, queueFamily := range queueFamilies {
		if indices.GraphicsFamily == nil && (queueFamily.QueueFlags&core1_0.QueueGraphics) != 0 {
			family := queueFamilyIdx
			indices.GraphicsFamily = &family
		}

		supported, res, err := c.surfaceDriver.GetPhysicalDeviceSurfaceSupport(surface, device, queueFamilyIdx)
		if err != nil {
			return indices, fatalInit("get physical device surface support", res, err)
		}

		if indices.PresentFamily == nil && supported {
			family := queueFamilyIdx
			indices.PresentFamily = &family
		}

		if indices.IsComplete() {
			break
		}
	}

	return indices, nil
}

// CreateLogicalDeviceAndQueues creates the device with one queue per distinct
// family and fetches the graphics and present queues.
func (c *DeviceContext) CreateLogicalDeviceAndQueues() error {
	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range c.indices.Unique() {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	var extensionNames []string
	extensionNames = append(extensionNames, deviceExtensions...)

	// Required on MoltenVK and other portability implementations
	extensions, res, err := c.instanceDriver.EnumerateDeviceExtensionProperties(c.physicalDevice)
	if err != nil {
		return fatalInit("enumerate device extensions", res, err)
	}
	if _, supported := extensions[khr_portability_subset.ExtensionName]; supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	device, res, err := c.instanceDriver.CreateDevice(c.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: true,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return fatalInit("create device", res, err)
	}

	c.deviceDriver, err = c.instanceDriver.BuildDeviceDriver(device)
	if err != nil {
		return fatalInit("build device driver", 0, err)
	}

	c.graphicsQueue = c.deviceDriver.GetQueue(*c.indices.GraphicsFamily, 0)
	c.presentQueue = c.deviceDriver.GetQueue(*c.indices.PresentFamily, 0)
	return nil
}

// WaitIdle blocks until the device has finished all submitted work.
func (c *DeviceContext) WaitIdle() error {
	if c.deviceDriver == nil {
		return nil
	}
	res, err := c.deviceDriver.DeviceWaitIdle()
	if err != nil {
		return frameFailure("device wait idle", res, err)
	}
	return nil
}

// DestroySurface releases the window surface. It must run after the swapchain
// is gone and before Destroy.
func (c *DeviceContext) DestroySurface(surface khr_surface.Surface) {
	if surface.Initialized() && c.surfaceDriver != nil {
		c.surfaceDriver.DestroySurface(surface, nil)
	}
}

// Destroy tears down the device, the debug messenger and the instance, in
// that order. Every other renderer object must already be destroyed.
func (c *DeviceContext) Destroy() {
	if c.deviceDriver != nil {
		c.deviceDriver.DestroyDevice(nil)
		c.deviceDriver = nil
	}

	if c.debugMessenger.Initialized() {
		c.debugDriver.DestroyDebugUtilsMessenger(c.debugMessenger, nil)
		c.debugMessenger = ext_debug_utils.DebugUtilsMessenger{}
	}

	if c.instanceDriver != nil {
		c.instanceDriver.DestroyInstance(nil)
		c.instanceDriver = nil
	}
}
