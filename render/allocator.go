package render

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// BytesPerPixel is the only pixel layout producers hand over: tightly packed
// 8-bit RGBA.
const BytesPerPixel = 4

// Buffer is a buffer handle with its bound memory.
type Buffer struct {
	Handle core1_0.Buffer
	Memory core1_0.DeviceMemory
	Size   int
	Usage  core1_0.BufferUsageFlags
}

// Image is a 2D, single mip, single layer image with its bound memory.
type Image struct {
	Handle core1_0.Image
	Memory core1_0.DeviceMemory
	Width  int
	Height int
	Format core1_0.Format
	Layout core1_0.ImageLayout
}

// ByteSize is the size of the image's pixel data as handed over by producers.
func (i *Image) ByteSize() int {
	return i.Width * i.Height * BytesPerPixel
}

// Allocator creates and frees buffers and images and runs the staged upload
// protocol through short-lived command buffers on the graphics queue.
type Allocator struct {
	device      *DeviceContext
	commandPool core1_0.CommandPool
	// property flags of each memory type, indexed by memory type index
	memoryTypes []core1_0.MemoryPropertyFlags

	live int
}

func NewAllocator(device *DeviceContext) (*Allocator, error) {
	pool, res, err := device.Device().CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: *device.QueueFamilies().GraphicsFamily,
	})
	if err != nil {
		return nil, fatalInit("create upload command pool", res, err)
	}

	var memoryTypes []core1_0.MemoryPropertyFlags
	memProperties := device.Instance().GetPhysicalDeviceMemoryProperties(device.PhysicalDevice())
	for _, memoryType := range memProperties.MemoryTypes {
		memoryTypes = append(memoryTypes, memoryType.PropertyFlags)
	}

	return &Allocator{
		device:      device,
		commandPool: pool,
		memoryTypes: memoryTypes,
	}, nil
}

// Live reports how many buffers and images are allocated and not yet freed.
func (a *Allocator) Live() int { return a.live }

// selectMemoryType returns the first memory type allowed by typeFilter whose
// flags include all of properties.
func selectMemoryType(memoryTypes []core1_0.MemoryPropertyFlags, typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, bool) {
	for i, flags := range memoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (flags&properties) == properties {
			return i, true
		}
	}

	return 0, false
}

func (a *Allocator) findMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	index, found := selectMemoryType(a.memoryTypes, typeFilter, properties)
	if !found {
		return 0, exhausted("find memory type", 0, errors.Newf("no memory type matches filter %x with properties %s", typeFilter, properties))
	}
	return index, nil
}

func (a *Allocator) CreateBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (*Buffer, error) {
	driver := a.device.Device()

	buffer, res, err := driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, exhausted("create buffer", res, err)
	}

	memRequirements := driver.GetBufferMemoryRequirements(buffer)
	memoryTypeIndex, err := a.findMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		driver.DestroyBuffer(buffer, nil)
		return nil, err
	}

	memory, res, err := driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		driver.DestroyBuffer(buffer, nil)
		return nil, exhausted("allocate buffer memory", res, err)
	}

	res, err = driver.BindBufferMemory(buffer, memory, 0)
	if err != nil {
		driver.DestroyBuffer(buffer, nil)
		driver.FreeMemory(memory, nil)
		return nil, exhausted("bind buffer memory", res, err)
	}

	a.live++
	return &Buffer{Handle: buffer, Memory: memory, Size: size, Usage: usage}, nil
}

func (a *Allocator) FreeBuffer(buffer *Buffer) {
	if buffer == nil || !buffer.Handle.Initialized() {
		return
	}
	driver := a.device.Device()
	driver.DestroyBuffer(buffer.Handle, nil)
	driver.FreeMemory(buffer.Memory, nil)
	*buffer = Buffer{}
	a.live--
}

func (a *Allocator) CreateImage(width, height int, format core1_0.Format, tiling core1_0.ImageTiling, usage core1_0.ImageUsageFlags, properties core1_0.MemoryPropertyFlags) (*Image, error) {
	driver := a.device.Device()

	image, res, err := driver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return nil, exhausted("create image", res, err)
	}

	memReqs := driver.GetImageMemoryRequirements(image)
	memoryIndex, err := a.findMemoryType(memReqs.MemoryTypeBits, properties)
	if err != nil {
		driver.DestroyImage(image, nil)
		return nil, err
	}

	imageMemory, res, err := driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryIndex,
	})
	if err != nil {
		driver.DestroyImage(image, nil)
		return nil, exhausted("allocate image memory", res, err)
	}

	res, err = driver.BindImageMemory(image, imageMemory, 0)
	if err != nil {
		driver.DestroyImage(image, nil)
		driver.FreeMemory(imageMemory, nil)
		return nil, exhausted("bind image memory", res, err)
	}

	a.live++
	return &Image{
		Handle: image,
		Memory: imageMemory,
		Width:  width,
		Height: height,
		Format: format,
		Layout: core1_0.ImageLayoutUndefined,
	}, nil
}

func (a *Allocator) FreeImage(image *Image) {
	if image == nil || !image.Handle.Initialized() {
		return
	}
	driver := a.device.Device()
	driver.DestroyImage(image.Handle, nil)
	driver.FreeMemory(image.Memory, nil)
	*image = Image{}
	a.live--
}

func createImageView(driver core1_0.DeviceDriver, image core1_0.Image, format core1_0.Format) (core1_0.ImageView, error) {
	imageView, res, err := driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return core1_0.ImageView{}, fatalInit("create image view", res, err)
	}
	return imageView, nil
}

// writeData copies data into host-visible memory. Byte slices are copied
// verbatim, anything else is encoded with encoding/binary in the device's
// byte order.
func writeData(driver core1_0.DeviceDriver, memory core1_0.DeviceMemory, offset int, data any) error {
	raw, isBytes := data.([]byte)
	if !isBytes {
		buf := &bytes.Buffer{}
		err := binary.Write(buf, common.ByteOrder, data)
		if err != nil {
			return misuse("write host memory", "cannot encode %T: %v", data, err)
		}
		raw = buf.Bytes()
	}

	memoryPtr, res, err := driver.MapMemory(memory, offset, len(raw), 0)
	if err != nil {
		return exhausted("map memory", res, err)
	}
	defer driver.UnmapMemory(memory)

	copy(unsafe.Slice((*byte)(memoryPtr), len(raw)), raw)
	return nil
}

func readData(driver core1_0.DeviceDriver, memory core1_0.DeviceMemory, offset int, size int) ([]byte, error) {
	memoryPtr, res, err := driver.MapMemory(memory, offset, size, 0)
	if err != nil {
		return nil, exhausted("map memory", res, err)
	}
	defer driver.UnmapMemory(memory)

	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(memoryPtr), size))
	return out, nil
}

// WriteBuffer copies data into a host-visible buffer.
func (a *Allocator) WriteBuffer(buffer *Buffer, data any) error {
	if size := binary.Size(data); size > buffer.Size {
		return misuse("write buffer", "%d bytes do not fit a %d byte buffer", size, buffer.Size)
	}
	return writeData(a.device.Device(), buffer.Memory, 0, data)
}

// ReadBuffer copies the contents of a host-visible buffer out.
func (a *Allocator) ReadBuffer(buffer *Buffer) ([]byte, error) {
	return readData(a.device.Device(), buffer.Memory, 0, buffer.Size)
}

func (a *Allocator) beginSingleUse() (core1_0.CommandBuffer, error) {
	driver := a.device.Device()
	buffers, res, err := driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        a.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return core1_0.CommandBuffer{}, exhausted("allocate single-use command buffer", res, err)
	}

	buffer := buffers[0]
	res, err = driver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		driver.FreeCommandBuffers(buffer)
		return core1_0.CommandBuffer{}, frameFailure("begin single-use command buffer", res, err)
	}
	return buffer, nil
}

func (a *Allocator) endSingleUse(buffer core1_0.CommandBuffer) error {
	driver := a.device.Device()
	defer driver.FreeCommandBuffers(buffer)

	res, err := driver.EndCommandBuffer(buffer)
	if err != nil {
		return frameFailure("end single-use command buffer", res, err)
	}

	res, err = driver.QueueSubmit(a.device.GraphicsQueue(), nil,
		core1_0.SubmitInfo{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	)
	if err != nil {
		return frameFailure("submit single-use command buffer", res, err)
	}

	res, err = driver.QueueWaitIdle(a.device.GraphicsQueue())
	if err != nil {
		return frameFailure("wait for single-use command buffer", res, err)
	}

	return nil
}

// singleUse records commands into a one-shot command buffer, submits it
// and waits for the graphics queue to go idle.
func (a *Allocator) singleUse(record func(commandBuffer core1_0.CommandBuffer) error) error {
	commandBuffer, err := a.beginSingleUse()
	if err != nil {
		return err
	}

	err = record(commandBuffer)
	if err != nil {
		a.device.Device().FreeCommandBuffers(commandBuffer)
		return err
	}

	return a.endSingleUse(commandBuffer)
}

type layoutTransition struct {
	srcAccess core1_0.AccessFlags
	dstAccess core1_0.AccessFlags
	srcStage  core1_0.PipelineStageFlags
	dstStage  core1_0.PipelineStageFlags
}

func transitionFor(oldLayout, newLayout core1_0.ImageLayout) (layoutTransition, error) {
	switch {
	case oldLayout == core1_0.ImageLayoutUndefined && newLayout == core1_0.ImageLayoutTransferDstOptimal:
		return layoutTransition{
			srcAccess: 0,
			dstAccess: core1_0.AccessTransferWrite,
			srcStage:  core1_0.PipelineStageTopOfPipe,
			dstStage:  core1_0.PipelineStageTransfer,
		}, nil
	case oldLayout == core1_0.ImageLayoutTransferDstOptimal && newLayout == core1_0.ImageLayoutShaderReadOnlyOptimal:
		return layoutTransition{
			srcAccess: core1_0.AccessTransferWrite,
			dstAccess: core1_0.AccessShaderRead,
			srcStage:  core1_0.PipelineStageTransfer,
			dstStage:  core1_0.PipelineStageFragmentShader,
		}, nil
	case oldLayout == core1_0.ImageLayoutShaderReadOnlyOptimal && newLayout == core1_0.ImageLayoutTransferDstOptimal:
		return layoutTransition{
			srcAccess: core1_0.AccessShaderRead,
			dstAccess: core1_0.AccessTransferWrite,
			srcStage:  core1_0.PipelineStageFragmentShader,
			dstStage:  core1_0.PipelineStageTransfer,
		}, nil
	}

	return layoutTransition{}, misuse("transition image layout", "unsupported layout transition: %s -> %s", oldLayout, newLayout)
}

func (a *Allocator) recordTransition(commandBuffer core1_0.CommandBuffer, image *Image, newLayout core1_0.ImageLayout) error {
	transition, err := transitionFor(image.Layout, newLayout)
	if err != nil {
		return err
	}

	err = a.device.Device().CmdPipelineBarrier(commandBuffer, transition.srcStage, transition.dstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           image.Layout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               image.Handle,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: transition.srcAccess,
			DstAccessMask: transition.dstAccess,
		},
	})
	if err != nil {
		return frameFailure("record layout transition", 0, err)
	}

	image.Layout = newLayout
	return nil
}

// TransitionImageLayout moves image to newLayout on a one-shot command buffer.
func (a *Allocator) TransitionImageLayout(image *Image, newLayout core1_0.ImageLayout) error {
	return a.singleUse(func(commandBuffer core1_0.CommandBuffer) error {
		return a.recordTransition(commandBuffer, image, newLayout)
	})
}

func (a *Allocator) recordCopyBufferToImage(commandBuffer core1_0.CommandBuffer, buffer *Buffer, image *Image) error {
	err := a.device.Device().CmdCopyBufferToImage(commandBuffer, buffer.Handle, image.Handle, core1_0.ImageLayoutTransferDstOptimal,
		core1_0.BufferImageCopy{
			BufferOffset:      0,
			BufferRowLength:   0,
			BufferImageHeight: 0,

			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: image.Width, Height: image.Height, Depth: 1},
		},
	)
	if err != nil {
		return frameFailure("record buffer to image copy", 0, err)
	}
	return nil
}

func (a *Allocator) CopyBufferToImage(buffer *Buffer, image *Image) error {
	return a.singleUse(func(commandBuffer core1_0.CommandBuffer) error {
		return a.recordCopyBufferToImage(commandBuffer, buffer, image)
	})
}

func (a *Allocator) CopyBuffer(src *Buffer, dst *Buffer, size int) error {
	if size > src.Size || size > dst.Size {
		return misuse("copy buffer", "copy of %d bytes overruns %d -> %d byte buffers", size, src.Size, dst.Size)
	}

	return a.singleUse(func(commandBuffer core1_0.CommandBuffer) error {
		err := a.device.Device().CmdCopyBuffer(commandBuffer, src.Handle, dst.Handle,
			core1_0.BufferCopy{
				SrcOffset: 0,
				DstOffset: 0,
				Size:      size,
			},
		)
		if err != nil {
			return frameFailure("record buffer copy", 0, err)
		}
		return nil
	})
}

func (a *Allocator) createStaging(data any) (*Buffer, error) {
	size := binary.Size(data)
	if size <= 0 {
		return nil, misuse("create staging buffer", "cannot stage %T", data)
	}

	staging, err := a.CreateBuffer(size, core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, err
	}

	err = a.WriteBuffer(staging, data)
	if err != nil {
		a.FreeBuffer(staging)
		return nil, err
	}
	return staging, nil
}

// UploadBuffer creates a device-local buffer holding data. usage is combined
// with transfer-destination usage.
func (a *Allocator) UploadBuffer(data any, usage core1_0.BufferUsageFlags) (*Buffer, error) {
	staging, err := a.createStaging(data)
	if err != nil {
		return nil, err
	}
	defer a.FreeBuffer(staging)

	buffer, err := a.CreateBuffer(staging.Size, core1_0.BufferUsageTransferDst|usage, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	err = a.CopyBuffer(staging, buffer, staging.Size)
	if err != nil {
		a.FreeBuffer(buffer)
		return nil, err
	}
	return buffer, nil
}

// DownloadBuffer reads back a buffer created with transfer-source usage by
// copying it into a temporary host-visible buffer.
func (a *Allocator) DownloadBuffer(src *Buffer) ([]byte, error) {
	readback, err := a.CreateBuffer(src.Size, core1_0.BufferUsageTransferDst, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, err
	}
	defer a.FreeBuffer(readback)

	err = a.CopyBuffer(src, readback, src.Size)
	if err != nil {
		return nil, err
	}
	return a.ReadBuffer(readback)
}

func checkPixels(op string, pixels []byte, width, height int) error {
	if width <= 0 || height <= 0 {
		return misuse(op, "invalid dimensions %dx%d", width, height)
	}
	if len(pixels) != width*height*BytesPerPixel {
		return misuse(op, "%d bytes of pixel data for a %dx%d image, want %d", len(pixels), width, height, width*height*BytesPerPixel)
	}
	return nil
}

// UploadImage creates a device-local sampled image holding pixels and leaves
// it in shader-read layout.
func (a *Allocator) UploadImage(pixels []byte, width, height int, format core1_0.Format) (*Image, error) {
	err := checkPixels("upload image", pixels, width, height)
	if err != nil {
		return nil, err
	}

	staging, err := a.createStaging(pixels)
	if err != nil {
		return nil, err
	}
	defer a.FreeBuffer(staging)

	image, err := a.CreateImage(width, height, format,
		core1_0.ImageTilingOptimal,
		core1_0.ImageUsageTransferDst|core1_0.ImageUsageSampled,
		core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	err = a.TransitionImageLayout(image, core1_0.ImageLayoutTransferDstOptimal)
	if err == nil {
		err = a.CopyBufferToImage(staging, image)
	}
	if err == nil {
		err = a.TransitionImageLayout(image, core1_0.ImageLayoutShaderReadOnlyOptimal)
	}
	if err != nil {
		a.FreeImage(image)
		return nil, err
	}

	return image, nil
}

// RecordImageUpdate records a copy of staging into image, which must be in
// shader-read layout, onto commandBuffer. The barrier into transfer-dst waits
// for fragment shader reads already submitted on the queue, so frames still in
// flight keep sampling the old pixels.
func (a *Allocator) RecordImageUpdate(commandBuffer core1_0.CommandBuffer, image *Image, staging *Buffer) error {
	if staging.Size < image.ByteSize() {
		return misuse("update image", "staging buffer holds %d bytes, need %d", staging.Size, image.ByteSize())
	}

	err := a.recordTransition(commandBuffer, image, core1_0.ImageLayoutTransferDstOptimal)
	if err != nil {
		return err
	}
	err = a.recordCopyBufferToImage(commandBuffer, staging, image)
	if err != nil {
		return err
	}
	return a.recordTransition(commandBuffer, image, core1_0.ImageLayoutShaderReadOnlyOptimal)
}

// Destroy releases the upload command pool. Every buffer and image must
// already be freed.
func (a *Allocator) Destroy() {
	if a.live != 0 {
		Logger().Warn("allocator destroyed with live resources", "live", a.live)
	}
	if a.commandPool.Initialized() {
		a.device.Device().DestroyCommandPool(a.commandPool, nil)
		a.commandPool = core1_0.CommandPool{}
	}
}
