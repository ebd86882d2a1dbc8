package render

import (
	"github.com/vkngwrapper/core/v3/core1_0"
)

// TextureFormat is the format every texture is created in. Producers hand
// over sRGB-encoded RGBA8.
const TextureFormat = core1_0.FormatR8G8B8A8SRGB

// placeholderPixel is shown until the first LoadTexture.
var placeholderPixel = []byte{0, 0, 0, 255}

// Texture is the image the frame quad samples from, with its view, sampler
// and one staging buffer per frame slot for updates of the same size.
type Texture struct {
	Image   *Image
	View    core1_0.ImageView
	Sampler core1_0.Sampler

	staging []*Buffer
	// pending marks slots whose staging buffer holds pixels not yet recorded
	// into a frame.
	pending []bool
}

func (t *Texture) Width() int  { return t.Image.Width }
func (t *Texture) Height() int { return t.Image.Height }

// samplerOptions picks filtering for a texture. Anisotropy only helps linear
// filtering, so nearest sampling leaves it off.
func samplerOptions(nearest bool, maxAnisotropy float32) core1_0.SamplerCreateInfo {
	filter := core1_0.FilterLinear
	if nearest {
		filter = core1_0.FilterNearest
	}

	return core1_0.SamplerCreateInfo{
		MagFilter:    filter,
		MinFilter:    filter,
		AddressModeU: core1_0.SamplerAddressModeClampToEdge,
		AddressModeV: core1_0.SamplerAddressModeClampToEdge,
		AddressModeW: core1_0.SamplerAddressModeClampToEdge,

		AnisotropyEnable: !nearest && maxAnisotropy > 1,
		MaxAnisotropy:    maxAnisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeNearest,
		MinLod:     0,
		MaxLod:     0,
	}
}

// createTexture uploads pixels and builds the view, sampler and a staging
// buffer for each of slots. On failure everything created so far is released.
func createTexture(device *DeviceContext, allocator *Allocator, pixels []byte, width, height int, nearest bool, slots int) (*Texture, error) {
	image, err := allocator.UploadImage(pixels, width, height, TextureFormat)
	if err != nil {
		return nil, err
	}
	texture := &Texture{Image: image, pending: make([]bool, slots)}

	texture.View, err = createImageView(device.Device(), image.Handle, TextureFormat)
	if err != nil {
		destroyTexture(device, allocator, texture)
		return nil, err
	}

	properties, err := device.Instance().GetPhysicalDeviceProperties(device.PhysicalDevice())
	if err != nil {
		destroyTexture(device, allocator, texture)
		return nil, fatalInit("get physical device properties", 0, err)
	}

	sampler, res, err := device.Device().CreateSampler(nil, samplerOptions(nearest, properties.Limits.MaxSamplerAnisotropy))
	if err != nil {
		destroyTexture(device, allocator, texture)
		return nil, exhausted("create sampler", res, err)
	}
	texture.Sampler = sampler

	for i := 0; i < slots; i++ {
		staging, err := allocator.CreateBuffer(image.ByteSize(), core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
		if err != nil {
			destroyTexture(device, allocator, texture)
			return nil, err
		}
		texture.staging = append(texture.staging, staging)
	}

	return texture, nil
}

// stage copies pixels into the slot's staging buffer. The copy into the image
// is recorded with the slot's next frame, so only that slot's fence has to be
// signaled.
func (t *Texture) stage(allocator *Allocator, slot int, pixels []byte) error {
	err := checkPixels("update texture", pixels, t.Width(), t.Height())
	if err != nil {
		return err
	}

	err = allocator.WriteBuffer(t.staging[slot], pixels)
	if err != nil {
		return err
	}
	t.markStaged(slot)
	return nil
}

func (t *Texture) markStaged(slot int) {
	t.pending[slot] = true
}

// takeUpload reports whether slot has staged pixels to record and clears the
// mark.
func (t *Texture) takeUpload(slot int) bool {
	if slot < 0 || slot >= len(t.pending) || !t.pending[slot] {
		return false
	}
	t.pending[slot] = false
	return true
}

func destroyTexture(device *DeviceContext, allocator *Allocator, texture *Texture) {
	if texture == nil {
		return
	}
	driver := device.Device()

	for _, staging := range texture.staging {
		allocator.FreeBuffer(staging)
	}
	texture.staging = nil
	if texture.Sampler.Initialized() {
		driver.DestroySampler(texture.Sampler, nil)
		texture.Sampler = core1_0.Sampler{}
	}
	if texture.View.Initialized() {
		driver.DestroyImageView(texture.View, nil)
		texture.View = core1_0.ImageView{}
	}
	allocator.FreeImage(texture.Image)
}
