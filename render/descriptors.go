package render

import (
	"unsafe"

	"github.com/vkngwrapper/core/v3/core1_0"
)

// overlayMaxSets bounds how many textures the overlay can bind at once.
const overlayMaxSets = 16

// Descriptors owns the descriptor set layout the quad pipeline is built
// against, one descriptor set and one uniform buffer per frame slot, and a
// separate pool and layout reserved for the overlay.
//
// Each slot has its own set so that updating bindings for a new frame never
// touches a set an older frame may still be reading on the GPU.
type Descriptors struct {
	device    *DeviceContext
	allocator *Allocator

	setLayout core1_0.DescriptorSetLayout
	pool      core1_0.DescriptorPool
	sets      []core1_0.DescriptorSet
	uniforms  []*Buffer

	overlayLayout core1_0.DescriptorSetLayout
	overlayPool   core1_0.DescriptorPool
}

func NewDescriptors(device *DeviceContext, allocator *Allocator) *Descriptors {
	return &Descriptors{device: device, allocator: allocator}
}

func (d *Descriptors) SetLayout() core1_0.DescriptorSetLayout     { return d.setLayout }
func (d *Descriptors) Set(slot int) core1_0.DescriptorSet         { return d.sets[slot] }
func (d *Descriptors) OverlayLayout() core1_0.DescriptorSetLayout { return d.overlayLayout }
func (d *Descriptors) OverlayPool() core1_0.DescriptorPool        { return d.overlayPool }

// CreateLayouts builds the quad layout (uniform buffer for the vertex stage,
// combined image sampler for the fragment stage) and the overlay layout.
func (d *Descriptors) CreateLayouts() error {
	var err error
	d.setLayout, _, err = d.device.Device().CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,

				StageFlags: core1_0.StageVertex,
			},
			{
				Binding:         1,
				DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,

				StageFlags: core1_0.StageFragment,
			},
		},
	})
	if err != nil {
		return fatalInit("create descriptor set layout", 0, err)
	}

	d.overlayLayout, _, err = d.device.Device().CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,

				StageFlags: core1_0.StageFragment,
			},
		},
	})
	if err != nil {
		return fatalInit("create overlay descriptor set layout", 0, err)
	}

	return nil
}

// CreateSets allocates the per-slot uniform buffers and descriptor sets and
// the overlay pool.
func (d *Descriptors) CreateSets(slots int) error {
	driver := d.device.Device()

	bufferSize := int(unsafe.Sizeof(UniformBufferObject{}))
	for i := 0; i < slots; i++ {
		buffer, err := d.allocator.CreateBuffer(bufferSize, core1_0.BufferUsageUniformBuffer, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
		if err != nil {
			return err
		}
		d.uniforms = append(d.uniforms, buffer)
	}

	var err error
	d.pool, _, err = driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: slots,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: slots,
			},
			{
				Type:            core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: slots,
			},
		},
	})
	if err != nil {
		return fatalInit("create descriptor pool", 0, err)
	}

	var allocLayouts []core1_0.DescriptorSetLayout
	for i := 0; i < slots; i++ {
		allocLayouts = append(allocLayouts, d.setLayout)
	}

	d.sets, _, err = driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: d.pool,
		SetLayouts:     allocLayouts,
	})
	if err != nil {
		return exhausted("allocate descriptor sets", 0, err)
	}

	d.overlayPool, _, err = driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: overlayMaxSets,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: overlayMaxSets,
			},
		},
	})
	if err != nil {
		return fatalInit("create overlay descriptor pool", 0, err)
	}

	return nil
}

// BindTexture points binding 1 of every slot's set at texture. No frame may
// be in flight.
func (d *Descriptors) BindTexture(texture *Texture) error {
	for slot := range d.sets {
		err := d.writeSet(slot, texture)
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Descriptors) writeSet(slot int, texture *Texture) error {
	err := d.device.Device().UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:          d.sets[slot],
			DstBinding:      0,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeUniformBuffer,

			BufferInfo: []core1_0.DescriptorBufferInfo{
				{
					Buffer: d.uniforms[slot].Handle,
					Offset: 0,
					Range:  d.uniforms[slot].Size,
				},
			},
		},
		{
			DstSet:          d.sets[slot],
			DstBinding:      1,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,

			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					ImageView:   texture.View,
					Sampler:     texture.Sampler,
					ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
				},
			},
		},
	}, nil)
	if err != nil {
		return frameFailure("update descriptor sets", 0, err)
	}
	return nil
}

// WriteUniforms updates the slot's uniform buffer. The slot's fence must have
// been waited on.
func (d *Descriptors) WriteUniforms(slot int, ubo UniformBufferObject) error {
	return d.allocator.WriteBuffer(d.uniforms[slot], &ubo)
}

// destroySets frees the overlay pool, the frame pool (and with it the sets)
// and the uniform buffers.
func (d *Descriptors) destroySets() {
	driver := d.device.Device()

	if d.overlayPool.Initialized() {
		driver.DestroyDescriptorPool(d.overlayPool, nil)
		d.overlayPool = core1_0.DescriptorPool{}
	}

	if d.pool.Initialized() {
		driver.DestroyDescriptorPool(d.pool, nil)
		d.pool = core1_0.DescriptorPool{}
	}
	d.sets = nil

	for _, buffer := range d.uniforms {
		d.allocator.FreeBuffer(buffer)
	}
	d.uniforms = nil
}

// destroyLayouts must run after the pipeline built against them is gone.
func (d *Descriptors) destroyLayouts() {
	driver := d.device.Device()

	if d.overlayLayout.Initialized() {
		driver.DestroyDescriptorSetLayout(d.overlayLayout, nil)
		d.overlayLayout = core1_0.DescriptorSetLayout{}
	}

	if d.setLayout.Initialized() {
		driver.DestroyDescriptorSetLayout(d.setLayout, nil)
		d.setLayout = core1_0.DescriptorSetLayout{}
	}
}
