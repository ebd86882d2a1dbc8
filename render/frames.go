package render

import (
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// frameRing is the index of the frame-in-flight slot in use. It cycles
// 0..count-1 and only moves on Advance.
type frameRing struct {
	count   int
	current int
}

func newFrameRing(count int) *frameRing {
	return &frameRing{count: count}
}

func (r *frameRing) Count() int   { return r.count }
func (r *frameRing) Current() int { return r.current }

func (r *frameRing) Advance() {
	r.current = (r.current + 1) % r.count
}

// FrameSlot is the state one frame in flight needs. The command buffer may
// only be re-recorded after InFlight has been seen signaled.
type FrameSlot struct {
	CommandPool    core1_0.CommandPool
	CommandBuffer  core1_0.CommandBuffer
	ImageAcquired  core1_0.Semaphore
	RenderFinished core1_0.Semaphore
	InFlight       core1_0.Fence
}

// FrameSynchronizer owns the ring of frame slots and the current slot index.
type FrameSynchronizer struct {
	device *DeviceContext
	slots  []FrameSlot
	ring   *frameRing
}

func NewFrameSynchronizer(device *DeviceContext) *FrameSynchronizer {
	return &FrameSynchronizer{device: device}
}

// CreateSlots creates n slots, each with a resettable command pool, one
// primary command buffer, two semaphores and a fence created signaled.
func (s *FrameSynchronizer) CreateSlots(n int) error {
	driver := s.device.Device()
	s.ring = newFrameRing(n)

	for i := 0; i < n; i++ {
		var slot FrameSlot
		var res common.VkResult
		var err error

		slot.CommandPool, res, err = driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
			Flags:            core1_0.CommandPoolCreateResetBuffer,
			QueueFamilyIndex: *s.device.QueueFamilies().GraphicsFamily,
		})
		if err != nil {
			return fatalInit("create frame command pool", res, err)
		}
		// Append right away so Destroy sees partially built slots.
		s.slots = append(s.slots, slot)
		current := &s.slots[len(s.slots)-1]

		buffers, res, err := driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
			CommandPool:        current.CommandPool,
			Level:              core1_0.CommandBufferLevelPrimary,
			CommandBufferCount: 1,
		})
		if err != nil {
			return fatalInit("allocate frame command buffer", res, err)
		}
		current.CommandBuffer = buffers[0]

		current.ImageAcquired, res, err = driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return fatalInit("create image acquired semaphore", res, err)
		}

		current.RenderFinished, res, err = driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return fatalInit("create render finished semaphore", res, err)
		}

		current.InFlight, res, err = driver.CreateFence(nil, core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			return fatalInit("create frame fence", res, err)
		}
	}

	return nil
}

func (s *FrameSynchronizer) Count() int                { return len(s.slots) }
func (s *FrameSynchronizer) Current() int              { return s.ring.Current() }
func (s *FrameSynchronizer) Advance()                  { s.ring.Advance() }
func (s *FrameSynchronizer) Slot(index int) *FrameSlot { return &s.slots[index] }

// Wait blocks until the GPU has finished the slot's previous submission.
func (s *FrameSynchronizer) Wait(index int) error {
	res, err := s.device.Device().WaitForFences(true, common.NoTimeout, s.slots[index].InFlight)
	if err != nil {
		return frameFailure("wait for frame fence", res, err)
	}
	return nil
}

// WaitAll blocks until no slot has work pending on the GPU.
func (s *FrameSynchronizer) WaitAll() error {
	if len(s.slots) == 0 {
		return nil
	}

	fences := make([]core1_0.Fence, 0, len(s.slots))
	for _, slot := range s.slots {
		fences = append(fences, slot.InFlight)
	}

	res, err := s.device.Device().WaitForFences(true, common.NoTimeout, fences...)
	if err != nil {
		return frameFailure("wait for all frame fences", res, err)
	}
	return nil
}

func (s *FrameSynchronizer) Reset(index int) error {
	res, err := s.device.Device().ResetFences(s.slots[index].InFlight)
	if err != nil {
		return frameFailure("reset frame fence", res, err)
	}
	return nil
}

// Destroy releases semaphores and fences slot by slot, then the command
// pools, which frees their command buffers.
func (s *FrameSynchronizer) Destroy() {
	driver := s.device.Device()

	for _, slot := range s.slots {
		if slot.ImageAcquired.Initialized() {
			driver.DestroySemaphore(slot.ImageAcquired, nil)
		}
		if slot.RenderFinished.Initialized() {
			driver.DestroySemaphore(slot.RenderFinished, nil)
		}
		if slot.InFlight.Initialized() {
			driver.DestroyFence(slot.InFlight, nil)
		}
	}

	for _, slot := range s.slots {
		if slot.CommandPool.Initialized() {
			driver.DestroyCommandPool(slot.CommandPool, nil)
		}
	}

	s.slots = nil
}
