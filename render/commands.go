package render

import (
	"github.com/vkngwrapper/core/v3/core1_0"
)

// CommandRecorder fills a frame slot's command buffer with the commands that
// draw the frame quad into one swapchain image.
type CommandRecorder struct {
	device      *DeviceContext
	allocator   *Allocator
	frames      *FrameSynchronizer
	swapchain   *SwapchainManager
	pipeline    *Pipeline
	descriptors *Descriptors

	vertexBuffer *Buffer
	indexBuffer  *Buffer
	indexCount   int
	texture      *Texture

	clearColor [4]float32
	overlay    Overlay
}

func (r *CommandRecorder) SetOverlay(overlay Overlay) {
	r.overlay = overlay
}

// Record records the slot's command buffer for imageIndex. The slot's fence
// must have been waited on.
func (r *CommandRecorder) Record(slot int, imageIndex int) error {
	driver := r.device.Device()
	buffer := r.frames.Slot(slot).CommandBuffer
	extent := r.swapchain.Extent()

	res, err := driver.ResetCommandBuffer(buffer, 0)
	if err != nil {
		return frameFailure("reset command buffer", res, err)
	}

	res, err = driver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return frameFailure("begin command buffer", res, err)
	}

	if r.texture != nil && r.texture.takeUpload(slot) {
		err = r.allocator.RecordImageUpdate(buffer, r.texture.Image, r.texture.staging[slot])
		if err != nil {
			return err
		}
	}

	err = driver.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  r.pipeline.RenderPass(),
			Framebuffer: r.swapchain.Framebuffer(imageIndex),
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: extent,
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat(r.clearColor),
			},
		})
	if err != nil {
		return frameFailure("begin render pass", 0, err)
	}

	driver.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, r.pipeline.GraphicsPipeline())
	driver.CmdSetViewport(buffer, core1_0.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	driver.CmdSetScissor(buffer, core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: extent,
	})
	driver.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{r.vertexBuffer.Handle}, []int{0})
	driver.CmdBindIndexBuffer(buffer, r.indexBuffer.Handle, 0, core1_0.IndexTypeUInt32)
	driver.CmdBindDescriptorSets(buffer, core1_0.PipelineBindPointGraphics, r.pipeline.Layout(), 0, []core1_0.DescriptorSet{
		r.descriptors.Set(slot),
	}, nil)
	driver.CmdDrawIndexed(buffer, r.indexCount, 1, 0, 0, 0)

	if r.overlay != nil {
		err = r.overlay.Render(buffer)
		if err != nil {
			return frameFailure("render overlay", 0, err)
		}
	}

	driver.CmdEndRenderPass(buffer)

	res, err = driver.EndCommandBuffer(buffer)
	if err != nil {
		return frameFailure("end command buffer", res, err)
	}

	return nil
}
