package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// Pipeline owns the render pass, the pipeline layout and the graphics
// pipeline that draws the frame quad. Viewport and scissor are dynamic, so
// only a change of swapchain format forces a rebuild.
type Pipeline struct {
	device         *DeviceContext
	vertexShader   []uint32
	fragmentShader []uint32
	setLayout      core1_0.DescriptorSetLayout

	format           core1_0.Format
	renderPass       core1_0.RenderPass
	pipelineLayout   core1_0.PipelineLayout
	graphicsPipeline core1_0.Pipeline
}

func NewPipeline(device *DeviceContext, vertexShader, fragmentShader []uint32, setLayout core1_0.DescriptorSetLayout) *Pipeline {
	return &Pipeline{
		device:         device,
		vertexShader:   vertexShader,
		fragmentShader: fragmentShader,
		setLayout:      setLayout,
	}
}

func (p *Pipeline) RenderPass() core1_0.RenderPass     { return p.renderPass }
func (p *Pipeline) Layout() core1_0.PipelineLayout     { return p.pipelineLayout }
func (p *Pipeline) GraphicsPipeline() core1_0.Pipeline { return p.graphicsPipeline }

// RenderPassFor returns the render pass for format, building the render pass
// and graphics pipeline the first time and again whenever format changes.
// The device must be idle when a rebuild happens.
func (p *Pipeline) RenderPassFor(format core1_0.Format) (core1_0.RenderPass, error) {
	if p.renderPass.Initialized() && p.format == format {
		return p.renderPass, nil
	}

	if p.renderPass.Initialized() {
		Logger().Info("swapchain format changed, rebuilding pipeline", "old", p.format, "new", format)
		p.destroyFormatDependent()
	}

	err := p.createRenderPass(format)
	if err != nil {
		return core1_0.RenderPass{}, err
	}
	p.format = format

	err = p.createGraphicsPipeline()
	if err != nil {
		return core1_0.RenderPass{}, err
	}

	return p.renderPass, nil
}

func (p *Pipeline) createRenderPass(format core1_0.Format) error {
	renderPass, res, err := p.device.Device().CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentWrite,
			},
		},
	})
	if err != nil {
		return fatalInit("create render pass", res, err)
	}

	p.renderPass = renderPass
	return nil
}

func (p *Pipeline) createShaderModule(name string, code []uint32) (core1_0.ShaderModule, error) {
	if len(code) == 0 {
		return core1_0.ShaderModule{}, fatalInit("create shader module", 0, errors.Newf("%s shader has no bytecode", name))
	}

	module, res, err := p.device.Device().CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return core1_0.ShaderModule{}, fatalInit("create shader module", res, errors.Wrapf(err, "%s shader", name))
	}
	return module, nil
}

func (p *Pipeline) createGraphicsPipeline() error {
	driver := p.device.Device()

	vertShader, err := p.createShaderModule("vertex", p.vertexShader)
	if err != nil {
		return err
	}
	defer driver.DestroyShaderModule(vertShader, nil)

	fragShader, err := p.createShaderModule("fragment", p.fragmentShader)
	if err != nil {
		return err
	}
	defer driver.DestroyShaderModule(fragShader, nil)

	if !p.pipelineLayout.Initialized() {
		var res common.VkResult
		p.pipelineLayout, res, err = driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
			SetLayouts: []core1_0.DescriptorSetLayout{
				p.setLayout,
			},
		})
		if err != nil {
			return fatalInit("create pipeline layout", res, err)
		}
	}

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions:   getVertexBindingDescription(),
		VertexAttributeDescriptions: getVertexAttributeDescriptions(),
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: false,
	}

	vertStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageVertex,
		Module: vertShader,
		Name:   "main",
	}

	fragStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageFragment,
		Module: fragShader,
		Name:   "main",
	}

	// Real values are set per frame by CmdSetViewport and CmdSetScissor.
	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{Width: 1, Height: 1, MinDepth: 0, MaxDepth: 1},
		},
		Scissors: []core1_0.Rect2D{
			{Extent: core1_0.Extent2D{Width: 1, Height: 1}},
		},
	}

	dynamicState := &core1_0.PipelineDynamicStateCreateInfo{
		DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor},
	}

	// The quad is drawn from either side, so nothing is culled.
	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: core1_0.PolygonModeFill,
		FrontFace:   core1_0.FrontFaceCounterClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1.0,
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			{
				BlendEnabled:   false,
				ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
			},
		},
	}

	pipelines, res, err := driver.CreateGraphicsPipelines(nil, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				vertStage,
				fragStage,
			},
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			ColorBlendState:    colorBlend,
			DynamicState:       dynamicState,
			Layout:             p.pipelineLayout,
			RenderPass:         p.renderPass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	)
	if err != nil {
		return fatalInit("create graphics pipeline", res, err)
	}
	p.graphicsPipeline = pipelines[0]

	return nil
}

func (p *Pipeline) destroyFormatDependent() {
	driver := p.device.Device()

	if p.graphicsPipeline.Initialized() {
		driver.DestroyPipeline(p.graphicsPipeline, nil)
		p.graphicsPipeline = core1_0.Pipeline{}
	}

	if p.renderPass.Initialized() {
		driver.DestroyRenderPass(p.renderPass, nil)
		p.renderPass = core1_0.RenderPass{}
	}
}

// Destroy releases the pipeline, the render pass and the pipeline layout.
func (p *Pipeline) Destroy() {
	p.destroyFormatDependent()

	if p.pipelineLayout.Initialized() {
		p.device.Device().DestroyPipelineLayout(p.pipelineLayout, nil)
		p.pipelineLayout = core1_0.PipelineLayout{}
	}
}
