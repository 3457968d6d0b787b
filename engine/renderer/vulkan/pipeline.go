package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

const shaderEntryPoint = "main\x00"

// Vulkan only guarantees 128 bytes of push constants.
const maxPushConstantSize = 128

func (d *Device) CreateShaderModule(code []uint32) (hal.ShaderModule, error) {
	if len(code) == 0 {
		return hal.ShaderModule{}, errors.New("empty shader code")
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}
	var module vk.ShaderModule
	if err := check(vk.CreateShaderModule(d.device, &createInfo, nil, &module), "vkCreateShaderModule"); err != nil {
		return hal.ShaderModule{}, err
	}
	return hal.ShaderModule{Handle: insert(d, PipelineManagement, d.shaders, module)}, nil
}

func (d *Device) DestroyShaderModule(m hal.ShaderModule) {
	if module, ok := remove(d, PipelineManagement, d.shaders, m.Handle); ok {
		vk.DestroyShaderModule(d.device, module, nil)
	}
}

func (d *Device) CreatePipelineLayout(desc hal.PipelineLayoutDesc) (hal.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(desc.SetLayouts))
	for i, l := range desc.SetLayouts {
		layout, err := lookup(d, DescriptorManagement, d.setLayouts, l.Handle)
		if err != nil {
			return hal.PipelineLayout{}, err
		}
		setLayouts[i] = layout
	}

	ranges := make([]vk.PushConstantRange, len(desc.PushConstants))
	for i, r := range desc.PushConstants {
		if r.Offset+r.Size > maxPushConstantSize {
			return hal.PipelineLayout{}, errors.Errorf("push constant range %d ends at %d, limit is %d", i, r.Offset+r.Size, maxPushConstantSize)
		}
		ranges[i] = vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(shaderStages.convert(r.Stages)),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	var layout vk.PipelineLayout
	if err := check(vk.CreatePipelineLayout(d.device, &pipelineLayoutCreateInfo, nil, &layout), "vkCreatePipelineLayout"); err != nil {
		return hal.PipelineLayout{}, err
	}
	return hal.PipelineLayout{Handle: insert(d, PipelineManagement, d.layouts, layout)}, nil
}

func (d *Device) DestroyPipelineLayout(l hal.PipelineLayout) {
	if layout, ok := remove(d, PipelineManagement, d.layouts, l.Handle); ok {
		vk.DestroyPipelineLayout(d.device, layout, nil)
	}
}

// CreateGraphicsPipeline builds a triangle list pipeline with a fixed
// viewport covering desc.Extent, alpha blending and no depth test. A new
// pipeline is built whenever the swapchain extent changes.
func (d *Device) CreateGraphicsPipeline(desc hal.GraphicsPipelineDesc) (hal.Pipeline, error) {
	vertex, err := lookup(d, PipelineManagement, d.shaders, desc.VertexShader.Handle)
	if err != nil {
		return hal.Pipeline{}, err
	}
	fragment, err := lookup(d, PipelineManagement, d.shaders, desc.FragmentShader.Handle)
	if err != nil {
		return hal.Pipeline{}, err
	}
	layout, err := lookup(d, PipelineManagement, d.layouts, desc.Layout.Handle)
	if err != nil {
		return hal.Pipeline{}, err
	}
	renderPass, err := lookup(d, PipelineManagement, d.renderPasses, desc.RenderPass.Handle)
	if err != nil {
		return hal.Pipeline{}, err
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertex,
			PName:  shaderEntryPoint,
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fragment,
			PName:  shaderEntryPoint,
		},
	}

	// Vertex input
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.Attributes))
	for i, a := range desc.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Binding:  0,
			Location: a.Location,
			Format:   toFormat(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                         vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount: 1,
		PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    desc.VertexStride,
			InputRate: vk.VertexInputRateVertex,
		}},
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	// Viewport state
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports: []vk.Viewport{{
			X:        0,
			Y:        0,
			Width:    float32(desc.Extent.Width),
			Height:   float32(desc.Extent.Height),
			MinDepth: 0.0,
			MaxDepth: 1.0,
		}},
		ScissorCount: 1,
		PScissors: []vk.Rect2D{{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: toExtent2D(desc.Extent),
		}},
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PColorBlendState:    &colorBlendStateCreateInfo,
		Layout:              layout,
		RenderPass:          renderPass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := check(vk.CreateGraphicsPipelines(d.device, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, nil, pipelines), "vkCreateGraphicsPipelines"); err != nil {
		return hal.Pipeline{}, err
	}
	core.LogDebug("Graphics pipeline created at %dx%d.", desc.Extent.Width, desc.Extent.Height)
	return hal.Pipeline{Handle: insert(d, PipelineManagement, d.pipelines, pipelines[0])}, nil
}

func (d *Device) CreateComputePipeline(desc hal.ComputePipelineDesc) (hal.Pipeline, error) {
	shader, err := lookup(d, PipelineManagement, d.shaders, desc.Shader.Handle)
	if err != nil {
		return hal.Pipeline{}, err
	}
	layout, err := lookup(d, PipelineManagement, d.layouts, desc.Layout.Handle)
	if err != nil {
		return hal.Pipeline{}, err
	}

	pipelineCreateInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: shader,
			PName:  shaderEntryPoint,
		},
		Layout:             layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := check(vk.CreateComputePipelines(d.device, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{pipelineCreateInfo}, nil, pipelines), "vkCreateComputePipelines"); err != nil {
		return hal.Pipeline{}, err
	}
	core.LogDebug("Compute pipeline created.")
	return hal.Pipeline{Handle: insert(d, PipelineManagement, d.pipelines, pipelines[0])}, nil
}

func (d *Device) DestroyPipeline(p hal.Pipeline) {
	if pipeline, ok := remove(d, PipelineManagement, d.pipelines, p.Handle); ok {
		vk.DestroyPipeline(d.device, pipeline, nil)
	}
}
