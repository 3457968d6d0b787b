package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

// CreateRenderPass builds a single subpass pass with one cleared color
// attachment.
func (d *Device) CreateRenderPass(desc hal.RenderPassDesc) (hal.RenderPass, error) {
	// Color attachment
	colorAttachment := vk.AttachmentDescription{
		Format:         toFormat(desc.ColorFormat),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    toImageLayout(desc.FinalLayout),
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
	}

	// The image is acquired asynchronously, so the color output waits on it.
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.AttachmentDescription{colorAttachment},
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var renderPass vk.RenderPass
	if err := check(vk.CreateRenderPass(d.device, &renderpassCreateInfo, nil, &renderPass), "vkCreateRenderPass"); err != nil {
		return hal.RenderPass{}, err
	}
	return hal.RenderPass{Handle: insert(d, PipelineManagement, d.renderPasses, renderPass)}, nil
}

func (d *Device) DestroyRenderPass(rp hal.RenderPass) {
	if renderPass, ok := remove(d, PipelineManagement, d.renderPasses, rp.Handle); ok {
		vk.DestroyRenderPass(d.device, renderPass, nil)
	}
}

func (d *Device) CreateFramebuffer(desc hal.FramebufferDesc) (hal.Framebuffer, error) {
	if len(desc.Attachments) == 0 {
		return hal.Framebuffer{}, errors.New("framebuffer needs at least one attachment")
	}
	renderPass, err := lookup(d, PipelineManagement, d.renderPasses, desc.RenderPass.Handle)
	if err != nil {
		return hal.Framebuffer{}, err
	}
	attachments := make([]vk.ImageView, len(desc.Attachments))
	for i, a := range desc.Attachments {
		view, err := lookup(d, ResourceManagement, d.views, a.Handle)
		if err != nil {
			return hal.Framebuffer{}, err
		}
		attachments[i] = view
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           desc.Extent.Width,
		Height:          desc.Extent.Height,
		Layers:          1,
	}

	var framebuffer vk.Framebuffer
	if err := check(vk.CreateFramebuffer(d.device, &framebufferCreateInfo, nil, &framebuffer), "vkCreateFramebuffer"); err != nil {
		return hal.Framebuffer{}, err
	}
	return hal.Framebuffer{Handle: insert(d, PipelineManagement, d.framebuffers, framebuffer)}, nil
}

func (d *Device) DestroyFramebuffer(fb hal.Framebuffer) {
	if framebuffer, ok := remove(d, PipelineManagement, d.framebuffers, fb.Handle); ok {
		vk.DestroyFramebuffer(d.device, framebuffer, nil)
	}
}
