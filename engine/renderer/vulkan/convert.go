package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

var formats = map[hal.Format]vk.Format{
	hal.FormatUndefined:          vk.FormatUndefined,
	hal.FormatR8Unorm:            vk.FormatR8Unorm,
	hal.FormatR8Snorm:            vk.FormatR8Snorm,
	hal.FormatR8G8B8A8Unorm:      vk.FormatR8g8b8a8Unorm,
	hal.FormatB8G8R8A8Unorm:      vk.FormatB8g8r8a8Unorm,
	hal.FormatB8G8R8A8Srgb:       vk.FormatB8g8r8a8Srgb,
	hal.FormatR32G32Sfloat:       vk.FormatR32g32Sfloat,
	hal.FormatR32G32B32Sfloat:    vk.FormatR32g32b32Sfloat,
	hal.FormatR32G32B32A32Sfloat: vk.FormatR32g32b32a32Sfloat,
}

func toFormat(f hal.Format) vk.Format {
	return formats[f]
}

// fromFormat reports false for formats the renderer has no name for.
func fromFormat(f vk.Format) (hal.Format, bool) {
	for h, v := range formats {
		if v == f {
			return h, true
		}
	}
	return hal.FormatUndefined, false
}

var presentModes = map[hal.PresentMode]vk.PresentMode{
	hal.PresentModeImmediate:   vk.PresentModeImmediate,
	hal.PresentModeMailbox:     vk.PresentModeMailbox,
	hal.PresentModeFifo:        vk.PresentModeFifo,
	hal.PresentModeFifoRelaxed: vk.PresentModeFifoRelaxed,
}

func toColorSpace(c hal.ColorSpace) vk.ColorSpace {
	return vk.ColorSpace(c)
}

func fromColorSpace(c vk.ColorSpace) hal.ColorSpace {
	return hal.ColorSpace(c)
}

func toPresentMode(m hal.PresentMode) vk.PresentMode {
	if v, ok := presentModes[m]; ok {
		return v
	}
	return vk.PresentModeFifo
}

func fromPresentMode(m vk.PresentMode) hal.PresentMode {
	for h, v := range presentModes {
		if v == m {
			return h
		}
	}
	return hal.PresentModeOther
}

var imageLayouts = map[hal.ImageLayout]vk.ImageLayout{
	hal.ImageLayoutUndefined:              vk.ImageLayoutUndefined,
	hal.ImageLayoutGeneral:                vk.ImageLayoutGeneral,
	hal.ImageLayoutColorAttachmentOptimal: vk.ImageLayoutColorAttachmentOptimal,
	hal.ImageLayoutShaderReadOnlyOptimal:  vk.ImageLayoutShaderReadOnlyOptimal,
	hal.ImageLayoutTransferSrcOptimal:     vk.ImageLayoutTransferSrcOptimal,
	hal.ImageLayoutTransferDstOptimal:     vk.ImageLayoutTransferDstOptimal,
	hal.ImageLayoutPresentSrc:             vk.ImageLayoutPresentSrc,
}

func toImageLayout(l hal.ImageLayout) vk.ImageLayout {
	return imageLayouts[l]
}

// flagTable maps single hal bits onto Vulkan bits.
type flagTable[H ~uint32] []struct {
	hal H
	vk  uint32
}

func (t flagTable[H]) convert(flags H) uint32 {
	var out uint32
	for _, e := range t {
		if flags&e.hal != 0 {
			out |= e.vk
		}
	}
	return out
}

var bufferUsages = flagTable[hal.BufferUsage]{
	{hal.BufferUsageTransferSrc, uint32(vk.BufferUsageTransferSrcBit)},
	{hal.BufferUsageTransferDst, uint32(vk.BufferUsageTransferDstBit)},
	{hal.BufferUsageUniform, uint32(vk.BufferUsageUniformBufferBit)},
	{hal.BufferUsageStorage, uint32(vk.BufferUsageStorageBufferBit)},
	{hal.BufferUsageIndex, uint32(vk.BufferUsageIndexBufferBit)},
	{hal.BufferUsageVertex, uint32(vk.BufferUsageVertexBufferBit)},
}

var imageUsages = flagTable[hal.ImageUsage]{
	{hal.ImageUsageTransferSrc, uint32(vk.ImageUsageTransferSrcBit)},
	{hal.ImageUsageTransferDst, uint32(vk.ImageUsageTransferDstBit)},
	{hal.ImageUsageSampled, uint32(vk.ImageUsageSampledBit)},
	{hal.ImageUsageStorage, uint32(vk.ImageUsageStorageBit)},
	{hal.ImageUsageColorAttachment, uint32(vk.ImageUsageColorAttachmentBit)},
}

var pipelineStages = flagTable[hal.PipelineStage]{
	{hal.PipelineStageTopOfPipe, uint32(vk.PipelineStageTopOfPipeBit)},
	{hal.PipelineStageVertexInput, uint32(vk.PipelineStageVertexInputBit)},
	{hal.PipelineStageFragmentShader, uint32(vk.PipelineStageFragmentShaderBit)},
	{hal.PipelineStageColorAttachmentOutput, uint32(vk.PipelineStageColorAttachmentOutputBit)},
	{hal.PipelineStageComputeShader, uint32(vk.PipelineStageComputeShaderBit)},
	{hal.PipelineStageTransfer, uint32(vk.PipelineStageTransferBit)},
	{hal.PipelineStageBottomOfPipe, uint32(vk.PipelineStageBottomOfPipeBit)},
}

var accesses = flagTable[hal.Access]{
	{hal.AccessShaderRead, uint32(vk.AccessShaderReadBit)},
	{hal.AccessShaderWrite, uint32(vk.AccessShaderWriteBit)},
	{hal.AccessTransferRead, uint32(vk.AccessTransferReadBit)},
	{hal.AccessTransferWrite, uint32(vk.AccessTransferWriteBit)},
	{hal.AccessColorAttachmentWrite, uint32(vk.AccessColorAttachmentWriteBit)},
	{hal.AccessHostRead, uint32(vk.AccessHostReadBit)},
}

var shaderStages = flagTable[hal.ShaderStage]{
	{hal.ShaderStageVertex, uint32(vk.ShaderStageVertexBit)},
	{hal.ShaderStageFragment, uint32(vk.ShaderStageFragmentBit)},
	{hal.ShaderStageCompute, uint32(vk.ShaderStageComputeBit)},
}

var memoryProperties = flagTable[hal.MemoryProperty]{
	{hal.MemoryPropertyDeviceLocal, uint32(vk.MemoryPropertyDeviceLocalBit)},
	{hal.MemoryPropertyHostVisible, uint32(vk.MemoryPropertyHostVisibleBit)},
	{hal.MemoryPropertyHostCoherent, uint32(vk.MemoryPropertyHostCoherentBit)},
	{hal.MemoryPropertyHostCached, uint32(vk.MemoryPropertyHostCachedBit)},
}

// fromMemoryProperties is the reverse of memoryProperties.
func fromMemoryProperties(flags vk.MemoryPropertyFlags) hal.MemoryProperty {
	var out hal.MemoryProperty
	for _, e := range memoryProperties {
		if uint32(flags)&e.vk != 0 {
			out |= e.hal
		}
	}
	return out
}

var descriptorTypes = map[hal.DescriptorType]vk.DescriptorType{
	hal.DescriptorTypeSampler:              vk.DescriptorTypeSampler,
	hal.DescriptorTypeSampledImage:         vk.DescriptorTypeSampledImage,
	hal.DescriptorTypeCombinedImageSampler: vk.DescriptorTypeCombinedImageSampler,
	hal.DescriptorTypeStorageImage:         vk.DescriptorTypeStorageImage,
	hal.DescriptorTypeUniformBuffer:        vk.DescriptorTypeUniformBuffer,
}

func toDescriptorType(t hal.DescriptorType) vk.DescriptorType {
	return descriptorTypes[t]
}

func toImageType(t hal.ImageType) vk.ImageType {
	if t == hal.ImageType3D {
		return vk.ImageType3d
	}
	return vk.ImageType2d
}

func toImageViewType(t hal.ImageType) vk.ImageViewType {
	if t == hal.ImageType3D {
		return vk.ImageViewType3d
	}
	return vk.ImageViewType2d
}

func toBindPoint(p hal.PipelineBindPoint) vk.PipelineBindPoint {
	if p == hal.PipelineBindPointCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}

func toIndexType(t hal.IndexType) vk.IndexType {
	if t == hal.IndexTypeUint32 {
		return vk.IndexTypeUint32
	}
	return vk.IndexTypeUint16
}

func toCommandBufferLevel(l hal.CommandBufferLevel) vk.CommandBufferLevel {
	if l == hal.CommandBufferLevelSecondary {
		return vk.CommandBufferLevelSecondary
	}
	return vk.CommandBufferLevelPrimary
}

func toSubpassContents(c hal.SubpassContents) vk.SubpassContents {
	if c == hal.SubpassContentsSecondaryCommandBuffers {
		return vk.SubpassContentsSecondaryCommandBuffers
	}
	return vk.SubpassContentsInline
}

func toPhysicalDeviceType(t vk.PhysicalDeviceType) hal.PhysicalDeviceType {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return hal.PhysicalDeviceTypeIntegrated
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return hal.PhysicalDeviceTypeDiscrete
	case vk.PhysicalDeviceTypeVirtualGpu:
		return hal.PhysicalDeviceTypeVirtual
	case vk.PhysicalDeviceTypeCpu:
		return hal.PhysicalDeviceTypeCPU
	}
	return hal.PhysicalDeviceTypeOther
}

func toExtent2D(e hal.Extent2D) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}

func toExtent3D(e hal.Extent3D) vk.Extent3D {
	return vk.Extent3D{Width: e.Width, Height: e.Height, Depth: e.Depth}
}

func colorRange(base, count uint32) vk.ImageSubresourceRange {
	if count == 0 {
		count = 1
	}
	return vk.ImageSubresourceRange{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		BaseMipLevel:   base,
		LevelCount:     count,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}
