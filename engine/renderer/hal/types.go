package hal

// Format of buffer attributes, images and surfaces.
type Format uint32

const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatR8Snorm
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8Srgb
	FormatR32G32Sfloat
	FormatR32G32B32Sfloat
	FormatR32G32B32A32Sfloat
)

// BytesPerTexel returns the size of one texel, 0 for formats that cannot be
// used as image storage.
func (f Format) BytesPerTexel() uint64 {
	switch f {
	case FormatR8Unorm, FormatR8Snorm:
		return 1
	case FormatR8G8B8A8Unorm, FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb:
		return 4
	case FormatR32G32Sfloat:
		return 8
	case FormatR32G32B32Sfloat:
		return 12
	case FormatR32G32B32A32Sfloat:
		return 16
	}
	return 0
}

// ColorSpace is the value the surface reports, passed back unchanged when the
// swapchain is created. Only sRGB non-linear is named.
type ColorSpace uint32

const ColorSpaceSrgbNonlinear ColorSpace = 0

type PresentMode uint32

const (
	PresentModeImmediate PresentMode = iota
	PresentModeMailbox
	PresentModeFifo
	PresentModeFifoRelaxed
	PresentModeOther
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo_relaxed"
	}
	return "other"
}

type Extent2D struct {
	Width, Height uint32
}

func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

type Extent3D struct {
	Width, Height, Depth uint32
}

func (e Extent3D) Texels() uint64 {
	return uint64(e.Width) * uint64(e.Height) * uint64(e.Depth)
}

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// UndefinedExtent is the sentinel a surface reports when the swapchain extent
// is chosen by the application.
const UndefinedExtent = ^uint32(0)

type SurfaceCapabilities struct {
	MinImageCount  uint32
	MaxImageCount  uint32 // 0 means no limit
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D
	// Opaque backend value passed back at swapchain creation.
	CurrentTransform uint32
}

type SwapchainStatus int

const (
	SwapchainOptimal SwapchainStatus = iota
	SwapchainSuboptimal
	SwapchainOutOfDate
)

func (s SwapchainStatus) String() string {
	switch s {
	case SwapchainOptimal:
		return "optimal"
	case SwapchainSuboptimal:
		return "suboptimal"
	}
	return "out of date"
}

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageColorAttachment
)

type ImageType uint32

const (
	ImageType2D ImageType = iota
	ImageType3D
)

type ImageLayout uint32

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachmentOptimal
	ImageLayoutShaderReadOnlyOptimal
	ImageLayoutTransferSrcOptimal
	ImageLayoutTransferDstOptimal
	ImageLayoutPresentSrc
)

type MemoryProperty uint32

const (
	MemoryPropertyDeviceLocal MemoryProperty = 1 << iota
	MemoryPropertyHostVisible
	MemoryPropertyHostCoherent
	MemoryPropertyHostCached
)

type MemoryType struct {
	Properties MemoryProperty
	HeapIndex  uint32
}

type MemoryProperties struct {
	Types     []MemoryType
	HeapSizes []uint64
}

type MemoryRequirements struct {
	Size      uint64
	Alignment uint64
	// Bit i is set when memory type i can back the resource.
	TypeBits uint32
}

type PipelineStage uint32

const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageVertexInput
	PipelineStageFragmentShader
	PipelineStageColorAttachmentOutput
	PipelineStageComputeShader
	PipelineStageTransfer
	PipelineStageBottomOfPipe
)

type Access uint32

const (
	AccessNone       Access = 0
	AccessShaderRead Access = 1 << iota
	AccessShaderWrite
	AccessTransferRead
	AccessTransferWrite
	AccessColorAttachmentWrite
	AccessHostRead
)

type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
)

type IndexType uint32

const (
	IndexTypeUint16 IndexType = iota
	IndexTypeUint32
)

type CommandBufferLevel uint32

const (
	CommandBufferLevelPrimary CommandBufferLevel = iota
	CommandBufferLevelSecondary
)

type SubpassContents uint32

const (
	SubpassContentsInline SubpassContents = iota
	SubpassContentsSecondaryCommandBuffers
)

type PipelineBindPoint uint32

const (
	PipelineBindPointGraphics PipelineBindPoint = iota
	PipelineBindPointCompute
)

type DescriptorType uint32

const (
	DescriptorTypeSampler DescriptorType = iota
	DescriptorTypeSampledImage
	DescriptorTypeCombinedImageSampler
	DescriptorTypeStorageImage
	DescriptorTypeUniformBuffer
)

// Resource descriptions.

type BufferDesc struct {
	Size  uint64
	Usage BufferUsage
}

type ImageDesc struct {
	Type      ImageType
	Format    Format
	Extent    Extent3D
	MipLevels uint32
	Usage     ImageUsage
}

type ImageViewDesc struct {
	Image     Image
	Type      ImageType
	Format    Format
	MipLevels uint32
}

type CommandPoolDesc struct {
	// Short lived buffers, allocated for one submission.
	Transient bool
	// Buffers can be reset one by one instead of through the pool.
	ResetCommandBuffer bool
}

type SwapchainDesc struct {
	MinImageCount uint32
	Format        SurfaceFormat
	Extent        Extent2D
	PresentMode   PresentMode
	PreTransform  uint32
	OldSwapchain  Swapchain
}

type RenderPassDesc struct {
	ColorFormat Format
	// Layout the color attachment ends in.
	FinalLayout ImageLayout
}

type FramebufferDesc struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type PipelineLayoutDesc struct {
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

type GraphicsPipelineDesc struct {
	VertexShader   ShaderModule
	FragmentShader ShaderModule
	Layout         PipelineLayout
	RenderPass     RenderPass
	Extent         Extent2D
	VertexStride   uint32
	Attributes     []VertexAttribute
}

type ComputePipelineDesc struct {
	Shader ShaderModule
	Layout PipelineLayout
}

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorPoolDesc struct {
	MaxSets uint32
	Sizes   []DescriptorPoolSize
	// FreeSets allows returning single sets to the pool with
	// FreeDescriptorSet.
	FreeSets bool
}

type DescriptorImage struct {
	View    ImageView
	Sampler Sampler
	Layout  ImageLayout
}

type DescriptorWrite struct {
	Binding uint32
	Type    DescriptorType
	Images  []DescriptorImage
}

// Command arguments.

type CommandBufferInheritance struct {
	RenderPass  RenderPass
	Subpass     uint32
	Framebuffer Framebuffer
}

type CommandBufferBegin struct {
	OneTimeSubmit bool
	// Set for secondary buffers executed inside a render pass.
	Inheritance *CommandBufferInheritance
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type BufferImageCopy struct {
	BufferOffset uint64
	MipLevel     uint32
	Extent       Extent3D
}

type ImageBarrier struct {
	Image         Image
	OldLayout     ImageLayout
	NewLayout     ImageLayout
	SrcAccess     Access
	DstAccess     Access
	BaseMipLevel  uint32
	MipLevelCount uint32
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      Extent2D
	ClearColor  [4]float32
}

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

// Physical device selection input.

type PhysicalDeviceType uint32

const (
	PhysicalDeviceTypeOther PhysicalDeviceType = iota
	PhysicalDeviceTypeIntegrated
	PhysicalDeviceTypeDiscrete
	PhysicalDeviceTypeVirtual
	PhysicalDeviceTypeCPU
)

type QueueFamily struct {
	Graphics bool
	Compute  bool
	Transfer bool
	Present  bool
}

type PhysicalDeviceInfo struct {
	Name          string
	Type          PhysicalDeviceType
	QueueFamilies []QueueFamily
	// Required device extensions (swapchain) are available.
	HasExtensions bool
	// Surface reports at least one format and one present mode.
	HasSurfaceSupport bool
}
