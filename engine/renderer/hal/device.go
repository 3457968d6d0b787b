package hal

// SyncDevice creates and queries CPU/GPU synchronization primitives.
type SyncDevice interface {
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	// WaitForFences blocks until every fence is signaled or the timeout in
	// nanoseconds expires (core.ErrFenceTimeout).
	WaitForFences(fences []Fence, timeout uint64) error
	ResetFences(fences []Fence) error
	// FenceStatus polls a fence without blocking.
	FenceStatus(f Fence) (bool, error)
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)
}

type MemoryDevice interface {
	MemoryProperties() MemoryProperties
	AllocateMemory(size uint64, typeIndex uint32) (Memory, error)
	FreeMemory(m Memory)
	// MapMemory returns a slice aliasing the mapped range. It must not be
	// used after UnmapMemory.
	MapMemory(m Memory, offset, size uint64) ([]byte, error)
	UnmapMemory(m Memory)
}

type ResourceDevice interface {
	CreateBuffer(desc BufferDesc) (Buffer, error)
	BufferMemoryRequirements(b Buffer) (MemoryRequirements, error)
	BindBufferMemory(b Buffer, m Memory, offset uint64) error
	DestroyBuffer(b Buffer)

	CreateImage(desc ImageDesc) (Image, error)
	ImageMemoryRequirements(i Image) (MemoryRequirements, error)
	BindImageMemory(i Image, m Memory, offset uint64) error
	DestroyImage(i Image)

	CreateImageView(desc ImageViewDesc) (ImageView, error)
	DestroyImageView(v ImageView)

	CreateSampler() (Sampler, error)
	DestroySampler(s Sampler)
}

type CommandDevice interface {
	CreateCommandPool(desc CommandPoolDesc) (CommandPool, error)
	DestroyCommandPool(p CommandPool)
	ResetCommandPool(p CommandPool) error
	AllocateCommandBuffers(p CommandPool, level CommandBufferLevel, count uint32) ([]CommandBuffer, error)
	FreeCommandBuffers(p CommandPool, buffers []CommandBuffer)

	BeginCommandBuffer(cb CommandBuffer, begin CommandBufferBegin) error
	EndCommandBuffer(cb CommandBuffer) error

	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, regions []BufferCopy)
	CmdCopyBufferToImage(cb CommandBuffer, src Buffer, dst Image, layout ImageLayout, region BufferImageCopy)
	CmdCopyImageToBuffer(cb CommandBuffer, src Image, layout ImageLayout, dst Buffer, region BufferImageCopy)
	CmdPipelineBarrier(cb CommandBuffer, srcStage, dstStage PipelineStage, barriers []ImageBarrier)
	CmdBeginRenderPass(cb CommandBuffer, begin RenderPassBegin, contents SubpassContents)
	CmdEndRenderPass(cb CommandBuffer)
	CmdExecuteCommands(cb CommandBuffer, secondaries []CommandBuffer)
	CmdBindPipeline(cb CommandBuffer, bindPoint PipelineBindPoint, p Pipeline)
	CmdBindDescriptorSets(cb CommandBuffer, bindPoint PipelineBindPoint, layout PipelineLayout, firstSet uint32, sets []DescriptorSet)
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	CmdBindVertexBuffers(cb CommandBuffer, firstBinding uint32, buffers []Buffer, offsets []uint64)
	CmdBindIndexBuffer(cb CommandBuffer, b Buffer, offset uint64, indexType IndexType)
	CmdDrawIndexed(cb CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	CmdDispatch(cb CommandBuffer, x, y, z uint32)

	QueueSubmit(submits []SubmitInfo, fence Fence) error
	QueueWaitIdle() error
}

type PresentDevice interface {
	SurfaceCapabilities() (SurfaceCapabilities, error)
	SurfaceFormats() ([]SurfaceFormat, error)
	SurfacePresentModes() ([]PresentMode, error)

	CreateSwapchain(desc SwapchainDesc) (Swapchain, error)
	SwapchainImages(sc Swapchain) ([]Image, error)
	DestroySwapchain(sc Swapchain)
	// AcquireNextImage reports staleness through the status, errors are fatal.
	AcquireNextImage(sc Swapchain, timeout uint64, signal Semaphore) (uint32, SwapchainStatus, error)
	QueuePresent(sc Swapchain, imageIndex uint32, wait []Semaphore) (SwapchainStatus, error)
}

type PipelineDevice interface {
	CreateShaderModule(code []uint32) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)
	CreateRenderPass(desc RenderPassDesc) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)
	CreatePipelineLayout(desc PipelineLayoutDesc) (PipelineLayout, error)
	DestroyPipelineLayout(l PipelineLayout)
	CreateGraphicsPipeline(desc GraphicsPipelineDesc) (Pipeline, error)
	CreateComputePipeline(desc ComputePipelineDesc) (Pipeline, error)
	DestroyPipeline(p Pipeline)
}

type DescriptorDevice interface {
	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayout)
	CreateDescriptorPool(desc DescriptorPoolDesc) (DescriptorPool, error)
	DestroyDescriptorPool(p DescriptorPool)
	AllocateDescriptorSet(p DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)
	FreeDescriptorSet(p DescriptorPool, set DescriptorSet) error
	UpdateDescriptorSet(set DescriptorSet, writes []DescriptorWrite)
}

// Device is a logical GPU device with one queue used for graphics, compute,
// transfer and presentation.
type Device interface {
	SyncDevice
	MemoryDevice
	ResourceDevice
	CommandDevice
	PresentDevice
	PipelineDevice
	DescriptorDevice

	Name() string
	WaitIdle() error
	Destroy()
}
