package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

func (d *Device) CreateCommandPool(desc hal.CommandPoolDesc) (hal.CommandPool, error) {
	var flags vk.CommandPoolCreateFlagBits
	if desc.Transient {
		flags |= vk.CommandPoolCreateTransientBit
	}
	if desc.ResetCommandBuffer {
		flags |= vk.CommandPoolCreateResetCommandBufferBit
	}
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.family,
		Flags:            vk.CommandPoolCreateFlags(flags),
	}
	var pool vk.CommandPool
	if err := check(vk.CreateCommandPool(d.device, &poolCreateInfo, nil, &pool), "vkCreateCommandPool"); err != nil {
		return hal.CommandPool{}, err
	}
	return hal.CommandPool{Handle: insert(d, CommandPoolManagement, d.pools, pool)}, nil
}

// DestroyCommandPool frees every command buffer allocated from the pool.
func (d *Device) DestroyCommandPool(p hal.CommandPool) {
	pool, ok := remove(d, CommandPoolManagement, d.pools, p.Handle)
	if !ok {
		return
	}
	_ = d.locks.SafeCall(CommandBufferManagement, func() error {
		var owned []hal.Handle
		d.commandBuffers.Each(func(h hal.Handle, cb commandBuffer) {
			if cb.pool == p {
				owned = append(owned, h)
			}
		})
		for _, h := range owned {
			_, _ = d.commandBuffers.Remove(h)
		}
		return nil
	})
	vk.DestroyCommandPool(d.device, pool, nil)
}

func (d *Device) ResetCommandPool(p hal.CommandPool) error {
	pool, err := lookup(d, CommandPoolManagement, d.pools, p.Handle)
	if err != nil {
		return err
	}
	return check(vk.ResetCommandPool(d.device, pool, 0), "vkResetCommandPool")
}

func (d *Device) AllocateCommandBuffers(p hal.CommandPool, level hal.CommandBufferLevel, count uint32) ([]hal.CommandBuffer, error) {
	pool, err := lookup(d, CommandPoolManagement, d.pools, p.Handle)
	if err != nil {
		return nil, err
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              toCommandBufferLevel(level),
		CommandBufferCount: count,
	}
	handles := make([]vk.CommandBuffer, count)
	if err := check(vk.AllocateCommandBuffers(d.device, &allocateInfo, handles), "vkAllocateCommandBuffers"); err != nil {
		return nil, err
	}
	out := make([]hal.CommandBuffer, count)
	for i, h := range handles {
		out[i] = hal.CommandBuffer{Handle: insert(d, CommandBufferManagement, d.commandBuffers, commandBuffer{handle: h, pool: p})}
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(p hal.CommandPool, buffers []hal.CommandBuffer) {
	pool, ok := mustLookup(d, CommandPoolManagement, d.pools, p.Handle)
	if !ok {
		return
	}
	handles := make([]vk.CommandBuffer, 0, len(buffers))
	for _, b := range buffers {
		if cb, ok := remove(d, CommandBufferManagement, d.commandBuffers, b.Handle); ok {
			handles = append(handles, cb.handle)
		}
	}
	if len(handles) > 0 {
		vk.FreeCommandBuffers(d.device, pool, uint32(len(handles)), handles)
	}
}

func (d *Device) commandBuffer(cb hal.CommandBuffer) (vk.CommandBuffer, bool) {
	c, ok := mustLookup(d, CommandBufferManagement, d.commandBuffers, cb.Handle)
	return c.handle, ok
}

func (d *Device) BeginCommandBuffer(cb hal.CommandBuffer, begin hal.CommandBufferBegin) error {
	c, err := lookup(d, CommandBufferManagement, d.commandBuffers, cb.Handle)
	if err != nil {
		return err
	}
	var flags vk.CommandBufferUsageFlagBits
	if begin.OneTimeSubmit {
		flags |= vk.CommandBufferUsageOneTimeSubmitBit
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if in := begin.Inheritance; in != nil {
		flags |= vk.CommandBufferUsageRenderPassContinueBit
		rp, err := lookup(d, PipelineManagement, d.renderPasses, in.RenderPass.Handle)
		if err != nil {
			return err
		}
		fb, err := lookup(d, PipelineManagement, d.framebuffers, in.Framebuffer.Handle)
		if err != nil {
			return err
		}
		beginInfo.PInheritanceInfo = []vk.CommandBufferInheritanceInfo{{
			SType:       vk.StructureTypeCommandBufferInheritanceInfo,
			RenderPass:  rp,
			Subpass:     in.Subpass,
			Framebuffer: fb,
		}}
	}
	beginInfo.Flags = vk.CommandBufferUsageFlags(flags)
	return check(vk.BeginCommandBuffer(c.handle, &beginInfo), "vkBeginCommandBuffer")
}

func (d *Device) EndCommandBuffer(cb hal.CommandBuffer) error {
	c, err := lookup(d, CommandBufferManagement, d.commandBuffers, cb.Handle)
	if err != nil {
		return err
	}
	return check(vk.EndCommandBuffer(c.handle), "vkEndCommandBuffer")
}

func (d *Device) CmdCopyBuffer(cb hal.CommandBuffer, src, dst hal.Buffer, regions []hal.BufferCopy) {
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	s, ok := mustLookup(d, ResourceManagement, d.buffers, src.Handle)
	if !ok {
		return
	}
	t, ok := mustLookup(d, ResourceManagement, d.buffers, dst.Handle)
	if !ok {
		return
	}
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(c, s, t, uint32(len(copies)), copies)
}

func bufferImageCopy(region hal.BufferImageCopy) vk.BufferImageCopy {
	return vk.BufferImageCopy{
		BufferOffset:      vk.DeviceSize(region.BufferOffset),
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       region.MipLevel,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageExtent: toExtent3D(region.Extent),
	}
}

func (d *Device) CmdCopyBufferToImage(cb hal.CommandBuffer, src hal.Buffer, dst hal.Image, layout hal.ImageLayout, region hal.BufferImageCopy) {
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	buffer, ok := mustLookup(d, ResourceManagement, d.buffers, src.Handle)
	if !ok {
		return
	}
	img, ok := mustLookup(d, ResourceManagement, d.images, dst.Handle)
	if !ok {
		return
	}
	vk.CmdCopyBufferToImage(c, buffer, img.handle, toImageLayout(layout), 1, []vk.BufferImageCopy{bufferImageCopy(region)})
}

func (d *Device) CmdCopyImageToBuffer(cb hal.CommandBuffer, src hal.Image, layout hal.ImageLayout, dst hal.Buffer, region hal.BufferImageCopy) {
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	img, ok := mustLookup(d, ResourceManagement, d.images, src.Handle)
	if !ok {
		return
	}
	buffer, ok := mustLookup(d, ResourceManagement, d.buffers, dst.Handle)
	if !ok {
		return
	}
	vk.CmdCopyImageToBuffer(c, img.handle, toImageLayout(layout), buffer, 1, []vk.BufferImageCopy{bufferImageCopy(region)})
}

func (d *Device) CmdPipelineBarrier(cb hal.CommandBuffer, srcStage, dstStage hal.PipelineStage, barriers []hal.ImageBarrier) {
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	imageBarriers := make([]vk.ImageMemoryBarrier, 0, len(barriers))
	for _, b := range barriers {
		img, ok := mustLookup(d, ResourceManagement, d.images, b.Image.Handle)
		if !ok {
			return
		}
		imageBarriers = append(imageBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			OldLayout:           toImageLayout(b.OldLayout),
			NewLayout:           toImageLayout(b.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.handle,
			SubresourceRange:    colorRange(b.BaseMipLevel, b.MipLevelCount),
			SrcAccessMask:       vk.AccessFlags(accesses.convert(b.SrcAccess)),
			DstAccessMask:       vk.AccessFlags(accesses.convert(b.DstAccess)),
		})
	}
	vk.CmdPipelineBarrier(
		c,
		vk.PipelineStageFlags(pipelineStages.convert(srcStage)),
		vk.PipelineStageFlags(pipelineStages.convert(dstStage)),
		0,
		0, nil,
		0, nil,
		uint32(len(imageBarriers)), imageBarriers,
	)
}

func (d *Device) CmdBeginRenderPass(cb hal.CommandBuffer, begin hal.RenderPassBegin, contents hal.SubpassContents) {
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	rp, ok := mustLookup(d, PipelineManagement, d.renderPasses, begin.RenderPass.Handle)
	if !ok {
		return
	}
	fb, ok := mustLookup(d, PipelineManagement, d.framebuffers, begin.Framebuffer.Handle)
	if !ok {
		return
	}
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: toExtent2D(begin.Extent),
		},
	}
	clearValues := make([]vk.ClearValue, 1)
	clearValues[0].SetColor(begin.ClearColor[:])
	beginInfo.ClearValueCount = 1
	beginInfo.PClearValues = clearValues

	vk.CmdBeginRenderPass(c, &beginInfo, toSubpassContents(contents))
}

func (d *Device) CmdEndRenderPass(cb hal.CommandBuffer) {
	if c, ok := d.commandBuffer(cb); ok {
		vk.CmdEndRenderPass(c)
	}
}

func (d *Device) CmdExecuteCommands(cb hal.CommandBuffer, secondaries []hal.CommandBuffer) {
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	handles := make([]vk.CommandBuffer, 0, len(secondaries))
	for _, s := range secondaries {
		h, ok := d.commandBuffer(s)
		if !ok {
			return
		}
		handles = append(handles, h)
	}
	if len(handles) > 0 {
		vk.CmdExecuteCommands(c, uint32(len(handles)), handles)
	}
}

func (d *Device) CmdBindPipeline(cb hal.CommandBuffer, bindPoint hal.PipelineBindPoint, p hal.Pipeline) {
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	if pipeline, ok := mustLookup(d, PipelineManagement, d.pipelines, p.Handle); ok {
		vk.CmdBindPipeline(c, toBindPoint(bindPoint), pipeline)
	}
}

func (d *Device) CmdBindDescriptorSets(cb hal.CommandBuffer, bindPoint hal.PipelineBindPoint, layout hal.PipelineLayout, firstSet uint32, sets []hal.DescriptorSet) {
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	l, ok := mustLookup(d, PipelineManagement, d.layouts, layout.Handle)
	if !ok {
		return
	}
	handles := make([]vk.DescriptorSet, 0, len(sets))
	for _, s := range sets {
		set, ok := mustLookup(d, DescriptorManagement, d.descSets, s.Handle)
		if !ok {
			return
		}
		handles = append(handles, set.handle)
	}
	vk.CmdBindDescriptorSets(c, toBindPoint(bindPoint), l, firstSet, uint32(len(handles)), handles, 0, nil)
}

func (d *Device) CmdPushConstants(cb hal.CommandBuffer, layout hal.PipelineLayout, stages hal.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	l, ok := mustLookup(d, PipelineManagement, d.layouts, layout.Handle)
	if !ok {
		return
	}
	vk.CmdPushConstants(c, l, vk.ShaderStageFlags(shaderStages.convert(stages)), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (d *Device) CmdBindVertexBuffers(cb hal.CommandBuffer, firstBinding uint32, buffers []hal.Buffer, offsets []uint64) {
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	handles := make([]vk.Buffer, len(buffers))
	sizes := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		buffer, ok := mustLookup(d, ResourceManagement, d.buffers, b.Handle)
		if !ok {
			return
		}
		handles[i] = buffer
		if i < len(offsets) {
			sizes[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(c, firstBinding, uint32(len(handles)), handles, sizes)
}

func (d *Device) CmdBindIndexBuffer(cb hal.CommandBuffer, b hal.Buffer, offset uint64, indexType hal.IndexType) {
	c, ok := d.commandBuffer(cb)
	if !ok {
		return
	}
	if buffer, ok := mustLookup(d, ResourceManagement, d.buffers, b.Handle); ok {
		vk.CmdBindIndexBuffer(c, buffer, vk.DeviceSize(offset), toIndexType(indexType))
	}
}

func (d *Device) CmdDrawIndexed(cb hal.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if c, ok := d.commandBuffer(cb); ok {
		vk.CmdDrawIndexed(c, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	}
}

func (d *Device) CmdDispatch(cb hal.CommandBuffer, x, y, z uint32) {
	if c, ok := d.commandBuffer(cb); ok {
		vk.CmdDispatch(c, x, y, z)
	}
}

func (d *Device) QueueSubmit(submits []hal.SubmitInfo, f hal.Fence) error {
	infos := make([]vk.SubmitInfo, len(submits))
	for i, s := range submits {
		if len(s.WaitStages) != len(s.WaitSemaphores) {
			return errors.Errorf("submit %d: %d wait stages for %d semaphores", i, len(s.WaitStages), len(s.WaitSemaphores))
		}
		wait, err := d.vkSemaphores(s.WaitSemaphores)
		if err != nil {
			return err
		}
		signal, err := d.vkSemaphores(s.SignalSemaphores)
		if err != nil {
			return err
		}
		buffers := make([]vk.CommandBuffer, len(s.CommandBuffers))
		for j, cb := range s.CommandBuffers {
			c, err := lookup(d, CommandBufferManagement, d.commandBuffers, cb.Handle)
			if err != nil {
				return err
			}
			buffers[j] = c.handle
		}
		stages := make([]vk.PipelineStageFlags, len(s.WaitStages))
		for j, stage := range s.WaitStages {
			stages[j] = vk.PipelineStageFlags(pipelineStages.convert(stage))
		}
		infos[i] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(wait)),
			PWaitSemaphores:      wait,
			PWaitDstStageMask:    stages,
			CommandBufferCount:   uint32(len(buffers)),
			PCommandBuffers:      buffers,
			SignalSemaphoreCount: uint32(len(signal)),
			PSignalSemaphores:    signal,
		}
	}

	fence := vk.NullFence
	if !f.IsNil() {
		var err error
		if fence, err = lookup(d, SynchronizationManagement, d.fences, f.Handle); err != nil {
			return err
		}
	}
	return d.locks.SafeQueueCall(d.family, func() error {
		return check(vk.QueueSubmit(d.queue, uint32(len(infos)), infos, fence), "vkQueueSubmit")
	})
}

func (d *Device) QueueWaitIdle() error {
	return d.locks.SafeQueueCall(d.family, func() error {
		return check(vk.QueueWaitIdle(d.queue), "vkQueueWaitIdle")
	})
}
