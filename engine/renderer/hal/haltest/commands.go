package haltest

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

const (
	stateInitial    = "initial"
	stateRecording  = "recording"
	stateExecutable = "executable"
)

func (d *Device) CreateCommandPool(desc hal.CommandPoolDesc) (hal.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateCommandPool")
	return hal.CommandPool{Handle: d.pools.Insert(desc)}, nil
}

func (d *Device) DestroyCommandPool(p hal.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyCommandPool")
	// Destroying a pool frees its buffers.
	var owned []hal.Handle
	d.commandBuffers.Each(func(h hal.Handle, cb *commandBuffer) {
		if cb.pool == p {
			owned = append(owned, h)
		}
	})
	for _, h := range owned {
		d.checkNotInFlight(kindCommandBuffer, h)
		_, _ = d.commandBuffers.Remove(h)
	}
	if _, err := d.pools.Remove(p.Handle); err != nil {
		d.violate("DestroyCommandPool: %v", err)
	}
}

func (d *Device) ResetCommandPool(p hal.CommandPool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ResetCommandPool")
	if _, err := d.pools.Get(p.Handle); err != nil {
		return err
	}
	d.commandBuffers.Each(func(h hal.Handle, cb *commandBuffer) {
		if cb.pool == p {
			d.checkNotInFlight(kindCommandBuffer, h)
			cb.commands, cb.refs, cb.state = nil, nil, stateInitial
		}
	})
	return nil
}

func (d *Device) AllocateCommandBuffers(p hal.CommandPool, level hal.CommandBufferLevel, count uint32) ([]hal.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("AllocateCommandBuffers")
	if _, err := d.pools.Get(p.Handle); err != nil {
		return nil, err
	}
	out := make([]hal.CommandBuffer, count)
	for i := range out {
		out[i] = hal.CommandBuffer{Handle: d.commandBuffers.Insert(&commandBuffer{pool: p, level: level, state: stateInitial})}
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(p hal.CommandPool, buffers []hal.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("FreeCommandBuffers")
	for _, b := range buffers {
		d.checkNotInFlight(kindCommandBuffer, b.Handle)
		if _, err := d.commandBuffers.Remove(b.Handle); err != nil {
			d.violate("FreeCommandBuffers: %v", err)
		}
	}
}

func (d *Device) BeginCommandBuffer(cb hal.CommandBuffer, begin hal.CommandBufferBegin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("BeginCommandBuffer")
	c, err := d.commandBuffers.Get(cb.Handle)
	if err != nil {
		return err
	}
	d.checkNotInFlight(kindCommandBuffer, cb.Handle)
	if c.state == stateRecording {
		d.violate("command buffer %s begun while recording", cb.Handle)
	}
	if c.level == hal.CommandBufferLevelSecondary && begin.Inheritance == nil {
		d.violate("secondary command buffer %s begun without inheritance", cb.Handle)
	}
	c.begin = begin
	c.commands, c.refs, c.state = nil, nil, stateRecording
	if begin.Inheritance != nil {
		c.refs = append(c.refs,
			ref{kindRenderPass, begin.Inheritance.RenderPass.Handle},
			ref{kindFramebuffer, begin.Inheritance.Framebuffer.Handle})
	}
	return nil
}

func (d *Device) EndCommandBuffer(cb hal.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("EndCommandBuffer")
	c, err := d.commandBuffers.Get(cb.Handle)
	if err != nil {
		return err
	}
	if c.state != stateRecording {
		d.violate("command buffer %s ended while %s", cb.Handle, c.state)
	}
	c.state = stateExecutable
	return nil
}

// push appends a command to a recording buffer.
func (d *Device) push(cb hal.CommandBuffer, name string, refs []ref, run func(d *Device)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(name)
	c, err := d.commandBuffers.Get(cb.Handle)
	if err != nil {
		d.violate("%s: %v", name, err)
		return
	}
	if c.state != stateRecording {
		d.violate("%s recorded into command buffer %s while %s", name, cb.Handle, c.state)
		return
	}
	c.commands = append(c.commands, command{name: name, run: run})
	c.refs = append(c.refs, refs...)
}

func (d *Device) CmdCopyBuffer(cb hal.CommandBuffer, src, dst hal.Buffer, regions []hal.BufferCopy) {
	regions = append([]hal.BufferCopy(nil), regions...)
	d.push(cb, "CmdCopyBuffer", []ref{{kindBuffer, src.Handle}, {kindBuffer, dst.Handle}}, func(d *Device) {
		for _, r := range regions {
			s, okS := d.bufferBytes(src, r.SrcOffset, r.Size)
			t, okT := d.bufferBytes(dst, r.DstOffset, r.Size)
			if !okS || !okT {
				d.violate("CmdCopyBuffer region out of range")
				return
			}
			copy(t, s)
		}
	})
}

func (d *Device) CmdCopyBufferToImage(cb hal.CommandBuffer, src hal.Buffer, dst hal.Image, layout hal.ImageLayout, region hal.BufferImageCopy) {
	d.push(cb, "CmdCopyBufferToImage", []ref{{kindBuffer, src.Handle}, {kindImage, dst.Handle}}, func(d *Device) {
		img, err := d.images.Get(dst.Handle)
		if err != nil {
			d.violate("CmdCopyBufferToImage: %v", err)
			return
		}
		if img.layout != layout || layout != hal.ImageLayoutTransferDstOptimal {
			d.violate("CmdCopyBufferToImage into image %s in layout %d", dst.Handle, img.layout)
		}
		size := region.Extent.Texels() * img.desc.Format.BytesPerTexel()
		s, okS := d.bufferBytes(src, region.BufferOffset, size)
		t, okT := d.imageBytes(img, region.MipLevel, size)
		if !okS || !okT {
			d.violate("CmdCopyBufferToImage region out of range")
			return
		}
		copy(t, s)
	})
}

func (d *Device) CmdCopyImageToBuffer(cb hal.CommandBuffer, src hal.Image, layout hal.ImageLayout, dst hal.Buffer, region hal.BufferImageCopy) {
	d.push(cb, "CmdCopyImageToBuffer", []ref{{kindImage, src.Handle}, {kindBuffer, dst.Handle}}, func(d *Device) {
		img, err := d.images.Get(src.Handle)
		if err != nil {
			d.violate("CmdCopyImageToBuffer: %v", err)
			return
		}
		if img.layout != layout || layout != hal.ImageLayoutTransferSrcOptimal {
			d.violate("CmdCopyImageToBuffer from image %s in layout %d", src.Handle, img.layout)
		}
		size := region.Extent.Texels() * img.desc.Format.BytesPerTexel()
		s, okS := d.imageBytes(img, region.MipLevel, size)
		t, okT := d.bufferBytes(dst, region.BufferOffset, size)
		if !okS || !okT {
			d.violate("CmdCopyImageToBuffer region out of range")
			return
		}
		copy(t, s)
	})
}

func (d *Device) CmdPipelineBarrier(cb hal.CommandBuffer, srcStage, dstStage hal.PipelineStage, barriers []hal.ImageBarrier) {
	barriers = append([]hal.ImageBarrier(nil), barriers...)
	refs := make([]ref, 0, len(barriers))
	for _, b := range barriers {
		refs = append(refs, ref{kindImage, b.Image.Handle})
	}
	d.push(cb, "CmdPipelineBarrier", refs, func(d *Device) {
		for _, b := range barriers {
			img, err := d.images.Get(b.Image.Handle)
			if err != nil {
				d.violate("CmdPipelineBarrier: %v", err)
				continue
			}
			if b.OldLayout != hal.ImageLayoutUndefined && b.OldLayout != img.layout {
				d.violate("barrier on image %s expects layout %d, image is in %d", b.Image.Handle, b.OldLayout, img.layout)
			}
			img.layout = b.NewLayout
			d.barriers = append(d.barriers, Barrier{SrcStage: srcStage, DstStage: dstStage, ImageBarrier: b})
		}
	})
}

func (d *Device) CmdBeginRenderPass(cb hal.CommandBuffer, begin hal.RenderPassBegin, contents hal.SubpassContents) {
	d.push(cb, "CmdBeginRenderPass", []ref{{kindRenderPass, begin.RenderPass.Handle}, {kindFramebuffer, begin.Framebuffer.Handle}}, func(d *Device) {
		d.clearColors = append(d.clearColors, begin.ClearColor)
	})
}

func (d *Device) CmdEndRenderPass(cb hal.CommandBuffer) {
	d.push(cb, "CmdEndRenderPass", nil, func(*Device) {})
}

func (d *Device) CmdExecuteCommands(cb hal.CommandBuffer, secondaries []hal.CommandBuffer) {
	secondaries = append([]hal.CommandBuffer(nil), secondaries...)
	d.mu.Lock()
	var refs []ref
	for _, s := range secondaries {
		refs = append(refs, ref{kindCommandBuffer, s.Handle})
		sc, err := d.commandBuffers.Get(s.Handle)
		if err != nil {
			d.violate("CmdExecuteCommands: %v", err)
			continue
		}
		if sc.level != hal.CommandBufferLevelSecondary {
			d.violate("CmdExecuteCommands given primary buffer %s", s.Handle)
		}
		if sc.state != stateExecutable {
			d.violate("CmdExecuteCommands given buffer %s while %s", s.Handle, sc.state)
		}
		refs = append(refs, sc.refs...)
	}
	d.mu.Unlock()
	d.push(cb, "CmdExecuteCommands", refs, func(d *Device) {
		for _, s := range secondaries {
			if sc, err := d.commandBuffers.Get(s.Handle); err == nil {
				d.run(sc)
			}
		}
	})
}

func (d *Device) CmdBindPipeline(cb hal.CommandBuffer, bindPoint hal.PipelineBindPoint, p hal.Pipeline) {
	d.push(cb, "CmdBindPipeline", []ref{{kindPipeline, p.Handle}}, func(*Device) {})
}

func (d *Device) CmdBindDescriptorSets(cb hal.CommandBuffer, bindPoint hal.PipelineBindPoint, layout hal.PipelineLayout, firstSet uint32, sets []hal.DescriptorSet) {
	refs := []ref{{kindLayout, layout.Handle}}
	for _, s := range sets {
		refs = append(refs, ref{kindDescriptorSet, s.Handle})
	}
	d.push(cb, "CmdBindDescriptorSets", refs, func(*Device) {})
}

func (d *Device) CmdPushConstants(cb hal.CommandBuffer, layout hal.PipelineLayout, stages hal.ShaderStage, offset uint32, data []byte) {
	data = append([]byte(nil), data...)
	d.push(cb, "CmdPushConstants", []ref{{kindLayout, layout.Handle}}, func(d *Device) {
		d.pushConstants = append(d.pushConstants, data)
	})
}

func (d *Device) CmdBindVertexBuffers(cb hal.CommandBuffer, firstBinding uint32, buffers []hal.Buffer, offsets []uint64) {
	refs := make([]ref, 0, len(buffers))
	for _, b := range buffers {
		refs = append(refs, ref{kindBuffer, b.Handle})
	}
	d.push(cb, "CmdBindVertexBuffers", refs, func(*Device) {})
}

func (d *Device) CmdBindIndexBuffer(cb hal.CommandBuffer, b hal.Buffer, offset uint64, indexType hal.IndexType) {
	d.push(cb, "CmdBindIndexBuffer", []ref{{kindBuffer, b.Handle}}, func(*Device) {})
}

func (d *Device) CmdDrawIndexed(cb hal.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	d.push(cb, "CmdDrawIndexed", nil, func(d *Device) {
		d.draws++
	})
}

func (d *Device) CmdDispatch(cb hal.CommandBuffer, x, y, z uint32) {
	d.push(cb, "CmdDispatch", nil, func(d *Device) {
		d.dispatches++
	})
}

func (d *Device) run(c *commandBuffer) {
	for _, cmd := range c.commands {
		cmd.run(d)
	}
}

// QueueSubmit executes the buffers immediately. The fence stays pending
// until it is waited on or polled, so destruction of anything the
// submission uses before then is reported as a violation.
func (d *Device) QueueSubmit(submits []hal.SubmitInfo, f hal.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("QueueSubmit")
	if len(d.submitErrs) > 0 {
		err := d.submitErrs[0]
		d.submitErrs = d.submitErrs[1:]
		return err
	}

	var inFlight []ref
	for _, s := range submits {
		for _, w := range s.WaitSemaphores {
			sem, err := d.semaphores.Get(w.Handle)
			if err != nil {
				return err
			}
			if !sem.signaled {
				d.violate("submit waits on unsignaled semaphore %s", w.Handle)
			}
			sem.signaled = false
			inFlight = append(inFlight, ref{kindSemaphore, w.Handle})
		}
		for _, cb := range s.CommandBuffers {
			c, err := d.commandBuffers.Get(cb.Handle)
			if err != nil {
				return err
			}
			if c.state != stateExecutable {
				d.violate("submitted command buffer %s while %s", cb.Handle, c.state)
			}
			d.checkNotInFlight(kindCommandBuffer, cb.Handle)
			d.run(c)
			inFlight = append(inFlight, ref{kindCommandBuffer, cb.Handle})
			inFlight = append(inFlight, c.refs...)
		}
		for _, sig := range s.SignalSemaphores {
			sem, err := d.semaphores.Get(sig.Handle)
			if err != nil {
				return err
			}
			sem.signaled = true
			inFlight = append(inFlight, ref{kindSemaphore, sig.Handle})
		}
	}

	if !f.IsNil() {
		fe, err := d.fences.Get(f.Handle)
		if err != nil {
			return err
		}
		if fe.signaled || fe.pending {
			d.violate("submit with fence %s not reset", f.Handle)
		}
		d.submitSeq++
		fe.pending = true
		fe.polls = 0
		fe.seq = d.submitSeq
		fe.inFlight = inFlight
	}
	return nil
}

func (d *Device) QueueWaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("QueueWaitIdle")
	d.completeAll()
	return nil
}

func (d *Device) bufferBytes(b hal.Buffer, offset, size uint64) ([]byte, bool) {
	buf, err := d.buffers.Get(b.Handle)
	if err != nil {
		return nil, false
	}
	mem, err := d.memories.Get(buf.mem.Handle)
	if err != nil || offset+size > buf.desc.Size {
		return nil, false
	}
	start := buf.offset + offset
	return mem.data[start : start+size], true
}

func (d *Device) imageBytes(img *image, level uint32, size uint64) ([]byte, bool) {
	mem, err := d.memories.Get(img.mem.Handle)
	if err != nil {
		return nil, false
	}
	start := img.offset + mipOffset(img.desc, level)
	if start+size > uint64(len(mem.data)) {
		return nil, false
	}
	return mem.data[start : start+size], true
}

// Present

func (d *Device) SurfaceCapabilities() (hal.SurfaceCapabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SurfaceCapabilities")
	return d.opts.Capabilities, nil
}

func (d *Device) SurfaceFormats() ([]hal.SurfaceFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]hal.SurfaceFormat(nil), d.opts.Formats...), nil
}

func (d *Device) SurfacePresentModes() ([]hal.PresentMode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]hal.PresentMode(nil), d.opts.PresentModes...), nil
}

func (d *Device) CreateSwapchain(desc hal.SwapchainDesc) (hal.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateSwapchain")
	caps := d.opts.Capabilities
	if desc.Extent.Width < caps.MinImageExtent.Width || desc.Extent.Width > caps.MaxImageExtent.Width ||
		desc.Extent.Height < caps.MinImageExtent.Height || desc.Extent.Height > caps.MaxImageExtent.Height {
		d.violate("swapchain extent %dx%d outside surface limits", desc.Extent.Width, desc.Extent.Height)
	}
	anyFormat := len(d.opts.Formats) == 1 && d.opts.Formats[0].Format == hal.FormatUndefined
	if !anyFormat && !slices.Contains(d.opts.Formats, desc.Format) {
		d.violate("swapchain format %d with color space %d not reported by the surface", desc.Format.Format, desc.Format.ColorSpace)
	}
	if !desc.OldSwapchain.IsNil() {
		old, err := d.swapchains.Get(desc.OldSwapchain.Handle)
		if err != nil {
			return hal.Swapchain{}, err
		}
		old.retired = true
	}
	count := max(desc.MinImageCount, caps.MinImageCount)
	if caps.MaxImageCount > 0 {
		count = min(count, caps.MaxImageCount)
	}
	sc := &swapchain{desc: desc}
	for i := uint32(0); i < count; i++ {
		h := d.images.Insert(&image{
			desc: hal.ImageDesc{
				Type:      hal.ImageType2D,
				Format:    desc.Format.Format,
				Extent:    hal.Extent3D{Width: desc.Extent.Width, Height: desc.Extent.Height, Depth: 1},
				MipLevels: 1,
				Usage:     hal.ImageUsageColorAttachment,
			},
			swapchain: true,
		})
		sc.images = append(sc.images, hal.Image{Handle: h})
	}
	return hal.Swapchain{Handle: d.swapchains.Insert(sc)}, nil
}

func (d *Device) SwapchainImages(sc hal.Swapchain) ([]hal.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.swapchains.Get(sc.Handle)
	if err != nil {
		return nil, err
	}
	return append([]hal.Image(nil), s.images...), nil
}

func (d *Device) DestroySwapchain(sc hal.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroySwapchain")
	s, err := d.swapchains.Remove(sc.Handle)
	if err != nil {
		d.violate("DestroySwapchain: %v", err)
		return
	}
	for _, img := range s.images {
		d.checkNotInFlight(kindImage, img.Handle)
		_, _ = d.images.Remove(img.Handle)
	}
}

func (d *Device) AcquireNextImage(sc hal.Swapchain, timeout uint64, signal hal.Semaphore) (uint32, hal.SwapchainStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("AcquireNextImage")
	s, err := d.swapchains.Get(sc.Handle)
	if err != nil {
		return 0, hal.SwapchainOutOfDate, err
	}
	if s.retired {
		d.violate("acquire from retired swapchain %s", sc.Handle)
	}
	status := hal.SwapchainOptimal
	if len(d.acquireStatuses) > 0 {
		status = d.acquireStatuses[0]
		d.acquireStatuses = d.acquireStatuses[1:]
	}
	if status == hal.SwapchainOutOfDate {
		return 0, status, nil
	}
	sem, err := d.semaphores.Get(signal.Handle)
	if err != nil {
		return 0, status, err
	}
	if sem.signaled {
		d.violate("acquire signals semaphore %s already signaled", signal.Handle)
	}
	sem.signaled = true
	index := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	return index, status, nil
}

func (d *Device) QueuePresent(sc hal.Swapchain, imageIndex uint32, wait []hal.Semaphore) (hal.SwapchainStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("QueuePresent")
	s, err := d.swapchains.Get(sc.Handle)
	if err != nil {
		return hal.SwapchainOutOfDate, err
	}
	if int(imageIndex) >= len(s.images) {
		return hal.SwapchainOutOfDate, core.ErrOutOfBounds
	}
	for _, w := range wait {
		sem, err := d.semaphores.Get(w.Handle)
		if err != nil {
			return hal.SwapchainOutOfDate, err
		}
		if !sem.signaled {
			d.violate("present waits on unsignaled semaphore %s", w.Handle)
		}
		sem.signaled = false
	}
	status := hal.SwapchainOptimal
	if len(d.presentStatuses) > 0 {
		status = d.presentStatuses[0]
		d.presentStatuses = d.presentStatuses[1:]
	}
	return status, nil
}

// Pipelines

func (d *Device) CreateShaderModule(code []uint32) (hal.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateShaderModule")
	return hal.ShaderModule{Handle: d.shaders.Insert(len(code))}, nil
}

func (d *Device) DestroyShaderModule(m hal.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyShaderModule")
	if _, err := d.shaders.Remove(m.Handle); err != nil {
		d.violate("DestroyShaderModule: %v", err)
	}
}

func (d *Device) CreateRenderPass(desc hal.RenderPassDesc) (hal.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateRenderPass")
	return hal.RenderPass{Handle: d.renderPasses.Insert(desc)}, nil
}

func (d *Device) DestroyRenderPass(rp hal.RenderPass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyRenderPass")
	d.checkNotInFlight(kindRenderPass, rp.Handle)
	if _, err := d.renderPasses.Remove(rp.Handle); err != nil {
		d.violate("DestroyRenderPass: %v", err)
	}
}

func (d *Device) CreateFramebuffer(desc hal.FramebufferDesc) (hal.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateFramebuffer")
	if _, err := d.renderPasses.Get(desc.RenderPass.Handle); err != nil {
		return hal.Framebuffer{}, err
	}
	for _, v := range desc.Attachments {
		if _, err := d.views.Get(v.Handle); err != nil {
			return hal.Framebuffer{}, err
		}
	}
	return hal.Framebuffer{Handle: d.framebuffers.Insert(desc)}, nil
}

func (d *Device) DestroyFramebuffer(fb hal.Framebuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyFramebuffer")
	d.checkNotInFlight(kindFramebuffer, fb.Handle)
	if _, err := d.framebuffers.Remove(fb.Handle); err != nil {
		d.violate("DestroyFramebuffer: %v", err)
	}
}

func (d *Device) CreatePipelineLayout(desc hal.PipelineLayoutDesc) (hal.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreatePipelineLayout")
	return hal.PipelineLayout{Handle: d.layouts.Insert(desc)}, nil
}

func (d *Device) DestroyPipelineLayout(l hal.PipelineLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyPipelineLayout")
	d.checkNotInFlight(kindLayout, l.Handle)
	if _, err := d.layouts.Remove(l.Handle); err != nil {
		d.violate("DestroyPipelineLayout: %v", err)
	}
}

func (d *Device) CreateGraphicsPipeline(desc hal.GraphicsPipelineDesc) (hal.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateGraphicsPipeline")
	return hal.Pipeline{Handle: d.pipelines.Insert(desc)}, nil
}

func (d *Device) CreateComputePipeline(desc hal.ComputePipelineDesc) (hal.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateComputePipeline")
	return hal.Pipeline{Handle: d.pipelines.Insert(desc)}, nil
}

func (d *Device) DestroyPipeline(p hal.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyPipeline")
	d.checkNotInFlight(kindPipeline, p.Handle)
	if _, err := d.pipelines.Remove(p.Handle); err != nil {
		d.violate("DestroyPipeline: %v", err)
	}
}

// GraphicsPipelineExtent returns the viewport extent a pipeline was built with.
func (d *Device) GraphicsPipelineExtent(p hal.Pipeline) (hal.Extent2D, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.pipelines.Get(p.Handle)
	if err != nil {
		return hal.Extent2D{}, err
	}
	desc, ok := v.(hal.GraphicsPipelineDesc)
	if !ok {
		return hal.Extent2D{}, core.ErrStaleHandle
	}
	return desc.Extent, nil
}

// Descriptors

func (d *Device) CreateDescriptorSetLayout(bindings []hal.DescriptorBinding) (hal.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateDescriptorSetLayout")
	return hal.DescriptorSetLayout{Handle: d.setLayouts.Insert(append([]hal.DescriptorBinding(nil), bindings...))}, nil
}

func (d *Device) DestroyDescriptorSetLayout(l hal.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyDescriptorSetLayout")
	if _, err := d.setLayouts.Remove(l.Handle); err != nil {
		d.violate("DestroyDescriptorSetLayout: %v", err)
	}
}

func (d *Device) CreateDescriptorPool(desc hal.DescriptorPoolDesc) (hal.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateDescriptorPool")
	return hal.DescriptorPool{Handle: d.descPools.Insert(&descriptorPool{desc: desc})}, nil
}

// DestroyDescriptorPool also frees the sets allocated from the pool.
func (d *Device) DestroyDescriptorPool(p hal.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyDescriptorPool")
	if _, err := d.descPools.Remove(p.Handle); err != nil {
		d.violate("DestroyDescriptorPool: %v", err)
		return
	}
	var owned []hal.Handle
	d.descSets.Each(func(h hal.Handle, set *descriptorSet) {
		if set.pool == p.Handle {
			owned = append(owned, h)
		}
	})
	for _, h := range owned {
		_, _ = d.descSets.Remove(h)
	}
}

// AllocateDescriptorSet fails like a real pool once MaxSets sets are live.
func (d *Device) AllocateDescriptorSet(p hal.DescriptorPool, layout hal.DescriptorSetLayout) (hal.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("AllocateDescriptorSet")
	pool, err := d.descPools.Get(p.Handle)
	if err != nil {
		return hal.DescriptorSet{}, err
	}
	if _, err := d.setLayouts.Get(layout.Handle); err != nil {
		return hal.DescriptorSet{}, err
	}
	if pool.live >= pool.desc.MaxSets {
		return hal.DescriptorSet{}, errors.Wrapf(core.ErrOutOfDeviceMemory, "descriptor pool %s has %d sets", p.Handle, pool.live)
	}
	pool.live++
	return hal.DescriptorSet{Handle: d.descSets.Insert(&descriptorSet{pool: p.Handle})}, nil
}

func (d *Device) FreeDescriptorSet(p hal.DescriptorPool, set hal.DescriptorSet) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("FreeDescriptorSet")
	pool, err := d.descPools.Get(p.Handle)
	if err != nil {
		return err
	}
	if !pool.desc.FreeSets {
		d.violate("FreeDescriptorSet on pool %s created without FreeSets", p.Handle)
	}
	s, err := d.descSets.Get(set.Handle)
	if err != nil {
		return err
	}
	if s.pool != p.Handle {
		d.violate("FreeDescriptorSet: set %s belongs to pool %s, not %s", set.Handle, s.pool, p.Handle)
	}
	d.checkNotInFlight(kindDescriptorSet, set.Handle)
	if _, err := d.descSets.Remove(set.Handle); err != nil {
		return err
	}
	pool.live--
	return nil
}

func (d *Device) UpdateDescriptorSet(set hal.DescriptorSet, writes []hal.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("UpdateDescriptorSet")
	s, err := d.descSets.Get(set.Handle)
	if err != nil {
		d.violate("UpdateDescriptorSet: %v", err)
		return
	}
	s.writes = append([]hal.DescriptorWrite(nil), writes...)
}

var _ hal.Device = (*Device)(nil)
