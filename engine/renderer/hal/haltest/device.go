// Package haltest provides an in-memory hal.Device. It executes transfer
// commands on the CPU at submit time, tracks fence and semaphore state and
// records every call so tests can assert on ordering.
package haltest

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

type memory struct {
	data     []byte
	typeIdx  uint32
	mapped   bool
	released bool
}

type buffer struct {
	desc   hal.BufferDesc
	mem    hal.Memory
	offset uint64
}

type image struct {
	desc      hal.ImageDesc
	mem       hal.Memory
	offset    uint64
	layout    hal.ImageLayout
	swapchain bool
}

type fence struct {
	signaled bool
	pending  bool
	polls    int
	seq      uint64
	// Objects used by the submission this fence guards.
	inFlight []ref
}

// ref names an object of a given kind. Handles of different arenas may be
// equal, so the kind is part of the identity.
type ref struct {
	kind string
	h    hal.Handle
}

type semaphore struct {
	signaled bool
}

type commandBuffer struct {
	pool     hal.CommandPool
	level    hal.CommandBufferLevel
	begin    hal.CommandBufferBegin
	commands []command
	refs     []ref
	state    string
}

type command struct {
	name string
	run  func(d *Device)
}

type swapchain struct {
	desc    hal.SwapchainDesc
	images  []hal.Image
	next    uint32
	retired bool
}

// Barrier is a pipeline barrier recorded into a command buffer.
type descriptorPool struct {
	desc hal.DescriptorPoolDesc
	live uint32
}

type descriptorSet struct {
	pool   hal.Handle
	writes []hal.DescriptorWrite
}

type Barrier struct {
	SrcStage hal.PipelineStage
	DstStage hal.PipelineStage
	hal.ImageBarrier
}

type Options struct {
	Capabilities hal.SurfaceCapabilities
	Formats      []hal.SurfaceFormat
	PresentModes []hal.PresentMode
	// FenceSignalAfterPolls is the number of FenceStatus calls a submitted
	// fence stays pending for. WaitForFences always completes it.
	FenceSignalAfterPolls int
}

func DefaultOptions() Options {
	return Options{
		Capabilities: hal.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  8,
			CurrentExtent:  hal.Extent2D{Width: 1440, Height: 810},
			MinImageExtent: hal.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: hal.Extent2D{Width: 4096, Height: 4096},
		},
		Formats: []hal.SurfaceFormat{
			{Format: hal.FormatB8G8R8A8Srgb, ColorSpace: hal.ColorSpaceSrgbNonlinear},
			{Format: hal.FormatB8G8R8A8Unorm, ColorSpace: hal.ColorSpaceSrgbNonlinear},
		},
		PresentModes: []hal.PresentMode{hal.PresentModeFifo, hal.PresentModeMailbox},
	}
}

type Device struct {
	mu   sync.Mutex
	opts Options

	memories       *hal.Arena[*memory]
	buffers        *hal.Arena[*buffer]
	images         *hal.Arena[*image]
	views          *hal.Arena[hal.ImageViewDesc]
	samplers       *hal.Arena[struct{}]
	fences         *hal.Arena[*fence]
	semaphores     *hal.Arena[*semaphore]
	pools          *hal.Arena[hal.CommandPoolDesc]
	commandBuffers *hal.Arena[*commandBuffer]
	swapchains     *hal.Arena[*swapchain]
	shaders        *hal.Arena[int]
	renderPasses   *hal.Arena[hal.RenderPassDesc]
	framebuffers   *hal.Arena[hal.FramebufferDesc]
	layouts        *hal.Arena[hal.PipelineLayoutDesc]
	pipelines      *hal.Arena[interface{}]
	setLayouts     *hal.Arena[[]hal.DescriptorBinding]
	descPools      *hal.Arena[*descriptorPool]
	descSets       *hal.Arena[*descriptorSet]

	calls         []string
	counts        map[string]int
	violations    []string
	barriers      []Barrier
	clearColors   [][4]float32
	pushConstants [][]byte
	dispatches    int
	draws         int
	submitSeq     uint64

	acquireStatuses []hal.SwapchainStatus
	presentStatuses []hal.SwapchainStatus
	submitErrs      []error
}

func NewDevice() *Device {
	return NewDeviceWithOptions(DefaultOptions())
}

func NewDeviceWithOptions(opts Options) *Device {
	return &Device{
		opts:           opts,
		memories:       hal.NewArena[*memory](),
		buffers:        hal.NewArena[*buffer](),
		images:         hal.NewArena[*image](),
		views:          hal.NewArena[hal.ImageViewDesc](),
		samplers:       hal.NewArena[struct{}](),
		fences:         hal.NewArena[*fence](),
		semaphores:     hal.NewArena[*semaphore](),
		pools:          hal.NewArena[hal.CommandPoolDesc](),
		commandBuffers: hal.NewArena[*commandBuffer](),
		swapchains:     hal.NewArena[*swapchain](),
		shaders:        hal.NewArena[int](),
		renderPasses:   hal.NewArena[hal.RenderPassDesc](),
		framebuffers:   hal.NewArena[hal.FramebufferDesc](),
		layouts:        hal.NewArena[hal.PipelineLayoutDesc](),
		pipelines:      hal.NewArena[interface{}](),
		setLayouts:     hal.NewArena[[]hal.DescriptorBinding](),
		descPools:      hal.NewArena[*descriptorPool](),
		descSets:       hal.NewArena[*descriptorSet](),
		counts:         make(map[string]int),
	}
}

// Test controls.

// SetSurface changes what the surface reports, as a window resize would.
func (d *Device) SetSurface(caps hal.SurfaceCapabilities) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts.Capabilities = caps
}

// QueueAcquireStatus scripts the status of upcoming AcquireNextImage calls.
func (d *Device) QueueAcquireStatus(statuses ...hal.SwapchainStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquireStatuses = append(d.acquireStatuses, statuses...)
}

// FailSubmits makes the next QueueSubmit calls return errs in order without
// touching any object.
func (d *Device) FailSubmits(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitErrs = append(d.submitErrs, errs...)
}

// QueuePresentStatus scripts the status of upcoming QueuePresent calls.
func (d *Device) QueuePresentStatus(statuses ...hal.SwapchainStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentStatuses = append(d.presentStatuses, statuses...)
}

// Inspection.

// Calls returns the names of every Device method called, in order.
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *Device) Count(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[name]
}

// Violations lists misuse a validation layer would report.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Barriers returns the image barriers executed so far.
func (d *Device) Barriers() []Barrier {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Barrier(nil), d.barriers...)
}

func (d *Device) ClearColors() [][4]float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][4]float32(nil), d.clearColors...)
}

func (d *Device) PushConstants() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.pushConstants...)
}

func (d *Device) Dispatches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatches
}

func (d *Device) Draws() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draws
}

func (d *Device) FramebufferExtent(fb hal.Framebuffer) (hal.Extent2D, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	desc, err := d.framebuffers.Get(fb.Handle)
	return desc.Extent, err
}

func (d *Device) SwapchainDesc(sc hal.Swapchain) (hal.SwapchainDesc, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.swapchains.Get(sc.Handle)
	if err != nil {
		return hal.SwapchainDesc{}, err
	}
	return s.desc, nil
}

func (d *Device) ImageLayout(img hal.Image) (hal.ImageLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, err := d.images.Get(img.Handle)
	if err != nil {
		return hal.ImageLayoutUndefined, err
	}
	return i.layout, nil
}

func (d *Device) FenceSignaled(f hal.Fence) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	fe, err := d.fences.Get(f.Handle)
	return err == nil && fe.signaled
}

// Live returns the number of objects not yet destroyed. Swapchain images are
// owned by their swapchain and not counted.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	swapImages := 0
	d.images.Each(func(_ hal.Handle, i *image) {
		if i.swapchain {
			swapImages++
		}
	})
	return d.memories.Len() + d.buffers.Len() + d.images.Len() - swapImages + d.views.Len() +
		d.samplers.Len() + d.fences.Len() + d.semaphores.Len() + d.pools.Len() +
		d.commandBuffers.Len() + d.swapchains.Len() + d.shaders.Len() + d.renderPasses.Len() +
		d.framebuffers.Len() + d.layouts.Len() + d.pipelines.Len() + d.setLayouts.Len() +
		d.descPools.Len() + d.descSets.Len()
}

// LiveCommandBuffers counts allocated command buffers of the given level.
func (d *Device) LiveCommandBuffers(level hal.CommandBufferLevel) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	d.commandBuffers.Each(func(_ hal.Handle, cb *commandBuffer) {
		if cb.level == level {
			n++
		}
	})
	return n
}

const (
	kindBuffer        = "buffer"
	kindImage         = "image"
	kindView          = "image view"
	kindSemaphore     = "semaphore"
	kindCommandBuffer = "command buffer"
	kindRenderPass    = "render pass"
	kindFramebuffer   = "framebuffer"
	kindPipeline      = "pipeline"
	kindLayout        = "pipeline layout"
	kindDescriptorSet = "descriptor set"
)

func (d *Device) record(name string) {
	d.calls = append(d.calls, name)
	d.counts[name]++
}

func (d *Device) violate(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

// checkNotInFlight reports destruction or reuse of an object a pending
// submission uses.
func (d *Device) checkNotInFlight(kind string, h hal.Handle) {
	target := ref{kind: kind, h: h}
	d.fences.Each(func(_ hal.Handle, f *fence) {
		if !f.pending {
			return
		}
		for _, r := range f.inFlight {
			if r == target {
				d.violate("%s %s touched while in use by a pending submission", kind, h)
				return
			}
		}
	})
}

func (d *Device) Name() string { return "haltest" }

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("WaitIdle")
	d.completeAll()
	return nil
}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Destroy")
}

func (d *Device) completeAll() {
	d.completeUpTo(d.submitSeq)
}

// completeUpTo retires every submission up to seq. The single queue executes
// submissions in order, so a signaled fence implies all earlier ones are.
func (d *Device) completeUpTo(seq uint64) {
	d.fences.Each(func(_ hal.Handle, f *fence) {
		if f.pending && f.seq <= seq {
			f.pending = false
			f.signaled = true
			f.inFlight = nil
		}
	})
}

// Sync

func (d *Device) CreateFence(signaled bool) (hal.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateFence")
	return hal.Fence{Handle: d.fences.Insert(&fence{signaled: signaled})}, nil
}

func (d *Device) DestroyFence(f hal.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyFence")
	fe, err := d.fences.Get(f.Handle)
	if err != nil {
		d.violate("DestroyFence: %v", err)
		return
	}
	if fe.pending {
		d.violate("fence %s destroyed while pending", f.Handle)
	}
	_, _ = d.fences.Remove(f.Handle)
}

func (d *Device) WaitForFences(fences []hal.Fence, timeout uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("WaitForFences")
	for _, f := range fences {
		fe, err := d.fences.Get(f.Handle)
		if err != nil {
			return err
		}
		if fe.pending {
			// The GPU finishes the submission.
			d.completeUpTo(fe.seq)
		}
		if !fe.signaled {
			// Never submitted, a real wait would hang.
			return core.ErrFenceTimeout
		}
	}
	return nil
}

func (d *Device) ResetFences(fences []hal.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ResetFences")
	for _, f := range fences {
		fe, err := d.fences.Get(f.Handle)
		if err != nil {
			return err
		}
		if fe.pending {
			d.violate("fence %s reset while pending", f.Handle)
		}
		fe.signaled = false
		fe.polls = 0
	}
	return nil
}

func (d *Device) FenceStatus(f hal.Fence) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("FenceStatus")
	fe, err := d.fences.Get(f.Handle)
	if err != nil {
		return false, err
	}
	if fe.pending {
		fe.polls++
		if fe.polls > d.opts.FenceSignalAfterPolls {
			d.completeUpTo(fe.seq)
		}
	}
	return fe.signaled, nil
}

func (d *Device) CreateSemaphore() (hal.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateSemaphore")
	return hal.Semaphore{Handle: d.semaphores.Insert(&semaphore{})}, nil
}

func (d *Device) DestroySemaphore(s hal.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroySemaphore")
	d.checkNotInFlight(kindSemaphore, s.Handle)
	if _, err := d.semaphores.Remove(s.Handle); err != nil {
		d.violate("DestroySemaphore: %v", err)
	}
}

// Memory

func (d *Device) MemoryProperties() hal.MemoryProperties {
	return hal.MemoryProperties{
		Types: []hal.MemoryType{
			{Properties: hal.MemoryPropertyDeviceLocal, HeapIndex: 0},
			{Properties: hal.MemoryPropertyHostVisible | hal.MemoryPropertyHostCoherent, HeapIndex: 1},
			{Properties: hal.MemoryPropertyHostVisible | hal.MemoryPropertyHostCoherent | hal.MemoryPropertyHostCached, HeapIndex: 1},
		},
		HeapSizes: []uint64{1 << 30, 1 << 30},
	}
}

func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (hal.Memory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("AllocateMemory")
	if int(typeIndex) >= len(d.MemoryProperties().Types) {
		return hal.Memory{}, core.ErrNoMemoryType
	}
	return hal.Memory{Handle: d.memories.Insert(&memory{data: make([]byte, size), typeIdx: typeIndex})}, nil
}

func (d *Device) FreeMemory(m hal.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("FreeMemory")
	mem, err := d.memories.Remove(m.Handle)
	if err != nil {
		d.violate("FreeMemory: %v", err)
		return
	}
	if mem.mapped {
		d.violate("memory %s freed while mapped", m.Handle)
	}
	mem.released = true
}

func (d *Device) MapMemory(m hal.Memory, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("MapMemory")
	mem, err := d.memories.Get(m.Handle)
	if err != nil {
		return nil, err
	}
	if d.MemoryProperties().Types[mem.typeIdx].Properties&hal.MemoryPropertyHostVisible == 0 {
		d.violate("memory %s mapped but not host visible", m.Handle)
	}
	if offset+size > uint64(len(mem.data)) {
		return nil, core.ErrOutOfBounds
	}
	mem.mapped = true
	return mem.data[offset : offset+size : offset+size], nil
}

func (d *Device) UnmapMemory(m hal.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("UnmapMemory")
	if mem, err := d.memories.Get(m.Handle); err == nil {
		mem.mapped = false
	}
}

// Resources

func (d *Device) CreateBuffer(desc hal.BufferDesc) (hal.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateBuffer")
	return hal.Buffer{Handle: d.buffers.Insert(&buffer{desc: desc})}, nil
}

func (d *Device) BufferMemoryRequirements(b hal.Buffer) (hal.MemoryRequirements, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, err := d.buffers.Get(b.Handle)
	if err != nil {
		return hal.MemoryRequirements{}, err
	}
	return hal.MemoryRequirements{Size: buf.desc.Size, Alignment: 16, TypeBits: 0b111}, nil
}

func (d *Device) BindBufferMemory(b hal.Buffer, m hal.Memory, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("BindBufferMemory")
	buf, err := d.buffers.Get(b.Handle)
	if err != nil {
		return err
	}
	if _, err := d.memories.Get(m.Handle); err != nil {
		return err
	}
	buf.mem, buf.offset = m, offset
	return nil
}

func (d *Device) DestroyBuffer(b hal.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyBuffer")
	d.checkNotInFlight(kindBuffer, b.Handle)
	if _, err := d.buffers.Remove(b.Handle); err != nil {
		d.violate("DestroyBuffer: %v", err)
	}
}

func imageSize(desc hal.ImageDesc) uint64 {
	var size uint64
	for level := uint32(0); level < max(desc.MipLevels, 1); level++ {
		size += mipExtent(desc.Extent, level).Texels() * desc.Format.BytesPerTexel()
	}
	return size
}

func mipExtent(e hal.Extent3D, level uint32) hal.Extent3D {
	return hal.Extent3D{
		Width:  max(e.Width>>level, 1),
		Height: max(e.Height>>level, 1),
		Depth:  max(e.Depth>>level, 1),
	}
}

func mipOffset(desc hal.ImageDesc, level uint32) uint64 {
	var off uint64
	for l := uint32(0); l < level; l++ {
		off += mipExtent(desc.Extent, l).Texels() * desc.Format.BytesPerTexel()
	}
	return off
}

func (d *Device) CreateImage(desc hal.ImageDesc) (hal.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateImage")
	return hal.Image{Handle: d.images.Insert(&image{desc: desc, layout: hal.ImageLayoutUndefined})}, nil
}

func (d *Device) ImageMemoryRequirements(i hal.Image) (hal.MemoryRequirements, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, err := d.images.Get(i.Handle)
	if err != nil {
		return hal.MemoryRequirements{}, err
	}
	// Images only live in device local memory.
	return hal.MemoryRequirements{Size: imageSize(img.desc), Alignment: 256, TypeBits: 0b001}, nil
}

func (d *Device) BindImageMemory(i hal.Image, m hal.Memory, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("BindImageMemory")
	img, err := d.images.Get(i.Handle)
	if err != nil {
		return err
	}
	if _, err := d.memories.Get(m.Handle); err != nil {
		return err
	}
	img.mem, img.offset = m, offset
	return nil
}

func (d *Device) DestroyImage(i hal.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyImage")
	d.checkNotInFlight(kindImage, i.Handle)
	if _, err := d.images.Remove(i.Handle); err != nil {
		d.violate("DestroyImage: %v", err)
	}
}

func (d *Device) CreateImageView(desc hal.ImageViewDesc) (hal.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateImageView")
	if _, err := d.images.Get(desc.Image.Handle); err != nil {
		return hal.ImageView{}, err
	}
	return hal.ImageView{Handle: d.views.Insert(desc)}, nil
}

func (d *Device) DestroyImageView(v hal.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroyImageView")
	d.checkNotInFlight(kindView, v.Handle)
	if _, err := d.views.Remove(v.Handle); err != nil {
		d.violate("DestroyImageView: %v", err)
	}
}

func (d *Device) CreateSampler() (hal.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CreateSampler")
	return hal.Sampler{Handle: d.samplers.Insert(struct{}{})}, nil
}

func (d *Device) DestroySampler(s hal.Sampler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("DestroySampler")
	if _, err := d.samplers.Remove(s.Handle); err != nil {
		d.violate("DestroySampler: %v", err)
	}
}
