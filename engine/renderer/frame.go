package renderer

import (
	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

// Drawable records its draw into a secondary command buffer that inherits
// the frame's render pass.
type Drawable interface {
	ID() core.ID
	RecordDraw(cb hal.CommandBuffer, pipeline hal.Pipeline, push []byte)
}

// PrePass records work into the primary command buffer before the render
// pass begins. After recording, exactly one of Submitted or Abandoned is
// called for the frame.
type PrePass interface {
	RecordPrePass(cb hal.CommandBuffer)
	Submitted()
	Abandoned()
}

// recordKey identifies what a secondary buffer was recorded with. A buffer is
// re-recorded only when its key changes.
type recordKey struct {
	drawable    core.ID
	pipeline    hal.Pipeline
	framebuffer hal.Framebuffer
	push        string
}

// secondaryPool holds the secondary buffers of one slot for one swapchain
// image. It only grows.
type secondaryPool struct {
	buffers []hal.CommandBuffer
	keys    []recordKey
}

// frameSlot is one of the two sets of per-frame objects. None of them may be
// reset or destroyed while fence is unsignaled.
type frameSlot struct {
	imageAcquired  hal.Semaphore
	renderFinished hal.Semaphore
	fence          hal.Fence
	pool           hal.CommandPool
	primary        hal.CommandBuffer
	secondaries    map[uint32]*secondaryPool

	release releaser
}

func newFrameSlot(dev hal.Device) (*frameSlot, error) {
	var r releaser
	defer r.release()

	slot := &frameSlot{secondaries: make(map[uint32]*secondaryPool)}

	var err error
	if slot.imageAcquired, err = dev.CreateSemaphore(); err != nil {
		return nil, errors.Wrap(err, "create image acquired semaphore")
	}
	r.push(func() { dev.DestroySemaphore(slot.imageAcquired) })

	if slot.renderFinished, err = dev.CreateSemaphore(); err != nil {
		return nil, errors.Wrap(err, "create render finished semaphore")
	}
	r.push(func() { dev.DestroySemaphore(slot.renderFinished) })

	// Signaled so the first wait on an unused slot returns at once.
	if slot.fence, err = dev.CreateFence(true); err != nil {
		return nil, errors.Wrap(err, "create frame fence")
	}
	r.push(func() { dev.DestroyFence(slot.fence) })

	if slot.pool, err = dev.CreateCommandPool(hal.CommandPoolDesc{ResetCommandBuffer: true}); err != nil {
		return nil, errors.Wrap(err, "create frame command pool")
	}
	// Destroying the pool frees every buffer allocated from it.
	r.push(func() { dev.DestroyCommandPool(slot.pool) })

	buffers, err := dev.AllocateCommandBuffers(slot.pool, hal.CommandBufferLevelPrimary, 1)
	if err != nil {
		return nil, errors.Wrap(err, "allocate primary command buffer")
	}
	slot.primary = buffers[0]

	slot.release = r.take()
	return slot, nil
}

func (f *frameSlot) destroy() {
	f.release.release()
}

// secondaryCount returns the number of secondary buffers allocated by the
// slot across all swapchain images.
func (f *frameSlot) secondaryCount() int {
	n := 0
	for _, sp := range f.secondaries {
		n += len(sp.buffers)
	}
	return n
}

// recordSecondaries returns one secondary buffer per drawable for the given
// image, recording only those whose key changed. The slot's fence must have
// been waited on.
func (f *frameSlot) recordSecondaries(
	dev hal.Device,
	imageIndex uint32,
	drawables []Drawable,
	inheritance hal.CommandBufferInheritance,
	pipeline hal.Pipeline,
	push []byte,
) ([]hal.CommandBuffer, error) {
	sp, ok := f.secondaries[imageIndex]
	if !ok {
		sp = &secondaryPool{}
		f.secondaries[imageIndex] = sp
	}

	if missing := len(drawables) - len(sp.buffers); missing > 0 {
		buffers, err := dev.AllocateCommandBuffers(f.pool, hal.CommandBufferLevelSecondary, uint32(missing))
		if err != nil {
			return nil, errors.Wrap(err, "allocate secondary command buffers")
		}
		sp.buffers = append(sp.buffers, buffers...)
		sp.keys = append(sp.keys, make([]recordKey, missing)...)
	}

	for i, d := range drawables {
		key := recordKey{
			drawable:    d.ID(),
			pipeline:    pipeline,
			framebuffer: inheritance.Framebuffer,
			push:        string(push),
		}
		if sp.keys[i] == key {
			continue
		}

		cb := sp.buffers[i]
		sp.keys[i] = recordKey{}
		if err := dev.BeginCommandBuffer(cb, hal.CommandBufferBegin{Inheritance: &inheritance}); err != nil {
			return nil, errors.Wrap(err, "begin secondary command buffer")
		}
		d.RecordDraw(cb, pipeline, push)
		if err := dev.EndCommandBuffer(cb); err != nil {
			return nil, errors.Wrap(err, "end secondary command buffer")
		}
		sp.keys[i] = key
	}
	return sp.buffers[:len(drawables)], nil
}
