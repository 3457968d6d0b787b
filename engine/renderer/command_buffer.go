package renderer

import (
	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

// SingleUseCommand is a one-shot command buffer from the transient pool,
// submitted with its own fence.
type SingleUseCommand struct {
	dc     *DeviceContext
	Buffer hal.CommandBuffer
	fence  hal.Fence
}

func (su *SingleUseCommand) Fence() hal.Fence {
	return su.fence
}

/**
 * Allocates and begins recording a one-shot command buffer. The transient
 * pool stays locked until EndSingleUse, the caller records in between.
 */
func (dc *DeviceContext) AllocateAndBeginSingleUse() (*SingleUseCommand, error) {
	dc.transientMu.Lock()
	bufs, err := dc.Device.AllocateCommandBuffers(dc.transientPool, hal.CommandBufferLevelPrimary, 1)
	if err != nil {
		dc.transientMu.Unlock()
		return nil, errors.Wrap(err, "allocate single use command buffer")
	}
	su := &SingleUseCommand{dc: dc, Buffer: bufs[0]}
	if err := dc.Device.BeginCommandBuffer(su.Buffer, hal.CommandBufferBegin{OneTimeSubmit: true}); err != nil {
		dc.Device.FreeCommandBuffers(dc.transientPool, bufs)
		dc.transientMu.Unlock()
		return nil, errors.Wrap(err, "begin single use command buffer")
	}
	return su, nil
}

/**
 * Ends recording and submits with a new fence. The caller waits on the fence
 * and then calls Free.
 */
func (su *SingleUseCommand) EndSingleUse() error {
	dev := su.dc.Device
	err := dev.EndCommandBuffer(su.Buffer)
	su.dc.transientMu.Unlock()
	if err != nil {
		su.free()
		return errors.Wrap(err, "end single use command buffer")
	}

	fence, err := dev.CreateFence(false)
	if err != nil {
		su.free()
		return errors.Wrap(err, "create upload fence")
	}
	su.fence = fence

	submit := hal.SubmitInfo{CommandBuffers: []hal.CommandBuffer{su.Buffer}}
	if err := su.dc.Submit([]hal.SubmitInfo{submit}, fence); err != nil {
		su.Free()
		return err
	}
	return nil
}

// Free releases the fence and the command buffer. The fence must be signaled.
func (su *SingleUseCommand) Free() {
	if !su.fence.IsNil() {
		su.dc.Device.DestroyFence(su.fence)
		su.fence = hal.Fence{}
	}
	su.free()
}

func (su *SingleUseCommand) free() {
	su.dc.transientMu.Lock()
	defer su.dc.transientMu.Unlock()
	su.dc.Device.FreeCommandBuffers(su.dc.transientPool, []hal.CommandBuffer{su.Buffer})
}
