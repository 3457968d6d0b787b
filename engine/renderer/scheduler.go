package renderer

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

const framesInFlight = 2

type FrameResult int

const (
	FrameDrawn FrameResult = iota
	// Nothing was presented: the window is minimized or the swapchain went
	// out of date on acquire.
	FrameSkipped
)

func (r FrameResult) String() string {
	if r == FrameDrawn {
		return "drawn"
	}
	return "skipped"
}

var clearColor = [4]float32{0, 0, 0, 1}

// FrameScheduler runs the double buffered present loop. While the GPU
// executes the frame submitted from one slot, the CPU records the next frame
// into the other.
//
// The swapchain state, the slots and the parity are one unit guarded by mu,
// so drawables may be registered from other goroutines.
type FrameScheduler struct {
	dc         *DeviceContext
	swapchains *SwapchainManager
	window     Window

	mu              sync.Mutex
	state           *SwapchainState
	slots           [framesInFlight]*frameSlot
	parity          int
	recreatePending bool
	drawables       []Drawable
	prePasses       []PrePass
	push            []byte
	destroyed       bool
}

func NewFrameScheduler(dc *DeviceContext, swapchains *SwapchainManager, window Window) (*FrameScheduler, error) {
	var r releaser
	defer r.release()

	s := &FrameScheduler{dc: dc, swapchains: swapchains, window: window}

	state, err := swapchains.Create()
	if err != nil {
		return nil, err
	}
	r.push(func() { swapchains.Destroy(s.state) })
	s.state = state

	for i := range s.slots {
		slot, err := newFrameSlot(dc.Device)
		if err != nil {
			return nil, err
		}
		r.push(slot.destroy)
		s.slots[i] = slot
	}

	r.take()
	return s, nil
}

// Register adds a drawable to every following frame.
func (s *FrameScheduler) Register(d Drawable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawables = append(s.drawables, d)
}

// Unregister removes a drawable and waits until no submitted frame uses it,
// after which its resources may be destroyed.
func (s *FrameScheduler) Unregister(id core.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.drawables {
		if d.ID() != id {
			continue
		}
		s.drawables = append(s.drawables[:i], s.drawables[i+1:]...)
		return true, s.waitInFlight()
	}
	return false, nil
}

func (s *FrameScheduler) Drawables() []Drawable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Drawable(nil), s.drawables...)
}

func (s *FrameScheduler) AddPrePass(p PrePass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prePasses = append(s.prePasses, p)
}

// SetPushConstants sets the bytes pushed to every drawable from the next
// frame on.
func (s *FrameScheduler) SetPushConstants(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.push = append(s.push[:0], data...)
}

// RequestRecreate schedules a swapchain rebuild before the next acquire, as
// after a resize or a pipeline change.
func (s *FrameScheduler) RequestRecreate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recreatePending = true
}

// Swapchain returns the current swapchain state. It is replaced, not
// modified, on recreation.
func (s *FrameScheduler) Swapchain() *SwapchainState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// waitInFlight waits for the slot submitted last. Submissions complete in
// order, so the other slot is then idle too.
func (s *FrameScheduler) waitInFlight() error {
	return s.dc.WaitFence(s.slots[s.parity^1].fence)
}

func (s *FrameScheduler) skip() (FrameResult, error) {
	s.dc.Metrics.FrameSkipped()
	return FrameSkipped, nil
}

func (s *FrameScheduler) recreate() error {
	if err := s.waitInFlight(); err != nil {
		return err
	}
	state, err := s.swapchains.Recreate(s.state)
	if err != nil {
		return err
	}
	s.state = state
	s.recreatePending = false
	return nil
}

// DrawFrame acquires an image, records and submits the frame and presents
// it. Stale swapchains are handled here and never reach the caller; any
// error returned is fatal.
func (s *FrameScheduler) DrawFrame() (FrameResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return FrameSkipped, core.ErrClosed
	}
	dev := s.dc.Device

	if w, h := s.window.FramebufferSize(); w == 0 || h == 0 {
		// Keep the rebuild for when the window comes back.
		s.recreatePending = true
		return s.skip()
	}

	if s.recreatePending {
		extent, err := s.swapchains.SurfaceExtent()
		if err != nil {
			return FrameSkipped, err
		}
		if extent.IsZero() {
			return s.skip()
		}
		if err := s.recreate(); err != nil {
			return FrameSkipped, err
		}
	}

	slot := s.slots[s.parity]
	state := s.state

	imageIndex, status, err := dev.AcquireNextImage(state.Swapchain, timeoutInfinite, slot.imageAcquired)
	if err != nil {
		return FrameSkipped, errors.Wrap(err, "acquire next image")
	}
	switch status {
	case hal.SwapchainOutOfDate:
		core.LogDebug("Swapchain out of date on acquire, skipping frame.")
		s.recreatePending = true
		return s.skip()
	case hal.SwapchainSuboptimal:
		s.recreatePending = true
	}

	// The GPU is done with everything this slot submitted last time.
	if err := s.dc.WaitFence(slot.fence); err != nil {
		return FrameSkipped, err
	}
	if err := dev.ResetFences([]hal.Fence{slot.fence}); err != nil {
		return FrameSkipped, errors.Wrap(err, "reset frame fence")
	}
	s.parity ^= 1

	if err := s.recordAndSubmit(slot, state, imageIndex); err != nil {
		s.abandon(slot)
		return FrameSkipped, err
	}
	for _, p := range s.prePasses {
		p.Submitted()
	}

	status, err = s.dc.Present(state.Swapchain, imageIndex, []hal.Semaphore{slot.renderFinished})
	if err != nil {
		return FrameSkipped, errors.Wrap(err, "present")
	}
	if status != hal.SwapchainOptimal {
		core.LogDebug("Swapchain %s on present, recreating.", status)
		s.recreatePending = true
	}

	s.dc.Metrics.FrameDrawn()
	return FrameDrawn, nil
}

func (s *FrameScheduler) recordAndSubmit(slot *frameSlot, state *SwapchainState, imageIndex uint32) error {
	framebuffer := state.Framebuffers[imageIndex]
	secondaries, err := slot.recordSecondaries(s.dc.Device, imageIndex, s.drawables, hal.CommandBufferInheritance{
		RenderPass:  state.RenderPass,
		Framebuffer: framebuffer,
	}, state.Pipeline, s.push)
	if err != nil {
		return err
	}
	if err := s.recordPrimary(slot, state, framebuffer, secondaries); err != nil {
		return err
	}
	return s.dc.Submit([]hal.SubmitInfo{{
		WaitSemaphores:   []hal.Semaphore{slot.imageAcquired},
		WaitStages:       []hal.PipelineStage{hal.PipelineStageColorAttachmentOutput},
		CommandBuffers:   []hal.CommandBuffer{slot.primary},
		SignalSemaphores: []hal.Semaphore{slot.renderFinished},
	}}, slot.fence)
}

// abandon runs after the slot fence was reset but the frame was not
// submitted. An empty submit consumes the acquired image semaphore and
// signals the fence again, so later waits on the slot return. The image is
// never presented and goes back with the swapchain on the next frame.
// Pre-pass work recorded for the frame is handed back.
func (s *FrameScheduler) abandon(slot *frameSlot) {
	for _, p := range s.prePasses {
		p.Abandoned()
	}
	s.recreatePending = true
	err := s.dc.Submit([]hal.SubmitInfo{{
		WaitSemaphores: []hal.Semaphore{slot.imageAcquired},
		WaitStages:     []hal.PipelineStage{hal.PipelineStageColorAttachmentOutput},
	}}, slot.fence)
	if err != nil {
		core.LogError("failed to release abandoned frame: %s", err)
	}
}

func (s *FrameScheduler) recordPrimary(slot *frameSlot, state *SwapchainState, framebuffer hal.Framebuffer, secondaries []hal.CommandBuffer) error {
	dev := s.dc.Device
	cb := slot.primary

	if err := dev.BeginCommandBuffer(cb, hal.CommandBufferBegin{OneTimeSubmit: true}); err != nil {
		return errors.Wrap(err, "begin primary command buffer")
	}
	for _, p := range s.prePasses {
		p.RecordPrePass(cb)
	}
	dev.CmdBeginRenderPass(cb, hal.RenderPassBegin{
		RenderPass:  state.RenderPass,
		Framebuffer: framebuffer,
		Extent:      state.Extent,
		ClearColor:  clearColor,
	}, hal.SubpassContentsSecondaryCommandBuffers)
	if len(secondaries) > 0 {
		dev.CmdExecuteCommands(cb, secondaries)
	}
	dev.CmdEndRenderPass(cb)
	if err := dev.EndCommandBuffer(cb); err != nil {
		return errors.Wrap(err, "end primary command buffer")
	}
	return nil
}

// Destroy waits for the frame still in flight and releases the slots and the
// swapchain state. The drawables belong to the caller.
func (s *FrameScheduler) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.destroyed = true

	if err := s.waitInFlight(); err != nil {
		core.LogError("waiting for the last frame failed: %s", err)
	}
	for i := len(s.slots) - 1; i >= 0; i-- {
		s.slots[i].destroy()
	}
	s.swapchains.Destroy(s.state)
	s.state = nil
}

// WaitInFlight blocks until no submitted frame is executing, as required
// before replacing objects frames reference outside the swapchain state.
func (s *FrameScheduler) WaitInFlight() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitInFlight()
}
