package renderer

import (
	"context"
	"strings"
	"testing"

	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
	"github.com/spaghettifunk/voxen/engine/renderer/hal/haltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shutdownClean(t *testing.T, r *Renderer, dev *haltest.Device) {
	t.Helper()
	r.Shutdown()
	assert.Empty(t, dev.Violations())
	assert.Zero(t, dev.Live())
}

func TestDrawFrameSteadyState(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)
	_, err := r.AddVolume(context.Background(), quadVolume(-0.25, 0.75))
	require.NoError(t, err)
	_, err = r.AddVolume(context.Background(), quadVolume(-0.75, 0.25))
	require.NoError(t, err)

	waits, submits := dev.Count("WaitForFences"), dev.Count("QueueSubmit")
	drawFrames(t, r, 10)

	// One fence wait per submitted frame.
	assert.Equal(t, 10, dev.Count("QueueSubmit")-submits)
	assert.Equal(t, 10, dev.Count("WaitForFences")-waits)
	assert.Equal(t, 10, dev.Count("QueuePresent"))
	assert.Equal(t, 20, dev.Draws())
	for _, c := range dev.ClearColors() {
		assert.Equal(t, [4]float32{0, 0, 0, 1}, c)
	}

	snap := r.Context.Metrics.Snapshot()
	assert.Equal(t, uint64(10), snap.FramesDrawn)
	assert.Zero(t, snap.FramesSkipped)
	assert.Zero(t, snap.Recreations)

	shutdownClean(t, r, dev)
}

func TestDrawFrameOutOfDateOnAcquireSkips(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)
	drawFrames(t, r, 2)

	dev.QueueAcquireStatus(hal.SwapchainOutOfDate)
	submits, presents := dev.Count("QueueSubmit"), dev.Count("QueuePresent")
	res, err := r.DrawFrame(nil)
	require.NoError(t, err)
	assert.Equal(t, FrameSkipped, res)
	assert.Equal(t, submits, dev.Count("QueueSubmit"))
	assert.Equal(t, presents, dev.Count("QueuePresent"))

	swapchains := dev.Count("CreateSwapchain")
	drawFrames(t, r, 1)
	assert.Equal(t, swapchains+1, dev.Count("CreateSwapchain"))
	assert.Equal(t, uint64(1), r.Context.Metrics.Snapshot().FramesSkipped)

	shutdownClean(t, r, dev)
}

func TestDrawFrameSuboptimalDrawsThenRecreates(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)

	dev.QueueAcquireStatus(hal.SwapchainSuboptimal)
	swapchains, presents := dev.Count("CreateSwapchain"), dev.Count("QueuePresent")
	drawFrames(t, r, 1)
	assert.Equal(t, presents+1, dev.Count("QueuePresent"))
	assert.Equal(t, swapchains, dev.Count("CreateSwapchain"))

	drawFrames(t, r, 1)
	assert.Equal(t, swapchains+1, dev.Count("CreateSwapchain"))

	// Staleness reported by present is handled the same way.
	dev.QueuePresentStatus(hal.SwapchainOutOfDate)
	drawFrames(t, r, 2)
	assert.Equal(t, swapchains+2, dev.Count("CreateSwapchain"))

	shutdownClean(t, r, dev)
}

func TestResizeDestroysOnlyAfterFenceWait(t *testing.T) {
	dev := haltest.NewDevice()
	r, window := newTestRenderer(t, dev)
	_, err := r.AddVolume(context.Background(), quadVolume(-0.25, 0.75))
	require.NoError(t, err)
	drawFrames(t, r, 3)

	caps := haltest.DefaultOptions().Capabilities
	caps.CurrentExtent = hal.Extent2D{Width: 800, Height: 600}
	dev.SetSurface(caps)
	window.resize(800, 600)
	r.OnResize(800, 600)

	start := len(dev.Calls())
	drawFrames(t, r, 1)
	calls := dev.Calls()[start:]

	wait := indexOf(calls, "WaitForFences", 0)
	destroy := indexOf(calls, "DestroyFramebuffer", 0)
	require.NotEqual(t, -1, wait)
	require.NotEqual(t, -1, destroy)
	assert.Less(t, wait, destroy)
	assert.Less(t, indexOf(calls, "CreateSwapchain", 0), destroy)

	state := r.Scheduler.Swapchain()
	assert.Equal(t, hal.Extent2D{Width: 800, Height: 600}, state.Extent)
	for _, fb := range state.Framebuffers {
		extent, err := dev.FramebufferExtent(fb)
		require.NoError(t, err)
		assert.Equal(t, hal.Extent2D{Width: 800, Height: 600}, extent)
	}

	shutdownClean(t, r, dev)
}

func TestMinimizedWindowSuspendsDrawing(t *testing.T) {
	dev := haltest.NewDevice()
	r, window := newTestRenderer(t, dev)
	drawFrames(t, r, 1)

	window.resize(0, 0)
	acquires := dev.Count("AcquireNextImage")
	for i := 0; i < 3; i++ {
		res, err := r.DrawFrame(nil)
		require.NoError(t, err)
		assert.Equal(t, FrameSkipped, res)
	}
	assert.Equal(t, acquires, dev.Count("AcquireNextImage"))

	window.resize(1440, 810)
	swapchains := dev.Count("CreateSwapchain")
	drawFrames(t, r, 1)
	assert.Equal(t, swapchains+1, dev.Count("CreateSwapchain"))

	shutdownClean(t, r, dev)
}

func TestSecondaryBuffersAreCachedAndOnlyGrow(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)
	a, err := r.AddVolume(context.Background(), quadVolume(-0.25, 0.75))
	require.NoError(t, err)
	_, err = r.AddVolume(context.Background(), quadVolume(-0.75, 0.25))
	require.NoError(t, err)

	// Three images and two slots give six slot and image pairs.
	drawFrames(t, r, 6)
	assert.Equal(t, 12, dev.LiveCommandBuffers(hal.CommandBufferLevelSecondary))

	begins := dev.Count("BeginCommandBuffer")
	drawFrames(t, r, 6)
	assert.Equal(t, begins+6, dev.Count("BeginCommandBuffer"), "only primaries are recorded")

	// New push constants invalidate the cached draws.
	begins = dev.Count("BeginCommandBuffer")
	push := make([]byte, PushConstantSize)
	push[0] = 1
	_, err = r.DrawFrame(push)
	require.NoError(t, err)
	assert.Equal(t, begins+3, dev.Count("BeginCommandBuffer"))

	require.NoError(t, r.RemoveVolume(a))
	drawFrames(t, r, 2)
	assert.Equal(t, 12, dev.LiveCommandBuffers(hal.CommandBufferLevelSecondary))

	shutdownClean(t, r, dev)
}

func TestShutdownWaitsBeforeDestroying(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)
	_, err := r.AddVolume(context.Background(), quadVolume(-0.25, 0.75))
	require.NoError(t, err)
	drawFrames(t, r, 3)

	start := len(dev.Calls())
	r.Shutdown()
	calls := dev.Calls()[start:]

	wait := indexOf(calls, "WaitForFences", 0)
	require.NotEqual(t, -1, wait)
	for i, c := range calls[:wait] {
		assert.False(t, strings.HasPrefix(c, "Destroy"), "%s at %d before the fence wait", c, i)
	}
	assert.Empty(t, dev.Violations())
	assert.Zero(t, dev.Live())

	_, err = r.Scheduler.DrawFrame()
	assert.Error(t, err)
}

func TestFailedSubmitKeepsSlotWaitable(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)
	_, err := r.AddVolume(context.Background(), quadVolume(-0.25, 0.75))
	require.NoError(t, err)
	drawFrames(t, r, 2)

	dev.FailSubmits(core.ErrDeviceLost)
	presents := dev.Count("QueuePresent")
	res, err := r.DrawFrame(nil)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Equal(t, FrameSkipped, res)
	assert.Equal(t, presents, dev.Count("QueuePresent"))

	// The reset fence was signaled again, so waiting on it returns.
	require.NoError(t, r.Scheduler.WaitInFlight())

	shutdownClean(t, r, dev)
}

func TestDrawingResumesAfterFailedSubmit(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)
	_, err := r.AddVolume(context.Background(), quadVolume(-0.25, 0.75))
	require.NoError(t, err)
	drawFrames(t, r, 1)

	dev.FailSubmits(core.ErrOutOfDeviceMemory)
	_, err = r.DrawFrame(nil)
	require.ErrorIs(t, err, core.ErrOutOfDeviceMemory)

	// The image acquired for the failed frame goes back with the swapchain.
	swapchains, presents := dev.Count("CreateSwapchain"), dev.Count("QueuePresent")
	drawFrames(t, r, 4)
	assert.Equal(t, swapchains+1, dev.Count("CreateSwapchain"))
	assert.Equal(t, presents+4, dev.Count("QueuePresent"))
	assert.Equal(t, 5, dev.Draws())

	shutdownClean(t, r, dev)
}
