package renderer

import (
	"testing"

	"github.com/spaghettifunk/voxen/engine/renderer/hal"
	"github.com/spaghettifunk/voxen/engine/renderer/hal/haltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBuilder struct {
	dev hal.Device
}

func (b stubBuilder) Build(rp hal.RenderPass, extent hal.Extent2D) (hal.Pipeline, error) {
	return b.dev.CreateGraphicsPipeline(hal.GraphicsPipelineDesc{RenderPass: rp, Extent: extent})
}

func TestChoosePresentMode(t *testing.T) {
	tests := []struct {
		name  string
		modes []hal.PresentMode
		want  hal.PresentMode
	}{
		{"mailbox over fifo", []hal.PresentMode{hal.PresentModeFifo, hal.PresentModeMailbox}, hal.PresentModeMailbox},
		{"fifo only", []hal.PresentMode{hal.PresentModeFifo}, hal.PresentModeFifo},
		{"immediate over relaxed", []hal.PresentMode{hal.PresentModeFifoRelaxed, hal.PresentModeImmediate, hal.PresentModeFifo}, hal.PresentModeImmediate},
		{"relaxed over fifo", []hal.PresentMode{hal.PresentModeFifo, hal.PresentModeFifoRelaxed}, hal.PresentModeFifoRelaxed},
		{"fifo over unknown", []hal.PresentMode{hal.PresentModeOther, hal.PresentModeFifo}, hal.PresentModeFifo},
		{"nothing reported", nil, hal.PresentModeFifo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChoosePresentMode(tt.modes))
		})
	}
}

func TestChooseSurfaceFormat(t *testing.T) {
	bgra := hal.SurfaceFormat{Format: hal.FormatB8G8R8A8Unorm, ColorSpace: hal.ColorSpaceSrgbNonlinear}
	rgba := hal.SurfaceFormat{Format: hal.FormatR8G8B8A8Unorm, ColorSpace: hal.ColorSpaceSrgbNonlinear}

	got, err := ChooseSurfaceFormat([]hal.SurfaceFormat{rgba, bgra})
	require.NoError(t, err)
	assert.Equal(t, bgra, got)

	got, err = ChooseSurfaceFormat([]hal.SurfaceFormat{rgba})
	require.NoError(t, err)
	assert.Equal(t, rgba, got)

	got, err = ChooseSurfaceFormat([]hal.SurfaceFormat{{Format: hal.FormatUndefined}})
	require.NoError(t, err)
	assert.Equal(t, bgra, got)

	_, err = ChooseSurfaceFormat(nil)
	assert.Error(t, err)
}

func TestChooseExtent(t *testing.T) {
	caps := hal.SurfaceCapabilities{
		CurrentExtent:  hal.Extent2D{Width: hal.UndefinedExtent, Height: hal.UndefinedExtent},
		MinImageExtent: hal.Extent2D{Width: 64, Height: 64},
		MaxImageExtent: hal.Extent2D{Width: 1024, Height: 768},
	}
	assert.Equal(t, hal.Extent2D{Width: 800, Height: 600}, ChooseExtent(caps, hal.Extent2D{Width: 800, Height: 600}))
	assert.Equal(t, hal.Extent2D{Width: 1024, Height: 64}, ChooseExtent(caps, hal.Extent2D{Width: 1440, Height: 10}))

	caps.CurrentExtent = hal.Extent2D{Width: 1440, Height: 810}
	assert.Equal(t, hal.Extent2D{Width: 1440, Height: 810}, ChooseExtent(caps, hal.Extent2D{Width: 800, Height: 600}))
}

func TestImageCount(t *testing.T) {
	assert.Equal(t, uint32(3), ImageCount(hal.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 8}))
	assert.Equal(t, uint32(2), ImageCount(hal.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 2}))
	assert.Equal(t, uint32(4), ImageCount(hal.SurfaceCapabilities{MinImageCount: 3}))
}

func TestSwapchainRecreateIsIdempotent(t *testing.T) {
	dev := haltest.NewDevice()
	dc := newTestContext(t, dev)
	m := NewSwapchainManager(dc, newFakeWindow(1440, 810), stubBuilder{dev})

	state, err := m.Create()
	require.NoError(t, err)
	assert.Equal(t, 3, state.ImageCount())
	assert.Equal(t, hal.FormatB8G8R8A8Unorm, state.Format.Format)
	assert.Equal(t, hal.PresentModeMailbox, state.PresentMode)
	live := dev.Live()

	for i := 0; i < 3; i++ {
		prev := state.Swapchain
		state, err = m.Recreate(state)
		require.NoError(t, err)

		assert.Equal(t, 3, state.ImageCount())
		assert.Equal(t, hal.FormatB8G8R8A8Unorm, state.Format.Format)
		assert.Equal(t, hal.Extent2D{Width: 1440, Height: 810}, state.Extent)
		desc, err := dev.SwapchainDesc(state.Swapchain)
		require.NoError(t, err)
		assert.Equal(t, prev, desc.OldSwapchain)
		assert.Equal(t, live, dev.Live())
	}
	assert.Equal(t, 1, dev.Count("CreateRenderPass"))
	assert.Equal(t, uint64(3), dc.Metrics.Snapshot().Recreations)

	m.Destroy(state)
	dc.Destroy()
	assert.Empty(t, dev.Violations())
	assert.Zero(t, dev.Live())
}

func TestSwapchainKeepsSurfaceColorSpace(t *testing.T) {
	// VK_COLOR_SPACE_DISPLAY_P3_NONLINEAR_EXT
	p3 := hal.SurfaceFormat{Format: hal.FormatR8G8B8A8Unorm, ColorSpace: hal.ColorSpace(1000104001)}
	opts := haltest.DefaultOptions()
	opts.Formats = []hal.SurfaceFormat{p3}
	dev := haltest.NewDeviceWithOptions(opts)
	dc := newTestContext(t, dev)
	m := NewSwapchainManager(dc, newFakeWindow(1440, 810), stubBuilder{dev})

	state, err := m.Create()
	require.NoError(t, err)
	desc, err := dev.SwapchainDesc(state.Swapchain)
	require.NoError(t, err)
	assert.Equal(t, p3, desc.Format)

	state, err = m.Recreate(state)
	require.NoError(t, err)
	desc, err = dev.SwapchainDesc(state.Swapchain)
	require.NoError(t, err)
	assert.Equal(t, p3, desc.Format)

	m.Destroy(state)
	dc.Destroy()
	assert.Empty(t, dev.Violations())
}

func TestSwapchainRecreateFollowsResize(t *testing.T) {
	dev := haltest.NewDevice()
	dc := newTestContext(t, dev)
	window := newFakeWindow(1440, 810)
	m := NewSwapchainManager(dc, window, stubBuilder{dev})

	state, err := m.Create()
	require.NoError(t, err)

	caps := haltest.DefaultOptions().Capabilities
	caps.CurrentExtent = hal.Extent2D{Width: 800, Height: 600}
	dev.SetSurface(caps)
	window.resize(800, 600)

	state, err = m.Recreate(state)
	require.NoError(t, err)
	for _, fb := range state.Framebuffers {
		extent, err := dev.FramebufferExtent(fb)
		require.NoError(t, err)
		assert.Equal(t, hal.Extent2D{Width: 800, Height: 600}, extent)
	}
	extent, err := dev.GraphicsPipelineExtent(state.Pipeline)
	require.NoError(t, err)
	assert.Equal(t, hal.Extent2D{Width: 800, Height: 600}, extent)

	// The surface leaves the extent to the window, which is larger than
	// allowed.
	caps.CurrentExtent = hal.Extent2D{Width: hal.UndefinedExtent, Height: hal.UndefinedExtent}
	caps.MaxImageExtent = hal.Extent2D{Width: 640, Height: 480}
	dev.SetSurface(caps)

	state, err = m.Recreate(state)
	require.NoError(t, err)
	for _, fb := range state.Framebuffers {
		extent, err := dev.FramebufferExtent(fb)
		require.NoError(t, err)
		assert.Equal(t, hal.Extent2D{Width: 640, Height: 480}, extent)
	}

	m.Destroy(state)
	dc.Destroy()
	assert.Empty(t, dev.Violations())
	assert.Zero(t, dev.Live())
}
