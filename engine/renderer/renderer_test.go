package renderer

import (
	"context"
	"testing"

	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
	"github.com/spaghettifunk/voxen/engine/renderer/hal/haltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRendererLifecycle(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)
	_, err := r.AddVolume(context.Background(), quadVolume(-0.25, 0.75))
	require.NoError(t, err)
	_, err = r.AddMutableVolume(context.Background(), quadVolume(-0.75, 0.25))
	require.NoError(t, err)

	drawFrames(t, r, 4)
	assert.Equal(t, 8, dev.Draws())
	assert.Len(t, r.Scheduler.Drawables(), 2)

	// Volumes still registered are destroyed by Shutdown.
	shutdownClean(t, r, dev)
}

func TestReloadFragmentShaderRebuildsPipeline(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)
	_, err := r.AddVolume(context.Background(), quadVolume(-0.25, 0.75))
	require.NoError(t, err)
	drawFrames(t, r, 3)

	old := r.Scheduler.Swapchain().Pipeline
	pipelines, swapchains := dev.Count("CreateGraphicsPipeline"), dev.Count("CreateSwapchain")

	require.NoError(t, r.ReloadShader(ShaderVolumeFragment, append([]uint32{}, spirvMagic...)))
	assert.Equal(t, pipelines, dev.Count("CreateGraphicsPipeline"), "rebuilt on the next frame")

	drawFrames(t, r, 1)
	assert.Equal(t, pipelines+1, dev.Count("CreateGraphicsPipeline"))
	assert.Equal(t, swapchains+1, dev.Count("CreateSwapchain"))
	assert.NotEqual(t, old, r.Scheduler.Swapchain().Pipeline)
	assert.Equal(t, uint64(1), r.Context.Metrics.Snapshot().Recreations)

	extent, err := dev.GraphicsPipelineExtent(r.Scheduler.Swapchain().Pipeline)
	require.NoError(t, err)
	assert.Equal(t, hal.Extent2D{Width: 1440, Height: 810}, extent)

	shutdownClean(t, r, dev)
}

func TestReloadStencilShaderWhileInFlight(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)
	mv, err := r.AddMutableVolume(context.Background(), quadVolume(-0.5, 0.5))
	require.NoError(t, err)

	require.NoError(t, mv.Stencil([3]uint32{2, 2, 2}))
	drawFrames(t, r, 1)

	// The frame just submitted still uses the compute pipeline.
	computes := dev.Count("CreateComputePipeline")
	require.NoError(t, r.ReloadShader(ShaderStencil, append([]uint32{}, spirvMagic...)))
	assert.Equal(t, computes+1, dev.Count("CreateComputePipeline"))
	assert.Empty(t, dev.Violations())

	require.NoError(t, mv.Stencil([3]uint32{1, 1, 1}))
	drawFrames(t, r, 1)
	assert.Equal(t, 2, dev.Dispatches())

	shutdownClean(t, r, dev)
}

func TestOnResizeRequestsRecreate(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)
	drawFrames(t, r, 1)

	swapchains := dev.Count("CreateSwapchain")
	r.OnResize(1440, 810)
	drawFrames(t, r, 1)
	assert.Equal(t, swapchains+1, dev.Count("CreateSwapchain"))

	shutdownClean(t, r, dev)
}

func TestRemovedVolumesReturnDescriptorSets(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)
	ctx := context.Background()

	// More volumes than the pools hold sets for, never more than one alive.
	for i := 0; i < 12; i++ {
		v, err := r.AddVolume(ctx, quadVolume(-0.25, 0.75))
		require.NoError(t, err, "volume %d", i)
		mv, err := r.AddMutableVolume(ctx, quadVolume(-0.75, 0.25))
		require.NoError(t, err, "mutable volume %d", i)
		drawFrames(t, r, 1)
		require.NoError(t, r.RemoveVolume(v))
		require.NoError(t, r.RemoveVolume(mv))
	}
	assert.Equal(t, 36, dev.Count("FreeDescriptorSet"))
	assert.Empty(t, dev.Violations())

	shutdownClean(t, r, dev)
}

func TestAddVolumeBeyondPoolCapacity(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)
	ctx := context.Background()

	var volumes []*Volume
	for i := 0; i < 8; i++ {
		v, err := r.AddVolume(ctx, quadVolume(-0.25, 0.75))
		require.NoError(t, err)
		volumes = append(volumes, v)
	}
	_, err := r.AddVolume(ctx, quadVolume(-0.25, 0.75))
	assert.ErrorIs(t, err, core.ErrOutOfDeviceMemory)
	assert.Len(t, r.Scheduler.Drawables(), 8)

	require.NoError(t, r.RemoveVolume(volumes[0]))
	_, err = r.AddVolume(ctx, quadVolume(-0.25, 0.75))
	require.NoError(t, err)
	drawFrames(t, r, 1)
	assert.Equal(t, 8, dev.Draws())

	shutdownClean(t, r, dev)
}
