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

func TestStencilPassDispatchesQueuedWrites(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)
	mv, err := r.AddMutableVolume(context.Background(), quadVolume(-0.5, 0.5))
	require.NoError(t, err)

	require.NoError(t, mv.Stencil([3]uint32{1, 2, 3}))
	require.NoError(t, mv.Stencil([3]uint32{0, 0, 0}))

	before := len(dev.Barriers())
	drawFrames(t, r, 1)
	assert.Equal(t, 2, dev.Dispatches())

	barriers := dev.Barriers()[before:]
	require.Len(t, barriers, 2)
	assert.Equal(t, hal.PipelineStageFragmentShader, barriers[0].SrcStage)
	assert.Equal(t, hal.PipelineStageComputeShader, barriers[0].DstStage)
	assert.Equal(t, hal.ImageLayoutShaderReadOnlyOptimal, barriers[0].OldLayout)
	assert.Equal(t, hal.ImageLayoutGeneral, barriers[0].NewLayout)
	assert.Equal(t, hal.PipelineStageComputeShader, barriers[1].SrcStage)
	assert.Equal(t, hal.PipelineStageFragmentShader, barriers[1].DstStage)
	assert.Equal(t, hal.ImageLayoutShaderReadOnlyOptimal, barriers[1].NewLayout)

	layout, err := dev.ImageLayout(mv.Image().Image)
	require.NoError(t, err)
	assert.Equal(t, hal.ImageLayoutShaderReadOnlyOptimal, layout)

	// No camera push, so only the stencil positions were pushed.
	assert.Equal(t, [][]byte{
		stencilPush([3]uint32{1, 2, 3}),
		stencilPush([3]uint32{0, 0, 0}),
	}, dev.PushConstants())

	// Writes are consumed once.
	drawFrames(t, r, 2)
	assert.Equal(t, 2, dev.Dispatches())

	shutdownClean(t, r, dev)
}

func TestStencilOutOfBounds(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)
	mv, err := r.AddMutableVolume(context.Background(), quadVolume(-0.5, 0.5))
	require.NoError(t, err)

	for _, pos := range [][3]uint32{{4, 0, 0}, {0, 4, 0}, {0, 0, 4}} {
		assert.ErrorIs(t, mv.Stencil(pos), core.ErrOutOfBounds, "%v", pos)
	}
	assert.NoError(t, mv.Stencil([3]uint32{3, 3, 3}))

	shutdownClean(t, r, dev)
}

func TestRemovedVolumeDropsQueuedWrites(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)
	mv, err := r.AddMutableVolume(context.Background(), quadVolume(-0.5, 0.5))
	require.NoError(t, err)
	drawFrames(t, r, 2)

	require.NoError(t, mv.Stencil([3]uint32{1, 1, 1}))
	require.NoError(t, r.RemoveVolume(mv))
	drawFrames(t, r, 2)
	assert.Zero(t, dev.Dispatches())
	assert.Equal(t, 2, dev.Draws())

	shutdownClean(t, r, dev)
}

func TestFailedFrameKeepsStencilWrites(t *testing.T) {
	dev := haltest.NewDevice()
	r, _ := newTestRenderer(t, dev)
	mv, err := r.AddMutableVolume(context.Background(), quadVolume(-0.5, 0.5))
	require.NoError(t, err)
	drawFrames(t, r, 1)

	require.NoError(t, mv.Stencil([3]uint32{1, 1, 1}))
	require.NoError(t, mv.Stencil([3]uint32{2, 2, 2}))
	dev.FailSubmits(core.ErrDeviceLost)
	_, err = r.DrawFrame(nil)
	require.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Zero(t, dev.Dispatches())

	// Writes queued after the failure run behind the ones it carried.
	require.NoError(t, mv.Stencil([3]uint32{3, 3, 3}))
	drawFrames(t, r, 1)
	assert.Equal(t, 3, dev.Dispatches())
	assert.Equal(t, [][]byte{
		stencilPush([3]uint32{1, 1, 1}),
		stencilPush([3]uint32{2, 2, 2}),
		stencilPush([3]uint32{3, 3, 3}),
	}, dev.PushConstants())

	drawFrames(t, r, 1)
	assert.Equal(t, 3, dev.Dispatches())

	shutdownClean(t, r, dev)
}
