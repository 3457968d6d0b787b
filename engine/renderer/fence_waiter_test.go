package renderer

import (
	"context"
	"testing"
	"time"

	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
	"github.com/spaghettifunk/voxen/engine/renderer/hal/haltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submittedFence(t *testing.T, dev *haltest.Device) hal.Fence {
	t.Helper()
	f, err := dev.CreateFence(false)
	require.NoError(t, err)
	require.NoError(t, dev.QueueSubmit(nil, f))
	return f
}

func TestFenceWaiterResolvesSignaledFence(t *testing.T) {
	dev := haltest.NewDeviceWithOptions(func() haltest.Options {
		o := haltest.DefaultOptions()
		o.FenceSignalAfterPolls = 5
		return o
	}())
	w := NewFenceWaiter(dev, 10*time.Microsecond)
	defer w.Close()

	f := submittedFence(t, dev)
	future := w.Wait(f)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := future.Await(ctx)
	require.NoError(t, err)
	assert.True(t, dev.FenceSignaled(f))
	assert.Greater(t, dev.Count("FenceStatus"), 5)
	assert.Zero(t, w.Pending())
}

func TestFenceWaiterFastPath(t *testing.T) {
	dev := haltest.NewDevice()
	w := NewFenceWaiter(dev, time.Hour)
	defer w.Close()

	f, err := dev.CreateFence(true)
	require.NoError(t, err)

	_, err, ready := w.Wait(f).Poll()
	assert.True(t, ready)
	assert.NoError(t, err)
}

func TestFenceWaiterCloseCancelsPending(t *testing.T) {
	dev := haltest.NewDeviceWithOptions(func() haltest.Options {
		o := haltest.DefaultOptions()
		o.FenceSignalAfterPolls = 1 << 30
		return o
	}())
	w := NewFenceWaiter(dev, time.Millisecond)

	futures := []*core.Future[struct{}]{
		w.Wait(submittedFence(t, dev)),
		w.Wait(submittedFence(t, dev)),
	}
	w.Close()
	w.Close()

	for _, f := range futures {
		_, err := f.Await(context.Background())
		assert.ErrorIs(t, err, core.ErrFutureCancelled)
	}

	_, err := w.Wait(submittedFence(t, dev)).Await(context.Background())
	assert.ErrorIs(t, err, core.ErrFutureCancelled)
}

func TestFenceWaiterRejectsStaleFence(t *testing.T) {
	dev := haltest.NewDevice()
	w := NewFenceWaiter(dev, time.Millisecond)
	defer w.Close()

	f, err := dev.CreateFence(false)
	require.NoError(t, err)
	dev.DestroyFence(f)

	_, err = w.Wait(f).Await(context.Background())
	assert.ErrorIs(t, err, core.ErrStaleHandle)
}
