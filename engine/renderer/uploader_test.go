package renderer

import (
	"context"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
	"github.com/spaghettifunk/voxen/engine/renderer/hal/haltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestUploadRoundTrip(t *testing.T) {
	dev := haltest.NewDevice()
	dc := newTestContext(t, dev)
	u := NewUploader(dc)
	rng := rand.New(rand.NewSource(1))

	for _, n := range []int{1, 3, 64, 4099} {
		data := make([]byte, n)
		rng.Read(data)

		buf, err := Upload(u, data, hal.BufferUsageVertex)
		require.NoError(t, err)
		got, err := Download(context.Background(), u, buf)
		require.NoError(t, err)
		assert.Equal(t, data, got)
		buf.Destroy()
	}

	dc.Destroy()
	assert.Empty(t, dev.Violations())
	assert.Zero(t, dev.Live())
}

func TestUploadAsyncStructs(t *testing.T) {
	dev := haltest.NewDeviceWithOptions(func() haltest.Options {
		o := haltest.DefaultOptions()
		o.FenceSignalAfterPolls = 3
		return o
	}())
	dc := newTestContext(t, dev)
	u := NewUploader(dc)

	vertices := []Vertex{
		{Pos: mgl32.Vec2{-0.5, -0.5}, Color: mgl32.Vec3{1, 0, 0}},
		{Pos: mgl32.Vec2{0.5, -0.5}, Color: mgl32.Vec3{0, 1, 0}},
		{Pos: mgl32.Vec2{0.5, 0.5}, Color: mgl32.Vec3{0, 0, 1}},
	}
	indices := []uint16{0, 1, 2}

	var vb *GpuBuffer[Vertex]
	var ib *GpuBuffer[uint16]
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() (err error) {
		vb, err = UploadAsync(ctx, u, vertices, hal.BufferUsageVertex)
		return err
	})
	g.Go(func() (err error) {
		ib, err = UploadAsync(ctx, u, indices, hal.BufferUsageIndex)
		return err
	})
	require.NoError(t, g.Wait())

	assert.Equal(t, uint64(3*20), vb.Size)
	gotV, err := Download(context.Background(), u, vb)
	require.NoError(t, err)
	assert.Equal(t, vertices, gotV)
	gotI, err := Download(context.Background(), u, ib)
	require.NoError(t, err)
	assert.Equal(t, indices, gotI)
	assert.Equal(t, uint64(2), dc.Metrics.Snapshot().Uploads)

	vb.Destroy()
	ib.Destroy()
	dc.Destroy()
	assert.Empty(t, dev.Violations())
	assert.Zero(t, dev.Live())
}

func TestUploadAsyncCancelledWaitsForTransfer(t *testing.T) {
	dev := haltest.NewDeviceWithOptions(func() haltest.Options {
		o := haltest.DefaultOptions()
		o.FenceSignalAfterPolls = 1 << 30
		return o
	}())
	dc := newTestContext(t, dev)
	u := NewUploader(dc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	buf, err := UploadAsync(ctx, u, []uint32{1, 2, 3}, hal.BufferUsageStorage)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, buf)

	// The staging buffer outlived the transfer.
	assert.Empty(t, dev.Violations())
	assert.Zero(t, dc.Allocator.Stats().Allocations)

	dc.Destroy()
	assert.Zero(t, dev.Live())
}

func TestUploadImage(t *testing.T) {
	dev := haltest.NewDevice()
	dc := newTestContext(t, dev)
	u := NewUploader(dc)

	extent := hal.Extent3D{Width: 8, Height: 4, Depth: 2}
	texels := make([]uint8, extent.Texels())
	for i := range texels {
		texels[i] = uint8(i * 3)
	}

	img, err := UploadImage(u, texels, ImageUploadDesc{
		Type:    hal.ImageType3D,
		Format:  hal.FormatR8Unorm,
		Extent:  extent,
		Mipmaps: true,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(4), img.MipLevels)

	layout, err := dev.ImageLayout(img.Image)
	require.NoError(t, err)
	assert.Equal(t, hal.ImageLayoutShaderReadOnlyOptimal, layout)

	barriers := dev.Barriers()
	require.Len(t, barriers, 2)
	assert.Equal(t, hal.ImageLayoutUndefined, barriers[0].OldLayout)
	assert.Equal(t, hal.ImageLayoutTransferDstOptimal, barriers[0].NewLayout)
	assert.Equal(t, hal.ImageLayoutShaderReadOnlyOptimal, barriers[1].NewLayout)
	assert.Equal(t, uint32(4), barriers[1].MipLevelCount)

	got, err := u.DownloadImage(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, []byte(texels), got)

	layout, err = dev.ImageLayout(img.Image)
	require.NoError(t, err)
	assert.Equal(t, hal.ImageLayoutShaderReadOnlyOptimal, layout)

	img.Destroy()
	dc.Destroy()
	assert.Empty(t, dev.Violations())
	assert.Zero(t, dev.Live())
}

func TestUploadImageSizeMismatch(t *testing.T) {
	dc := newTestContext(t, haltest.NewDevice())
	defer dc.Destroy()

	_, err := UploadImage(NewUploader(dc), []uint8{1, 2, 3}, ImageUploadDesc{
		Type:   hal.ImageType2D,
		Format: hal.FormatR8Unorm,
		Extent: hal.Extent3D{Width: 2, Height: 2, Depth: 1},
	})
	assert.Error(t, err)
}

func TestUploadImageMipChain(t *testing.T) {
	dev := haltest.NewDevice()
	dc := newTestContext(t, dev)
	u := NewUploader(dc)

	extent := hal.Extent3D{Width: 4096, Height: 512, Depth: 1}
	img, err := UploadImageAsync(context.Background(), u, make([]uint8, extent.Texels()), ImageUploadDesc{
		Type:    hal.ImageType2D,
		Format:  hal.FormatR8Unorm,
		Extent:  extent,
		Mipmaps: true,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(13), img.MipLevels)

	img.Destroy()
	dc.Destroy()
	assert.Zero(t, dev.Live())
}
