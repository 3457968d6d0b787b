package renderer

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/core"
	vmath "github.com/spaghettifunk/voxen/engine/math"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

// Uploader moves CPU data into device local memory through a host visible
// staging buffer and a one-shot transfer command, and reads it back the same
// way.
type Uploader struct {
	dc *DeviceContext
}

func NewUploader(dc *DeviceContext) *Uploader {
	return &Uploader{dc: dc}
}

type ImageUploadDesc struct {
	Type   hal.ImageType
	Format hal.Format
	Extent hal.Extent3D
	Usage  hal.ImageUsage
	// Allocate a full mip chain. Only level 0 is written.
	Mipmaps bool
}

// Upload copies data into a new device local buffer and blocks until the
// transfer has completed.
func Upload[T any](u *Uploader, data []T, usage hal.BufferUsage) (*GpuBuffer[T], error) {
	return uploadBuffer(context.Background(), u, data, usage, false)
}

// UploadAsync is Upload with the calling goroutine suspended on the fence
// waiter instead of a blocking fence wait. When ctx is cancelled the staging
// buffer is still held until the transfer finishes, then ctx.Err() is
// returned.
func UploadAsync[T any](ctx context.Context, u *Uploader, data []T, usage hal.BufferUsage) (*GpuBuffer[T], error) {
	return uploadBuffer(ctx, u, data, usage, true)
}

func UploadImage[T Texel](u *Uploader, data []T, desc ImageUploadDesc) (*GpuImage, error) {
	return uploadImage(context.Background(), u, data, desc, false)
}

func UploadImageAsync[T Texel](ctx context.Context, u *Uploader, data []T, desc ImageUploadDesc) (*GpuImage, error) {
	return uploadImage(ctx, u, data, desc, true)
}

// Download reads a buffer back into a new slice.
func Download[T any](ctx context.Context, u *Uploader, b *GpuBuffer[T]) ([]T, error) {
	raw, err := u.DownloadBuffer(ctx, b.Buffer, b.Size)
	if err != nil {
		return nil, err
	}
	out := make([]T, b.Len)
	if _, err := binary.Decode(raw, binary.LittleEndian, out); err != nil {
		return nil, errors.Wrap(err, "decode downloaded buffer")
	}
	return out, nil
}

func uploadBuffer[T any](ctx context.Context, u *Uploader, data []T, usage hal.BufferUsage, async bool) (*GpuBuffer[T], error) {
	raw, err := encode(data)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("upload of an empty %T buffer", data)
	}
	size := uint64(len(raw))

	var r releaser
	defer r.release()

	staging, err := u.newStaging(size, MemoryUsageCpuToGpu)
	if err != nil {
		return nil, err
	}
	defer staging.destroy()
	if err := staging.write(raw); err != nil {
		return nil, err
	}

	dev := u.dc.Device
	dst, alloc, err := u.dc.Allocator.createBuffer(dev, hal.BufferDesc{
		Size:  size,
		Usage: usage | hal.BufferUsageTransferDst | hal.BufferUsageTransferSrc,
	}, MemoryUsageGpuOnly)
	if err != nil {
		return nil, err
	}
	r.push(func() {
		dev.DestroyBuffer(dst)
		u.dc.Allocator.Free(alloc)
	})

	err = u.submit(ctx, async, func(cb hal.CommandBuffer) {
		dev.CmdCopyBuffer(cb, staging.buffer, dst, []hal.BufferCopy{{Size: size}})
	})
	if err != nil {
		return nil, err
	}

	r.take()
	u.dc.Metrics.UploadCompleted()
	return &GpuBuffer[T]{Buffer: dst, Size: size, Len: len(data), dc: u.dc, alloc: alloc}, nil
}

func uploadImage[T Texel](ctx context.Context, u *Uploader, data []T, desc ImageUploadDesc, async bool) (*GpuImage, error) {
	raw, err := encode(data)
	if err != nil {
		return nil, err
	}
	size := desc.Extent.Texels() * desc.Format.BytesPerTexel()
	if size == 0 || uint64(len(raw)) != size {
		return nil, fmt.Errorf("image data is %d bytes, a %dx%dx%d image needs %d", len(raw),
			desc.Extent.Width, desc.Extent.Height, desc.Extent.Depth, size)
	}

	levels := uint32(1)
	if desc.Mipmaps {
		levels = vmath.MaxMipLevels(desc.Extent.Width, desc.Extent.Height, desc.Extent.Depth)
	}

	var r releaser
	defer r.release()

	staging, err := u.newStaging(size, MemoryUsageCpuToGpu)
	if err != nil {
		return nil, err
	}
	defer staging.destroy()
	if err := staging.write(raw); err != nil {
		return nil, err
	}

	dev := u.dc.Device
	img, alloc, err := u.dc.Allocator.createImage(dev, hal.ImageDesc{
		Type:      desc.Type,
		Format:    desc.Format,
		Extent:    desc.Extent,
		MipLevels: levels,
		Usage:     desc.Usage | hal.ImageUsageSampled | hal.ImageUsageTransferDst | hal.ImageUsageTransferSrc,
	})
	if err != nil {
		return nil, err
	}
	r.push(func() {
		dev.DestroyImage(img)
		u.dc.Allocator.Free(alloc)
	})

	err = u.submit(ctx, async, func(cb hal.CommandBuffer) {
		dev.CmdPipelineBarrier(cb, hal.PipelineStageTopOfPipe, hal.PipelineStageTransfer, []hal.ImageBarrier{{
			Image:         img,
			OldLayout:     hal.ImageLayoutUndefined,
			NewLayout:     hal.ImageLayoutTransferDstOptimal,
			SrcAccess:     hal.AccessNone,
			DstAccess:     hal.AccessTransferWrite,
			MipLevelCount: levels,
		}})
		dev.CmdCopyBufferToImage(cb, staging.buffer, img, hal.ImageLayoutTransferDstOptimal, hal.BufferImageCopy{
			Extent: desc.Extent,
		})
		dev.CmdPipelineBarrier(cb, hal.PipelineStageTransfer, hal.PipelineStageFragmentShader|hal.PipelineStageComputeShader, []hal.ImageBarrier{{
			Image:         img,
			OldLayout:     hal.ImageLayoutTransferDstOptimal,
			NewLayout:     hal.ImageLayoutShaderReadOnlyOptimal,
			SrcAccess:     hal.AccessTransferWrite,
			DstAccess:     hal.AccessShaderRead,
			MipLevelCount: levels,
		}})
	})
	if err != nil {
		return nil, err
	}

	view, err := dev.CreateImageView(hal.ImageViewDesc{
		Image:     img,
		Type:      desc.Type,
		Format:    desc.Format,
		MipLevels: levels,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image view")
	}

	r.take()
	u.dc.Metrics.UploadCompleted()
	return &GpuImage{
		Image:     img,
		View:      view,
		Type:      desc.Type,
		Format:    desc.Format,
		Extent:    desc.Extent,
		MipLevels: levels,
		dc:        u.dc,
		alloc:     alloc,
	}, nil
}

// DownloadBuffer copies size bytes of a device local buffer back to the host.
func (u *Uploader) DownloadBuffer(ctx context.Context, buf hal.Buffer, size uint64) ([]byte, error) {
	staging, err := u.newStaging(size, MemoryUsageGpuToCpu)
	if err != nil {
		return nil, err
	}
	defer staging.destroy()

	dev := u.dc.Device
	err = u.submit(ctx, true, func(cb hal.CommandBuffer) {
		dev.CmdCopyBuffer(cb, buf, staging.buffer, []hal.BufferCopy{{Size: size}})
	})
	if err != nil {
		return nil, err
	}
	return staging.read()
}

// DownloadImage copies mip level 0 of an image in shader read layout back to
// the host. The image is returned to shader read layout.
func (u *Uploader) DownloadImage(ctx context.Context, img *GpuImage) ([]byte, error) {
	staging, err := u.newStaging(img.Size(), MemoryUsageGpuToCpu)
	if err != nil {
		return nil, err
	}
	defer staging.destroy()

	dev := u.dc.Device
	err = u.submit(ctx, true, func(cb hal.CommandBuffer) {
		dev.CmdPipelineBarrier(cb, hal.PipelineStageFragmentShader, hal.PipelineStageTransfer, []hal.ImageBarrier{{
			Image:         img.Image,
			OldLayout:     hal.ImageLayoutShaderReadOnlyOptimal,
			NewLayout:     hal.ImageLayoutTransferSrcOptimal,
			SrcAccess:     hal.AccessShaderRead,
			DstAccess:     hal.AccessTransferRead,
			MipLevelCount: img.MipLevels,
		}})
		dev.CmdCopyImageToBuffer(cb, img.Image, hal.ImageLayoutTransferSrcOptimal, staging.buffer, hal.BufferImageCopy{
			Extent: img.Extent,
		})
		dev.CmdPipelineBarrier(cb, hal.PipelineStageTransfer, hal.PipelineStageFragmentShader, []hal.ImageBarrier{{
			Image:         img.Image,
			OldLayout:     hal.ImageLayoutTransferSrcOptimal,
			NewLayout:     hal.ImageLayoutShaderReadOnlyOptimal,
			SrcAccess:     hal.AccessTransferRead,
			DstAccess:     hal.AccessShaderRead,
			MipLevelCount: img.MipLevels,
		}})
	})
	if err != nil {
		return nil, err
	}
	return staging.read()
}

// submit records a one-shot command and waits for it, blocking or through
// the fence waiter.
func (u *Uploader) submit(ctx context.Context, async bool, record func(cb hal.CommandBuffer)) error {
	su, err := u.dc.AllocateAndBeginSingleUse()
	if err != nil {
		return err
	}
	record(su.Buffer)
	if err := su.EndSingleUse(); err != nil {
		return err
	}
	defer su.Free()

	if !async {
		return u.dc.WaitFence(su.Fence())
	}
	return u.await(ctx, su.Fence())
}

// await returns only once the fence is signaled, whatever the outcome, since
// the submission still references the staging buffer until then.
func (u *Uploader) await(ctx context.Context, fence hal.Fence) error {
	future := u.dc.Waiter.Wait(fence)
	_, err := future.Await(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && !errors.Is(err, core.ErrFutureCancelled) {
		return err
	}

	// Cancelled or the waiter closed. Block on the fence, then let the waiter
	// drop it before it is destroyed.
	if err := u.dc.WaitFence(fence); err != nil {
		return err
	}
	<-future.Done()
	return ctx.Err()
}

type stagingBuffer struct {
	dc     *DeviceContext
	buffer hal.Buffer
	alloc  *Allocation
	size   uint64
}

func (u *Uploader) newStaging(size uint64, usage MemoryUsage) (*stagingBuffer, error) {
	bufferUsage := hal.BufferUsageTransferSrc
	if usage == MemoryUsageGpuToCpu {
		bufferUsage = hal.BufferUsageTransferDst
	}
	buf, alloc, err := u.dc.Allocator.createBuffer(u.dc.Device, hal.BufferDesc{Size: size, Usage: bufferUsage}, usage)
	if err != nil {
		return nil, errors.Wrap(err, "create staging buffer")
	}
	return &stagingBuffer{dc: u.dc, buffer: buf, alloc: alloc, size: size}, nil
}

func (s *stagingBuffer) write(raw []byte) error {
	m, err := s.dc.Allocator.Map(s.alloc)
	if err != nil {
		return err
	}
	defer m.Unmap()
	return m.WriteAt(raw, 0)
}

func (s *stagingBuffer) read() ([]byte, error) {
	m, err := s.dc.Allocator.Map(s.alloc)
	if err != nil {
		return nil, err
	}
	defer m.Unmap()
	data, err := m.Bytes()
	if err != nil {
		return nil, err
	}
	return data[:s.size], nil
}

func (s *stagingBuffer) destroy() {
	s.dc.Device.DestroyBuffer(s.buffer)
	s.dc.Allocator.Free(s.alloc)
}
