package renderer

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

// GpuBuffer is a device local buffer holding Len elements of T. Its content
// is written once at upload.
type GpuBuffer[T any] struct {
	Buffer hal.Buffer
	Size   uint64
	Len    int

	dc    *DeviceContext
	alloc *Allocation
}

func (b *GpuBuffer[T]) Destroy() {
	if b.Buffer.IsNil() {
		return
	}
	b.dc.Device.DestroyBuffer(b.Buffer)
	b.dc.Allocator.Free(b.alloc)
	b.Buffer = hal.Buffer{}
}

// GpuImage is a device local image with a view covering every mip level.
type GpuImage struct {
	Image     hal.Image
	View      hal.ImageView
	Type      hal.ImageType
	Format    hal.Format
	Extent    hal.Extent3D
	MipLevels uint32

	dc    *DeviceContext
	alloc *Allocation
}

func (i *GpuImage) Destroy() {
	if i.Image.IsNil() {
		return
	}
	i.dc.Device.DestroyImageView(i.View)
	i.dc.Device.DestroyImage(i.Image)
	i.dc.Allocator.Free(i.alloc)
	i.Image = hal.Image{}
}

// Size returns the byte size of mip level 0.
func (i *GpuImage) Size() uint64 {
	return i.Extent.Texels() * i.Format.BytesPerTexel()
}

// encode lays data out the way the GPU reads it.
func encode[T any](data []T) ([]byte, error) {
	if binary.Size(data) < 0 {
		var zero T
		return nil, fmt.Errorf("type %T has no fixed size", zero)
	}
	return binary.Append(nil, binary.LittleEndian, data)
}
