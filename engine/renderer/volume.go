package renderer

import (
	"context"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
	"golang.org/x/sync/errgroup"
)

type Vertex struct {
	Pos   mgl32.Vec2
	Color mgl32.Vec3
}

// QuadIndices draws a quad given as four corners in order.
var QuadIndices = []uint16{0, 1, 2, 2, 3, 0}

// VolumeDesc is the CPU side content of a volume: the proxy geometry it is
// rasterized with and its R8 voxel grid.
type VolumeDesc struct {
	Vertices []Vertex
	Indices  []uint16
	Voxels   []uint8
	Extent   hal.Extent3D
}

// Volume is an immutable drawable: geometry and a sampled 3D voxel image,
// all device local.
type Volume struct {
	id       core.ID
	dc       *DeviceContext
	pipeline *VolumePipeline
	layout   hal.PipelineLayout
	vertices *GpuBuffer[Vertex]
	indices  *GpuBuffer[uint16]
	image    *GpuImage
	set      hal.DescriptorSet
}

// NewVolume uploads the geometry and the voxels concurrently.
func NewVolume(ctx context.Context, u *Uploader, p *VolumePipeline, desc VolumeDesc) (*Volume, error) {
	return newVolume(ctx, u, p, desc, 0)
}

func newVolume(ctx context.Context, u *Uploader, p *VolumePipeline, desc VolumeDesc, imageUsage hal.ImageUsage) (*Volume, error) {
	if len(desc.Indices) == 0 {
		return nil, errors.New("volume has no indices")
	}

	v := &Volume{id: core.NewID(), dc: u.dc, pipeline: p, layout: p.Layout()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		v.vertices, err = UploadAsync(gctx, u, desc.Vertices, hal.BufferUsageVertex)
		return err
	})
	g.Go(func() (err error) {
		v.indices, err = UploadAsync(gctx, u, desc.Indices, hal.BufferUsageIndex)
		return err
	})
	g.Go(func() (err error) {
		v.image, err = UploadImageAsync(gctx, u, desc.Voxels, ImageUploadDesc{
			Type:   hal.ImageType3D,
			Format: hal.FormatR8Unorm,
			Extent: desc.Extent,
			Usage:  imageUsage,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		v.Destroy()
		return nil, err
	}

	set, err := p.AllocateVolumeSet(v.image)
	if err != nil {
		v.Destroy()
		return nil, err
	}
	v.set = set

	core.LogDebug("Volume %s uploaded: %d vertices, %dx%dx%d voxels.", v.id, len(desc.Vertices),
		desc.Extent.Width, desc.Extent.Height, desc.Extent.Depth)
	return v, nil
}

func (v *Volume) ID() core.ID {
	return v.id
}

func (v *Volume) Image() *GpuImage {
	return v.image
}

// RecordDraw implements Drawable.
func (v *Volume) RecordDraw(cb hal.CommandBuffer, pipeline hal.Pipeline, push []byte) {
	dev := v.dc.Device
	dev.CmdBindPipeline(cb, hal.PipelineBindPointGraphics, pipeline)
	dev.CmdBindDescriptorSets(cb, hal.PipelineBindPointGraphics, v.layout, 0, []hal.DescriptorSet{v.set})
	dev.CmdBindVertexBuffers(cb, 0, []hal.Buffer{v.vertices.Buffer}, []uint64{0})
	dev.CmdBindIndexBuffer(cb, v.indices.Buffer, 0, hal.IndexTypeUint16)
	if len(push) > 0 {
		dev.CmdPushConstants(cb, v.layout, hal.ShaderStageVertex|hal.ShaderStageFragment, 0, push)
	}
	dev.CmdDrawIndexed(cb, uint32(v.indices.Len), 1, 0, 0, 0)
}

// Destroy releases the GPU resources. The volume must not be registered
// with a scheduler or used by a frame in flight.
func (v *Volume) Destroy() {
	if !v.set.IsNil() {
		if err := v.pipeline.FreeVolumeSet(v.set); err != nil {
			core.LogWarn("volume %s: %s", v.id, err)
		}
		v.set = hal.DescriptorSet{}
	}
	if v.vertices != nil {
		v.vertices.Destroy()
	}
	if v.indices != nil {
		v.indices.Destroy()
	}
	if v.image != nil {
		v.image.Destroy()
	}
}

// MutableVolume is a volume whose voxels can be written on the GPU with
// Stencil. Writes are applied by the StencilPass before the next render pass.
type MutableVolume struct {
	*Volume
	stencil    *StencilPass
	storageSet hal.DescriptorSet

	mu     sync.Mutex
	writes [][3]uint32
}

func NewMutableVolume(ctx context.Context, u *Uploader, p *VolumePipeline, stencil *StencilPass, desc VolumeDesc) (*MutableVolume, error) {
	v, err := newVolume(ctx, u, p, desc, hal.ImageUsageStorage)
	if err != nil {
		return nil, err
	}
	set, err := stencil.allocateStorageSet(v.image)
	if err != nil {
		v.Destroy()
		return nil, err
	}
	mv := &MutableVolume{Volume: v, stencil: stencil, storageSet: set}
	stencil.track(mv)
	return mv, nil
}

// Destroy releases the storage set and the volume. The volume must be
// untracked by its StencilPass first.
func (mv *MutableVolume) Destroy() {
	if !mv.storageSet.IsNil() {
		if err := mv.stencil.freeStorageSet(mv.storageSet); err != nil {
			core.LogWarn("volume %s: %s", mv.id, err)
		}
		mv.storageSet = hal.DescriptorSet{}
	}
	mv.Volume.Destroy()
}

// Stencil queues a write of the voxel at pos.
func (mv *MutableVolume) Stencil(pos [3]uint32) error {
	e := mv.image.Extent
	if pos[0] >= e.Width || pos[1] >= e.Height || pos[2] >= e.Depth {
		return errors.Wrapf(core.ErrOutOfBounds, "stencil at %v outside %dx%dx%d", pos, e.Width, e.Height, e.Depth)
	}
	mv.mu.Lock()
	defer mv.mu.Unlock()
	mv.writes = append(mv.writes, pos)
	return nil
}

// takeWrites returns and clears the queued writes.
func (mv *MutableVolume) takeWrites() [][3]uint32 {
	mv.mu.Lock()
	defer mv.mu.Unlock()
	w := mv.writes
	mv.writes = nil
	return w
}

// requeue puts writes taken for a frame that never ran back in front.
func (mv *MutableVolume) requeue(writes [][3]uint32) {
	mv.mu.Lock()
	defer mv.mu.Unlock()
	mv.writes = append(append([][3]uint32(nil), writes...), mv.writes...)
}
