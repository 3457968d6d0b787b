package renderer

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
	"golang.org/x/exp/constraints"
)

// Mapping is a host view of mapped device memory. Every accessor fails with
// core.ErrUnmapped once Unmap has been called.
type Mapping struct {
	dev  hal.MemoryDevice
	mem  hal.Memory
	mu   sync.RWMutex
	data []byte
}

func (m *Mapping) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Bytes returns a copy of the mapped range.
func (m *Mapping) Bytes() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return nil, core.ErrUnmapped
	}
	return append([]byte(nil), m.data...), nil
}

// WriteAt copies src into the mapping at offset.
func (m *Mapping) WriteAt(src []byte, offset uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return core.ErrUnmapped
	}
	if offset+uint64(len(src)) > uint64(len(m.data)) {
		return fmt.Errorf("write of %d bytes at %d into %d byte mapping: %w", len(src), offset, len(m.data), core.ErrOutOfBounds)
	}
	copy(m.data[offset:], src)
	return nil
}

func (m *Mapping) Unmap() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return
	}
	m.dev.UnmapMemory(m.mem)
	m.data = nil
}

type Texel interface {
	constraints.Integer | constraints.Float
}

// View3D reads and writes a mapping as a width*height*depth grid of T laid
// out x fastest, then y, then z.
type View3D[T Texel] struct {
	m      *Mapping
	extent hal.Extent3D
	stride uint64
}

func NewView3D[T Texel](m *Mapping, extent hal.Extent3D) (*View3D[T], error) {
	var zero T
	stride := uint64(binary.Size(zero))
	if need := extent.Texels() * stride; need > uint64(m.Len()) {
		return nil, fmt.Errorf("view of %d bytes over %d byte mapping: %w", need, m.Len(), core.ErrOutOfBounds)
	}
	return &View3D[T]{m: m, extent: extent, stride: stride}, nil
}

func (v *View3D[T]) Extent() hal.Extent3D {
	return v.extent
}

func (v *View3D[T]) offset(x, y, z uint32) (uint64, error) {
	if x >= v.extent.Width || y >= v.extent.Height || z >= v.extent.Depth {
		return 0, fmt.Errorf("texel (%d,%d,%d) outside %dx%dx%d: %w", x, y, z,
			v.extent.Width, v.extent.Height, v.extent.Depth, core.ErrOutOfBounds)
	}
	i := (uint64(z)*uint64(v.extent.Height)+uint64(y))*uint64(v.extent.Width) + uint64(x)
	return i * v.stride, nil
}

func (v *View3D[T]) At(x, y, z uint32) (T, error) {
	var out T
	off, err := v.offset(x, y, z)
	if err != nil {
		return out, err
	}
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	if v.m.data == nil {
		return out, core.ErrUnmapped
	}
	if _, err := binary.Decode(v.m.data[off:off+v.stride], binary.LittleEndian, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (v *View3D[T]) Set(x, y, z uint32, value T) error {
	off, err := v.offset(x, y, z)
	if err != nil {
		return err
	}
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if v.m.data == nil {
		return core.ErrUnmapped
	}
	_, err = binary.Encode(v.m.data[off:off+v.stride], binary.LittleEndian, value)
	return err
}

// Fill calls fn for every texel, in memory order.
func (v *View3D[T]) Fill(fn func(x, y, z uint32) T) error {
	for z := uint32(0); z < v.extent.Depth; z++ {
		for y := uint32(0); y < v.extent.Height; y++ {
			for x := uint32(0); x < v.extent.Width; x++ {
				if err := v.Set(x, y, z, fn(x, y, z)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
