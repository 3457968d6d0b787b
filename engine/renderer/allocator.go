package renderer

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

type MemoryUsage int

const (
	// Device local, never mapped.
	MemoryUsageGpuOnly MemoryUsage = iota
	// Host visible and coherent, written by the CPU and read once by the GPU.
	MemoryUsageCpuToGpu
	// Host visible, preferably cached, written by the GPU and read back.
	MemoryUsageGpuToCpu
)

func (u MemoryUsage) String() string {
	switch u {
	case MemoryUsageGpuOnly:
		return "gpu_only"
	case MemoryUsageCpuToGpu:
		return "cpu_to_gpu"
	case MemoryUsageGpuToCpu:
		return "gpu_to_cpu"
	}
	return "unknown"
}

func (u MemoryUsage) properties() (required, preferred hal.MemoryProperty) {
	switch u {
	case MemoryUsageCpuToGpu:
		return hal.MemoryPropertyHostVisible | hal.MemoryPropertyHostCoherent, 0
	case MemoryUsageGpuToCpu:
		return hal.MemoryPropertyHostVisible | hal.MemoryPropertyHostCoherent, hal.MemoryPropertyHostCached
	}
	return hal.MemoryPropertyDeviceLocal, 0
}

// Allocation is one dedicated block of device memory.
type Allocation struct {
	Memory hal.Memory
	Size   uint64
	Usage  MemoryUsage
}

type AllocatorStats struct {
	Allocations int
	Bytes       map[MemoryUsage]uint64
}

// Allocator gives every resource its own memory block, picked by usage.
type Allocator struct {
	dev   hal.MemoryDevice
	props hal.MemoryProperties

	mu    sync.Mutex
	live  int
	bytes map[MemoryUsage]uint64
}

func NewAllocator(dev hal.MemoryDevice) *Allocator {
	return &Allocator{
		dev:   dev,
		props: dev.MemoryProperties(),
		bytes: make(map[MemoryUsage]uint64),
	}
}

// FindMemoryIndex returns the first memory type allowed by typeBits that has
// the required properties, preferring one that also has the preferred ones.
func (a *Allocator) FindMemoryIndex(typeBits uint32, required, preferred hal.MemoryProperty) (uint32, error) {
	want := required | preferred
	for pass := 0; pass < 2; pass++ {
		for i, t := range a.props.Types {
			if typeBits&(1<<uint(i)) == 0 {
				continue
			}
			if t.Properties&want == want {
				return uint32(i), nil
			}
		}
		want = required
	}
	err := fmt.Errorf("no memory type for bits %b with properties %b: %w", typeBits, required, core.ErrNoMemoryType)
	core.LogError(err.Error())
	return 0, err
}

func (a *Allocator) Allocate(req hal.MemoryRequirements, usage MemoryUsage) (*Allocation, error) {
	required, preferred := usage.properties()
	index, err := a.FindMemoryIndex(req.TypeBits, required, preferred)
	if err != nil {
		return nil, err
	}
	mem, err := a.dev.AllocateMemory(req.Size, index)
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d bytes of %s memory", req.Size, usage)
	}

	a.mu.Lock()
	a.live++
	a.bytes[usage] += req.Size
	a.mu.Unlock()

	return &Allocation{Memory: mem, Size: req.Size, Usage: usage}, nil
}

func (a *Allocator) Free(al *Allocation) {
	if al == nil || al.Memory.IsNil() {
		return
	}
	a.dev.FreeMemory(al.Memory)

	a.mu.Lock()
	a.live--
	a.bytes[al.Usage] -= al.Size
	a.mu.Unlock()

	al.Memory = hal.Memory{}
}

// Map maps a host visible allocation for its whole size.
func (a *Allocator) Map(al *Allocation) (*Mapping, error) {
	if al.Usage == MemoryUsageGpuOnly {
		return nil, fmt.Errorf("cannot map %s memory", al.Usage)
	}
	data, err := a.dev.MapMemory(al.Memory, 0, al.Size)
	if err != nil {
		return nil, errors.Wrap(err, "map memory")
	}
	return &Mapping{dev: a.dev, mem: al.Memory, data: data}, nil
}

func (a *Allocator) Stats() AllocatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	bytes := make(map[MemoryUsage]uint64, len(a.bytes))
	for k, v := range a.bytes {
		bytes[k] = v
	}
	return AllocatorStats{Allocations: a.live, Bytes: bytes}
}

// createBuffer creates a buffer and binds a fresh allocation to it.
func (a *Allocator) createBuffer(dev hal.ResourceDevice, desc hal.BufferDesc, usage MemoryUsage) (hal.Buffer, *Allocation, error) {
	var r releaser
	defer r.release()

	buf, err := dev.CreateBuffer(desc)
	if err != nil {
		return hal.Buffer{}, nil, errors.Wrap(err, "create buffer")
	}
	r.push(func() { dev.DestroyBuffer(buf) })

	req, err := dev.BufferMemoryRequirements(buf)
	if err != nil {
		return hal.Buffer{}, nil, errors.Wrap(err, "buffer memory requirements")
	}
	alloc, err := a.Allocate(req, usage)
	if err != nil {
		return hal.Buffer{}, nil, err
	}
	r.push(func() { a.Free(alloc) })

	if err := dev.BindBufferMemory(buf, alloc.Memory, 0); err != nil {
		return hal.Buffer{}, nil, errors.Wrap(err, "bind buffer memory")
	}
	r.take()
	return buf, alloc, nil
}

// createImage creates an image in device local memory.
func (a *Allocator) createImage(dev hal.ResourceDevice, desc hal.ImageDesc) (hal.Image, *Allocation, error) {
	var r releaser
	defer r.release()

	img, err := dev.CreateImage(desc)
	if err != nil {
		return hal.Image{}, nil, errors.Wrap(err, "create image")
	}
	r.push(func() { dev.DestroyImage(img) })

	req, err := dev.ImageMemoryRequirements(img)
	if err != nil {
		return hal.Image{}, nil, errors.Wrap(err, "image memory requirements")
	}
	alloc, err := a.Allocate(req, MemoryUsageGpuOnly)
	if err != nil {
		return hal.Image{}, nil, err
	}
	r.push(func() { a.Free(alloc) })

	if err := dev.BindImageMemory(img, alloc.Memory, 0); err != nil {
		return hal.Image{}, nil, errors.Wrap(err, "bind image memory")
	}
	r.take()
	return img, alloc, nil
}
