package hal

import (
	"fmt"

	"github.com/spaghettifunk/voxen/engine/core"
)

// Handle is a generation-checked index into an Arena. The zero Handle is
// never returned by an arena and is used as "no object".
type Handle struct {
	index      uint32
	generation uint32
}

func (h Handle) IsNil() bool {
	return h.generation == 0
}

func (h Handle) String() string {
	if h.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("%d#%d", h.index, h.generation)
}

type slot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// Arena stores objects in reusable slots. Removing an object bumps the slot
// generation so handles to it stop resolving.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

func (a *Arena[T]) Insert(value T) Handle {
	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		index = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{})
	}
	s := &a.slots[index]
	s.generation++
	s.value = value
	s.occupied = true
	a.live++
	return Handle{index: index, generation: s.generation}
}

func (a *Arena[T]) Get(h Handle) (T, error) {
	s, err := a.lookup(h)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.value, nil
}

// Set replaces the object stored under h.
func (a *Arena[T]) Set(h Handle, value T) error {
	s, err := a.lookup(h)
	if err != nil {
		return err
	}
	s.value = value
	return nil
}

func (a *Arena[T]) Remove(h Handle) (T, error) {
	var zero T
	s, err := a.lookup(h)
	if err != nil {
		return zero, err
	}
	value := s.value
	s.value = zero
	s.occupied = false
	// Odd generations are live, even ones are free, so a bumped generation
	// can never match an old handle.
	s.generation++
	a.free = append(a.free, h.index)
	a.live--
	return value, nil
}

func (a *Arena[T]) Contains(h Handle) bool {
	_, err := a.lookup(h)
	return err == nil
}

func (a *Arena[T]) Len() int {
	return a.live
}

// Each visits live objects in slot order.
func (a *Arena[T]) Each(fn func(h Handle, value T)) {
	for i := range a.slots {
		s := &a.slots[i]
		if s.occupied {
			fn(Handle{index: uint32(i), generation: s.generation}, s.value)
		}
	}
}

func (a *Arena[T]) lookup(h Handle) (*slot[T], error) {
	if h.IsNil() || int(h.index) >= len(a.slots) {
		return nil, core.ErrStaleHandle
	}
	s := &a.slots[h.index]
	if !s.occupied || s.generation != h.generation {
		return nil, core.ErrStaleHandle
	}
	return s, nil
}

// Typed handles. Each GPU object kind gets its own type so a fence can never
// be passed where a buffer is expected.
type (
	Memory              struct{ Handle }
	Buffer              struct{ Handle }
	Image               struct{ Handle }
	ImageView           struct{ Handle }
	Sampler             struct{ Handle }
	Fence               struct{ Handle }
	Semaphore           struct{ Handle }
	CommandPool         struct{ Handle }
	CommandBuffer       struct{ Handle }
	Swapchain           struct{ Handle }
	ShaderModule        struct{ Handle }
	RenderPass          struct{ Handle }
	Framebuffer         struct{ Handle }
	PipelineLayout      struct{ Handle }
	Pipeline            struct{ Handle }
	DescriptorSetLayout struct{ Handle }
	DescriptorPool      struct{ Handle }
	DescriptorSet       struct{ Handle }
)
