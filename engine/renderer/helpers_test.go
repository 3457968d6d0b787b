package renderer

import (
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
	"github.com/spaghettifunk/voxen/engine/renderer/hal/haltest"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, dev *haltest.Device) *DeviceContext {
	t.Helper()
	dc, err := NewDeviceContext(dev, DeviceContextOptions{
		FencePollInterval: 50 * time.Microsecond,
		Metrics:           core.NewMetrics(),
	})
	require.NoError(t, err)
	return dc
}

// indexOf returns the position of the n-th (0 based) call named name.
func indexOf(calls []string, name string, n int) int {
	for i, c := range calls {
		if c != name {
			continue
		}
		if n == 0 {
			return i
		}
		n--
	}
	return -1
}

func lastIndexOf(calls []string, name string) int {
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i] == name {
			return i
		}
	}
	return -1
}

type fakeWindow struct {
	mu   sync.Mutex
	w, h uint32
}

func newFakeWindow(w, h uint32) *fakeWindow {
	return &fakeWindow{w: w, h: h}
}

func (f *fakeWindow) FramebufferSize() (uint32, uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w, f.h
}

func (f *fakeWindow) resize(w, h uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.w, f.h = w, h
}

var spirvMagic = []uint32{0x07230203, 0x00010000, 0, 1, 0}

var testShaders = Shaders{
	VolumeVertex:   spirvMagic,
	VolumeFragment: spirvMagic,
	Stencil:        spirvMagic,
}

func newTestRenderer(t *testing.T, dev *haltest.Device) (*Renderer, *fakeWindow) {
	t.Helper()
	window := newFakeWindow(1440, 810)
	r, err := New(dev, window, RendererOptions{
		Shaders:           testShaders,
		MaxVolumes:        8,
		FencePollInterval: 50 * time.Microsecond,
		Metrics:           core.NewMetrics(),
	})
	require.NoError(t, err)
	return r, window
}

func quadVolume(lo, hi float32) VolumeDesc {
	extent := hal.Extent3D{Width: 4, Height: 4, Depth: 4}
	return VolumeDesc{
		Vertices: []Vertex{
			{Pos: mgl32.Vec2{lo, lo}, Color: mgl32.Vec3{1, 0, 0}},
			{Pos: mgl32.Vec2{hi, lo}, Color: mgl32.Vec3{0, 1, 0}},
			{Pos: mgl32.Vec2{hi, hi}, Color: mgl32.Vec3{0, 0, 1}},
			{Pos: mgl32.Vec2{lo, hi}, Color: mgl32.Vec3{1, 1, 1}},
		},
		Indices: QuadIndices,
		Voxels:  make([]uint8, extent.Texels()),
		Extent:  extent,
	}
}

func drawFrames(t *testing.T, r *Renderer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		res, err := r.DrawFrame(nil)
		require.NoError(t, err)
		require.Equal(t, FrameDrawn, res)
	}
}
