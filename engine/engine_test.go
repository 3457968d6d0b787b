package engine

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
	"github.com/spaghettifunk/voxen/engine/renderer/hal/haltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// magic, version, generator, bound, schema
var spirvModule = []byte{
	0x03, 0x02, 0x23, 0x07,
	0x00, 0x00, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

type fakeWindow struct {
	mu        sync.Mutex
	w, h      uint32
	close     bool
	waits     int
	destroyed bool
}

func (f *fakeWindow) FramebufferSize() (uint32, uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w, f.h
}

func (f *fakeWindow) PumpMessages() {}

func (f *fakeWindow) WaitMessages() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits++
}

func (f *fakeWindow) ShouldClose() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.close
}

func (f *fakeWindow) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
}

func writeShaders(t *testing.T, dir string) {
	t.Helper()
	for _, name := range shaderFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), spirvModule, 0o644))
	}
}

func quad(lo, hi float32) renderer.VolumeDesc {
	extent := hal.Extent3D{Width: 2, Height: 2, Depth: 2}
	return renderer.VolumeDesc{
		Vertices: []renderer.Vertex{
			{Pos: mgl32.Vec2{lo, lo}, Color: mgl32.Vec3{1, 0, 0}},
			{Pos: mgl32.Vec2{hi, lo}, Color: mgl32.Vec3{0, 1, 0}},
			{Pos: mgl32.Vec2{hi, hi}, Color: mgl32.Vec3{0, 0, 1}},
			{Pos: mgl32.Vec2{lo, hi}, Color: mgl32.Vec3{1, 1, 1}},
		},
		Indices: renderer.QuadIndices,
		Voxels:  make([]uint8, extent.Texels()),
		Extent:  extent,
	}
}

func newTestEngine(t *testing.T, hotReload bool, g *Game) (*Engine, *fakeWindow, *haltest.Device) {
	t.Helper()
	dir := t.TempDir()
	writeShaders(t, dir)

	cfg := core.DefaultConfig()
	cfg.Log.Level = "error"
	cfg.Renderer.Validation = false
	cfg.Renderer.FencePollIntervalUS = 50
	cfg.Assets.ShaderDir = dir
	cfg.Assets.HotReload = hotReload
	cfg.Assets.FileWorkers = 2

	g.ApplicationConfig = &ApplicationConfig{Config: cfg}
	e, err := New(g)
	require.NoError(t, err)

	window := &fakeWindow{w: cfg.Application.Width, h: cfg.Application.Height}
	dev := haltest.NewDevice()
	require.NoError(t, e.initialize(window, func() (hal.Device, error) { return dev, nil }))
	return e, window, dev
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(&Game{})
	assert.Error(t, err)

	cfg := core.DefaultConfig()
	cfg.Log.Level = "verbose"
	_, err = New(&Game{ApplicationConfig: &ApplicationConfig{Config: cfg}})
	assert.Error(t, err)
}

func TestEngineDrawsFrames(t *testing.T) {
	var updates, renders int
	var resized [2]uint32
	g := &Game{
		FnInitialize: func(e *Engine) error {
			_, err := e.Renderer().AddVolume(e.Context(), quad(-0.5, 0.5))
			return err
		},
		FnUpdate: func(dt float64) error {
			updates++
			return nil
		},
		FnRender: func(dt float64) ([]byte, error) {
			renders++
			return make([]byte, 32), nil
		},
		FnOnResize: func(w, h uint32) error {
			resized = [2]uint32{w, h}
			return nil
		},
	}
	e, window, dev := newTestEngine(t, false, g)
	assert.Equal(t, EngineStageInitialized, e.Stage())
	assert.Equal(t, [2]uint32{1440, 810}, resized)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.frame())
	}
	assert.Equal(t, 3, updates)
	assert.Equal(t, 3, renders)
	assert.Equal(t, 3, dev.Draws())
	assert.Equal(t, uint64(3), e.Metrics().Snapshot().FramesDrawn)
	assert.Len(t, dev.PushConstants(), 3)

	require.NoError(t, e.Shutdown())
	assert.Equal(t, EngineStageShutdown, e.Stage())
	assert.True(t, window.destroyed)
	assert.Zero(t, dev.Live())
	assert.Empty(t, dev.Violations())
	assert.Error(t, e.Context().Err())

	// A second shutdown is a no-op.
	require.NoError(t, e.Shutdown())
}

func TestEngineSuspendsWhileMinimized(t *testing.T) {
	var resizes int
	e, window, dev := newTestEngine(t, false, &Game{
		FnOnResize: func(w, h uint32) error {
			resizes++
			return nil
		},
	})
	defer e.Shutdown()

	require.NoError(t, e.frame())
	swapchains := dev.Count("CreateSwapchain")

	resize := func(w, h uint32) {
		var ctx core.EventContext
		ctx.Data.U32[0] = w
		ctx.Data.U32[1] = h
		e.Bus().Fire(core.EVENT_CODE_RESIZED, window, ctx)
	}

	resize(0, 0)
	require.NoError(t, e.frame())
	require.NoError(t, e.frame())
	assert.Equal(t, 2, window.waits)
	assert.Equal(t, uint64(1), e.Metrics().Snapshot().FramesDrawn)

	window.mu.Lock()
	window.w, window.h = 800, 600
	window.mu.Unlock()
	dev.SetSurface(hal.SurfaceCapabilities{
		MinImageCount:  2,
		MaxImageCount:  8,
		CurrentExtent:  hal.Extent2D{Width: 800, Height: 600},
		MinImageExtent: hal.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: hal.Extent2D{Width: 4096, Height: 4096},
	})
	resize(800, 600)
	require.NoError(t, e.frame())

	w, h := e.GetFramebufferSize()
	assert.Equal(t, uint32(800), w)
	assert.Equal(t, uint32(600), h)
	// Initial call plus the restore, the minimize is not forwarded.
	assert.Equal(t, 2, resizes)
	assert.Equal(t, swapchains+1, dev.Count("CreateSwapchain"))
	assert.Equal(t, uint64(2), e.Metrics().Snapshot().FramesDrawn)
}

func TestEscapeStopsTheLoop(t *testing.T) {
	e, _, _ := newTestEngine(t, false, &Game{})
	defer e.Shutdown()

	e.Input().ProcessKey(core.KEY_ESCAPE, true)
	assert.False(t, e.isRunning.Load())
	require.NoError(t, e.Run())
}

func TestWindowCloseStopsTheLoop(t *testing.T) {
	var renders int
	e, window, _ := newTestEngine(t, false, &Game{
		FnRender: func(dt float64) ([]byte, error) {
			renders++
			return nil, nil
		},
	})
	defer e.Shutdown()

	window.close = true
	require.NoError(t, e.Run())
	assert.Zero(t, renders)
}

func TestGameErrorsEndTheLoop(t *testing.T) {
	boom := errors.New("boom")
	e, _, _ := newTestEngine(t, false, &Game{
		FnUpdate: func(dt float64) error { return boom },
	})
	defer e.Shutdown()

	err := e.Run()
	assert.ErrorIs(t, err, boom)
}

func TestInitializeFailsWithoutShaders(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Log.Level = "error"
	cfg.Assets.ShaderDir = t.TempDir()
	cfg.Assets.HotReload = false

	e, err := New(&Game{ApplicationConfig: &ApplicationConfig{Config: cfg}})
	require.NoError(t, err)

	dev := haltest.NewDevice()
	window := &fakeWindow{w: 640, h: 480}
	err = e.initialize(window, func() (hal.Device, error) { return dev, nil })
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 1, dev.Count("Destroy"))

	require.NoError(t, e.Shutdown())
	assert.True(t, window.destroyed)
}

func TestInitializeFailsWhenDeviceDoesNotOpen(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Log.Level = "error"
	dir := t.TempDir()
	writeShaders(t, dir)
	cfg.Assets.ShaderDir = dir
	cfg.Assets.HotReload = false

	e, err := New(&Game{ApplicationConfig: &ApplicationConfig{Config: cfg}})
	require.NoError(t, err)
	defer e.Shutdown()

	err = e.initialize(&fakeWindow{w: 640, h: 480}, func() (hal.Device, error) {
		return nil, core.ErrNoSuitableDevice
	})
	assert.ErrorIs(t, err, core.ErrNoSuitableDevice)
	assert.Nil(t, e.Renderer())
}

func TestShaderKind(t *testing.T) {
	kind, ok := shaderKind("/tmp/shaders/volume.frag.spv")
	require.True(t, ok)
	assert.Equal(t, renderer.ShaderVolumeFragment, kind)

	kind, ok = shaderKind("stencil.comp.spv")
	require.True(t, ok)
	assert.Equal(t, renderer.ShaderStencil, kind)

	_, ok = shaderKind("volume.frag")
	assert.False(t, ok)
}

func TestHotReloadRebuildsPipeline(t *testing.T) {
	e, _, dev := newTestEngine(t, true, &Game{})
	defer e.Shutdown()
	require.NotNil(t, e.watcher)

	require.NoError(t, e.frame())
	pipelines := dev.Count("CreateGraphicsPipeline")

	path := filepath.Join(e.config.Assets.ShaderDir, "volume.frag.spv")
	require.NoError(t, os.WriteFile(path, spirvModule, 0o644))

	assert.Eventually(t, func() bool {
		if err := e.frame(); err != nil {
			return false
		}
		return dev.Count("CreateGraphicsPipeline") > pipelines
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, dev.Violations())
}
