package engine

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/assets"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/platform"
	"github.com/spaghettifunk/voxen/engine/renderer"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
	"github.com/spaghettifunk/voxen/engine/renderer/vulkan"
	"golang.org/x/sync/errgroup"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Everything has been released
	EngineStageShutdown
)

// Compiled shader file per renderer module, relative to the shader directory.
var shaderFiles = map[renderer.ShaderKind]string{
	renderer.ShaderVolumeVertex:   "volume.vert.spv",
	renderer.ShaderVolumeFragment: "volume.frag.spv",
	renderer.ShaderStencil:        "stencil.comp.spv",
}

// Window is what the engine needs from the platform window.
type Window interface {
	renderer.Window
	PumpMessages()
	WaitMessages()
	ShouldClose() bool
	Destroy()
}

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *core.Config

	isRunning   atomic.Bool
	isSuspended bool

	bus      *core.EventBus
	input    *core.Input
	metrics  *core.Metrics
	clock    *core.Clock
	window   Window
	device   hal.Device
	renderer *renderer.Renderer
	files    *assets.FileWorker
	watcher  *assets.ShaderWatcher

	ctx    context.Context
	cancel context.CancelFunc

	width      uint32
	height     uint32
	lastTime   float64
	lastReport float64
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil || g.ApplicationConfig.Config == nil {
		return nil, errors.New("game has no application config")
	}
	cfg := g.ApplicationConfig.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	core.SetLogPrefix(cfg.Log.Prefix)

	bus := core.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		bus:          bus,
		input:        core.NewInput(bus),
		metrics:      core.NewMetrics(),
		clock:        core.NewClock(),
		ctx:          ctx,
		cancel:       cancel,
		width:        cfg.Application.Width,
		height:       cfg.Application.Height,
	}
	e.isRunning.Store(true)
	return e, nil
}

// Initialize opens the window and the Vulkan device and builds the renderer.
func (e *Engine) Initialize() error {
	app := e.config.Application
	window, err := platform.NewWindow(platform.WindowOptions{
		Title:         app.Name,
		X:             int(app.PosX),
		Y:             int(app.PosY),
		Width:         int(app.Width),
		Height:        int(app.Height),
		CaptureCursor: true,
	}, e.input, e.bus)
	if err != nil {
		return err
	}

	return e.initialize(window, func() (hal.Device, error) {
		dev, err := vulkan.Open(vulkan.Config{
			ApplicationName: app.Name,
			Validation:      e.config.Renderer.Validation,
		}, window)
		if err != nil {
			return nil, err
		}
		return dev, nil
	})
}

// initialize reads the shaders on the file worker while the device is
// opened, then builds the renderer and hands control to the game.
func (e *Engine) initialize(window Window, openDevice func() (hal.Device, error)) error {
	e.currentStage = EngineStageInitializing
	e.window = window

	// register some events
	e.bus.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.bus.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.bus.Register(core.EVENT_CODE_RESIZED, e, e.onResized)

	e.files = assets.NewFileWorker(e.config.Assets.FileWorkers)

	var shaders renderer.Shaders
	g, ctx := errgroup.WithContext(e.ctx)
	for kind, name := range shaderFiles {
		kind, path := kind, filepath.Join(e.config.Assets.ShaderDir, name)
		g.Go(func() error {
			shader, err := assets.LoadShader(ctx, e.files, path)
			if err != nil {
				return err
			}
			switch kind {
			case renderer.ShaderVolumeVertex:
				shaders.VolumeVertex = shader.Code
			case renderer.ShaderVolumeFragment:
				shaders.VolumeFragment = shader.Code
			case renderer.ShaderStencil:
				shaders.Stencil = shader.Code
			}
			return nil
		})
	}

	dev, err := openDevice()
	if waitErr := g.Wait(); err == nil {
		err = waitErr
	}
	if err != nil {
		if dev != nil {
			dev.Destroy()
		}
		return err
	}
	e.device = dev
	core.LogInfo("Device '%s' ready.", dev.Name())

	r, err := renderer.New(dev, window, renderer.RendererOptions{
		Shaders:           shaders,
		FencePollInterval: e.config.FencePollInterval(),
		Metrics:           e.metrics,
	})
	if err != nil {
		return err
	}
	e.renderer = r

	if e.config.Assets.HotReload {
		w, err := assets.NewShaderWatcher(e.config.Assets.ShaderDir, e.bus)
		if err != nil {
			// Not fatal, the engine runs with the shaders it loaded.
			core.LogWarn("shader hot reload disabled: %s", err)
		} else {
			e.watcher = w
		}
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		if err := e.frame(); err != nil {
			return err
		}
	}
	return nil
}

// frame runs one iteration of the main loop.
func (e *Engine) frame() error {
	e.window.PumpMessages()
	if e.window.ShouldClose() {
		e.Stop()
		return nil
	}

	if e.isSuspended {
		// Nothing to draw, sleep until the next window event.
		e.window.WaitMessages()
		return nil
	}

	// Update clock and get delta time.
	e.clock.Update()
	currentTime := e.clock.Elapsed()
	delta := currentTime - e.lastTime

	e.reloadShaders()

	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta); err != nil {
			return errors.Wrap(err, "game update failed")
		}
	}

	var push []byte
	if e.gameInstance.FnRender != nil {
		var err error
		if push, err = e.gameInstance.FnRender(delta); err != nil {
			return errors.Wrap(err, "game render failed")
		}
	}

	if _, err := e.renderer.DrawFrame(push); err != nil {
		return err
	}

	e.clock.Update()
	e.metrics.Update(e.clock.Elapsed() - currentTime)
	if currentTime-e.lastReport >= 1.0 {
		e.lastReport = currentTime
		s := e.metrics.Snapshot()
		core.LogDebug("fps %.1f, frame %.2fms, drawn %d, skipped %d, recreations %d, uploads %d",
			s.FPS, s.FrameTimeMS, s.FramesDrawn, s.FramesSkipped, s.Recreations, s.Uploads)
	}

	// NOTE: Input update/state copying should always be handled
	// after any input should be recorded; I.E. before this line.
	e.input.Update()

	e.lastTime = currentTime
	return nil
}

// reloadShaders applies the shader binaries that changed since the last
// frame. A broken binary is logged and the previous module kept.
func (e *Engine) reloadShaders() {
	if e.watcher == nil {
		return
	}
	for _, path := range e.watcher.Drain() {
		kind, ok := shaderKind(path)
		if !ok {
			continue
		}
		shader, err := assets.LoadShader(e.ctx, e.files, path)
		if err != nil {
			core.LogError("failed to reload %s: %s", path, err)
			continue
		}
		if err := e.renderer.ReloadShader(kind, shader.Code); err != nil {
			core.LogError("failed to apply %s: %s", path, err)
			continue
		}
		core.LogInfo("Reloaded shader %s.", filepath.Base(path))
	}
}

func shaderKind(path string) (renderer.ShaderKind, bool) {
	base := filepath.Base(path)
	for kind, name := range shaderFiles {
		if name == base {
			return kind, true
		}
	}
	return 0, false
}

// Stop asks the main loop to return after the current frame. Safe to call
// from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

// Shutdown releases everything in reverse creation order. It must run on
// the main thread after Run returned.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.Stop()
	e.cancel()

	var err error
	if e.gameInstance.FnShutdown != nil {
		err = e.gameInstance.FnShutdown()
	}
	if e.watcher != nil {
		if cerr := e.watcher.Close(); cerr != nil {
			core.LogWarn(cerr.Error())
		}
	}
	if e.renderer != nil {
		e.renderer.Shutdown()
	}
	if e.device != nil {
		e.device.Destroy()
	}
	if e.files != nil {
		e.files.Close()
	}
	if e.window != nil {
		e.window.Destroy()
	}
	e.bus.Shutdown()

	e.currentStage = EngineStageShutdown
	core.LogInfo("Engine shut down.")
	return err
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Input() *core.Input {
	return e.input
}

func (e *Engine) Bus() *core.EventBus {
	return e.bus
}

func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}

// Context is cancelled when the engine shuts down.
func (e *Engine) Context() context.Context {
	return e.ctx
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.Stop()
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if core.KeyCode(data.Data.U16[0]) == core.KEY_ESCAPE {
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.bus.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
		// Block anything else from processing this.
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width, height := data.Data.U32[0], data.Data.U32[1]

	// Check if different. If so, trigger a resize event.
	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return false
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	if e.renderer != nil {
		e.renderer.OnResize(width, height)
	}
	return false
}
