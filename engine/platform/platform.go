package platform

import (
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type WindowOptions struct {
	Title         string
	X, Y          int
	Width, Height int
	// Hide and capture the cursor for mouse look.
	CaptureCursor bool
}

// Window is a GLFW window without a client API, presented to by Vulkan.
// Keyboard and cursor input is forwarded to core.Input, framebuffer size
// changes are fired as EVENT_CODE_RESIZED.
type Window struct {
	handle *glfw.Window
	input  *core.Input
	bus    *core.EventBus
}

func NewWindow(opts WindowOptions, input *core.Input, bus *core.EventBus) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, errors.New("glfw reports no Vulkan loader")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	handle, err := glfw.CreateWindow(opts.Width, opts.Height, opts.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, errors.Wrap(err, "failed to create window")
	}

	w := &Window{
		handle: handle,
		input:  input,
		bus:    bus,
	}
	handle.SetKeyCallback(w.keyCallback)
	handle.SetCursorPosCallback(w.cursorPosCallback)
	handle.SetFramebufferSizeCallback(w.framebufferSizeCallback)
	handle.SetCloseCallback(w.closeCallback)
	if opts.CaptureCursor {
		handle.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
	}
	handle.SetPos(opts.X, opts.Y)
	handle.Show()

	core.LogInfo("Window '%s' created at %dx%d.", opts.Title, opts.Width, opts.Height)
	return w, nil
}

func (w *Window) FramebufferSize() (uint32, uint32) {
	width, height := w.handle.GetFramebufferSize()
	if width < 0 || height < 0 {
		return 0, 0
	}
	return uint32(width), uint32(height)
}

func (w *Window) ShouldClose() bool {
	return w.handle.ShouldClose()
}

func (w *Window) RequestClose() {
	w.handle.SetShouldClose(true)
}

// PumpMessages dispatches pending window events to the callbacks.
func (w *Window) PumpMessages() {
	glfw.PollEvents()
}

// WaitMessages blocks until an event arrives. Used while minimized.
func (w *Window) WaitMessages() {
	glfw.WaitEvents()
}

func (w *Window) Destroy() {
	w.handle.Destroy()
	glfw.Terminate()
}

func (w *Window) InstanceProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (w *Window) RequiredInstanceExtensions() []string {
	return w.handle.GetRequiredInstanceExtensions()
}

func (w *Window) CreateWindowSurface(instance vk.Instance) (uintptr, error) {
	return w.handle.CreateWindowSurface(instance, nil)
}

func (w *Window) keyCallback(_ *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action == glfw.Repeat {
		return
	}
	code := translateKey(key)
	if code == core.KEY_UNKNOWN {
		return
	}
	w.input.ProcessKey(code, action == glfw.Press)
}

func (w *Window) cursorPosCallback(_ *glfw.Window, xpos, ypos float64) {
	w.input.ProcessMouseMove(xpos, ypos)
}

func (w *Window) framebufferSizeCallback(_ *glfw.Window, width, height int) {
	ctx := core.EventContext{}
	ctx.Data.U32[0] = uint32(width)
	ctx.Data.U32[1] = uint32(height)
	w.bus.Fire(core.EVENT_CODE_RESIZED, w, ctx)
}

func (w *Window) closeCallback(_ *glfw.Window) {
	w.bus.Fire(core.EVENT_CODE_APPLICATION_QUIT, w, core.EventContext{})
}

var keys = map[glfw.Key]core.KeyCode{
	glfw.KeyTab:         core.KEY_TAB,
	glfw.KeyEnter:       core.KEY_ENTER,
	glfw.KeyEscape:      core.KEY_ESCAPE,
	glfw.KeySpace:       core.KEY_SPACE,
	glfw.KeyLeft:        core.KEY_LEFT,
	glfw.KeyUp:          core.KEY_UP,
	glfw.KeyRight:       core.KEY_RIGHT,
	glfw.KeyDown:        core.KEY_DOWN,
	glfw.KeyA:           core.KEY_A,
	glfw.KeyD:           core.KEY_D,
	glfw.KeyE:           core.KEY_E,
	glfw.KeyQ:           core.KEY_Q,
	glfw.KeyR:           core.KEY_R,
	glfw.KeyS:           core.KEY_S,
	glfw.KeyW:           core.KEY_W,
	glfw.KeyF1:          core.KEY_F1,
	glfw.KeyLeftShift:   core.KEY_LSHIFT,
	glfw.KeyLeftControl: core.KEY_LCTRL,
}

func translateKey(key glfw.Key) core.KeyCode {
	if code, ok := keys[key]; ok {
		return code
	}
	return core.KEY_UNKNOWN
}
