package core

import "sync"

// Key code definitions
type KeyCode uint16

const (
	KEY_UNKNOWN KeyCode = 0x00
	KEY_TAB     KeyCode = 0x09
	KEY_ENTER   KeyCode = 0x0D
	KEY_ESCAPE  KeyCode = 0x1B
	KEY_SPACE   KeyCode = 0x20
	KEY_LEFT    KeyCode = 0x25
	KEY_UP      KeyCode = 0x26
	KEY_RIGHT   KeyCode = 0x27
	KEY_DOWN    KeyCode = 0x28
	KEY_A       KeyCode = 0x41
	KEY_D       KeyCode = 0x44
	KEY_E       KeyCode = 0x45
	KEY_Q       KeyCode = 0x51
	KEY_R       KeyCode = 0x52
	KEY_S       KeyCode = 0x53
	KEY_W       KeyCode = 0x57
	KEY_F1      KeyCode = 0x70
	KEY_LSHIFT  KeyCode = 0xA0
	KEY_LCTRL   KeyCode = 0xA2
	KEYS_MAX_KEYS
)

// Mouse state structure
type MouseState struct {
	X float64
	Y float64
}

// Keyboard state structure
type KeyboardState struct {
	Keys [256]bool
}

// Input holds current and previous states for keyboard and mouse and forwards
// state changes to the event bus.
type Input struct {
	mu               sync.Mutex
	bus              *EventBus
	keyboardCurrent  KeyboardState
	keyboardPrevious KeyboardState
	mouseCurrent     MouseState
	mousePrevious    MouseState
	mouseSeen        bool
}

func NewInput(bus *EventBus) *Input {
	LogInfo("Input subsystem initialized.")
	return &Input{bus: bus}
}

// Update copies current states to previous states. Call once per frame.
func (in *Input) Update() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.keyboardPrevious = in.keyboardCurrent
	in.mousePrevious = in.mouseCurrent
}

// keyboard input
func (in *Input) IsKeyDown(key KeyCode) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.keyboardCurrent.Keys[key]
}

func (in *Input) WasKeyDown(key KeyCode) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.keyboardPrevious.Keys[key]
}

func (in *Input) ProcessKey(key KeyCode, pressed bool) {
	in.mu.Lock()
	// Only handle this if the state actually changed.
	changed := in.keyboardCurrent.Keys[key] != pressed
	in.keyboardCurrent.Keys[key] = pressed
	in.mu.Unlock()
	if !changed {
		return
	}

	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	ctx := EventContext{}
	ctx.Data.U16[0] = uint16(key)
	in.bus.Fire(code, in, ctx)
}

// mouse input
func (in *Input) MousePosition() (float64, float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mouseCurrent.X, in.mouseCurrent.Y
}

// ProcessMouseMove stores the cursor position and fires the delta since the
// previous position. The first sample only sets the origin.
func (in *Input) ProcessMouseMove(x, y float64) {
	in.mu.Lock()
	if !in.mouseSeen {
		in.mouseSeen = true
		in.mouseCurrent = MouseState{X: x, Y: y}
		in.mu.Unlock()
		return
	}
	dx, dy := x-in.mouseCurrent.X, y-in.mouseCurrent.Y
	in.mouseCurrent = MouseState{X: x, Y: y}
	in.mu.Unlock()
	if dx == 0 && dy == 0 {
		return
	}

	ctx := EventContext{}
	ctx.Data.F64[0] = dx
	ctx.Data.F64[1] = dy
	in.bus.Fire(EVENT_CODE_MOUSE_MOVED, in, ctx)
}
