package testbed

import (
	m "math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/voxen/engine"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/math"
	"github.com/spaghettifunk/voxen/engine/renderer"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

// Radians per pixel of mouse movement.
const mouseSensitivity = 0.002

type TestGame struct {
	*engine.Game
}

type gameState struct {
	engine *engine.Engine
	camera *math.Camera

	width  uint32
	height uint32

	volumes []renderer.Drawable
	canvas  *renderer.MutableVolume
	brush   [3]uint32
}

func NewTestGame(appConfig *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: appConfig,
			State: &gameState{
				camera: math.NewCamera(),
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	core.LogDebug("TestGame Initialize fn....")

	state := g.state()
	state.engine = e
	state.camera.Position = mgl32.Vec3{0, -2, 0.5}

	r := e.Renderer()
	ctx := e.Context()

	// Two flat quads side by side.
	left, err := r.AddVolume(ctx, quad(-0.9, -0.1, 0.2, checkerboard(8)))
	if err != nil {
		return err
	}
	right, err := r.AddVolume(ctx, quad(0.1, 0.9, 0.2, sphere(16, 0.45)))
	if err != nil {
		return err
	}
	// A volume the stencil pass writes into.
	canvas, err := r.AddMutableVolume(ctx, quad(-0.4, 0.4, -0.6, empty(16)))
	if err != nil {
		return err
	}
	state.volumes = []renderer.Drawable{left, right, canvas}
	state.canvas = canvas
	state.brush = [3]uint32{8, 8, 8}

	e.Bus().Register(core.EVENT_CODE_MOUSE_MOVED, g, g.onMouseMoved)
	e.Bus().Register(core.EVENT_CODE_KEY_RELEASED, g, g.onKeyReleased)
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.state()
	input := state.engine.Input()

	var forward, right, up float32
	if input.IsKeyDown(core.KEY_W) || input.IsKeyDown(core.KEY_UP) {
		forward++
	}
	if input.IsKeyDown(core.KEY_S) || input.IsKeyDown(core.KEY_DOWN) {
		forward--
	}
	if input.IsKeyDown(core.KEY_D) || input.IsKeyDown(core.KEY_RIGHT) {
		right++
	}
	if input.IsKeyDown(core.KEY_A) || input.IsKeyDown(core.KEY_LEFT) {
		right--
	}
	if input.IsKeyDown(core.KEY_SPACE) || input.IsKeyDown(core.KEY_E) {
		up++
	}
	if input.IsKeyDown(core.KEY_LCTRL) || input.IsKeyDown(core.KEY_Q) {
		up--
	}
	if forward != 0 || right != 0 || up != 0 {
		state.camera.Move(forward, right, up, float32(deltaTime))
	}
	return nil
}

func (g *TestGame) Render(deltaTime float64) ([]byte, error) {
	return g.state().camera.PushConstants(), nil
}

func (g *TestGame) OnResize(width, height uint32) error {
	state := g.state()
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.state()
	for _, v := range state.volumes {
		if err := state.engine.Renderer().RemoveVolume(v); err != nil {
			core.LogWarn("failed to remove volume %s: %s", v.ID(), err)
		}
	}
	state.volumes = nil
	return nil
}

func (g *TestGame) onMouseMoved(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	dx, dy := data.Data.F64[0], data.Data.F64[1]
	g.state().camera.Look(float32(dx*mouseSensitivity), float32(dy*mouseSensitivity))
	return false
}

// R stamps a voxel into the canvas and walks the brush along the diagonal.
func (g *TestGame) onKeyReleased(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	if core.KeyCode(data.Data.U16[0]) != core.KEY_R {
		return false
	}
	state := g.state()
	if err := state.canvas.Stencil(state.brush); err != nil {
		core.LogError("stencil failed: %s", err)
		return true
	}
	for i := range state.brush {
		state.brush[i] = (state.brush[i] + 1) % 16
	}
	return true
}

func quad(lo, hi, z float32, voxels []uint8) renderer.VolumeDesc {
	side := uint32(m.Round(m.Cbrt(float64(len(voxels)))))
	return renderer.VolumeDesc{
		Vertices: []renderer.Vertex{
			{Pos: mgl32.Vec2{lo, lo + z}, Color: mgl32.Vec3{1, 0, 0}},
			{Pos: mgl32.Vec2{hi, lo + z}, Color: mgl32.Vec3{0, 1, 0}},
			{Pos: mgl32.Vec2{hi, hi + z}, Color: mgl32.Vec3{0, 0, 1}},
			{Pos: mgl32.Vec2{lo, hi + z}, Color: mgl32.Vec3{1, 1, 1}},
		},
		Indices: renderer.QuadIndices,
		Voxels:  voxels,
		Extent:  hal.Extent3D{Width: side, Height: side, Depth: side},
	}
}

func empty(side int) []uint8 {
	return make([]uint8, side*side*side)
}

func checkerboard(side int) []uint8 {
	voxels := empty(side)
	for z := 0; z < side; z++ {
		for y := 0; y < side; y++ {
			for x := 0; x < side; x++ {
				if (x+y+z)%2 == 0 {
					voxels[(z*side+y)*side+x] = 255
				}
			}
		}
	}
	return voxels
}

// sphere stores a signed distance field, 128 is the surface.
func sphere(side int, radius float64) []uint8 {
	voxels := empty(side)
	for z := 0; z < side; z++ {
		for y := 0; y < side; y++ {
			for x := 0; x < side; x++ {
				p := mgl32.Vec3{
					float32(x)/float32(side-1) - 0.5,
					float32(y)/float32(side-1) - 0.5,
					float32(z)/float32(side-1) - 0.5,
				}
				d := float64(p.Len()) - radius
				voxels[(z*side+y)*side+x] = uint8(math.Clamp(float32(128-d*255), 0, 255))
			}
		}
	}
	return voxels
}
