package math

import (
	"encoding/binary"
	m "math"

	"github.com/go-gl/mathgl/mgl32"
)

// CameraPushConstantSize is the byte size of the block the volume shaders read:
// position (vec3), padding, rotation quaternion (x, y, z, w).
const CameraPushConstantSize = 32

type Camera struct {
	Position    mgl32.Vec3
	Rotation    mgl32.Quat
	Yaw         float32
	Pitch       float32
	Sensitivity float32
	Speed       float32
}

func NewCamera() *Camera {
	return &Camera{
		Rotation:    mgl32.QuatIdent(),
		Sensitivity: 1.0,
		Speed:       4.0,
	}
}

// Look turns the camera by a mouse delta already scaled to radians.
func (c *Camera) Look(dx, dy float32) {
	c.Yaw -= dx * c.Sensitivity
	c.Pitch -= dy * c.Sensitivity
	c.Pitch = Clamp(c.Pitch, -m.Pi/2, m.Pi/2)
	c.update()
}

// Move translates the camera in its local frame. forward is along the view
// direction projected on the ground plane, up is world z.
func (c *Camera) Move(forward, right, up, deltaTime float32) {
	yaw := mgl32.QuatRotate(c.Yaw, mgl32.Vec3{0, 0, 1})
	f := yaw.Rotate(mgl32.Vec3{0, 1, 0})
	r := yaw.Rotate(mgl32.Vec3{1, 0, 0})
	step := c.Speed * deltaTime
	c.Position = c.Position.
		Add(f.Mul(forward * step)).
		Add(r.Mul(right * step)).
		Add(mgl32.Vec3{0, 0, up * step})
}

func (c *Camera) update() {
	c.Rotation = mgl32.QuatRotate(c.Yaw, mgl32.Vec3{0, 0, 1}).
		Mul(mgl32.QuatRotate(c.Pitch, mgl32.Vec3{1, 0, 0})).
		Normalize()
}

// PushConstants serialises the camera the way the shaders expect it.
func (c *Camera) PushConstants() []byte {
	out := make([]byte, CameraPushConstantSize)
	put := func(i int, f float32) {
		binary.LittleEndian.PutUint32(out[i*4:], m.Float32bits(f))
	}
	put(0, c.Position.X())
	put(1, c.Position.Y())
	put(2, c.Position.Z())
	put(3, 0)
	put(4, c.Rotation.V.X())
	put(5, c.Rotation.V.Y())
	put(6, c.Rotation.V.Z())
	put(7, c.Rotation.W)
	return out
}
