package math

import (
	"encoding/binary"
	m "math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestCameraLook(t *testing.T) {
	c := NewCamera()
	c.Sensitivity = 0.5
	c.Look(0.2, -0.4)
	assert.InDelta(t, -0.1, c.Yaw, 1e-6)
	assert.InDelta(t, 0.2, c.Pitch, 1e-6)
	assert.InDelta(t, 1.0, c.Rotation.Len(), 1e-5)

	// pitch is limited to straight up / down
	c.Look(0, -100)
	assert.InDelta(t, m.Pi/2, c.Pitch, 1e-6)
}

func TestCameraMoveFollowsYaw(t *testing.T) {
	c := NewCamera()
	c.Speed = 1
	c.Move(1, 0, 0, 1)
	assert.True(t, c.Position.ApproxEqual(mgl32.Vec3{0, 1, 0}))

	c = NewCamera()
	c.Speed = 1
	c.Yaw = m.Pi / 2
	c.Move(1, 0, 0, 1)
	assert.True(t, c.Position.ApproxEqualThreshold(mgl32.Vec3{-1, 0, 0}, 1e-5))
}

func TestCameraPushConstants(t *testing.T) {
	c := NewCamera()
	c.Position = mgl32.Vec3{1, 2, 3}
	pc := c.PushConstants()
	assert.Len(t, pc, CameraPushConstantSize)

	f := func(i int) float32 { return m.Float32frombits(binary.LittleEndian.Uint32(pc[i*4:])) }
	assert.Equal(t, float32(1), f(0))
	assert.Equal(t, float32(2), f(1))
	assert.Equal(t, float32(3), f(2))
	// identity quaternion, w last
	assert.Equal(t, float32(0), f(4))
	assert.Equal(t, float32(1), f(7))
}
