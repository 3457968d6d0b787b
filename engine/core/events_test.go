package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBusRegisterFire(t *testing.T) {
	bus := NewEventBus()
	var width, height uint32
	listener := &struct{}{}

	ok := bus.Register(EVENT_CODE_RESIZED, listener, func(code SystemEventCode, sender, l interface{}, data EventContext) bool {
		assert.Same(t, listener, l)
		width, height = data.Data.U32[0], data.Data.U32[1]
		return true
	})
	assert.True(t, ok)

	// duplicate listener
	assert.False(t, bus.Register(EVENT_CODE_RESIZED, listener, func(SystemEventCode, interface{}, interface{}, EventContext) bool { return false }))

	ctx := EventContext{}
	ctx.Data.U32[0] = 800
	ctx.Data.U32[1] = 600
	assert.True(t, bus.Fire(EVENT_CODE_RESIZED, nil, ctx))
	assert.Equal(t, uint32(800), width)
	assert.Equal(t, uint32(600), height)

	assert.False(t, bus.Fire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}))
}

func TestEventBusHandledStopsPropagation(t *testing.T) {
	bus := NewEventBus()
	calls := 0
	first, second := &struct{ a int }{}, &struct{ b int }{}
	bus.Register(EVENT_CODE_KEY_PRESSED, first, func(SystemEventCode, interface{}, interface{}, EventContext) bool {
		calls++
		return true
	})
	bus.Register(EVENT_CODE_KEY_PRESSED, second, func(SystemEventCode, interface{}, interface{}, EventContext) bool {
		calls++
		return false
	})
	bus.Fire(EVENT_CODE_KEY_PRESSED, nil, EventContext{})
	assert.Equal(t, 1, calls)

	assert.True(t, bus.Unregister(EVENT_CODE_KEY_PRESSED, first))
	assert.False(t, bus.Unregister(EVENT_CODE_KEY_PRESSED, first))
	bus.Fire(EVENT_CODE_KEY_PRESSED, nil, EventContext{})
	assert.Equal(t, 2, calls)

	bus.Shutdown()
	assert.False(t, bus.Fire(EVENT_CODE_KEY_PRESSED, nil, EventContext{}))
}

func TestInputFiresMouseDelta(t *testing.T) {
	bus := NewEventBus()
	in := NewInput(bus)
	var dx, dy float64
	fired := 0
	bus.Register(EVENT_CODE_MOUSE_MOVED, nil, func(_ SystemEventCode, _, _ interface{}, data EventContext) bool {
		fired++
		dx, dy = data.Data.F64[0], data.Data.F64[1]
		return true
	})

	in.ProcessMouseMove(100, 100)
	assert.Equal(t, 0, fired)
	in.ProcessMouseMove(103, 98)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 3.0, dx)
	assert.Equal(t, -2.0, dy)
}

func TestInputKeyState(t *testing.T) {
	bus := NewEventBus()
	in := NewInput(bus)
	pressed := 0
	bus.Register(EVENT_CODE_KEY_PRESSED, nil, func(_ SystemEventCode, _, _ interface{}, data EventContext) bool {
		pressed++
		assert.Equal(t, uint16(KEY_W), data.Data.U16[0])
		return true
	})

	in.ProcessKey(KEY_W, true)
	in.ProcessKey(KEY_W, true)
	assert.Equal(t, 1, pressed)
	assert.True(t, in.IsKeyDown(KEY_W))
	assert.False(t, in.WasKeyDown(KEY_W))
	in.Update()
	assert.True(t, in.WasKeyDown(KEY_W))
}
