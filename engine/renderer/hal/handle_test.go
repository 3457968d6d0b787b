package hal

import (
	"testing"

	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaInsertGetRemove(t *testing.T) {
	a := NewArena[string]()
	h1 := a.Insert("fence")
	h2 := a.Insert("buffer")
	assert.False(t, h1.IsNil())
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, a.Len())

	v, err := a.Get(h1)
	require.NoError(t, err)
	assert.Equal(t, "fence", v)

	v, err = a.Remove(h1)
	require.NoError(t, err)
	assert.Equal(t, "fence", v)
	assert.Equal(t, 1, a.Len())

	_, err = a.Get(h1)
	assert.ErrorIs(t, err, core.ErrStaleHandle)
	_, err = a.Remove(h1)
	assert.ErrorIs(t, err, core.ErrStaleHandle)
}

func TestArenaReusedSlotRejectsStaleHandle(t *testing.T) {
	a := NewArena[int]()
	old := a.Insert(1)
	_, err := a.Remove(old)
	require.NoError(t, err)

	fresh := a.Insert(2)
	assert.Equal(t, old.index, fresh.index)
	assert.NotEqual(t, old.generation, fresh.generation)

	_, err = a.Get(old)
	assert.ErrorIs(t, err, core.ErrStaleHandle)
	v, err := a.Get(fresh)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestArenaNilHandle(t *testing.T) {
	a := NewArena[int]()
	_, err := a.Get(Handle{})
	assert.ErrorIs(t, err, core.ErrStaleHandle)
	assert.True(t, Fence{}.IsNil())
	assert.Equal(t, "nil", Handle{}.String())
}

func TestArenaEachAndSet(t *testing.T) {
	a := NewArena[int]()
	h1 := a.Insert(1)
	h2 := a.Insert(2)
	h3 := a.Insert(3)
	_, _ = a.Remove(h2)
	require.NoError(t, a.Set(h3, 30))
	assert.ErrorIs(t, a.Set(h2, 20), core.ErrStaleHandle)

	var seen []int
	a.Each(func(h Handle, v int) {
		seen = append(seen, v)
	})
	assert.Equal(t, []int{1, 30}, seen)
	assert.True(t, a.Contains(h1))
	assert.False(t, a.Contains(h2))
}
