package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReleaserRunsInReverseOrder(t *testing.T) {
	var order []int
	var r releaser
	for i := 0; i < 3; i++ {
		i := i
		r.push(func() { order = append(order, i) })
	}
	r.release()
	assert.Equal(t, []int{2, 1, 0}, order)

	r.release()
	assert.Equal(t, []int{2, 1, 0}, order)
}

func TestReleaserTakeTransfersOwnership(t *testing.T) {
	released := false
	owned := func() releaser {
		var r releaser
		defer r.release()
		r.push(func() { released = true })
		return r.take()
	}()
	assert.False(t, released)
	owned.release()
	assert.True(t, released)
}
