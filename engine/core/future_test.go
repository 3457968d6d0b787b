package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureResolveOnce(t *testing.T) {
	f := NewFuture[int]()
	_, _, ready := f.Poll()
	assert.False(t, ready)

	go f.Resolve(42)
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	// Later completions are ignored.
	f.Resolve(7)
	f.Reject(errors.New("late"))
	v, err, ready = f.Poll()
	assert.True(t, ready)
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestFutureReject(t *testing.T) {
	f := NewFuture[string]()
	f.Reject(ErrFutureCancelled)
	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, ErrFutureCancelled)
}

func TestFutureAwaitContext(t *testing.T) {
	f := NewFuture[struct{}]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolved(t *testing.T) {
	f := Resolved("done")
	select {
	case <-f.Done():
	default:
		t.Fatal("resolved future should be done")
	}
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}
