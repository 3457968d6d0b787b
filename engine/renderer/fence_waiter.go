package renderer

import (
	"sync"
	"time"

	"github.com/spaghettifunk/voxen/engine/containers"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

type fenceWait struct {
	fence  hal.Fence
	future *core.Future[struct{}]
}

// FenceWaiter turns fences into futures. One goroutine polls every pending
// fence at a fixed interval and completes its future once the fence is
// signaled, so callers can await GPU work without holding a thread in a
// blocking wait.
type FenceWaiter struct {
	dev      hal.SyncDevice
	interval time.Duration

	mu      sync.Mutex
	pending *containers.RingQueue[*fenceWait]
	closed  bool

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

func NewFenceWaiter(dev hal.SyncDevice, interval time.Duration) *FenceWaiter {
	w := &FenceWaiter{
		dev:      dev,
		interval: interval,
		pending:  containers.NewGrowableRingQueue[*fenceWait](8),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.loop()
	return w
}

// Wait returns a future completed when f is signaled. The fence must stay
// alive until the future is done.
func (w *FenceWaiter) Wait(f hal.Fence) *core.Future[struct{}] {
	future := core.NewFuture[struct{}]()

	// Already signaled, nothing to register.
	signaled, err := w.dev.FenceStatus(f)
	if err != nil {
		future.Reject(err)
		return future
	}
	if signaled {
		future.Resolve(struct{}{})
		return future
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		future.Reject(core.ErrFutureCancelled)
		return future
	}
	_ = w.pending.Enqueue(&fenceWait{fence: f, future: future})
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return future
}

// Pending returns the number of fences being polled.
func (w *FenceWaiter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending.Len()
}

func (w *FenceWaiter) loop() {
	defer close(w.stopped)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.mu.Lock()
		idle := w.pending.IsEmpty()
		w.mu.Unlock()

		if idle {
			select {
			case <-w.done:
				return
			case <-w.wake:
			}
			continue
		}

		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll checks each pending fence once and requeues those still unsignaled.
func (w *FenceWaiter) poll() {
	w.mu.Lock()
	batch := make([]*fenceWait, 0, w.pending.Len())
	for !w.pending.IsEmpty() {
		fw, _ := w.pending.Dequeue()
		batch = append(batch, fw)
	}
	w.mu.Unlock()

	var unsignaled []*fenceWait
	for _, fw := range batch {
		signaled, err := w.dev.FenceStatus(fw.fence)
		switch {
		case err != nil:
			core.LogError("fence status poll failed: %s", err)
			fw.future.Reject(err)
		case signaled:
			fw.future.Resolve(struct{}{})
		default:
			unsignaled = append(unsignaled, fw)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, fw := range unsignaled {
		if w.closed {
			fw.future.Reject(core.ErrFutureCancelled)
			continue
		}
		_ = w.pending.Enqueue(fw)
	}
}

// Close stops the polling goroutine. Futures still pending fail with
// core.ErrFutureCancelled.
func (w *FenceWaiter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	for !w.pending.IsEmpty() {
		fw, _ := w.pending.Dequeue()
		fw.future.Reject(core.ErrFutureCancelled)
	}
	w.mu.Unlock()

	close(w.done)
	<-w.stopped
}
