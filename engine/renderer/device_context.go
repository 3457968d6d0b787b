package renderer

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

// Infinite timeout for fence waits and image acquisition.
const timeoutInfinite = ^uint64(0)

type DeviceContextOptions struct {
	// Interval between fence polls of the async upload waiter.
	FencePollInterval time.Duration
	Metrics           *core.Metrics
}

// DeviceContext bundles the device with the objects every other component
// borrows: the allocator, the command pools and the fence waiter. It is
// created once and must outlive everything built from it.
type DeviceContext struct {
	Device    hal.Device
	Allocator *Allocator
	Waiter    *FenceWaiter
	Metrics   *core.Metrics

	// Pool for buffers recorded once and reset individually.
	commandPool hal.CommandPool
	// Pool for one-shot transfer buffers.
	transientPool hal.CommandPool

	// Command pools are externally synchronized.
	transientMu sync.Mutex
	// The single queue is shared by uploads and the present loop.
	queueMu sync.Mutex

	release releaser
}

func NewDeviceContext(dev hal.Device, opts DeviceContextOptions) (*DeviceContext, error) {
	var r releaser
	defer r.release()

	if opts.Metrics == nil {
		opts.Metrics = core.NewMetrics()
	}
	if opts.FencePollInterval <= 0 {
		opts.FencePollInterval = 250 * time.Microsecond
	}

	dc := &DeviceContext{
		Device:    dev,
		Allocator: NewAllocator(dev),
		Metrics:   opts.Metrics,
	}

	pool, err := dev.CreateCommandPool(hal.CommandPoolDesc{ResetCommandBuffer: true})
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}
	r.push(func() { dev.DestroyCommandPool(pool) })
	dc.commandPool = pool

	transient, err := dev.CreateCommandPool(hal.CommandPoolDesc{Transient: true})
	if err != nil {
		return nil, errors.Wrap(err, "create transient command pool")
	}
	r.push(func() { dev.DestroyCommandPool(transient) })
	dc.transientPool = transient

	dc.Waiter = NewFenceWaiter(dev, opts.FencePollInterval)
	r.push(dc.Waiter.Close)

	core.LogInfo("Device context created on %s.", dev.Name())
	dc.release = r.take()
	return dc, nil
}

// CommandPool returns the general purpose pool.
func (dc *DeviceContext) CommandPool() hal.CommandPool {
	return dc.commandPool
}

// Submit serializes access to the queue.
func (dc *DeviceContext) Submit(submits []hal.SubmitInfo, fence hal.Fence) error {
	dc.queueMu.Lock()
	defer dc.queueMu.Unlock()
	if err := dc.Device.QueueSubmit(submits, fence); err != nil {
		return errors.Wrap(err, "queue submit")
	}
	return nil
}

func (dc *DeviceContext) Present(sc hal.Swapchain, imageIndex uint32, wait []hal.Semaphore) (hal.SwapchainStatus, error) {
	dc.queueMu.Lock()
	defer dc.queueMu.Unlock()
	return dc.Device.QueuePresent(sc, imageIndex, wait)
}

// WaitFence blocks until f is signaled.
func (dc *DeviceContext) WaitFence(f hal.Fence) error {
	if err := dc.Device.WaitForFences([]hal.Fence{f}, timeoutInfinite); err != nil {
		return errors.Wrap(err, "wait for fence")
	}
	return nil
}

// WaitIdle blocks until the device has finished all submitted work.
func (dc *DeviceContext) WaitIdle() error {
	dc.queueMu.Lock()
	defer dc.queueMu.Unlock()
	return dc.Device.WaitIdle()
}

// Destroy waits for the device to go idle and releases the context objects.
// The device itself belongs to the caller.
func (dc *DeviceContext) Destroy() {
	if err := dc.WaitIdle(); err != nil {
		core.LogError("device wait idle failed: %s", err)
	}
	dc.release.release()
	core.LogInfo("Device context destroyed.")
}
