package core

import (
	"errors"
)

var (
	// Swapchain no longer matches the surface. Recoverable by recreation.
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	// Swapchain still presents but no longer matches the surface exactly.
	ErrSwapchainSuboptimal = errors.New("swapchain suboptimal")

	ErrNoSuitableDevice   = errors.New("no physical device with a graphics and present capable queue family")
	ErrPresentUnsupported = errors.New("surface does not support presentation on the selected queue family")
	ErrDeviceLost         = errors.New("device lost")
	ErrOutOfDeviceMemory  = errors.New("out of device memory")
	ErrNoMemoryType       = errors.New("no memory type satisfies the allocation")
	ErrFenceTimeout       = errors.New("fence wait timed out")

	ErrStaleHandle     = errors.New("stale or unknown handle")
	ErrUnmapped        = errors.New("mapping already released")
	ErrOutOfBounds     = errors.New("access out of bounds")
	ErrFutureCancelled = errors.New("future cancelled")
	ErrClosed          = errors.New("already closed")
	ErrUnknown         = errors.New("unknown")
)

// IsSwapchainStale reports whether err is one of the two recoverable
// swapchain conditions.
func IsSwapchainStale(err error) bool {
	return errors.Is(err, ErrSwapchainOutOfDate) || errors.Is(err, ErrSwapchainSuboptimal)
}
