package hal

import (
	"github.com/spaghettifunk/voxen/engine/core"
)

// SelectPhysicalDevice returns the device and the queue family to use. A
// candidate needs one family supporting both graphics and presentation, the
// required extensions and surface support. Discrete GPUs win over the rest,
// otherwise enumeration order decides.
func SelectPhysicalDevice(devices []PhysicalDeviceInfo) (int, uint32, error) {
	bestDevice, bestFamily, bestScore := -1, uint32(0), -1
	for i, dev := range devices {
		if !dev.HasExtensions {
			core.LogInfo("Device '%s' lacks required extensions, skipping.", dev.Name)
			continue
		}
		if !dev.HasSurfaceSupport {
			core.LogInfo("Device '%s' has no swapchain support for the surface, skipping.", dev.Name)
			continue
		}
		family, ok := SelectQueueFamily(dev.QueueFamilies)
		if !ok {
			core.LogInfo("Device '%s' has no graphics and present queue family, skipping.", dev.Name)
			continue
		}
		score := 0
		if dev.Type == PhysicalDeviceTypeDiscrete {
			score = 1
		}
		if score > bestScore {
			bestDevice, bestFamily, bestScore = i, family, score
		}
	}
	if bestDevice < 0 {
		return -1, 0, core.ErrNoSuitableDevice
	}
	return bestDevice, bestFamily, nil
}

// SelectQueueFamily returns the first family supporting graphics and
// presentation.
func SelectQueueFamily(families []QueueFamily) (uint32, bool) {
	for i, f := range families {
		if f.Graphics && f.Present {
			return uint32(i), true
		}
	}
	return 0, false
}
