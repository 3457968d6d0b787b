package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

func (d *Device) SurfaceCapabilities() (hal.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.surface, &caps), "vkGetPhysicalDeviceSurfaceCapabilities"); err != nil {
		return hal.SurfaceCapabilities{}, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return hal.SurfaceCapabilities{
		MinImageCount:    caps.MinImageCount,
		MaxImageCount:    caps.MaxImageCount,
		CurrentExtent:    hal.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
		MinImageExtent:   hal.Extent2D{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
		MaxImageExtent:   hal.Extent2D{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
		CurrentTransform: uint32(caps.CurrentTransform),
	}, nil
}

// SurfaceFormats skips formats the renderer cannot name.
func (d *Device) SurfaceFormats() ([]hal.SurfaceFormat, error) {
	var count uint32
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &count, nil), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return nil, err
	}
	available := make([]vk.SurfaceFormat, count)
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &count, available), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return nil, err
	}
	out := make([]hal.SurfaceFormat, 0, count)
	for i := range available {
		available[i].Deref()
		format, ok := fromFormat(available[i].Format)
		if !ok {
			continue
		}
		out = append(out, hal.SurfaceFormat{Format: format, ColorSpace: fromColorSpace(available[i].ColorSpace)})
	}
	return out, nil
}

func (d *Device) SurfacePresentModes() ([]hal.PresentMode, error) {
	var count uint32
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &count, nil), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
		return nil, err
	}
	available := make([]vk.PresentMode, count)
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &count, available), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
		return nil, err
	}
	out := make([]hal.PresentMode, len(available))
	for i, m := range available {
		out[i] = fromPresentMode(m)
	}
	return out, nil
}

func (d *Device) CreateSwapchain(desc hal.SwapchainDesc) (hal.Swapchain, error) {
	old := vk.NullSwapchain
	if !desc.OldSwapchain.IsNil() {
		sc, err := lookup(d, SwapchainManagement, d.swapchains, desc.OldSwapchain.Handle)
		if err != nil {
			return hal.Swapchain{}, err
		}
		old = sc.handle
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    desc.MinImageCount,
		ImageFormat:      toFormat(desc.Format.Format),
		ImageColorSpace:  toColorSpace(desc.Format.ColorSpace),
		ImageExtent:      toExtent2D(desc.Extent),
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		// One queue family does graphics and presentation.
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     vk.SurfaceTransformFlagBits(desc.PreTransform),
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      toPresentMode(desc.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     old,
	}

	var handle vk.Swapchain
	if err := check(vk.CreateSwapchain(d.device, &swapchainCreateInfo, nil, &handle), "vkCreateSwapchain"); err != nil {
		return hal.Swapchain{}, err
	}

	var count uint32
	if err := check(vk.GetSwapchainImages(d.device, handle, &count, nil), "vkGetSwapchainImages"); err != nil {
		vk.DestroySwapchain(d.device, handle, nil)
		return hal.Swapchain{}, err
	}
	vkImages := make([]vk.Image, count)
	if err := check(vk.GetSwapchainImages(d.device, handle, &count, vkImages), "vkGetSwapchainImages"); err != nil {
		vk.DestroySwapchain(d.device, handle, nil)
		return hal.Swapchain{}, err
	}

	images := make([]hal.Image, count)
	for i, img := range vkImages {
		images[i] = hal.Image{Handle: insert(d, ResourceManagement, d.images, image{handle: img, swapchain: true})}
	}
	core.LogDebug("Swapchain created with %d images at %dx%d.", count, desc.Extent.Width, desc.Extent.Height)
	return hal.Swapchain{Handle: insert(d, SwapchainManagement, d.swapchains, swapchain{handle: handle, images: images})}, nil
}

func (d *Device) SwapchainImages(sc hal.Swapchain) ([]hal.Image, error) {
	s, err := lookup(d, SwapchainManagement, d.swapchains, sc.Handle)
	if err != nil {
		return nil, err
	}
	return append([]hal.Image(nil), s.images...), nil
}

// DestroySwapchain also drops the swapchain's images. Views created on them
// must already be destroyed.
func (d *Device) DestroySwapchain(sc hal.Swapchain) {
	s, ok := remove(d, SwapchainManagement, d.swapchains, sc.Handle)
	if !ok {
		return
	}
	for _, img := range s.images {
		remove(d, ResourceManagement, d.images, img.Handle)
	}
	vk.DestroySwapchain(d.device, s.handle, nil)
}

func (d *Device) AcquireNextImage(sc hal.Swapchain, timeout uint64, signal hal.Semaphore) (uint32, hal.SwapchainStatus, error) {
	s, err := lookup(d, SwapchainManagement, d.swapchains, sc.Handle)
	if err != nil {
		return 0, hal.SwapchainOutOfDate, err
	}
	semaphore, err := lookup(d, SynchronizationManagement, d.semaphores, signal.Handle)
	if err != nil {
		return 0, hal.SwapchainOutOfDate, err
	}
	var index uint32
	result := vk.AcquireNextImage(d.device, s.handle, timeout, semaphore, vk.NullFence, &index)
	switch result {
	case vk.Success:
		return index, hal.SwapchainOptimal, nil
	case vk.Suboptimal:
		return index, hal.SwapchainSuboptimal, nil
	case vk.ErrorOutOfDate:
		return 0, hal.SwapchainOutOfDate, nil
	}
	return 0, hal.SwapchainOutOfDate, check(result, "vkAcquireNextImage")
}

func (d *Device) QueuePresent(sc hal.Swapchain, imageIndex uint32, wait []hal.Semaphore) (hal.SwapchainStatus, error) {
	s, err := lookup(d, SwapchainManagement, d.swapchains, sc.Handle)
	if err != nil {
		return hal.SwapchainOutOfDate, err
	}
	semaphores, err := d.vkSemaphores(wait)
	if err != nil {
		return hal.SwapchainOutOfDate, err
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(semaphores)),
		PWaitSemaphores:    semaphores,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.handle},
		PImageIndices:      []uint32{imageIndex},
	}

	var result vk.Result
	_ = d.locks.SafeQueueCall(d.family, func() error {
		result = vk.QueuePresent(d.queue, &presentInfo)
		return nil
	})
	switch result {
	case vk.Success:
		return hal.SwapchainOptimal, nil
	case vk.Suboptimal:
		return hal.SwapchainSuboptimal, nil
	case vk.ErrorOutOfDate:
		return hal.SwapchainOutOfDate, nil
	}
	return hal.SwapchainOutOfDate, check(result, "vkQueuePresent")
}
