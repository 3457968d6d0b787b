package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

func (d *Device) CreateFence(signaled bool) (hal.Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := check(vk.CreateFence(d.device, &fenceCreateInfo, nil, &fence), "vkCreateFence"); err != nil {
		return hal.Fence{}, err
	}
	return hal.Fence{Handle: insert(d, SynchronizationManagement, d.fences, fence)}, nil
}

func (d *Device) DestroyFence(f hal.Fence) {
	if fence, ok := remove(d, SynchronizationManagement, d.fences, f.Handle); ok {
		vk.DestroyFence(d.device, fence, nil)
	}
}

func (d *Device) vkFences(fences []hal.Fence) ([]vk.Fence, error) {
	out := make([]vk.Fence, len(fences))
	for i, f := range fences {
		fence, err := lookup(d, SynchronizationManagement, d.fences, f.Handle)
		if err != nil {
			return nil, err
		}
		out[i] = fence
	}
	return out, nil
}

func (d *Device) WaitForFences(fences []hal.Fence, timeout uint64) error {
	handles, err := d.vkFences(fences)
	if err != nil {
		return err
	}
	result := vk.WaitForFences(d.device, uint32(len(handles)), handles, vk.True, timeout)
	switch result {
	case vk.Success:
		return nil
	case vk.Timeout:
		return errors.Wrapf(core.ErrFenceTimeout, "vkWaitForFences after %dns", timeout)
	}
	return check(result, "vkWaitForFences")
}

func (d *Device) ResetFences(fences []hal.Fence) error {
	handles, err := d.vkFences(fences)
	if err != nil {
		return err
	}
	return check(vk.ResetFences(d.device, uint32(len(handles)), handles), "vkResetFences")
}

func (d *Device) FenceStatus(f hal.Fence) (bool, error) {
	fence, err := lookup(d, SynchronizationManagement, d.fences, f.Handle)
	if err != nil {
		return false, err
	}
	result := vk.GetFenceStatus(d.device, fence)
	switch result {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	}
	return false, check(result, "vkGetFenceStatus")
}

func (d *Device) CreateSemaphore() (hal.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := check(vk.CreateSemaphore(d.device, &semaphoreCreateInfo, nil, &semaphore), "vkCreateSemaphore"); err != nil {
		return hal.Semaphore{}, err
	}
	return hal.Semaphore{Handle: insert(d, SynchronizationManagement, d.semaphores, semaphore)}, nil
}

func (d *Device) DestroySemaphore(s hal.Semaphore) {
	if semaphore, ok := remove(d, SynchronizationManagement, d.semaphores, s.Handle); ok {
		vk.DestroySemaphore(d.device, semaphore, nil)
	}
}

func (d *Device) vkSemaphores(semaphores []hal.Semaphore) ([]vk.Semaphore, error) {
	out := make([]vk.Semaphore, len(semaphores))
	for i, s := range semaphores {
		semaphore, err := lookup(d, SynchronizationManagement, d.semaphores, s.Handle)
		if err != nil {
			return nil, err
		}
		out[i] = semaphore
	}
	return out, nil
}
