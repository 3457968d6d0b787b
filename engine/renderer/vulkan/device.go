package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

const portabilitySubset = "VK_KHR_portability_subset"

type Config struct {
	ApplicationName string
	// Enables the Khronos validation layer and routes its reports to the log.
	Validation bool
}

// Surface is the window the device presents to.
type Surface interface {
	InstanceProcAddr() unsafe.Pointer
	RequiredInstanceExtensions() []string
	CreateWindowSurface(instance vk.Instance) (uintptr, error)
}

type image struct {
	handle vk.Image
	// Owned by a swapchain, destroyed with it.
	swapchain bool
}

type commandBuffer struct {
	handle vk.CommandBuffer
	pool   hal.CommandPool
}

type descriptorSet struct {
	handle vk.DescriptorSet
	pool   hal.DescriptorPool
}

type swapchain struct {
	handle vk.Swapchain
	images []hal.Image
}

// Device implements hal.Device on a single Vulkan queue that supports
// graphics, compute, transfer and presentation. Vulkan handles live in
// generation-checked arenas, so a destroyed object can never be reached
// through a stale hal handle.
type Device struct {
	name string

	instance      vk.Instance
	debugCallback vk.DebugReportCallback
	surface       vk.Surface
	physical      vk.PhysicalDevice
	device        vk.Device
	queue         vk.Queue
	family        uint32
	memProps      hal.MemoryProperties

	locks *VulkanLockPool

	memories       *hal.Arena[vk.DeviceMemory]
	buffers        *hal.Arena[vk.Buffer]
	images         *hal.Arena[image]
	views          *hal.Arena[vk.ImageView]
	samplers       *hal.Arena[vk.Sampler]
	fences         *hal.Arena[vk.Fence]
	semaphores     *hal.Arena[vk.Semaphore]
	pools          *hal.Arena[vk.CommandPool]
	commandBuffers *hal.Arena[commandBuffer]
	swapchains     *hal.Arena[swapchain]
	shaders        *hal.Arena[vk.ShaderModule]
	renderPasses   *hal.Arena[vk.RenderPass]
	framebuffers   *hal.Arena[vk.Framebuffer]
	layouts        *hal.Arena[vk.PipelineLayout]
	pipelines      *hal.Arena[vk.Pipeline]
	setLayouts     *hal.Arena[vk.DescriptorSetLayout]
	descPools      *hal.Arena[vk.DescriptorPool]
	descSets       *hal.Arena[descriptorSet]
}

var _ hal.Device = (*Device)(nil)

// Open creates the instance, the window surface and a logical device on the
// best physical device for it.
func Open(cfg Config, surface Surface) (*Device, error) {
	d := &Device{
		locks:          NewVulkanLockPool(),
		memories:       hal.NewArena[vk.DeviceMemory](),
		buffers:        hal.NewArena[vk.Buffer](),
		images:         hal.NewArena[image](),
		views:          hal.NewArena[vk.ImageView](),
		samplers:       hal.NewArena[vk.Sampler](),
		fences:         hal.NewArena[vk.Fence](),
		semaphores:     hal.NewArena[vk.Semaphore](),
		pools:          hal.NewArena[vk.CommandPool](),
		commandBuffers: hal.NewArena[commandBuffer](),
		swapchains:     hal.NewArena[swapchain](),
		shaders:        hal.NewArena[vk.ShaderModule](),
		renderPasses:   hal.NewArena[vk.RenderPass](),
		framebuffers:   hal.NewArena[vk.Framebuffer](),
		layouts:        hal.NewArena[vk.PipelineLayout](),
		pipelines:      hal.NewArena[vk.Pipeline](),
		setLayouts:     hal.NewArena[vk.DescriptorSetLayout](),
		descPools:      hal.NewArena[vk.DescriptorPool](),
		descSets:       hal.NewArena[descriptorSet](),
	}

	ok := false
	defer func() {
		if !ok {
			d.Destroy()
		}
	}()

	if err := d.createInstance(cfg, surface); err != nil {
		return nil, err
	}

	core.LogDebug("Creating Vulkan surface...")
	ptr, err := surface.CreateWindowSurface(d.instance)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create platform surface")
	}
	d.surface = vk.SurfaceFromPointer(ptr)
	core.LogDebug("Vulkan surface created.")

	if err := d.selectPhysicalDevice(); err != nil {
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		return nil, err
	}

	ok = true
	return d, nil
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) MemoryProperties() hal.MemoryProperties {
	return d.memProps
}

func (d *Device) WaitIdle() error {
	return d.locks.SafeQueueCall(d.family, func() error {
		return check(vk.DeviceWaitIdle(d.device), "vkDeviceWaitIdle")
	})
}

// Destroy releases the device, the surface and the instance. Every object
// created from the device must already be destroyed.
func (d *Device) Destroy() {
	if d.device != nil {
		core.LogInfo("Destroying logical device...")
		vk.DeviceWaitIdle(d.device)
		d.reportLeaks()
		vk.DestroyDevice(d.device, nil)
		d.device = nil
	}
	if d.surface != vk.NullSurface {
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = vk.NullSurface
	}
	if d.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.instance, d.debugCallback, nil)
		d.debugCallback = vk.NullDebugReportCallback
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
	core.LogInfo("Vulkan device destroyed.")
}

func (d *Device) reportLeaks() {
	live := map[string]int{
		"memory":            d.memories.Len(),
		"buffer":            d.buffers.Len(),
		"image view":        d.views.Len(),
		"sampler":           d.samplers.Len(),
		"fence":             d.fences.Len(),
		"semaphore":         d.semaphores.Len(),
		"command pool":      d.pools.Len(),
		"swapchain":         d.swapchains.Len(),
		"pipeline":          d.pipelines.Len(),
		"render pass":       d.renderPasses.Len(),
		"descriptor pool":   d.descPools.Len(),
		"shader module":     d.shaders.Len(),
		"framebuffer":       d.framebuffers.Len(),
		"pipeline layout":   d.layouts.Len(),
		"descriptor layout": d.setLayouts.Len(),
	}
	for kind, n := range live {
		if n > 0 {
			core.LogWarn("%d %s object(s) still alive at device destruction", n, kind)
		}
	}
}

func (d *Device) selectPhysicalDevice() error {
	var count uint32
	if err := check(vk.EnumeratePhysicalDevices(d.instance, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}
	if count == 0 {
		return errors.Wrap(core.ErrNoSuitableDevice, "no devices which support Vulkan were found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check(vk.EnumeratePhysicalDevices(d.instance, &count, devices), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}

	infos := make([]hal.PhysicalDeviceInfo, len(devices))
	for i, pd := range devices {
		info, err := d.describe(pd)
		if err != nil {
			return err
		}
		infos[i] = info
	}

	index, family, err := hal.SelectPhysicalDevice(infos)
	if err != nil {
		return err
	}
	d.physical = devices[index]
	d.family = family
	d.name = infos[index].Name
	d.locks.SetQueueFamily(family)

	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(d.physical, &properties)
	properties.Deref()
	core.LogInfo("Selected device: '%s'.", d.name)
	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(properties.DriverVersion).Major(),
		vk.Version(properties.DriverVersion).Minor(),
		vk.Version(properties.DriverVersion).Patch(),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)

	d.memProps = queryMemoryProperties(d.physical)
	for i, size := range d.memProps.HeapSizes {
		core.LogInfo("Memory heap %d: %d MiB", i, size/1024/1024)
	}
	return nil
}

// describe collects what hal.SelectPhysicalDevice needs to rank a device.
func (d *Device) describe(pd vk.PhysicalDevice) (hal.PhysicalDeviceInfo, error) {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &properties)
	properties.Deref()

	info := hal.PhysicalDeviceInfo{
		Name: cString(properties.DeviceName[:]),
		Type: toPhysicalDeviceType(properties.DeviceType),
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)

	core.LogDebug("Graphics | Present | Compute | Transfer | %s", info.Name)
	for i := range families {
		families[i].Deref()
		flags := vk.QueueFlagBits(families[i].QueueFlags)
		var present vk.Bool32
		if err := check(vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), d.surface, &present), "vkGetPhysicalDeviceSurfaceSupport"); err != nil {
			return info, err
		}
		family := hal.QueueFamily{
			Graphics: flags&vk.QueueGraphicsBit != 0,
			Compute:  flags&vk.QueueComputeBit != 0,
			Transfer: flags&vk.QueueTransferBit != 0,
			Present:  present == vk.True,
		}
		core.LogDebug("%8t | %7t | %7t | %8t | family %d", family.Graphics, family.Present, family.Compute, family.Transfer, i)
		info.QueueFamilies = append(info.QueueFamilies, family)
	}

	extensions, err := deviceExtensions(pd)
	if err != nil {
		return info, err
	}
	_, info.HasExtensions = extensions[vk.KhrSwapchainExtensionName]

	var formatCount, modeCount uint32
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(pd, d.surface, &formatCount, nil), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return info, err
	}
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(pd, d.surface, &modeCount, nil), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
		return info, err
	}
	info.HasSurfaceSupport = formatCount > 0 && modeCount > 0
	return info, nil
}

func deviceExtensions(pd vk.PhysicalDevice) (map[string]struct{}, error) {
	var count uint32
	if err := check(vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	available := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if err := check(vk.EnumerateDeviceExtensionProperties(pd, "", &count, available), "vkEnumerateDeviceExtensionProperties"); err != nil {
			return nil, err
		}
	}
	out := make(map[string]struct{}, count)
	for i := range available {
		available[i].Deref()
		out[cString(available[i].ExtensionName[:])] = struct{}{}
	}
	return out, nil
}

func queryMemoryProperties(pd vk.PhysicalDevice) hal.MemoryProperties {
	var props vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &props)
	props.Deref()

	out := hal.MemoryProperties{}
	for i := uint32(0); i < props.MemoryTypeCount; i++ {
		props.MemoryTypes[i].Deref()
		out.Types = append(out.Types, hal.MemoryType{
			Properties: fromMemoryProperties(props.MemoryTypes[i].PropertyFlags),
			HeapIndex:  props.MemoryTypes[i].HeapIndex,
		})
	}
	for i := uint32(0); i < props.MemoryHeapCount; i++ {
		props.MemoryHeaps[i].Deref()
		out.HeapSizes = append(out.HeapSizes, uint64(props.MemoryHeaps[i].Size))
	}
	return out
}

func (d *Device) createLogicalDevice() error {
	core.LogInfo("Creating logical device...")

	extensions := []string{vk.KhrSwapchainExtensionName}
	available, err := deviceExtensions(d.physical)
	if err != nil {
		return err
	}
	if _, ok := available[portabilitySubset]; ok {
		core.LogInfo("Adding required extension '%s'.", portabilitySubset)
		extensions = append(extensions, portabilitySubset)
	}

	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.family,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}

	var device vk.Device
	if err := check(vk.CreateDevice(d.physical, &deviceCreateInfo, nil, &device), "vkCreateDevice"); err != nil {
		return err
	}
	d.device = device
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(d.device, d.family, 0, &queue)
	d.queue = queue
	core.LogInfo("Queue obtained.")
	return nil
}

// Arena access. Each arena belongs to one lock group.

func insert[T any](d *Device, group LockGroup, a *hal.Arena[T], value T) hal.Handle {
	var h hal.Handle
	_ = d.locks.SafeCall(group, func() error {
		h = a.Insert(value)
		return nil
	})
	return h
}

func lookup[T any](d *Device, group LockGroup, a *hal.Arena[T], h hal.Handle) (T, error) {
	var value T
	err := d.locks.SafeCall(group, func() error {
		var err error
		value, err = a.Get(h)
		return err
	})
	return value, err
}

func remove[T any](d *Device, group LockGroup, a *hal.Arena[T], h hal.Handle) (T, bool) {
	var value T
	err := d.locks.SafeCall(group, func() error {
		var err error
		value, err = a.Remove(h)
		return err
	})
	if err != nil {
		core.LogWarn("destroying %s handle %s: %s", group, h, err)
		return value, false
	}
	return value, true
}

// mustLookup is used by command recording, which has no error return. A stale
// handle there is a programming error and is logged.
func mustLookup[T any](d *Device, group LockGroup, a *hal.Arena[T], h hal.Handle) (T, bool) {
	value, err := lookup(d, group, a, h)
	if err != nil {
		core.LogError("recording with %s handle %s: %s", group, h, err)
		return value, false
	}
	return value, true
}
