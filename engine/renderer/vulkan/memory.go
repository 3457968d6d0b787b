package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (hal.Memory, error) {
	if int(typeIndex) >= len(d.memProps.Types) {
		return hal.Memory{}, errors.Wrapf(core.ErrNoMemoryType, "memory type %d", typeIndex)
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}
	var mem vk.DeviceMemory
	if err := check(vk.AllocateMemory(d.device, &allocateInfo, nil, &mem), "vkAllocateMemory"); err != nil {
		return hal.Memory{}, err
	}
	return hal.Memory{Handle: insert(d, MemoryManagement, d.memories, mem)}, nil
}

func (d *Device) FreeMemory(m hal.Memory) {
	if mem, ok := remove(d, MemoryManagement, d.memories, m.Handle); ok {
		vk.FreeMemory(d.device, mem, nil)
	}
}

func (d *Device) MapMemory(m hal.Memory, offset, size uint64) ([]byte, error) {
	mem, err := lookup(d, MemoryManagement, d.memories, m.Handle)
	if err != nil {
		return nil, err
	}
	var ptr unsafe.Pointer
	if err := check(vk.MapMemory(d.device, mem, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &ptr), "vkMapMemory"); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

func (d *Device) UnmapMemory(m hal.Memory) {
	if mem, ok := mustLookup(d, MemoryManagement, d.memories, m.Handle); ok {
		vk.UnmapMemory(d.device, mem)
	}
}

func (d *Device) CreateBuffer(desc hal.BufferDesc) (hal.Buffer, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(bufferUsages.convert(desc.Usage)),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := check(vk.CreateBuffer(d.device, &bufferInfo, nil, &buffer), "vkCreateBuffer"); err != nil {
		return hal.Buffer{}, err
	}
	return hal.Buffer{Handle: insert(d, ResourceManagement, d.buffers, buffer)}, nil
}

func (d *Device) BufferMemoryRequirements(b hal.Buffer) (hal.MemoryRequirements, error) {
	buffer, err := lookup(d, ResourceManagement, d.buffers, b.Handle)
	if err != nil {
		return hal.MemoryRequirements{}, err
	}
	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buffer, &requirements)
	requirements.Deref()
	return hal.MemoryRequirements{
		Size:      uint64(requirements.Size),
		Alignment: uint64(requirements.Alignment),
		TypeBits:  requirements.MemoryTypeBits,
	}, nil
}

func (d *Device) BindBufferMemory(b hal.Buffer, m hal.Memory, offset uint64) error {
	buffer, err := lookup(d, ResourceManagement, d.buffers, b.Handle)
	if err != nil {
		return err
	}
	mem, err := lookup(d, MemoryManagement, d.memories, m.Handle)
	if err != nil {
		return err
	}
	return check(vk.BindBufferMemory(d.device, buffer, mem, vk.DeviceSize(offset)), "vkBindBufferMemory")
}

func (d *Device) DestroyBuffer(b hal.Buffer) {
	if buffer, ok := remove(d, ResourceManagement, d.buffers, b.Handle); ok {
		vk.DestroyBuffer(d.device, buffer, nil)
	}
}

func (d *Device) CreateImage(desc hal.ImageDesc) (hal.Image, error) {
	mipLevels := desc.MipLevels
	if mipLevels == 0 {
		mipLevels = 1
	}
	imageCreateInfo := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     toImageType(desc.Type),
		Extent:        toExtent3D(desc.Extent),
		MipLevels:     mipLevels,
		ArrayLayers:   1,
		Format:        toFormat(desc.Format),
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(imageUsages.convert(desc.Usage)),
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}
	var handle vk.Image
	if err := check(vk.CreateImage(d.device, &imageCreateInfo, nil, &handle), "vkCreateImage"); err != nil {
		return hal.Image{}, err
	}
	return hal.Image{Handle: insert(d, ResourceManagement, d.images, image{handle: handle})}, nil
}

func (d *Device) ImageMemoryRequirements(i hal.Image) (hal.MemoryRequirements, error) {
	img, err := lookup(d, ResourceManagement, d.images, i.Handle)
	if err != nil {
		return hal.MemoryRequirements{}, err
	}
	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, img.handle, &requirements)
	requirements.Deref()
	return hal.MemoryRequirements{
		Size:      uint64(requirements.Size),
		Alignment: uint64(requirements.Alignment),
		TypeBits:  requirements.MemoryTypeBits,
	}, nil
}

func (d *Device) BindImageMemory(i hal.Image, m hal.Memory, offset uint64) error {
	img, err := lookup(d, ResourceManagement, d.images, i.Handle)
	if err != nil {
		return err
	}
	mem, err := lookup(d, MemoryManagement, d.memories, m.Handle)
	if err != nil {
		return err
	}
	return check(vk.BindImageMemory(d.device, img.handle, mem, vk.DeviceSize(offset)), "vkBindImageMemory")
}

// DestroyImage ignores swapchain images, which belong to their swapchain.
func (d *Device) DestroyImage(i hal.Image) {
	img, err := lookup(d, ResourceManagement, d.images, i.Handle)
	if err != nil {
		core.LogWarn("destroying image %s: %s", i.Handle, err)
		return
	}
	if img.swapchain {
		core.LogWarn("image %s is owned by a swapchain", i.Handle)
		return
	}
	if img, ok := remove(d, ResourceManagement, d.images, i.Handle); ok {
		vk.DestroyImage(d.device, img.handle, nil)
	}
}

func (d *Device) CreateImageView(desc hal.ImageViewDesc) (hal.ImageView, error) {
	img, err := lookup(d, ResourceManagement, d.images, desc.Image.Handle)
	if err != nil {
		return hal.ImageView{}, err
	}
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            img.handle,
		ViewType:         toImageViewType(desc.Type),
		Format:           toFormat(desc.Format),
		SubresourceRange: colorRange(0, desc.MipLevels),
	}
	var view vk.ImageView
	if err := check(vk.CreateImageView(d.device, &viewCreateInfo, nil, &view), "vkCreateImageView"); err != nil {
		return hal.ImageView{}, err
	}
	return hal.ImageView{Handle: insert(d, ResourceManagement, d.views, view)}, nil
}

func (d *Device) DestroyImageView(v hal.ImageView) {
	if view, ok := remove(d, ResourceManagement, d.views, v.Handle); ok {
		vk.DestroyImageView(d.device, view, nil)
	}
}

// CreateSampler returns a nearest filtering sampler clamped to the edges.
// Volumes are sampled texel by texel.
func (d *Device) CreateSampler() (hal.Sampler, error) {
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterNearest,
		MinFilter:               vk.FilterNearest,
		AddressModeU:            vk.SamplerAddressModeClampToEdge,
		AddressModeV:            vk.SamplerAddressModeClampToEdge,
		AddressModeW:            vk.SamplerAddressModeClampToEdge,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorFloatOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeNearest,
		MinLod:                  0,
		MaxLod:                  vk.LodClampNone,
	}
	var sampler vk.Sampler
	if err := check(vk.CreateSampler(d.device, &samplerInfo, nil, &sampler), "vkCreateSampler"); err != nil {
		return hal.Sampler{}, err
	}
	return hal.Sampler{Handle: insert(d, ResourceManagement, d.samplers, sampler)}, nil
}

func (d *Device) DestroySampler(s hal.Sampler) {
	if sampler, ok := remove(d, ResourceManagement, d.samplers, s.Handle); ok {
		vk.DestroySampler(d.device, sampler, nil)
	}
}
