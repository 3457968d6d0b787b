package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

func (d *Device) CreateDescriptorSetLayout(bindings []hal.DescriptorBinding) (hal.DescriptorSetLayout, error) {
	layoutBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		count := b.Count
		if count == 0 {
			count = 1
		}
		layoutBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  toDescriptorType(b.Type),
			DescriptorCount: count,
			StageFlags:      vk.ShaderStageFlags(shaderStages.convert(b.Stages)),
		}
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}
	var layout vk.DescriptorSetLayout
	if err := check(vk.CreateDescriptorSetLayout(d.device, &layoutInfo, nil, &layout), "vkCreateDescriptorSetLayout"); err != nil {
		return hal.DescriptorSetLayout{}, err
	}
	return hal.DescriptorSetLayout{Handle: insert(d, DescriptorManagement, d.setLayouts, layout)}, nil
}

func (d *Device) DestroyDescriptorSetLayout(l hal.DescriptorSetLayout) {
	if layout, ok := remove(d, DescriptorManagement, d.setLayouts, l.Handle); ok {
		vk.DestroyDescriptorSetLayout(d.device, layout, nil)
	}
}

func (d *Device) CreateDescriptorPool(desc hal.DescriptorPoolDesc) (hal.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, len(desc.Sizes))
	for i, s := range desc.Sizes {
		sizes[i] = vk.DescriptorPoolSize{
			Type:            toDescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       desc.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	if desc.FreeSets {
		poolInfo.Flags = vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit)
	}
	var pool vk.DescriptorPool
	if err := check(vk.CreateDescriptorPool(d.device, &poolInfo, nil, &pool), "vkCreateDescriptorPool"); err != nil {
		return hal.DescriptorPool{}, err
	}
	return hal.DescriptorPool{Handle: insert(d, DescriptorManagement, d.descPools, pool)}, nil
}

// DestroyDescriptorPool also invalidates the sets allocated from the pool.
func (d *Device) DestroyDescriptorPool(p hal.DescriptorPool) {
	pool, ok := remove(d, DescriptorManagement, d.descPools, p.Handle)
	if !ok {
		return
	}
	_ = d.locks.SafeCall(DescriptorManagement, func() error {
		var owned []hal.Handle
		d.descSets.Each(func(h hal.Handle, set descriptorSet) {
			if set.pool == p {
				owned = append(owned, h)
			}
		})
		for _, h := range owned {
			_, _ = d.descSets.Remove(h)
		}
		return nil
	})
	vk.DestroyDescriptorPool(d.device, pool, nil)
}

func (d *Device) AllocateDescriptorSet(p hal.DescriptorPool, layout hal.DescriptorSetLayout) (hal.DescriptorSet, error) {
	pool, err := lookup(d, DescriptorManagement, d.descPools, p.Handle)
	if err != nil {
		return hal.DescriptorSet{}, err
	}
	l, err := lookup(d, DescriptorManagement, d.setLayouts, layout.Handle)
	if err != nil {
		return hal.DescriptorSet{}, err
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l},
	}
	var set vk.DescriptorSet
	if err := check(vk.AllocateDescriptorSets(d.device, &allocInfo, &set), "vkAllocateDescriptorSets"); err != nil {
		return hal.DescriptorSet{}, err
	}
	return hal.DescriptorSet{Handle: insert(d, DescriptorManagement, d.descSets, descriptorSet{handle: set, pool: p})}, nil
}

// FreeDescriptorSet returns a set to a pool created with FreeSets.
func (d *Device) FreeDescriptorSet(p hal.DescriptorPool, set hal.DescriptorSet) error {
	pool, err := lookup(d, DescriptorManagement, d.descPools, p.Handle)
	if err != nil {
		return err
	}
	s, ok := remove(d, DescriptorManagement, d.descSets, set.Handle)
	if !ok {
		return core.ErrStaleHandle
	}
	return check(vk.FreeDescriptorSets(d.device, pool, 1, &s.handle), "vkFreeDescriptorSets")
}

func (d *Device) UpdateDescriptorSet(set hal.DescriptorSet, writes []hal.DescriptorWrite) {
	s, ok := mustLookup(d, DescriptorManagement, d.descSets, set.Handle)
	if !ok {
		return
	}
	descriptorWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		infos := make([]vk.DescriptorImageInfo, 0, len(w.Images))
		for _, img := range w.Images {
			info := vk.DescriptorImageInfo{
				ImageLayout: toImageLayout(img.Layout),
			}
			if !img.View.IsNil() {
				view, ok := mustLookup(d, ResourceManagement, d.views, img.View.Handle)
				if !ok {
					return
				}
				info.ImageView = view
			}
			if !img.Sampler.IsNil() {
				sampler, ok := mustLookup(d, ResourceManagement, d.samplers, img.Sampler.Handle)
				if !ok {
					return
				}
				info.Sampler = sampler
			}
			infos = append(infos, info)
		}
		if len(infos) == 0 {
			core.LogWarn("descriptor write for binding %d has no images, skipping", w.Binding)
			continue
		}
		descriptorWrites = append(descriptorWrites, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          s.handle,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorType:  toDescriptorType(w.Type),
			DescriptorCount: uint32(len(infos)),
			PImageInfo:      infos,
		})
	}
	if len(descriptorWrites) > 0 {
		vk.UpdateDescriptorSets(d.device, uint32(len(descriptorWrites)), descriptorWrites, 0, nil)
	}
}
