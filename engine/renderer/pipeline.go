package renderer

import (
	"sync"

	"github.com/pkg/errors"
	vmath "github.com/spaghettifunk/voxen/engine/math"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

const (
	// Camera block read by both volume shaders.
	PushConstantSize = vmath.CameraPushConstantSize

	vertexStride = 20
)

var volumeAttributes = []hal.VertexAttribute{
	{Location: 0, Format: hal.FormatR32G32Sfloat, Offset: 0},
	{Location: 1, Format: hal.FormatR32G32B32Sfloat, Offset: 8},
}

// VolumePipeline owns what the volume graphics pipeline is built from: the
// shader modules, the layouts, the sampler and the descriptor pool volume
// sets are allocated from. The pipeline itself belongs to the swapchain
// state since its viewport follows the extent.
type VolumePipeline struct {
	dc *DeviceContext

	mu   sync.Mutex
	vert hal.ShaderModule
	frag hal.ShaderModule

	setLayout hal.DescriptorSetLayout
	layout    hal.PipelineLayout
	pool      hal.DescriptorPool
	sampler   hal.Sampler

	release releaser
}

func NewVolumePipeline(dc *DeviceContext, vertCode, fragCode []uint32, maxVolumes uint32) (*VolumePipeline, error) {
	var r releaser
	defer r.release()

	dev := dc.Device
	p := &VolumePipeline{dc: dc}

	if err := p.ReplaceShaders(vertCode, fragCode); err != nil {
		return nil, err
	}
	r.push(p.destroyShaders)

	setLayout, err := dev.CreateDescriptorSetLayout([]hal.DescriptorBinding{{
		Binding: 0,
		Type:    hal.DescriptorTypeCombinedImageSampler,
		Count:   1,
		Stages:  hal.ShaderStageFragment,
	}})
	if err != nil {
		return nil, errors.Wrap(err, "create volume descriptor set layout")
	}
	r.push(func() { dev.DestroyDescriptorSetLayout(setLayout) })
	p.setLayout = setLayout

	layout, err := dev.CreatePipelineLayout(hal.PipelineLayoutDesc{
		SetLayouts: []hal.DescriptorSetLayout{setLayout},
		PushConstants: []hal.PushConstantRange{{
			Stages: hal.ShaderStageVertex | hal.ShaderStageFragment,
			Size:   PushConstantSize,
		}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create volume pipeline layout")
	}
	r.push(func() { dev.DestroyPipelineLayout(layout) })
	p.layout = layout

	pool, err := dev.CreateDescriptorPool(hal.DescriptorPoolDesc{
		MaxSets:  maxVolumes,
		Sizes:    []hal.DescriptorPoolSize{{Type: hal.DescriptorTypeCombinedImageSampler, Count: maxVolumes}},
		FreeSets: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create volume descriptor pool")
	}
	r.push(func() { dev.DestroyDescriptorPool(pool) })
	p.pool = pool

	sampler, err := dev.CreateSampler()
	if err != nil {
		return nil, errors.Wrap(err, "create volume sampler")
	}
	r.push(func() { dev.DestroySampler(sampler) })
	p.sampler = sampler

	p.release = r.take()
	return p, nil
}

func (p *VolumePipeline) Layout() hal.PipelineLayout {
	return p.layout
}

// Build implements PipelineBuilder.
func (p *VolumePipeline) Build(rp hal.RenderPass, extent hal.Extent2D) (hal.Pipeline, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dc.Device.CreateGraphicsPipeline(hal.GraphicsPipelineDesc{
		VertexShader:   p.vert,
		FragmentShader: p.frag,
		Layout:         p.layout,
		RenderPass:     rp,
		Extent:         extent,
		VertexStride:   vertexStride,
		Attributes:     volumeAttributes,
	})
}

// ReplaceShaders swaps the shader modules used by the next Build. Pipelines
// already built are unaffected.
func (p *VolumePipeline) ReplaceShaders(vertCode, fragCode []uint32) error {
	dev := p.dc.Device
	vert, err := dev.CreateShaderModule(vertCode)
	if err != nil {
		return errors.Wrap(err, "create vertex shader module")
	}
	frag, err := dev.CreateShaderModule(fragCode)
	if err != nil {
		dev.DestroyShaderModule(vert)
		return errors.Wrap(err, "create fragment shader module")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroyShadersLocked()
	p.vert, p.frag = vert, frag
	return nil
}

// AllocateVolumeSet binds an image to a new descriptor set for the fragment
// shader.
func (p *VolumePipeline) AllocateVolumeSet(img *GpuImage) (hal.DescriptorSet, error) {
	dev := p.dc.Device
	set, err := dev.AllocateDescriptorSet(p.pool, p.setLayout)
	if err != nil {
		return hal.DescriptorSet{}, errors.Wrap(err, "allocate volume descriptor set")
	}
	dev.UpdateDescriptorSet(set, []hal.DescriptorWrite{{
		Binding: 0,
		Type:    hal.DescriptorTypeCombinedImageSampler,
		Images: []hal.DescriptorImage{{
			View:    img.View,
			Sampler: p.sampler,
			Layout:  hal.ImageLayoutShaderReadOnlyOptimal,
		}},
	}})
	return set, nil
}

// FreeVolumeSet returns a set from AllocateVolumeSet to the pool. No frame
// in flight may use it.
func (p *VolumePipeline) FreeVolumeSet(set hal.DescriptorSet) error {
	if err := p.dc.Device.FreeDescriptorSet(p.pool, set); err != nil {
		return errors.Wrap(err, "free volume descriptor set")
	}
	return nil
}

func (p *VolumePipeline) destroyShaders() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroyShadersLocked()
}

func (p *VolumePipeline) destroyShadersLocked() {
	dev := p.dc.Device
	if !p.vert.IsNil() {
		dev.DestroyShaderModule(p.vert)
		p.vert = hal.ShaderModule{}
	}
	if !p.frag.IsNil() {
		dev.DestroyShaderModule(p.frag)
		p.frag = hal.ShaderModule{}
	}
}

// Destroy releases the pipeline objects. Sets still allocated die with the pool.
func (p *VolumePipeline) Destroy() {
	p.release.release()
}
