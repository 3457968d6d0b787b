package renderer

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

// Voxel position (uvec3) padded to 16 bytes.
const stencilPushSize = 16

// StencilPass writes queued voxels of mutable volumes with a compute shader.
// It runs as a pre-pass of the frame, outside the render pass.
type StencilPass struct {
	dc *DeviceContext

	shader    hal.ShaderModule
	setLayout hal.DescriptorSetLayout
	layout    hal.PipelineLayout
	pool      hal.DescriptorPool
	pipeline  hal.Pipeline

	mu      sync.Mutex
	volumes []*MutableVolume
	// Writes recorded into the frame being built, keyed by volume.
	recorded map[*MutableVolume][][3]uint32

	release releaser
}

func NewStencilPass(dc *DeviceContext, code []uint32, maxVolumes uint32) (*StencilPass, error) {
	var r releaser
	defer r.release()

	dev := dc.Device
	s := &StencilPass{dc: dc, recorded: make(map[*MutableVolume][][3]uint32)}

	setLayout, err := dev.CreateDescriptorSetLayout([]hal.DescriptorBinding{{
		Binding: 0,
		Type:    hal.DescriptorTypeStorageImage,
		Count:   1,
		Stages:  hal.ShaderStageCompute,
	}})
	if err != nil {
		return nil, errors.Wrap(err, "create stencil descriptor set layout")
	}
	r.push(func() { dev.DestroyDescriptorSetLayout(setLayout) })
	s.setLayout = setLayout

	layout, err := dev.CreatePipelineLayout(hal.PipelineLayoutDesc{
		SetLayouts:    []hal.DescriptorSetLayout{setLayout},
		PushConstants: []hal.PushConstantRange{{Stages: hal.ShaderStageCompute, Size: stencilPushSize}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create stencil pipeline layout")
	}
	r.push(func() { dev.DestroyPipelineLayout(layout) })
	s.layout = layout

	pool, err := dev.CreateDescriptorPool(hal.DescriptorPoolDesc{
		MaxSets:  maxVolumes,
		Sizes:    []hal.DescriptorPoolSize{{Type: hal.DescriptorTypeStorageImage, Count: maxVolumes}},
		FreeSets: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create stencil descriptor pool")
	}
	r.push(func() { dev.DestroyDescriptorPool(pool) })
	s.pool = pool

	if err := s.ReplaceShader(code); err != nil {
		return nil, err
	}
	r.push(s.destroyPipeline)

	s.release = r.take()
	return s, nil
}

// ReplaceShader rebuilds the compute pipeline from new code. The previous
// pipeline must not be in use by a frame in flight.
func (s *StencilPass) ReplaceShader(code []uint32) error {
	dev := s.dc.Device
	shader, err := dev.CreateShaderModule(code)
	if err != nil {
		return errors.Wrap(err, "create stencil shader module")
	}
	pipeline, err := dev.CreateComputePipeline(hal.ComputePipelineDesc{Shader: shader, Layout: s.layout})
	if err != nil {
		dev.DestroyShaderModule(shader)
		return errors.Wrap(err, "create stencil pipeline")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyPipelineLocked()
	s.shader, s.pipeline = shader, pipeline
	return nil
}

func (s *StencilPass) allocateStorageSet(img *GpuImage) (hal.DescriptorSet, error) {
	dev := s.dc.Device
	set, err := dev.AllocateDescriptorSet(s.pool, s.setLayout)
	if err != nil {
		return hal.DescriptorSet{}, errors.Wrap(err, "allocate stencil descriptor set")
	}
	dev.UpdateDescriptorSet(set, []hal.DescriptorWrite{{
		Binding: 0,
		Type:    hal.DescriptorTypeStorageImage,
		Images:  []hal.DescriptorImage{{View: img.View, Layout: hal.ImageLayoutGeneral}},
	}})
	return set, nil
}

func (s *StencilPass) freeStorageSet(set hal.DescriptorSet) error {
	if err := s.dc.Device.FreeDescriptorSet(s.pool, set); err != nil {
		return errors.Wrap(err, "free stencil descriptor set")
	}
	return nil
}

func (s *StencilPass) track(mv *MutableVolume) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes = append(s.volumes, mv)
}

// Untrack stops applying writes to mv. Queued writes are dropped.
func (s *StencilPass) Untrack(mv *MutableVolume) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recorded, mv)
	for i, v := range s.volumes {
		if v == mv {
			s.volumes = append(s.volumes[:i], s.volumes[i+1:]...)
			return
		}
	}
}

// RecordPrePass implements PrePass. Each volume with queued writes moves to
// the general layout for the compute writes and back to shader read for the
// fragment shader.
func (s *StencilPass) RecordPrePass(cb hal.CommandBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev := s.dc.Device
	for _, mv := range s.volumes {
		writes := mv.takeWrites()
		if len(writes) == 0 {
			continue
		}
		s.recorded[mv] = writes
		img := mv.image

		dev.CmdPipelineBarrier(cb, hal.PipelineStageFragmentShader, hal.PipelineStageComputeShader, []hal.ImageBarrier{{
			Image:         img.Image,
			OldLayout:     hal.ImageLayoutShaderReadOnlyOptimal,
			NewLayout:     hal.ImageLayoutGeneral,
			SrcAccess:     hal.AccessShaderRead,
			DstAccess:     hal.AccessShaderWrite,
			MipLevelCount: img.MipLevels,
		}})
		dev.CmdBindPipeline(cb, hal.PipelineBindPointCompute, s.pipeline)
		dev.CmdBindDescriptorSets(cb, hal.PipelineBindPointCompute, s.layout, 0, []hal.DescriptorSet{mv.storageSet})
		for _, pos := range writes {
			dev.CmdPushConstants(cb, s.layout, hal.ShaderStageCompute, 0, stencilPush(pos))
			dev.CmdDispatch(cb, 1, 1, 1)
		}
		dev.CmdPipelineBarrier(cb, hal.PipelineStageComputeShader, hal.PipelineStageFragmentShader, []hal.ImageBarrier{{
			Image:         img.Image,
			OldLayout:     hal.ImageLayoutGeneral,
			NewLayout:     hal.ImageLayoutShaderReadOnlyOptimal,
			SrcAccess:     hal.AccessShaderWrite,
			DstAccess:     hal.AccessShaderRead,
			MipLevelCount: img.MipLevels,
		}})
	}
}

// Submitted implements PrePass.
func (s *StencilPass) Submitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.recorded)
}

// Abandoned implements PrePass. The writes of the frame are queued again
// ahead of any written since.
func (s *StencilPass) Abandoned() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for mv, writes := range s.recorded {
		mv.requeue(writes)
	}
	clear(s.recorded)
}

func stencilPush(pos [3]uint32) []byte {
	out := make([]byte, stencilPushSize)
	for i, p := range pos {
		binary.LittleEndian.PutUint32(out[i*4:], p)
	}
	return out
}

func (s *StencilPass) destroyPipeline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyPipelineLocked()
}

func (s *StencilPass) destroyPipelineLocked() {
	dev := s.dc.Device
	if !s.pipeline.IsNil() {
		dev.DestroyPipeline(s.pipeline)
		s.pipeline = hal.Pipeline{}
	}
	if !s.shader.IsNil() {
		dev.DestroyShaderModule(s.shader)
		s.shader = hal.ShaderModule{}
	}
}

func (s *StencilPass) Destroy() {
	s.release.release()
}
