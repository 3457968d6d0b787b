package renderer

import (
	"context"
	"time"

	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

type ShaderKind int

const (
	ShaderVolumeVertex ShaderKind = iota
	ShaderVolumeFragment
	ShaderStencil
)

// Shaders holds SPIR-V words for every module the renderer uses.
type Shaders struct {
	VolumeVertex   []uint32
	VolumeFragment []uint32
	Stencil        []uint32
}

type RendererOptions struct {
	Shaders           Shaders
	MaxVolumes        uint32
	FencePollInterval time.Duration
	Metrics           *core.Metrics
}

// Renderer wires the device context, the volume pipeline, the stencil pass
// and the frame scheduler for one window.
type Renderer struct {
	Context   *DeviceContext
	Uploader  *Uploader
	Pipeline  *VolumePipeline
	Stencil   *StencilPass
	Scheduler *FrameScheduler

	swapchains *SwapchainManager
	shaders    Shaders
	release    releaser
}

func New(dev hal.Device, window Window, opts RendererOptions) (*Renderer, error) {
	var r releaser
	defer r.release()

	if opts.MaxVolumes == 0 {
		opts.MaxVolumes = 16
	}

	dc, err := NewDeviceContext(dev, DeviceContextOptions{
		FencePollInterval: opts.FencePollInterval,
		Metrics:           opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	r.push(dc.Destroy)

	pipeline, err := NewVolumePipeline(dc, opts.Shaders.VolumeVertex, opts.Shaders.VolumeFragment, opts.MaxVolumes)
	if err != nil {
		return nil, err
	}
	r.push(pipeline.Destroy)

	stencil, err := NewStencilPass(dc, opts.Shaders.Stencil, opts.MaxVolumes)
	if err != nil {
		return nil, err
	}
	r.push(stencil.Destroy)

	swapchains := NewSwapchainManager(dc, window, pipeline)
	scheduler, err := NewFrameScheduler(dc, swapchains, window)
	if err != nil {
		return nil, err
	}
	r.push(scheduler.Destroy)
	scheduler.AddPrePass(stencil)

	core.LogInfo("Renderer initialized.")
	return &Renderer{
		Context:    dc,
		Uploader:   NewUploader(dc),
		Pipeline:   pipeline,
		Stencil:    stencil,
		Scheduler:  scheduler,
		swapchains: swapchains,
		shaders:    opts.Shaders,
		release:    r.take(),
	}, nil
}

// AddVolume uploads a volume and draws it from the next frame on.
func (r *Renderer) AddVolume(ctx context.Context, desc VolumeDesc) (*Volume, error) {
	v, err := NewVolume(ctx, r.Uploader, r.Pipeline, desc)
	if err != nil {
		return nil, err
	}
	r.Scheduler.Register(v)
	return v, nil
}

func (r *Renderer) AddMutableVolume(ctx context.Context, desc VolumeDesc) (*MutableVolume, error) {
	mv, err := NewMutableVolume(ctx, r.Uploader, r.Pipeline, r.Stencil, desc)
	if err != nil {
		return nil, err
	}
	r.Scheduler.Register(mv)
	return mv, nil
}

// RemoveVolume stops drawing a volume and destroys it once no frame uses it.
func (r *Renderer) RemoveVolume(d Drawable) error {
	if mv, ok := d.(*MutableVolume); ok {
		r.Stencil.Untrack(mv)
	}
	if _, err := r.Scheduler.Unregister(d.ID()); err != nil {
		return err
	}
	destroyDrawable(d)
	return nil
}

// DrawFrame draws one frame with the given camera push constants.
func (r *Renderer) DrawFrame(push []byte) (FrameResult, error) {
	r.Scheduler.SetPushConstants(push)
	return r.Scheduler.DrawFrame()
}

func (r *Renderer) OnResize(width, height uint32) {
	core.LogDebug("Window resized to %dx%d.", width, height)
	r.Scheduler.RequestRecreate()
}

// ReloadShader replaces one shader module. Graphics pipelines are rebuilt
// through a swapchain recreation, the compute pipeline after the frames in
// flight have finished.
func (r *Renderer) ReloadShader(kind ShaderKind, code []uint32) error {
	switch kind {
	case ShaderVolumeVertex:
		r.shaders.VolumeVertex = code
	case ShaderVolumeFragment:
		r.shaders.VolumeFragment = code
	case ShaderStencil:
		r.shaders.Stencil = code
		if err := r.Scheduler.WaitInFlight(); err != nil {
			return err
		}
		return r.Stencil.ReplaceShader(code)
	}
	if err := r.Pipeline.ReplaceShaders(r.shaders.VolumeVertex, r.shaders.VolumeFragment); err != nil {
		return err
	}
	r.Scheduler.RequestRecreate()
	return nil
}

// Shutdown waits for the GPU and releases everything the renderer created.
// Volumes still registered are destroyed too.
func (r *Renderer) Shutdown() {
	drawables := r.Scheduler.Drawables()
	r.Scheduler.Destroy()
	for _, d := range drawables {
		destroyDrawable(d)
	}
	r.release.release()
	core.LogInfo("Renderer shut down.")
}

func destroyDrawable(d Drawable) {
	if v, ok := d.(interface{ Destroy() }); ok {
		v.Destroy()
	}
}
