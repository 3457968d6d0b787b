package renderer

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/core"
	vmath "github.com/spaghettifunk/voxen/engine/math"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
)

// Window is the part of the platform window the renderer needs.
type Window interface {
	// FramebufferSize returns the drawable size in pixels, zero while
	// minimized.
	FramebufferSize() (uint32, uint32)
}

// PipelineBuilder builds the graphics pipeline for a render pass and
// viewport extent. It is called again on every swapchain recreation.
type PipelineBuilder interface {
	Build(rp hal.RenderPass, extent hal.Extent2D) (hal.Pipeline, error)
}

// SwapchainState is everything derived from the surface that must be
// rebuilt as a unit when the surface changes.
type SwapchainState struct {
	Swapchain    hal.Swapchain
	Format       hal.SurfaceFormat
	PresentMode  hal.PresentMode
	Extent       hal.Extent2D
	RenderPass   hal.RenderPass
	Images       []hal.Image
	Views        []hal.ImageView
	Framebuffers []hal.Framebuffer
	Pipeline     hal.Pipeline

	release releaser
}

func (s *SwapchainState) ImageCount() int {
	return len(s.Images)
}

/**
 * @brief Picks the lowest latency mode the surface supports: mailbox, then
 * immediate, then fifo relaxed, then fifo. Fifo is always available, other
 * modes are a last resort.
 */
func ChoosePresentMode(modes []hal.PresentMode) hal.PresentMode {
	rank := func(m hal.PresentMode) int {
		switch m {
		case hal.PresentModeMailbox:
			return 4
		case hal.PresentModeImmediate:
			return 3
		case hal.PresentModeFifoRelaxed:
			return 2
		case hal.PresentModeFifo:
			return 1
		}
		return 0
	}
	best, bestRank := hal.PresentModeFifo, -1
	for _, m := range modes {
		if r := rank(m); r > bestRank {
			best, bestRank = m, r
		}
	}
	return best
}

// ChooseSurfaceFormat prefers 8 bit BGRA with sRGB non-linear encoding and
// otherwise takes the first reported format.
func ChooseSurfaceFormat(formats []hal.SurfaceFormat) (hal.SurfaceFormat, error) {
	preferred := hal.SurfaceFormat{Format: hal.FormatB8G8R8A8Unorm, ColorSpace: hal.ColorSpaceSrgbNonlinear}
	if len(formats) == 0 {
		return hal.SurfaceFormat{}, fmt.Errorf("surface reports no formats")
	}
	// A single undefined entry means any format can be used.
	if len(formats) == 1 && formats[0].Format == hal.FormatUndefined {
		return preferred, nil
	}
	for _, f := range formats {
		if f == preferred {
			return f, nil
		}
	}
	return formats[0], nil
}

// ChooseExtent uses the surface's current extent unless the surface leaves
// it to the application, in which case the window size is clamped into the
// supported range.
func ChooseExtent(caps hal.SurfaceCapabilities, window hal.Extent2D) hal.Extent2D {
	if caps.CurrentExtent.Width != hal.UndefinedExtent {
		return caps.CurrentExtent
	}
	return hal.Extent2D{
		Width:  vmath.Clamp(window.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: vmath.Clamp(window.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// ImageCount asks for one image more than the minimum, within the maximum
// when the surface has one.
func ImageCount(caps hal.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

// SwapchainManager owns the render pass and builds swapchain states for one
// window surface.
type SwapchainManager struct {
	dc      *DeviceContext
	window  Window
	builder PipelineBuilder

	renderPass hal.RenderPass
	format     hal.Format
	// Render pass replaced by a format change, destroyed with the old state.
	retired hal.RenderPass
}

func NewSwapchainManager(dc *DeviceContext, window Window, builder PipelineBuilder) *SwapchainManager {
	return &SwapchainManager{dc: dc, window: window, builder: builder}
}

// SurfaceExtent returns the extent a swapchain created now would have.
func (m *SwapchainManager) SurfaceExtent() (hal.Extent2D, error) {
	caps, err := m.dc.Device.SurfaceCapabilities()
	if err != nil {
		return hal.Extent2D{}, errors.Wrap(err, "surface capabilities")
	}
	w, h := m.window.FramebufferSize()
	return ChooseExtent(caps, hal.Extent2D{Width: w, Height: h}), nil
}

func (m *SwapchainManager) Create() (*SwapchainState, error) {
	return m.build(hal.Swapchain{})
}

// Recreate builds a new state handing the old swapchain over, then destroys
// the old state. Nothing of old may be in use by the GPU.
func (m *SwapchainManager) Recreate(old *SwapchainState) (*SwapchainState, error) {
	next, err := m.build(old.Swapchain)
	if err != nil {
		return nil, err
	}
	old.release.release()
	if !m.retired.IsNil() {
		m.dc.Device.DestroyRenderPass(m.retired)
		m.retired = hal.RenderPass{}
	}
	m.dc.Metrics.SwapchainRecreated()
	return next, nil
}

// Destroy releases a state and the render pass.
func (m *SwapchainManager) Destroy(state *SwapchainState) {
	if state != nil {
		state.release.release()
	}
	if !m.renderPass.IsNil() {
		m.dc.Device.DestroyRenderPass(m.renderPass)
		m.renderPass = hal.RenderPass{}
	}
}

func (m *SwapchainManager) ensureRenderPass(format hal.Format) error {
	if !m.renderPass.IsNil() && m.format == format {
		return nil
	}
	rp, err := m.dc.Device.CreateRenderPass(hal.RenderPassDesc{
		ColorFormat: format,
		FinalLayout: hal.ImageLayoutPresentSrc,
	})
	if err != nil {
		return errors.Wrap(err, "create render pass")
	}
	if !m.renderPass.IsNil() {
		m.retired = m.renderPass
	}
	m.renderPass, m.format = rp, format
	return nil
}

func (m *SwapchainManager) build(old hal.Swapchain) (*SwapchainState, error) {
	dev := m.dc.Device

	caps, err := dev.SurfaceCapabilities()
	if err != nil {
		return nil, errors.Wrap(err, "surface capabilities")
	}
	formats, err := dev.SurfaceFormats()
	if err != nil {
		return nil, errors.Wrap(err, "surface formats")
	}
	modes, err := dev.SurfacePresentModes()
	if err != nil {
		return nil, errors.Wrap(err, "surface present modes")
	}

	format, err := ChooseSurfaceFormat(formats)
	if err != nil {
		return nil, err
	}
	w, h := m.window.FramebufferSize()
	state := &SwapchainState{
		Format:      format,
		PresentMode: ChoosePresentMode(modes),
		Extent:      ChooseExtent(caps, hal.Extent2D{Width: w, Height: h}),
	}
	if state.Extent.IsZero() {
		return nil, fmt.Errorf("cannot create a %dx%d swapchain", state.Extent.Width, state.Extent.Height)
	}

	if err := m.ensureRenderPass(format.Format); err != nil {
		return nil, err
	}
	state.RenderPass = m.renderPass

	var r releaser
	defer r.release()

	sc, err := dev.CreateSwapchain(hal.SwapchainDesc{
		MinImageCount: ImageCount(caps),
		Format:        format,
		Extent:        state.Extent,
		PresentMode:   state.PresentMode,
		PreTransform:  caps.CurrentTransform,
		OldSwapchain:  old,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}
	r.push(func() { dev.DestroySwapchain(sc) })
	state.Swapchain = sc

	if state.Images, err = dev.SwapchainImages(sc); err != nil {
		return nil, errors.Wrap(err, "swapchain images")
	}

	for _, img := range state.Images {
		view, err := dev.CreateImageView(hal.ImageViewDesc{
			Image:     img,
			Type:      hal.ImageType2D,
			Format:    format.Format,
			MipLevels: 1,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create swapchain image view")
		}
		r.push(func() { dev.DestroyImageView(view) })
		state.Views = append(state.Views, view)

		fb, err := dev.CreateFramebuffer(hal.FramebufferDesc{
			RenderPass:  m.renderPass,
			Attachments: []hal.ImageView{view},
			Extent:      state.Extent,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create framebuffer")
		}
		r.push(func() { dev.DestroyFramebuffer(fb) })
		state.Framebuffers = append(state.Framebuffers, fb)
	}

	pipeline, err := m.builder.Build(m.renderPass, state.Extent)
	if err != nil {
		return nil, errors.Wrap(err, "build pipeline")
	}
	r.push(func() { dev.DestroyPipeline(pipeline) })
	state.Pipeline = pipeline

	state.release = r.take()
	core.LogInfo("Swapchain created: %dx%d, %d images, present mode %s.",
		state.Extent.Width, state.Extent.Height, len(state.Images), state.PresentMode)
	return state, nil
}
