package device

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendercore/backend"
)

// RenderSurface is a presentable render target bound to one Device.
//
// Implementations are not required to be safe for concurrent use. Devices
// call them with the device-access lock held.
type RenderSurface interface {
	// Name identifies the surface in logs.
	Name() string

	// BuildPresentParameters fills p from the surface's current state.
	BuildPresentParameters(p *backend.PresentParams)

	// Width and Height return the back buffer size in pixels.
	Width() int
	Height() int

	IsFullScreen() bool
	IsVSync() bool
	IsDepthBuffered() bool

	// WindowHandle returns the native window handle.
	WindowHandle() uintptr

	// WantsDiagnosticDevice reports whether the surface asks for a
	// diagnostic adapter.
	WantsDiagnosticDevice() bool

	// Device returns the device the surface is bound to, or nil.
	Device() *Device

	// SetDevice records the device the surface is bound to.
	SetDevice(d *Device)
}

// Window is a RenderSurface over a gpucontext.WindowProvider.
type Window struct {
	name     string
	provider gpucontext.WindowProvider
	handle   uintptr
	device   *Device

	fullScreen  bool
	vsync       bool
	depth       bool
	diagnostic  bool
	colorFormat gputypes.TextureFormat
	depthFormat gputypes.TextureFormat
	samples     uint32
	quality     uint32
}

// WindowOption configures a Window.
type WindowOption func(*Window)

// WithFullScreen makes the window exclusive full screen.
func WithFullScreen() WindowOption {
	return func(w *Window) { w.fullScreen = true }
}

// WithVSync synchronizes presentation with the vertical blank.
func WithVSync() WindowOption {
	return func(w *Window) { w.vsync = true }
}

// WithoutDepthBuffer disables the window's depth-stencil buffer.
func WithoutDepthBuffer() WindowOption {
	return func(w *Window) { w.depth = false }
}

// WithDepthFormat sets the depth-stencil format.
func WithDepthFormat(f gputypes.TextureFormat) WindowOption {
	return func(w *Window) { w.depthFormat = f }
}

// WithColorFormat sets the back buffer format.
func WithColorFormat(f gputypes.TextureFormat) WindowOption {
	return func(w *Window) { w.colorFormat = f }
}

// WithMultisample sets the sample count and quality level.
func WithMultisample(samples, quality uint32) WindowOption {
	return func(w *Window) {
		w.samples = samples
		w.quality = quality
	}
}

// WithDiagnosticDevice asks for the configured diagnostic adapter.
func WithDiagnosticDevice() WindowOption {
	return func(w *Window) { w.diagnostic = true }
}

// NewWindow creates a windowed, depth-buffered surface with a BGRA8 back
// buffer. handle is the native window handle.
func NewWindow(name string, provider gpucontext.WindowProvider, handle uintptr, opts ...WindowOption) *Window {
	w := &Window{
		name:        name,
		provider:    provider,
		handle:      handle,
		depth:       true,
		colorFormat: gputypes.TextureFormatBGRA8Unorm,
		depthFormat: gputypes.TextureFormatDepth24PlusStencil8,
		samples:     1,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name implements RenderSurface.
func (w *Window) Name() string { return w.name }

// Width implements RenderSurface.
func (w *Window) Width() int {
	width, _ := w.provider.Size()
	return physical(width, w.provider.ScaleFactor())
}

// Height implements RenderSurface.
func (w *Window) Height() int {
	_, height := w.provider.Size()
	return physical(height, w.provider.ScaleFactor())
}

func physical(logical int, scale float64) int {
	return int(float64(logical) * scale)
}

// IsFullScreen implements RenderSurface.
func (w *Window) IsFullScreen() bool { return w.fullScreen }

// SetFullScreen switches between windowed and full screen mode. The bound
// device is told to reacquire the window's resources.
func (w *Window) SetFullScreen(full bool) {
	if w.fullScreen == full {
		return
	}
	w.fullScreen = full
	if w.device != nil {
		w.device.Invalidate(w)
	}
}

// IsVSync implements RenderSurface.
func (w *Window) IsVSync() bool { return w.vsync }

// IsDepthBuffered implements RenderSurface.
func (w *Window) IsDepthBuffered() bool { return w.depth }

// WindowHandle implements RenderSurface.
func (w *Window) WindowHandle() uintptr { return w.handle }

// WantsDiagnosticDevice implements RenderSurface.
func (w *Window) WantsDiagnosticDevice() bool { return w.diagnostic }

// Device implements RenderSurface.
func (w *Window) Device() *Device { return w.device }

// SetDevice implements RenderSurface.
func (w *Window) SetDevice(d *Device) { w.device = d }

// BuildPresentParameters implements RenderSurface.
func (w *Window) BuildPresentParameters(p *backend.PresentParams) {
	mode := gputypes.PresentModeImmediate
	if w.vsync {
		mode = gputypes.PresentModeFifo
	}
	*p = backend.PresentParams{
		Width:               max(w.Width(), 1),
		Height:              max(w.Height(), 1),
		BackBufferFormat:    w.colorFormat,
		BackBufferCount:     1,
		AutoDepthStencil:    w.depth,
		DepthStencilFormat:  w.depthFormat,
		DiscardDepthStencil: w.depth,
		SampleCount:         max(w.samples, 1),
		SampleQuality:       w.quality,
		Windowed:            !w.fullScreen,
		PresentMode:         mode,
		Window:              w.handle,
	}
	if !w.depth {
		p.DepthStencilFormat = gputypes.TextureFormatUndefined
		p.DiscardDepthStencil = false
	}
}

var _ RenderSurface = (*Window)(nil)
