package wgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendercore"
	"github.com/gogpu/rendercore/backend"
)

// object is a device object that can be rebuilt on a reopened device.
type object interface {
	pool() backend.Pool
	destroyRaw(dev hal.Device)
	recreate(d *Device) error
}

// Device is a backend.Device over a hal device and queue.
type Device struct {
	b        *Backend
	exposed  hal.ExposedAdapter
	creation backend.CreationParams
	caps     backend.Caps

	mu           sync.Mutex
	raw          hal.Device
	queue        hal.Queue
	status       backend.Status
	destroyed    bool
	implicit     []*SwapChain
	autoDepth    *Surface
	depthStencil backend.Surface
	objects      map[object]struct{}
	volatile     int
}

// MarkLost records a device loss reported outside of a Device call, for
// example by a device-lost callback. The device reports
// backend.StatusDeviceNotReset until Reset succeeds.
func (d *Device) MarkLost() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = backend.StatusDeviceNotReset
}

func (d *Device) open() error {
	od, err := d.exposed.Adapter.Open(0, d.exposed.Capabilities.Limits)
	if err != nil {
		return fmt.Errorf("wgpu: open %q: %w", d.exposed.Info.Name, d.translateLocked(err))
	}
	d.raw, d.queue = od.Device, od.Queue
	return nil
}

// translateLocked maps hal errors to backend errors and updates the
// cooperative level.
func (d *Device) translateLocked(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hal.ErrDeviceLost), errors.Is(err, hal.ErrSurfaceLost), errors.Is(err, hal.ErrSurfaceOutdated):
		d.status = backend.StatusDeviceNotReset
		return fmt.Errorf("%w: %w", backend.ErrDeviceLost, err)
	case errors.Is(err, hal.ErrDriverBug):
		d.status = backend.StatusDriverInternalError
		return fmt.Errorf("%w: %w", backend.ErrDriverInternal, err)
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		return fmt.Errorf("%w: %w", backend.ErrOutOfMemory, err)
	case errors.Is(err, hal.ErrZeroArea):
		return fmt.Errorf("%w: %w", backend.ErrInvalidCall, err)
	default:
		return err
	}
}

func (d *Device) checkLocked(pool backend.Pool) error {
	if d.destroyed || d.raw == nil {
		return backend.ErrInvalidCall
	}
	if pool == backend.PoolDefault {
		return d.status.Err()
	}
	return nil
}

// TestCooperativeLevel implements backend.Device.
func (d *Device) TestCooperativeLevel() backend.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Reset implements backend.Device. A device in the OK state only
// reconfigures its surfaces; a lost device is reopened and its managed
// objects are rebuilt.
func (d *Device) Reset(params []backend.PresentParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return fmt.Errorf("wgpu: reset: %w", backend.ErrInvalidCall)
	}
	if d.status == backend.StatusDeviceLost {
		return fmt.Errorf("wgpu: reset: %w", backend.ErrDeviceLost)
	}
	if d.volatile > 0 {
		return fmt.Errorf("wgpu: reset with %d volatile objects alive: %w", d.volatile, backend.ErrInvalidCall)
	}
	if len(params) != len(d.implicit) {
		return fmt.Errorf("wgpu: reset with %d parameters for %d heads: %w", len(params), len(d.implicit), backend.ErrInvalidCall)
	}

	if d.raw != nil {
		for _, sc := range d.implicit {
			sc.surface.Unconfigure(d.raw)
		}
		if d.autoDepth != nil {
			d.raw.DestroyTexture(d.autoDepth.raw)
			d.autoDepth = nil
		}
	}
	d.depthStencil = nil

	if d.status != backend.StatusOK || d.raw == nil {
		if d.raw != nil {
			if err := d.raw.WaitIdle(); err != nil {
				rendercore.Logger().Debug("wgpu: wait idle before reopen", "err", err)
			}
			for o := range d.objects {
				o.destroyRaw(d.raw)
			}
			d.raw.Destroy()
			d.raw, d.queue = nil, nil
		}
		if err := d.open(); err != nil {
			return err
		}
		for o := range d.objects {
			if err := o.recreate(d); err != nil {
				return fmt.Errorf("wgpu: rebuild managed object: %w", err)
			}
		}
		rendercore.Logger().Info("wgpu: device reopened", "adapter", d.exposed.Info.Name, "objects", len(d.objects))
	}

	for i, sc := range d.implicit {
		sc.params = params[i]
		if err := sc.configureLocked(); err != nil {
			return err
		}
	}
	if err := d.createAutoDepthLocked(params[0]); err != nil {
		return err
	}
	d.status = backend.StatusOK
	return nil
}

func (d *Device) createAutoDepthLocked(p backend.PresentParams) error {
	if !p.AutoDepthStencil {
		return nil
	}
	raw, err := d.raw.CreateTexture(depthDescriptor("auto depth", p.Width, p.Height, p.DepthStencilFormat, p.SampleCount))
	if err != nil {
		return fmt.Errorf("wgpu: create auto depth stencil: %w", d.translateLocked(err))
	}
	d.autoDepth = &Surface{d: d, raw: raw, w: p.Width, h: p.Height, format: p.DepthStencilFormat, owned: true}
	return nil
}

func depthDescriptor(label string, w, h int, format gputypes.TextureFormat, samples uint32) *hal.TextureDescriptor {
	return &hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   max(samples, 1),
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageRenderAttachment,
	}
}

// CreationParams implements backend.Device.
func (d *Device) CreationParams() backend.CreationParams { return d.creation }

// Caps implements backend.Device.
func (d *Device) Caps() backend.Caps { return d.caps }

// SwapChain implements backend.Device.
func (d *Device) SwapChain(i int) (backend.SwapChain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed || i < 0 || i >= len(d.implicit) {
		return nil, fmt.Errorf("wgpu: swap chain %d: %w", i, backend.ErrInvalidCall)
	}
	return d.implicit[i], nil
}

// CreateAdditionalSwapChain implements backend.Device.
func (d *Device) CreateAdditionalSwapChain(params backend.PresentParams) (backend.SwapChain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(backend.PoolDefault); err != nil {
		return nil, fmt.Errorf("wgpu: create swap chain: %w", err)
	}
	sc, err := d.newSwapChain(params, false)
	if err != nil {
		return nil, err
	}
	d.volatile++
	return sc, nil
}

// newSwapChain creates and configures a hal surface for params.Window.
func (d *Device) newSwapChain(params backend.PresentParams, implicit bool) (*SwapChain, error) {
	surface, err := d.b.instance.CreateSurface(d.b.display, params.Window)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create surface: %w", d.translateLocked(err))
	}
	sc := &SwapChain{d: d, surface: surface, params: params, implicit: implicit}
	if err := sc.configureLocked(); err != nil {
		surface.Destroy()
		return nil, err
	}
	return sc, nil
}

// AutoDepthStencil implements backend.Device.
func (d *Device) AutoDepthStencil() (backend.Surface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.autoDepth == nil {
		return nil, fmt.Errorf("wgpu: no auto depth stencil: %w", backend.ErrInvalidCall)
	}
	d.volatile++
	return &surfaceRef{Surface: d.autoDepth}, nil
}

// CreateDepthStencil implements backend.Device.
func (d *Device) CreateDepthStencil(width, height int, format gputypes.TextureFormat,
	samples, _ uint32, _ bool) (backend.Surface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(backend.PoolDefault); err != nil {
		return nil, fmt.Errorf("wgpu: create depth stencil: %w", err)
	}
	raw, err := d.raw.CreateTexture(depthDescriptor("depth stencil", width, height, format, samples))
	if err != nil {
		return nil, fmt.Errorf("wgpu: create depth stencil %dx%d: %w", width, height, d.translateLocked(err))
	}
	d.volatile++
	return &Surface{d: d, raw: raw, w: width, h: height, format: format}, nil
}

// SetDepthStencil implements backend.Device. The surface is bound to the
// next render pass.
func (d *Device) SetDepthStencil(s backend.Surface) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return fmt.Errorf("wgpu: set depth stencil: %w", backend.ErrInvalidCall)
	}
	d.depthStencil = s
	return nil
}

// Present implements backend.Device.
func (d *Device) Present() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sc := range d.implicit {
		if err := sc.presentLocked(); err != nil {
			return err
		}
	}
	return nil
}

// SetupDefaultState implements backend.Device. WebGPU has no global
// pipeline state to restore.
func (d *Device) SetupDefaultState() {}

// ClearStreams implements backend.Device. Vertex streams are bound per
// render pass in WebGPU.
func (d *Device) ClearStreams() {}

// Destroy implements backend.Device.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.destroyed = true
	for _, sc := range d.implicit {
		sc.destroy()
	}
	if d.raw == nil {
		return
	}
	if d.autoDepth != nil {
		d.raw.DestroyTexture(d.autoDepth.raw)
	}
	if n := len(d.objects); n > 0 {
		rendercore.Logger().Warn("wgpu: device destroyed with live objects", "count", n)
	}
	d.raw.Destroy()
	d.raw, d.queue = nil, nil
}
