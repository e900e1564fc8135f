package sim

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendercore/backend"
)

// Stats counts what callers did with a simulated device.
type Stats struct {
	Resets              int
	Presents            int
	DefaultStateSetups  int
	StreamClears        int
	DepthStencilCreated int
	DepthStencilLive    int
	BuffersLive         int
	TexturesLive        int
	ShadersLive         int
	SwapChainsLive      int
	BufferWrites        int
	TextureWrites       int
	DoubleReleases      int
	LeakedOnDestroy     int
}

// Device is a simulated native device.
type Device struct {
	b        *Backend
	id       int
	creation backend.CreationParams
	caps     backend.Caps

	status     backend.Status
	destroyed  bool
	resetErr   error
	presentErr error

	implicit     []*SwapChain
	autoDepth    *Surface
	depthStencil backend.Surface

	// volatile counts live default-pool objects and outstanding references
	// to implicit back buffers and the auto depth surface.
	volatile int
	live     int
	stats    Stats
}

// ID returns the creation index of the device within its backend.
func (d *Device) ID() int { return d.id }

// String implements fmt.Stringer.
func (d *Device) String() string { return fmt.Sprintf("sim.Device(%d)", d.id) }

// Lose puts the device into the lost state. Resets fail until AllowReset.
func (d *Device) Lose() {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	d.status = backend.StatusDeviceLost
}

// AllowReset moves a lost device to the not-reset state.
func (d *Device) AllowReset() {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	d.status = backend.StatusDeviceNotReset
}

// SetStatus forces the cooperative level.
func (d *Device) SetStatus(s backend.Status) {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	d.status = s
}

// FailNextReset makes the next Reset return err.
func (d *Device) FailNextReset(err error) {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	d.resetErr = err
}

// FailNextPresent makes the next Present return err.
func (d *Device) FailNextPresent(err error) {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	d.presentErr = err
}

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	return d.stats
}

// Destroyed reports whether Destroy was called.
func (d *Device) Destroyed() bool {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	return d.destroyed
}

// ImplicitParams returns the parameters of the implicit swap chains.
func (d *Device) ImplicitParams() []backend.PresentParams {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	out := make([]backend.PresentParams, len(d.implicit))
	for i, sc := range d.implicit {
		out[i] = sc.params
	}
	return out
}

// CurrentDepthStencil returns the surface last passed to SetDepthStencil.
func (d *Device) CurrentDepthStencil() backend.Surface {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	return d.depthStencil
}

func (d *Device) buildImplicitLocked(params []backend.PresentParams) {
	d.implicit = make([]*SwapChain, len(params))
	for i, p := range params {
		d.implicit[i] = &SwapChain{d: d, params: p, implicit: true}
	}
	d.autoDepth = nil
	if len(params) > 0 && params[0].AutoDepthStencil {
		p := params[0]
		d.autoDepth = &Surface{d: d, w: p.Width, h: p.Height, format: p.DepthStencilFormat, owned: true}
	}
}

func (d *Device) checkUsableLocked() error {
	if d.destroyed {
		return fmt.Errorf("sim: %v destroyed: %w", d, backend.ErrInvalidCall)
	}
	return d.status.Err()
}

// TestCooperativeLevel implements backend.Device.
func (d *Device) TestCooperativeLevel() backend.Status {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	return d.status
}

// Reset implements backend.Device.
func (d *Device) Reset(params []backend.PresentParams) error {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	if d.destroyed {
		return fmt.Errorf("sim: reset %v: %w", d, backend.ErrInvalidCall)
	}
	if d.status == backend.StatusDeviceLost {
		return fmt.Errorf("sim: reset %v: %w", d, backend.ErrDeviceLost)
	}
	if err := d.resetErr; err != nil {
		d.resetErr = nil
		return fmt.Errorf("sim: reset %v: %w", d, err)
	}
	if d.volatile > 0 {
		return fmt.Errorf("sim: reset %v with %d volatile objects alive: %w", d, d.volatile, backend.ErrInvalidCall)
	}
	if len(params) != len(d.implicit) {
		return fmt.Errorf("sim: reset %v with %d parameters for %d heads: %w", d, len(params), len(d.implicit), backend.ErrInvalidCall)
	}
	d.buildImplicitLocked(params)
	d.depthStencil = nil
	d.status = backend.StatusOK
	d.stats.Resets++
	return nil
}

// CreationParams implements backend.Device.
func (d *Device) CreationParams() backend.CreationParams { return d.creation }

// Caps implements backend.Device.
func (d *Device) Caps() backend.Caps { return d.caps }

// SwapChain implements backend.Device.
func (d *Device) SwapChain(i int) (backend.SwapChain, error) {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	if d.destroyed || i < 0 || i >= len(d.implicit) {
		return nil, fmt.Errorf("sim: swap chain %d of %v: %w", i, d, backend.ErrInvalidCall)
	}
	return d.implicit[i], nil
}

// CreateAdditionalSwapChain implements backend.Device.
func (d *Device) CreateAdditionalSwapChain(params backend.PresentParams) (backend.SwapChain, error) {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	if err := d.checkUsableLocked(); err != nil {
		return nil, fmt.Errorf("sim: create swap chain: %w", err)
	}
	d.volatile++
	d.live++
	d.stats.SwapChainsLive++
	return &SwapChain{d: d, params: params}, nil
}

// AutoDepthStencil implements backend.Device.
func (d *Device) AutoDepthStencil() (backend.Surface, error) {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	if d.autoDepth == nil {
		return nil, fmt.Errorf("sim: %v has no auto depth stencil: %w", d, backend.ErrInvalidCall)
	}
	d.volatile++
	return &surfaceRef{s: d.autoDepth}, nil
}

// CreateDepthStencil implements backend.Device.
func (d *Device) CreateDepthStencil(width, height int, format gputypes.TextureFormat,
	samples, quality uint32, discard bool) (backend.Surface, error) {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	if err := d.checkUsableLocked(); err != nil {
		return nil, fmt.Errorf("sim: create depth stencil: %w", err)
	}
	if !format.IsDepthStencil() || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("sim: create depth stencil %dx%d %v: %w", width, height, format, backend.ErrInvalidCall)
	}
	d.volatile++
	d.live++
	d.stats.DepthStencilCreated++
	d.stats.DepthStencilLive++
	return &Surface{d: d, w: width, h: height, format: format, samples: samples}, nil
}

// SetDepthStencil implements backend.Device.
func (d *Device) SetDepthStencil(s backend.Surface) error {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	if d.destroyed {
		return fmt.Errorf("sim: set depth stencil: %w", backend.ErrInvalidCall)
	}
	d.depthStencil = s
	return nil
}

// Present implements backend.Device.
func (d *Device) Present() error {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	return d.presentLocked(len(d.implicit))
}

func (d *Device) presentLocked(chains int) error {
	if err := d.checkUsableLocked(); err != nil {
		return fmt.Errorf("sim: present: %w", err)
	}
	if err := d.presentErr; err != nil {
		d.presentErr = nil
		return fmt.Errorf("sim: present: %w", err)
	}
	d.stats.Presents += chains
	return nil
}

// SetupDefaultState implements backend.Device.
func (d *Device) SetupDefaultState() {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	d.stats.DefaultStateSetups++
}

// ClearStreams implements backend.Device.
func (d *Device) ClearStreams() {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	d.stats.StreamClears++
}

// CreateBuffer implements backend.Device.
func (d *Device) CreateBuffer(desc backend.BufferDesc) (backend.Buffer, error) {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	if err := d.checkCreateLocked(desc.Pool); err != nil {
		return nil, fmt.Errorf("sim: create buffer %q: %w", desc.Label, err)
	}
	d.trackLocked(desc.Pool, +1)
	d.stats.BuffersLive++
	return &Buffer{obj: obj{d: d, pool: desc.Pool}, desc: desc, data: make([]byte, desc.Size)}, nil
}

// WriteBuffer implements backend.Device.
func (d *Device) WriteBuffer(b backend.Buffer, offset uint64, data []byte) error {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	buf, ok := b.(*Buffer)
	if !ok || buf.d != d || buf.released {
		return fmt.Errorf("sim: write buffer: %w", backend.ErrInvalidCall)
	}
	if err := d.checkCreateLocked(buf.pool); err != nil {
		return fmt.Errorf("sim: write buffer %q: %w", buf.desc.Label, err)
	}
	if offset+uint64(len(data)) > uint64(len(buf.data)) {
		return fmt.Errorf("sim: write buffer %q [%d:%d] beyond %d: %w",
			buf.desc.Label, offset, offset+uint64(len(data)), len(buf.data), backend.ErrInvalidCall)
	}
	copy(buf.data[offset:], data)
	buf.writes++
	d.stats.BufferWrites++
	return nil
}

// CreateTexture implements backend.Device.
func (d *Device) CreateTexture(desc backend.TextureDesc) (backend.Texture, error) {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	if err := d.checkCreateLocked(desc.Pool); err != nil {
		return nil, fmt.Errorf("sim: create texture %q: %w", desc.Label, err)
	}
	if desc.Width == 0 || desc.Height == 0 || desc.Width > d.caps.MaxTextureDimension || desc.Height > d.caps.MaxTextureDimension {
		return nil, fmt.Errorf("sim: create texture %q %dx%d: %w", desc.Label, desc.Width, desc.Height, backend.ErrInvalidCall)
	}
	d.trackLocked(desc.Pool, +1)
	d.stats.TexturesLive++
	return &Texture{obj: obj{d: d, pool: desc.Pool}, desc: desc}, nil
}

// WriteTexture implements backend.Device.
func (d *Device) WriteTexture(t backend.Texture, data []byte) error {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	tex, ok := t.(*Texture)
	if !ok || tex.d != d || tex.released {
		return fmt.Errorf("sim: write texture: %w", backend.ErrInvalidCall)
	}
	if err := d.checkCreateLocked(tex.pool); err != nil {
		return fmt.Errorf("sim: write texture %q: %w", tex.desc.Label, err)
	}
	tex.data = append(tex.data[:0], data...)
	d.stats.TextureWrites++
	return nil
}

// CreateShaderModule implements backend.Device.
func (d *Device) CreateShaderModule(label string, spirv []uint32) (backend.ShaderModule, error) {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	if d.destroyed {
		return nil, fmt.Errorf("sim: create shader %q: %w", label, backend.ErrInvalidCall)
	}
	if len(spirv) == 0 {
		return nil, fmt.Errorf("sim: create shader %q: empty code: %w", label, backend.ErrInvalidCall)
	}
	d.trackLocked(backend.PoolManaged, +1)
	d.stats.ShadersLive++
	return &ShaderModule{obj: obj{d: d, pool: backend.PoolManaged}, label: label, words: len(spirv)}, nil
}

// Destroy implements backend.Device.
func (d *Device) Destroy() {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	if d.destroyed {
		d.stats.DoubleReleases++
		return
	}
	d.destroyed = true
	d.stats.LeakedOnDestroy = d.live
}

// checkCreateLocked allows managed objects while the device is lost.
func (d *Device) checkCreateLocked(pool backend.Pool) error {
	if d.destroyed {
		return backend.ErrInvalidCall
	}
	if pool == backend.PoolDefault {
		return d.status.Err()
	}
	return nil
}

func (d *Device) trackLocked(pool backend.Pool, delta int) {
	d.live += delta
	if pool == backend.PoolDefault {
		d.volatile += delta
	}
}
