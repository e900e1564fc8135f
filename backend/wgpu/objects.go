package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendercore"
	"github.com/gogpu/rendercore/backend"
)

// SwapChain is a configured hal surface.
type SwapChain struct {
	d        *Device
	surface  hal.Surface
	params   backend.PresentParams
	implicit bool
	released bool
}

func (sc *SwapChain) configureLocked() error {
	p := sc.params
	err := sc.surface.Configure(sc.d.raw, &hal.SurfaceConfiguration{
		Width:       uint32(p.Width),
		Height:      uint32(p.Height),
		Format:      p.BackBufferFormat,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: p.PresentMode,
		AlphaMode:   gputypes.CompositeAlphaModeOpaque,
	})
	if err != nil {
		return fmt.Errorf("wgpu: configure surface %dx%d: %w", p.Width, p.Height, sc.d.translateLocked(err))
	}
	return nil
}

func (sc *SwapChain) presentLocked() error {
	if sc.released {
		return fmt.Errorf("wgpu: present released swap chain: %w", backend.ErrInvalidCall)
	}
	if err := sc.d.checkLocked(backend.PoolDefault); err != nil {
		return fmt.Errorf("wgpu: present: %w", err)
	}
	acquired, err := sc.surface.AcquireTexture(nil)
	if err != nil {
		return fmt.Errorf("wgpu: acquire surface texture: %w", sc.d.translateLocked(err))
	}
	if acquired.Suboptimal {
		rendercore.Logger().Debug("wgpu: suboptimal surface", "window", sc.params.Window)
	}
	if err := sc.d.queue.Present(sc.surface, acquired.Texture, nil); err != nil {
		sc.surface.DiscardTexture(acquired.Texture)
		return fmt.Errorf("wgpu: present: %w", sc.d.translateLocked(err))
	}
	return nil
}

func (sc *SwapChain) destroy() {
	if sc.d.raw != nil {
		sc.surface.Unconfigure(sc.d.raw)
	}
	sc.surface.Destroy()
}

// Params implements backend.SwapChain.
func (sc *SwapChain) Params() backend.PresentParams {
	sc.d.mu.Lock()
	defer sc.d.mu.Unlock()
	return sc.params
}

// BackBuffer implements backend.SwapChain. Surface textures are acquired
// at present time, so the back buffer only carries the chain's extent and
// format.
func (sc *SwapChain) BackBuffer() (backend.Surface, error) {
	sc.d.mu.Lock()
	defer sc.d.mu.Unlock()
	if sc.released || sc.d.destroyed {
		return nil, fmt.Errorf("wgpu: back buffer: %w", backend.ErrInvalidCall)
	}
	sc.d.volatile++
	return &surfaceRef{Surface: &Surface{d: sc.d, w: sc.params.Width, h: sc.params.Height,
		format: sc.params.BackBufferFormat, owned: true}}, nil
}

// Present implements backend.SwapChain.
func (sc *SwapChain) Present() error {
	sc.d.mu.Lock()
	defer sc.d.mu.Unlock()
	return sc.presentLocked()
}

// Release implements backend.SwapChain. Implicit swap chains are owned by
// the device.
func (sc *SwapChain) Release() {
	sc.d.mu.Lock()
	defer sc.d.mu.Unlock()
	if sc.implicit || sc.released {
		return
	}
	sc.released = true
	sc.d.volatile--
	sc.destroy()
}

// Surface is a depth-stencil texture or a back buffer description.
type Surface struct {
	d        *Device
	raw      hal.Texture
	w, h     int
	format   gputypes.TextureFormat
	owned    bool
	released bool
}

// Width implements backend.Surface.
func (s *Surface) Width() int { return s.w }

// Height implements backend.Surface.
func (s *Surface) Height() int { return s.h }

// Format implements backend.Surface.
func (s *Surface) Format() gputypes.TextureFormat { return s.format }

// Release implements backend.Surface.
func (s *Surface) Release() {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if s.owned || s.released {
		return
	}
	s.released = true
	s.d.volatile--
	if s.d.raw != nil && s.raw != nil {
		s.d.raw.DestroyTexture(s.raw)
	}
}

// surfaceRef is a counted reference to a device-owned surface.
type surfaceRef struct {
	*Surface
	released bool
}

// Release implements backend.Surface.
func (r *surfaceRef) Release() {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if r.released {
		return
	}
	r.released = true
	r.d.volatile--
}

// CreateBuffer implements backend.Device.
func (d *Device) CreateBuffer(desc backend.BufferDesc) (backend.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(desc.Pool); err != nil {
		return nil, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	b := &Buffer{d: d, desc: desc}
	if err := b.recreate(d); err != nil {
		return nil, err
	}
	d.track(b, +1)
	return b, nil
}

// WriteBuffer implements backend.Device.
func (d *Device) WriteBuffer(buf backend.Buffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := buf.(*Buffer)
	if !ok || b.d != d || b.released {
		return fmt.Errorf("wgpu: write buffer: %w", backend.ErrInvalidCall)
	}
	if offset+uint64(len(data)) > b.desc.Size {
		return fmt.Errorf("wgpu: write buffer %q beyond %d bytes: %w", b.desc.Label, b.desc.Size, backend.ErrInvalidCall)
	}
	if err := d.checkLocked(b.desc.Pool); err != nil {
		return fmt.Errorf("wgpu: write buffer %q: %w", b.desc.Label, err)
	}
	if b.desc.Pool == backend.PoolManaged {
		copy(b.shadow[offset:], data)
	}
	if d.status != backend.StatusOK {
		// Uploaded from the shadow when the device is reopened.
		return nil
	}
	if err := d.queue.WriteBuffer(b.raw, offset, data); err != nil {
		return fmt.Errorf("wgpu: write buffer %q: %w", b.desc.Label, d.translateLocked(err))
	}
	return nil
}

// CreateTexture implements backend.Device.
func (d *Device) CreateTexture(desc backend.TextureDesc) (backend.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(desc.Pool); err != nil {
		return nil, fmt.Errorf("wgpu: create texture %q: %w", desc.Label, err)
	}
	t := &Texture{d: d, desc: desc}
	if err := t.recreate(d); err != nil {
		return nil, err
	}
	d.track(t, +1)
	return t, nil
}

// WriteTexture implements backend.Device. data holds tightly packed rows.
func (d *Device) WriteTexture(tex backend.Texture, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := tex.(*Texture)
	if !ok || t.d != d || t.released {
		return fmt.Errorf("wgpu: write texture: %w", backend.ErrInvalidCall)
	}
	if err := d.checkLocked(t.desc.Pool); err != nil {
		return fmt.Errorf("wgpu: write texture %q: %w", t.desc.Label, err)
	}
	if t.desc.Pool == backend.PoolManaged {
		t.shadow = append(t.shadow[:0], data...)
	}
	if d.status != backend.StatusOK {
		return nil
	}
	return t.upload(data)
}

// CreateShaderModule implements backend.Device.
func (d *Device) CreateShaderModule(label string, spirv []uint32) (backend.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(backend.PoolManaged); err != nil {
		return nil, fmt.Errorf("wgpu: create shader %q: %w", label, err)
	}
	m := &ShaderModule{d: d, label: label, spirv: spirv}
	if err := m.recreate(d); err != nil {
		return nil, err
	}
	d.track(m, +1)
	return m, nil
}

func (d *Device) track(o object, delta int) {
	if delta > 0 {
		d.objects[o] = struct{}{}
	} else {
		delete(d.objects, o)
	}
	if o.pool() == backend.PoolDefault {
		d.volatile += delta
	}
}

// Buffer is a hal buffer. Managed buffers keep a shadow copy.
type Buffer struct {
	d        *Device
	desc     backend.BufferDesc
	raw      hal.Buffer
	shadow   []byte
	released bool
}

func (b *Buffer) pool() backend.Pool { return b.desc.Pool }

func (b *Buffer) destroyRaw(dev hal.Device) {
	if b.raw != nil {
		dev.DestroyBuffer(b.raw)
		b.raw = nil
	}
}

func (b *Buffer) recreate(d *Device) error {
	raw, err := d.raw.CreateBuffer(&hal.BufferDescriptor{
		Label: b.desc.Label,
		Size:  b.desc.Size,
		Usage: b.desc.Usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create buffer %q: %w", b.desc.Label, d.translateLocked(err))
	}
	b.raw = raw
	if b.desc.Pool != backend.PoolManaged {
		return nil
	}
	if b.shadow == nil {
		b.shadow = make([]byte, b.desc.Size)
		return nil
	}
	if err := d.queue.WriteBuffer(raw, 0, b.shadow); err != nil {
		return fmt.Errorf("wgpu: restore buffer %q: %w", b.desc.Label, d.translateLocked(err))
	}
	return nil
}

// Size implements backend.Buffer.
func (b *Buffer) Size() uint64 { return b.desc.Size }

// Release implements backend.Buffer.
func (b *Buffer) Release() {
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	if b.d.raw != nil {
		b.destroyRaw(b.d.raw)
	}
	b.d.track(b, -1)
}

// Texture is a hal texture. Managed textures keep the last upload.
type Texture struct {
	d        *Device
	desc     backend.TextureDesc
	raw      hal.Texture
	shadow   []byte
	released bool
}

func (t *Texture) pool() backend.Pool { return t.desc.Pool }

func (t *Texture) destroyRaw(dev hal.Device) {
	if t.raw != nil {
		dev.DestroyTexture(t.raw)
		t.raw = nil
	}
}

func (t *Texture) recreate(d *Device) error {
	raw, err := d.raw.CreateTexture(&hal.TextureDescriptor{
		Label:         t.desc.Label,
		Size:          hal.Extent3D{Width: t.desc.Width, Height: t.desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        t.desc.Format,
		Usage:         t.desc.Usage | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create texture %q: %w", t.desc.Label, d.translateLocked(err))
	}
	t.raw = raw
	if t.desc.Pool == backend.PoolManaged && len(t.shadow) > 0 {
		return t.upload(t.shadow)
	}
	return nil
}

func (t *Texture) upload(data []byte) error {
	if t.desc.Height == 0 || len(data)%int(t.desc.Height) != 0 {
		return fmt.Errorf("wgpu: texture %q: %d bytes for %d rows: %w", t.desc.Label, len(data), t.desc.Height, backend.ErrInvalidCall)
	}
	err := t.d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.raw, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{BytesPerRow: uint32(len(data)) / t.desc.Height, RowsPerImage: t.desc.Height},
		&hal.Extent3D{Width: t.desc.Width, Height: t.desc.Height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("wgpu: write texture %q: %w", t.desc.Label, t.d.translateLocked(err))
	}
	return nil
}

// Width implements backend.Texture.
func (t *Texture) Width() uint32 { return t.desc.Width }

// Height implements backend.Texture.
func (t *Texture) Height() uint32 { return t.desc.Height }

// Release implements backend.Texture.
func (t *Texture) Release() {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if t.released {
		return
	}
	t.released = true
	if t.d.raw != nil {
		t.destroyRaw(t.d.raw)
	}
	t.d.track(t, -1)
}

// ShaderModule is a hal shader module built from SPIR-V.
type ShaderModule struct {
	d        *Device
	label    string
	spirv    []uint32
	raw      hal.ShaderModule
	released bool
}

func (m *ShaderModule) pool() backend.Pool { return backend.PoolManaged }

func (m *ShaderModule) destroyRaw(dev hal.Device) {
	if m.raw != nil {
		dev.DestroyShaderModule(m.raw)
		m.raw = nil
	}
}

func (m *ShaderModule) recreate(d *Device) error {
	raw, err := d.raw.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  m.label,
		Source: hal.ShaderSource{SPIRV: m.spirv},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create shader %q: %w", m.label, d.translateLocked(err))
	}
	m.raw = raw
	return nil
}

// Release implements backend.ShaderModule.
func (m *ShaderModule) Release() {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	if m.released {
		return
	}
	m.released = true
	if m.d.raw != nil {
		m.destroyRaw(m.d.raw)
	}
	m.d.track(m, -1)
}
