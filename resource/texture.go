package resource

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendercore"
	"github.com/gogpu/rendercore/backend"
)

// TextureDesc describes a two-dimensional texture.
type TextureDesc struct {
	Label  string
	Width  uint32
	Height uint32
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
	Pool   backend.Pool
}

// IsRenderTarget reports whether the texture can be rendered to.
func (d TextureDesc) IsRenderTarget() bool {
	return d.Usage&gputypes.TextureUsageRenderAttachment != 0
}

type textureResources struct {
	native   backend.Texture
	stale    bool
	lastUsed uint64
}

// Texture is a device-bound texture with a system memory copy of its
// pixels. Render targets always live in the default pool; their contents
// are produced on the GPU and are not restored after a reset.
type Texture struct {
	reg     *Registry
	desc    TextureDesc
	pixels  []byte
	devices map[backend.Device]*textureResources
	closed  bool
}

// NewTexture creates a texture, registers it with reg, and creates native
// textures according to the registry's policy.
func NewTexture(reg *Registry, desc TextureDesc) (*Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("resource: texture %q %dx%d: %w", desc.Label, desc.Width, desc.Height, ErrOutOfRange)
	}
	if desc.IsRenderTarget() {
		desc.Pool = backend.PoolDefault
	}
	t := &Texture{reg: reg, desc: desc, devices: make(map[backend.Device]*textureResources)}

	reg.Lock()
	defer reg.Unlock()
	for _, dev := range reg.targetsLocked() {
		if err := t.createLocked(dev); err != nil {
			t.releaseAllLocked()
			return nil, err
		}
	}
	reg.registerLocked(t)
	return t, nil
}

// Desc returns the texture description.
func (t *Texture) Desc() TextureDesc { return t.desc }

// Upload replaces the pixels and uploads them to devices used within the
// last frame. pixels holds tightly packed rows.
func (t *Texture) Upload(pixels []byte) error {
	t.reg.Lock()
	defer t.reg.Unlock()
	if t.closed {
		return fmt.Errorf("resource: upload texture %q: %w", t.desc.Label, ErrClosed)
	}
	if len(pixels) == 0 || len(pixels)%int(t.desc.Height) != 0 {
		return fmt.Errorf("resource: upload texture %q: %d bytes for %d rows: %w", t.desc.Label, len(pixels), t.desc.Height, ErrOutOfRange)
	}
	t.pixels = append(t.pixels[:0], pixels...)
	frame := t.reg.Frame()
	for dev, res := range t.devices {
		res.stale = true
		if res.native != nil && res.lastUsed+1 >= frame {
			if err := t.flushLocked(dev, res); err != nil {
				return err
			}
		}
	}
	return nil
}

// Prepare returns the native texture for dev, creating it and uploading
// pending pixels as needed, and marks it used in the current frame.
func (t *Texture) Prepare(dev backend.Device) (backend.Texture, error) {
	t.reg.Lock()
	defer t.reg.Unlock()
	if t.closed {
		return nil, fmt.Errorf("resource: prepare texture %q: %w", t.desc.Label, ErrClosed)
	}
	res, ok := t.devices[dev]
	if !ok || res.native == nil {
		if err := t.createLocked(dev); err != nil {
			return nil, err
		}
		res = t.devices[dev]
	}
	if res.stale {
		if err := t.flushLocked(dev, res); err != nil {
			return nil, err
		}
	}
	res.lastUsed = t.reg.Frame()
	return res.native, nil
}

// Subresource returns the native texture for dev without creating it.
func (t *Texture) Subresource(dev backend.Device) (backend.Texture, error) {
	t.reg.Lock()
	defer t.reg.Unlock()
	res, ok := t.devices[dev]
	if !ok || res.native == nil {
		return nil, fmt.Errorf("resource: texture %q: %w", t.desc.Label, ErrNoSubresource)
	}
	return res.native, nil
}

// Close releases every native texture and unregisters the texture.
func (t *Texture) Close() {
	t.reg.Lock()
	defer t.reg.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.releaseAllLocked()
	t.reg.unregisterLocked(t)
}

func (t *Texture) createLocked(dev backend.Device) error {
	native, err := dev.CreateTexture(backend.TextureDesc{
		Label:  t.desc.Label,
		Width:  t.desc.Width,
		Height: t.desc.Height,
		Format: t.desc.Format,
		Usage:  t.desc.Usage,
		Pool:   t.desc.Pool,
	})
	if err != nil {
		return fmt.Errorf("resource: create texture %q: %w", t.desc.Label, err)
	}
	res, ok := t.devices[dev]
	if !ok {
		res = &textureResources{}
		t.devices[dev] = res
	}
	res.native = native
	res.stale = len(t.pixels) > 0 && !t.desc.IsRenderTarget()
	res.lastUsed = t.reg.Frame()
	return t.flushLocked(dev, res)
}

func (t *Texture) flushLocked(dev backend.Device, res *textureResources) error {
	if res.native == nil || !res.stale {
		return nil
	}
	if err := dev.WriteTexture(res.native, t.pixels); err != nil {
		if backend.IsRetryable(err) {
			rendercore.Logger().Debug("resource: deferred texture upload", "texture", t.desc.Label, "err", err)
			return nil
		}
		return fmt.Errorf("resource: upload texture %q: %w", t.desc.Label, err)
	}
	res.stale = false
	return nil
}

func (t *Texture) releaseAllLocked() {
	for dev, res := range t.devices {
		if res.native != nil {
			res.native.Release()
		}
		delete(t.devices, dev)
	}
}

// OnDeviceCreate implements Lifecycle.
func (t *Texture) OnDeviceCreate(dev backend.Device) {
	if _, ok := t.devices[dev]; ok || !t.reg.wantsLocked(dev) {
		return
	}
	if err := t.createLocked(dev); err != nil {
		rendercore.Logger().Warn("resource: create texture on new device", "texture", t.desc.Label, "err", err)
	}
}

// OnDeviceDestroy implements Lifecycle.
func (t *Texture) OnDeviceDestroy(dev backend.Device) {
	res, ok := t.devices[dev]
	if !ok {
		return
	}
	if res.native != nil {
		res.native.Release()
	}
	delete(t.devices, dev)
}

// OnDeviceLost implements Lifecycle.
func (t *Texture) OnDeviceLost(dev backend.Device) {
	res, ok := t.devices[dev]
	if !ok || t.desc.Pool != backend.PoolDefault || res.native == nil {
		return
	}
	res.native.Release()
	res.native = nil
}

// OnDeviceReset implements Lifecycle.
func (t *Texture) OnDeviceReset(dev backend.Device) {
	res, ok := t.devices[dev]
	if !ok || !t.reg.wantsLocked(dev) {
		return
	}
	var err error
	if res.native == nil {
		err = t.createLocked(dev)
	} else {
		err = t.flushLocked(dev, res)
	}
	if err != nil {
		rendercore.Logger().Warn("resource: restore texture", "texture", t.desc.Label, "err", err)
	}
}
