package resource

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendercore"
	"github.com/gogpu/rendercore/backend"
)

// BufferDesc describes a vertex or index buffer.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
	Pool  backend.Pool
}

// bufferResources is the per-device state of a Buffer.
type bufferResources struct {
	native   backend.Buffer
	stale    bool
	dirty    span
	lastUsed uint64
}

// Buffer is a device-bound buffer with a system memory copy. Writes go to
// the copy and are flushed to each device's native buffer, immediately for
// devices used within the last frame and lazily for the rest.
type Buffer struct {
	reg     *Registry
	desc    BufferDesc
	shadow  []byte
	devices map[backend.Device]*bufferResources
	closed  bool

	scratch   []byte
	mapped    bool
	mapOffset uint64
}

// NewBuffer creates a buffer, registers it with reg, and creates native
// buffers according to the registry's policy.
func NewBuffer(reg *Registry, desc BufferDesc) (*Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("resource: buffer %q: zero size: %w", desc.Label, ErrOutOfRange)
	}
	b := &Buffer{
		reg:     reg,
		desc:    desc,
		shadow:  make([]byte, desc.Size),
		devices: make(map[backend.Device]*bufferResources),
	}

	reg.Lock()
	defer reg.Unlock()
	for _, dev := range reg.targetsLocked() {
		if err := b.createLocked(dev); err != nil {
			b.releaseAllLocked()
			return nil, err
		}
	}
	reg.registerLocked(b)
	return b, nil
}

// Desc returns the buffer description.
func (b *Buffer) Desc() BufferDesc { return b.desc }

// Write copies data into the buffer at offset and flushes it to devices
// used within the last frame.
func (b *Buffer) Write(offset uint64, data []byte) error {
	b.reg.Lock()
	defer b.reg.Unlock()
	return b.writeLocked(offset, data)
}

func (b *Buffer) writeLocked(offset uint64, data []byte) error {
	if b.closed {
		return fmt.Errorf("resource: write buffer %q: %w", b.desc.Label, ErrClosed)
	}
	end := offset + uint64(len(data))
	if end > b.desc.Size || end < offset {
		return fmt.Errorf("resource: write buffer %q [%d:%d] of %d: %w", b.desc.Label, offset, end, b.desc.Size, ErrOutOfRange)
	}
	if len(data) == 0 {
		return nil
	}
	copy(b.shadow[offset:], data)

	frame := b.reg.Frame()
	dirty := span{start: offset, end: end}
	for dev, res := range b.devices {
		res.dirty = res.dirty.union(dirty)
		res.stale = true
		if res.native != nil && res.lastUsed+1 >= frame {
			if err := b.flushLocked(dev, res); err != nil {
				return err
			}
		}
	}
	return nil
}

// Map returns a staging copy of [offset, offset+size) for the caller to
// modify. Unmap writes it back.
func (b *Buffer) Map(offset, size uint64) ([]byte, error) {
	b.reg.Lock()
	defer b.reg.Unlock()
	if b.closed {
		return nil, fmt.Errorf("resource: map buffer %q: %w", b.desc.Label, ErrClosed)
	}
	if offset+size > b.desc.Size || offset+size < offset {
		return nil, fmt.Errorf("resource: map buffer %q [%d:%d] of %d: %w", b.desc.Label, offset, offset+size, b.desc.Size, ErrOutOfRange)
	}
	if uint64(cap(b.scratch)) < size {
		b.scratch = make([]byte, size)
	}
	b.scratch = b.scratch[:size]
	copy(b.scratch, b.shadow[offset:offset+size])
	b.mapped = true
	b.mapOffset = offset
	return b.scratch, nil
}

// Unmap writes the staging copy returned by Map back to the buffer.
func (b *Buffer) Unmap() error {
	b.reg.Lock()
	defer b.reg.Unlock()
	if !b.mapped {
		return fmt.Errorf("resource: unmap buffer %q: %w", b.desc.Label, ErrNotMapped)
	}
	b.mapped = false
	return b.writeLocked(b.mapOffset, b.scratch)
}

// ReleaseCopies implements CopyReleaser. The staging copy is dropped
// unless the buffer is mapped.
func (b *Buffer) ReleaseCopies() {
	if !b.mapped {
		b.scratch = nil
	}
}

// Contents returns a copy of the system memory contents.
func (b *Buffer) Contents() []byte {
	b.reg.Lock()
	defer b.reg.Unlock()
	return append([]byte(nil), b.shadow...)
}

// Prepare returns the native buffer for dev, creating it and flushing
// pending writes as needed, and marks it used in the current frame.
func (b *Buffer) Prepare(dev backend.Device) (backend.Buffer, error) {
	b.reg.Lock()
	defer b.reg.Unlock()
	if b.closed {
		return nil, fmt.Errorf("resource: prepare buffer %q: %w", b.desc.Label, ErrClosed)
	}
	res, ok := b.devices[dev]
	if !ok || res.native == nil {
		if err := b.createLocked(dev); err != nil {
			return nil, err
		}
		res = b.devices[dev]
	}
	if res.stale {
		if err := b.flushLocked(dev, res); err != nil {
			return nil, err
		}
	}
	res.lastUsed = b.reg.Frame()
	return res.native, nil
}

// Subresource returns the native buffer for dev without creating it.
func (b *Buffer) Subresource(dev backend.Device) (backend.Buffer, error) {
	b.reg.Lock()
	defer b.reg.Unlock()
	res, ok := b.devices[dev]
	if !ok || res.native == nil {
		return nil, fmt.Errorf("resource: buffer %q: %w", b.desc.Label, ErrNoSubresource)
	}
	return res.native, nil
}

// Close releases every native buffer and unregisters the buffer.
func (b *Buffer) Close() {
	b.reg.Lock()
	defer b.reg.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.releaseAllLocked()
	b.reg.unregisterLocked(b)
}

func (b *Buffer) createLocked(dev backend.Device) error {
	native, err := dev.CreateBuffer(backend.BufferDesc{
		Label: b.desc.Label,
		Size:  b.desc.Size,
		Usage: b.desc.Usage,
		Pool:  b.desc.Pool,
	})
	if err != nil {
		return fmt.Errorf("resource: create buffer %q: %w", b.desc.Label, err)
	}
	res, ok := b.devices[dev]
	if !ok {
		res = &bufferResources{}
		b.devices[dev] = res
	}
	res.native = native
	res.stale = true
	res.dirty = span{end: b.desc.Size}
	res.lastUsed = b.reg.Frame()
	return b.flushLocked(dev, res)
}

func (b *Buffer) flushLocked(dev backend.Device, res *bufferResources) error {
	if res.native == nil {
		return nil
	}
	if !res.dirty.empty() {
		d := res.dirty
		if err := dev.WriteBuffer(res.native, d.start, b.shadow[d.start:d.end]); err != nil {
			if backend.IsRetryable(err) {
				// Kept stale; flushed again after the device is reset.
				rendercore.Logger().Debug("resource: deferred buffer flush", "buffer", b.desc.Label, "err", err)
				return nil
			}
			return fmt.Errorf("resource: flush buffer %q: %w", b.desc.Label, err)
		}
	}
	res.dirty = span{}
	res.stale = false
	return nil
}

func (b *Buffer) releaseAllLocked() {
	for dev, res := range b.devices {
		if res.native != nil {
			res.native.Release()
		}
		delete(b.devices, dev)
	}
}

// OnDeviceCreate implements Lifecycle.
func (b *Buffer) OnDeviceCreate(dev backend.Device) {
	if _, ok := b.devices[dev]; ok || !b.reg.wantsLocked(dev) {
		return
	}
	if err := b.createLocked(dev); err != nil {
		rendercore.Logger().Warn("resource: create buffer on new device", "buffer", b.desc.Label, "err", err)
	}
}

// OnDeviceDestroy implements Lifecycle.
func (b *Buffer) OnDeviceDestroy(dev backend.Device) {
	res, ok := b.devices[dev]
	if !ok {
		return
	}
	if res.native != nil {
		res.native.Release()
	}
	delete(b.devices, dev)
}

// OnDeviceLost implements Lifecycle. Default-pool buffers release their
// native object; managed buffers are kept by the native API.
func (b *Buffer) OnDeviceLost(dev backend.Device) {
	res, ok := b.devices[dev]
	if !ok || b.desc.Pool != backend.PoolDefault || res.native == nil {
		return
	}
	res.native.Release()
	res.native = nil
	res.stale = true
	res.dirty = span{end: b.desc.Size}
}

// OnDeviceReset implements Lifecycle. Under PolicyEager default-pool
// buffers are recreated from the system copy and pending writes to managed
// buffers are flushed. Under PolicyLazy both wait for the next Prepare.
func (b *Buffer) OnDeviceReset(dev backend.Device) {
	res, ok := b.devices[dev]
	if !ok || !b.reg.wantsLocked(dev) {
		return
	}
	var err error
	if res.native == nil {
		err = b.createLocked(dev)
	} else if res.stale {
		err = b.flushLocked(dev, res)
	}
	if err != nil {
		rendercore.Logger().Warn("resource: restore buffer", "buffer", b.desc.Label, "err", err)
	}
}
