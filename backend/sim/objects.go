package sim

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendercore/backend"
)

// obj is the release bookkeeping shared by device objects.
type obj struct {
	d        *Device
	pool     backend.Pool
	released bool
}

// releaseLocked marks the object released and reports whether it was live.
// The backend lock must be held.
func (o *obj) releaseLocked() bool {
	if o.released {
		o.d.stats.DoubleReleases++
		return false
	}
	o.released = true
	o.d.trackLocked(o.pool, -1)
	return true
}

// SwapChain is a simulated swap chain.
type SwapChain struct {
	d        *Device
	params   backend.PresentParams
	implicit bool
	released bool
	presents int
}

// Params implements backend.SwapChain.
func (s *SwapChain) Params() backend.PresentParams { return s.params }

// BackBuffer implements backend.SwapChain. Each call returns a new
// reference that must be released before the device is reset.
func (s *SwapChain) BackBuffer() (backend.Surface, error) {
	s.d.b.mu.Lock()
	defer s.d.b.mu.Unlock()
	if s.released || s.d.destroyed {
		return nil, fmt.Errorf("sim: back buffer: %w", backend.ErrInvalidCall)
	}
	s.d.volatile++
	return &surfaceRef{s: &Surface{d: s.d, w: s.params.Width, h: s.params.Height, format: s.params.BackBufferFormat, owned: true}}, nil
}

// Present implements backend.SwapChain.
func (s *SwapChain) Present() error {
	s.d.b.mu.Lock()
	defer s.d.b.mu.Unlock()
	if s.released {
		return fmt.Errorf("sim: present released swap chain: %w", backend.ErrInvalidCall)
	}
	if err := s.d.presentLocked(1); err != nil {
		return err
	}
	s.presents++
	return nil
}

// Presents returns how many times this swap chain presented.
func (s *SwapChain) Presents() int {
	s.d.b.mu.Lock()
	defer s.d.b.mu.Unlock()
	return s.presents
}

// Release implements backend.SwapChain. Implicit swap chains belong to
// the device and ignore Release.
func (s *SwapChain) Release() {
	s.d.b.mu.Lock()
	defer s.d.b.mu.Unlock()
	if s.implicit {
		return
	}
	if s.released {
		s.d.stats.DoubleReleases++
		return
	}
	s.released = true
	s.d.volatile--
	s.d.live--
	s.d.stats.SwapChainsLive--
}

// Surface is a simulated depth-stencil or color surface.
type Surface struct {
	d        *Device
	w, h     int
	format   gputypes.TextureFormat
	samples  uint32
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
	s.d.b.mu.Lock()
	defer s.d.b.mu.Unlock()
	if s.owned {
		return
	}
	if s.released {
		s.d.stats.DoubleReleases++
		return
	}
	s.released = true
	s.d.volatile--
	s.d.live--
	s.d.stats.DepthStencilLive--
}

// surfaceRef is a counted reference to a device-owned surface.
type surfaceRef struct {
	s        *Surface
	released bool
}

func (r *surfaceRef) Width() int                     { return r.s.w }
func (r *surfaceRef) Height() int                    { return r.s.h }
func (r *surfaceRef) Format() gputypes.TextureFormat { return r.s.format }

func (r *surfaceRef) Release() {
	d := r.s.d
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	if r.released {
		d.stats.DoubleReleases++
		return
	}
	r.released = true
	d.volatile--
}

// Buffer is a simulated device buffer. Its contents are kept in memory.
type Buffer struct {
	obj
	desc   backend.BufferDesc
	data   []byte
	writes int
}

// Size implements backend.Buffer.
func (b *Buffer) Size() uint64 { return b.desc.Size }

// Bytes returns a copy of the buffer contents.
func (b *Buffer) Bytes() []byte {
	b.d.b.mu.Lock()
	defer b.d.b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

// Writes returns how many WriteBuffer calls reached this buffer.
func (b *Buffer) Writes() int {
	b.d.b.mu.Lock()
	defer b.d.b.mu.Unlock()
	return b.writes
}

// Release implements backend.Buffer.
func (b *Buffer) Release() {
	b.d.b.mu.Lock()
	defer b.d.b.mu.Unlock()
	if b.releaseLocked() {
		b.d.stats.BuffersLive--
	}
}

// Texture is a simulated device texture.
type Texture struct {
	obj
	desc backend.TextureDesc
	data []byte
}

// Width implements backend.Texture.
func (t *Texture) Width() uint32 { return t.desc.Width }

// Height implements backend.Texture.
func (t *Texture) Height() uint32 { return t.desc.Height }

// Bytes returns a copy of the last uploaded pixels.
func (t *Texture) Bytes() []byte {
	t.d.b.mu.Lock()
	defer t.d.b.mu.Unlock()
	return append([]byte(nil), t.data...)
}

// Release implements backend.Texture.
func (t *Texture) Release() {
	t.d.b.mu.Lock()
	defer t.d.b.mu.Unlock()
	if t.releaseLocked() {
		t.d.stats.TexturesLive--
	}
}

// ShaderModule is a simulated shader module.
type ShaderModule struct {
	obj
	label string
	words int
}

// Release implements backend.ShaderModule.
func (m *ShaderModule) Release() {
	m.d.b.mu.Lock()
	defer m.d.b.mu.Unlock()
	if m.releaseLocked() {
		m.d.stats.ShadersLive--
	}
}
