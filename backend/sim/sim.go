// Package sim provides an in-memory backend with fault injection.
//
// Devices created by a sim Backend keep the cooperative-level state machine
// of a real driver: they can be lost, become resettable, fail a reset, and
// refuse a reset while volatile objects are still alive. Counters expose what
// the caller did so tests can check lifecycle invariants.
package sim

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendercore/backend"
)

func init() {
	backend.Register(backend.NameSim, func() backend.Backend { return New() })
}

// Backend is a simulated native API. It is safe for concurrent use.
type Backend struct {
	mu          sync.Mutex
	adapters    []backend.AdapterDesc
	monitors    map[uintptr]backend.Monitor
	noDepth     map[gputypes.TextureFormat]bool
	failCreates int
	attempts    []backend.CreationParams
	devices     []*Device
	closed      bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithAdapters replaces the default single adapter.
func WithAdapters(adapters ...backend.AdapterDesc) Option {
	return func(b *Backend) {
		b.adapters = append([]backend.AdapterDesc(nil), adapters...)
	}
}

// WithUnsupportedDepthFormats makes SupportsDepthFormat reject formats.
func WithUnsupportedDepthFormats(formats ...gputypes.TextureFormat) Option {
	return func(b *Backend) {
		for _, f := range formats {
			b.noDepth[f] = true
		}
	}
}

// New creates a simulated backend. Without options it exposes one
// discrete adapter on monitor 1.
func New(opts ...Option) *Backend {
	b := &Backend{
		adapters: []backend.AdapterDesc{Adapter(0, "Simulated Adapter", 1)},
		monitors: make(map[uintptr]backend.Monitor),
		noDepth:  make(map[gputypes.TextureFormat]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Adapter describes a single-head adapter.
func Adapter(ordinal int, name string, monitor backend.Monitor) backend.AdapterDesc {
	return backend.AdapterDesc{
		Ordinal: ordinal,
		Info: gputypes.AdapterInfo{
			Name:       name,
			Vendor:     "GoGPU",
			DeviceType: gputypes.DeviceTypeDiscreteGPU,
			Driver:     "sim",
		},
		Monitor:              monitor,
		MasterAdapterOrdinal: ordinal,
		AdaptersInGroup:      1,
	}
}

// AdapterGroup describes the heads of a multi-head adapter. The first head
// gets ordinal first and is the group master.
func AdapterGroup(first int, name string, monitors ...backend.Monitor) []backend.AdapterDesc {
	heads := make([]backend.AdapterDesc, len(monitors))
	for i, m := range monitors {
		heads[i] = Adapter(first+i, fmt.Sprintf("%s (head %d)", name, i), m)
		heads[i].MasterAdapterOrdinal = first
		heads[i].AdapterOrdinalInGroup = i
		heads[i].AdaptersInGroup = len(monitors)
	}
	return heads
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return backend.NameSim }

// Adapters implements backend.Backend.
func (b *Backend) Adapters() []backend.AdapterDesc {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.AdapterDesc(nil), b.adapters...)
}

// SetWindowMonitor places window on monitor m. Monitor 0 simulates a
// minimized window.
func (b *Backend) SetWindowMonitor(window uintptr, m backend.Monitor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.monitors[window] = m
}

// MonitorFromWindow implements backend.Backend. Windows without an explicit
// placement are on the first adapter's monitor.
func (b *Backend) MonitorFromWindow(window uintptr) backend.Monitor {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.monitors[window]; ok {
		return m
	}
	if len(b.adapters) == 0 {
		return 0
	}
	return b.adapters[0].Monitor
}

// FailNextCreates makes the next n CreateDevice calls fail.
func (b *Backend) FailNextCreates(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failCreates = n
}

// CreateAttempts returns the parameters of every CreateDevice call.
func (b *Backend) CreateAttempts() []backend.CreationParams {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.CreationParams(nil), b.attempts...)
}

// Devices returns every device created so far, destroyed ones included.
func (b *Backend) Devices() []*Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Device(nil), b.devices...)
}

// LiveDevices returns the number of devices not yet destroyed.
func (b *Backend) LiveDevices() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, d := range b.devices {
		if !d.destroyed {
			n++
		}
	}
	return n
}

// SupportsDepthFormat implements backend.Backend.
func (b *Backend) SupportsDepthFormat(adapter int, _ backend.DeviceKind, _, depth gputypes.TextureFormat) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if adapter < 0 || adapter >= len(b.adapters) {
		return false
	}
	return depth.IsDepthStencil() && !b.noDepth[depth]
}

// CreateDevice implements backend.Backend.
func (b *Backend) CreateDevice(adapter int, kind backend.DeviceKind, focus uintptr,
	flags backend.CreateFlags, params []backend.PresentParams) (backend.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := backend.CreationParams{Adapter: adapter, Kind: kind, FocusWindow: focus, Flags: flags}
	b.attempts = append(b.attempts, cp)

	if b.closed {
		return nil, fmt.Errorf("sim: create device: %w", backend.ErrInvalidCall)
	}
	if adapter < 0 || adapter >= len(b.adapters) {
		return nil, fmt.Errorf("sim: adapter %d: %w", adapter, backend.ErrUnknownAdapter)
	}
	if b.failCreates > 0 {
		b.failCreates--
		return nil, fmt.Errorf("sim: create %s device (flags %#x): %w", kind, uint32(flags), backend.ErrNotSupported)
	}
	desc := b.adapters[adapter]
	heads := 1
	if flags.Has(backend.FlagAdapterGroup) {
		if desc.AdapterOrdinalInGroup != 0 {
			return nil, fmt.Errorf("sim: adapter %d is not a group master: %w", adapter, backend.ErrInvalidCall)
		}
		heads = desc.AdaptersInGroup
	}
	if len(params) != heads {
		return nil, fmt.Errorf("sim: %d present parameters for %d heads: %w", len(params), heads, backend.ErrInvalidCall)
	}

	d := &Device{
		b:        b,
		id:       len(b.devices),
		creation: cp,
		caps: backend.Caps{
			AdapterOrdinal:        desc.Ordinal,
			MasterAdapterOrdinal:  desc.MasterAdapterOrdinal,
			AdapterOrdinalInGroup: desc.AdapterOrdinalInGroup,
			AdaptersInGroup:       desc.AdaptersInGroup,
			MaxTextureDimension:   8192,
			MaxSampleCount:        8,
		},
	}
	d.buildImplicitLocked(params)
	b.devices = append(b.devices, d)
	return d, nil
}

// Close implements backend.Backend.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
