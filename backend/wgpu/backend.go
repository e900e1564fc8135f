package wgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendercore"
	"github.com/gogpu/rendercore/backend"
)

func init() {
	backend.Register(backend.NameWGPU, func() backend.Backend {
		api, err := hal.SelectBestBackend()
		if err != nil || api.Variant() == gputypes.BackendEmpty {
			return nil
		}
		b, err := New(api)
		if err != nil {
			rendercore.Logger().Warn("wgpu: backend unavailable", "err", err)
			return nil
		}
		return b
	})
}

// MonitorResolver maps a native window handle to the monitor showing it.
type MonitorResolver func(window uintptr) backend.Monitor

// Option configures a Backend.
type Option func(*Backend)

// WithMonitorResolver sets how windows are mapped to monitors. By default
// every window is on the monitor of adapter 0.
func WithMonitorResolver(r MonitorResolver) Option {
	return func(b *Backend) { b.monitor = r }
}

// AdapterMonitorResolver maps an enumerated adapter to the monitor it
// drives.
type AdapterMonitorResolver func(ordinal int, info gputypes.AdapterInfo) backend.Monitor

// WithAdapterMonitorResolver sets how adapters are mapped to monitors. It
// should agree with the MonitorResolver so that windows land on an
// adapter's monitor. By default adapter i drives monitor i+1.
func WithAdapterMonitorResolver(r AdapterMonitorResolver) Option {
	return func(b *Backend) { b.adapterMonitor = r }
}

// WithDisplay sets the display handle passed to hal surface creation.
func WithDisplay(display uintptr) Option {
	return func(b *Backend) { b.display = display }
}

// Backend is a backend.Backend over one hal API.
type Backend struct {
	api      hal.Backend
	instance hal.Instance
	exposed  []hal.ExposedAdapter
	descs    []backend.AdapterDesc
	monitor  MonitorResolver
	display  uintptr

	adapterMonitor AdapterMonitorResolver

	mu     sync.Mutex
	closed bool
}

// New creates an instance of api and enumerates its adapters.
func New(api hal.Backend, opts ...Option) (*Backend, error) {
	inst, err := api.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create %v instance: %w", api.Variant(), err)
	}
	exposed := inst.EnumerateAdapters(nil)
	if len(exposed) == 0 {
		inst.Destroy()
		return nil, fmt.Errorf("wgpu: %v has no adapters: %w", api.Variant(), backend.ErrNotAvailable)
	}

	b := &Backend{api: api, instance: inst, exposed: exposed}
	for i, ea := range exposed {
		b.descs = append(b.descs, backend.AdapterDesc{
			Ordinal:              i,
			Info:                 ea.Info,
			Monitor:              backend.Monitor(i + 1),
			MasterAdapterOrdinal: i,
			AdaptersInGroup:      1,
		})
		rendercore.Logger().Info("wgpu: adapter",
			"ordinal", i, "name", ea.Info.Name, "type", ea.Info.DeviceType, "backend", ea.Info.Backend)
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.adapterMonitor != nil {
		for i := range b.descs {
			b.descs[i].Monitor = b.adapterMonitor(i, b.descs[i].Info)
		}
	}
	return b, nil
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return backend.NameWGPU }

// Adapters implements backend.Backend.
func (b *Backend) Adapters() []backend.AdapterDesc {
	return append([]backend.AdapterDesc(nil), b.descs...)
}

// MonitorFromWindow implements backend.Backend.
func (b *Backend) MonitorFromWindow(window uintptr) backend.Monitor {
	if b.monitor != nil {
		return b.monitor(window)
	}
	return b.descs[0].Monitor
}

// SupportsDepthFormat implements backend.Backend.
func (b *Backend) SupportsDepthFormat(adapter int, _ backend.DeviceKind, _, depth gputypes.TextureFormat) bool {
	if adapter < 0 || adapter >= len(b.exposed) || !depth.IsDepthStencil() {
		return false
	}
	caps := b.exposed[adapter].Adapter.TextureFormatCapabilities(depth)
	return caps.Flags&hal.TextureFormatCapabilityRenderAttachment != 0
}

// CreateDevice implements backend.Backend. hal has no adapter groups or
// vertex processing modes; FlagAdapterGroup is rejected and the vertex
// processing flags are recorded only.
func (b *Backend) CreateDevice(adapter int, kind backend.DeviceKind, focus uintptr,
	flags backend.CreateFlags, params []backend.PresentParams) (backend.Device, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("wgpu: create device: %w", backend.ErrInvalidCall)
	}
	if adapter < 0 || adapter >= len(b.exposed) {
		return nil, fmt.Errorf("wgpu: adapter %d: %w", adapter, backend.ErrUnknownAdapter)
	}
	if flags.Has(backend.FlagAdapterGroup) {
		return nil, fmt.Errorf("wgpu: adapter group devices: %w", backend.ErrNotSupported)
	}
	if len(params) != 1 {
		return nil, fmt.Errorf("wgpu: %d present parameters for one head: %w", len(params), backend.ErrInvalidCall)
	}
	ea := b.exposed[adapter]
	if kind == backend.KindReference && ea.Info.DeviceType != gputypes.DeviceTypeCPU {
		return nil, fmt.Errorf("wgpu: reference device on %q: %w", ea.Info.Name, backend.ErrNotSupported)
	}

	d := &Device{
		b:        b,
		exposed:  ea,
		creation: backend.CreationParams{Adapter: adapter, Kind: kind, FocusWindow: focus, Flags: flags},
		caps: backend.Caps{
			AdapterOrdinal:       adapter,
			MasterAdapterOrdinal: adapter,
			AdaptersInGroup:      1,
			MaxTextureDimension:  ea.Capabilities.Limits.MaxTextureDimension2D,
			MaxSampleCount:       maxSampleCount(ea.Adapter),
		},
		objects: make(map[object]struct{}),
	}
	if err := d.open(); err != nil {
		return nil, err
	}
	sc, err := d.newSwapChain(params[0], true)
	if err != nil {
		d.raw.Destroy()
		return nil, err
	}
	d.implicit = []*SwapChain{sc}
	if err := d.createAutoDepthLocked(params[0]); err != nil {
		sc.destroy()
		d.raw.Destroy()
		return nil, err
	}
	rendercore.Logger().Info("wgpu: device created", "adapter", ea.Info.Name, "kind", kind)
	return d, nil
}

// Close implements backend.Backend.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ea := range b.exposed {
		ea.Adapter.Destroy()
	}
	b.instance.Destroy()
}

func maxSampleCount(a hal.Adapter) uint32 {
	caps := a.TextureFormatCapabilities(gputypes.TextureFormatBGRA8Unorm)
	if caps.Flags&hal.TextureFormatCapabilityMultisample != 0 {
		return 4
	}
	return 1
}
