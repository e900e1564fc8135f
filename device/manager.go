package device

import (
	"fmt"
	"slices"
	"time"

	"github.com/gogpu/rendercore"
	"github.com/gogpu/rendercore/backend"
	"github.com/gogpu/rendercore/resource"
)

// Manager owns every Device of a backend. It binds render surfaces to
// devices, groups full-screen surfaces into multi-head devices and tracks
// the active device.
//
// Listener callbacks run with the device-access lock held. They must not
// call methods of Manager, Device or resource types that take the lock.
type Manager struct {
	backend backend.Backend
	reg     *resource.Registry
	cfg     rendercore.Config
	policy  CompatibilityPolicy
	sleep   func(time.Duration)
	depth   *DepthStencilCache

	drivers  []Driver
	devices  []*Device
	surfaces []RenderSurface

	active       *Device
	activeRT     *Device
	activeDriver int

	// focusWindow is the window shared by every device once a full-screen
	// primary surface exists. Zero means none.
	focusWindow uintptr
	generation  uint64

	lostListeners   []func(*Device)
	resetListeners  []func(*Device)
	activeListeners []func(prev, next *Device)

	closed bool
}

// NewManager creates a manager for the adapters of b. It installs itself
// as the device set of reg and applies the configured creation policy.
func NewManager(b backend.Backend, reg *resource.Registry, opts ...Option) (*Manager, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := resource.ParsePolicy(o.cfg.CreationPolicy)
	if err != nil {
		return nil, err
	}
	if o.policy == nil {
		vp, err := NewVersionPolicy(o.cfg.Multihead)
		if err != nil {
			return nil, err
		}
		o.policy = vp
	}
	adapters := b.Adapters()
	if len(adapters) == 0 {
		return nil, fmt.Errorf("%w: backend %s", ErrNoAdapter, b.Name())
	}

	m := &Manager{
		backend:      b,
		reg:          reg,
		cfg:          o.cfg,
		policy:       o.policy,
		sleep:        o.sleep,
		depth:        NewDepthStencilCache(),
		drivers:      newDrivers(adapters),
		activeDriver: -1,
	}
	reg.SetPolicy(policy)
	reg.SetDeviceSet(m)
	rendercore.Logger().Info("device: manager ready", "backend", b.Name(),
		"adapters", len(adapters), "policy", policy)
	return m, nil
}

// Close destroys every device and detaches the manager from its registry.
func (m *Manager) Close() {
	m.reg.Lock()
	if m.closed {
		m.reg.Unlock()
		return
	}
	for len(m.devices) > 0 {
		m.devices[0].destroyLocked()
	}
	m.surfaces = nil
	m.activeRT = nil
	m.focusWindow = 0
	m.closed = true
	m.reg.Unlock()
	m.reg.SetDeviceSet(nil)
}

// Registry returns the resource registry the manager broadcasts to.
func (m *Manager) Registry() *resource.Registry { return m.reg }

// Backend returns the native API.
func (m *Manager) Backend() backend.Backend { return m.backend }

// LinkRenderWindow binds s to a device, creating or regrouping devices as
// needed, and acquires the device.
func (m *Manager) LinkRenderWindow(s RenderSurface) Result {
	m.reg.Lock()
	defer m.reg.Unlock()
	if m.closed {
		return fatal(fmt.Errorf("%w: manager closed", ErrDestroyed))
	}
	return m.linkLocked(s)
}

func (m *Manager) linkLocked(s RenderSurface) Result {
	prev := s.Device()
	if prev != nil {
		prev.detachLocked(s)
	}
	if !slices.Contains(m.surfaces, s) {
		m.surfaces = append(m.surfaces, s)
	}

	dev, group, err := m.selectLocked(s, prev)
	if err != nil {
		return fatal(err)
	}
	for i, cur := range group {
		cur.SetDevice(dev)
		dev.attachLocked(cur)
		dev.setOrdinalLocked(cur, i)
	}
	rendercore.Logger().Info("device: surface linked", "surface", s.Name(), "device", dev.String(), "heads", len(group))

	res := dev.acquireLocked()
	// A device that failed to create must not become active.
	if m.active == nil && !res.Fatal() && dev.native != nil {
		m.setActiveLocked(dev)
	}
	return res
}

// UnlinkRenderWindow detaches s from its device. The device is kept until
// DestroyInactiveRenderDevices collects it.
func (m *Manager) UnlinkRenderWindow(s RenderSurface) {
	m.reg.Lock()
	defer m.reg.Unlock()
	if d := s.Device(); d != nil {
		d.detachLocked(s)
		s.SetDevice(nil)
	}
	m.surfaces = slices.DeleteFunc(m.surfaces, func(x RenderSurface) bool { return x == s })
}

// selectLocked picks the device for s. The returned group lists the
// surfaces to attach, indexed by head; it is just s unless a complete
// multi-head group formed.
func (m *Manager) selectLocked(s RenderSurface, prev *Device) (*Device, []RenderSurface, error) {
	log := rendercore.Logger()
	group := []RenderSurface{s}
	adapter := -1
	kind := backend.KindHardware
	var dev *Device

	if s.WantsDiagnosticDevice() {
		for _, drv := range m.drivers {
			if drv.matches(m.cfg.DiagnosticAdapter) {
				adapter = drv.Ordinal()
				kind = backend.KindReference
				break
			}
		}
	}

	if adapter < 0 {
		drv, _, err := m.findDriverLocked(s)
		if err != nil {
			return nil, nil, err
		}
		adapter = drv.Ordinal()

		if s.IsFullScreen() {
			if allowed, reason := m.policy.AllowMultihead(s); !allowed {
				log.Warn("device: multi-head disabled", "surface", s.Name(), "reason", reason)
			} else if g := m.multiheadGroupLocked(s, drv); g != nil {
				group = g
				adapter = drv.MasterAdapterOrdinal()
				dev = m.claimGroupLocked(g, prev)
			}
		}
	}

	if dev == nil {
		dev = m.findDeviceLocked(adapter, kind)
	}
	if dev == nil {
		dev = m.findDeviceLocked(adapter, backend.KindReference)
	}
	if dev == nil {
		var flags backend.CreateFlags
		if m.cfg.FPUPreserve {
			flags |= backend.FlagFPUPreserve
		}
		if m.cfg.Multithreaded {
			flags |= backend.FlagMultithreaded
		}
		monitor := backend.Monitor(0)
		if drv, ok := m.driverByOrdinal(adapter); ok {
			monitor = drv.Monitor()
		}
		dev = newDevice(m, adapter, monitor, kind, flags)
		m.devices = append(m.devices, dev)
		log.Debug("device: new device", "device", dev.String())
	}
	return dev, group, nil
}

// multiheadGroupLocked collects the full-screen surfaces covering every
// head of the group drv belongs to. It returns nil unless all heads are
// covered.
func (m *Manager) multiheadGroupLocked(s RenderSurface, drv Driver) []RenderSurface {
	master, ok := m.driverByOrdinal(drv.MasterAdapterOrdinal())
	if !ok || master.AdaptersInGroup() < 2 {
		return nil
	}
	group := make([]RenderSurface, master.AdaptersInGroup())
	place := func(cur RenderSurface, head Driver) {
		if i := head.AdapterOrdinalInGroup(); i >= 0 && i < len(group) && group[i] == nil {
			group[i] = cur
		}
	}
	place(s, drv)
	for _, cur := range m.surfaces {
		if cur == s || !cur.IsFullScreen() {
			continue
		}
		head, matched, err := m.findDriverLocked(cur)
		if err != nil || !matched || head.MasterAdapterOrdinal() != master.Ordinal() {
			continue
		}
		place(cur, head)
	}
	if slices.Contains(group, nil) {
		rendercore.Logger().Debug("device: multi-head group incomplete", "surface", s.Name(),
			"master", master.Ordinal(), "heads", len(group))
		return nil
	}
	return group
}

// claimGroupLocked prepares the master surface's device to drive the
// whole group and destroys the devices of the other heads.
func (m *Manager) claimGroupLocked(group []RenderSurface, prev *Device) *Device {
	var dev *Device
	destroyed := false
	for i, cur := range group {
		cd := cur.Device()
		if i == 0 && cd == nil {
			cd = prev
		}
		if cd == nil || cd.destroyed {
			continue
		}
		if i == 0 {
			dev = cd
			dev.releaseLocked()
			continue
		}
		if cd != dev {
			cd.destroyLocked()
			destroyed = true
		}
	}
	if destroyed {
		for _, d := range m.devices {
			d.validateFocusWindowLocked()
		}
	}
	return dev
}

func (m *Manager) findDeviceLocked(adapter int, kind backend.DeviceKind) *Device {
	for _, d := range m.devices {
		if d.adapter == adapter && d.kind == kind {
			return d
		}
	}
	return nil
}

// findDriverLocked returns the driver whose monitor shows s. When no
// driver reports that monitor it returns the first driver and matched is
// false.
func (m *Manager) findDriverLocked(s RenderSurface) (drv Driver, matched bool, err error) {
	if len(m.drivers) == 0 {
		return Driver{}, false, ErrNoAdapter
	}
	if d, ok := m.driverByMonitor(m.backend.MonitorFromWindow(s.WindowHandle())); ok {
		return d, true, nil
	}
	return m.drivers[0], false, nil
}

func (m *Manager) driverByMonitor(mon backend.Monitor) (Driver, bool) {
	for _, drv := range m.drivers {
		if drv.Monitor() == mon {
			return drv, true
		}
	}
	return Driver{}, false
}

func (m *Manager) driverByOrdinal(ordinal int) (Driver, bool) {
	for _, drv := range m.drivers {
		if drv.Ordinal() == ordinal {
			return drv, true
		}
	}
	return Driver{}, false
}

// DestroyInactiveRenderDevices destroys one device that has no surfaces
// and did not present during the previous frame. It reports whether a
// device was destroyed.
func (m *Manager) DestroyInactiveRenderDevices() bool {
	m.reg.Lock()
	defer m.reg.Unlock()
	frame := m.reg.Frame()
	for _, d := range m.devices {
		if len(d.surfaces) != 0 || d.lastPresent+1 >= frame {
			continue
		}
		if d == m.activeRT {
			m.activeRT = nil
		}
		rendercore.Logger().Info("device: destroying inactive device", "device", d.String(),
			"last_present", d.lastPresent, "frame", frame)
		d.destroyLocked()
		return true
	}
	return false
}

// notifyOnDeviceDestroyLocked removes d. When d was active the first
// remaining device, if any, becomes active.
func (m *Manager) notifyOnDeviceDestroyLocked(d *Device) {
	i := slices.Index(m.devices, d)
	if i < 0 {
		return
	}
	m.devices = slices.Delete(m.devices, i, i+1)
	if d == m.activeRT {
		m.activeRT = nil
	}
	if d == m.active {
		var next *Device
		if len(m.devices) > 0 {
			next = m.devices[0]
		}
		m.setActiveLocked(next)
	}
}

// ActiveDevice returns the active device.
func (m *Manager) ActiveDevice() (*Device, error) {
	m.reg.Lock()
	defer m.reg.Unlock()
	if m.active == nil {
		return nil, ErrNoActiveDevice
	}
	return m.active, nil
}

// SetActiveDevice makes d the active device. Resources created under the
// lazy policy are created on it.
func (m *Manager) SetActiveDevice(d *Device) {
	m.reg.Lock()
	defer m.reg.Unlock()
	m.setActiveLocked(d)
}

func (m *Manager) setActiveLocked(d *Device) {
	if m.active == d {
		return
	}
	prev := m.active
	m.active = d
	m.activeDriver = -1
	if d != nil {
		for i, drv := range m.drivers {
			if drv.Ordinal() == d.adapter {
				m.activeDriver = i
				break
			}
		}
	}
	m.generation++
	if d != nil {
		rendercore.Logger().Debug("device: active device changed", "device", d.String())
	} else {
		rendercore.Logger().Debug("device: no active device")
	}
	for _, fn := range m.activeListeners {
		fn(prev, d)
	}
}

// withActiveLocked runs fn with d as the active device and restores the
// previous one. Listeners are not told about the swap.
func (m *Manager) withActiveLocked(d *Device, fn func()) {
	prev := m.active
	m.active = d
	defer func() { m.active = prev }()
	fn()
}

// ActiveRenderTargetDevice returns the device render targets were last
// bound to, or nil.
func (m *Manager) ActiveRenderTargetDevice() *Device {
	m.reg.Lock()
	defer m.reg.Unlock()
	return m.activeRT
}

// SetActiveRenderTargetDevice records the device render targets are bound
// to.
func (m *Manager) SetActiveRenderTargetDevice(d *Device) {
	m.reg.Lock()
	defer m.reg.Unlock()
	m.activeRT = d
}

// ActiveDriver returns the driver of the active device.
func (m *Manager) ActiveDriver() (Driver, bool) {
	m.reg.Lock()
	defer m.reg.Unlock()
	if m.activeDriver < 0 {
		return Driver{}, false
	}
	return m.drivers[m.activeDriver], true
}

// Devices returns the live devices in creation order.
func (m *Manager) Devices() []*Device {
	m.reg.Lock()
	defer m.reg.Unlock()
	return slices.Clone(m.devices)
}

// DeviceCount returns the number of live devices.
func (m *Manager) DeviceCount() int {
	m.reg.Lock()
	defer m.reg.Unlock()
	return len(m.devices)
}

// DeviceFor returns the device owning native, or nil.
func (m *Manager) DeviceFor(native backend.Device) *Device {
	m.reg.Lock()
	defer m.reg.Unlock()
	for _, d := range m.devices {
		if d.native != nil && d.native == native {
			return d
		}
	}
	return nil
}

// Drivers returns the enumerated adapters.
func (m *Manager) Drivers() []Driver {
	return slices.Clone(m.drivers)
}

// BeginFrame advances the frame counter and returns the new frame number.
func (m *Manager) BeginFrame() uint64 { return m.reg.AdvanceFrame() }

// Frame returns the current frame number.
func (m *Manager) Frame() uint64 { return m.reg.Frame() }

// OnDeviceLost registers fn to run when a device is observed lost.
func (m *Manager) OnDeviceLost(fn func(*Device)) {
	m.reg.Lock()
	defer m.reg.Unlock()
	m.lostListeners = append(m.lostListeners, fn)
}

// OnDeviceReset registers fn to run after a device was reset.
func (m *Manager) OnDeviceReset(fn func(*Device)) {
	m.reg.Lock()
	defer m.reg.Unlock()
	m.resetListeners = append(m.resetListeners, fn)
}

// OnActiveDeviceChange registers fn to run when the active device changes.
// next is nil when no device is left.
func (m *Manager) OnActiveDeviceChange(fn func(prev, next *Device)) {
	m.reg.Lock()
	defer m.reg.Unlock()
	m.activeListeners = append(m.activeListeners, fn)
}

func (m *Manager) deviceLostLocked(d *Device) {
	for _, fn := range m.lostListeners {
		fn(d)
	}
}

// deviceResetLocked fires the reset listeners. Contexts taken before the
// reset are no longer current.
func (m *Manager) deviceResetLocked(d *Device) {
	m.generation++
	for _, fn := range m.resetListeners {
		fn(d)
	}
}

// backoff sleeps after a failed reset. It must be called without the lock.
func (m *Manager) backoff() {
	if d := m.cfg.ResetBackoff.Std(); d > 0 {
		m.sleep(d)
	}
}

// ActiveNativeDevice implements resource.DeviceSet. Resources call it with
// the device-access lock held.
func (m *Manager) ActiveNativeDevice() backend.Device {
	if m.active == nil || m.active.native == nil {
		return nil
	}
	return m.active.native
}

// NativeDevices implements resource.DeviceSet. Resources call it with the
// device-access lock held.
func (m *Manager) NativeDevices() []backend.Device {
	out := make([]backend.Device, 0, len(m.devices))
	for _, d := range m.devices {
		if d.native != nil {
			out = append(out, d.native)
		}
	}
	return out
}

var _ resource.DeviceSet = (*Manager)(nil)
