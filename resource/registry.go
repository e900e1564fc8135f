package resource

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/rendercore"
	"github.com/gogpu/rendercore/backend"
)

// Lifecycle is implemented by device-bound resources. Callbacks run with
// the device-access lock held and must not call locking methods of the
// Registry or of other resources.
type Lifecycle interface {
	// OnDeviceCreate is called after a native device is created.
	OnDeviceCreate(dev backend.Device)

	// OnDeviceDestroy is called before a native device is destroyed.
	OnDeviceDestroy(dev backend.Device)

	// OnDeviceLost is called before a native device is reset. Default-pool
	// objects must be released.
	OnDeviceLost(dev backend.Device)

	// OnDeviceReset is called after a native device was reset.
	OnDeviceReset(dev backend.Device)
}

// CopyReleaser is implemented by resources holding temporary system
// memory copies that can be dropped under memory pressure.
type CopyReleaser interface {
	ReleaseCopies()
}

// Policy selects on which devices new resources create native objects.
type Policy int

const (
	// PolicyLazy creates native objects on the active device only. Other
	// devices get theirs on first use.
	PolicyLazy Policy = iota

	// PolicyEager creates native objects on every live device.
	PolicyEager
)

// String returns the configuration name of the policy.
func (p Policy) String() string {
	if p == PolicyEager {
		return rendercore.PolicyEager
	}
	return rendercore.PolicyLazy
}

// ParsePolicy parses a configuration policy name.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case rendercore.PolicyLazy, "":
		return PolicyLazy, nil
	case rendercore.PolicyEager:
		return PolicyEager, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// DeviceSet exposes the live native devices to resources.
type DeviceSet interface {
	// ActiveNativeDevice returns the native device of the active device,
	// or nil if there is none.
	ActiveNativeDevice() backend.Device

	// NativeDevices returns the native devices of every live device.
	NativeDevices() []backend.Device
}

// Registry is the set of live resources.
//
// The zero value is not usable; use NewRegistry.
type Registry struct {
	// mu is the device-access lock.
	mu sync.Mutex

	order        []Lifecycle
	index        map[Lifecycle]int
	broadcasting bool
	policy       Policy
	devices      DeviceSet

	frame atomic.Uint64
}

// NewRegistry creates an empty registry with PolicyLazy.
func NewRegistry() *Registry {
	return &Registry{index: make(map[Lifecycle]int)}
}

// Lock acquires the device-access lock.
func (r *Registry) Lock() { r.mu.Lock() }

// Unlock releases the device-access lock.
func (r *Registry) Unlock() { r.mu.Unlock() }

// Policy returns the creation policy.
func (r *Registry) Policy() Policy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.policy
}

// SetPolicy sets the creation policy used by resources created afterwards.
func (r *Registry) SetPolicy(p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policy = p
}

// SetDeviceSet installs the source of live devices.
func (r *Registry) SetDeviceSet(ds DeviceSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = ds
}

// Frame returns the current frame number.
func (r *Registry) Frame() uint64 { return r.frame.Load() }

// AdvanceFrame increments the frame number and returns the new value.
func (r *Registry) AdvanceFrame() uint64 { return r.frame.Add(1) }

// Register adds res to the set. Registering twice is a no-op.
func (r *Registry) Register(res Lifecycle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerLocked(res)
}

func (r *Registry) registerLocked(res Lifecycle) {
	if _, ok := r.index[res]; ok {
		return
	}
	r.index[res] = len(r.order)
	r.order = append(r.order, res)
}

// Unregister removes res from the set. It receives no further broadcasts.
func (r *Registry) Unregister(res Lifecycle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked(res)
}

func (r *Registry) unregisterLocked(res Lifecycle) {
	i, ok := r.index[res]
	if !ok {
		return
	}
	delete(r.index, res)
	copy(r.order[i:], r.order[i+1:])
	r.order[len(r.order)-1] = nil
	r.order = r.order[:len(r.order)-1]
	for j := i; j < len(r.order); j++ {
		r.index[r.order[j]] = j
	}
}

// Contains reports whether res is registered.
func (r *Registry) Contains(res Lifecycle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.index[res]
	return ok
}

// Len returns the number of registered resources.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// NotifyDeviceCreate broadcasts OnDeviceCreate. The caller must hold the
// device-access lock.
func (r *Registry) NotifyDeviceCreate(dev backend.Device) {
	r.broadcast("create", func(l Lifecycle) { l.OnDeviceCreate(dev) })
}

// NotifyDeviceDestroy broadcasts OnDeviceDestroy. The caller must hold the
// device-access lock.
func (r *Registry) NotifyDeviceDestroy(dev backend.Device) {
	r.broadcast("destroy", func(l Lifecycle) { l.OnDeviceDestroy(dev) })
}

// NotifyDeviceLost broadcasts OnDeviceLost. The caller must hold the
// device-access lock.
func (r *Registry) NotifyDeviceLost(dev backend.Device) {
	r.broadcast("lost", func(l Lifecycle) { l.OnDeviceLost(dev) })
}

// NotifyDeviceReset broadcasts OnDeviceReset. The caller must hold the
// device-access lock.
func (r *Registry) NotifyDeviceReset(dev backend.Device) {
	r.broadcast("reset", func(l Lifecycle) { l.OnDeviceReset(dev) })
}

// ReleaseBufferCopies asks every resource holding temporary copies to drop
// them. The caller must hold the device-access lock.
func (r *Registry) ReleaseBufferCopies() {
	for _, res := range r.order {
		if cr, ok := res.(CopyReleaser); ok {
			cr.ReleaseCopies()
		}
	}
}

// broadcast iterates a snapshot so callbacks may register or unregister
// resources. Nested broadcasts are a programming error.
func (r *Registry) broadcast(event string, fn func(Lifecycle)) {
	if r.broadcasting {
		panic("resource: reentrant device " + event + " broadcast")
	}
	r.broadcasting = true
	defer func() { r.broadcasting = false }()

	snapshot := append([]Lifecycle(nil), r.order...)
	rendercore.Logger().Debug("resource: broadcast", "event", event, "resources", len(snapshot))
	for _, res := range snapshot {
		fn(res)
	}
}

// targetsLocked returns the devices a new resource creates native objects on.
func (r *Registry) targetsLocked() []backend.Device {
	if r.devices == nil {
		return nil
	}
	if r.policy == PolicyEager {
		return r.devices.NativeDevices()
	}
	if dev := r.devices.ActiveNativeDevice(); dev != nil {
		return []backend.Device{dev}
	}
	return nil
}

// wantsLocked reports whether a resource should create or restore native
// objects on dev from a device broadcast. Under PolicyLazy the next
// Prepare does it instead.
func (r *Registry) wantsLocked(backend.Device) bool {
	return r.policy == PolicyEager
}
