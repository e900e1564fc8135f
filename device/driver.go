package device

import (
	"strings"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendercore/backend"
)

// Driver is an enumerated adapter as seen by device selection.
type Driver struct {
	desc backend.AdapterDesc
}

func newDrivers(adapters []backend.AdapterDesc) []Driver {
	drivers := make([]Driver, len(adapters))
	for i, a := range adapters {
		drivers[i] = Driver{desc: a}
	}
	return drivers
}

// Ordinal returns the adapter ordinal.
func (d Driver) Ordinal() int { return d.desc.Ordinal }

// Description returns the adapter name.
func (d Driver) Description() string { return d.desc.Info.Name }

// Info returns the adapter description reported by the backend.
func (d Driver) Info() gputypes.AdapterInfo { return d.desc.Info }

// AdapterInfo returns the adapter summary shared with gpucontext consumers.
func (d Driver) AdapterInfo() gpucontext.AdapterInfo {
	t := gpucontext.AdapterTypeUnknown
	switch d.desc.Info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		t = gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		t = gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		t = gpucontext.AdapterTypeSoftware
	}
	return gpucontext.AdapterInfo{Name: d.desc.Info.Name, Type: t}
}

// Monitor returns the monitor driven by the adapter.
func (d Driver) Monitor() backend.Monitor { return d.desc.Monitor }

// MasterAdapterOrdinal returns the ordinal of the adapter group master.
func (d Driver) MasterAdapterOrdinal() int { return d.desc.MasterAdapterOrdinal }

// AdapterOrdinalInGroup returns the head index within the adapter group.
func (d Driver) AdapterOrdinalInGroup() int { return d.desc.AdapterOrdinalInGroup }

// AdaptersInGroup returns the number of heads in the adapter group.
func (d Driver) AdaptersInGroup() int { return d.desc.AdaptersInGroup }

// matches reports whether the adapter name or driver info contains marker.
func (d Driver) matches(marker string) bool {
	if marker == "" {
		return false
	}
	return strings.Contains(d.desc.Info.Name, marker) || strings.Contains(d.desc.Info.DriverInfo, marker)
}
