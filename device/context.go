package device

import "github.com/gogpu/rendercore/backend"

// RenderContext is a snapshot of the device a frame renders with. It is
// passed explicitly instead of consulting a global active device.
type RenderContext struct {
	Device *Device
	Native backend.Device
	Driver Driver
	Frame  uint64

	generation uint64
}

// Context returns the current render context.
func (m *Manager) Context() (RenderContext, error) {
	m.reg.Lock()
	defer m.reg.Unlock()
	if m.active == nil {
		return RenderContext{}, ErrNoActiveDevice
	}
	ctx := RenderContext{
		Device:     m.active,
		Native:     m.active.native,
		Frame:      m.reg.Frame(),
		generation: m.generation,
	}
	if m.activeDriver >= 0 {
		ctx.Driver = m.drivers[m.activeDriver]
	}
	return ctx, nil
}

// IsCurrent reports whether ctx still describes the active device. A
// context goes stale when the active device changes or is reset.
func (m *Manager) IsCurrent(ctx RenderContext) bool {
	m.reg.Lock()
	defer m.reg.Unlock()
	return ctx.Device != nil && ctx.Device == m.active && ctx.generation == m.generation
}
