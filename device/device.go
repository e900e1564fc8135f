package device

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendercore"
	"github.com/gogpu/rendercore/backend"
)

// State is the lifecycle state of a Device.
type State int

const (
	// StateUninitialized means no native device exists yet.
	StateUninitialized State = iota

	// StateActive means the native device exists and is usable.
	StateActive

	// StateLost means loss was observed and the device waits for a reset.
	StateLost

	// StateDestroyed is terminal.
	StateDestroyed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateLost:
		return "lost"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// surfaceResources are the native objects a device holds for one surface.
type surfaceResources struct {
	surface RenderSurface

	swapChain   backend.SwapChain
	backBuffer  backend.Surface
	depthBuffer backend.Surface

	// ordinalInGroup is the head this surface drives in a multi-head group.
	ordinalInGroup int
	// presentIndex is 0 for the primary surface.
	presentIndex int

	params   backend.PresentParams
	acquired bool
}

// Device owns one native device and the render surfaces presented through
// it. A Device is created by a Manager and every method takes the
// device-access lock.
type Device struct {
	mgr *Manager

	adapter int
	monitor backend.Monitor
	kind    backend.DeviceKind
	flags   backend.CreateFlags

	native    backend.Device
	creation  backend.CreationParams
	caps      backend.Caps
	capsValid bool

	surfaces []*surfaceResources
	params   []backend.PresentParams

	// lost is set once loss was observed and cleared by a successful reset.
	lost bool
	// resourcesLost is set once the lost broadcast went out this cycle.
	resourcesLost bool
	destroyed     bool
	lastPresent   uint64

	depthFormats map[gputypes.TextureFormat]gputypes.TextureFormat
}

func newDevice(m *Manager, adapter int, monitor backend.Monitor, kind backend.DeviceKind, flags backend.CreateFlags) *Device {
	return &Device{
		mgr:          m,
		adapter:      adapter,
		monitor:      monitor,
		kind:         kind,
		flags:        flags,
		depthFormats: make(map[gputypes.TextureFormat]gputypes.TextureFormat),
	}
}

// String returns a short description for logs.
func (d *Device) String() string {
	return fmt.Sprintf("device(adapter=%d, %v)", d.adapter, d.kind)
}

func (d *Device) lock()   { d.mgr.reg.Lock() }
func (d *Device) unlock() { d.mgr.reg.Unlock() }

// AdapterOrdinal returns the adapter the device is created on.
func (d *Device) AdapterOrdinal() int {
	d.lock()
	defer d.unlock()
	return d.adapter
}

// Kind returns the device kind. It changes to KindReference when hardware
// creation failed and the reference tier was used.
func (d *Device) Kind() backend.DeviceKind {
	d.lock()
	defer d.unlock()
	return d.kind
}

// Native returns the native device, or nil before Acquire and after Release.
func (d *Device) Native() backend.Device {
	d.lock()
	defer d.unlock()
	return d.native
}

// State returns the lifecycle state.
func (d *Device) State() State {
	d.lock()
	defer d.unlock()
	switch {
	case d.destroyed:
		return StateDestroyed
	case d.native == nil:
		return StateUninitialized
	case d.lost:
		return StateLost
	default:
		return StateActive
	}
}

// RenderWindowCount returns the number of attached surfaces.
func (d *Device) RenderWindowCount() int {
	d.lock()
	defer d.unlock()
	return len(d.surfaces)
}

// LastPresentFrame returns the frame number of the last successful Present.
func (d *Device) LastPresentFrame() uint64 {
	d.lock()
	defer d.unlock()
	return d.lastPresent
}

// IsFullScreen reports whether the primary surface is full screen.
func (d *Device) IsFullScreen() bool {
	d.lock()
	defer d.unlock()
	p := d.primaryLocked()
	return p != nil && p.surface.IsFullScreen()
}

// IsMultihead reports whether the device drives an adapter group.
func (d *Device) IsMultihead() bool {
	d.lock()
	defer d.unlock()
	return d.isMultiheadLocked()
}

// IsAutoDepthStencil reports whether every head can share the implicit
// depth buffer.
func (d *Device) IsAutoDepthStencil() bool {
	d.lock()
	defer d.unlock()
	return d.isAutoDepthStencilLocked()
}

// IsDeviceLost reports whether the native device is lost or waits for a
// reset.
func (d *Device) IsDeviceLost() bool {
	d.lock()
	defer d.unlock()
	if d.native == nil {
		return false
	}
	if d.lost {
		return true
	}
	st := d.native.TestCooperativeLevel()
	return st == backend.StatusDeviceLost || st == backend.StatusDeviceNotReset
}

// Caps returns the capabilities queried at creation.
func (d *Device) Caps() (backend.Caps, error) {
	d.lock()
	defer d.unlock()
	if !d.capsValid {
		return backend.Caps{}, fmt.Errorf("%w: %v", ErrCapsInvalid, d)
	}
	return d.caps, nil
}

// BackBufferFormat returns the back buffer format of the primary head.
func (d *Device) BackBufferFormat() (gputypes.TextureFormat, error) {
	d.lock()
	defer d.unlock()
	if len(d.params) == 0 {
		return gputypes.TextureFormatUndefined, fmt.Errorf("%w: %v", ErrNoPresentParams, d)
	}
	return d.params[0].BackBufferFormat, nil
}

// BackBuffer returns the back buffer acquired for s. It is nil while the
// surface is not acquired.
func (d *Device) BackBuffer(s RenderSurface) (backend.Surface, error) {
	d.lock()
	defer d.unlock()
	sr := d.findLocked(s)
	if sr == nil {
		return nil, fmt.Errorf("%w: %q", ErrSurfaceNotAttached, s.Name())
	}
	return sr.backBuffer, nil
}

// DepthBuffer returns the depth buffer acquired for s, or nil.
func (d *Device) DepthBuffer(s RenderSurface) (backend.Surface, error) {
	d.lock()
	defer d.unlock()
	sr := d.findLocked(s)
	if sr == nil {
		return nil, fmt.Errorf("%w: %q", ErrSurfaceNotAttached, s.Name())
	}
	return sr.depthBuffer, nil
}

// AttachRenderWindow adds s to the device. The surface is acquired by the
// next Acquire or Validate.
func (d *Device) AttachRenderWindow(s RenderSurface) {
	d.lock()
	defer d.unlock()
	d.attachLocked(s)
}

func (d *Device) attachLocked(s RenderSurface) {
	if d.findLocked(s) == nil {
		d.surfaces = append(d.surfaces, &surfaceResources{surface: s})
	}
	d.updateIndicesLocked()
}

// DetachRenderWindow removes s and releases its resources. The surface's
// device binding is left to the caller.
func (d *Device) DetachRenderWindow(s RenderSurface) {
	d.lock()
	defer d.unlock()
	d.detachLocked(s)
}

func (d *Device) detachLocked(s RenderSurface) {
	i := slices.IndexFunc(d.surfaces, func(sr *surfaceResources) bool { return sr.surface == s })
	if i < 0 {
		return
	}
	if h := s.WindowHandle(); h != 0 && h == d.mgr.focusWindow {
		d.mgr.focusWindow = 0
	}
	wasMultihead := d.isMultiheadLocked()
	d.releaseSurfaceLocked(d.surfaces[i])
	d.surfaces = slices.Delete(d.surfaces, i, i+1)

	// A group device cannot drive fewer heads; it is recreated on next use.
	if wasMultihead {
		for _, sr := range d.surfaces {
			sr.ordinalInGroup = 0
		}
		d.releaseLocked()
	}
	d.updateIndicesLocked()
}

// SetAdapterOrdinalIndex sets the group head s drives.
func (d *Device) SetAdapterOrdinalIndex(s RenderSurface, ordinal int) {
	d.lock()
	defer d.unlock()
	d.setOrdinalLocked(s, ordinal)
}

func (d *Device) setOrdinalLocked(s RenderSurface, ordinal int) {
	if sr := d.findLocked(s); sr != nil {
		sr.ordinalInGroup = ordinal
		d.updateIndicesLocked()
	}
}

// Invalidate marks the resources of s for reacquisition.
func (d *Device) Invalidate(s RenderSurface) {
	d.lock()
	defer d.unlock()
	if sr := d.findLocked(s); sr != nil {
		sr.acquired = false
	}
}

// Acquire creates the native device if needed and acquires every attached
// surface. A device whose presentation parameters changed is reset.
func (d *Device) Acquire() Result {
	d.lock()
	defer d.unlock()
	return d.acquireLocked()
}

func (d *Device) acquireLocked() Result {
	if d.destroyed {
		return fatal(fmt.Errorf("%w: %v", ErrDestroyed, d))
	}
	if len(d.surfaces) == 0 {
		return fatal(fmt.Errorf("%w: %v has no surfaces", ErrSurfaceNotAttached, d))
	}
	d.updatePresentParamsLocked()
	if d.native == nil {
		if err := d.createNativeLocked(); err != nil {
			return fatal(err)
		}
		return d.acquireSurfacesLocked()
	}
	if d.paramsChangedLocked() {
		return d.resetLocked()
	}
	return d.acquireSurfacesLocked()
}

// creationTier is one attempt of the device creation fallback.
type creationTier struct {
	kind backend.DeviceKind
	vp   backend.CreateFlags
	name string
}

func (d *Device) createNativeLocked() error {
	log := rendercore.Logger()
	primary := d.primaryLocked()

	focus := d.mgr.focusWindow
	if focus == 0 {
		focus = primary.surface.WindowHandle()
	}
	flags := d.flags &^ backend.FlagAdapterGroup
	multihead := d.isMultiheadLocked()
	if multihead {
		flags |= backend.FlagAdapterGroup
	}

	tiers := []creationTier{
		{d.kind, backend.FlagHardwareVertexProcessing, "hardware vertex processing"},
		{d.kind, backend.FlagMixedVertexProcessing, "mixed vertex processing"},
		{d.kind, backend.FlagSoftwareVertexProcessing, "software vertex processing"},
		{backend.KindReference, backend.FlagSoftwareVertexProcessing, "reference device"},
	}

	var lastErr error
	for i, t := range tiers {
		f := flags.WithVertexProcessing(t.vp)
		if i > 0 {
			log.Warn("device: creation failed, trying next tier", "device", d.String(), "tier", t.name, "err", lastErr)
		}
		native, err := d.mgr.backend.CreateDevice(d.adapter, t.kind, focus, f, d.params)
		if err != nil {
			lastErr = err
			continue
		}

		d.native = native
		d.kind = t.kind
		d.flags = f
		d.creation = native.CreationParams()
		d.caps = native.Caps()
		d.capsValid = true
		d.lost, d.resourcesLost = false, false
		native.SetupDefaultState()
		log.Info("device: created", "device", d.String(), "tier", t.name,
			"heads", len(d.params), "multihead", multihead, "focus", focus)

		d.mgr.withActiveLocked(d, func() { d.mgr.reg.NotifyDeviceCreate(native) })
		return nil
	}
	log.Error("device: creation failed", "device", d.String(), "err", lastErr)
	return fmt.Errorf("%w: adapter %d: %w", ErrCreateDevice, d.adapter, lastErr)
}

// paramsChangedLocked reports whether the implicit swap chains no longer
// match the presentation parameters.
func (d *Device) paramsChangedLocked() bool {
	for i, p := range d.params {
		sc, err := d.native.SwapChain(i)
		if err != nil || sc.Params() != p {
			return true
		}
	}
	return false
}

func (d *Device) acquireSurfacesLocked() Result {
	for _, sr := range d.surfaces {
		if err := d.acquireSurfaceLocked(sr); err != nil {
			return classify(err, ErrAcquireSurface)
		}
	}
	return ok()
}

func (d *Device) isSwapChainSurface(sr *surfaceResources) bool {
	return sr.presentIndex != 0 && !sr.surface.IsFullScreen()
}

func (d *Device) acquireSurfaceLocked(sr *surfaceResources) error {
	d.releaseSurfaceLocked(sr)
	if err := d.acquireSurfaceObjectsLocked(sr); err != nil {
		d.releaseSurfaceLocked(sr)
		return fmt.Errorf("device: acquire %q: %w", sr.surface.Name(), err)
	}
	sr.acquired = true
	return nil
}

func (d *Device) acquireSurfaceObjectsLocked(sr *surfaceResources) error {
	multihead := d.isMultiheadLocked()
	swapChainSurface := d.isSwapChainSurface(sr)

	if swapChainSurface && !multihead {
		sc, err := d.native.CreateAdditionalSwapChain(sr.params)
		if err != nil && !backend.IsRetryable(err) {
			// The runtime may adjust the back buffer count on the first try.
			sc, err = d.native.CreateAdditionalSwapChain(sr.params)
		}
		if err != nil {
			return err
		}
		sr.swapChain = sc
	} else {
		sc, err := d.native.SwapChain(sr.presentIndex)
		if err != nil {
			return err
		}
		sr.swapChain = sc
	}

	bb, err := sr.swapChain.BackBuffer()
	if err != nil {
		return err
	}
	sr.backBuffer = bb

	if !sr.surface.IsDepthBuffered() {
		return nil
	}
	if auto := d.isAutoDepthStencilLocked(); (multihead && auto) || (!multihead && !swapChainSurface) {
		ds, err := d.native.AutoDepthStencil()
		if err != nil {
			return err
		}
		sr.depthBuffer = ds
		return nil
	}

	ds, err := d.native.CreateDepthStencil(max(sr.surface.Width(), 1), max(sr.surface.Height(), 1),
		sr.params.DepthStencilFormat, sr.params.SampleCount, sr.params.SampleQuality, sr.params.DiscardDepthStencil)
	if err != nil {
		return err
	}
	sr.depthBuffer = ds
	if !swapChainSurface {
		return d.native.SetDepthStencil(ds)
	}
	return nil
}

func (d *Device) releaseSurfaceLocked(sr *surfaceResources) {
	if sr.backBuffer != nil {
		sr.backBuffer.Release()
		sr.backBuffer = nil
	}
	if sr.depthBuffer != nil {
		sr.depthBuffer.Release()
		sr.depthBuffer = nil
	}
	if sr.swapChain != nil {
		sr.swapChain.Release()
		sr.swapChain = nil
	}
	sr.acquired = false
}

// Reset resets the native device. It returns ResultRetry while the device
// is still lost, in which case no lifecycle broadcast is sent. A device
// that is healthy and whose parameters did not change is not reset.
func (d *Device) Reset() Result {
	d.lock()
	defer d.unlock()
	return d.resetLocked()
}

func (d *Device) resetLocked() Result {
	if d.destroyed {
		return fatal(fmt.Errorf("%w: %v", ErrDestroyed, d))
	}
	if d.native == nil {
		return d.acquireLocked()
	}
	log := rendercore.Logger()

	st := d.native.TestCooperativeLevel()
	if st == backend.StatusDeviceLost || st == backend.StatusDriverInternalError {
		log.Debug("device: reset deferred", "device", d.String(), "status", st)
		return retry(st.Err())
	}

	d.updatePresentParamsLocked()
	if !d.lost && st == backend.StatusOK && !d.paramsChangedLocked() {
		for _, sr := range d.surfaces {
			if sr.acquired {
				continue
			}
			if err := d.acquireSurfaceLocked(sr); err != nil {
				return classify(err, ErrAcquireSurface)
			}
		}
		return ok()
	}

	log.Info("device: resetting", "device", d.String(), "status", st, "heads", len(d.params))
	d.notifyLostLocked()
	if !d.resourcesLost {
		d.mgr.reg.NotifyDeviceLost(d.native)
		d.resourcesLost = true
	}
	d.mgr.reg.ReleaseBufferCopies()
	d.mgr.depth.CleanupForDevice(d.native)
	for _, sr := range d.surfaces {
		d.releaseSurfaceLocked(sr)
	}
	d.native.ClearStreams()

	if err := d.native.Reset(d.params); err != nil {
		if backend.IsRetryable(err) {
			log.Debug("device: reset failed, device still lost", "device", d.String(), "err", err)
			return retry(err)
		}
		log.Error("device: reset failed", "device", d.String(), "err", err)
		return fatal(fmt.Errorf("%w: %v: %w", ErrResetDevice, d, err))
	}

	d.lost, d.resourcesLost = false, false
	d.native.SetupDefaultState()
	res := d.acquireSurfacesLocked()
	native := d.native
	d.mgr.withActiveLocked(d, func() { d.mgr.reg.NotifyDeviceReset(native) })
	d.mgr.deviceResetLocked(d)
	log.Info("device: reset", "device", d.String(), "result", res.Code)
	return res
}

// notifyLostLocked records loss and fires the lost listeners once per
// lost cycle.
func (d *Device) notifyLostLocked() {
	if d.lost {
		return
	}
	d.lost = true
	rendercore.Logger().Warn("device: lost", "device", d.String())
	d.mgr.deviceLostLocked(d)
}

// Validate prepares s for rendering. ResultRetry means the frame should be
// skipped; after a failed reset the configured back-off is slept with the
// device-access lock released.
func (d *Device) Validate(s RenderSurface) Result {
	d.lock()
	res, backoff := d.validateLocked(s)
	d.unlock()
	if backoff {
		d.mgr.backoff()
	}
	return res
}

func (d *Device) validateLocked(s RenderSurface) (Result, bool) {
	if d.destroyed {
		return fatal(fmt.Errorf("%w: %v", ErrDestroyed, d)), false
	}
	sr := d.findLocked(s)
	if sr == nil {
		return fatal(fmt.Errorf("%w: %q", ErrSurfaceNotAttached, s.Name())), false
	}
	if d.native == nil {
		if res := d.acquireLocked(); !res.OK() {
			return res, res.Retry()
		}
	}

	if !s.IsFullScreen() {
		m := d.mgr.backend.MonitorFromWindow(s.WindowHandle())
		if m == 0 {
			return retry(fmt.Errorf("%w: %q", ErrNoMonitor, s.Name())), false
		}
		if m != d.monitor {
			// A monitor no adapter reports cannot select another device.
			if _, ok := d.mgr.driverByMonitor(m); ok {
				rendercore.Logger().Info("device: surface moved to another monitor",
					"surface", s.Name(), "from", d.monitor, "to", m)
				if res := d.mgr.linkLocked(s); res.Fatal() {
					return res, false
				}
				return retry(nil), false
			}
			rendercore.Logger().Debug("device: surface on unknown monitor, keeping device",
				"surface", s.Name(), "device", d.monitor, "monitor", m)
		}
	}

	if res := d.validateFocusWindowLocked(); !res.OK() {
		return res, res.Retry()
	}
	d.validateBackBufferSizeLocked(sr)
	return d.validateStateLocked(sr)
}

// validateFocusWindowLocked recreates the native device when the shared
// focus window changed since creation.
func (d *Device) validateFocusWindowLocked() Result {
	if d.native == nil || len(d.surfaces) == 0 {
		return ok()
	}
	want := d.mgr.focusWindow
	if want == 0 {
		want = d.primaryLocked().surface.WindowHandle()
	}
	if d.creation.FocusWindow == want {
		return ok()
	}
	rendercore.Logger().Info("device: focus window changed", "device", d.String(),
		"from", d.creation.FocusWindow, "to", want)
	d.releaseLocked()
	return d.acquireLocked()
}

func (d *Device) validateBackBufferSizeLocked(sr *surfaceResources) {
	w, h := sr.surface.Width(), sr.surface.Height()
	changed := false
	if w > 0 && w != sr.params.Width {
		sr.params.Width = w
		changed = true
	}
	if h > 0 && h != sr.params.Height {
		sr.params.Height = h
		changed = true
	}
	if changed {
		sr.acquired = false
	}
}

func (d *Device) validateStateLocked(sr *surfaceResources) (Result, bool) {
	switch st := d.native.TestCooperativeLevel(); st {
	case backend.StatusDeviceLost, backend.StatusDriverInternalError:
		d.releaseSurfaceLocked(sr)
		d.notifyLostLocked()
		return retry(st.Err()), false
	case backend.StatusDeviceNotReset:
		if res := d.resetLocked(); !res.OK() {
			return res, res.Retry()
		}
	}
	if sr.acquired {
		return ok(), false
	}
	if sr == d.primaryLocked() {
		res := d.resetLocked()
		return res, res.Retry()
	}
	if err := d.acquireSurfaceLocked(sr); err != nil {
		res := classify(err, ErrAcquireSurface)
		return res, false
	}
	return ok(), false
}

// Present presents the back buffer of s. Presenting on a lost device or an
// unacquired surface does nothing. Loss detected by Present releases the
// surface's resources and returns ResultRetry.
func (d *Device) Present(s RenderSurface) Result {
	d.lock()
	defer d.unlock()
	if d.destroyed {
		return fatal(fmt.Errorf("%w: %v", ErrDestroyed, d))
	}
	sr := d.findLocked(s)
	if sr == nil {
		return fatal(fmt.Errorf("%w: %q", ErrSurfaceNotAttached, s.Name()))
	}
	if d.lost || !sr.acquired || d.native == nil {
		return ok()
	}
	if d.native.TestCooperativeLevel() != backend.StatusOK {
		return ok()
	}

	var err error
	if d.isMultiheadLocked() {
		// One call presents every head of the group.
		if sr.presentIndex == 0 {
			err = d.native.Present()
		}
	} else {
		err = sr.swapChain.Present()
	}

	switch {
	case err == nil:
		d.lastPresent = d.mgr.reg.Frame()
		return ok()
	case backend.IsRetryable(err):
		d.releaseSurfaceLocked(sr)
		d.notifyLostLocked()
		return retry(err)
	default:
		return fatal(fmt.Errorf("%w: %q: %w", ErrPresent, s.Name(), err))
	}
}

// Release releases every native object of the device and the native
// device itself. Surfaces stay attached; the next Acquire recreates it.
func (d *Device) Release() {
	d.lock()
	defer d.unlock()
	d.releaseLocked()
}

func (d *Device) releaseLocked() {
	if d.native == nil {
		return
	}
	native := d.native
	d.mgr.depth.CleanupForDevice(native)
	for _, sr := range d.surfaces {
		d.releaseSurfaceLocked(sr)
	}
	d.mgr.withActiveLocked(d, func() { d.mgr.reg.NotifyDeviceDestroy(native) })
	native.ClearStreams()
	native.Destroy()
	d.native = nil
	d.lost, d.resourcesLost = false, false
	rendercore.Logger().Info("device: released", "device", d.String())
}

// Destroy releases the device, detaches every surface and removes the
// device from its manager. Destroy is idempotent.
func (d *Device) Destroy() {
	d.lock()
	defer d.unlock()
	d.destroyLocked()
}

func (d *Device) destroyLocked() {
	if d.destroyed {
		return
	}
	d.releaseLocked()
	for _, sr := range d.surfaces {
		if h := sr.surface.WindowHandle(); h != 0 && h == d.mgr.focusWindow {
			d.mgr.focusWindow = 0
		}
		if sr.surface.Device() == d {
			sr.surface.SetDevice(nil)
		}
	}
	d.surfaces = nil
	d.params = nil
	d.capsValid = false
	d.destroyed = true
	rendercore.Logger().Info("device: destroyed", "device", d.String())
	d.mgr.notifyOnDeviceDestroyLocked(d)
}

// DepthStencilFormatFor returns the preferred depth-stencil format usable
// with color on the device's adapter. Results are cached per color format.
func (d *Device) DepthStencilFormatFor(color gputypes.TextureFormat) (gputypes.TextureFormat, error) {
	d.lock()
	defer d.unlock()
	return d.depthFormatForLocked(color)
}

func (d *Device) depthFormatForLocked(color gputypes.TextureFormat) (gputypes.TextureFormat, error) {
	f, cached := d.depthFormats[color]
	if !cached {
		f = gputypes.TextureFormatUndefined
		for _, df := range depthStencilFormats {
			if d.mgr.backend.SupportsDepthFormat(d.adapter, d.kind, color, df) {
				f = df
				break
			}
		}
		d.depthFormats[color] = f
	}
	if f == gputypes.TextureFormatUndefined {
		return f, fmt.Errorf("%w: %v on adapter %d", ErrNoDepthFormat, color, d.adapter)
	}
	return f, nil
}

// DepthStencilFor returns a cached depth-stencil surface of at least
// width x height for a render target of the given color format.
func (d *Device) DepthStencilFor(color gputypes.TextureFormat, samples, quality uint32, width, height int) (backend.Surface, error) {
	d.lock()
	defer d.unlock()
	if d.native == nil {
		return nil, fmt.Errorf("%w: %v", ErrNoNativeDevice, d)
	}
	f, err := d.depthFormatForLocked(color)
	if err != nil {
		return nil, err
	}
	return d.mgr.depth.GetOrCreate(d.native, f, samples, quality, width, height)
}

// CheckOutDepthStencil reserves the cached depth-stencil surface for target
// so later lookups do not hand it out until ReturnDepthStencil.
func (d *Device) CheckOutDepthStencil(target any, color gputypes.TextureFormat, samples uint32) error {
	d.lock()
	defer d.unlock()
	if d.native == nil {
		return fmt.Errorf("%w: %v", ErrNoNativeDevice, d)
	}
	f, err := d.depthFormatForLocked(color)
	if err != nil {
		return err
	}
	return d.mgr.depth.CheckOut(target, d.native, f, samples)
}

// ReturnDepthStencil puts back the surface checked out by target.
func (d *Device) ReturnDepthStencil(target any) error {
	d.lock()
	defer d.unlock()
	return d.mgr.depth.Return(target)
}

func (d *Device) findLocked(s RenderSurface) *surfaceResources {
	for _, sr := range d.surfaces {
		if sr.surface == s {
			return sr
		}
	}
	return nil
}

// primaryLocked returns the surface with the lowest present index.
func (d *Device) primaryLocked() *surfaceResources {
	var p *surfaceResources
	for _, sr := range d.surfaces {
		if p == nil || sr.presentIndex < p.presentIndex {
			p = sr
		}
	}
	return p
}

func (d *Device) isMultiheadLocked() bool {
	for _, sr := range d.surfaces {
		if sr.ordinalInGroup > 0 && sr.surface.IsFullScreen() {
			return true
		}
	}
	return false
}

// isAutoDepthStencilLocked reports whether all heads agree on size, formats
// and multisampling, so the implicit depth buffer fits each of them.
func (d *Device) isAutoDepthStencilLocked() bool {
	if len(d.params) == 0 {
		return false
	}
	p0 := d.params[0]
	for _, p := range d.params[1:] {
		if p.Width != p0.Width || p.Height != p0.Height ||
			p.BackBufferFormat != p0.BackBufferFormat ||
			p.DepthStencilFormat != p0.DepthStencilFormat ||
			p.SampleCount != p0.SampleCount || p.SampleQuality != p0.SampleQuality {
			return false
		}
	}
	return true
}

// updateIndicesLocked assigns present indices. Group heads use their
// ordinal. Otherwise the focus window stays primary and the rest are
// numbered in attach order.
func (d *Device) updateIndicesLocked() {
	if len(d.surfaces) == 0 {
		return
	}
	if d.isMultiheadLocked() {
		for _, sr := range d.surfaces {
			sr.presentIndex = sr.ordinalInGroup
		}
		return
	}

	var primary *surfaceResources
	if d.native != nil {
		for _, sr := range d.surfaces {
			if sr.surface.WindowHandle() == d.creation.FocusWindow {
				primary = sr
				break
			}
		}
	}
	if primary == nil {
		for _, sr := range d.surfaces {
			if sr.acquired && sr.presentIndex == 0 {
				primary = sr
				break
			}
		}
	}
	if primary == nil {
		primary = d.surfaces[0]
	}

	primary.presentIndex = 0
	next := 1
	for _, sr := range d.surfaces {
		if sr != primary {
			sr.presentIndex = next
			next++
		}
	}
}

// updatePresentParamsLocked rebuilds the per-head presentation parameters
// from the attached surfaces.
func (d *Device) updatePresentParamsLocked() {
	if len(d.surfaces) == 0 {
		d.params = nil
		return
	}
	multihead := d.isMultiheadLocked()
	n := 1
	if multihead {
		for _, sr := range d.surfaces {
			if sr.surface.IsFullScreen() {
				n = max(n, sr.presentIndex+1)
			}
		}
	}

	params := make([]backend.PresentParams, n)
	for _, sr := range d.surfaces {
		sr.surface.BuildPresentParameters(&sr.params)
		if sr.surface.IsFullScreen() && sr.presentIndex == 0 && d.mgr.focusWindow == 0 {
			d.mgr.focusWindow = sr.surface.WindowHandle()
		}
		if sr.presentIndex == 0 || (multihead && sr.surface.IsFullScreen()) {
			params[sr.presentIndex] = sr.params
		}
	}
	d.params = params

	if multihead && !d.isAutoDepthStencilLocked() {
		for i := range d.params {
			d.params[i].AutoDepthStencil = false
		}
	}
}
