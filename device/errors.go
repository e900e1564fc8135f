package device

import "errors"

// Fatal errors. They are returned inside a Result with Code ResultFatal.
var (
	// ErrCreateDevice is returned when every device creation tier failed.
	ErrCreateDevice = errors.New("device: cannot create device")

	// ErrResetDevice is returned when a native reset failed for a reason
	// other than the device still being lost.
	ErrResetDevice = errors.New("device: cannot reset device")

	// ErrPresent is returned when presenting failed for a reason other than
	// device loss.
	ErrPresent = errors.New("device: cannot present")

	// ErrNoAdapter is returned when the backend enumerates no adapters.
	ErrNoAdapter = errors.New("device: no adapter")

	// ErrDestroyed is returned by operations on a destroyed device.
	ErrDestroyed = errors.New("device: destroyed")

	// ErrAcquireSurface is returned when the swap chain, back buffer or
	// depth buffer of a surface cannot be obtained.
	ErrAcquireSurface = errors.New("device: cannot acquire surface resources")
)

// Contract violations.
var (
	// ErrSurfaceNotAttached is returned when a surface is used with a
	// device it is not attached to.
	ErrSurfaceNotAttached = errors.New("device: surface not attached")

	// ErrNoActiveDevice is returned when no device is active.
	ErrNoActiveDevice = errors.New("device: no active device")

	// ErrNoNativeDevice is returned by operations that need the native
	// device before it was created.
	ErrNoNativeDevice = errors.New("device: native device not created")

	// ErrCapsInvalid is returned by Caps before the native device exists.
	ErrCapsInvalid = errors.New("device: caps are invalid")

	// ErrNoPresentParams is returned by BackBufferFormat before any
	// surface was attached and acquired.
	ErrNoPresentParams = errors.New("device: presentation parameters are invalid")
)

// Depth-stencil errors.
var (
	// ErrNoDepthFormat is returned when no depth-stencil format matches a
	// color format on the device's adapter.
	ErrNoDepthFormat = errors.New("device: no compatible depth-stencil format")

	// ErrEmptyBucket is returned by CheckOut when no cached surface exists
	// for the requested key.
	ErrEmptyBucket = errors.New("device: no cached depth-stencil surface")

	// ErrNotCheckedOut is returned by Return for an unknown render target.
	ErrNotCheckedOut = errors.New("device: depth-stencil surface not checked out")
)

// ErrNoMonitor is carried by a retry Result when a windowed surface does
// not intersect any display monitor.
var ErrNoMonitor = errors.New("device: surface is not on any monitor")
