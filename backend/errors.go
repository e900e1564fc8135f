package backend

import "errors"

// Native API errors. Retryable conditions are ErrDeviceLost,
// ErrDeviceNotReset and ErrDriverInternal; see IsRetryable.
var (
	// ErrNotAvailable is returned when a requested backend is not registered
	// or cannot be initialized on this system.
	ErrNotAvailable = errors.New("backend: not available")

	// ErrDeviceLost is returned while the device is lost and cannot be reset yet.
	ErrDeviceLost = errors.New("backend: device lost")

	// ErrDeviceNotReset is returned when the device is lost and may be reset now.
	ErrDeviceNotReset = errors.New("backend: device not reset")

	// ErrDriverInternal is returned when the driver reports an internal error.
	ErrDriverInternal = errors.New("backend: driver internal error")

	// ErrNotSupported is returned when the adapter rejects a device kind,
	// creation flag or format.
	ErrNotSupported = errors.New("backend: not supported")

	// ErrOutOfMemory is returned when the native API cannot allocate.
	ErrOutOfMemory = errors.New("backend: out of video memory")

	// ErrInvalidCall is returned for calls with invalid arguments, including
	// calls on a released object.
	ErrInvalidCall = errors.New("backend: invalid call")

	// ErrUnknownAdapter is returned for an adapter ordinal that was never enumerated.
	ErrUnknownAdapter = errors.New("backend: unknown adapter")
)

// IsRetryable reports whether err is a transient device condition that
// clears after a later reset.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDeviceLost) ||
		errors.Is(err, ErrDeviceNotReset) ||
		errors.Is(err, ErrDriverInternal)
}
