package resource

import "errors"

var (
	// ErrNoSubresource is returned when a resource is asked for the native
	// object of a device it was never created on.
	ErrNoSubresource = errors.New("resource: no sub-resource for device")

	// ErrClosed is returned by operations on a closed resource.
	ErrClosed = errors.New("resource: closed")

	// ErrOutOfRange is returned for writes outside a resource.
	ErrOutOfRange = errors.New("resource: range out of bounds")

	// ErrNotMapped is returned by Unmap without a matching Map.
	ErrNotMapped = errors.New("resource: not mapped")

	// ErrCompileShader is returned when WGSL source does not compile.
	ErrCompileShader = errors.New("resource: compile shader")

	// ErrInvalidPolicy is returned by ParsePolicy for unknown names.
	ErrInvalidPolicy = errors.New("resource: invalid creation policy")
)
