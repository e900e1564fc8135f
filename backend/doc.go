// Package backend abstracts the native graphics API beneath the device
// lifecycle core.
//
// A Backend enumerates adapters and creates Devices. A Device owns swap
// chains, depth-stencil surfaces and device-bound buffers, textures and
// shader modules, and reports its cooperative level: whether it is usable,
// lost, or lost and ready to be reset.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime:
//
//	import _ "github.com/gogpu/rendercore/backend/wgpu"
//
//	b, err := backend.Open("") // best available
//
// # Implementations
//
//   - backend/wgpu: gogpu/wgpu hal devices
//   - backend/sim: in-memory devices with fault injection
package backend
