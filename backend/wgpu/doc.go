// Package wgpu implements backend.Backend over the gogpu/wgpu hal layer.
//
// Each hal adapter is exposed as a single-head adapter. WebGPU devices have
// no cooperative level, so Device derives one from the errors hal reports:
// hal.ErrDeviceLost, hal.ErrSurfaceLost and hal.ErrSurfaceOutdated leave the
// device in backend.StatusDeviceNotReset until Reset reopens it.
//
// Managed-pool buffers, textures and shader modules keep a system copy and
// are recreated transparently when Reset reopens a lost device. Default-pool
// objects must be released by the caller before Reset, as with any backend.
//
// The backend registers itself as "wgpu" on import and is skipped when the
// only hal backend available is the noop backend:
//
//	import (
//		_ "github.com/gogpu/wgpu/hal/allbackends"
//		_ "github.com/gogpu/rendercore/backend/wgpu"
//	)
package wgpu
