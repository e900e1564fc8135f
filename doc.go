// Package rendercore manages the lifecycle of GPU devices and the
// device-bound resources that depend on them.
//
// # Overview
//
// A native graphics API may report a device as lost at any time. Rendering
// stops until the device is reset, and resources living in volatile memory
// must be released before the reset and recreated after it. rendercore keeps
// devices, render surfaces and resources consistent across the
// create, lost, reset and destroy transitions.
//
// # Architecture
//
// The module is organized into:
//   - rendercore: logging and configuration shared by all sub-packages
//   - backend: native API abstraction and backend registry
//   - backend/wgpu: backend over gogpu/wgpu hal
//   - backend/sim: in-memory backend with fault injection
//   - resource: lifecycle broadcast registry and device-bound resources
//   - device: devices, device manager, depth-stencil cache
//   - cmd/devsim: simulated session driving devices through loss and reset
//
// # Quick Start
//
//	cfg, err := rendercore.LoadConfig("rendercore.toml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	b, err := backend.Open(cfg.Backend)
//	if err != nil {
//		log.Fatal(err)
//	}
//	reg := resource.NewRegistry()
//	mgr, err := device.NewManager(b, reg, device.WithConfig(cfg))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer mgr.Close()
//
//	win := device.NewWindow("main", provider, handle)
//	if res := mgr.LinkRenderWindow(win); !res.OK() {
//		log.Fatal(res.Err)
//	}
//
// # Concurrency
//
// All device and resource operations are serialized by a single
// device-access lock owned by resource.Registry.
package rendercore
