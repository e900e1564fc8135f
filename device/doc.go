// Package device manages native devices and the render surfaces presented
// through them.
//
// A Manager enumerates the adapters of a backend and links each
// RenderSurface to a Device. Full-screen surfaces covering every head of a
// multi-head adapter share one device when the CompatibilityPolicy allows
// it. A Device walks its native device through creation, loss, reset and
// destruction and tells the resource.Registry about each transition.
//
// Operations that can hit device loss return a Result:
//
//	for {
//		mgr.BeginFrame()
//		res := dev.Validate(win)
//		if res.Retry() {
//			continue // device lost, skip the frame
//		}
//		if res.Fatal() {
//			return res.Err
//		}
//		render(dev)
//		dev.Present(win)
//	}
//
// All methods are serialized by the device-access lock of the registry.
package device
