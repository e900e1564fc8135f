// Package resource tracks device-bound resources and broadcasts device
// lifecycle events to them.
//
// Every loaded resource registers with a Registry and implements Lifecycle.
// When a device is created, lost, reset or destroyed the Registry notifies
// each registered resource so it can create, release or rebuild its
// per-device objects. The Registry also owns the device-access lock that
// serializes all device and resource operations.
//
// Buffer, Texture and Program are the resources provided here. Each keeps
// a system copy of its contents and one native object per device, created
// eagerly on every device or lazily on first use depending on the Policy.
package resource
