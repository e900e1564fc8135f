package backend

import (
	"fmt"

	"github.com/gogpu/gpucontext"
)

// Backend names.
const (
	// NameWGPU is the gogpu/wgpu hal backend.
	NameWGPU = "wgpu"

	// NameSim is the in-memory simulated backend.
	NameSim = "sim"
)

// backends holds registered backend factories. A factory returns nil when
// its backend cannot run on this system.
var backends = gpucontext.NewRegistry[Backend](
	gpucontext.WithPriority(NameWGPU, NameSim),
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it is replaced.
func Register(name string, factory func() Backend) {
	backends.Register(name, factory)
}

// Unregister removes a backend from the registry.
func Unregister(name string) {
	backends.Unregister(name)
}

// Available returns the registered backend names.
func Available() []string {
	return backends.Available()
}

// IsRegistered reports whether a backend with the given name is registered.
func IsRegistered(name string) bool {
	return backends.Has(name)
}

// Get returns a backend instance by name, or nil if it is not registered
// or not available.
func Get(name string) Backend {
	return backends.Get(name)
}

// Default returns the highest priority backend whose factory succeeds.
// Returns nil if none is available.
func Default() Backend {
	for _, name := range ordered() {
		if b := backends.Get(name); b != nil {
			return b
		}
	}
	return nil
}

// Open returns the named backend, or Default when name is empty.
func Open(name string) (Backend, error) {
	var b Backend
	if name == "" {
		b = Default()
	} else {
		b = Get(name)
	}
	if b == nil {
		if name == "" {
			name = "default"
		}
		return nil, fmt.Errorf("%w: %s", ErrNotAvailable, name)
	}
	return b, nil
}

// ordered lists registered names with prioritized names first.
func ordered() []string {
	names := make([]string, 0, backends.Count())
	seen := make(map[string]bool)
	for _, name := range []string{NameWGPU, NameSim} {
		if backends.Has(name) {
			names = append(names, name)
			seen[name] = true
		}
	}
	for _, name := range backends.Available() {
		if !seen[name] {
			names = append(names, name)
		}
	}
	return names
}
