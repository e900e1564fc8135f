package resource

import (
	"fmt"

	"github.com/gogpu/naga"

	"github.com/gogpu/rendercore"
	"github.com/gogpu/rendercore/backend"
	"github.com/gogpu/rendercore/internal/shadercache"
)

var compiled = shadercache.New(0)

// CompileWGSL compiles WGSL source to SPIR-V words. Results are cached by
// source text, and the returned slice must not be modified.
func CompileWGSL(source string) ([]uint32, error) {
	return compiled.GetOrCompile(source, compileWGSL)
}

// ShaderCacheStats reports the WGSL compile cache counters.
func ShaderCacheStats() shadercache.Stats { return compiled.Stats() }

func compileWGSL(source string) ([]uint32, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompileShader, err)
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not whole words", ErrCompileShader, len(spirv))
	}
	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = uint32(spirv[i*4]) |
			uint32(spirv[i*4+1])<<8 |
			uint32(spirv[i*4+2])<<16 |
			uint32(spirv[i*4+3])<<24
	}
	return words, nil
}

// Program is a shader compiled once and instantiated per device. Shader
// modules live in managed memory and survive device loss.
type Program struct {
	reg     *Registry
	label   string
	spirv   []uint32
	devices map[backend.Device]backend.ShaderModule
	closed  bool
}

// NewProgram compiles WGSL source and registers the program with reg.
func NewProgram(reg *Registry, label, wgsl string) (*Program, error) {
	spirv, err := CompileWGSL(wgsl)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", label, err)
	}
	return NewProgramSPIRV(reg, label, spirv)
}

// NewProgramSPIRV registers a program built from precompiled SPIR-V.
func NewProgramSPIRV(reg *Registry, label string, spirv []uint32) (*Program, error) {
	p := &Program{
		reg:     reg,
		label:   label,
		spirv:   spirv,
		devices: make(map[backend.Device]backend.ShaderModule),
	}
	reg.Lock()
	defer reg.Unlock()
	for _, dev := range reg.targetsLocked() {
		if err := p.createLocked(dev); err != nil {
			p.releaseAllLocked()
			return nil, err
		}
	}
	reg.registerLocked(p)
	return p, nil
}

// Label returns the program label.
func (p *Program) Label() string { return p.label }

// Words returns the SPIR-V word count.
func (p *Program) Words() int { return len(p.spirv) }

// Prepare returns the shader module for dev, creating it if needed.
func (p *Program) Prepare(dev backend.Device) (backend.ShaderModule, error) {
	p.reg.Lock()
	defer p.reg.Unlock()
	if p.closed {
		return nil, fmt.Errorf("resource: prepare program %q: %w", p.label, ErrClosed)
	}
	if m, ok := p.devices[dev]; ok {
		return m, nil
	}
	if err := p.createLocked(dev); err != nil {
		return nil, err
	}
	return p.devices[dev], nil
}

// Subresource returns the shader module for dev without creating it.
func (p *Program) Subresource(dev backend.Device) (backend.ShaderModule, error) {
	p.reg.Lock()
	defer p.reg.Unlock()
	m, ok := p.devices[dev]
	if !ok {
		return nil, fmt.Errorf("resource: program %q: %w", p.label, ErrNoSubresource)
	}
	return m, nil
}

// Close releases every shader module and unregisters the program.
func (p *Program) Close() {
	p.reg.Lock()
	defer p.reg.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.releaseAllLocked()
	p.reg.unregisterLocked(p)
}

func (p *Program) createLocked(dev backend.Device) error {
	m, err := dev.CreateShaderModule(p.label, p.spirv)
	if err != nil {
		return fmt.Errorf("resource: create program %q: %w", p.label, err)
	}
	p.devices[dev] = m
	return nil
}

func (p *Program) releaseAllLocked() {
	for dev, m := range p.devices {
		m.Release()
		delete(p.devices, dev)
	}
}

// OnDeviceCreate implements Lifecycle.
func (p *Program) OnDeviceCreate(dev backend.Device) {
	if _, ok := p.devices[dev]; ok || !p.reg.wantsLocked(dev) {
		return
	}
	if err := p.createLocked(dev); err != nil {
		rendercore.Logger().Warn("resource: create program on new device", "program", p.label, "err", err)
	}
}

// OnDeviceDestroy implements Lifecycle.
func (p *Program) OnDeviceDestroy(dev backend.Device) {
	if m, ok := p.devices[dev]; ok {
		m.Release()
		delete(p.devices, dev)
	}
}

// OnDeviceLost implements Lifecycle. Shader modules survive device loss.
func (p *Program) OnDeviceLost(backend.Device) {}

// OnDeviceReset implements Lifecycle.
func (p *Program) OnDeviceReset(backend.Device) {}
