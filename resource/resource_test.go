package resource

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendercore/backend"
	"github.com/gogpu/rendercore/backend/sim"
)

// deviceSet is a fixed DeviceSet whose first device is active.
type deviceSet []backend.Device

func (s deviceSet) ActiveNativeDevice() backend.Device {
	if len(s) == 0 {
		return nil
	}
	return s[0]
}

func (s deviceSet) NativeDevices() []backend.Device { return s }

func newSimDevices(t *testing.T, n int) []*sim.Device {
	t.Helper()
	b := sim.New()
	out := make([]*sim.Device, n)
	for i := range out {
		dev, err := b.CreateDevice(0, backend.KindHardware, 1, backend.FlagHardwareVertexProcessing,
			[]backend.PresentParams{{Width: 8, Height: 8, BackBufferFormat: gputypes.TextureFormatBGRA8Unorm, Windowed: true}})
		if err != nil {
			t.Fatalf("CreateDevice() error = %v", err)
		}
		out[i] = dev.(*sim.Device)
	}
	return out
}

func newRegistry(policy Policy, devs ...*sim.Device) *Registry {
	reg := NewRegistry()
	reg.SetPolicy(policy)
	set := make(deviceSet, len(devs))
	for i, d := range devs {
		set[i] = d
	}
	reg.SetDeviceSet(set)
	return reg
}

// recorder records lifecycle callbacks.
type recorder struct {
	events []string
	onLost func()
}

func (r *recorder) OnDeviceCreate(backend.Device)  { r.events = append(r.events, "create") }
func (r *recorder) OnDeviceDestroy(backend.Device) { r.events = append(r.events, "destroy") }
func (r *recorder) OnDeviceReset(backend.Device)   { r.events = append(r.events, "reset") }
func (r *recorder) OnDeviceLost(backend.Device) {
	r.events = append(r.events, "lost")
	if r.onLost != nil {
		r.onLost()
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyLazy, false},
		{"lazy", PolicyLazy, false},
		{"eager", PolicyEager, false},
		{"always", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePolicy(%q) error = %v", tt.in, err)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParsePolicy(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if err != nil && !errors.Is(err, ErrInvalidPolicy) {
				t.Errorf("error = %v, want ErrInvalidPolicy", err)
			}
		})
	}
}

func TestRegistryBroadcast(t *testing.T) {
	reg := NewRegistry()
	a, b := &recorder{}, &recorder{}
	reg.Register(a)
	reg.Register(b)
	reg.Register(a)
	if reg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", reg.Len())
	}

	reg.Lock()
	reg.NotifyDeviceLost(nil)
	reg.NotifyDeviceReset(nil)
	reg.Unlock()

	reg.Unregister(b)
	if reg.Contains(b) {
		t.Error("b still registered")
	}
	reg.Lock()
	reg.NotifyDeviceDestroy(nil)
	reg.Unlock()

	if got := a.events; len(got) != 3 || got[0] != "lost" || got[1] != "reset" || got[2] != "destroy" {
		t.Errorf("a events = %v", got)
	}
	if got := b.events; len(got) != 2 {
		t.Errorf("unregistered resource received %v", got)
	}
}

func TestRegistryBroadcastSnapshot(t *testing.T) {
	reg := NewRegistry()
	late := &recorder{}
	first := &recorder{}
	first.onLost = func() { reg.registerLocked(late) }
	reg.Register(first)

	reg.Lock()
	reg.NotifyDeviceLost(nil)
	reg.Unlock()

	if len(late.events) != 0 {
		t.Errorf("resource registered during broadcast received %v", late.events)
	}
	if !reg.Contains(late) {
		t.Error("registration during broadcast was dropped")
	}
}

func TestRegistryReentrantBroadcastPanics(t *testing.T) {
	reg := NewRegistry()
	r := &recorder{}
	r.onLost = func() { reg.NotifyDeviceReset(nil) }
	reg.Register(r)

	defer func() {
		if recover() == nil {
			t.Error("nested broadcast did not panic")
		}
	}()
	reg.Lock()
	defer reg.Unlock()
	reg.NotifyDeviceLost(nil)
}

func TestRegistryFrame(t *testing.T) {
	reg := NewRegistry()
	if reg.Frame() != 0 {
		t.Fatalf("Frame() = %d, want 0", reg.Frame())
	}
	if got := reg.AdvanceFrame(); got != 1 || reg.Frame() != 1 {
		t.Errorf("AdvanceFrame() = %d, Frame() = %d", got, reg.Frame())
	}
}

func TestSpanUnion(t *testing.T) {
	tests := []struct {
		name string
		a, b span
		want span
	}{
		{"empty with range", span{}, span{2, 4}, span{2, 4}},
		{"range with empty", span{2, 4}, span{}, span{2, 4}},
		{"disjoint", span{0, 2}, span{6, 8}, span{0, 8}},
		{"overlap", span{3, 7}, span{5, 9}, span{3, 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.union(tt.b); got != tt.want {
				t.Errorf("union = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBufferCreationPolicy(t *testing.T) {
	tests := []struct {
		policy Policy
		want   []bool
	}{
		{PolicyLazy, []bool{true, false}},
		{PolicyEager, []bool{true, true}},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			devs := newSimDevices(t, 2)
			reg := newRegistry(tt.policy, devs...)
			buf, err := NewBuffer(reg, BufferDesc{Label: "vb", Size: 8, Usage: gputypes.BufferUsageVertex})
			if err != nil {
				t.Fatal(err)
			}
			defer buf.Close()
			for i, d := range devs {
				_, err := buf.Subresource(d)
				if got := err == nil; got != tt.want[i] {
					t.Errorf("device %d has sub-resource = %v, want %v (err %v)", i, got, tt.want[i], err)
				}
				if err != nil && !errors.Is(err, ErrNoSubresource) {
					t.Errorf("error = %v, want ErrNoSubresource", err)
				}
			}

			// Lazy devices get theirs on first use.
			if _, err := buf.Prepare(devs[1]); err != nil {
				t.Fatal(err)
			}
			if _, err := buf.Subresource(devs[1]); err != nil {
				t.Errorf("Subresource after Prepare error = %v", err)
			}
		})
	}
}

func TestBufferWriteFlushesRecentDevices(t *testing.T) {
	devs := newSimDevices(t, 2)
	reg := newRegistry(PolicyEager, devs...)
	buf, err := NewBuffer(reg, BufferDesc{Label: "ib", Size: 8, Usage: gputypes.BufferUsageIndex})
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Close()

	n0, _ := buf.Subresource(devs[0])
	n1, _ := buf.Subresource(devs[1])

	// Device 1 idles for two frames; device 0 is used every frame.
	reg.AdvanceFrame()
	reg.AdvanceFrame()
	if _, err := buf.Prepare(devs[0]); err != nil {
		t.Fatal(err)
	}
	w1 := n1.(*sim.Buffer).Writes()

	if err := buf.Write(1, []byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := buf.Write(5, []byte{5}); err != nil {
		t.Fatal(err)
	}
	if got := n0.(*sim.Buffer).Bytes(); !bytes.Equal(got, []byte{0, 1, 2, 0, 0, 5, 0, 0}) {
		t.Errorf("device 0 contents = %v", got)
	}
	if got := n1.(*sim.Buffer).Writes(); got != w1 {
		t.Errorf("idle device received %d writes, want none", got-w1)
	}

	// The idle device flushes the union of both writes in one upload.
	if _, err := buf.Prepare(devs[1]); err != nil {
		t.Fatal(err)
	}
	if got := n1.(*sim.Buffer).Writes(); got != w1+1 {
		t.Errorf("idle device writes = %d, want %d", got, w1+1)
	}
	if got := n1.(*sim.Buffer).Bytes(); !bytes.Equal(got, buf.Contents()) {
		t.Errorf("device 1 contents = %v, want %v", got, buf.Contents())
	}
}

func TestBufferWriteErrors(t *testing.T) {
	reg := newRegistry(PolicyLazy)
	if _, err := NewBuffer(reg, BufferDesc{Label: "empty"}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("zero size error = %v", err)
	}
	buf, err := NewBuffer(reg, BufferDesc{Label: "vb", Size: 4})
	if err != nil {
		t.Fatal(err)
	}
	if err := buf.Write(3, []byte{1, 2}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("overflow write error = %v", err)
	}
	if err := buf.Unmap(); !errors.Is(err, ErrNotMapped) {
		t.Errorf("Unmap() error = %v", err)
	}
	buf.Close()
	buf.Close()
	if reg.Contains(buf) {
		t.Error("closed buffer still registered")
	}
	if err := buf.Write(0, []byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("write after close error = %v", err)
	}
}

func TestBufferMapAndReleaseCopies(t *testing.T) {
	reg := newRegistry(PolicyLazy)
	buf, err := NewBuffer(reg, BufferDesc{Label: "vb", Size: 4})
	if err != nil {
		t.Fatal(err)
	}
	m, err := buf.Map(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	m[0], m[1] = 7, 8

	reg.Lock()
	reg.ReleaseBufferCopies()
	reg.Unlock()
	if buf.scratch == nil {
		t.Fatal("mapped staging copy was released")
	}

	if err := buf.Unmap(); err != nil {
		t.Fatal(err)
	}
	if got := buf.Contents(); !bytes.Equal(got, []byte{0, 7, 8, 0}) {
		t.Errorf("Contents() = %v", got)
	}
	reg.Lock()
	reg.ReleaseBufferCopies()
	reg.Unlock()
	if buf.scratch != nil {
		t.Error("staging copy kept after ReleaseBufferCopies")
	}
}

func TestBufferLostAndReset(t *testing.T) {
	tests := []struct {
		pool       backend.Pool
		recreated  bool
		liveOnLost int
	}{
		{backend.PoolDefault, true, 0},
		{backend.PoolManaged, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.pool.String(), func(t *testing.T) {
			devs := newSimDevices(t, 1)
			dev := devs[0]
			reg := newRegistry(PolicyEager, dev)
			buf, err := NewBuffer(reg, BufferDesc{Label: "vb", Size: 4, Pool: tt.pool})
			if err != nil {
				t.Fatal(err)
			}
			before, _ := buf.Subresource(dev)

			reg.Lock()
			reg.NotifyDeviceLost(dev)
			reg.Unlock()
			if got := dev.Stats().BuffersLive; got != tt.liveOnLost {
				t.Errorf("live buffers after lost = %d, want %d", got, tt.liveOnLost)
			}

			// Writes while lost reach the system copy.
			if err := buf.Write(0, []byte{9, 9, 9, 9}); err != nil {
				t.Fatal(err)
			}

			dev.AllowReset()
			if err := dev.Reset(dev.ImplicitParams()); err != nil {
				t.Fatal(err)
			}
			reg.Lock()
			reg.NotifyDeviceReset(dev)
			reg.Unlock()

			after, err := buf.Subresource(dev)
			if err != nil {
				t.Fatalf("Subresource after reset error = %v", err)
			}
			if got := after != before; got != tt.recreated {
				t.Errorf("recreated = %v, want %v", got, tt.recreated)
			}
			if got := after.(*sim.Buffer).Bytes(); !bytes.Equal(got, []byte{9, 9, 9, 9}) {
				t.Errorf("contents after reset = %v", got)
			}

			buf.Close()
			if got := dev.Stats().BuffersLive; got != 0 {
				t.Errorf("live buffers after Close = %d", got)
			}
		})
	}
}

func TestBufferLazyResetWaitsForPrepare(t *testing.T) {
	devs := newSimDevices(t, 1)
	dev := devs[0]
	reg := newRegistry(PolicyLazy, dev)
	buf, err := NewBuffer(reg, BufferDesc{Label: "ib", Size: 2, Pool: backend.PoolDefault})
	if err != nil {
		t.Fatal(err)
	}
	if err := buf.Write(0, []byte{1, 2}); err != nil {
		t.Fatal(err)
	}

	reg.Lock()
	reg.NotifyDeviceLost(dev)
	reg.Unlock()
	dev.AllowReset()
	if err := dev.Reset(dev.ImplicitParams()); err != nil {
		t.Fatal(err)
	}
	reg.Lock()
	reg.NotifyDeviceReset(dev)
	reg.Unlock()

	if _, err := buf.Subresource(dev); !errors.Is(err, ErrNoSubresource) {
		t.Fatalf("lazy reset recreated the buffer: %v", err)
	}
	native, err := buf.Prepare(dev)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if got := native.(*sim.Buffer).Bytes(); !bytes.Equal(got, []byte{1, 2}) {
		t.Errorf("contents after Prepare = %v, want [1 2]", got)
	}
	buf.Close()
}

func TestBufferDeviceDestroy(t *testing.T) {
	devs := newSimDevices(t, 2)
	reg := newRegistry(PolicyEager, devs[0], devs[1])
	buf, err := NewBuffer(reg, BufferDesc{Label: "vb", Size: 4})
	if err != nil {
		t.Fatal(err)
	}
	reg.Lock()
	reg.NotifyDeviceDestroy(devs[1])
	reg.Unlock()
	if _, err := buf.Subresource(devs[1]); !errors.Is(err, ErrNoSubresource) {
		t.Errorf("Subresource on destroyed device error = %v", err)
	}
	if got := devs[1].Stats().BuffersLive; got != 0 {
		t.Errorf("live buffers on destroyed device = %d", got)
	}
	if _, err := buf.Subresource(devs[0]); err != nil {
		t.Errorf("other device lost its buffer: %v", err)
	}
}

func TestOnDeviceCreateFollowsPolicy(t *testing.T) {
	devs := newSimDevices(t, 2)
	reg := newRegistry(PolicyLazy, devs[0])
	buf, err := NewBuffer(reg, BufferDesc{Label: "vb", Size: 4})
	if err != nil {
		t.Fatal(err)
	}
	reg.Lock()
	reg.NotifyDeviceCreate(devs[1])
	reg.Unlock()
	if _, err := buf.Subresource(devs[1]); !errors.Is(err, ErrNoSubresource) {
		t.Errorf("lazy policy created on inactive device: %v", err)
	}

	reg.SetPolicy(PolicyEager)
	reg.Lock()
	reg.NotifyDeviceCreate(devs[1])
	reg.Unlock()
	if _, err := buf.Subresource(devs[1]); err != nil {
		t.Errorf("eager policy did not create on new device: %v", err)
	}
}

func TestTextureRenderTargetIsVolatile(t *testing.T) {
	devs := newSimDevices(t, 1)
	dev := devs[0]
	reg := newRegistry(PolicyLazy, dev)
	rt, err := NewTexture(reg, TextureDesc{
		Label: "rt", Width: 4, Height: 4,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rt.Desc().Pool != backend.PoolDefault {
		t.Errorf("render target pool = %v, want default", rt.Desc().Pool)
	}

	reg.Lock()
	reg.NotifyDeviceLost(dev)
	reg.Unlock()
	if _, err := rt.Subresource(dev); !errors.Is(err, ErrNoSubresource) {
		t.Errorf("render target survived device loss: %v", err)
	}
	if got := dev.Stats().TexturesLive; got != 0 {
		t.Errorf("live textures = %d", got)
	}

	dev.AllowReset()
	if err := dev.Reset(dev.ImplicitParams()); err != nil {
		t.Fatal(err)
	}
	reg.Lock()
	reg.NotifyDeviceReset(dev)
	reg.Unlock()
	if _, err := rt.Subresource(dev); !errors.Is(err, ErrNoSubresource) {
		t.Errorf("lazy policy recreated the render target on reset: %v", err)
	}
	if _, err := rt.Prepare(dev); err != nil {
		t.Errorf("Prepare() after reset error = %v", err)
	}
	if got := dev.Stats().TexturesLive; got != 1 {
		t.Errorf("live textures after Prepare = %d, want 1", got)
	}
	rt.Close()
}

func TestTextureUpload(t *testing.T) {
	devs := newSimDevices(t, 1)
	reg := newRegistry(PolicyLazy, devs[0])
	tex, err := NewTexture(reg, TextureDesc{Label: "albedo", Width: 2, Height: 2, Format: gputypes.TextureFormatRGBA8Unorm})
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Close()
	if err := tex.Upload(make([]byte, 15)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("ragged upload error = %v", err)
	}
	pixels := bytes.Repeat([]byte{1, 2, 3, 4}, 4)
	if err := tex.Upload(pixels); err != nil {
		t.Fatal(err)
	}
	native, err := tex.Prepare(devs[0])
	if err != nil {
		t.Fatal(err)
	}
	if got := native.(*sim.Texture).Bytes(); !bytes.Equal(got, pixels) {
		t.Errorf("uploaded pixels = %v", got)
	}
}

func TestProgramPerDevice(t *testing.T) {
	devs := newSimDevices(t, 2)
	reg := newRegistry(PolicyLazy, devs[0], devs[1])
	p, err := NewProgramSPIRV(reg, "fs", []uint32{0x07230203, 0x00010000})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Subresource(devs[1]); !errors.Is(err, ErrNoSubresource) {
		t.Errorf("lazy program created on inactive device: %v", err)
	}
	m1, err := p.Prepare(devs[1])
	if err != nil {
		t.Fatal(err)
	}
	m1again, _ := p.Prepare(devs[1])
	if m1 != m1again {
		t.Error("Prepare created a second module for the same device")
	}

	reg.Lock()
	reg.NotifyDeviceLost(devs[1])
	reg.Unlock()
	if _, err := p.Subresource(devs[1]); err != nil {
		t.Errorf("shader module lost with device: %v", err)
	}

	p.Close()
	for i, d := range devs {
		if got := d.Stats().ShadersLive; got != 0 {
			t.Errorf("device %d live shaders = %d", i, got)
		}
	}
}

func TestCompileWGSL(t *testing.T) {
	const src = `
@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    let x = f32(i32(idx) - 1);
    let y = f32(i32(idx & 1u) * 2 - 1);
    return vec4<f32>(x, y, 0.0, 1.0);
}
`
	words, err := CompileWGSL(src)
	if err != nil {
		t.Skipf("naga cannot compile test shader: %v", err)
	}
	if len(words) == 0 || words[0] != 0x07230203 {
		t.Errorf("SPIR-V magic = %#x, want 0x07230203", words[0])
	}

	hits := ShaderCacheStats().Hits
	again, err := CompileWGSL(src)
	if err != nil || &again[0] != &words[0] {
		t.Errorf("second CompileWGSL did not reuse cached words (err %v)", err)
	}
	if got := ShaderCacheStats().Hits; got != hits+1 {
		t.Errorf("cache hits = %d, want %d", got, hits+1)
	}

	if _, err := CompileWGSL("fn broken( {"); !errors.Is(err, ErrCompileShader) {
		t.Errorf("CompileWGSL(invalid) error = %v, want %v", err, ErrCompileShader)
	}
}
