package wgpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/rendercore/backend"
)

func newNoopBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(noop.API{})
	if err != nil {
		t.Fatalf("New(noop) error = %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func presentParams(w, h int) backend.PresentParams {
	return backend.PresentParams{
		Width: w, Height: h,
		BackBufferFormat:   gputypes.TextureFormatBGRA8Unorm,
		AutoDepthStencil:   true,
		DepthStencilFormat: gputypes.TextureFormatDepth24PlusStencil8,
		SampleCount:        1,
		Windowed:           true,
		PresentMode:        gputypes.PresentModeFifo,
		Window:             1,
	}
}

func newNoopDevice(t *testing.T) *Device {
	t.Helper()
	b := newNoopBackend(t)
	dev, err := b.CreateDevice(0, backend.KindHardware, 1, backend.FlagHardwareVertexProcessing,
		[]backend.PresentParams{presentParams(320, 240)})
	if err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	t.Cleanup(dev.Destroy)
	return dev.(*Device)
}

func TestNewEnumeratesAdapters(t *testing.T) {
	b := newNoopBackend(t)
	adapters := b.Adapters()
	if len(adapters) != 1 {
		t.Fatalf("Adapters() = %d, want 1", len(adapters))
	}
	a := adapters[0]
	if a.Info.Name != "Noop Adapter" || a.AdaptersInGroup != 1 || a.MasterAdapterOrdinal != 0 {
		t.Errorf("adapter = %+v", a)
	}
	if b.MonitorFromWindow(99) != a.Monitor {
		t.Error("windows should default to the first adapter's monitor")
	}
	if !b.SupportsDepthFormat(0, backend.KindHardware, gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatDepth32Float) {
		t.Error("noop adapter should support Depth32Float attachments")
	}
	if b.SupportsDepthFormat(0, backend.KindHardware, gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatRGBA8Unorm) {
		t.Error("color format accepted as depth")
	}
}

func TestMonitorResolver(t *testing.T) {
	b, err := New(noop.API{}, WithMonitorResolver(func(w uintptr) backend.Monitor { return backend.Monitor(w * 10) }))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if got := b.MonitorFromWindow(3); got != 30 {
		t.Errorf("MonitorFromWindow(3) = %d, want 30", got)
	}
}

func TestAdapterMonitorResolver(t *testing.T) {
	const hmonitor = backend.Monitor(0x10001)
	b, err := New(noop.API{},
		WithMonitorResolver(func(uintptr) backend.Monitor { return hmonitor }),
		WithAdapterMonitorResolver(func(ordinal int, info gputypes.AdapterInfo) backend.Monitor {
			if ordinal != 0 || info.Name == "" {
				t.Errorf("resolver called with ordinal %d info %+v", ordinal, info)
			}
			return hmonitor
		}))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if got := b.Adapters()[0].Monitor; got != hmonitor {
		t.Errorf("adapter monitor = %#x, want %#x", got, hmonitor)
	}
	if got := b.MonitorFromWindow(5); got != b.Adapters()[0].Monitor {
		t.Errorf("window monitor %#x does not match adapter monitor", got)
	}
}

func TestCreateDeviceRejections(t *testing.T) {
	b := newNoopBackend(t)
	one := []backend.PresentParams{presentParams(8, 8)}
	tests := []struct {
		name    string
		adapter int
		kind    backend.DeviceKind
		flags   backend.CreateFlags
		params  []backend.PresentParams
		want    error
	}{
		{"unknown adapter", 4, backend.KindHardware, 0, one, backend.ErrUnknownAdapter},
		{"adapter group", 0, backend.KindHardware, backend.FlagAdapterGroup, one, backend.ErrNotSupported},
		{"reference on gpu", 0, backend.KindReference, 0, one, backend.ErrNotSupported},
		{"two heads", 0, backend.KindHardware, 0, append(one, one...), backend.ErrInvalidCall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.CreateDevice(tt.adapter, tt.kind, 1, tt.flags, tt.params)
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateDevice() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDeviceLostAndReopen(t *testing.T) {
	d := newNoopDevice(t)

	vb, err := d.CreateBuffer(backend.BufferDesc{Label: "vb", Size: 16, Usage: gputypes.BufferUsageVertex})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.WriteBuffer(vb, 0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	shader, err := d.CreateShaderModule("fs", []uint32{0x07230203})
	if err != nil {
		t.Fatal(err)
	}
	ds, err := d.CreateDepthStencil(64, 64, gputypes.TextureFormatDepth24PlusStencil8, 1, 0, false)
	if err != nil {
		t.Fatal(err)
	}

	d.MarkLost()
	if got := d.TestCooperativeLevel(); got != backend.StatusDeviceNotReset {
		t.Fatalf("status = %v, want not reset", got)
	}
	if err := d.Present(); !errors.Is(err, backend.ErrDeviceNotReset) {
		t.Errorf("Present() on lost device error = %v", err)
	}
	if _, err := d.CreateBuffer(backend.BufferDesc{Size: 4, Pool: backend.PoolDefault}); !errors.Is(err, backend.ErrDeviceNotReset) {
		t.Errorf("default pool create on lost device error = %v", err)
	}
	if err := d.WriteBuffer(vb, 4, []byte{5, 6}); err != nil {
		t.Errorf("managed write on lost device error = %v", err)
	}

	params := []backend.PresentParams{presentParams(640, 480)}
	if err := d.Reset(params); !errors.Is(err, backend.ErrInvalidCall) {
		t.Fatalf("Reset() with live depth stencil error = %v, want ErrInvalidCall", err)
	}
	ds.Release()
	if err := d.Reset(params); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if got := d.TestCooperativeLevel(); got != backend.StatusOK {
		t.Errorf("status after reset = %v", got)
	}
	if got := vb.(*Buffer).shadow[:6]; string(got) != string([]byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("shadow = %v", got)
	}
	sc, err := d.SwapChain(0)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Params().Width != 640 {
		t.Errorf("swap chain width = %d, want 640", sc.Params().Width)
	}
	if err := d.Present(); err != nil {
		t.Errorf("Present() after reset error = %v", err)
	}

	vb.Release()
	shader.Release()
	if len(d.objects) != 0 {
		t.Errorf("live objects = %d, want 0", len(d.objects))
	}
}

func TestTranslateErrors(t *testing.T) {
	tests := []struct {
		in     error
		want   error
		status backend.Status
	}{
		{hal.ErrDeviceLost, backend.ErrDeviceLost, backend.StatusDeviceNotReset},
		{hal.ErrSurfaceOutdated, backend.ErrDeviceLost, backend.StatusDeviceNotReset},
		{hal.ErrDriverBug, backend.ErrDriverInternal, backend.StatusDriverInternalError},
		{hal.ErrDeviceOutOfMemory, backend.ErrOutOfMemory, backend.StatusOK},
		{hal.ErrZeroArea, backend.ErrInvalidCall, backend.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.in.Error(), func(t *testing.T) {
			d := &Device{}
			err := d.translateLocked(tt.in)
			if !errors.Is(err, tt.want) || !errors.Is(err, tt.in) {
				t.Errorf("translate(%v) = %v, want %v wrapping the hal error", tt.in, err, tt.want)
			}
			if d.status != tt.status {
				t.Errorf("status = %v, want %v", d.status, tt.status)
			}
		})
	}
}

func TestAdditionalSwapChainAndAutoDepth(t *testing.T) {
	d := newNoopDevice(t)
	p := presentParams(100, 100)
	p.Window = 2
	sc, err := d.CreateAdditionalSwapChain(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := sc.Present(); err != nil {
		t.Errorf("Present() error = %v", err)
	}
	auto, err := d.AutoDepthStencil()
	if err != nil {
		t.Fatal(err)
	}
	if auto.Width() != 320 || auto.Format() != gputypes.TextureFormatDepth24PlusStencil8 {
		t.Errorf("auto depth = %dx%d %v", auto.Width(), auto.Height(), auto.Format())
	}
	if d.volatile != 2 {
		t.Errorf("volatile = %d, want 2", d.volatile)
	}
	auto.Release()
	sc.Release()
	sc.Release()
	if d.volatile != 0 {
		t.Errorf("volatile after release = %d, want 0", d.volatile)
	}
}
