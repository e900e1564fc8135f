package sim

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendercore/backend"
)

func params(w, h int) []backend.PresentParams {
	return []backend.PresentParams{{
		Width: w, Height: h,
		BackBufferFormat:   gputypes.TextureFormatBGRA8Unorm,
		AutoDepthStencil:   true,
		DepthStencilFormat: gputypes.TextureFormatDepth24PlusStencil8,
		Windowed:           true,
		Window:             1,
	}}
}

func newDevice(t *testing.T, b *Backend) *Device {
	t.Helper()
	dev, err := b.CreateDevice(0, backend.KindHardware, 1, backend.FlagHardwareVertexProcessing, params(64, 64))
	if err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	return dev.(*Device)
}

func TestCreateDeviceFailures(t *testing.T) {
	b := New()
	b.FailNextCreates(2)
	for i := range 2 {
		if _, err := b.CreateDevice(0, backend.KindHardware, 1, 0, params(8, 8)); !errors.Is(err, backend.ErrNotSupported) {
			t.Fatalf("attempt %d error = %v, want ErrNotSupported", i, err)
		}
	}
	if _, err := b.CreateDevice(0, backend.KindHardware, 1, 0, params(8, 8)); err != nil {
		t.Fatalf("third attempt error = %v", err)
	}
	if _, err := b.CreateDevice(3, backend.KindHardware, 1, 0, params(8, 8)); !errors.Is(err, backend.ErrUnknownAdapter) {
		t.Errorf("unknown adapter error = %v", err)
	}
	if got := len(b.CreateAttempts()); got != 4 {
		t.Errorf("CreateAttempts() = %d, want 4", got)
	}
	if got := b.LiveDevices(); got != 1 {
		t.Errorf("LiveDevices() = %d, want 1", got)
	}
}

func TestAdapterGroupCreation(t *testing.T) {
	b := New(WithAdapters(AdapterGroup(0, "Dual", 1, 2)...))
	flags := backend.FlagHardwareVertexProcessing | backend.FlagAdapterGroup
	if _, err := b.CreateDevice(1, backend.KindHardware, 1, flags, append(params(8, 8), params(8, 8)...)); !errors.Is(err, backend.ErrInvalidCall) {
		t.Errorf("group device on non-master error = %v, want ErrInvalidCall", err)
	}
	if _, err := b.CreateDevice(0, backend.KindHardware, 1, flags, params(8, 8)); !errors.Is(err, backend.ErrInvalidCall) {
		t.Errorf("group device with one head error = %v, want ErrInvalidCall", err)
	}
	dev, err := b.CreateDevice(0, backend.KindHardware, 1, flags, append(params(8, 8), params(16, 16)...))
	if err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if got := dev.Caps().AdaptersInGroup; got != 2 {
		t.Errorf("AdaptersInGroup = %d, want 2", got)
	}
	sc, err := dev.SwapChain(1)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Params().Width != 16 {
		t.Errorf("head 1 width = %d, want 16", sc.Params().Width)
	}
}

func TestResetRequiresVolatileRelease(t *testing.T) {
	d := newDevice(t, New())

	ds, err := d.CreateDepthStencil(32, 32, gputypes.TextureFormatDepth24PlusStencil8, 1, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	sc, _ := d.SwapChain(0)
	bb, err := sc.BackBuffer()
	if err != nil {
		t.Fatal(err)
	}
	managed, _ := d.CreateBuffer(backend.BufferDesc{Size: 16, Pool: backend.PoolManaged})

	d.AllowReset()
	if err := d.Reset(params(64, 64)); !errors.Is(err, backend.ErrInvalidCall) {
		t.Fatalf("Reset() with live objects error = %v, want ErrInvalidCall", err)
	}

	ds.Release()
	bb.Release()
	if err := d.Reset(params(128, 64)); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if d.TestCooperativeLevel() != backend.StatusOK {
		t.Errorf("status after reset = %v", d.TestCooperativeLevel())
	}
	if got := d.ImplicitParams()[0].Width; got != 128 {
		t.Errorf("implicit width = %d, want 128", got)
	}

	managed.Release()
	managed.Release()
	st := d.Stats()
	if st.Resets != 1 || st.DoubleReleases != 1 || st.DepthStencilLive != 0 || st.BuffersLive != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestLostDeviceBehavior(t *testing.T) {
	d := newDevice(t, New())
	d.Lose()

	tests := []struct {
		name string
		fn   func() error
		want error
	}{
		{"reset", func() error { return d.Reset(params(64, 64)) }, backend.ErrDeviceLost},
		{"present", d.Present, backend.ErrDeviceLost},
		{"default pool buffer", func() error {
			_, err := d.CreateBuffer(backend.BufferDesc{Size: 4, Pool: backend.PoolDefault})
			return err
		}, backend.ErrDeviceLost},
		{"managed buffer", func() error {
			buf, err := d.CreateBuffer(backend.BufferDesc{Size: 4, Pool: backend.PoolManaged})
			if err == nil {
				err = d.WriteBuffer(buf, 0, []byte{1, 2, 3, 4})
				buf.Release()
			}
			return err
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if tt.want == nil && err != nil {
				t.Fatalf("error = %v, want nil", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestInjectedFailures(t *testing.T) {
	d := newDevice(t, New())
	boom := errors.New("boom")

	d.FailNextPresent(backend.ErrDeviceLost)
	if err := d.Present(); !errors.Is(err, backend.ErrDeviceLost) {
		t.Errorf("Present() error = %v", err)
	}
	if err := d.Present(); err != nil {
		t.Errorf("second Present() error = %v", err)
	}

	d.FailNextReset(boom)
	if err := d.Reset(params(64, 64)); !errors.Is(err, boom) {
		t.Errorf("Reset() error = %v, want boom", err)
	}
}

func TestWriteBufferBounds(t *testing.T) {
	d := newDevice(t, New())
	buf, err := d.CreateBuffer(backend.BufferDesc{Label: "vb", Size: 4})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.WriteBuffer(buf, 2, []byte{9, 9, 9}); !errors.Is(err, backend.ErrInvalidCall) {
		t.Errorf("out of range write error = %v", err)
	}
	if err := d.WriteBuffer(buf, 1, []byte{7, 8}); err != nil {
		t.Fatal(err)
	}
	if got := buf.(*Buffer).Bytes(); string(got) != string([]byte{0, 7, 8, 0}) {
		t.Errorf("Bytes() = %v", got)
	}
}

func TestSupportsDepthFormat(t *testing.T) {
	b := New(WithUnsupportedDepthFormats(gputypes.TextureFormatDepth24PlusStencil8))
	color := gputypes.TextureFormatBGRA8Unorm
	if b.SupportsDepthFormat(0, backend.KindHardware, color, gputypes.TextureFormatDepth24PlusStencil8) {
		t.Error("disabled format reported as supported")
	}
	if !b.SupportsDepthFormat(0, backend.KindHardware, color, gputypes.TextureFormatDepth32Float) {
		t.Error("Depth32Float should be supported")
	}
	if b.SupportsDepthFormat(0, backend.KindHardware, color, color) {
		t.Error("color format accepted as depth")
	}
}

func TestMonitorFromWindow(t *testing.T) {
	b := New(WithAdapters(Adapter(0, "A", 5), Adapter(1, "B", 6)))
	if got := b.MonitorFromWindow(42); got != 5 {
		t.Errorf("default monitor = %d, want 5", got)
	}
	b.SetWindowMonitor(42, 0)
	if got := b.MonitorFromWindow(42); got != 0 {
		t.Errorf("minimized monitor = %d, want 0", got)
	}
}
