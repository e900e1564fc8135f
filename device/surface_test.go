package device

import (
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendercore/backend"
	"github.com/gogpu/rendercore/backend/sim"
)

func TestWindowPresentParameters(t *testing.T) {
	tests := []struct {
		name string
		wp   gpucontext.NullWindowProvider
		opts []WindowOption
		want backend.PresentParams
	}{
		{
			name: "defaults",
			wp:   gpucontext.NullWindowProvider{W: 800, H: 600},
			want: backend.PresentParams{
				Width: 800, Height: 600,
				BackBufferFormat:    gputypes.TextureFormatBGRA8Unorm,
				BackBufferCount:     1,
				AutoDepthStencil:    true,
				DepthStencilFormat:  gputypes.TextureFormatDepth24PlusStencil8,
				DiscardDepthStencil: true,
				SampleCount:         1,
				Windowed:            true,
				PresentMode:         gputypes.PresentModeImmediate,
				Window:              9,
			},
		},
		{
			name: "hidpi full screen vsync",
			wp:   gpucontext.NullWindowProvider{W: 640, H: 360, SF: 2},
			opts: []WindowOption{WithFullScreen(), WithVSync(), WithMultisample(4, 1), WithDepthFormat(gputypes.TextureFormatDepth32Float)},
			want: backend.PresentParams{
				Width: 1280, Height: 720,
				BackBufferFormat:    gputypes.TextureFormatBGRA8Unorm,
				BackBufferCount:     1,
				AutoDepthStencil:    true,
				DepthStencilFormat:  gputypes.TextureFormatDepth32Float,
				DiscardDepthStencil: true,
				SampleCount:         4,
				SampleQuality:       1,
				PresentMode:         gputypes.PresentModeFifo,
				Window:              9,
			},
		},
		{
			name: "no depth minimized",
			wp:   gpucontext.NullWindowProvider{},
			opts: []WindowOption{WithoutDepthBuffer(), WithColorFormat(gputypes.TextureFormatRGBA8Unorm)},
			want: backend.PresentParams{
				Width: 1, Height: 1,
				BackBufferFormat: gputypes.TextureFormatRGBA8Unorm,
				BackBufferCount:  1,
				SampleCount:      1,
				Windowed:         true,
				PresentMode:      gputypes.PresentModeImmediate,
				Window:           9,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWindow("w", tt.wp, 9, tt.opts...)
			var got backend.PresentParams
			w.BuildPresentParameters(&got)
			if got != tt.want {
				t.Errorf("BuildPresentParameters() =\n%+v\nwant\n%+v", got, tt.want)
			}
		})
	}
}

func TestDriverAdapterInfo(t *testing.T) {
	tests := []struct {
		deviceType gputypes.DeviceType
		want       gpucontext.AdapterType
	}{
		{gputypes.DeviceTypeDiscreteGPU, gpucontext.AdapterTypeDiscrete},
		{gputypes.DeviceTypeIntegratedGPU, gpucontext.AdapterTypeIntegrated},
		{gputypes.DeviceTypeCPU, gpucontext.AdapterTypeSoftware},
		{gputypes.DeviceTypeVirtualGPU, gpucontext.AdapterTypeUnknown},
	}
	for _, tt := range tests {
		desc := sim.Adapter(3, "GPU", 5)
		desc.Info.DeviceType = tt.deviceType
		drv := newDrivers([]backend.AdapterDesc{desc})[0]
		info := drv.AdapterInfo()
		if info.Type != tt.want || info.Name != "GPU" {
			t.Errorf("AdapterInfo() for %v = %+v, want type %v", tt.deviceType, info, tt.want)
		}
		if drv.Ordinal() != 3 || drv.Monitor() != 5 || drv.Description() != "GPU" {
			t.Errorf("driver = ordinal %d monitor %d %q", drv.Ordinal(), drv.Monitor(), drv.Description())
		}
	}
}

func TestDriverMatches(t *testing.T) {
	desc := sim.Adapter(0, "NVIDIA PerfHUD", 1)
	desc.Info.DriverInfo = "instrumented"
	drv := newDrivers([]backend.AdapterDesc{desc})[0]
	for marker, want := range map[string]bool{"PerfHUD": true, "instrumented": true, "Radeon": false, "": false} {
		if got := drv.matches(marker); got != want {
			t.Errorf("matches(%q) = %v, want %v", marker, got, want)
		}
	}
}
