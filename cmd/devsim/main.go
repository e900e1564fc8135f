// Command devsim drives the device lifecycle against a registered backend.
//
// It links one or more windows, renders a number of frames and periodically
// loses the devices, logging every acquire, reset and present. The backend
// comes from -backend, then the config file, then defaults to sim. Device
// loss is only injected on the sim backend.
//
// Usage:
//
//	devsim -frames 20 -lose-every 6 -heads 2 -v
//	devsim -config rendercore.toml
//	devsim -backend wgpu -lose-every 0
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/rendercore"
	"github.com/gogpu/rendercore/backend"
	"github.com/gogpu/rendercore/backend/sim"
	_ "github.com/gogpu/rendercore/backend/wgpu"
	"github.com/gogpu/rendercore/device"
	"github.com/gogpu/rendercore/resource"
)

const vertexWGSL = `
@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    let x = f32(i32(idx) - 1);
    let y = f32(i32(idx & 1u) * 2 - 1);
    return vec4<f32>(x, y, 0.0, 1.0);
}
`

type options struct {
	configPath string
	backend    string
	frames     int
	loseEvery  int
	heads      int
}

func main() {
	var (
		opts    options
		verbose bool
	)
	flag.StringVar(&opts.configPath, "config", "", "TOML configuration file")
	flag.StringVar(&opts.backend, "backend", "", "backend name, overrides the config file")
	flag.IntVar(&opts.frames, "frames", 12, "number of frames to render")
	flag.IntVar(&opts.loseEvery, "lose-every", 5, "lose the devices every n frames, 0 disables")
	flag.IntVar(&opts.heads, "heads", 1, "number of simulated monitors, more than 1 links a full screen window per head")
	flag.BoolVar(&verbose, "v", false, "log debug output")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	rendercore.SetLogger(logger)

	if err := run(opts); err != nil {
		log.Fatalf("devsim: %v", err)
	}
}

func run(opts options) error {
	cfg := rendercore.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = rendercore.LoadConfig(opts.configPath); err != nil {
			return err
		}
	}
	if opts.backend != "" {
		cfg.Backend = opts.backend
	}
	if cfg.Backend == "" {
		cfg.Backend = backend.NameSim
	}

	b, err := openBackend(cfg.Backend, opts.heads)
	if err != nil {
		return err
	}
	defer b.Close()
	slog.Info("backend opened", "name", b.Name(), "adapters", len(b.Adapters()))

	reg := resource.NewRegistry()
	mgr, err := device.NewManager(b, reg, device.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer mgr.Close()

	mgr.OnDeviceLost(func(d *device.Device) { slog.Info("device lost", "device", d.String()) })
	mgr.OnDeviceReset(func(d *device.Device) { slog.Info("device reset", "device", d.String()) })

	windows := openWindows(b, opts.heads)
	for _, w := range windows {
		if res := mgr.LinkRenderWindow(w); res.Fatal() {
			return fmt.Errorf("link %s: %w", w.Name(), res.Err)
		}
	}

	quad, err := resource.NewBuffer(reg, resource.BufferDesc{
		Label: "quad",
		Size:  16,
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
		Pool:  backend.PoolManaged,
	})
	if err != nil {
		return err
	}
	defer quad.Close()

	prog, err := resource.NewProgram(reg, "triangle", vertexWGSL)
	if err != nil {
		return err
	}
	defer prog.Close()

	var presented, retried int
	for frame := 1; frame <= opts.frames; frame++ {
		mgr.BeginFrame()

		if err := quad.Write(0, frameBytes(frame)); err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}

		for _, w := range windows {
			res := renderWindow(w, quad, prog)
			switch res.Code {
			case device.ResultOK:
				presented++
			case device.ResultRetry:
				retried++
			case device.ResultFatal:
				return fmt.Errorf("frame %d: window %s: %w", frame, w.Name(), res.Err)
			}
		}

		if opts.loseEvery > 0 && frame%opts.loseEvery == 0 {
			loseDevices(mgr)
		} else {
			allowResets(mgr)
		}
		mgr.DestroyInactiveRenderDevices()
	}

	slog.Info("session finished",
		"frames", opts.frames,
		"presented", presented,
		"retried", retried,
		"devices", mgr.DeviceCount())
	for _, d := range mgr.Devices() {
		if sd, ok := d.Native().(*sim.Device); ok {
			st := sd.Stats()
			slog.Info("device stats", "device", d.String(),
				"resets", st.Resets, "presents", st.Presents, "buffers", st.BuffersLive)
		}
	}
	return nil
}

// openBackend opens the named backend. The sim backend gets one adapter
// group head per monitor when heads is above 1.
func openBackend(name string, heads int) (backend.Backend, error) {
	if name != backend.NameSim || heads <= 1 {
		return backend.Open(name)
	}
	monitors := make([]backend.Monitor, heads)
	for i := range monitors {
		monitors[i] = backend.Monitor(i + 1)
	}
	return sim.New(sim.WithAdapters(sim.AdapterGroup(0, "Simulated Multi-Head", monitors...)...)), nil
}

// monitorPlacer is implemented by backends that let windows be placed on
// monitors.
type monitorPlacer interface {
	SetWindowMonitor(window uintptr, m backend.Monitor)
}

func openWindows(b backend.Backend, heads int) []*device.Window {
	placer, ok := b.(monitorPlacer)
	if heads <= 1 || !ok {
		return []*device.Window{
			device.NewWindow("main", gpucontext.NullWindowProvider{W: 800, H: 600}, 1),
		}
	}
	windows := make([]*device.Window, heads)
	for i := range windows {
		handle := uintptr(i + 1)
		placer.SetWindowMonitor(handle, backend.Monitor(i+1))
		windows[i] = device.NewWindow(
			fmt.Sprintf("head%d", i),
			gpucontext.NullWindowProvider{W: 1280, H: 720},
			handle,
			device.WithFullScreen(), device.WithVSync(),
		)
	}
	return windows
}

// renderWindow validates the window's device, binds the frame's resources
// and presents.
func renderWindow(w *device.Window, quad *resource.Buffer, prog *resource.Program) device.Result {
	d := w.Device()
	if d == nil {
		return device.Result{Code: device.ResultRetry}
	}
	if res := d.Validate(w); !res.OK() {
		logResult(w, "validate", res)
		return res
	}
	native := d.Native()
	if _, err := quad.Prepare(native); err != nil {
		slog.Warn("prepare buffer", "window", w.Name(), "err", err)
		return device.Result{Code: device.ResultRetry, Err: err}
	}
	if _, err := prog.Prepare(native); err != nil {
		slog.Warn("prepare program", "window", w.Name(), "err", err)
		return device.Result{Code: device.ResultRetry, Err: err}
	}
	res := d.Present(w)
	if !res.OK() {
		logResult(w, "present", res)
	}
	return res
}

func logResult(w *device.Window, op string, res device.Result) {
	if res.Fatal() {
		slog.Error(op+" failed", "window", w.Name(), "err", res.Err)
		return
	}
	slog.Info(op+" deferred", "window", w.Name(), "err", res.Err)
}

func loseDevices(mgr *device.Manager) {
	for _, d := range mgr.Devices() {
		if sd, ok := d.Native().(*sim.Device); ok {
			sd.Lose()
		}
	}
}

func allowResets(mgr *device.Manager) {
	for _, d := range mgr.Devices() {
		if sd, ok := d.Native().(*sim.Device); ok && sd.TestCooperativeLevel() == backend.StatusDeviceLost {
			sd.AllowReset()
		}
	}
}

func frameBytes(frame int) []byte {
	buf := make([]byte, 16)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(frame*4+i))
	}
	return buf
}
