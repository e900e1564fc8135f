package backend

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// DeviceKind selects the rasterizer a device is created on.
type DeviceKind int

const (
	// KindHardware is a hardware accelerated device.
	KindHardware DeviceKind = iota

	// KindReference is a software reference rasterizer.
	KindReference
)

// String returns the device kind name.
func (k DeviceKind) String() string {
	switch k {
	case KindHardware:
		return "hardware"
	case KindReference:
		return "reference"
	default:
		return fmt.Sprintf("DeviceKind(%d)", int(k))
	}
}

// CreateFlags modify native device creation.
type CreateFlags uint32

const (
	// FlagHardwareVertexProcessing runs vertex processing on the GPU.
	FlagHardwareVertexProcessing CreateFlags = 1 << iota

	// FlagMixedVertexProcessing allows both hardware and software vertex processing.
	FlagMixedVertexProcessing

	// FlagSoftwareVertexProcessing runs vertex processing on the CPU.
	FlagSoftwareVertexProcessing

	// FlagAdapterGroup creates one device driving every head of an adapter group.
	FlagAdapterGroup

	// FlagFPUPreserve keeps the caller's floating point state.
	FlagFPUPreserve

	// FlagMultithreaded makes the native device safe for concurrent calls.
	FlagMultithreaded
)

// VertexProcessingMask covers the mutually exclusive vertex processing flags.
const VertexProcessingMask = FlagHardwareVertexProcessing | FlagMixedVertexProcessing | FlagSoftwareVertexProcessing

// Has reports whether all bits of f2 are set.
func (f CreateFlags) Has(f2 CreateFlags) bool { return f&f2 == f2 }

// WithVertexProcessing replaces the vertex processing bits with vp.
func (f CreateFlags) WithVertexProcessing(vp CreateFlags) CreateFlags {
	return f&^VertexProcessingMask | vp&VertexProcessingMask
}

// Status is the cooperative level of a device.
type Status int

const (
	// StatusOK means the device is usable.
	StatusOK Status = iota

	// StatusDeviceLost means the device is lost and cannot be reset yet.
	StatusDeviceLost

	// StatusDeviceNotReset means the device is lost and can be reset now.
	StatusDeviceNotReset

	// StatusDriverInternalError means the driver failed; treated as lost.
	StatusDriverInternalError
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDeviceLost:
		return "device lost"
	case StatusDeviceNotReset:
		return "device not reset"
	case StatusDriverInternalError:
		return "driver internal error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Err returns the sentinel error for s, or nil for StatusOK.
func (s Status) Err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusDeviceNotReset:
		return ErrDeviceNotReset
	case StatusDriverInternalError:
		return ErrDriverInternal
	default:
		return ErrDeviceLost
	}
}

// Monitor identifies a display output. Zero means no monitor.
type Monitor uintptr

// PresentParams describe one swap chain.
type PresentParams struct {
	Width, Height       int
	BackBufferFormat    gputypes.TextureFormat
	BackBufferCount     int
	AutoDepthStencil    bool
	DepthStencilFormat  gputypes.TextureFormat
	DiscardDepthStencil bool
	SampleCount         uint32
	SampleQuality       uint32
	Windowed            bool
	PresentMode         gputypes.PresentMode
	Window              uintptr
}

// CreationParams record how a native device was created.
type CreationParams struct {
	Adapter     int
	Kind        DeviceKind
	FocusWindow uintptr
	Flags       CreateFlags
}

// AdapterDesc describes an enumerated adapter.
type AdapterDesc struct {
	Ordinal int
	Info    gputypes.AdapterInfo
	Monitor Monitor

	// MasterAdapterOrdinal is the ordinal of the group master.
	MasterAdapterOrdinal int
	// AdapterOrdinalInGroup is the position of this head within its group.
	AdapterOrdinalInGroup int
	// AdaptersInGroup is the number of heads in the group.
	AdaptersInGroup int
}

// Caps are device capabilities queried after creation.
type Caps struct {
	AdapterOrdinal        int
	MasterAdapterOrdinal  int
	AdapterOrdinalInGroup int
	AdaptersInGroup       int
	MaxTextureDimension   uint32
	MaxSampleCount        uint32
}

// Pool is the memory class of a device object.
type Pool int

const (
	// PoolManaged objects keep a system copy and survive device loss.
	PoolManaged Pool = iota

	// PoolDefault objects live in volatile memory. They must be released
	// before a device reset and recreated after it.
	PoolDefault
)

// String returns the pool name.
func (p Pool) String() string {
	if p == PoolDefault {
		return "default"
	}
	return "managed"
}

// BufferDesc describes a device buffer.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
	Pool  Pool
}

// TextureDesc describes a two-dimensional device texture.
type TextureDesc struct {
	Label  string
	Width  uint32
	Height uint32
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
	Pool   Pool
}

// Backend is a native graphics API.
type Backend interface {
	// Name returns the registered backend name.
	Name() string

	// Adapters enumerates the adapters in ordinal order.
	Adapters() []AdapterDesc

	// MonitorFromWindow returns the monitor a window is displayed on.
	MonitorFromWindow(window uintptr) Monitor

	// CreateDevice creates a device. params holds one entry per head when
	// flags has FlagAdapterGroup, otherwise exactly one entry.
	CreateDevice(adapter int, kind DeviceKind, focus uintptr, flags CreateFlags, params []PresentParams) (Device, error)

	// SupportsDepthFormat reports whether depth can be used together with
	// the color render target format on the adapter.
	SupportsDepthFormat(adapter int, kind DeviceKind, color, depth gputypes.TextureFormat) bool

	// Close releases backend resources.
	Close()
}

// Device is a native device handle.
type Device interface {
	// TestCooperativeLevel reports whether the device is usable.
	TestCooperativeLevel() Status

	// Reset recreates the implicit swap chains with params. Every
	// volatile object must be released first.
	Reset(params []PresentParams) error

	CreationParams() CreationParams
	Caps() Caps

	// SwapChain returns the implicit swap chain of head i.
	SwapChain(i int) (SwapChain, error)

	// CreateAdditionalSwapChain creates a swap chain for a secondary window.
	CreateAdditionalSwapChain(params PresentParams) (SwapChain, error)

	// AutoDepthStencil returns the depth surface created with the device.
	AutoDepthStencil() (Surface, error)

	CreateDepthStencil(width, height int, format gputypes.TextureFormat, samples, quality uint32, discard bool) (Surface, error)
	SetDepthStencil(s Surface) error

	// Present presents every implicit swap chain.
	Present() error

	SetupDefaultState()
	ClearStreams()

	CreateBuffer(desc BufferDesc) (Buffer, error)
	WriteBuffer(b Buffer, offset uint64, data []byte) error
	CreateTexture(desc TextureDesc) (Texture, error)
	WriteTexture(t Texture, data []byte) error
	CreateShaderModule(label string, spirv []uint32) (ShaderModule, error)

	// Destroy releases the native device. Objects created from it must be
	// released first.
	Destroy()
}

// SwapChain is a presentable chain of back buffers.
type SwapChain interface {
	Params() PresentParams
	BackBuffer() (Surface, error)
	Present() error
	Release()
}

// Surface is a render target or depth-stencil surface.
type Surface interface {
	Width() int
	Height() int
	Format() gputypes.TextureFormat
	Release()
}

// Buffer is a device buffer.
type Buffer interface {
	Size() uint64
	Release()
}

// Texture is a device texture.
type Texture interface {
	Width() uint32
	Height() uint32
	Release()
}

// ShaderModule is a compiled shader on a device.
type ShaderModule interface {
	Release()
}
