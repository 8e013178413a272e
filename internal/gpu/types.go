// Package gpu holds the data model shared by every driver component:
// function types, engine nodes, command buffers, resource descriptions and
// the structured error taxonomy.
package gpu

import "fmt"

// FuncType identifies why a hardware context is needed, not which engine
// executes it.
type FuncType int

const (
	FuncDecode FuncType = iota
	FuncEncode
	FuncComputeVP
	FuncVeboxVP
	FuncRender
	FuncInvalid
)

// AllFuncTypes lists every valid function type in table order.
var AllFuncTypes = []FuncType{FuncDecode, FuncEncode, FuncComputeVP, FuncVeboxVP, FuncRender}

func (f FuncType) String() string {
	switch f {
	case FuncDecode:
		return "decode"
	case FuncEncode:
		return "encode"
	case FuncComputeVP:
		return "vp-compute"
	case FuncVeboxVP:
		return "vp-vebox"
	case FuncRender:
		return "render"
	case FuncInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("functype(%d)", int(f))
	}
}

// Node is a hardware engine node a context is bound to.
type Node int

const (
	NodeInvalid Node = iota
	NodeRender
	NodeVideo
	NodeCompute
)

func (n Node) String() string {
	switch n {
	case NodeRender:
		return "render"
	case NodeVideo:
		return "video"
	case NodeCompute:
		return "compute"
	default:
		return "invalid"
	}
}

// ContextType is the driver-level context kind requested on a node.
type ContextType int

const (
	ContextInvalid ContextType = iota
	ContextVideoDecode
	ContextVideoPAK // second video engine, PAK path
	ContextCompute
	ContextVebox
	ContextRender
)

func (c ContextType) String() string {
	switch c {
	case ContextVideoDecode:
		return "video-decode"
	case ContextVideoPAK:
		return "video-pak"
	case ContextCompute:
		return "compute"
	case ContextVebox:
		return "vebox"
	case ContextRender:
		return "render"
	default:
		return "invalid"
	}
}

// ResourceHandle names a GPU-visible allocation. Zero is the null handle.
type ResourceHandle uint64

// IsNull reports whether the handle refers to no resource.
func (h ResourceHandle) IsNull() bool { return h == 0 }

// ResourceType is the allocation shape.
type ResourceType int

const (
	ResourceBuffer ResourceType = iota
	Resource2D
)

// Format is a surface pixel format tag. Layout arithmetic is left to the
// low-level allocator.
type Format int

const (
	FormatInvalid Format = iota
	FormatBuffer
	FormatNV12
	FormatP010
	FormatYUY2
	FormatAYUV
	FormatY410
	FormatYV12
	FormatA8R8G8B8
	FormatX8R8G8B8
	FormatA8B8G8R8
	FormatR5G6B5
	FormatRGB
	FormatA16B16G16R16
	FormatRGBP
)

var formatNames = map[Format]string{
	FormatInvalid:      "invalid",
	FormatBuffer:       "buffer",
	FormatNV12:         "NV12",
	FormatP010:         "P010",
	FormatYUY2:         "YUY2",
	FormatAYUV:         "AYUV",
	FormatY410:         "Y410",
	FormatYV12:         "YV12",
	FormatA8R8G8B8:     "A8R8G8B8",
	FormatX8R8G8B8:     "X8R8G8B8",
	FormatA8B8G8R8:     "A8B8G8R8",
	FormatR5G6B5:       "R5G6B5",
	FormatRGB:          "RGB",
	FormatA16B16G16R16: "A16B16G16R16",
	FormatRGBP:         "RGBP",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// IsPackedRGB reports whether the format is a single-plane RGB-style
// layout whose plane offset is one base offset.
func (f Format) IsPackedRGB() bool {
	switch f {
	case FormatA8R8G8B8, FormatX8R8G8B8, FormatA8B8G8R8,
		FormatR5G6B5, FormatRGB, FormatA16B16G16R16, FormatY410:
		return true
	}
	return false
}

// TileType is the memory tiling of a surface.
type TileType int

const (
	TileLinear TileType = iota
	TileX
	TileY
	TileYS
)

func (t TileType) String() string {
	switch t {
	case TileLinear:
		return "linear"
	case TileX:
		return "X"
	case TileY:
		return "Y"
	case TileYS:
		return "YS"
	default:
		return fmt.Sprintf("tile(%d)", int(t))
	}
}

// MMCMode is the memory compression mode of a surface.
type MMCMode int

const (
	MMCDisabled MMCMode = iota
	MMCHorizontal
	MMCVertical
	MMCMC // media compression
	MMCRC // render-target compression
)

func (m MMCMode) String() string {
	switch m {
	case MMCDisabled:
		return "disabled"
	case MMCHorizontal:
		return "horizontal"
	case MMCVertical:
		return "vertical"
	case MMCMC:
		return "MC"
	case MMCRC:
		return "RC"
	default:
		return fmt.Sprintf("mmc(%d)", int(m))
	}
}

// CPMode is the content-protection state of a resource.
type CPMode int

const (
	CPClear CPMode = iota
	CPProtected
)

func (c CPMode) String() string {
	if c == CPProtected {
		return "protected"
	}
	return "clear"
}

// MemPool selects where the low-level allocator places memory.
type MemPool int

const (
	MemPoolAny MemPool = iota
	MemPoolSystem
	MemPoolDevice
)

// AllocParams describes a resource allocation request.
type AllocParams struct {
	Name            string
	Type            ResourceType
	Format          Format
	Width           uint32
	Height          uint32
	Depth           uint32
	ArraySize       uint32
	TileType        TileType
	Compressible    bool
	CompressionMode MMCMode
	MemType         MemPool
	NotLockable     bool
	Protected       bool
}

// PlaneRenderOffset is a plane's offset as reported by the resource info
// provider.
type PlaneRenderOffset struct {
	BaseOffset uint32
	XOffset    uint32
	YOffset    uint32
}

// RenderOffsets carries the per-plane placement of a resource. RGB is used
// for packed layouts, Y/U/V for planar and YUV layouts.
type RenderOffsets struct {
	RGB   PlaneRenderOffset
	Y     PlaneRenderOffset
	U     PlaneRenderOffset
	V     PlaneRenderOffset
	LockY uint32
	LockU uint32
	LockV uint32
}

// PlaneOffset is a derived plane location on a surface descriptor.
type PlaneOffset struct {
	SurfaceOffset     uint32
	XOffset           uint32
	YOffset           uint32
	LockSurfaceOffset uint32
}

// ResourceInfo is the live description of a resource.
type ResourceInfo struct {
	Handle            ResourceHandle
	Type              ResourceType
	Format            Format
	Width             uint32
	Height            uint32
	Depth             uint32
	Pitch             uint32
	Size              uint32
	TileType          TileType
	Compressible      bool
	Compressed        bool
	CompressionMode   MMCMode
	CompressionFormat uint32
	Protection        CPMode
	AuxSurface        bool
	Offsets           RenderOffsets
}

// LockFlags select the CPU access mode of a lock.
type LockFlags struct {
	ReadOnly    bool
	WriteOnly   bool
	NoOverwrite bool
}

// FreeFlags tune resource teardown.
type FreeFlags struct {
	// SynchronousDestroy waits for in-flight GPU use before freeing.
	SynchronousDestroy bool
}
