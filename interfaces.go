package mediadrv

import (
	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/interfaces"
	"github.com/ehrlich-b/go-mediadrv/internal/logging"
	"github.com/ehrlich-b/go-mediadrv/internal/mediacopy"
	"github.com/ehrlich-b/go-mediadrv/internal/surface"
)

// Collaborator interfaces a Driver is wired against.
type (
	OSInterface          = interfaces.OSInterface
	OSContext            = interfaces.OSContext
	CommandBufferManager = interfaces.CommandBufferManager
	EngineManager        = interfaces.EngineManager
	HardwareContext      = interfaces.HardwareContext
	CopyEngine           = interfaces.CopyEngine
	ResourceAllocator    = interfaces.ResourceAllocator
	ResourceQuerier      = interfaces.ResourceQuerier
	MMC                  = interfaces.MMC
	Observer             = interfaces.Observer
)

// Data model.
type (
	FuncType       = gpu.FuncType
	Node           = gpu.Node
	ContextType    = gpu.ContextType
	CommandBuffer  = gpu.CommandBuffer
	PatchEntry     = gpu.PatchEntry
	ResourceHandle = gpu.ResourceHandle
	ResourceInfo   = gpu.ResourceInfo
	AllocParams    = gpu.AllocParams
	Format         = gpu.Format
	TileType       = gpu.TileType
	MMCMode        = gpu.MMCMode
	LockFlags      = gpu.LockFlags
	FreeFlags      = gpu.FreeFlags
)

// Surface copy.
type (
	Engine       = mediacopy.Engine
	Method       = mediacopy.Method
	Caps         = mediacopy.Caps
	SurfaceDesc  = mediacopy.SurfaceDesc
	CopyPlatform = mediacopy.Platform
	CopyEngines  = mediacopy.Engines
)

// Surfaces.
type (
	SurfaceAllocator  = surface.Allocator
	Surface           = surface.Surface
	SurfaceView       = surface.View
	SurfaceRequest    = surface.Request
	SurfaceDescriptor = surface.Descriptor
	SurfaceTarget     = surface.Target
)

// Logging.
type (
	Logger    = logging.Logger
	LogConfig = logging.Config
)

// NewLogger creates a zerolog-backed structured logger.
func NewLogger(cfg *LogConfig) *Logger { return logging.NewLogger(cfg) }

const (
	FuncDecode    = gpu.FuncDecode
	FuncEncode    = gpu.FuncEncode
	FuncComputeVP = gpu.FuncComputeVP
	FuncVeboxVP   = gpu.FuncVeboxVP
	FuncRender    = gpu.FuncRender
)

const (
	EngineVebox  = mediacopy.EngineVebox
	EngineBlt    = mediacopy.EngineBlt
	EngineRender = mediacopy.EngineRender
)

const (
	MethodPerformance = mediacopy.MethodPerformance
	MethodBalance     = mediacopy.MethodBalance
	MethodPowerSaving = mediacopy.MethodPowerSaving
)

// ParseMethod maps "performance", "balance" or "power-saving" onto a Method.
func ParseMethod(s string) (Method, error) { return mediacopy.ParseMethod(s) }
