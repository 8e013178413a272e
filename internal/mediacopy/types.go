package mediacopy

import (
	"strings"

	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
)

// Engine is a hardware copy path.
type Engine int

const (
	EngineVebox Engine = iota
	EngineBlt
	EngineRender
)

func (e Engine) String() string {
	switch e {
	case EngineVebox:
		return "vebox"
	case EngineBlt:
		return "blt"
	case EngineRender:
		return "render"
	default:
		return "unknown"
	}
}

// Method is the caller's engine preference for a copy.
type Method int

const (
	MethodPerformance Method = iota
	MethodBalance
	MethodPowerSaving
)

func (m Method) String() string {
	switch m {
	case MethodPerformance:
		return "performance"
	case MethodBalance:
		return "balance"
	case MethodPowerSaving:
		return "power-saving"
	default:
		return "unknown"
	}
}

// ParseMethod maps a method name onto a Method. Matching is case-insensitive
// and accepts "power", "powersaving" and "power-saving" for MethodPowerSaving.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "performance", "perf":
		return MethodPerformance, nil
	case "balance", "balanced":
		return MethodBalance, nil
	case "power", "powersaving", "power-saving":
		return MethodPowerSaving, nil
	}
	return 0, gpu.NewError("PARSE_METHOD", gpu.CodeInvalidParameter, "unknown copy method "+s)
}

// Caps is the set of engines able to perform a particular copy.
type Caps struct {
	Vebox  bool
	Blt    bool
	Render bool
}

// AllCaps returns a set with every engine capable.
func AllCaps() Caps { return Caps{Vebox: true, Blt: true, Render: true} }

// Any reports whether at least one engine is capable.
func (c Caps) Any() bool { return c.Vebox || c.Blt || c.Render }

// Has reports whether e is capable.
func (c Caps) Has(e Engine) bool {
	switch e {
	case EngineVebox:
		return c.Vebox
	case EngineBlt:
		return c.Blt
	case EngineRender:
		return c.Render
	}
	return false
}

// SurfaceDesc is the per-call view of a copy endpoint, derived from the live
// resource.
type SurfaceDesc struct {
	Resource        gpu.ResourceHandle
	Format          gpu.Format
	CompressionMode gpu.MMCMode
	Protection      gpu.CPMode
	TileType        gpu.TileType
	AuxSurface      bool
}

func describe(info gpu.ResourceInfo) SurfaceDesc {
	return SurfaceDesc{
		Resource:        info.Handle,
		Format:          info.Format,
		CompressionMode: info.CompressionMode,
		Protection:      info.Protection,
		TileType:        info.TileType,
		AuxSurface:      info.AuxSurface,
	}
}

// Platform answers hardware and SKU questions for copy legality.
type Platform interface {
	// FeatureSupport may clear engines the platform lacks. An error aborts
	// the copy and is returned verbatim.
	FeatureSupport(src, dst SurfaceDesc, caps *Caps) error

	VeboxFormatSupported(src, dst SurfaceDesc) bool
	RenderFormatSupported(src, dst SurfaceDesc) bool
}

// FormatPlatform is a Platform with no SKU restrictions and a conservative
// format table. Vebox handles tiled, non-buffer surfaces of matching
// format; render handles any matching non-buffer format.
type FormatPlatform struct{}

// FeatureSupport implements Platform
func (FormatPlatform) FeatureSupport(SurfaceDesc, SurfaceDesc, *Caps) error { return nil }

// VeboxFormatSupported implements Platform
func (FormatPlatform) VeboxFormatSupported(src, dst SurfaceDesc) bool {
	if src.Format != dst.Format || src.Format == gpu.FormatBuffer {
		return false
	}
	return src.TileType != gpu.TileLinear && dst.TileType != gpu.TileLinear
}

// RenderFormatSupported implements Platform
func (FormatPlatform) RenderFormatSupported(src, dst SurfaceDesc) bool {
	return src.Format == dst.Format && src.Format != gpu.FormatBuffer
}
