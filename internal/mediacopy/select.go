package mediacopy

import "github.com/ehrlich-b/go-mediadrv/internal/gpu"

// preference lists the engines each method tries, in order.
var preference = map[Method][3]Engine{
	MethodPerformance: {EngineRender, EngineBlt, EngineVebox},
	MethodBalance:     {EngineVebox, EngineBlt, EngineRender},
	MethodPowerSaving: {EngineBlt, EngineVebox, EngineRender},
}

// SelectEngine picks the first capable engine in the method's order.
func SelectEngine(caps Caps, m Method) (Engine, error) {
	order, ok := preference[m]
	if !ok {
		return 0, gpu.NewError("SELECT_ENGINE", gpu.CodeInvalidParameter, "unknown copy method")
	}
	for _, e := range order {
		if caps.Has(e) {
			return e, nil
		}
	}
	return 0, gpu.NewError("SELECT_ENGINE", gpu.CodeInvalidParameter, "no engine can perform the copy")
}

// filter applies the legality rules to caps. The protection precondition
// is enforced by the caller before this runs.
func filter(p Platform, src, dst SurfaceDesc, caps Caps) Caps {
	if !p.VeboxFormatSupported(src, dst) || dst.CompressionMode == gpu.MMCRC || src.AuxSurface {
		caps.Vebox = false
	}
	if !p.RenderFormatSupported(src, dst) || dst.CompressionMode == gpu.MMCMC || src.AuxSurface {
		caps.Render = false
	}
	if src.CompressionMode != gpu.MMCDisabled || dst.CompressionMode != gpu.MMCDisabled {
		caps.Blt = false
	}
	return caps
}
