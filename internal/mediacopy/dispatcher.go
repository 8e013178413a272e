// Package mediacopy chooses a hardware engine for a surface copy and
// dispatches it. Legality is recomputed per request from the live
// resources; the choice among legal engines follows the caller's method.
package mediacopy

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/interfaces"
	"github.com/ehrlich-b/go-mediadrv/internal/logging"
)

const tracerName = "github.com/ehrlich-b/go-mediadrv/mediacopy"

// Engines holds the copy implementations. A nil entry marks the engine as
// unavailable.
type Engines struct {
	Vebox  interfaces.CopyEngine
	Blt    interfaces.CopyEngine
	Render interfaces.CopyEngine
}

func (e Engines) get(engine Engine) interfaces.CopyEngine {
	switch engine {
	case EngineVebox:
		return e.Vebox
	case EngineBlt:
		return e.Blt
	case EngineRender:
		return e.Render
	}
	return nil
}

// Config configures a Dispatcher.
type Config struct {
	// Querier supplies live resource descriptions. Required.
	Querier interfaces.ResourceQuerier

	// Platform defaults to FormatPlatform.
	Platform Platform

	Engines Engines

	// AllowProtectedBlt permits copying protected content into a clear
	// destination.
	AllowProtectedBlt bool

	Logger   *logging.Logger
	Observer interfaces.Observer

	// Tracer defaults to the global OpenTelemetry provider.
	Tracer trace.Tracer
}

// Dispatcher performs surface copies. Only one copy is in dispatch at a
// time across all callers.
type Dispatcher struct {
	mu sync.Mutex // GPU in use

	querier    interfaces.ResourceQuerier
	platform   Platform
	engines    Engines
	allowCPBlt bool
	logger     *logging.Logger
	observer   interfaces.Observer
	tracer     trace.Tracer
}

// NewDispatcher validates cfg and returns a Dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Querier == nil {
		return nil, gpu.NewError("NEW_DISPATCHER", gpu.CodeNullDependency, "resource querier not set")
	}
	platform := cfg.Platform
	if platform == nil {
		platform = FormatPlatform{}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Dispatcher{
		querier:    cfg.Querier,
		platform:   platform,
		engines:    cfg.Engines,
		allowCPBlt: cfg.AllowProtectedBlt,
		logger:     logging.OrDefault(cfg.Logger).WithComponent("mediacopy"),
		observer:   cfg.Observer,
		tracer:     tracer,
	}, nil
}

func (d *Dispatcher) describe(src, dst gpu.ResourceHandle) (SurfaceDesc, SurfaceDesc, uint64, error) {
	srcInfo, err := d.querier.ResourceInfo(src)
	if err != nil {
		return SurfaceDesc{}, SurfaceDesc{}, 0, err
	}
	dstInfo, err := d.querier.ResourceInfo(dst)
	if err != nil {
		return SurfaceDesc{}, SurfaceDesc{}, 0, err
	}
	return describe(srcInfo), describe(dstInfo), uint64(srcInfo.Size), nil
}

func (d *Dispatcher) capabilities(srcDesc, dstDesc SurfaceDesc) (Caps, error) {
	caps := AllCaps()
	caps.Vebox = d.engines.Vebox != nil
	caps.Blt = d.engines.Blt != nil
	caps.Render = d.engines.Render != nil

	if err := d.platform.FeatureSupport(srcDesc, dstDesc, &caps); err != nil {
		return Caps{}, err
	}

	if srcDesc.Protection == gpu.CPProtected && dstDesc.Protection == gpu.CPClear && !d.allowCPBlt {
		return Caps{}, gpu.NewError("SURFACE_COPY", gpu.CodeInvalidParameter, "protected source cannot be copied into a clear destination")
	}

	caps = filter(d.platform, srcDesc, dstDesc, caps)
	if !caps.Any() {
		return Caps{}, gpu.NewError("SURFACE_COPY", gpu.CodeInvalidParameter, "no engine can perform the copy")
	}
	return caps, nil
}

// Capabilities reports which engines could copy src into dst, without
// dispatching anything.
func (d *Dispatcher) Capabilities(src, dst gpu.ResourceHandle) (Caps, error) {
	srcDesc, dstDesc, _, err := d.describe(src, dst)
	if err != nil {
		return Caps{}, err
	}
	return d.capabilities(srcDesc, dstDesc)
}

// SurfaceCopy copies src into dst on the engine chosen by method and returns
// the engine used. Engine failures are returned verbatim and never retried,
// since a partial write may already have reached dst.
func (d *Dispatcher) SurfaceCopy(ctx context.Context, src, dst gpu.ResourceHandle, method Method) (engine Engine, err error) {
	ctx, span := d.tracer.Start(ctx, "mediacopy.SurfaceCopy",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int64("mediacopy.src", int64(src)),
			attribute.Int64("mediacopy.dst", int64(dst)),
			attribute.String("mediacopy.method", method.String()),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	srcDesc, dstDesc, size, err := d.describe(src, dst)
	if err != nil {
		return 0, err
	}
	caps, err := d.capabilities(srcDesc, dstDesc)
	if err != nil {
		d.logger.WithError(err).DebugContext(ctx, "copy refused", "src", uint64(src), "dst", uint64(dst))
		return 0, err
	}
	engine, err = SelectEngine(caps, method)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.String("mediacopy.engine", engine.String()))

	start := time.Now()
	err = d.dispatch(engine, src, dst)
	latency := uint64(time.Since(start).Nanoseconds())
	if d.observer != nil {
		d.observer.ObserveCopy(engine.String(), size, latency, err == nil)
	}
	if err != nil {
		d.logger.WithEngine(engine.String()).WithError(err).WarnContext(ctx, "copy failed")
		return engine, err
	}
	d.logger.WithEngine(engine.String()).InfoContext(ctx, "copy dispatched", "method", method.String(), "bytes", size)
	return engine, nil
}

func (d *Dispatcher) dispatch(engine Engine, src, dst gpu.ResourceHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.engines.get(engine).Copy(src, dst)
}

// AuxCopy copies an auxiliary (compression metadata) surface. No platform
// wired here supports it.
func (d *Dispatcher) AuxCopy(src, dst gpu.ResourceHandle) error {
	return gpu.NewError("AUX_COPY", gpu.CodeUnimplemented, "aux surface copy not supported")
}
