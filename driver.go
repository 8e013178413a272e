// Package mediadrv provides the core of a GPU media driver: hardware
// context lifecycle, command buffer mediation, surface-copy engine
// selection and surface allocation with deferred destruction.
package mediadrv

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehrlich-b/go-mediadrv/internal/cmdbuf"
	"github.com/ehrlich-b/go-mediadrv/internal/constants"
	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/gpuctx"
	"github.com/ehrlich-b/go-mediadrv/internal/logging"
	"github.com/ehrlich-b/go-mediadrv/internal/mediacopy"
	"github.com/ehrlich-b/go-mediadrv/internal/surface"
)

// Platform bundles the collaborators a driver runs against.
type Platform struct {
	// OS is the OS/driver abstraction. Required.
	OS OSInterface

	// Allocator is the low-level resource allocator. Required.
	Allocator ResourceAllocator

	// MMC answers compression questions. Required.
	MMC MMC

	// Engines and OSContext back the engine-manager context pool. They are
	// unused when Params.UseOSInterface is set.
	Engines   EngineManager
	OSContext OSContext

	// CopyEngines are the copy implementations; nil entries are unavailable.
	CopyEngines CopyEngines

	// CopyPlatform answers SKU and format questions for copies. Defaults to
	// the built-in format table.
	CopyPlatform CopyPlatform
}

// Params contains parameters for opening a driver
type Params struct {
	Platform Platform

	// Copy configuration
	CopyMethod        Method // Engine preference for Copy (default: balance)
	AllowProtectedBlt bool   // Allow protected content into clear destinations

	// Compression
	MMCEnabled bool // Honor compression; false forces every surface uncompressed

	// Command buffer sizing used by AcquireCommandBuffer
	CommandBufferSize uint32
	PatchListSize     uint32

	// Contexts
	Functions      []FuncType // Contexts created at Open
	UseOSInterface bool       // Manage contexts through the OS interface

	// Recycling
	RecycleDepth uint64 // Frames a deferred surface survives before EndFrame frees it
}

// DefaultParams returns default driver parameters
func DefaultParams(platform Platform) Params {
	return Params{
		Platform:          platform,
		CopyMethod:        MethodBalance,
		AllowProtectedBlt: false,
		MMCEnabled:        true,
		CommandBufferSize: constants.DefaultCommandBufferSize,
		PatchListSize:     constants.DefaultPatchListSize,
		RecycleDepth:      constants.DefaultRecycleDepth,
	}
}

// Options contains additional options for opening a driver
type Options struct {
	// Logger for driver components (if nil, uses the default logger)
	Logger *Logger

	// Observer for metrics collection (if nil, records into the driver's Metrics)
	Observer Observer

	// Tracer for copy spans (if nil, uses the global OpenTelemetry provider)
	Tracer trace.Tracer
}

// Driver wires the context pool, command buffer broker, copy dispatcher and
// surface allocator over one platform.
type Driver struct {
	params   Params
	contexts gpuctx.Manager
	broker   *cmdbuf.Broker
	copier   *mediacopy.Dispatcher
	surfaces *surface.Allocator

	metrics  *Metrics
	observer Observer
	logger   *logging.Logger

	mu     sync.Mutex // guards broker and contexts
	closed atomic.Bool
}

// Open validates params, wires the driver components and creates the
// contexts listed in params.Functions.
//
// Example:
//
//	dev := backend.NewDevice(backend.Config{})
//	params := mediadrv.DefaultParams(platform)
//	drv, err := mediadrv.Open(params, nil)
func Open(params Params, options *Options) (*Driver, error) {
	if options == nil {
		options = &Options{}
	}
	p := params.Platform
	if p.OS == nil {
		return nil, NewError("OPEN", ErrCodeNullDependency, "OS interface not set")
	}

	logger := logging.OrDefault(options.Logger)

	metrics := NewMetrics()
	var observer Observer = NewMetricsObserver(metrics)
	if options.Observer != nil {
		observer = options.Observer
	}

	if params.CommandBufferSize == 0 {
		params.CommandBufferSize = constants.DefaultCommandBufferSize
	}
	if params.PatchListSize == 0 {
		params.PatchListSize = constants.DefaultPatchListSize
	}

	mmc := p.MMC
	if mmc != nil && !params.MMCEnabled {
		mmc = disabledMMC{mmc}
	}
	surfaces, err := surface.New(surface.Config{
		Allocator: p.Allocator,
		MMC:       mmc,
		Logger:    logger,
		Observer:  observer,
	})
	if err != nil {
		return nil, err
	}

	copier, err := mediacopy.NewDispatcher(mediacopy.Config{
		Querier:           p.OS,
		Platform:          p.CopyPlatform,
		Engines:           p.CopyEngines,
		AllowProtectedBlt: params.AllowProtectedBlt,
		Logger:            logger,
		Observer:          observer,
		Tracer:            options.Tracer,
	})
	if err != nil {
		return nil, err
	}

	ctxOpts := gpuctx.Options{Logger: logger, Observer: observer}
	var contexts gpuctx.Manager
	if params.UseOSInterface {
		contexts = gpuctx.NewInterfacePool(p.OS, ctxOpts)
	} else {
		contexts = gpuctx.NewContextPool(p.Engines, p.OSContext, ctxOpts)
	}

	d := &Driver{
		params:   params,
		contexts: contexts,
		broker:   cmdbuf.NewBroker(contexts, p.OS, cmdbuf.Options{Logger: logger, Observer: observer}),
		copier:   copier,
		surfaces: surfaces,
		metrics:  metrics,
		observer: observer,
		logger:   logger.WithComponent("driver"),
	}

	for _, ft := range params.Functions {
		if err := contexts.CreateContext(ft); err != nil {
			d.logger.Error("failed to create context", "func", ft.String(), "error", err)
			_ = d.Close()
			return nil, err
		}
	}

	d.logger.Info("driver opened", "contexts", contexts.Len(), "copy_method", params.CopyMethod.String(),
		"mmc", params.MMCEnabled, "os_interface_pool", params.UseOSInterface)
	return d, nil
}

// disabledMMC reports compression off regardless of the platform.
type disabledMMC struct{ MMC }

func (disabledMMC) Enabled() bool { return false }

func (disabledMMC) SurfaceMode(info *gpu.ResourceInfo) { info.CompressionMode = gpu.MMCDisabled }

func (d *Driver) checkOpen(op string) error {
	if d == nil || d.closed.Load() {
		return NewError(op, ErrCodeUninitialized, "driver is closed")
	}
	return nil
}

// CreateContext creates the hardware context for ft. It is idempotent.
func (d *Driver) CreateContext(ft FuncType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen("CREATE_CONTEXT"); err != nil {
		return err
	}
	return d.contexts.CreateContext(ft)
}

// SelectContext makes ft's context current for command buffer operations.
func (d *Driver) SelectContext(ft FuncType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen("SET_CONTEXT"); err != nil {
		return err
	}
	return d.broker.Select(ft)
}

// DestroyContext destroys ft's context, dropping its outstanding buffers.
func (d *Driver) DestroyContext(ft FuncType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen("DESTROY_CONTEXT"); err != nil {
		return err
	}
	return d.broker.Destroy(ft)
}

// CurrentContext returns the selected function type.
func (d *Driver) CurrentContext() (FuncType, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.broker.Selected()
}

// AcquireCommandBuffer verifies capacity on the current context and hands
// out a command buffer sized by Params.
func (d *Driver) AcquireCommandBuffer(flags uint32) (*CommandBuffer, error) {
	return d.AcquireCommandBufferSized(d.params.CommandBufferSize, d.params.PatchListSize, flags)
}

// AcquireCommandBufferSized is AcquireCommandBuffer with explicit sizes.
func (d *Driver) AcquireCommandBufferSized(cmdSize, patchSize, flags uint32) (*CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen("GET_CMD_BUFFER"); err != nil {
		return nil, err
	}
	return d.broker.Acquire(cmdSize, patchSize, flags)
}

// ReturnCommandBuffer gives back a buffer that will not be submitted.
func (d *Driver) ReturnCommandBuffer(buf *CommandBuffer, flags uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen("RETURN_CMD_BUFFER"); err != nil {
		return err
	}
	return d.broker.Return(buf, flags)
}

// SubmitCommandBuffer submits the oldest outstanding buffer of the current
// context.
func (d *Driver) SubmitCommandBuffer(buf *CommandBuffer, nullRendering bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen("SUBMIT"); err != nil {
		return err
	}
	return d.broker.Submit(buf, nullRendering)
}

// Copy copies src into dst using Params.CopyMethod and returns the engine
// used.
func (d *Driver) Copy(ctx context.Context, src, dst ResourceHandle) (Engine, error) {
	return d.CopyWithMethod(ctx, src, dst, d.params.CopyMethod)
}

// CopyWithMethod copies src into dst with an explicit engine preference.
func (d *Driver) CopyWithMethod(ctx context.Context, src, dst ResourceHandle, method Method) (Engine, error) {
	if err := d.checkOpen("SURFACE_COPY"); err != nil {
		return 0, err
	}
	return d.copier.SurfaceCopy(ctx, src, dst, method)
}

// CopyCapabilities reports which engines could copy src into dst.
func (d *Driver) CopyCapabilities(src, dst ResourceHandle) (Caps, error) {
	return d.copier.Capabilities(src, dst)
}

// AuxCopy copies an auxiliary compression surface.
func (d *Driver) AuxCopy(src, dst ResourceHandle) error {
	return d.copier.AuxCopy(src, dst)
}

// Surfaces returns the surface allocator.
func (d *Driver) Surfaces() *SurfaceAllocator {
	return d.surfaces
}

// EndFrame marks a frame boundary: the recycle epoch advances and surfaces
// deferred more than RecycleDepth frames ago are freed. It returns the
// number freed.
func (d *Driver) EndFrame() int {
	epoch := d.surfaces.AdvanceEpoch()
	depth := max(d.params.RecycleDepth, 1)
	if epoch < depth {
		return 0
	}
	return d.surfaces.FlushBefore(epoch - depth + 1)
}

// Params returns the parameters the driver was opened with.
func (d *Driver) Params() Params {
	return d.params
}

// Metrics returns the current metrics for the driver
func (d *Driver) Metrics() *Metrics {
	if d == nil {
		return nil
	}
	return d.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of driver metrics
func (d *Driver) MetricsSnapshot() MetricsSnapshot {
	if d == nil || d.metrics == nil {
		return MetricsSnapshot{}
	}
	return d.metrics.Snapshot()
}

// DriverInfo summarizes driver state
type DriverInfo struct {
	Contexts        int    `json:"contexts"`
	Current         string `json:"current"`
	Outstanding     int    `json:"outstanding_cmd_buffers"`
	LiveSurfaces    int    `json:"live_surfaces"`
	RecycledPending int    `json:"recycled_pending"`
	Epoch           uint64 `json:"epoch"`
	CopyMethod      string `json:"copy_method"`
	Closed          bool   `json:"closed"`
}

// Info returns a summary of the driver's state
func (d *Driver) Info() DriverInfo {
	if d == nil {
		return DriverInfo{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	info := DriverInfo{
		Contexts:        d.contexts.Len(),
		Outstanding:     d.broker.Outstanding(),
		LiveSurfaces:    d.surfaces.Live(),
		RecycledPending: d.surfaces.Recycled(),
		Epoch:           d.surfaces.Epoch(),
		CopyMethod:      d.params.CopyMethod.String(),
		Closed:          d.closed.Load(),
	}
	if ft, ok := d.broker.Selected(); ok {
		info.Current = ft.String()
	}
	return info
}

// Close destroys every context, drops unsubmitted command buffers and frees
// every surface, including deferred ones. Teardown failures are logged and
// returned combined. Close is safe to call twice.
func (d *Driver) Close() error {
	if d == nil {
		return nil
	}
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs error
	if err := d.contexts.Close(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "close contexts"))
	}
	d.broker.Reset()
	if err := d.surfaces.Close(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "close surfaces"))
	}
	d.metrics.Stop()
	d.logger.Info("driver closed")
	return errs
}
