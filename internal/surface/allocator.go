// Package surface allocates, reallocates and destroys GPU surfaces on top of
// the low-level resource allocator. Surfaces own their resource; views
// borrow one. Destruction can be deferred into an epoch-tagged recycle list
// that the pipeline flushes at frame boundaries.
package surface

import (
	"fmt"
	"math"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/interfaces"
	"github.com/ehrlich-b/go-mediadrv/internal/logging"
)

// Config configures an Allocator.
type Config struct {
	// Allocator is the low-level resource allocator. Required.
	Allocator interfaces.ResourceAllocator

	// MMC answers compression questions. Required.
	MMC interfaces.MMC

	Logger   *logging.Logger
	Observer interfaces.Observer
}

type recycled struct {
	surf  *Surface
	epoch uint64
}

// Allocator manages surface lifetimes. It is safe for concurrent use.
type Allocator struct {
	mu      sync.Mutex
	low     interfaces.ResourceAllocator
	mmc     interfaces.MMC
	live    map[gpu.ResourceHandle]*Surface
	recycle []recycled
	epoch   uint64

	logger   *logging.Logger
	observer interfaces.Observer
}

// New returns an Allocator over cfg's collaborators.
func New(cfg Config) (*Allocator, error) {
	if cfg.Allocator == nil {
		return nil, gpu.NewError("NEW_ALLOCATOR", gpu.CodeNullDependency, "resource allocator not set")
	}
	if cfg.MMC == nil {
		return nil, gpu.NewError("NEW_ALLOCATOR", gpu.CodeNullDependency, "MMC interface not set")
	}
	return &Allocator{
		low:      cfg.Allocator,
		mmc:      cfg.MMC,
		live:     make(map[gpu.ResourceHandle]*Surface),
		logger:   logging.OrDefault(cfg.Logger).WithComponent("surface"),
		observer: cfg.Observer,
	}, nil
}

func (a *Allocator) observe(op string, bytes uint32) {
	if a.observer != nil {
		a.observer.ObserveSurface(op, uint64(bytes))
	}
}

// Allocate creates an owned surface. Buffer format requests are folded into
// a single row of width*height bytes.
func (a *Allocator) Allocate(params gpu.AllocParams, zero bool) (*Surface, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocateLocked(params, zero)
}

func (a *Allocator) allocateLocked(params gpu.AllocParams, zero bool) (*Surface, error) {
	var bufW, bufH uint32
	if params.Format == gpu.FormatBuffer {
		bufW, bufH = params.Width, params.Height
		size := uint64(params.Width) * uint64(params.Height)
		if size > math.MaxUint32 {
			return nil, gpu.NewError("ALLOCATE", gpu.CodeInvalidParameter,
				fmt.Sprintf("buffer %dx%d exceeds the addressable size", bufW, bufH))
		}
		params.Width = uint32(size)
		params.Height = 1
	}
	if !a.mmc.Enabled() {
		params.CompressionMode = gpu.MMCDisabled
	}

	info, err := a.low.Allocate(params, zero)
	if err != nil {
		a.logger.WithSurface(params.Name).WithError(err).Warn("allocation failed", "format", params.Format.String(),
			"width", params.Width, "height", params.Height)
		return nil, err
	}
	info.Format = params.Format
	a.setMMCFlags(&info)

	desc := Descriptor{ResourceInfo: info, BufferWidth: bufW, BufferHeight: bufH}
	updatePlaneOffsets(&desc)

	s := &Surface{name: params.Name, desc: desc}
	a.live[info.Handle] = s
	a.observe("allocate", info.Size)
	a.logger.WithSurface(params.Name).Debug("surface allocated", "handle", uint64(info.Handle),
		"format", info.Format.String(), "width", info.Width, "height", info.Height,
		"pitch", info.Pitch, "mmc", info.CompressionMode.String())
	return s, nil
}

// setMMCFlags applies the platform's compression mode. Only Y and YS tiled
// surfaces can be compressed; Compressible is left as allocated because it
// affects size and pitch.
func (a *Allocator) setMMCFlags(info *gpu.ResourceInfo) {
	a.mmc.SurfaceMode(info)
	if info.CompressionMode != gpu.MMCDisabled && (info.TileType == gpu.TileY || info.TileType == gpu.TileYS) {
		info.Compressible = true
		info.Compressed = true
		info.CompressionFormat = a.mmc.SurfaceFormat(*info)
		return
	}
	info.Compressed = false
	info.CompressionMode = gpu.MMCDisabled
	info.CompressionFormat = 0
}

// Request describes the surface a pipeline stage wants for this frame.
type Request struct {
	Name            string
	Format          gpu.Format
	Type            gpu.ResourceType
	TileType        gpu.TileType
	Width           uint32
	Height          uint32
	Compressible    bool
	CompressionMode gpu.MMCMode
	MemType         gpu.MemPool
	NotLockable     bool

	// Zero fills fresh allocations.
	Zero bool

	// Deferred parks the replaced surface on the recycle list instead of
	// freeing it immediately.
	Deferred bool
}

func matches(d Descriptor, r Request) bool {
	if d.Format != r.Format || d.Compressible != r.Compressible ||
		d.CompressionMode != r.CompressionMode || d.TileType != r.TileType {
		return false
	}
	if r.Format == gpu.FormatBuffer {
		return d.BufferWidth == r.Width && d.BufferHeight == r.Height
	}
	return d.Width == r.Width && d.Height == r.Height
}

// Reallocate returns cur unchanged if it already satisfies req. Otherwise
// cur is torn down and a fresh surface is allocated; the bool reports which
// happened. cur must not be used after a reallocation, even a failed one.
func (a *Allocator) Reallocate(cur *Surface, req Request) (*Surface, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mmc.Enabled() || !a.mmc.CompressibleSurfaceSupported() {
		req.Compressible = false
		req.CompressionMode = gpu.MMCDisabled
	}

	if cur != nil && !cur.desc.Handle.IsNull() && matches(cur.desc, req) {
		a.observe("reuse", cur.desc.Size)
		return cur, false, nil
	}

	params := gpu.AllocParams{
		Name:            req.Name,
		Type:            req.Type,
		Format:          req.Format,
		Width:           req.Width,
		Height:          req.Height,
		ArraySize:       1,
		TileType:        req.TileType,
		Compressible:    req.Compressible,
		CompressionMode: req.CompressionMode,
		MemType:         req.MemType,
		NotLockable:     req.NotLockable,
	}

	if cur != nil {
		// Reuse the resource type when the tiling is what the caller expects.
		if cur.desc.TileType == req.TileType {
			params.Type = cur.desc.Type
		}
		if err := a.teardownLocked(cur, req.Deferred); err != nil {
			return nil, false, err
		}
	}

	s, err := a.allocateLocked(params, req.Zero)
	if err != nil {
		return nil, false, err
	}
	if !matches(s.desc, req) {
		a.logger.WithSurface(req.Name).Warn("reallocated surface differs from request",
			"format", s.desc.Format.String(), "tile", s.desc.TileType.String(), "mmc", s.desc.CompressionMode.String())
	}
	a.observe("reallocate", s.desc.Size)
	return s, true, nil
}

// teardownLocked releases a surface being replaced. Compressed surfaces are
// freed synchronously so the aux table is updated before reuse, even when a
// deferred destroy was requested.
func (a *Allocator) teardownLocked(s *Surface, deferred bool) error {
	if _, ok := a.live[s.desc.Handle]; !ok {
		return gpu.NewError("REALLOCATE", gpu.CodeInvalidHandle, "surface "+s.name+" is not live")
	}
	if a.low.SyncFreeNeeded(s.desc.ResourceInfo) {
		a.logger.WithSurface(s.name).Debug("synchronous destroy for compressed surface")
		return a.freeLocked(s, gpu.FreeFlags{SynchronousDestroy: true})
	}
	if deferred {
		a.deferLocked(s)
		return nil
	}
	return a.freeLocked(s, gpu.FreeFlags{})
}

func (a *Allocator) freeLocked(s *Surface, flags gpu.FreeFlags) error {
	delete(a.live, s.desc.Handle)
	if err := a.low.Free(s.desc.Handle, flags); err != nil {
		return err
	}
	a.observe("free", s.desc.Size)
	return nil
}

func (a *Allocator) deferLocked(s *Surface) {
	delete(a.live, s.desc.Handle)
	a.recycle = append(a.recycle, recycled{surf: s, epoch: a.epoch})
	a.observe("defer", s.desc.Size)
}

// Destroy releases *s and sets it to nil. With deferred the resource stays
// allocated on the recycle list until a flush. A nil surface is a no-op.
func (a *Allocator) Destroy(s **Surface, deferred bool) error {
	if s == nil || *s == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	surf := *s
	if _, ok := a.live[surf.desc.Handle]; !ok {
		return gpu.NewError("DESTROY_SURFACE", gpu.CodeInvalidHandle, "surface "+surf.name+" is not live")
	}
	*s = nil

	if deferred {
		a.deferLocked(surf)
		return nil
	}
	var flags gpu.FreeFlags
	if a.low.SyncFreeNeeded(surf.desc.ResourceInfo) {
		flags.SynchronousDestroy = true
	}
	return a.freeLocked(surf, flags)
}

// Release drops a view and sets it to nil. The borrowed resource is never
// freed.
func (a *Allocator) Release(v **View) {
	if v == nil {
		return
	}
	*v = nil
}

// AllocateView returns a view sharing t's resource.
func (a *Allocator) AllocateView(t Target) (*View, error) {
	d := t.Descriptor()
	if d.Handle.IsNull() {
		return nil, gpu.NewError("ALLOCATE_VIEW", gpu.CodeInvalidHandle, "null resource")
	}
	return &View{desc: d}, nil
}

// ViewOf wraps a resource description as a view. updateOffsets derives the
// plane offsets from the render offsets in info.
func (a *Allocator) ViewOf(info gpu.ResourceInfo, updateOffsets bool) (*View, error) {
	if info.Handle.IsNull() {
		return nil, gpu.NewError("ALLOCATE_VIEW", gpu.CodeInvalidHandle, "null resource")
	}
	v := &View{desc: Descriptor{ResourceInfo: info}}
	if updateOffsets {
		updatePlaneOffsets(&v.desc)
	}
	return v, nil
}

// Wrap builds a view of an externally owned resource, querying its live
// description and applying the given format and compression flags.
func (a *Allocator) Wrap(res gpu.ResourceHandle, format gpu.Format) (*View, error) {
	if res.IsNull() {
		return nil, gpu.NewError("WRAP_RESOURCE", gpu.CodeInvalidHandle, "null resource")
	}
	info, err := a.low.ResourceInfo(res)
	if err != nil {
		return nil, err
	}
	info.Format = format
	a.setMMCFlags(&info)
	v := &View{desc: Descriptor{ResourceInfo: info}}
	updatePlaneOffsets(&v.desc)
	return v, nil
}

// CopyView points dst at src's resource and description.
func (a *Allocator) CopyView(dst *View, src Target) error {
	if dst == nil {
		return gpu.NewError("COPY_VIEW", gpu.CodeInvalidParameter, "nil destination view")
	}
	dst.desc = src.Descriptor()
	return nil
}

// Refresh re-reads s's resource description, keeping its format and buffer
// shape.
func (a *Allocator) Refresh(s *Surface) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	info, err := a.low.ResourceInfo(s.desc.Handle)
	if err != nil {
		return err
	}
	info.Format = s.desc.Format
	a.setMMCFlags(&info)
	s.desc.ResourceInfo = info
	updatePlaneOffsets(&s.desc)
	return nil
}

// Live returns the number of owned surfaces not destroyed or deferred.
func (a *Allocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Close flushes the recycle list and frees every live surface. Failures
// are logged, cleanup continues, and the combined failures are returned.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, errs := a.flushLocked(func(recycled) bool { return true })
	for h, s := range a.live {
		var flags gpu.FreeFlags
		if a.low.SyncFreeNeeded(s.desc.ResourceInfo) {
			flags.SynchronousDestroy = true
		}
		if err := a.freeLocked(s, flags); err != nil {
			a.logger.WithSurface(s.name).WithError(err).Warn("failed to free surface", "handle", uint64(h))
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "free surface %q", s.name))
		}
	}
	return errs
}
