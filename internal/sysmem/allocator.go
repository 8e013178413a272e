// Package sysmem implements the low-level resource allocator over anonymous
// mmap'd system memory. It stands in for the OS allocator on hosts without a
// media GPU and is what the simulated backend and the tests run against.
package sysmem

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-mediadrv/internal/constants"
	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/interfaces"
)

type resource struct {
	info    gpu.ResourceInfo
	mem     []byte
	locks   int
	pending bool // GPU work outstanding since the last sync
	noLock  bool
}

// Stats is a point-in-time view of allocator usage.
type Stats struct {
	Live       int
	Bytes      uint64
	Allocs     uint64
	Frees      uint64
	SyncFrees  uint64
	Syncs      uint64
	PeakBytes  uint64
	BudgetLeft uint64
}

// Allocator hands out mmap-backed resources. It is safe for concurrent use.
type Allocator struct {
	mu        sync.Mutex
	resources map[gpu.ResourceHandle]*resource
	next      atomic.Uint64
	budget    uint64
	used      uint64
	peak      uint64

	allocs    uint64
	frees     uint64
	syncFrees uint64
	syncs     uint64
}

// New creates an allocator that refuses allocations beyond budget bytes.
// A zero budget means unlimited.
func New(budget uint64) *Allocator {
	return &Allocator{
		resources: make(map[gpu.ResourceHandle]*resource),
		budget:    budget,
	}
}

// Allocate implements interfaces.ResourceAllocator
func (a *Allocator) Allocate(params gpu.AllocParams, zero bool) (gpu.ResourceInfo, error) {
	info, err := layout(params)
	if err != nil {
		return gpu.ResourceInfo{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.budget > 0 && a.used+uint64(info.Size) > a.budget {
		return gpu.ResourceInfo{}, gpu.NewError("ALLOCATE", gpu.CodeOutOfMemory,
			fmt.Sprintf("%q needs %d bytes, %d of %d in use", params.Name, info.Size, a.used, a.budget))
	}

	// Anonymous mappings are zero-filled, so zero needs no extra work.
	_ = zero
	mem, err := unix.Mmap(-1, 0, int(info.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return gpu.ResourceInfo{}, gpu.WrapError("ALLOCATE", errors.Wrapf(err, "mmap %d bytes for %q", info.Size, params.Name))
	}

	info.Handle = gpu.ResourceHandle(a.next.Add(1))
	a.resources[info.Handle] = &resource{info: info, mem: mem, noLock: params.NotLockable}
	a.used += uint64(info.Size)
	if a.used > a.peak {
		a.peak = a.used
	}
	a.allocs++
	return info, nil
}

// Free implements interfaces.ResourceAllocator
func (a *Allocator) Free(res gpu.ResourceHandle, flags gpu.FreeFlags) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.resources[res]
	if !ok {
		return gpu.NewError("FREE", gpu.CodeInvalidHandle, "unknown resource")
	}
	if flags.SynchronousDestroy {
		a.syncLocked(r)
		a.syncFrees++
	}
	if err := unix.Munmap(r.mem); err != nil {
		return gpu.WrapError("FREE", errors.Wrap(err, "munmap"))
	}
	delete(a.resources, res)
	a.used -= uint64(r.info.Size)
	a.frees++
	return nil
}

// ResourceInfo implements interfaces.ResourceQuerier
func (a *Allocator) ResourceInfo(res gpu.ResourceHandle) (gpu.ResourceInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.resources[res]
	if !ok {
		return gpu.ResourceInfo{}, gpu.NewError("RESOURCE_INFO", gpu.CodeInvalidHandle, "unknown resource")
	}
	return r.info, nil
}

// Lock implements interfaces.ResourceAllocator. The returned slice aliases
// the resource memory until Unlock.
func (a *Allocator) Lock(res gpu.ResourceHandle, flags gpu.LockFlags) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.resources[res]
	if !ok {
		return nil, gpu.NewError("LOCK", gpu.CodeInvalidHandle, "unknown resource")
	}
	if r.noLock {
		return nil, gpu.NewError("LOCK", gpu.CodeInvalidParameter, "resource is not lockable")
	}
	if !flags.NoOverwrite {
		// A CPU mapping must observe completed GPU writes.
		a.syncLocked(r)
	}
	r.locks++
	return r.mem, nil
}

// Unlock implements interfaces.ResourceAllocator
func (a *Allocator) Unlock(res gpu.ResourceHandle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.resources[res]
	if !ok {
		return gpu.NewError("UNLOCK", gpu.CodeInvalidHandle, "unknown resource")
	}
	if r.locks == 0 {
		return gpu.NewError("UNLOCK", gpu.CodeInvalidParameter, "resource is not locked")
	}
	r.locks--
	return nil
}

// Fill implements interfaces.ResourceAllocator
func (a *Allocator) Fill(res gpu.ResourceHandle, size uint32, value byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.resources[res]
	if !ok {
		return gpu.NewError("FILL", gpu.CodeInvalidHandle, "unknown resource")
	}
	if size > uint32(len(r.mem)) {
		return gpu.NewError("FILL", gpu.CodeInvalidParameter, "fill exceeds resource size")
	}
	for i := range r.mem[:size] {
		r.mem[i] = value
	}
	return nil
}

// MarkBusy records outstanding GPU access to the resource. Engines call it
// when they touch memory so later syncs have something to wait for.
func (a *Allocator) MarkBusy(res gpu.ResourceHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.resources[res]; ok {
		r.pending = true
	}
}

// DeviceAccess returns the backing memory for engine-side access and marks
// the resource busy. Lockability does not apply to the device.
func (a *Allocator) DeviceAccess(res gpu.ResourceHandle) ([]byte, gpu.ResourceInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.resources[res]
	if !ok {
		return nil, gpu.ResourceInfo{}, gpu.NewError("DEVICE_ACCESS", gpu.CodeInvalidHandle, "unknown resource")
	}
	r.pending = true
	return r.mem, r.info, nil
}

// SyncOnResource implements interfaces.ResourceAllocator
func (a *Allocator) SyncOnResource(res gpu.ResourceHandle, write bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.resources[res]
	if !ok {
		return gpu.NewError("SYNC", gpu.CodeInvalidHandle, "unknown resource")
	}
	a.syncLocked(r)
	return nil
}

func (a *Allocator) syncLocked(r *resource) {
	if r.pending {
		r.pending = false
		a.syncs++
	}
}

// SyncFreeNeeded implements interfaces.ResourceAllocator. Compressed
// surfaces must be freed synchronously so the aux table is updated before
// the memory is reused.
func (a *Allocator) SyncFreeNeeded(info gpu.ResourceInfo) bool {
	return info.Compressed && info.CompressionMode != gpu.MMCDisabled
}

// SetAuxSurface marks a resource as carrying an auxiliary surface.
func (a *Allocator) SetAuxSurface(res gpu.ResourceHandle, aux bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.resources[res]
	if !ok {
		return gpu.NewError("SET_AUX", gpu.CodeInvalidHandle, "unknown resource")
	}
	r.info.AuxSurface = aux
	return nil
}

// UpdateCompression records the compression state decided by the caller.
func (a *Allocator) UpdateCompression(res gpu.ResourceHandle, mode gpu.MMCMode, compressed bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.resources[res]
	if !ok {
		return gpu.NewError("SET_MMC", gpu.CodeInvalidHandle, "unknown resource")
	}
	r.info.CompressionMode = mode
	r.info.Compressed = compressed
	return nil
}

// Stats returns current usage counters.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Stats{
		Live:      len(a.resources),
		Bytes:     a.used,
		Allocs:    a.allocs,
		Frees:     a.frees,
		SyncFrees: a.syncFrees,
		Syncs:     a.syncs,
		PeakBytes: a.peak,
	}
	if a.budget > 0 {
		s.BudgetLeft = a.budget - a.used
	}
	return s
}

// Close unmaps every live resource.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs error
	for h, r := range a.resources {
		if err := unix.Munmap(r.mem); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "munmap resource %d", h))
		}
		delete(a.resources, h)
	}
	a.used = 0
	return errs
}

// layout computes pitch, size and plane placement for a request.
func layout(p gpu.AllocParams) (gpu.ResourceInfo, error) {
	if p.Width == 0 || p.Height == 0 {
		return gpu.ResourceInfo{}, gpu.NewError("ALLOCATE", gpu.CodeInvalidParameter, "zero-sized resource")
	}
	if p.Type != gpu.ResourceBuffer && (p.Width > constants.MaxSurfaceDimension || p.Height > constants.MaxSurfaceDimension) {
		return gpu.ResourceInfo{}, gpu.NewError("ALLOCATE", gpu.CodeInvalidParameter, "surface dimension too large")
	}
	bpp, ok := bytesPerPixel[p.Format]
	if !ok {
		return gpu.ResourceInfo{}, gpu.NewError("ALLOCATE", gpu.CodeInvalidParameter, "unsupported format "+p.Format.String())
	}

	depth := p.Depth
	if depth == 0 {
		depth = 1
	}

	info := gpu.ResourceInfo{
		Type:            p.Type,
		Format:          p.Format,
		Width:           p.Width,
		Height:          p.Height,
		Depth:           depth,
		TileType:        p.TileType,
		Compressible:    p.Compressible,
		CompressionMode: p.CompressionMode,
	}
	// Only Y-major tilings carry compression metadata.
	if p.Compressible && p.CompressionMode != gpu.MMCDisabled && (p.TileType == gpu.TileY || p.TileType == gpu.TileYS) {
		info.Compressed = true
	} else {
		info.CompressionMode = gpu.MMCDisabled
	}
	if p.Protected {
		info.Protection = gpu.CPProtected
	}

	rowBytes := p.Width * bpp
	switch {
	case p.Format == gpu.FormatBuffer || p.Type == gpu.ResourceBuffer:
		info.Pitch = rowBytes
	case p.TileType == gpu.TileLinear:
		info.Pitch = alignUp(rowBytes, constants.LinearPitchAlignment)
	default:
		info.Pitch = alignUp(rowBytes, constants.PitchAlignment)
	}

	planeSize := info.Pitch * p.Height
	rows := p.Height
	switch p.Format {
	case gpu.FormatNV12, gpu.FormatP010:
		uv := planeSize
		rows += (p.Height + 1) / 2
		info.Offsets.Y = gpu.PlaneRenderOffset{}
		info.Offsets.U = gpu.PlaneRenderOffset{BaseOffset: uv, YOffset: p.Height}
		info.Offsets.V = info.Offsets.U
		info.Offsets.LockU, info.Offsets.LockV = uv, uv
	case gpu.FormatYV12:
		v := planeSize
		u := v + (info.Pitch/2)*((p.Height+1)/2)
		rows += (p.Height + 1) / 2
		info.Offsets.V = gpu.PlaneRenderOffset{BaseOffset: v, YOffset: p.Height}
		info.Offsets.U = gpu.PlaneRenderOffset{BaseOffset: u, YOffset: p.Height + (p.Height+1)/4}
		info.Offsets.LockV, info.Offsets.LockU = v, u
	case gpu.FormatRGBP:
		rows *= 3
		info.Offsets.U = gpu.PlaneRenderOffset{BaseOffset: planeSize, YOffset: p.Height}
		info.Offsets.V = gpu.PlaneRenderOffset{BaseOffset: 2 * planeSize, YOffset: 2 * p.Height}
		info.Offsets.LockU, info.Offsets.LockV = planeSize, 2*planeSize
	}
	info.Size = info.Pitch * rows * depth
	return info, nil
}

var bytesPerPixel = map[gpu.Format]uint32{
	gpu.FormatBuffer:       1,
	gpu.FormatNV12:         1,
	gpu.FormatP010:         2,
	gpu.FormatYUY2:         2,
	gpu.FormatAYUV:         4,
	gpu.FormatY410:         4,
	gpu.FormatYV12:         1,
	gpu.FormatA8R8G8B8:     4,
	gpu.FormatX8R8G8B8:     4,
	gpu.FormatA8B8G8R8:     4,
	gpu.FormatR5G6B5:       2,
	gpu.FormatRGB:          3,
	gpu.FormatA16B16G16R16: 8,
	gpu.FormatRGBP:         1,
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

var _ interfaces.ResourceAllocator = (*Allocator)(nil)
