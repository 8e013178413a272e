package surface

import (
	"github.com/cockroachdb/errors"

	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
)

// AdvanceEpoch starts a new frame epoch and returns it. Surfaces deferred
// from now on are tagged with the new epoch.
func (a *Allocator) AdvanceEpoch() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.epoch++
	return a.epoch
}

// Epoch returns the current frame epoch.
func (a *Allocator) Epoch() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.epoch
}

// Recycled returns the number of surfaces waiting on the recycle list.
func (a *Allocator) Recycled() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.recycle)
}

// FlushRecycleList frees every deferred surface and returns how many were
// freed.
func (a *Allocator) FlushRecycleList() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	freed, _ := a.flushLocked(func(recycled) bool { return true })
	return freed
}

// FlushBefore frees deferred surfaces tagged with an epoch older than
// epoch, leaving the rest in place.
func (a *Allocator) FlushBefore(epoch uint64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	freed, _ := a.flushLocked(func(r recycled) bool { return r.epoch < epoch })
	return freed
}

// flushLocked frees matching entries newest first. Free errors are logged
// and combined into the returned error; the entry is dropped either way.
func (a *Allocator) flushLocked(match func(recycled) bool) (int, error) {
	var errs error
	freed := 0
	kept := a.recycle[:0]
	for i := len(a.recycle) - 1; i >= 0; i-- {
		r := a.recycle[i]
		if !match(r) {
			continue
		}
		var flags gpu.FreeFlags
		if a.low.SyncFreeNeeded(r.surf.desc.ResourceInfo) {
			flags.SynchronousDestroy = true
		}
		if err := a.low.Free(r.surf.desc.Handle, flags); err != nil {
			a.logger.WithSurface(r.surf.name).WithError(err).Warn("failed to free recycled surface")
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "free recycled surface %q", r.surf.name))
		} else {
			a.observe("free", r.surf.desc.Size)
		}
		freed++
	}
	for _, r := range a.recycle {
		if !match(r) {
			kept = append(kept, r)
		}
	}
	for i := len(kept); i < len(a.recycle); i++ {
		a.recycle[i] = recycled{}
	}
	a.recycle = kept
	if freed > 0 {
		a.logger.Debug("recycle list flushed", "freed", freed, "remaining", len(kept))
	}
	return freed, errs
}
