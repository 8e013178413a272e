// Package gpuctx maintains the pool of hardware execution contexts, at most
// one per function type, and tracks which one is current. Two variants exist:
// ContextPool drives an engine manager that hands back context objects, and
// InterfacePool drives an OS interface that addresses contexts by type.
//
// Neither variant is safe for concurrent use. A pool belongs to one
// submission thread.
package gpuctx

import (
	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/interfaces"
	"github.com/ehrlich-b/go-mediadrv/internal/logging"
)

// Manager is the contract shared by both pool variants.
type Manager interface {
	// CreateContext ensures a context exists for ft. It is idempotent.
	CreateContext(ft gpu.FuncType) error

	// SetCurrent makes the context for ft the target of subsequent
	// command-buffer operations.
	SetCurrent(ft gpu.FuncType) error

	// DestroyContext tears down the context for ft and clears it as
	// current if needed.
	DestroyContext(ft gpu.FuncType) error

	// VerifyCapacity checks the current context can hold a command buffer
	// of cmdSize bytes with patchSize patch entries.
	VerifyCapacity(cmdSize, patchSize uint32) error

	GetCommandBuffer(flags uint32) (*gpu.CommandBuffer, error)
	ReturnCommandBuffer(buf *gpu.CommandBuffer, flags uint32) error
	SubmitCommandBuffer(os interfaces.OSInterface, buf *gpu.CommandBuffer, nullRendering bool) error

	// Current reports the current function type, if any.
	Current() (gpu.FuncType, bool)

	// Len returns the number of live contexts.
	Len() int

	// Close destroys every context. Failures are logged, not returned.
	Close() error
}

// Options carries optional collaborators for a pool.
type Options struct {
	Logger   *logging.Logger
	Observer interfaces.Observer
}

// current is the bookkeeping shared by both variants.
type current struct {
	ft  gpu.FuncType
	set bool
}

func (c *current) get() (gpu.FuncType, bool) { return c.ft, c.set }

func (c *current) is(ft gpu.FuncType) bool { return c.set && c.ft == ft }

func (c *current) clear() { c.ft, c.set = gpu.FuncInvalid, false }

func (c *current) use(ft gpu.FuncType) { c.ft, c.set = ft, true }

func noCurrent(op string) error {
	return gpu.NewError(op, gpu.CodeNoCurrentContext, "no context selected")
}

func observeContext(o interfaces.Observer, ft gpu.FuncType, created bool) {
	if o != nil {
		o.ObserveContext(ft, created)
	}
}
