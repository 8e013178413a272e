// Package interfaces defines the collaborators the driver core consumes but
// does not implement: the OS/driver abstraction, the engine manager that
// instantiates hardware contexts, the copy engines and the low-level
// resource allocator.
package interfaces

import "github.com/ehrlich-b/go-mediadrv/internal/gpu"

// HardwareContext is an engine-bound execution context. It owns its
// command-stream state and command buffer storage.
type HardwareContext interface {
	// Node returns the engine node the context is bound to.
	Node() gpu.Node

	// Type returns the context kind it was created with.
	Type() gpu.ContextType

	// VerifyCommandBufferSize checks (and may grow) the command buffer
	// capacity. It fails if size exceeds hardware or driver limits.
	VerifyCommandBufferSize(size uint32) error

	// VerifyPatchListSize checks (and may grow) the patch list capacity.
	VerifyPatchListSize(size uint32) error

	// GetCommandBuffer hands out a command buffer for recording.
	GetCommandBuffer(flags uint32) (*gpu.CommandBuffer, error)

	// ReturnCommandBuffer gives back a buffer that will not be submitted.
	ReturnCommandBuffer(buf *gpu.CommandBuffer, flags uint32)

	// SubmitCommandBuffer enqueues the buffer for execution. The GPU runs
	// it asynchronously; the call returns once it is queued.
	SubmitCommandBuffer(os OSInterface, buf *gpu.CommandBuffer, nullRendering bool) error
}

// CommandBufferManager supplies command-buffer storage to contexts.
type CommandBufferManager interface {
	// PickupCommandBuffer returns storage of at least size bytes.
	PickupCommandBuffer(size uint32) (*gpu.CommandBuffer, error)

	// ReleaseCommandBuffer returns storage for reuse.
	ReleaseCommandBuffer(buf *gpu.CommandBuffer)
}

// OSContext is the per-device OS state a context pool is created against.
type OSContext interface {
	// CommandBufferManager may return nil before the device is initialized.
	CommandBufferManager() CommandBufferManager
}

// EngineManager physically instantiates and destroys hardware contexts.
type EngineManager interface {
	// CreateContext returns nil if the engine could not produce a context.
	CreateContext(node gpu.Node, mgr CommandBufferManager, ctxType gpu.ContextType) HardwareContext

	// DestroyContext releases a context created by CreateContext.
	DestroyContext(hw HardwareContext)
}

// ResourceQuerier reports the live description of a resource.
type ResourceQuerier interface {
	ResourceInfo(res gpu.ResourceHandle) (gpu.ResourceInfo, error)
}

// OSInterface is the OS/driver abstraction addressing GPU contexts by
// context type rather than by object.
type OSInterface interface {
	ResourceQuerier

	CreateGPUContext(ctxType gpu.ContextType, node gpu.Node) error
	DestroyGPUContext(ctxType gpu.ContextType) error
	SetGPUContext(ctxType gpu.ContextType) error

	GetCommandBuffer(flags uint32) (*gpu.CommandBuffer, error)
	ReturnCommandBuffer(buf *gpu.CommandBuffer, flags uint32)
	SubmitCommandBuffer(buf *gpu.CommandBuffer, nullRendering bool) error
	ResizeCommandBufferAndPatchList(cmdSize, patchSize uint32, flags uint32) error

	Lock(res gpu.ResourceHandle, flags gpu.LockFlags) ([]byte, error)
	Unlock(res gpu.ResourceHandle) error

	// Feature reports a SKU or workaround table entry.
	Feature(name string) bool
}

// CopyEngine performs a surface copy on one hardware path.
type CopyEngine interface {
	Copy(src, dst gpu.ResourceHandle) error
}

// ResourceAllocator is the low-level GPU memory allocator.
type ResourceAllocator interface {
	ResourceQuerier

	// Allocate creates a resource and returns its description.
	Allocate(params gpu.AllocParams, zero bool) (gpu.ResourceInfo, error)

	// Free releases a resource. SynchronousDestroy waits for GPU use.
	Free(res gpu.ResourceHandle, flags gpu.FreeFlags) error

	Lock(res gpu.ResourceHandle, flags gpu.LockFlags) ([]byte, error)
	Unlock(res gpu.ResourceHandle) error

	// Fill writes value into the first size bytes of the resource.
	Fill(res gpu.ResourceHandle, size uint32, value byte) error

	// SyncOnResource waits for pending GPU access to the resource.
	SyncOnResource(res gpu.ResourceHandle, write bool) error

	// SyncFreeNeeded reports whether freeing the resource must be
	// synchronous to keep the compression address table consistent.
	SyncFreeNeeded(info gpu.ResourceInfo) bool
}

// MMC answers memory compression questions for the current platform.
type MMC interface {
	Enabled() bool
	CompressibleSurfaceSupported() bool

	// SurfaceMode fills in the compression mode of a fresh surface.
	SurfaceMode(info *gpu.ResourceInfo)

	// SurfaceFormat returns the compression format code for the surface.
	SurfaceFormat(info gpu.ResourceInfo) uint32
}

// Observer receives operational events for metrics collection.
type Observer interface {
	ObserveContext(fn gpu.FuncType, created bool)
	ObserveCommandBuffer(op string, latencyNs uint64, success bool)
	ObserveCopy(engine string, bytes uint64, latencyNs uint64, success bool)
	ObserveSurface(op string, bytes uint64)
}
