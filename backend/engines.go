package backend

import (
	"fmt"
	"sync"

	"github.com/ehrlich-b/go-mediadrv/internal/constants"
	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/interfaces"
)

// HardwareContext is a simulated engine-bound context.
type HardwareContext struct {
	dev       *Device
	node      gpu.Node
	ctxType   gpu.ContextType
	cbm       interfaces.CommandBufferManager
	cmdSize   uint32
	patchSize uint32
}

func newHardwareContext(dev *Device, node gpu.Node, cbm interfaces.CommandBufferManager, ctxType gpu.ContextType) *HardwareContext {
	return &HardwareContext{
		dev:       dev,
		node:      node,
		ctxType:   ctxType,
		cbm:       cbm,
		cmdSize:   constants.DefaultCommandBufferSize,
		patchSize: constants.DefaultPatchListSize,
	}
}

// Node implements interfaces.HardwareContext
func (h *HardwareContext) Node() gpu.Node { return h.node }

// Type implements interfaces.HardwareContext
func (h *HardwareContext) Type() gpu.ContextType { return h.ctxType }

// VerifyCommandBufferSize implements interfaces.HardwareContext. The
// buffer grows to size when it is within the hardware limit.
func (h *HardwareContext) VerifyCommandBufferSize(size uint32) error {
	if size > constants.MaxCommandBufferSize {
		return gpu.NewError("VERIFY_CMD_BUFFER", gpu.CodeCapacityExceeded,
			fmt.Sprintf("%d bytes exceeds limit of %d", size, constants.MaxCommandBufferSize))
	}
	if size > h.cmdSize {
		h.cmdSize = size
	}
	return nil
}

// VerifyPatchListSize implements interfaces.HardwareContext
func (h *HardwareContext) VerifyPatchListSize(size uint32) error {
	if size > constants.MaxPatchListSize {
		return gpu.NewError("VERIFY_PATCH_LIST", gpu.CodeCapacityExceeded,
			fmt.Sprintf("%d entries exceeds limit of %d", size, constants.MaxPatchListSize))
	}
	if size > h.patchSize {
		h.patchSize = size
	}
	return nil
}

// GetCommandBuffer implements interfaces.HardwareContext
func (h *HardwareContext) GetCommandBuffer(flags uint32) (*gpu.CommandBuffer, error) {
	buf, err := h.cbm.PickupCommandBuffer(h.cmdSize)
	if err != nil {
		return nil, err
	}
	buf.Context = h.ctxType
	buf.PatchCapacity = int(h.patchSize)
	return buf, nil
}

// ReturnCommandBuffer implements interfaces.HardwareContext
func (h *HardwareContext) ReturnCommandBuffer(buf *gpu.CommandBuffer, flags uint32) {
	h.cbm.ReleaseCommandBuffer(buf)
}

// SubmitCommandBuffer implements interfaces.HardwareContext. Execution is
// immediate; the storage goes back to the manager afterwards.
func (h *HardwareContext) SubmitCommandBuffer(os interfaces.OSInterface, buf *gpu.CommandBuffer, nullRendering bool) error {
	if buf == nil {
		return gpu.NewError("SUBMIT", gpu.CodeInvalidParameter, "nil command buffer")
	}
	if buf.Context != h.ctxType {
		return gpu.NewError("SUBMIT", gpu.CodeInvalidParameter,
			fmt.Sprintf("buffer recorded for %s submitted on %s", buf.Context, h.ctxType))
	}
	h.dev.execute(h.node, buf, nullRendering)
	h.cbm.ReleaseCommandBuffer(buf)
	return nil
}

// EngineManager creates simulated hardware contexts on the device's nodes.
type EngineManager struct {
	dev *Device

	mu   sync.Mutex
	live map[*HardwareContext]struct{}
}

// NewEngineManager returns an engine manager for dev.
func NewEngineManager(dev *Device) *EngineManager {
	return &EngineManager{dev: dev, live: make(map[*HardwareContext]struct{})}
}

// CreateContext implements interfaces.EngineManager. It returns nil when the
// node is absent from the device.
func (e *EngineManager) CreateContext(node gpu.Node, mgr interfaces.CommandBufferManager, ctxType gpu.ContextType) interfaces.HardwareContext {
	if mgr == nil || !e.dev.HasNode(node) {
		e.dev.logger.Warn("engine node unavailable", "node", node.String(), "context", ctxType.String())
		return nil
	}
	hw := newHardwareContext(e.dev, node, mgr, ctxType)
	e.mu.Lock()
	e.live[hw] = struct{}{}
	e.mu.Unlock()
	return hw
}

// DestroyContext implements interfaces.EngineManager
func (e *EngineManager) DestroyContext(hw interfaces.HardwareContext) {
	h, ok := hw.(*HardwareContext)
	if !ok {
		return
	}
	e.mu.Lock()
	delete(e.live, h)
	e.mu.Unlock()
}

// Live returns the number of contexts created and not destroyed.
func (e *EngineManager) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

var (
	_ interfaces.HardwareContext = (*HardwareContext)(nil)
	_ interfaces.EngineManager   = (*EngineManager)(nil)
)
