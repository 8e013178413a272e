package gpuctx

import (
	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/interfaces"
)

type fakeHW struct {
	node     gpu.Node
	ctxType  gpu.ContextType
	cmdErr   error
	patchErr error
	calls    []string
	bufs     int
}

func (h *fakeHW) Node() gpu.Node { return h.node }
func (h *fakeHW) Type() gpu.ContextType { return h.ctxType }
func (h *fakeHW) VerifyCommandBufferSize(uint32) error {
	h.calls = append(h.calls, "verify-cmd")
	return h.cmdErr
}
func (h *fakeHW) VerifyPatchListSize(uint32) error {
	h.calls = append(h.calls, "verify-patch")
	return h.patchErr
}
func (h *fakeHW) GetCommandBuffer(uint32) (*gpu.CommandBuffer, error) {
	h.calls = append(h.calls, "get")
	h.bufs++
	return &gpu.CommandBuffer{ID: uint64(h.bufs), Context: h.ctxType, Data: make([]byte, 64)}, nil
}
func (h *fakeHW) ReturnCommandBuffer(*gpu.CommandBuffer, uint32) {
	h.calls = append(h.calls, "return")
}
func (h *fakeHW) SubmitCommandBuffer(interfaces.OSInterface, *gpu.CommandBuffer, bool) error {
	h.calls = append(h.calls, "submit")
	return nil
}

type fakeEngines struct {
	refuse    bool
	created   []*fakeHW
	destroyed int
}

func (e *fakeEngines) CreateContext(node gpu.Node, _ interfaces.CommandBufferManager, ctxType gpu.ContextType) interfaces.HardwareContext {
	if e.refuse {
		return nil
	}
	hw := &fakeHW{node: node, ctxType: ctxType}
	e.created = append(e.created, hw)
	return hw
}

func (e *fakeEngines) DestroyContext(interfaces.HardwareContext) { e.destroyed++ }

type fakeCBM struct{}

func (fakeCBM) PickupCommandBuffer(size uint32) (*gpu.CommandBuffer, error) {
	return &gpu.CommandBuffer{Data: make([]byte, size)}, nil
}
func (fakeCBM) ReleaseCommandBuffer(*gpu.CommandBuffer) {}

type fakeOSCtx struct{ mgr interfaces.CommandBufferManager }

func (c fakeOSCtx) CommandBufferManager() interfaces.CommandBufferManager { return c.mgr }

type fakeOS struct {
	createErr  error
	setErr     error
	destroyErr error
	resizeErr  error
	created    map[gpu.ContextType]gpu.Node
	current    gpu.ContextType
	calls      []string
}

func newFakeOS() *fakeOS {
	return &fakeOS{created: make(map[gpu.ContextType]gpu.Node)}
}

func (o *fakeOS) ResourceInfo(gpu.ResourceHandle) (gpu.ResourceInfo, error) {
	return gpu.ResourceInfo{}, nil
}
func (o *fakeOS) CreateGPUContext(ctxType gpu.ContextType, node gpu.Node) error {
	o.calls = append(o.calls, "create")
	if o.createErr != nil {
		return o.createErr
	}
	o.created[ctxType] = node
	return nil
}
func (o *fakeOS) DestroyGPUContext(ctxType gpu.ContextType) error {
	o.calls = append(o.calls, "destroy")
	if o.destroyErr != nil {
		return o.destroyErr
	}
	delete(o.created, ctxType)
	return nil
}
func (o *fakeOS) SetGPUContext(ctxType gpu.ContextType) error {
	o.calls = append(o.calls, "set")
	if o.setErr != nil {
		return o.setErr
	}
	o.current = ctxType
	return nil
}
func (o *fakeOS) GetCommandBuffer(uint32) (*gpu.CommandBuffer, error) {
	o.calls = append(o.calls, "get")
	return &gpu.CommandBuffer{Context: o.current, Data: make([]byte, 64)}, nil
}
func (o *fakeOS) ReturnCommandBuffer(*gpu.CommandBuffer, uint32) {
	o.calls = append(o.calls, "return")
}
func (o *fakeOS) SubmitCommandBuffer(*gpu.CommandBuffer, bool) error {
	o.calls = append(o.calls, "submit")
	return nil
}
func (o *fakeOS) ResizeCommandBufferAndPatchList(uint32, uint32, uint32) error {
	o.calls = append(o.calls, "resize")
	return o.resizeErr
}
func (o *fakeOS) Lock(gpu.ResourceHandle, gpu.LockFlags) ([]byte, error) { return nil, nil }
func (o *fakeOS) Unlock(gpu.ResourceHandle) error { return nil }
func (o *fakeOS) Feature(string) bool { return false }

type countingObserver struct {
	created, destroyed int
}

func (c *countingObserver) ObserveContext(_ gpu.FuncType, created bool) {
	if created {
		c.created++
	} else {
		c.destroyed++
	}
}
func (c *countingObserver) ObserveCommandBuffer(string, uint64, bool) {}
func (c *countingObserver) ObserveCopy(string, uint64, uint64, bool) {}
func (c *countingObserver) ObserveSurface(string, uint64) {}
