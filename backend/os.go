package backend

import (
	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/interfaces"
)

// OSInterface is the simulated OS/driver layer. It keeps one hardware
// context per context type and routes command-buffer calls to the current
// one.
type OSInterface struct {
	dev      *Device
	contexts map[gpu.ContextType]*HardwareContext
	current  *HardwareContext
}

// NewOSInterface returns an OS interface over dev.
func NewOSInterface(dev *Device) *OSInterface {
	return &OSInterface{dev: dev, contexts: make(map[gpu.ContextType]*HardwareContext)}
}

// ResourceInfo implements interfaces.ResourceQuerier
func (o *OSInterface) ResourceInfo(res gpu.ResourceHandle) (gpu.ResourceInfo, error) {
	return o.dev.mem.ResourceInfo(res)
}

// CreateGPUContext implements interfaces.OSInterface
func (o *OSInterface) CreateGPUContext(ctxType gpu.ContextType, node gpu.Node) error {
	if _, ok := o.contexts[ctxType]; ok {
		return nil
	}
	if !o.dev.HasNode(node) {
		return gpu.NewError("CREATE_GPU_CONTEXT", gpu.CodeCreationFailed, "engine node "+node.String()+" not present")
	}
	o.contexts[ctxType] = newHardwareContext(o.dev, node, o.dev.cbm, ctxType)
	return nil
}

// DestroyGPUContext implements interfaces.OSInterface
func (o *OSInterface) DestroyGPUContext(ctxType gpu.ContextType) error {
	hw, ok := o.contexts[ctxType]
	if !ok {
		return gpu.NewError("DESTROY_GPU_CONTEXT", gpu.CodeNotFound, "no "+ctxType.String()+" context")
	}
	delete(o.contexts, ctxType)
	if o.current == hw {
		o.current = nil
	}
	return nil
}

// SetGPUContext implements interfaces.OSInterface
func (o *OSInterface) SetGPUContext(ctxType gpu.ContextType) error {
	hw, ok := o.contexts[ctxType]
	if !ok {
		return gpu.NewError("SET_GPU_CONTEXT", gpu.CodeNotFound, "no "+ctxType.String()+" context")
	}
	o.current = hw
	return nil
}

func (o *OSInterface) cur(op string) (*HardwareContext, error) {
	if o.current == nil {
		return nil, gpu.NewError(op, gpu.CodeNoCurrentContext, "no GPU context set")
	}
	return o.current, nil
}

// GetCommandBuffer implements interfaces.OSInterface
func (o *OSInterface) GetCommandBuffer(flags uint32) (*gpu.CommandBuffer, error) {
	hw, err := o.cur("GET_CMD_BUFFER")
	if err != nil {
		return nil, err
	}
	return hw.GetCommandBuffer(flags)
}

// ReturnCommandBuffer implements interfaces.OSInterface
func (o *OSInterface) ReturnCommandBuffer(buf *gpu.CommandBuffer, flags uint32) {
	if hw, err := o.cur("RETURN_CMD_BUFFER"); err == nil {
		hw.ReturnCommandBuffer(buf, flags)
	}
}

// SubmitCommandBuffer implements interfaces.OSInterface
func (o *OSInterface) SubmitCommandBuffer(buf *gpu.CommandBuffer, nullRendering bool) error {
	hw, err := o.cur("SUBMIT")
	if err != nil {
		return err
	}
	return hw.SubmitCommandBuffer(o, buf, nullRendering)
}

// ResizeCommandBufferAndPatchList implements interfaces.OSInterface
func (o *OSInterface) ResizeCommandBufferAndPatchList(cmdSize, patchSize uint32, flags uint32) error {
	hw, err := o.cur("RESIZE_CMD_BUFFER")
	if err != nil {
		return err
	}
	if err := hw.VerifyCommandBufferSize(cmdSize); err != nil {
		return err
	}
	return hw.VerifyPatchListSize(patchSize)
}

// Lock implements interfaces.OSInterface
func (o *OSInterface) Lock(res gpu.ResourceHandle, flags gpu.LockFlags) ([]byte, error) {
	return o.dev.mem.Lock(res, flags)
}

// Unlock implements interfaces.OSInterface
func (o *OSInterface) Unlock(res gpu.ResourceHandle) error {
	return o.dev.mem.Unlock(res)
}

// Feature implements interfaces.OSInterface
func (o *OSInterface) Feature(name string) bool {
	return o.dev.Feature(name)
}

var _ interfaces.OSInterface = (*OSInterface)(nil)
