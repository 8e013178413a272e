package gpuctx

import (
	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/interfaces"
	"github.com/ehrlich-b/go-mediadrv/internal/logging"
)

// ContextPool creates contexts through an engine manager and keeps the
// returned context objects.
type ContextPool struct {
	engines  interfaces.EngineManager
	osCtx    interfaces.OSContext
	contexts map[gpu.FuncType]interfaces.HardwareContext
	cur      current
	logger   *logging.Logger
	observer interfaces.Observer
}

// NewContextPool returns an empty pool. Missing collaborators are reported
// when an operation needs them, not here.
func NewContextPool(engines interfaces.EngineManager, osCtx interfaces.OSContext, opts Options) *ContextPool {
	return &ContextPool{
		engines:  engines,
		osCtx:    osCtx,
		contexts: make(map[gpu.FuncType]interfaces.HardwareContext),
		cur:      current{ft: gpu.FuncInvalid},
		logger:   logging.OrDefault(opts.Logger).WithComponent("gpuctx"),
		observer: opts.Observer,
	}
}

// CreateContext implements Manager
func (p *ContextPool) CreateContext(ft gpu.FuncType) error {
	node, ctxType, err := gpu.NodeFor(ft)
	if err != nil {
		return err
	}
	if _, ok := p.contexts[ft]; ok {
		return nil
	}

	if p.engines == nil {
		return gpu.NewFuncError("CREATE_CONTEXT", ft, gpu.CodeNullDependency, "engine manager not set")
	}
	if p.osCtx == nil {
		return gpu.NewFuncError("CREATE_CONTEXT", ft, gpu.CodeNullDependency, "OS context not set")
	}
	mgr := p.osCtx.CommandBufferManager()
	if mgr == nil {
		return gpu.NewFuncError("CREATE_CONTEXT", ft, gpu.CodeNullDependency, "command buffer manager not set")
	}

	hw := p.engines.CreateContext(node, mgr, ctxType)
	if hw == nil {
		p.logger.Warn("engine manager refused context", "func", ft.String(), "node", node.String())
		return gpu.NewFuncError("CREATE_CONTEXT", ft, gpu.CodeCreationFailed, "engine manager returned no context")
	}

	p.contexts[ft] = hw
	observeContext(p.observer, ft, true)
	p.logger.Debug("context created", "func", ft.String(), "node", node.String(), "type", ctxType.String())
	return nil
}

// SetCurrent implements Manager
func (p *ContextPool) SetCurrent(ft gpu.FuncType) error {
	if _, ok := p.contexts[ft]; !ok {
		return gpu.NewFuncError("SET_CONTEXT", ft, gpu.CodeNotFound, "no context for function type")
	}
	p.cur.use(ft)
	return nil
}

// DestroyContext implements Manager
func (p *ContextPool) DestroyContext(ft gpu.FuncType) error {
	hw, ok := p.contexts[ft]
	if !ok {
		return gpu.NewFuncError("DESTROY_CONTEXT", ft, gpu.CodeNotFound, "no context for function type")
	}
	if p.engines == nil {
		return gpu.NewFuncError("DESTROY_CONTEXT", ft, gpu.CodeNullDependency, "engine manager not set")
	}

	p.engines.DestroyContext(hw)
	delete(p.contexts, ft)
	if p.cur.is(ft) {
		p.cur.clear()
	}
	observeContext(p.observer, ft, false)
	p.logger.Debug("context destroyed", "func", ft.String())
	return nil
}

func (p *ContextPool) currentContext(op string) (interfaces.HardwareContext, error) {
	ft, ok := p.cur.get()
	if !ok {
		return nil, noCurrent(op)
	}
	return p.contexts[ft], nil
}

// VerifyCapacity implements Manager. The command buffer size is checked
// first and its error wins.
func (p *ContextPool) VerifyCapacity(cmdSize, patchSize uint32) error {
	hw, err := p.currentContext("VERIFY_CAPACITY")
	if err != nil {
		return err
	}
	if err := hw.VerifyCommandBufferSize(cmdSize); err != nil {
		return err
	}
	return hw.VerifyPatchListSize(patchSize)
}

// GetCommandBuffer implements Manager
func (p *ContextPool) GetCommandBuffer(flags uint32) (*gpu.CommandBuffer, error) {
	hw, err := p.currentContext("GET_CMD_BUFFER")
	if err != nil {
		return nil, err
	}
	return hw.GetCommandBuffer(flags)
}

// ReturnCommandBuffer implements Manager
func (p *ContextPool) ReturnCommandBuffer(buf *gpu.CommandBuffer, flags uint32) error {
	hw, err := p.currentContext("RETURN_CMD_BUFFER")
	if err != nil {
		return err
	}
	hw.ReturnCommandBuffer(buf, flags)
	return nil
}

// SubmitCommandBuffer implements Manager
func (p *ContextPool) SubmitCommandBuffer(os interfaces.OSInterface, buf *gpu.CommandBuffer, nullRendering bool) error {
	hw, err := p.currentContext("SUBMIT_CMD_BUFFER")
	if err != nil {
		return err
	}
	if os == nil {
		return gpu.NewError("SUBMIT_CMD_BUFFER", gpu.CodeNullDependency, "OS interface not set")
	}
	return hw.SubmitCommandBuffer(os, buf, nullRendering)
}

// Current implements Manager
func (p *ContextPool) Current() (gpu.FuncType, bool) { return p.cur.get() }

// Len implements Manager
func (p *ContextPool) Len() int { return len(p.contexts) }

// Close implements Manager
func (p *ContextPool) Close() error {
	if p.engines == nil {
		if len(p.contexts) > 0 {
			p.logger.Warn("engine manager not set, leaving contexts", "contexts", len(p.contexts))
		}
		return nil
	}
	for ft, hw := range p.contexts {
		p.engines.DestroyContext(hw)
		observeContext(p.observer, ft, false)
	}
	p.logger.Debug("context pool cleaned up", "contexts", len(p.contexts))
	p.contexts = make(map[gpu.FuncType]interfaces.HardwareContext)
	p.cur.clear()
	return nil
}

var _ Manager = (*ContextPool)(nil)
