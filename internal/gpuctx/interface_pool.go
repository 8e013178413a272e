package gpuctx

import (
	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/interfaces"
	"github.com/ehrlich-b/go-mediadrv/internal/logging"
)

// InterfacePool creates contexts through an OS interface. The OS interface
// owns the context objects; the pool only remembers which types exist.
type InterfacePool struct {
	os       interfaces.OSInterface
	contexts map[gpu.FuncType]gpu.ContextType
	cur      current
	logger   *logging.Logger
	observer interfaces.Observer
}

// NewInterfacePool returns an empty pool driving osIface.
func NewInterfacePool(osIface interfaces.OSInterface, opts Options) *InterfacePool {
	return &InterfacePool{
		os:       osIface,
		contexts: make(map[gpu.FuncType]gpu.ContextType),
		cur:      current{ft: gpu.FuncInvalid},
		logger:   logging.OrDefault(opts.Logger).WithComponent("gpuctx"),
		observer: opts.Observer,
	}
}

func (p *InterfacePool) checkOS(op string, ft gpu.FuncType) error {
	if p.os == nil {
		return gpu.NewFuncError(op, ft, gpu.CodeNullDependency, "OS interface not set")
	}
	return nil
}

// CreateContext implements Manager
func (p *InterfacePool) CreateContext(ft gpu.FuncType) error {
	node, ctxType, err := gpu.NodeFor(ft)
	if err != nil {
		return err
	}
	if _, ok := p.contexts[ft]; ok {
		return nil
	}
	if err := p.checkOS("CREATE_CONTEXT", ft); err != nil {
		return err
	}

	if err := p.os.CreateGPUContext(ctxType, node); err != nil {
		p.logger.Warn("OS interface refused context", "func", ft.String(), "error", err)
		return err
	}

	p.contexts[ft] = ctxType
	observeContext(p.observer, ft, true)
	p.logger.Debug("context created", "func", ft.String(), "node", node.String(), "type", ctxType.String())
	return nil
}

// SetCurrent implements Manager
func (p *InterfacePool) SetCurrent(ft gpu.FuncType) error {
	ctxType, ok := p.contexts[ft]
	if !ok {
		return gpu.NewFuncError("SET_CONTEXT", ft, gpu.CodeNotFound, "no context for function type")
	}
	if err := p.checkOS("SET_CONTEXT", ft); err != nil {
		return err
	}
	if err := p.os.SetGPUContext(ctxType); err != nil {
		return err
	}
	p.cur.use(ft)
	return nil
}

// DestroyContext implements Manager
func (p *InterfacePool) DestroyContext(ft gpu.FuncType) error {
	ctxType, ok := p.contexts[ft]
	if !ok {
		return gpu.NewFuncError("DESTROY_CONTEXT", ft, gpu.CodeNotFound, "no context for function type")
	}
	if err := p.checkOS("DESTROY_CONTEXT", ft); err != nil {
		return err
	}
	if err := p.os.DestroyGPUContext(ctxType); err != nil {
		return err
	}

	delete(p.contexts, ft)
	if p.cur.is(ft) {
		p.cur.clear()
	}
	observeContext(p.observer, ft, false)
	p.logger.Debug("context destroyed", "func", ft.String())
	return nil
}

func (p *InterfacePool) ready(op string) error {
	ft, ok := p.cur.get()
	if !ok {
		return noCurrent(op)
	}
	return p.checkOS(op, ft)
}

// VerifyCapacity implements Manager
func (p *InterfacePool) VerifyCapacity(cmdSize, patchSize uint32) error {
	if err := p.ready("VERIFY_CAPACITY"); err != nil {
		return err
	}
	return p.os.ResizeCommandBufferAndPatchList(cmdSize, patchSize, 0)
}

// GetCommandBuffer implements Manager
func (p *InterfacePool) GetCommandBuffer(flags uint32) (*gpu.CommandBuffer, error) {
	if err := p.ready("GET_CMD_BUFFER"); err != nil {
		return nil, err
	}
	return p.os.GetCommandBuffer(flags)
}

// ReturnCommandBuffer implements Manager
func (p *InterfacePool) ReturnCommandBuffer(buf *gpu.CommandBuffer, flags uint32) error {
	if err := p.ready("RETURN_CMD_BUFFER"); err != nil {
		return err
	}
	p.os.ReturnCommandBuffer(buf, flags)
	return nil
}

// SubmitCommandBuffer implements Manager. The pool's own OS interface
// performs the submission; the argument is accepted for symmetry with
// ContextPool.
func (p *InterfacePool) SubmitCommandBuffer(_ interfaces.OSInterface, buf *gpu.CommandBuffer, nullRendering bool) error {
	if err := p.ready("SUBMIT_CMD_BUFFER"); err != nil {
		return err
	}
	return p.os.SubmitCommandBuffer(buf, nullRendering)
}

// Current implements Manager
func (p *InterfacePool) Current() (gpu.FuncType, bool) { return p.cur.get() }

// Len implements Manager
func (p *InterfacePool) Len() int { return len(p.contexts) }

// Close implements Manager
func (p *InterfacePool) Close() error {
	if p.os == nil {
		if len(p.contexts) > 0 {
			p.logger.Warn("OS interface not set, leaving contexts", "contexts", len(p.contexts))
		}
		return nil
	}
	for ft, ctxType := range p.contexts {
		if err := p.os.DestroyGPUContext(ctxType); err != nil {
			p.logger.Warn("failed to destroy context", "func", ft.String(), "error", err)
			continue
		}
		observeContext(p.observer, ft, false)
	}
	p.logger.Debug("context pool cleaned up", "contexts", len(p.contexts))
	p.contexts = make(map[gpu.FuncType]gpu.ContextType)
	p.cur.clear()
	return nil
}

var _ Manager = (*InterfacePool)(nil)
