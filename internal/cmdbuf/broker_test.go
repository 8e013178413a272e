package cmdbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/gpuctx"
	"github.com/ehrlich-b/go-mediadrv/internal/interfaces"
	"github.com/ehrlich-b/go-mediadrv/internal/logging"
)

// stubManager is a minimal gpuctx.Manager that hands out numbered buffers
// and records submissions.
type stubManager struct {
	contexts  map[gpu.FuncType]bool
	current   gpu.FuncType
	hasCur    bool
	next      uint64
	verifyErr error
	submitted []uint64
	returned  []uint64
}

func newStubManager(fts ...gpu.FuncType) *stubManager {
	m := &stubManager{contexts: make(map[gpu.FuncType]bool)}
	for _, ft := range fts {
		m.contexts[ft] = true
	}
	return m
}

func (m *stubManager) CreateContext(ft gpu.FuncType) error {
	m.contexts[ft] = true
	return nil
}

func (m *stubManager) SetCurrent(ft gpu.FuncType) error {
	if !m.contexts[ft] {
		return gpu.NewFuncError("SET_CONTEXT", ft, gpu.CodeNotFound, "missing")
	}
	m.current, m.hasCur = ft, true
	return nil
}

func (m *stubManager) DestroyContext(ft gpu.FuncType) error {
	if !m.contexts[ft] {
		return gpu.NewFuncError("DESTROY_CONTEXT", ft, gpu.CodeNotFound, "missing")
	}
	delete(m.contexts, ft)
	if m.hasCur && m.current == ft {
		m.hasCur = false
	}
	return nil
}

func (m *stubManager) VerifyCapacity(cmdSize, patchSize uint32) error {
	if !m.hasCur {
		return gpu.ErrNoCurrentContext
	}
	return m.verifyErr
}

func (m *stubManager) GetCommandBuffer(uint32) (*gpu.CommandBuffer, error) {
	if !m.hasCur {
		return nil, gpu.ErrNoCurrentContext
	}
	m.next++
	return &gpu.CommandBuffer{ID: m.next}, nil
}

func (m *stubManager) ReturnCommandBuffer(buf *gpu.CommandBuffer, _ uint32) error {
	m.returned = append(m.returned, buf.ID)
	return nil
}

func (m *stubManager) SubmitCommandBuffer(_ interfaces.OSInterface, buf *gpu.CommandBuffer, _ bool) error {
	m.submitted = append(m.submitted, buf.ID)
	return nil
}

func (m *stubManager) Current() (gpu.FuncType, bool) { return m.current, m.hasCur }
func (m *stubManager) Len() int { return len(m.contexts) }
func (m *stubManager) Close() error { return nil }

var _ gpuctx.Manager = (*stubManager)(nil)

type cbObserver struct {
	ops map[string]int
	bad int
}

func (o *cbObserver) ObserveContext(gpu.FuncType, bool) {}
func (o *cbObserver) ObserveCommandBuffer(op string, _ uint64, success bool) {
	if o.ops == nil {
		o.ops = make(map[string]int)
	}
	o.ops[op]++
	if !success {
		o.bad++
	}
}
func (o *cbObserver) ObserveCopy(string, uint64, uint64, bool) {}
func (o *cbObserver) ObserveSurface(string, uint64) {}

func newBroker(m gpuctx.Manager) *Broker {
	return NewBroker(m, nil, Options{Logger: logging.Nop()})
}

func TestBrokerRequiresSelection(t *testing.T) {
	b := newBroker(newStubManager(gpu.FuncDecode))
	assert.Equal(t, NoContextSelected, b.State())

	_, err := b.Acquire(1024, 8, 0)
	assert.ErrorIs(t, err, gpu.ErrNoCurrentContext)
	assert.ErrorIs(t, b.Return(&gpu.CommandBuffer{}, 0), gpu.ErrNoCurrentContext)
	assert.ErrorIs(t, b.Submit(&gpu.CommandBuffer{}, false), gpu.ErrNoCurrentContext)
}

func TestBrokerSelect(t *testing.T) {
	b := newBroker(newStubManager(gpu.FuncDecode))

	assert.ErrorIs(t, b.Select(gpu.FuncRender), gpu.ErrNotFound)
	assert.Equal(t, NoContextSelected, b.State())

	require.NoError(t, b.Select(gpu.FuncDecode))
	assert.Equal(t, ContextSelected, b.State())
	ft, ok := b.Selected()
	assert.True(t, ok)
	assert.Equal(t, gpu.FuncDecode, ft)
}

func TestBrokerFIFOSubmission(t *testing.T) {
	m := newStubManager(gpu.FuncRender)
	b := newBroker(m)
	require.NoError(t, b.Select(gpu.FuncRender))

	first, err := b.Acquire(4096, 16, 0)
	require.NoError(t, err)
	second, err := b.Acquire(4096, 16, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Outstanding())

	err = b.Submit(second, false)
	assert.ErrorIs(t, err, gpu.ErrInvalidParameter)
	assert.Empty(t, m.submitted)

	require.NoError(t, b.Submit(first, false))
	require.NoError(t, b.Submit(second, false))
	assert.Equal(t, []uint64{1, 2}, m.submitted)
	assert.Equal(t, 0, b.Outstanding())

	err = b.Submit(first, false)
	assert.ErrorIs(t, err, gpu.ErrInvalidParameter, "resubmission is rejected")
}

func TestBrokerReturnRemovesFromQueue(t *testing.T) {
	m := newStubManager(gpu.FuncRender)
	b := newBroker(m)
	require.NoError(t, b.Select(gpu.FuncRender))

	first, err := b.Acquire(4096, 16, 0)
	require.NoError(t, err)
	second, err := b.Acquire(4096, 16, 0)
	require.NoError(t, err)

	require.NoError(t, b.Return(first, 0))
	assert.Equal(t, []uint64{1}, m.returned)
	require.NoError(t, b.Submit(second, false), "second becomes the oldest outstanding buffer")
}

func TestBrokerReturnRejectsUntracked(t *testing.T) {
	m := newStubManager(gpu.FuncDecode, gpu.FuncRender)
	b := newBroker(m)
	require.NoError(t, b.Select(gpu.FuncDecode))
	buf, err := b.Acquire(4096, 16, 0)
	require.NoError(t, err)

	require.NoError(t, b.Select(gpu.FuncRender))
	err = b.Return(buf, 0)
	assert.ErrorIs(t, err, gpu.ErrInvalidParameter, "buffer belongs to another context")
	assert.Empty(t, m.returned)

	require.NoError(t, b.Select(gpu.FuncDecode))
	assert.Equal(t, 1, b.Outstanding())
	require.NoError(t, b.Return(buf, 0))
	assert.Equal(t, []uint64{1}, m.returned)

	err = b.Return(buf, 0)
	assert.ErrorIs(t, err, gpu.ErrInvalidParameter, "second return")
	assert.Equal(t, []uint64{1}, m.returned)

	err = b.Submit(buf, false)
	assert.ErrorIs(t, err, gpu.ErrInvalidParameter, "returned buffer cannot be submitted")
	assert.Empty(t, m.submitted)
}

func TestBrokerVerifyFailure(t *testing.T) {
	m := newStubManager(gpu.FuncRender)
	m.verifyErr = gpu.NewError("VERIFY_CMD", gpu.CodeCapacityExceeded, "too big")
	b := newBroker(m)
	require.NoError(t, b.Select(gpu.FuncRender))

	buf, err := b.Acquire(1<<30, 16, 0)
	assert.Nil(t, buf)
	assert.Same(t, m.verifyErr, err)
	assert.Equal(t, uint64(0), m.next, "no buffer is taken after a failed verify")
}

func TestBrokerDestroy(t *testing.T) {
	m := newStubManager(gpu.FuncRender, gpu.FuncDecode)
	b := newBroker(m)
	require.NoError(t, b.Select(gpu.FuncRender))
	_, err := b.Acquire(4096, 16, 0)
	require.NoError(t, err)

	require.NoError(t, b.Destroy(gpu.FuncDecode))
	assert.Equal(t, ContextSelected, b.State(), "destroying another context keeps the selection")

	require.NoError(t, b.Destroy(gpu.FuncRender))
	assert.Equal(t, NoContextSelected, b.State())
	assert.Equal(t, 0, b.Outstanding())

	_, err = b.Acquire(4096, 16, 0)
	assert.ErrorIs(t, err, gpu.ErrNoCurrentContext)

	assert.ErrorIs(t, b.Destroy(gpu.FuncRender), gpu.ErrNotFound)
}

func TestBrokerReset(t *testing.T) {
	m := newStubManager(gpu.FuncRender, gpu.FuncDecode)
	b := newBroker(m)
	require.NoError(t, b.Select(gpu.FuncDecode))
	_, err := b.Acquire(4096, 16, 0)
	require.NoError(t, err)
	require.NoError(t, b.Select(gpu.FuncRender))
	buf, err := b.Acquire(4096, 16, 0)
	require.NoError(t, err)

	b.Reset()
	assert.Equal(t, NoContextSelected, b.State())
	_, ok := b.Selected()
	assert.False(t, ok)
	assert.Equal(t, 0, b.Outstanding())

	require.NoError(t, b.Select(gpu.FuncRender))
	assert.Equal(t, 0, b.Outstanding(), "queues are cleared, not just hidden")
	assert.ErrorIs(t, b.Submit(buf, false), gpu.ErrInvalidParameter)
}

func TestBrokerObserver(t *testing.T) {
	obs := &cbObserver{}
	m := newStubManager(gpu.FuncRender)
	b := NewBroker(m, nil, Options{Logger: logging.Nop(), Observer: obs})
	require.NoError(t, b.Select(gpu.FuncRender))

	buf, err := b.Acquire(4096, 16, 0)
	require.NoError(t, err)
	require.NoError(t, b.Submit(buf, true))

	m.verifyErr = gpu.ErrCapacityExceeded
	_, err = b.Acquire(4096, 16, 0)
	require.Error(t, err)

	assert.Equal(t, 2, obs.ops["acquire"])
	assert.Equal(t, 1, obs.ops["submit"])
	assert.Equal(t, 1, obs.bad)
}

func TestBrokerOverContextPool(t *testing.T) {
	pool := gpuctx.NewContextPool(poolEngines{}, poolOSCtx{}, gpuctx.Options{Logger: logging.Nop()})
	require.NoError(t, pool.CreateContext(gpu.FuncDecode))

	b := newBroker(pool)
	require.NoError(t, b.Select(gpu.FuncDecode))

	buf, err := b.Acquire(8192, 8, 0)
	require.NoError(t, err)
	assert.Equal(t, gpu.ContextVideoDecode, buf.Context)
	assert.Equal(t, 8192, buf.Remaining())

	// The broker passes a nil OS interface through and the pool refuses it.
	err = b.Submit(buf, false)
	assert.ErrorIs(t, err, gpu.ErrNullDependency)
}

type poolHW struct {
	ctxType   gpu.ContextType
	cmdSize   uint32
	patchSize uint32
	next      uint64
}

func (h *poolHW) Node() gpu.Node { return gpu.NodeVideo }
func (h *poolHW) Type() gpu.ContextType { return h.ctxType }
func (h *poolHW) VerifyCommandBufferSize(size uint32) error {
	h.cmdSize = size
	return nil
}
func (h *poolHW) VerifyPatchListSize(size uint32) error {
	h.patchSize = size
	return nil
}
func (h *poolHW) GetCommandBuffer(uint32) (*gpu.CommandBuffer, error) {
	h.next++
	return NewCommandBuffer(h.next, h.ctxType, h.cmdSize, int(h.patchSize))
}
func (h *poolHW) ReturnCommandBuffer(buf *gpu.CommandBuffer, _ uint32) { Recycle(buf) }
func (h *poolHW) SubmitCommandBuffer(interfaces.OSInterface, *gpu.CommandBuffer, bool) error {
	return nil
}

type poolEngines struct{}

func (poolEngines) CreateContext(_ gpu.Node, _ interfaces.CommandBufferManager, ctxType gpu.ContextType) interfaces.HardwareContext {
	return &poolHW{ctxType: ctxType}
}
func (poolEngines) DestroyContext(interfaces.HardwareContext) {}

type poolCBM struct{}

func (poolCBM) PickupCommandBuffer(size uint32) (*gpu.CommandBuffer, error) {
	return NewCommandBuffer(0, gpu.ContextInvalid, size, 0)
}
func (poolCBM) ReleaseCommandBuffer(buf *gpu.CommandBuffer) { Recycle(buf) }

type poolOSCtx struct{}

func (poolOSCtx) CommandBufferManager() interfaces.CommandBufferManager { return poolCBM{} }
