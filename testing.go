package mediadrv

import (
	"sync"

	"github.com/ehrlich-b/go-mediadrv/internal/constants"
	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
)

// MockHardwareContext provides a mock HardwareContext for testing.
// It hands out plain command buffers and tracks method calls for verification.
type MockHardwareContext struct {
	node    Node
	ctxType ContextType

	cmdSize   uint32
	patchSize uint32
	nextID    uint64
	submitted []*CommandBuffer

	// FailSubmit makes SubmitCommandBuffer return a device error.
	FailSubmit bool

	// Method call tracking
	mu          sync.RWMutex
	getCalls    int
	returnCalls int
	submitCalls int
}

// NewMockHardwareContext creates a mock context bound to node.
func NewMockHardwareContext(node Node, ctxType ContextType) *MockHardwareContext {
	return &MockHardwareContext{
		node:      node,
		ctxType:   ctxType,
		cmdSize:   constants.DefaultCommandBufferSize,
		patchSize: constants.DefaultPatchListSize,
	}
}

// Node implements the HardwareContext interface
func (m *MockHardwareContext) Node() Node { return m.node }

// Type implements the HardwareContext interface
func (m *MockHardwareContext) Type() ContextType { return m.ctxType }

// VerifyCommandBufferSize implements the HardwareContext interface
func (m *MockHardwareContext) VerifyCommandBufferSize(size uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if size > constants.MaxCommandBufferSize {
		return gpu.NewError("VERIFY_CMD_BUFFER", gpu.CodeCapacityExceeded, "command buffer too large")
	}
	m.cmdSize = max(m.cmdSize, size)
	return nil
}

// VerifyPatchListSize implements the HardwareContext interface
func (m *MockHardwareContext) VerifyPatchListSize(size uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if size > constants.MaxPatchListSize {
		return gpu.NewError("VERIFY_PATCH_LIST", gpu.CodeCapacityExceeded, "patch list too large")
	}
	m.patchSize = max(m.patchSize, size)
	return nil
}

// GetCommandBuffer implements the HardwareContext interface
func (m *MockHardwareContext) GetCommandBuffer(flags uint32) (*CommandBuffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls++
	m.nextID++
	return &CommandBuffer{
		ID:            m.nextID,
		Context:       m.ctxType,
		Data:          make([]byte, m.cmdSize),
		PatchCapacity: int(m.patchSize),
	}, nil
}

// ReturnCommandBuffer implements the HardwareContext interface
func (m *MockHardwareContext) ReturnCommandBuffer(buf *CommandBuffer, flags uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.returnCalls++
}

// SubmitCommandBuffer implements the HardwareContext interface
func (m *MockHardwareContext) SubmitCommandBuffer(os OSInterface, buf *CommandBuffer, nullRendering bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.submitCalls++
	if m.FailSubmit {
		return gpu.NewError("SUBMIT", gpu.CodeDeviceError, "submission rejected")
	}
	m.submitted = append(m.submitted, buf)
	return nil
}

// Submitted returns the buffers submitted so far, in order.
func (m *MockHardwareContext) Submitted() []*CommandBuffer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*CommandBuffer(nil), m.submitted...)
}

// CallCounts returns the number of times each method has been called
func (m *MockHardwareContext) CallCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int{
		"get":    m.getCalls,
		"return": m.returnCalls,
		"submit": m.submitCalls,
	}
}

// MockEngineManager provides a mock EngineManager for testing.
// Nodes listed in Unavailable produce no context.
type MockEngineManager struct {
	// Unavailable lists nodes for which CreateContext returns nil.
	Unavailable map[Node]bool

	mu        sync.RWMutex
	live      map[HardwareContext]bool
	created   []*MockHardwareContext
	destroyed int
}

// NewMockEngineManager creates a mock engine manager with every node available.
func NewMockEngineManager() *MockEngineManager {
	return &MockEngineManager{
		Unavailable: make(map[Node]bool),
		live:        make(map[HardwareContext]bool),
	}
}

// CreateContext implements the EngineManager interface
func (m *MockEngineManager) CreateContext(node Node, mgr CommandBufferManager, ctxType ContextType) HardwareContext {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Unavailable[node] {
		return nil
	}
	hw := NewMockHardwareContext(node, ctxType)
	m.live[hw] = true
	m.created = append(m.created, hw)
	return hw
}

// DestroyContext implements the EngineManager interface
func (m *MockEngineManager) DestroyContext(hw HardwareContext) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.live, hw)
	m.destroyed++
}

// Live returns the number of contexts created and not yet destroyed.
func (m *MockEngineManager) Live() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live)
}

// Created returns every context handed out, in creation order.
func (m *MockEngineManager) Created() []*MockHardwareContext {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*MockHardwareContext(nil), m.created...)
}

// Destroyed returns the number of DestroyContext calls.
func (m *MockEngineManager) Destroyed() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.destroyed
}

// MockOSContext provides a mock OSContext for testing.
type MockOSContext struct {
	Manager CommandBufferManager
}

// CommandBufferManager implements the OSContext interface
func (m *MockOSContext) CommandBufferManager() CommandBufferManager { return m.Manager }

// MockCommandBufferManager hands out heap-allocated command buffers.
type MockCommandBufferManager struct {
	mu     sync.Mutex
	nextID uint64
}

// PickupCommandBuffer implements the CommandBufferManager interface
func (m *MockCommandBufferManager) PickupCommandBuffer(size uint32) (*CommandBuffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return &CommandBuffer{ID: m.nextID, Data: make([]byte, size)}, nil
}

// ReleaseCommandBuffer implements the CommandBufferManager interface
func (m *MockCommandBufferManager) ReleaseCommandBuffer(buf *CommandBuffer) {}

// MockCopyEngine provides a mock CopyEngine that records copies without
// touching memory.
type MockCopyEngine struct {
	// Err is returned from every Copy when set.
	Err error

	mu     sync.RWMutex
	copies [][2]ResourceHandle
}

// Copy implements the CopyEngine interface
func (m *MockCopyEngine) Copy(src, dst ResourceHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	m.copies = append(m.copies, [2]ResourceHandle{src, dst})
	return nil
}

// Copies returns the number of successful copies.
func (m *MockCopyEngine) Copies() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.copies)
}

// Last returns the most recent source and destination copied.
func (m *MockCopyEngine) Last() (src, dst ResourceHandle, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.copies) == 0 {
		return 0, 0, false
	}
	c := m.copies[len(m.copies)-1]
	return c[0], c[1], true
}

// Reset clears recorded copies.
func (m *MockCopyEngine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.copies = nil
}

// Compile-time interface checks
var (
	_ HardwareContext      = (*MockHardwareContext)(nil)
	_ EngineManager        = (*MockEngineManager)(nil)
	_ OSContext            = (*MockOSContext)(nil)
	_ CommandBufferManager = (*MockCommandBufferManager)(nil)
	_ CopyEngine           = (*MockCopyEngine)(nil)
)
