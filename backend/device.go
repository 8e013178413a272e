// Package backend provides a simulated GPU: engine manager, hardware
// contexts, OS interface, copy engines, MMC and platform capabilities, all
// backed by process memory.
package backend

import (
	"sync"
	"sync/atomic"

	"github.com/ehrlich-b/go-mediadrv/internal/cmdbuf"
	"github.com/ehrlich-b/go-mediadrv/internal/constants"
	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/interfaces"
	"github.com/ehrlich-b/go-mediadrv/internal/logging"
	"github.com/ehrlich-b/go-mediadrv/internal/sysmem"
)

// SKU feature names understood by the simulated device.
const (
	FeatureVebox        = "FtrVERing"
	FeatureBlt          = "FtrBLTRing"
	FeatureRenderCopy   = "FtrRenderCopy"
	FeatureCompression  = "FtrE2ECompression"
	FeatureCompressible = "FtrCompressibleSurfaceDefault"
)

// DefaultFeatures enables every engine and compression.
func DefaultFeatures() map[string]bool {
	return map[string]bool{
		FeatureVebox:        true,
		FeatureBlt:          true,
		FeatureRenderCopy:   true,
		FeatureCompression:  true,
		FeatureCompressible: true,
	}
}

// Config configures a simulated device.
type Config struct {
	// MemoryBudget caps resource memory in bytes; 0 is unlimited.
	MemoryBudget uint64

	// Nodes lists the engine nodes present; nil means all of them.
	Nodes []gpu.Node

	// Features is the SKU table; nil means DefaultFeatures.
	Features map[string]bool

	Logger *logging.Logger
}

// Submission records one command buffer the device executed.
type Submission struct {
	BufferID uint64
	Context  gpu.ContextType
	Node     gpu.Node
	Bytes    int
	Patches  int
	Null     bool
}

// Device is a simulated GPU. It satisfies interfaces.OSContext.
type Device struct {
	mem      *sysmem.Allocator
	cbm      *CommandBufferManager
	nodes    map[gpu.Node]bool
	features map[string]bool
	logger   *logging.Logger

	mu          sync.Mutex
	submissions []Submission
}

// NewDevice creates a simulated device.
func NewDevice(cfg Config) *Device {
	features := cfg.Features
	if features == nil {
		features = DefaultFeatures()
	}
	nodes := cfg.Nodes
	if nodes == nil {
		nodes = []gpu.Node{gpu.NodeRender, gpu.NodeVideo, gpu.NodeCompute}
	}
	d := &Device{
		mem:      sysmem.New(cfg.MemoryBudget),
		nodes:    make(map[gpu.Node]bool, len(nodes)),
		features: features,
		logger:   logging.OrDefault(cfg.Logger).WithComponent("sim"),
	}
	for _, n := range nodes {
		d.nodes[n] = true
	}
	d.cbm = &CommandBufferManager{}
	return d
}

// Memory returns the device's resource allocator.
func (d *Device) Memory() *sysmem.Allocator { return d.mem }

// CommandBufferManager implements interfaces.OSContext
func (d *Device) CommandBufferManager() interfaces.CommandBufferManager { return d.cbm }

// Feature reports a SKU table entry.
func (d *Device) Feature(name string) bool { return d.features[name] }

// HasNode reports whether the engine node is present.
func (d *Device) HasNode(n gpu.Node) bool { return d.nodes[n] }

// Submissions returns a copy of the execution log in submission order.
func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Submission, len(d.submissions))
	copy(out, d.submissions)
	return out
}

// execute "runs" a command buffer: every patched resource becomes busy
// until the next sync on it.
func (d *Device) execute(node gpu.Node, buf *gpu.CommandBuffer, null bool) {
	if !null {
		for _, p := range buf.Patches {
			d.mem.MarkBusy(p.Resource)
		}
	}
	d.mu.Lock()
	d.submissions = append(d.submissions, Submission{
		BufferID: buf.ID,
		Context:  buf.Context,
		Node:     node,
		Bytes:    buf.Used,
		Patches:  len(buf.Patches),
		Null:     null,
	})
	d.mu.Unlock()
	d.logger.Debug("command buffer executed", "id", buf.ID, "context", buf.Context.String(),
		"node", node.String(), "bytes", buf.Used, "null", null)
}

// Close releases all device memory.
func (d *Device) Close() error {
	return d.mem.Close()
}

// CommandBufferManager hands out pooled command-buffer storage.
type CommandBufferManager struct {
	nextID atomic.Uint64
	out    atomic.Int64
}

// PickupCommandBuffer implements interfaces.CommandBufferManager
func (m *CommandBufferManager) PickupCommandBuffer(size uint32) (*gpu.CommandBuffer, error) {
	buf, err := cmdbuf.NewCommandBuffer(m.nextID.Add(1), gpu.ContextInvalid, size, constants.DefaultPatchListSize)
	if err != nil {
		return nil, err
	}
	m.out.Add(1)
	return buf, nil
}

// ReleaseCommandBuffer implements interfaces.CommandBufferManager
func (m *CommandBufferManager) ReleaseCommandBuffer(buf *gpu.CommandBuffer) {
	if buf == nil || buf.Data == nil {
		return
	}
	cmdbuf.Recycle(buf)
	m.out.Add(-1)
}

// Outstanding returns the number of buffers picked up and not released.
func (m *CommandBufferManager) Outstanding() int { return int(m.out.Load()) }

var _ interfaces.OSContext = (*Device)(nil)
