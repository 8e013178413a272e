// Package cmdbuf mediates command buffer acquisition, return and submission
// against the context the caller made current, and provides the pooled
// storage contexts hand buffers out from.
package cmdbuf

import (
	"time"

	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/gpuctx"
	"github.com/ehrlich-b/go-mediadrv/internal/interfaces"
	"github.com/ehrlich-b/go-mediadrv/internal/logging"
)

// State is the broker's selection state.
type State int

const (
	NoContextSelected State = iota
	ContextSelected
)

func (s State) String() string {
	if s == ContextSelected {
		return "context-selected"
	}
	return "no-context-selected"
}

// Options carries optional collaborators for a Broker.
type Options struct {
	Logger   *logging.Logger
	Observer interfaces.Observer
}

// Broker issues command-buffer operations only against an explicitly
// selected context. Buffers acquired on a context must be submitted in
// acquire order. Like the context pool it wraps, a Broker is not safe for
// concurrent use.
type Broker struct {
	mgr         gpuctx.Manager
	os          interfaces.OSInterface
	state       State
	selected    gpu.FuncType
	outstanding map[gpu.FuncType][]*gpu.CommandBuffer
	logger      *logging.Logger
	observer    interfaces.Observer
}

// NewBroker returns a broker in NoContextSelected over mgr. osIface is
// passed through on submission.
func NewBroker(mgr gpuctx.Manager, osIface interfaces.OSInterface, opts Options) *Broker {
	return &Broker{
		mgr:         mgr,
		os:          osIface,
		selected:    gpu.FuncInvalid,
		outstanding: make(map[gpu.FuncType][]*gpu.CommandBuffer),
		logger:      logging.OrDefault(opts.Logger).WithComponent("cmdbuf"),
		observer:    opts.Observer,
	}
}

// State returns the current selection state.
func (b *Broker) State() State { return b.state }

// Selected returns the selected function type, if any.
func (b *Broker) Selected() (gpu.FuncType, bool) {
	return b.selected, b.state == ContextSelected
}

// Outstanding returns the number of acquired buffers not yet submitted or
// returned on the selected context.
func (b *Broker) Outstanding() int {
	if b.state != ContextSelected {
		return 0
	}
	return len(b.outstanding[b.selected])
}

// Select makes ft current. On failure the previous selection stands.
func (b *Broker) Select(ft gpu.FuncType) error {
	if b.mgr == nil {
		return gpu.NewFuncError("SELECT_CONTEXT", ft, gpu.CodeNullDependency, "context manager not set")
	}
	if err := b.mgr.SetCurrent(ft); err != nil {
		return err
	}
	b.selected = ft
	b.state = ContextSelected
	b.logger.Debug("context selected", "func", ft.String())
	return nil
}

func (b *Broker) requireSelected(op string) error {
	if b.state != ContextSelected {
		return gpu.NewError(op, gpu.CodeNoCurrentContext, "no context selected")
	}
	return nil
}

// Acquire verifies the selected context can hold a buffer of cmdSize bytes
// with patchSize patch entries, then takes one from it.
func (b *Broker) Acquire(cmdSize, patchSize, flags uint32) (*gpu.CommandBuffer, error) {
	if err := b.requireSelected("ACQUIRE_CMD_BUFFER"); err != nil {
		return nil, err
	}

	start := time.Now()
	buf, err := b.acquire(cmdSize, patchSize, flags)
	b.observe("acquire", start, err == nil)
	if err != nil {
		b.logger.WithFunc(b.selected).Debug("acquire failed", "cmd_size", cmdSize, "patch_size", patchSize, "error", err)
		return nil, err
	}
	b.outstanding[b.selected] = append(b.outstanding[b.selected], buf)
	return buf, nil
}

func (b *Broker) acquire(cmdSize, patchSize, flags uint32) (*gpu.CommandBuffer, error) {
	if err := b.mgr.VerifyCapacity(cmdSize, patchSize); err != nil {
		return nil, err
	}
	return b.mgr.GetCommandBuffer(flags)
}

// Return hands an unsubmitted buffer back to the selected context. Only
// buffers outstanding on that context may be returned.
func (b *Broker) Return(buf *gpu.CommandBuffer, flags uint32) error {
	if err := b.requireSelected("RETURN_CMD_BUFFER"); err != nil {
		return err
	}
	if !b.tracked(buf) {
		return gpu.NewFuncError("RETURN_CMD_BUFFER", b.selected, gpu.CodeInvalidParameter, "buffer is not outstanding on the selected context")
	}
	start := time.Now()
	err := b.mgr.ReturnCommandBuffer(buf, flags)
	b.observe("return", start, err == nil)
	if err != nil {
		return err
	}
	b.forget(buf)
	return nil
}

// Submit queues buf for execution on the selected context. Only the oldest
// outstanding buffer of that context may be submitted.
func (b *Broker) Submit(buf *gpu.CommandBuffer, nullRendering bool) error {
	if err := b.requireSelected("SUBMIT_CMD_BUFFER"); err != nil {
		return err
	}
	queue := b.outstanding[b.selected]
	if len(queue) == 0 || queue[0] != buf {
		if !b.tracked(buf) {
			return gpu.NewFuncError("SUBMIT_CMD_BUFFER", b.selected, gpu.CodeInvalidParameter, "buffer was not acquired on the selected context")
		}
		return gpu.NewFuncError("SUBMIT_CMD_BUFFER", b.selected, gpu.CodeInvalidParameter, "buffer submitted out of acquire order")
	}

	start := time.Now()
	err := b.mgr.SubmitCommandBuffer(b.os, buf, nullRendering)
	b.observe("submit", start, err == nil)
	if err != nil {
		b.logger.WithFunc(b.selected).Warn("submit failed", "buffer", buf.ID, "error", err)
		return err
	}
	b.outstanding[b.selected] = queue[1:]
	return nil
}

// Destroy tears down the context for ft. Destroying the selected context
// returns the broker to NoContextSelected.
func (b *Broker) Destroy(ft gpu.FuncType) error {
	if b.mgr == nil {
		return gpu.NewFuncError("DESTROY_CONTEXT", ft, gpu.CodeNullDependency, "context manager not set")
	}
	if err := b.mgr.DestroyContext(ft); err != nil {
		return err
	}
	if n := len(b.outstanding[ft]); n > 0 {
		b.logger.Warn("dropping unsubmitted command buffers", "func", ft.String(), "buffers", n)
	}
	delete(b.outstanding, ft)
	if b.state == ContextSelected && b.selected == ft {
		b.state = NoContextSelected
		b.selected = gpu.FuncInvalid
	}
	return nil
}

// Reset drops every outstanding buffer and returns the broker to
// NoContextSelected. It is used once the underlying contexts are gone.
func (b *Broker) Reset() {
	dropped := 0
	for _, q := range b.outstanding {
		dropped += len(q)
	}
	if dropped > 0 {
		b.logger.Warn("dropping unsubmitted command buffers", "buffers", dropped)
	}
	b.outstanding = make(map[gpu.FuncType][]*gpu.CommandBuffer)
	b.state = NoContextSelected
	b.selected = gpu.FuncInvalid
}

func (b *Broker) tracked(buf *gpu.CommandBuffer) bool {
	for _, q := range b.outstanding[b.selected] {
		if q == buf {
			return true
		}
	}
	return false
}

func (b *Broker) forget(buf *gpu.CommandBuffer) {
	queue := b.outstanding[b.selected]
	for i, q := range queue {
		if q == buf {
			b.outstanding[b.selected] = append(queue[:i:i], queue[i+1:]...)
			return
		}
	}
}

func (b *Broker) observe(op string, start time.Time, success bool) {
	if b.observer != nil {
		b.observer.ObserveCommandBuffer(op, uint64(time.Since(start).Nanoseconds()), success)
	}
}
