package cmdbuf

import (
	"fmt"
	"sync"

	"github.com/ehrlich-b/go-mediadrv/internal/constants"
	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
)

// Command buffer storage is handed out from size-bucketed pools with
// power-of-2 sizes (64KB .. 1MB). Contexts churn through buffers on every
// frame, so reusing the backing slices keeps submission allocation-free.
//
// Uses *[]byte pattern to avoid sync.Pool interface allocation overhead.

// Storage size thresholds
const (
	size64k  = 64 * 1024
	size128k = 128 * 1024
	size256k = 256 * 1024
	size512k = 512 * 1024
	size1m   = constants.MaxCommandBufferSize
)

var storage = struct {
	pool64k  sync.Pool
	pool128k sync.Pool
	pool256k sync.Pool
	pool512k sync.Pool
	pool1m   sync.Pool
}{
	pool64k:  sync.Pool{New: func() any { b := make([]byte, size64k); return &b }},
	pool128k: sync.Pool{New: func() any { b := make([]byte, size128k); return &b }},
	pool256k: sync.Pool{New: func() any { b := make([]byte, size256k); return &b }},
	pool512k: sync.Pool{New: func() any { b := make([]byte, size512k); return &b }},
	pool1m:   sync.Pool{New: func() any { b := make([]byte, size1m); return &b }},
}

// GetStorage returns pooled command-buffer memory of exactly size bytes.
// Sizes above the context maximum are refused. Caller must call PutStorage
// when the buffer is retired.
func GetStorage(size uint32) ([]byte, error) {
	var buf []byte
	switch {
	case size == 0:
		return nil, gpu.NewError("PICKUP_CMD_BUFFER", gpu.CodeInvalidParameter, "zero-sized command buffer")
	case size <= size64k:
		buf = *storage.pool64k.Get().(*[]byte)
	case size <= size128k:
		buf = *storage.pool128k.Get().(*[]byte)
	case size <= size256k:
		buf = *storage.pool256k.Get().(*[]byte)
	case size <= size512k:
		buf = *storage.pool512k.Get().(*[]byte)
	case size <= size1m:
		buf = *storage.pool1m.Get().(*[]byte)
	default:
		return nil, gpu.NewError("PICKUP_CMD_BUFFER", gpu.CodeCapacityExceeded,
			fmt.Sprintf("%d bytes exceeds the %d byte maximum", size, size1m))
	}
	return buf[:size], nil
}

// PutStorage returns memory to the pool.
// The slice's capacity determines which pool it goes to.
func PutStorage(buf []byte) {
	c := cap(buf)
	// Restore full capacity before returning to pool
	buf = buf[:c]
	switch c {
	case size64k:
		storage.pool64k.Put(&buf)
	case size128k:
		storage.pool128k.Put(&buf)
	case size256k:
		storage.pool256k.Put(&buf)
	case size512k:
		storage.pool512k.Put(&buf)
	case size1m:
		storage.pool1m.Put(&buf)
		// Slices with non-standard capacity are left to the GC
	}
}

// NewCommandBuffer wraps pooled storage as a command buffer for ctxType.
func NewCommandBuffer(id uint64, ctxType gpu.ContextType, size uint32, patchCapacity int) (*gpu.CommandBuffer, error) {
	data, err := GetStorage(size)
	if err != nil {
		return nil, err
	}
	return &gpu.CommandBuffer{
		ID:            id,
		Context:       ctxType,
		Data:          data,
		Patches:       make([]gpu.PatchEntry, 0, patchCapacity),
		PatchCapacity: patchCapacity,
	}, nil
}

// Recycle returns a command buffer's storage to the pool. The buffer must
// not be used afterwards.
func Recycle(buf *gpu.CommandBuffer) {
	if buf == nil || buf.Data == nil {
		return
	}
	PutStorage(buf.Data)
	buf.Data = nil
	buf.Reset()
}
