package surface

import (
	"fmt"

	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
)

// checkCopy panics when the target cannot hold a bpp-bit copy of n bytes.
// These are programming errors in the caller, not runtime conditions.
func checkCopy(d Descriptor, bpp uint32, n int) uint32 {
	if d.Handle.IsNull() {
		panic("surface: null resource")
	}
	if bpp == 0 || bpp%8 != 0 {
		panic(fmt.Sprintf("surface: invalid bits per pixel %d", bpp))
	}
	if d.Width == 0 || d.Height == 0 {
		panic(fmt.Sprintf("surface: empty surface %dx%d", d.Width, d.Height))
	}
	row := d.Width * bpp / 8
	if d.Pitch < row {
		panic(fmt.Sprintf("surface: pitch %d shorter than row %d", d.Pitch, row))
	}
	depth := max(d.Depth, 1)
	if need := int(row * d.Height * depth); n < need {
		panic(fmt.Sprintf("surface: buffer of %d bytes, need %d", n, need))
	}
	return row
}

// Read copies the surface's pixels into dst, packed with no row padding.
func (a *Allocator) Read(t Target, bpp uint32, dst []byte) error {
	d := t.Descriptor()
	row := checkCopy(d, bpp, len(dst))

	mem, err := a.low.Lock(d.Handle, gpu.LockFlags{ReadOnly: true})
	if err != nil {
		return err
	}
	defer a.unlock(d.Handle)

	copyRows(dst, row, mem[d.Offset:], d.Pitch, row, d.Height, max(d.Depth, 1))
	return nil
}

// Write copies packed pixels from src into the surface.
func (a *Allocator) Write(t Target, bpp uint32, src []byte) error {
	d := t.Descriptor()
	row := checkCopy(d, bpp, len(src))

	mem, err := a.low.Lock(d.Handle, gpu.LockFlags{WriteOnly: true})
	if err != nil {
		return err
	}
	defer a.unlock(d.Handle)

	copyRows(mem[d.Offset:], d.Pitch, src, row, row, d.Height, max(d.Depth, 1))
	return nil
}

// copyRows moves height*depth rows of rowBytes between buffers with
// different strides. Matching strides collapse into one copy.
func copyRows(dst []byte, dstPitch uint32, src []byte, srcPitch uint32, rowBytes, height, depth uint32) {
	if dstPitch == rowBytes && srcPitch == rowBytes {
		n := rowBytes * height * depth
		copy(dst[:n], src[:n])
		return
	}
	for z := uint32(0); z < depth; z++ {
		for y := uint32(0); y < height; y++ {
			r := z*height + y
			copy(dst[r*dstPitch:r*dstPitch+rowBytes], src[r*srcPitch:r*srcPitch+rowBytes])
		}
	}
}

// Write1D copies src into the start of a buffer surface.
func (a *Allocator) Write1D(t Target, src []byte) error {
	d := t.Descriptor()
	if d.Handle.IsNull() {
		panic("surface: null resource")
	}
	if d.Type != gpu.ResourceBuffer {
		return gpu.NewError("WRITE_1D", gpu.CodeInvalidParameter, "surface is not a buffer")
	}
	if d.Size == 0 || uint32(len(src)) > d.Size {
		return gpu.NewError("WRITE_1D", gpu.CodeInvalidParameter,
			fmt.Sprintf("%d bytes do not fit buffer of %d", len(src), d.Size))
	}

	mem, err := a.low.Lock(d.Handle, gpu.LockFlags{WriteOnly: true})
	if err != nil {
		return err
	}
	defer a.unlock(d.Handle)
	copy(mem, src)
	return nil
}

func (a *Allocator) unlock(res gpu.ResourceHandle) {
	if err := a.low.Unlock(res); err != nil {
		a.logger.Warn("unlock failed", "handle", uint64(res), "error", err)
	}
}

// Fill writes value into the first size bytes of t. A zero size fills the
// whole resource.
func (a *Allocator) Fill(t Target, size uint32, value byte) error {
	d := t.Descriptor()
	if size == 0 {
		size = d.Size
	}
	return a.low.Fill(d.Handle, size, value)
}

// SyncOnResource waits for pending GPU access to t.
func (a *Allocator) SyncOnResource(t Target, write bool) error {
	return a.low.SyncOnResource(t.Descriptor().Handle, write)
}

// LockForRead maps t for CPU reads.
func (a *Allocator) LockForRead(t Target) ([]byte, error) {
	return a.low.Lock(t.Descriptor().Handle, gpu.LockFlags{ReadOnly: true})
}

// LockForWrite maps t for CPU writes.
func (a *Allocator) LockForWrite(t Target) ([]byte, error) {
	return a.low.Lock(t.Descriptor().Handle, gpu.LockFlags{WriteOnly: true})
}

// LockNoOverwrite maps t for writes without waiting on the GPU. The caller
// guarantees it does not touch regions in flight.
func (a *Allocator) LockNoOverwrite(t Target) ([]byte, error) {
	return a.low.Lock(t.Descriptor().Handle, gpu.LockFlags{WriteOnly: true, NoOverwrite: true})
}

// Unlock releases a lock taken by one of the Lock methods.
func (a *Allocator) Unlock(t Target) error {
	return a.low.Unlock(t.Descriptor().Handle)
}
