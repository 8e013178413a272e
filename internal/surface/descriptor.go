package surface

import "github.com/ehrlich-b/go-mediadrv/internal/gpu"

// Descriptor is the driver-side description of a resource: its live info
// plus the plane placement derived from it.
type Descriptor struct {
	gpu.ResourceInfo

	// Offset is the byte offset of the first (or only) plane.
	Offset uint32
	YPlane gpu.PlaneOffset
	UPlane gpu.PlaneOffset
	VPlane gpu.PlaneOffset

	// BufferWidth and BufferHeight keep the requested shape of a Buffer
	// format surface, which is allocated folded into a single row.
	BufferWidth  uint32
	BufferHeight uint32
}

// Target is anything backed by a resource: an owned Surface or a View.
type Target interface {
	Descriptor() Descriptor
}

// Surface owns its resource. Destroying it frees the resource.
type Surface struct {
	name string
	desc Descriptor
}

// Name returns the name the surface was allocated with.
func (s *Surface) Name() string { return s.name }

// Handle returns the underlying resource handle.
func (s *Surface) Handle() gpu.ResourceHandle { return s.desc.Handle }

// Descriptor implements Target
func (s *Surface) Descriptor() Descriptor { return s.desc }

// View borrows a resource owned elsewhere. Releasing a view never frees the
// resource.
type View struct {
	desc Descriptor
}

// Handle returns the underlying resource handle.
func (v *View) Handle() gpu.ResourceHandle { return v.desc.Handle }

// Descriptor implements Target
func (v *View) Descriptor() Descriptor { return v.desc }

// updatePlaneOffsets derives plane placement from the render and lock
// offsets reported for the resource. Packed layouts have a single base
// offset; YUV and planar RGB layouts carry Y, U and V planes.
func updatePlaneOffsets(d *Descriptor) {
	o := d.Offsets
	if d.Format.IsPackedRGB() {
		d.Offset = o.RGB.BaseOffset
		d.YPlane = gpu.PlaneOffset{
			SurfaceOffset: o.RGB.BaseOffset,
			XOffset:       o.RGB.XOffset,
			YOffset:       o.RGB.YOffset,
		}
		return
	}

	d.Offset = o.Y.BaseOffset
	d.YPlane = gpu.PlaneOffset{
		SurfaceOffset:     o.Y.BaseOffset,
		XOffset:           o.Y.XOffset,
		YOffset:           o.Y.YOffset,
		LockSurfaceOffset: o.LockY,
	}
	d.UPlane = gpu.PlaneOffset{
		SurfaceOffset:     o.U.BaseOffset,
		XOffset:           o.U.XOffset,
		YOffset:           o.U.YOffset,
		LockSurfaceOffset: o.LockU,
	}
	d.VPlane = gpu.PlaneOffset{
		SurfaceOffset:     o.V.BaseOffset,
		XOffset:           o.V.XOffset,
		YOffset:           o.V.YOffset,
		LockSurfaceOffset: o.LockV,
	}
}
