package backend

import (
	"fmt"
	"sync/atomic"

	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/interfaces"
	"github.com/ehrlich-b/go-mediadrv/internal/logging"
	"github.com/ehrlich-b/go-mediadrv/internal/mediacopy"
)

// CopyEngine copies surfaces with the CPU on behalf of one engine path.
type CopyEngine struct {
	dev    *Device
	name   string
	logger *logging.Logger
	copies atomic.Uint64
}

// NewCopyEngine returns a copy engine named after the hardware path it
// stands in for.
func NewCopyEngine(dev *Device, name string) *CopyEngine {
	return &CopyEngine{
		dev:    dev,
		name:   name,
		logger: dev.logger.WithEngine(name),
	}
}

// Copy implements interfaces.CopyEngine. Rows are copied up to the shorter
// pitch and the smaller row count of the two resources; both resources are
// left busy.
func (c *CopyEngine) Copy(src, dst gpu.ResourceHandle) error {
	if src == dst {
		return gpu.NewError("ENGINE_COPY", gpu.CodeInvalidParameter, "source and destination are the same resource")
	}
	srcMem, srcInfo, err := c.dev.mem.DeviceAccess(src)
	if err != nil {
		return err
	}
	dstMem, dstInfo, err := c.dev.mem.DeviceAccess(dst)
	if err != nil {
		return err
	}
	if srcInfo.Pitch == 0 || dstInfo.Pitch == 0 {
		return gpu.NewError("ENGINE_COPY", gpu.CodeInvalidParameter, "resource without pitch")
	}

	rowBytes := min(srcInfo.Pitch, dstInfo.Pitch)
	rows := min(srcInfo.Size/srcInfo.Pitch, dstInfo.Size/dstInfo.Pitch)
	if srcInfo.Pitch == dstInfo.Pitch {
		n := rowBytes * rows
		copy(dstMem[:n], srcMem[:n])
	} else {
		for y := uint32(0); y < rows; y++ {
			copy(dstMem[y*dstInfo.Pitch:y*dstInfo.Pitch+rowBytes], srcMem[y*srcInfo.Pitch:y*srcInfo.Pitch+rowBytes])
		}
	}
	c.copies.Add(1)
	c.logger.Debug("engine copy", "src", uint64(src), "dst", uint64(dst), "rows", rows, "row_bytes", rowBytes)
	return nil
}

// Name returns the hardware path the engine stands in for.
func (c *CopyEngine) Name() string { return c.name }

// Copies returns the number of copies this engine performed.
func (c *CopyEngine) Copies() uint64 { return c.copies.Load() }

// NewCopyEngines returns one CPU copy engine per hardware path.
func NewCopyEngines(dev *Device) mediacopy.Engines {
	return mediacopy.Engines{
		Vebox:  NewCopyEngine(dev, mediacopy.EngineVebox.String()),
		Blt:    NewCopyEngine(dev, mediacopy.EngineBlt.String()),
		Render: NewCopyEngine(dev, mediacopy.EngineRender.String()),
	}
}

// MMC is the simulated memory-compression policy. A surface keeps the mode
// it was allocated with only when compression is enabled and the surface
// is compressible and Y tiled.
type MMC struct {
	dev     *Device
	enabled bool
}

// NewMMC returns the MMC policy for dev. enabled is ANDed with the
// device's compression SKU bit.
func NewMMC(dev *Device, enabled bool) *MMC {
	return &MMC{dev: dev, enabled: enabled && dev.Feature(FeatureCompression)}
}

// Enabled implements interfaces.MMC
func (m *MMC) Enabled() bool { return m.enabled }

// CompressibleSurfaceSupported implements interfaces.MMC
func (m *MMC) CompressibleSurfaceSupported() bool {
	return m.dev.Feature(FeatureCompressible)
}

// SurfaceMode implements interfaces.MMC
func (m *MMC) SurfaceMode(info *gpu.ResourceInfo) {
	if !m.enabled || !info.Compressible || (info.TileType != gpu.TileY && info.TileType != gpu.TileYS) {
		info.CompressionMode = gpu.MMCDisabled
	}
}

var compressionFormats = map[gpu.Format]uint32{
	gpu.FormatNV12:     0x0F,
	gpu.FormatP010:     0x07,
	gpu.FormatYUY2:     0x08,
	gpu.FormatAYUV:     0x09,
	gpu.FormatY410:     0x0B,
	gpu.FormatA8R8G8B8: 0x0A,
	gpu.FormatA8B8G8R8: 0x0A,
	gpu.FormatX8R8G8B8: 0x0A,
}

// SurfaceFormat implements interfaces.MMC
func (m *MMC) SurfaceFormat(info gpu.ResourceInfo) uint32 {
	return compressionFormats[info.Format]
}

// Platform gates engines on the device's SKU table and keeps the default
// format rules.
type Platform struct {
	mediacopy.FormatPlatform
	dev *Device
}

// NewPlatform returns the copy platform for dev.
func NewPlatform(dev *Device) *Platform {
	return &Platform{dev: dev}
}

// FeatureSupport implements mediacopy.Platform
func (p *Platform) FeatureSupport(src, dst mediacopy.SurfaceDesc, caps *mediacopy.Caps) error {
	if src.Resource.IsNull() || dst.Resource.IsNull() {
		return gpu.NewError("FEATURE_SUPPORT", gpu.CodeInvalidParameter,
			fmt.Sprintf("null resource (src %d, dst %d)", src.Resource, dst.Resource))
	}
	if !p.dev.Feature(FeatureVebox) || !p.dev.HasNode(gpu.NodeVideo) {
		caps.Vebox = false
	}
	if !p.dev.Feature(FeatureBlt) {
		caps.Blt = false
	}
	if !p.dev.Feature(FeatureRenderCopy) || !p.dev.HasNode(gpu.NodeRender) {
		caps.Render = false
	}
	return nil
}

var (
	_ interfaces.CopyEngine = (*CopyEngine)(nil)
	_ interfaces.MMC        = (*MMC)(nil)
	_ mediacopy.Platform    = (*Platform)(nil)
)
