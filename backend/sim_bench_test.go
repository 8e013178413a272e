package backend

import (
	"fmt"
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/logging"
)

// BenchmarkCopyEngine measures CPU surface copies at common frame sizes
func BenchmarkCopyEngine(b *testing.B) {
	sizes := []struct{ w, h uint32 }{
		{640, 480},
		{1920, 1080},
		{3840, 2160},
	}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("NV12_%dx%d", size.w, size.h), func(b *testing.B) {
			dev := NewDevice(Config{Logger: logging.Nop()})
			defer dev.Close()

			params := gpu.AllocParams{
				Type: gpu.Resource2D, Format: gpu.FormatNV12,
				Width: size.w, Height: size.h, TileType: gpu.TileY,
			}
			src, err := dev.Memory().Allocate(params, false)
			if err != nil {
				b.Fatal(err)
			}
			dst, err := dev.Memory().Allocate(params, false)
			if err != nil {
				b.Fatal(err)
			}
			mem, _, _ := dev.Memory().DeviceAccess(src.Handle)
			rand.Read(mem)

			engine := NewCopyEngine(dev, "vebox")
			b.SetBytes(int64(src.Size))
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				engine.Copy(src.Handle, dst.Handle)
			}
		})
	}
}

// BenchmarkSubmit measures get/record/submit round trips on one context
func BenchmarkSubmit(b *testing.B) {
	dev := NewDevice(Config{Logger: logging.Nop()})
	defer dev.Close()
	hw := newHardwareContext(dev, gpu.NodeRender, dev.CommandBufferManager(), gpu.ContextRender)
	cmd := make([]byte, 256)

	b.Run("Throughput", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf, err := hw.GetCommandBuffer(0)
			if err != nil {
				b.Fatal(err)
			}
			buf.Write(cmd)
			hw.SubmitCommandBuffer(nil, buf, true)
		}
	})

	b.Run("Latency", func(b *testing.B) {
		latencies := make([]time.Duration, 0, b.N)
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			start := time.Now()
			buf, _ := hw.GetCommandBuffer(0)
			buf.Write(cmd)
			hw.SubmitCommandBuffer(nil, buf, true)
			latencies = append(latencies, time.Since(start))
		}

		b.StopTimer()
		reportLatencyPercentiles(b, latencies)
	})
}

func reportLatencyPercentiles(b *testing.B, latencies []time.Duration) {
	if len(latencies) == 0 {
		return
	}
	slices.Sort(latencies)

	p50 := latencies[len(latencies)*50/100]
	p90 := latencies[len(latencies)*90/100]
	p99 := latencies[len(latencies)*99/100]

	b.Logf("Latency percentiles: p50=%v, p90=%v, p99=%v", p50, p90, p99)
}
