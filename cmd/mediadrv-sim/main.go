package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ehrlich-b/go-mediadrv"
	"github.com/ehrlich-b/go-mediadrv/backend"
	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/logging"
)

// Environment overrides for -method and the log level.
const (
	copyMethodEnv = "MEDIADRV_COPY_METHOD"
	logLevelEnv   = "MEDIADRV_LOG_LEVEL"
)

func main() {
	var (
		frames    = flag.Int("frames", 60, "Number of frames to run through the pipeline")
		width     = flag.Uint("width", 1920, "Frame width in pixels")
		height    = flag.Uint("height", 1080, "Frame height in pixels")
		resizeAt  = flag.Int("resize-at", 0, "Frame at which the stream switches to half resolution (0 disables)")
		methodStr = flag.String("method", "balance", "Copy engine preference: performance, balance or power-saving")
		budgetStr = flag.String("budget", "0", "Device memory budget (e.g., 256M, 1G); 0 is unlimited")
		noMMC     = flag.Bool("no-mmc", false, "Disable memory compression")
		osPool    = flag.Bool("os-interface", false, "Manage contexts through the OS interface")
		stats     = flag.Bool("stats", false, "Print a JSON metrics snapshot on exit")
		verbose   = flag.Bool("v", false, "Verbose output")
		jsonLogs  = flag.Bool("json", false, "Log as JSON")
	)
	flag.Parse()

	if env := os.Getenv(copyMethodEnv); env != "" {
		*methodStr = env
	}
	method, err := mediadrv.ParseMethod(*methodStr)
	if err != nil {
		log.Fatalf("Invalid copy method '%s': %v", *methodStr, err)
	}
	budget, err := parseSize(*budgetStr)
	if err != nil {
		log.Fatalf("Invalid budget '%s': %v", *budgetStr, err)
	}

	// Set up logging
	logConfig := logging.DefaultConfig()
	if env := os.Getenv(logLevelEnv); env != "" {
		logConfig.Level = logging.ParseLevel(env)
	}
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	if *jsonLogs {
		logConfig.Format = "json"
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	dev := backend.NewDevice(backend.Config{MemoryBudget: budget, Logger: logger})
	defer dev.Close()

	params := mediadrv.DefaultParams(mediadrv.Platform{
		OS:           backend.NewOSInterface(dev),
		Allocator:    dev.Memory(),
		MMC:          backend.NewMMC(dev, true),
		Engines:      backend.NewEngineManager(dev),
		OSContext:    dev,
		CopyEngines:  backend.NewCopyEngines(dev),
		CopyPlatform: backend.NewPlatform(dev),
	})
	params.CopyMethod = method
	params.MMCEnabled = !*noMMC
	params.UseOSInterface = *osPool
	params.Functions = []mediadrv.FuncType{mediadrv.FuncDecode, mediadrv.FuncVeboxVP}

	drv, err := mediadrv.Open(params, &mediadrv.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to open driver", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	budgetDesc := "unlimited"
	if budget > 0 {
		budgetDesc = formatSize(budget)
	}
	logger.Info("running pipeline", "frames", *frames, "width", *width, "height", *height,
		"method", method.String(), "budget", budgetDesc)

	p := &pipeline{drv: drv, logger: logger.WithComponent("pipeline")}
	runErr := p.run(ctx, *frames, *resizeAt, uint32(*width), uint32(*height))
	p.release()

	if err := drv.Close(); err != nil {
		logger.Error("error closing driver", "error", err)
	}
	if runErr != nil && ctx.Err() == nil {
		logger.Error("pipeline failed", "error", runErr)
		os.Exit(1)
	}

	snap := drv.MetricsSnapshot()
	fmt.Printf("Frames: %d\n", p.done)
	fmt.Printf("Copies: %d (vebox %d, blt %d, render %d)\n",
		snap.TotalCopies, snap.VeboxCopies, snap.BltCopies, snap.RenderCopies)
	fmt.Printf("Copied: %s (%.1f copies/s)\n", formatSize(snap.CopyBytes), snap.CopiesPerSec)
	fmt.Printf("Command buffers: %d submitted, %d errors\n", snap.CmdSubmitted, snap.CmdErrors)
	fmt.Printf("Surfaces: %d allocated, %d reused, %d deferred, %d freed\n",
		snap.SurfaceAllocs, snap.SurfaceReuses, snap.SurfaceDeferred, snap.SurfaceFrees)
	fmt.Printf("Latency: p50 %dns, p99 %dns\n", snap.LatencyP50Ns, snap.LatencyP99Ns)

	if *stats {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			logger.Error("failed to encode metrics", "error", err)
		}
	}
}

// pipeline decodes into one surface per frame and copies it into the
// video-processing input.
type pipeline struct {
	drv    *mediadrv.Driver
	logger *logging.Logger

	decoded *mediadrv.Surface
	vpIn    *mediadrv.Surface
	done    int
}

func (p *pipeline) run(ctx context.Context, frames, resizeAt int, w, h uint32) error {
	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			p.logger.Info("pipeline interrupted", "frame", i)
			return err
		}
		if resizeAt > 0 && i == resizeAt {
			w, h = w/2, h/2
			p.logger.Info("resolution change", "frame", i, "width", w, "height", h)
		}
		if err := p.frame(ctx, i, w, h); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		p.done++
	}
	return nil
}

func (p *pipeline) frame(ctx context.Context, n int, w, h uint32) error {
	surfaces := p.drv.Surfaces()

	req := mediadrv.SurfaceRequest{
		Name:            "decode-out",
		Format:          gpu.FormatNV12,
		Type:            gpu.Resource2D,
		TileType:        gpu.TileY,
		Width:           w,
		Height:          h,
		Compressible:    true,
		CompressionMode: gpu.MMCMC,
		Deferred:        true,
	}
	var err error
	if p.decoded, _, err = surfaces.Reallocate(p.decoded, req); err != nil {
		return err
	}
	req.Name = "vp-in"
	if p.vpIn, _, err = surfaces.Reallocate(p.vpIn, req); err != nil {
		return err
	}

	if err := p.decode(n); err != nil {
		return err
	}
	engine, err := p.drv.Copy(ctx, p.decoded.Handle(), p.vpIn.Handle())
	if err != nil {
		return err
	}

	freed := p.drv.EndFrame()
	p.logger.Debug("frame done", "frame", n, "engine", engine.String(), "recycled", freed)
	return nil
}

// decode records a command buffer that writes the decode output.
func (p *pipeline) decode(n int) error {
	if err := p.drv.SelectContext(mediadrv.FuncDecode); err != nil {
		return err
	}
	buf, err := p.drv.AcquireCommandBuffer(0)
	if err != nil {
		return err
	}
	if _, err := buf.Write([]byte{0x18, 0x00, byte(n), byte(n >> 8)}); err != nil {
		_ = p.drv.ReturnCommandBuffer(buf, 0)
		return err
	}
	if err := buf.AddPatch(mediadrv.PatchEntry{Resource: p.decoded.Handle(), Write: true}); err != nil {
		_ = p.drv.ReturnCommandBuffer(buf, 0)
		return err
	}
	if err := p.drv.SubmitCommandBuffer(buf, false); err != nil {
		return err
	}
	p.logger.WithFunc(mediadrv.FuncDecode).Debug("decode submitted", "frame", n, "buffer", buf.ID)
	return nil
}

func (p *pipeline) release() {
	surfaces := p.drv.Surfaces()
	for _, s := range []**mediadrv.Surface{&p.decoded, &p.vpIn} {
		if err := surfaces.Destroy(s, false); err != nil {
			p.logger.Warn("failed to destroy surface", "error", err)
		}
	}
}

// parseSize parses a size string like "64M", "1G", "512K"
func parseSize(s string) (uint64, error) {
	s = strings.ToUpper(s)

	var multiplier uint64 = 1
	numStr := s

	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	}

	num, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, err
	}

	return num * multiplier, nil
}

// formatSize formats a byte count as a human-readable string
func formatSize(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"K", "M", "G", "T"}
	return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
}
