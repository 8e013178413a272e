package mediacopy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ehrlich-b/go-mediadrv/internal/gpu"
	"github.com/ehrlich-b/go-mediadrv/internal/logging"
)

type infoTable map[gpu.ResourceHandle]gpu.ResourceInfo

func (t infoTable) ResourceInfo(res gpu.ResourceHandle) (gpu.ResourceInfo, error) {
	info, ok := t[res]
	if !ok {
		return gpu.ResourceInfo{}, gpu.NewError("RESOURCE_INFO", gpu.CodeInvalidHandle, "unknown resource")
	}
	return info, nil
}

type recordingEngine struct {
	mu    sync.Mutex
	name  string
	calls int
	err   error
	log   *[]string
}

func (e *recordingEngine) Copy(src, dst gpu.ResourceHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.log != nil {
		*e.log = append(*e.log, e.name)
	}
	return e.err
}

type fixture struct {
	infos  infoTable
	vebox  *recordingEngine
	blt    *recordingEngine
	render *recordingEngine
}

const (
	srcRes gpu.ResourceHandle = 1
	dstRes gpu.ResourceHandle = 2
)

func newFixture() *fixture {
	surf := gpu.ResourceInfo{
		Type:     gpu.Resource2D,
		Format:   gpu.FormatNV12,
		Width:    64,
		Height:   64,
		Pitch:    64,
		Size:     64 * 96,
		TileType: gpu.TileY,
	}
	src, dst := surf, surf
	src.Handle, dst.Handle = srcRes, dstRes
	return &fixture{
		infos:  infoTable{srcRes: src, dstRes: dst},
		vebox:  &recordingEngine{name: "vebox"},
		blt:    &recordingEngine{name: "blt"},
		render: &recordingEngine{name: "render"},
	}
}

func (f *fixture) dispatcher(t *testing.T, mutate func(*Config)) *Dispatcher {
	t.Helper()
	cfg := Config{
		Querier: f.infos,
		Engines: Engines{Vebox: f.vebox, Blt: f.blt, Render: f.render},
		Logger:  logging.Nop(),
		Tracer:  noop.NewTracerProvider().Tracer("test"),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := NewDispatcher(cfg)
	require.NoError(t, err)
	return d
}

func (f *fixture) update(res gpu.ResourceHandle, mutate func(*gpu.ResourceInfo)) {
	info := f.infos[res]
	mutate(&info)
	f.infos[res] = info
}

func (f *fixture) totalCalls() int {
	return f.vebox.calls + f.blt.calls + f.render.calls
}

func TestSelectEngine(t *testing.T) {
	tests := []struct {
		name   string
		caps   Caps
		method Method
		want   Engine
	}{
		{"performance all", AllCaps(), MethodPerformance, EngineRender},
		{"balance all", AllCaps(), MethodBalance, EngineVebox},
		{"power all", AllCaps(), MethodPowerSaving, EngineBlt},

		{"performance no render", Caps{Vebox: true, Blt: true}, MethodPerformance, EngineBlt},
		{"performance vebox only", Caps{Vebox: true}, MethodPerformance, EngineVebox},
		{"balance no vebox", Caps{Blt: true, Render: true}, MethodBalance, EngineBlt},
		{"balance render only", Caps{Render: true}, MethodBalance, EngineRender},
		{"power no blt", Caps{Vebox: true, Render: true}, MethodPowerSaving, EngineVebox},
		{"power render only", Caps{Render: true}, MethodPowerSaving, EngineRender},
		{"performance blt only", Caps{Blt: true}, MethodPerformance, EngineBlt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectEngine(tt.caps, tt.method)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := SelectEngine(Caps{}, MethodBalance)
	assert.ErrorIs(t, err, gpu.ErrInvalidParameter)
	_, err = SelectEngine(AllCaps(), Method(42))
	assert.ErrorIs(t, err, gpu.ErrInvalidParameter)
}

func TestSurfaceCopyPreference(t *testing.T) {
	tests := []struct {
		method Method
		want   Engine
	}{
		{MethodPerformance, EngineRender},
		{MethodBalance, EngineVebox},
		{MethodPowerSaving, EngineBlt},
	}
	for _, tt := range tests {
		t.Run(tt.method.String(), func(t *testing.T) {
			f := newFixture()
			d := f.dispatcher(t, nil)

			got, err := d.SurfaceCopy(context.Background(), srcRes, dstRes, tt.method)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 1, f.totalCalls())
		})
	}
}

func TestSurfaceCopyProtectedToClear(t *testing.T) {
	for _, m := range []Method{MethodPerformance, MethodBalance, MethodPowerSaving} {
		t.Run(m.String(), func(t *testing.T) {
			f := newFixture()
			f.update(srcRes, func(i *gpu.ResourceInfo) { i.Protection = gpu.CPProtected })
			d := f.dispatcher(t, nil)

			_, err := d.SurfaceCopy(context.Background(), srcRes, dstRes, m)
			assert.ErrorIs(t, err, gpu.ErrInvalidParameter)
			assert.Equal(t, 0, f.totalCalls())
		})
	}
}

func TestSurfaceCopyProtectedAllowed(t *testing.T) {
	f := newFixture()
	f.update(srcRes, func(i *gpu.ResourceInfo) { i.Protection = gpu.CPProtected })
	d := f.dispatcher(t, func(c *Config) { c.AllowProtectedBlt = true })

	got, err := d.SurfaceCopy(context.Background(), srcRes, dstRes, MethodPowerSaving)
	require.NoError(t, err)
	assert.Equal(t, EngineBlt, got)
}

func TestSurfaceCopyProtectionBeatsCapabilities(t *testing.T) {
	f := newFixture()
	f.update(srcRes, func(i *gpu.ResourceInfo) {
		i.Protection = gpu.CPProtected
		i.AuxSurface = true
		i.CompressionMode = gpu.MMCMC
	})
	d := f.dispatcher(t, nil)

	_, err := d.SurfaceCopy(context.Background(), srcRes, dstRes, MethodBalance)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "protected")
}

func TestSurfaceCopyBltFallback(t *testing.T) {
	f := newFixture()
	// A format change rules out vebox and render on the default platform.
	f.update(srcRes, func(i *gpu.ResourceInfo) { i.TileType = gpu.TileLinear })
	f.update(dstRes, func(i *gpu.ResourceInfo) { i.Format = gpu.FormatP010 })
	d := f.dispatcher(t, nil)

	caps, err := d.Capabilities(srcRes, dstRes)
	require.NoError(t, err)
	assert.Equal(t, Caps{Blt: true}, caps)

	got, err := d.SurfaceCopy(context.Background(), srcRes, dstRes, MethodPerformance)
	require.NoError(t, err)
	assert.Equal(t, EngineBlt, got)
	assert.Equal(t, 1, f.blt.calls)
}

func TestSurfaceCopyNoCapableEngine(t *testing.T) {
	f := newFixture()
	f.update(srcRes, func(i *gpu.ResourceInfo) {
		i.AuxSurface = true
		i.CompressionMode = gpu.MMCRC
	})
	d := f.dispatcher(t, nil)

	for _, m := range []Method{MethodPerformance, MethodBalance, MethodPowerSaving} {
		_, err := d.SurfaceCopy(context.Background(), srcRes, dstRes, m)
		assert.ErrorIs(t, err, gpu.ErrInvalidParameter)
	}
	assert.Equal(t, 0, f.totalCalls(), "no copy implementation is invoked")
}

func TestCompressionFilters(t *testing.T) {
	tests := []struct {
		name   string
		srcMMC gpu.MMCMode
		dstMMC gpu.MMCMode
		want   Caps
	}{
		{"uncompressed", gpu.MMCDisabled, gpu.MMCDisabled, AllCaps()},
		{"dst render compressed", gpu.MMCDisabled, gpu.MMCRC, Caps{Render: true}},
		{"dst media compressed", gpu.MMCDisabled, gpu.MMCMC, Caps{Vebox: true}},
		{"src compressed", gpu.MMCMC, gpu.MMCDisabled, Caps{Vebox: true, Render: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.update(srcRes, func(i *gpu.ResourceInfo) { i.CompressionMode = tt.srcMMC })
			f.update(dstRes, func(i *gpu.ResourceInfo) { i.CompressionMode = tt.dstMMC })
			d := f.dispatcher(t, nil)

			caps, err := d.Capabilities(srcRes, dstRes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, caps)
		})
	}
}

func TestMissingEngineIsNotCapable(t *testing.T) {
	f := newFixture()
	d := f.dispatcher(t, func(c *Config) { c.Engines.Render = nil })

	got, err := d.SurfaceCopy(context.Background(), srcRes, dstRes, MethodPerformance)
	require.NoError(t, err)
	assert.Equal(t, EngineBlt, got)
}

type skuPlatform struct {
	FormatPlatform
	noVebox bool
	err     error
}

func (p skuPlatform) FeatureSupport(_, _ SurfaceDesc, caps *Caps) error {
	if p.noVebox {
		caps.Vebox = false
	}
	return p.err
}

func TestPlatformFeatureSupport(t *testing.T) {
	f := newFixture()
	d := f.dispatcher(t, func(c *Config) { c.Platform = skuPlatform{noVebox: true} })

	got, err := d.SurfaceCopy(context.Background(), srcRes, dstRes, MethodBalance)
	require.NoError(t, err)
	assert.Equal(t, EngineBlt, got)

	skuErr := gpu.NewError("FEATURE_SUPPORT", gpu.CodeDeviceError, "sku table missing")
	d = f.dispatcher(t, func(c *Config) { c.Platform = skuPlatform{err: skuErr} })
	_, err = d.SurfaceCopy(context.Background(), srcRes, dstRes, MethodBalance)
	assert.Same(t, skuErr, err)
}

func TestSurfaceCopyEngineErrorVerbatim(t *testing.T) {
	f := newFixture()
	f.vebox.err = errors.New("vebox hang")
	d := f.dispatcher(t, nil)

	got, err := d.SurfaceCopy(context.Background(), srcRes, dstRes, MethodBalance)
	assert.EqualError(t, err, "vebox hang")
	assert.Equal(t, EngineVebox, got)
	assert.Equal(t, 1, f.vebox.calls, "failed copies are not retried")
	assert.Equal(t, 0, f.blt.calls)
}

func TestSurfaceCopyUnknownResource(t *testing.T) {
	f := newFixture()
	d := f.dispatcher(t, nil)

	_, err := d.SurfaceCopy(context.Background(), srcRes, 99, MethodBalance)
	assert.ErrorIs(t, err, gpu.ErrInvalidHandle)
	assert.Equal(t, 0, f.totalCalls())
}

func TestSurfaceCopySerialized(t *testing.T) {
	f := newFixture()
	var order []string
	f.vebox.log = &order
	d := f.dispatcher(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.SurfaceCopy(context.Background(), srcRes, dstRes, MethodBalance)
		}()
	}
	wg.Wait()
	assert.Len(t, order, 16)
}

func TestAuxCopyUnimplemented(t *testing.T) {
	f := newFixture()
	d := f.dispatcher(t, nil)
	assert.ErrorIs(t, d.AuxCopy(srcRes, dstRes), gpu.ErrUnimplemented)
}

func TestNewDispatcherRequiresQuerier(t *testing.T) {
	_, err := NewDispatcher(Config{})
	assert.ErrorIs(t, err, gpu.ErrNullDependency)
}

func TestParseMethod(t *testing.T) {
	tests := map[string]Method{
		"performance":  MethodPerformance,
		"Balance":      MethodBalance,
		" power ":      MethodPowerSaving,
		"power-saving": MethodPowerSaving,
	}
	for in, want := range tests {
		got, err := ParseMethod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMethod("fastest")
	assert.ErrorIs(t, err, gpu.ErrInvalidParameter)
}
