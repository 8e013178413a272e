package mediadrv

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks operational statistics for a driver instance
type Metrics struct {
	// Context lifecycle
	ContextsCreated   atomic.Uint64
	ContextsDestroyed atomic.Uint64

	// Command buffers
	CmdAcquired  atomic.Uint64
	CmdSubmitted atomic.Uint64
	CmdReturned  atomic.Uint64
	CmdErrors    atomic.Uint64

	// Copies per engine
	VeboxCopies  atomic.Uint64
	BltCopies    atomic.Uint64
	RenderCopies atomic.Uint64
	CopyBytes    atomic.Uint64 // Bytes moved by successful copies
	CopyErrors   atomic.Uint64

	// Surfaces
	SurfaceAllocs   atomic.Uint64
	SurfaceFrees    atomic.Uint64
	SurfaceReuses   atomic.Uint64
	SurfaceReallocs atomic.Uint64
	SurfaceDeferred atomic.Uint64
	AllocatedBytes  atomic.Uint64 // Cumulative bytes allocated

	// Performance tracking (command buffer and copy operations)
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative counts)
	// Each bucket[i] contains the count of operations with latency <= LatencyBuckets[i]
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Driver lifecycle
	StartTime atomic.Int64 // Open timestamp (UnixNano)
	StopTime  atomic.Int64 // Close timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordContext records a context creation or destruction
func (m *Metrics) RecordContext(created bool) {
	if created {
		m.ContextsCreated.Add(1)
	} else {
		m.ContextsDestroyed.Add(1)
	}
}

// RecordCommandBuffer records an acquire, submit or return
func (m *Metrics) RecordCommandBuffer(op string, latencyNs uint64, success bool) {
	if !success {
		m.CmdErrors.Add(1)
	} else {
		switch op {
		case "acquire":
			m.CmdAcquired.Add(1)
		case "submit":
			m.CmdSubmitted.Add(1)
		case "return":
			m.CmdReturned.Add(1)
		}
	}
	m.recordLatency(latencyNs)
}

// RecordCopy records a surface copy on the named engine
func (m *Metrics) RecordCopy(engine string, bytes uint64, latencyNs uint64, success bool) {
	if !success {
		m.CopyErrors.Add(1)
		m.recordLatency(latencyNs)
		return
	}
	switch engine {
	case EngineVebox.String():
		m.VeboxCopies.Add(1)
	case EngineBlt.String():
		m.BltCopies.Add(1)
	case EngineRender.String():
		m.RenderCopies.Add(1)
	}
	m.CopyBytes.Add(bytes)
	m.recordLatency(latencyNs)
}

// RecordSurface records a surface lifecycle event
func (m *Metrics) RecordSurface(op string, bytes uint64) {
	switch op {
	case "allocate":
		m.SurfaceAllocs.Add(1)
		m.AllocatedBytes.Add(bytes)
	case "free":
		m.SurfaceFrees.Add(1)
	case "reuse":
		m.SurfaceReuses.Add(1)
	case "reallocate":
		m.SurfaceReallocs.Add(1)
	case "defer":
		m.SurfaceDeferred.Add(1)
	}
}

// recordLatency records operation latency and updates histogram
func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	// Update histogram buckets (cumulative)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the driver as closed
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics with derived values
type MetricsSnapshot struct {
	ContextsCreated   uint64
	ContextsDestroyed uint64

	CmdAcquired  uint64
	CmdSubmitted uint64
	CmdReturned  uint64
	CmdErrors    uint64

	VeboxCopies  uint64
	BltCopies    uint64
	RenderCopies uint64
	CopyBytes    uint64
	CopyErrors   uint64

	SurfaceAllocs   uint64
	SurfaceFrees    uint64
	SurfaceReuses   uint64
	SurfaceReallocs uint64
	SurfaceDeferred uint64
	AllocatedBytes  uint64

	// Performance
	AvgLatencyNs uint64
	UptimeNs     uint64

	// Latency percentiles (in nanoseconds)
	LatencyP50Ns  uint64 // 50th percentile (median)
	LatencyP99Ns  uint64 // 99th percentile
	LatencyP999Ns uint64 // 99.9th percentile

	// Histogram bucket counts (cumulative)
	LatencyHistogram [numLatencyBuckets]uint64

	// Computed statistics
	TotalCopies    uint64
	CopiesPerSec   float64
	CopyBandwidth  float64 // Bytes per second
	CopyErrorRate  float64 // Percentage of failed copies
	LiveSurfaces   int64   // Allocated minus freed
	ActiveContexts int64   // Created minus destroyed
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ContextsCreated:   m.ContextsCreated.Load(),
		ContextsDestroyed: m.ContextsDestroyed.Load(),
		CmdAcquired:       m.CmdAcquired.Load(),
		CmdSubmitted:      m.CmdSubmitted.Load(),
		CmdReturned:       m.CmdReturned.Load(),
		CmdErrors:         m.CmdErrors.Load(),
		VeboxCopies:       m.VeboxCopies.Load(),
		BltCopies:         m.BltCopies.Load(),
		RenderCopies:      m.RenderCopies.Load(),
		CopyBytes:         m.CopyBytes.Load(),
		CopyErrors:        m.CopyErrors.Load(),
		SurfaceAllocs:     m.SurfaceAllocs.Load(),
		SurfaceFrees:      m.SurfaceFrees.Load(),
		SurfaceReuses:     m.SurfaceReuses.Load(),
		SurfaceReallocs:   m.SurfaceReallocs.Load(),
		SurfaceDeferred:   m.SurfaceDeferred.Load(),
		AllocatedBytes:    m.AllocatedBytes.Load(),
	}

	snap.TotalCopies = snap.VeboxCopies + snap.BltCopies + snap.RenderCopies
	snap.LiveSurfaces = int64(snap.SurfaceAllocs) - int64(snap.SurfaceFrees)
	snap.ActiveContexts = int64(snap.ContextsCreated) - int64(snap.ContextsDestroyed)

	// Calculate average latency
	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	// Calculate uptime
	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.CopiesPerSec = float64(snap.TotalCopies) / uptimeSeconds
		snap.CopyBandwidth = float64(snap.CopyBytes) / uptimeSeconds
	}

	if attempts := snap.TotalCopies + snap.CopyErrors; attempts > 0 {
		snap.CopyErrorRate = float64(snap.CopyErrors) / float64(attempts) * 100.0
	}

	// Copy histogram bucket counts
	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	// Calculate percentiles from histogram
	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	// Find the bucket containing the target percentile
	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	// If we get here, the latency exceeds all buckets
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters (useful for testing)
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Uint64{
		&m.ContextsCreated, &m.ContextsDestroyed,
		&m.CmdAcquired, &m.CmdSubmitted, &m.CmdReturned, &m.CmdErrors,
		&m.VeboxCopies, &m.BltCopies, &m.RenderCopies, &m.CopyBytes, &m.CopyErrors,
		&m.SurfaceAllocs, &m.SurfaceFrees, &m.SurfaceReuses, &m.SurfaceReallocs,
		&m.SurfaceDeferred, &m.AllocatedBytes,
		&m.TotalLatencyNs, &m.OpCount,
	} {
		c.Store(0)
	}
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver struct{}

func (NoOpObserver) ObserveContext(FuncType, bool) {}
func (NoOpObserver) ObserveCommandBuffer(string, uint64, bool) {}
func (NoOpObserver) ObserveCopy(string, uint64, uint64, bool) {}
func (NoOpObserver) ObserveSurface(string, uint64) {}

// MetricsObserver implements Observer using the built-in Metrics
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveContext(_ FuncType, created bool) {
	o.metrics.RecordContext(created)
}

func (o *MetricsObserver) ObserveCommandBuffer(op string, latencyNs uint64, success bool) {
	o.metrics.RecordCommandBuffer(op, latencyNs, success)
}

func (o *MetricsObserver) ObserveCopy(engine string, bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordCopy(engine, bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveSurface(op string, bytes uint64) {
	o.metrics.RecordSurface(op, bytes)
}

// Compile-time interface check
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
