package diskaio

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

// Metrics tracks performance and operational statistics for one engine
type Metrics struct {
	// I/O operation counters
	ReadOps  atomic.Uint64 // Total read operations
	WriteOps atomic.Uint64 // Total write operations

	// Byte counters
	ReadBytes  atomic.Uint64 // Total bytes read
	WriteBytes atomic.Uint64 // Total bytes written

	// Error counters
	ReadErrors  atomic.Uint64 // Read operation errors
	WriteErrors atomic.Uint64 // Write operation errors

	// Pattern classification
	SequentialOps atomic.Uint64
	RandomOps     atomic.Uint64

	// In-flight statistics
	InFlightTotal atomic.Uint64 // Cumulative in-flight samples
	InFlightCount atomic.Uint64 // Number of in-flight measurements
	MaxInFlight   atomic.Uint32 // Maximum observed in-flight count

	// Health and backpressure
	SlowDiskEvents    atomic.Uint64 // healthy to slow transitions
	BackpressureWaits atomic.Uint64 // completion handoffs that found the queue full

	// Performance tracking
	TotalLatencyNs atomic.Uint64 // Cumulative operation latency in nanoseconds
	OpCount        atomic.Uint64 // Total operations (for average latency calculation)

	// Latency histogram buckets (cumulative counts)
	// Each bucket[i] contains the count of operations with latency <= LatencyBuckets[i]
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Engine lifecycle
	StartTime atomic.Int64 // Engine start timestamp (UnixNano)
	StopTime  atomic.Int64 // Engine stop timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordRead records a read operation
func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordWrite records a write operation
func (m *Metrics) RecordWrite(bytes uint64, latencyNs uint64, success bool) {
	m.WriteOps.Add(1)
	if success {
		m.WriteBytes.Add(bytes)
	} else {
		m.WriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordPattern records the classification of a completed operation
func (m *Metrics) RecordPattern(sequential bool) {
	if sequential {
		m.SequentialOps.Add(1)
	} else {
		m.RandomOps.Add(1)
	}
}

// RecordInFlight records the current in-flight count for statistics
func (m *Metrics) RecordInFlight(n uint32) {
	m.InFlightTotal.Add(uint64(n))
	m.InFlightCount.Add(1)

	// Update max in-flight atomically
	for {
		current := m.MaxInFlight.Load()
		if n <= current {
			break
		}
		if m.MaxInFlight.CompareAndSwap(current, n) {
			break
		}
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

// Stop marks the engine as stopped
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics with derived values
type MetricsSnapshot struct {
	// I/O operations
	ReadOps  uint64
	WriteOps uint64

	// Bytes transferred
	ReadBytes  uint64
	WriteBytes uint64

	// Error counts
	ReadErrors  uint64
	WriteErrors uint64

	// Pattern classification
	SequentialOps uint64
	RandomOps     uint64

	// In-flight statistics
	AvgInFlight float64
	MaxInFlight uint32

	// Health and backpressure
	SlowDiskEvents    uint64
	BackpressureWaits uint64

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
	ReadIOPS       float64 // Operations per second
	WriteIOPS      float64
	ReadBandwidth  float64 // Bytes per second
	WriteBandwidth float64
	TotalOps       uint64
	TotalBytes     uint64
	ErrorRate      float64 // Percentage of failed operations
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ReadOps:           m.ReadOps.Load(),
		WriteOps:          m.WriteOps.Load(),
		ReadBytes:         m.ReadBytes.Load(),
		WriteBytes:        m.WriteBytes.Load(),
		ReadErrors:        m.ReadErrors.Load(),
		WriteErrors:       m.WriteErrors.Load(),
		SequentialOps:     m.SequentialOps.Load(),
		RandomOps:         m.RandomOps.Load(),
		MaxInFlight:       m.MaxInFlight.Load(),
		SlowDiskEvents:    m.SlowDiskEvents.Load(),
		BackpressureWaits: m.BackpressureWaits.Load(),
	}

	// Calculate derived statistics
	snap.TotalOps = snap.ReadOps + snap.WriteOps
	snap.TotalBytes = snap.ReadBytes + snap.WriteBytes

	inFlightTotal := m.InFlightTotal.Load()
	inFlightCount := m.InFlightCount.Load()
	if inFlightCount > 0 {
		snap.AvgInFlight = float64(inFlightTotal) / float64(inFlightCount)
	}

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

	// Calculate rates (operations and bandwidth per second)
	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.ReadIOPS = float64(snap.ReadOps) / uptimeSeconds
		snap.WriteIOPS = float64(snap.WriteOps) / uptimeSeconds
		snap.ReadBandwidth = float64(snap.ReadBytes) / uptimeSeconds
		snap.WriteBandwidth = float64(snap.WriteBytes) / uptimeSeconds
	}

	// Calculate error rate
	totalErrors := snap.ReadErrors + snap.WriteErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
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
	m.ReadOps.Store(0)
	m.WriteOps.Store(0)
	m.ReadBytes.Store(0)
	m.WriteBytes.Store(0)
	m.ReadErrors.Store(0)
	m.WriteErrors.Store(0)
	m.SequentialOps.Store(0)
	m.RandomOps.Store(0)
	m.InFlightTotal.Store(0)
	m.InFlightCount.Store(0)
	m.MaxInFlight.Store(0)
	m.SlowDiskEvents.Store(0)
	m.BackpressureWaits.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer interface allows pluggable metrics collection
type Observer interface {
	// ObserveRead is called for each completed read
	ObserveRead(bytes uint64, latencyNs uint64, success bool)

	// ObserveWrite is called for each completed write
	ObserveWrite(bytes uint64, latencyNs uint64, success bool)

	// ObservePattern is called with each completion's classification
	ObservePattern(sequential bool)

	// ObserveInFlight is called after admission and completion with the
	// current in-flight count
	ObserveInFlight(n uint32)

	// ObserveSlowDisk is called on each healthy to slow transition
	ObserveSlowDisk(class string)

	// ObserveBackpressure is called when a completion finds the task queue full
	ObserveBackpressure()
}

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver struct{}

func (NoOpObserver) ObserveRead(uint64, uint64, bool)  {}
func (NoOpObserver) ObserveWrite(uint64, uint64, bool) {}
func (NoOpObserver) ObservePattern(bool)               {}
func (NoOpObserver) ObserveInFlight(uint32)            {}
func (NoOpObserver) ObserveSlowDisk(string)            {}
func (NoOpObserver) ObserveBackpressure()              {}

// MetricsObserver implements Observer using the built-in Metrics
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordRead(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveWrite(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordWrite(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObservePattern(sequential bool) {
	o.metrics.RecordPattern(sequential)
}

func (o *MetricsObserver) ObserveInFlight(n uint32) {
	o.metrics.RecordInFlight(n)
}

func (o *MetricsObserver) ObserveSlowDisk(string) {
	o.metrics.SlowDiskEvents.Add(1)
}

func (o *MetricsObserver) ObserveBackpressure() {
	o.metrics.BackpressureWaits.Add(1)
}

// MultiObserver fans each observation out to every member
type MultiObserver []Observer

func (mo MultiObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	for _, o := range mo {
		o.ObserveRead(bytes, latencyNs, success)
	}
}

func (mo MultiObserver) ObserveWrite(bytes uint64, latencyNs uint64, success bool) {
	for _, o := range mo {
		o.ObserveWrite(bytes, latencyNs, success)
	}
}

func (mo MultiObserver) ObservePattern(sequential bool) {
	for _, o := range mo {
		o.ObservePattern(sequential)
	}
}

func (mo MultiObserver) ObserveInFlight(n uint32) {
	for _, o := range mo {
		o.ObserveInFlight(n)
	}
}

func (mo MultiObserver) ObserveSlowDisk(class string) {
	for _, o := range mo {
		o.ObserveSlowDisk(class)
	}
}

func (mo MultiObserver) ObserveBackpressure() {
	for _, o := range mo {
		o.ObserveBackpressure()
	}
}

// Compile-time interface checks
var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = NoOpObserver{}
	_ Observer = MultiObserver(nil)
)
