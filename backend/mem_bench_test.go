package backend

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/ehrlich-b/go-diskaio/internal/interfaces"
	"github.com/ehrlich-b/go-diskaio/internal/orderstat"
)

const benchDeviceSize = 64 << 20

func benchFacility(b *testing.B, depth int) (*Memory, interfaces.Facility) {
	b.Helper()
	mem := NewMemory(benchDeviceSize)
	f, err := mem.Factory()(depth)
	if err != nil {
		b.Fatalf("Factory: %v", err)
	}
	b.Cleanup(func() { _ = f.Close() })
	return mem, f
}

// roundTrip submits one operation and reaps its completion.
func roundTrip(b *testing.B, f interfaces.Facility, op interfaces.Operation) {
	if n, err := f.Submit([]interfaces.Operation{op}); err != nil || n != 1 {
		b.Fatalf("Submit: n=%d err=%v", n, err)
	}
	events, err := f.Wait(1, 1, -1)
	if err != nil || len(events) != 1 {
		b.Fatalf("Wait: events=%d err=%v", len(events), err)
	}
}

// BenchmarkMemorySubmitWait measures a single submit/reap round trip
func BenchmarkMemorySubmitWait(b *testing.B) {
	sizes := []int{
		4 * 1024,    // 4KB
		128 * 1024,  // 128KB
		1024 * 1024, // 1MB
	}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("%dK", size/1024), func(b *testing.B) {
			for _, kind := range []interfaces.OpCode{interfaces.OpRead, interfaces.OpWrite} {
				b.Run(kind.String()+"_random", func(b *testing.B) {
					_, f := benchFacility(b, 1)
					buf := make([]byte, size)
					b.SetBytes(int64(size))
					b.ResetTimer()

					for i := 0; i < b.N; i++ {
						off := rand.Int64N(benchDeviceSize - int64(size))
						roundTrip(b, f, interfaces.Operation{UserData: uint64(i + 1), Op: kind, Offset: off, Buf: buf})
					}
				})

				b.Run(kind.String()+"_sequential", func(b *testing.B) {
					_, f := benchFacility(b, 1)
					buf := make([]byte, size)
					b.SetBytes(int64(size))
					b.ResetTimer()

					off := int64(0)
					for i := 0; i < b.N; i++ {
						roundTrip(b, f, interfaces.Operation{UserData: uint64(i + 1), Op: kind, Offset: off, Buf: buf})
						off += int64(size)
						if off+int64(size) > benchDeviceSize {
							off = 0
						}
					}
				})
			}
		})
	}
}

// BenchmarkMemoryBatch measures throughput when a full depth is submitted
// at once and reaped in one call
func BenchmarkMemoryBatch(b *testing.B) {
	const blockSize = 4096

	for _, depth := range []int{1, 8, 32, 128} {
		b.Run(fmt.Sprintf("Depth_%d", depth), func(b *testing.B) {
			_, f := benchFacility(b, depth)
			ops := make([]interfaces.Operation, depth)
			for i := range ops {
				ops[i] = interfaces.Operation{
					UserData: uint64(i + 1),
					Op:       interfaces.OpRead,
					Buf:      make([]byte, blockSize),
				}
			}
			b.SetBytes(int64(blockSize * depth))
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				for j := range ops {
					ops[j].Offset = rand.Int64N(benchDeviceSize/blockSize) * blockSize
				}
				if n, err := f.Submit(ops); err != nil || n != depth {
					b.Fatalf("Submit: n=%d err=%v", n, err)
				}
				for reaped := 0; reaped < depth; {
					events, err := f.Wait(depth-reaped, depth, -1)
					if err != nil {
						b.Fatalf("Wait: %v", err)
					}
					reaped += len(events)
				}
			}
		})
	}
}

// BenchmarkMemoryLatency measures round-trip latency distribution
func BenchmarkMemoryLatency(b *testing.B) {
	const blockSize = 4096

	for _, kind := range []interfaces.OpCode{interfaces.OpRead, interfaces.OpWrite} {
		b.Run(kind.String(), func(b *testing.B) {
			_, f := benchFacility(b, 1)
			buf := make([]byte, blockSize)
			latencies := make([]uint64, 0, b.N)
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				off := rand.Int64N(benchDeviceSize - blockSize)
				start := time.Now()
				roundTrip(b, f, interfaces.Operation{UserData: uint64(i + 1), Op: kind, Offset: off, Buf: buf})
				latencies = append(latencies, uint64(time.Since(start)))
			}

			b.StopTimer()
			reportLatencyPercentiles(b, latencies)
		})
	}
}

func reportLatencyPercentiles(b *testing.B, latencies []uint64) {
	if len(latencies) == 0 {
		return
	}
	b.ReportMetric(float64(orderstat.Percentile(latencies, 0.50)), "p50-ns")
	b.ReportMetric(float64(orderstat.Percentile(latencies, 0.99)), "p99-ns")
	b.ReportMetric(float64(orderstat.Percentile(latencies, 0.999)), "p99.9-ns")
}
