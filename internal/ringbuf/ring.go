// Package ringbuf provides a fixed-capacity latency history with running
// aggregates maintained incrementally on every insert.
package ringbuf

import (
	"github.com/ehrlich-b/go-diskaio/internal/orderstat"
)

// Ring holds the most recent samples for one I/O class. It is not safe for
// concurrent use; the owner serializes access.
type Ring struct {
	name      string
	threshold uint64
	samples   []uint64
	size      int
	pos       int // next write position

	sum    uint64
	under  int // retained samples <= threshold
	over   int // retained samples > threshold
	streak int // trailing run of over-threshold samples, capped at size
}

// Stats is a point-in-time view of a ring's aggregates.
type Stats struct {
	Name      string
	Capacity  int
	Size      int
	Threshold uint64
	Sum       uint64
	Mean      uint64
	Under     int
	Over      int
	Streak    int
}

// New creates a ring holding up to capacity samples. Samples strictly
// greater than threshold count as violations.
func New(name string, capacity int, threshold uint64) *Ring {
	if capacity <= 0 {
		panic("ringbuf: capacity must be positive")
	}
	return &Ring{
		name:      name,
		threshold: threshold,
		samples:   make([]uint64, capacity),
	}
}

// Add records v, evicting the oldest sample once the ring is full, and
// reports whether v exceeded the threshold.
func (r *Ring) Add(v uint64) bool {
	if r.size == len(r.samples) {
		old := r.samples[r.pos]
		r.sum -= old
		if old > r.threshold {
			r.over--
		} else {
			r.under--
		}
	} else {
		r.size++
	}

	r.samples[r.pos] = v
	r.pos = (r.pos + 1) % len(r.samples)
	r.sum += v

	violation := v > r.threshold
	if violation {
		r.over++
		r.streak++
		if r.streak > r.size {
			r.streak = r.size
		}
	} else {
		r.under++
		r.streak = 0
	}
	return violation
}

// SetThreshold changes the violation threshold and recounts the retained
// samples against it.
func (r *Ring) SetThreshold(threshold uint64) {
	r.threshold = threshold
	r.under, r.over, r.streak = 0, 0, 0
	r.each(func(v uint64) {
		if v > threshold {
			r.over++
			r.streak++
		} else {
			r.under++
			r.streak = 0
		}
	})
}

// Reset discards all samples.
func (r *Ring) Reset() {
	r.size, r.pos = 0, 0
	r.sum = 0
	r.under, r.over, r.streak = 0, 0, 0
}

func (r *Ring) Name() string      { return r.name }
func (r *Ring) Len() int          { return r.size }
func (r *Ring) Cap() int          { return len(r.samples) }
func (r *Ring) Threshold() uint64 { return r.threshold }
func (r *Ring) Sum() uint64       { return r.sum }
func (r *Ring) Over() int         { return r.over }
func (r *Ring) Under() int        { return r.under }
func (r *Ring) Streak() int       { return r.streak }

// Mean returns the integer mean of the retained samples.
func (r *Ring) Mean() uint64 {
	if r.size == 0 {
		return 0
	}
	return r.sum / uint64(r.size)
}

// Samples returns the retained samples, oldest first.
func (r *Ring) Samples() []uint64 {
	out := make([]uint64, 0, r.size)
	r.each(func(v uint64) { out = append(out, v) })
	return out
}

// Percentile returns the nearest-rank quantile q of the retained samples.
func (r *Ring) Percentile(q float64) uint64 {
	if r.size == 0 {
		return 0
	}
	scratch := r.Samples()
	return orderstat.Percentile(scratch, q)
}

// Stats returns a snapshot of the ring's aggregates.
func (r *Ring) Stats() Stats {
	return Stats{
		Name:      r.name,
		Capacity:  len(r.samples),
		Size:      r.size,
		Threshold: r.threshold,
		Sum:       r.sum,
		Mean:      r.Mean(),
		Under:     r.under,
		Over:      r.over,
		Streak:    r.streak,
	}
}

// each visits retained samples oldest first.
func (r *Ring) each(fn func(uint64)) {
	start := r.pos - r.size
	if start < 0 {
		start += len(r.samples)
	}
	for i := 0; i < r.size; i++ {
		fn(r.samples[(start+i)%len(r.samples)])
	}
}
