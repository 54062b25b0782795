// Package slowdisk infers whether a device has degraded from the latency of
// its completed requests. Samples are split into three classes (random,
// sequential read, sequential write), each backed by a fixed-capacity ring.
// A periodic evaluation flags a class slow when enough traffic was seen, the
// class carries a meaningful share of it, and its most recent samples keep
// exceeding the threshold. Only the healthy to slow edge is reported.
package slowdisk

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/go-diskaio/internal/logging"
	"github.com/ehrlich-b/go-diskaio/internal/ringbuf"
)

// Sample is one completed request as seen by the detector.
type Sample struct {
	Class Class
	Await time.Duration // enqueue to dispatch
	Cost  time.Duration // dispatch to completion
}

// ClassStats summarises one class over an evaluation window together with
// the state of its ring at evaluation time.
type ClassStats struct {
	Class     Class
	Requests  uint64        // samples in the window
	Over      uint64        // window samples above threshold
	Total     time.Duration // summed latency in the window
	Average   time.Duration
	Ratio     float64 // Requests / window total
	Streak    int
	Retained  int
	Mean      time.Duration // ring mean
	Quantile  time.Duration // ring percentile, zero when disabled
	Threshold time.Duration
	Slow      bool
}

// Event describes a healthy to slow transition.
type Event struct {
	Class       Class
	Policy      Policy
	At          time.Time
	WindowTotal uint64
	Stats       ClassStats
	Window      [numClasses]ClassStats
}

// Notifier receives slow transitions. It is called without detector locks
// held, at most once per transition.
type Notifier func(Event)

type window struct {
	requests uint64
	over     uint64
	total    time.Duration
}

type classRing struct {
	mu     sync.Mutex
	ring   *ringbuf.Ring
	window window
}

// Detector is safe for concurrent use. Each class ring has its own lock so
// several completion goroutines may record at once; evaluation takes the
// health lock first and then each class lock in turn.
type Detector struct {
	cfg    Config
	notify Notifier
	log    *logging.Logger
	now    func() time.Time

	seq   atomic.Uint64
	rings [numClasses]*classRing

	mu          sync.Mutex
	health      Health
	slowClass   Class
	slowSince   time.Time
	evaluations uint64
	transitions uint64
	recoveries  uint64
}

// Option customises a Detector.
type Option func(*Detector)

// WithLogger sets the logger. The default logger is used otherwise.
func WithLogger(l *logging.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// New creates a detector. notify may be nil.
func New(cfg Config, notify Notifier, opts ...Option) (*Detector, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{
		cfg:    cfg,
		notify: notify,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logging.Default()
	}
	for _, class := range Classes {
		d.rings[class] = &classRing{
			ring: ringbuf.New(class.String(), cfg.capacity(class), uint64(cfg.threshold(class))),
		}
	}
	return d, nil
}

// Config returns the effective configuration.
func (d *Detector) Config() Config { return d.cfg }

// Enabled reports whether the policy records samples.
func (d *Detector) Enabled() bool { return d.cfg.Policy != PolicyDisabled }

// Record routes s into its class ring and runs an evaluation every
// CheckInterval samples. It reports whether that evaluation raised a slow
// transition.
func (d *Detector) Record(s Sample) bool {
	if d.cfg.Policy == PolicyDisabled {
		return false
	}
	if s.Class < 0 || int(s.Class) >= numClasses {
		panic("slowdisk: sample with unknown class")
	}

	v := s.Cost
	if d.cfg.Policy == PolicyAwait {
		v = s.Await
	}
	if v < 0 {
		v = 0
	}

	cr := d.rings[s.Class]
	cr.mu.Lock()
	over := cr.ring.Add(uint64(v))
	cr.window.requests++
	cr.window.total += v
	if over {
		cr.window.over++
	}
	cr.mu.Unlock()

	n := d.seq.Add(1)
	if n%uint64(d.cfg.CheckInterval) == 0 {
		return d.Evaluate() != nil
	}
	return false
}

// Evaluate inspects every class, resets the window counters, and returns
// the transition event if the device just became slow. The notifier is
// invoked before Evaluate returns.
func (d *Detector) Evaluate() *Event {
	if d.cfg.Policy == PolicyDisabled {
		return nil
	}

	d.mu.Lock()
	d.evaluations++

	var stats [numClasses]ClassStats
	var total uint64
	for _, class := range Classes {
		cr := d.rings[class]
		cr.mu.Lock()
		st := ClassStats{
			Class:     class,
			Requests:  cr.window.requests,
			Over:      cr.window.over,
			Total:     cr.window.total,
			Streak:    cr.ring.Streak(),
			Retained:  cr.ring.Len(),
			Mean:      time.Duration(cr.ring.Mean()),
			Threshold: time.Duration(cr.ring.Threshold()),
		}
		if d.cfg.Quantile > 0 {
			st.Quantile = time.Duration(cr.ring.Percentile(d.cfg.Quantile))
		}
		cr.window = window{}
		cr.mu.Unlock()

		if st.Requests > 0 {
			st.Average = st.Total / time.Duration(st.Requests)
		}
		total += st.Requests
		stats[class] = st
	}

	slow := -1
	for i := range stats {
		st := &stats[i]
		if total > 0 {
			st.Ratio = float64(st.Requests) / float64(total)
		}
		st.Slow = d.slowLocked(st, total)
		if st.Slow && slow < 0 {
			slow = i
		}
	}

	var ev *Event
	switch {
	case slow >= 0 && d.health == Healthy:
		d.health = Slow
		d.slowClass = Class(slow)
		d.slowSince = d.now()
		d.transitions++
		ev = &Event{
			Class:       Class(slow),
			Policy:      d.cfg.Policy,
			At:          d.slowSince,
			WindowTotal: total,
			Stats:       stats[slow],
			Window:      stats,
		}
	case slow < 0 && d.health == Slow && d.cfg.Recovery == RecoveryAuto:
		d.health = Healthy
		d.recoveries++
		d.log.WithClass(d.slowClass.String()).Info("disk recovered",
			"policy", d.cfg.Policy.String(), "slow_for", d.now().Sub(d.slowSince))
	}
	d.mu.Unlock()

	if ev != nil {
		d.log.WithClass(ev.Class.String()).Warn("slow disk detected",
			"policy", ev.Policy.String(),
			"window", ev.WindowTotal,
			"requests", ev.Stats.Requests,
			"streak", ev.Stats.Streak,
			"average", ev.Stats.Average,
			"threshold", ev.Stats.Threshold)
		if d.notify != nil {
			d.notify(*ev)
		}
	}
	return ev
}

func (d *Detector) slowLocked(st *ClassStats, total uint64) bool {
	if total == 0 || total < uint64(d.cfg.MinSamples) {
		return false
	}
	if st.Requests == 0 || st.Streak < d.cfg.RepeatViolations {
		return false
	}
	if st.Ratio < d.cfg.MinRatio {
		return false
	}
	if d.cfg.Quantile > 0 && st.Quantile <= st.Threshold {
		return false
	}
	return true
}

// Health returns the current health state.
func (d *Detector) Health() Health {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.health
}

// Reset returns the detector to healthy and clears every ring and window.
// It is the only way out of the slow state under RecoveryManual.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cr := range d.rings {
		cr.mu.Lock()
		cr.ring.Reset()
		cr.window = window{}
		cr.mu.Unlock()
	}
	if d.health == Slow {
		d.recoveries++
	}
	d.health = Healthy
}

// Samples returns the number of samples recorded so far.
func (d *Detector) Samples() uint64 { return d.seq.Load() }

// Status is a point-in-time view of the detector.
type Status struct {
	Policy      Policy
	Health      Health
	SlowClass   Class
	Samples     uint64
	Evaluations uint64
	Transitions uint64
	Recoveries  uint64
	Rings       [numClasses]ringbuf.Stats
}

// Status returns counters and per-class ring aggregates.
func (d *Detector) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := Status{
		Policy:      d.cfg.Policy,
		Health:      d.health,
		SlowClass:   d.slowClass,
		Samples:     d.seq.Load(),
		Evaluations: d.evaluations,
		Transitions: d.transitions,
		Recoveries:  d.recoveries,
	}
	for i, cr := range d.rings {
		cr.mu.Lock()
		st.Rings[i] = cr.ring.Stats()
		cr.mu.Unlock()
	}
	return st
}
