// Package diskaio issues batched, non-blocking disk operations against the
// kernel's asynchronous I/O facility, times every completion, and infers
// whether the device behind it has degraded.
package diskaio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/ehrlich-b/go-diskaio/internal/aio"
	"github.com/ehrlich-b/go-diskaio/internal/constants"
	"github.com/ehrlich-b/go-diskaio/internal/interfaces"
	"github.com/ehrlich-b/go-diskaio/internal/logging"
	"github.com/ehrlich-b/go-diskaio/internal/queue"
	"github.com/ehrlich-b/go-diskaio/internal/slowdisk"
)

// Facility types re-exported for callers that supply their own.
type (
	Facility        = interfaces.Facility
	FacilityFactory = interfaces.Factory
	Operation       = interfaces.Operation
	Event           = interfaces.Event
)

// Options contains additional options for engine creation
type Options struct {
	// Facility creates the OS facility (if nil, chosen by Config.Facility)
	Facility FacilityFactory

	// Observer receives metrics in addition to the engine's own Metrics
	Observer Observer
}

// EngineState represents the lifecycle of an engine
type EngineState string

const (
	// EngineStateCreated indicates the engine has been created but not started
	EngineStateCreated EngineState = "created"
	// EngineStateRunning indicates the engine is accepting submissions
	EngineStateRunning EngineState = "running"
	// EngineStateStopping indicates shutdown is draining in-flight work
	EngineStateStopping EngineState = "stopping"
	// EngineStateStopped indicates the facility has been torn down
	EngineStateStopped EngineState = "stopped"
)

// Engine is the asynchronous I/O context for one device. Submissions are
// admitted while fewer than Depth operations are in flight; a completion
// goroutine harvests finished operations, classifies and times them, feeds
// the slow-disk detector and hands them to delivery workers.
//
// Locks are taken in the order depth, registry, pattern and are never held
// across a blocking wait.
type Engine struct {
	cfg      Config
	device   string
	factory  FacilityFactory
	host     Host
	log      *logging.Logger
	metrics  *Metrics
	observer Observer

	mu        sync.Mutex
	state     EngineState
	started   atomic.Bool
	stopAfter func() bool

	facility       Facility
	submitMu       sync.RWMutex
	facilityClosed atomic.Bool

	// depth lock
	depthMu       sync.Mutex
	depthCond     *sync.Cond
	inFlight      int
	stopping      atomic.Bool
	drained       chan struct{}
	drainedClosed bool

	reg *registry

	// pattern lock
	patternMu  sync.Mutex
	lastOp     Op
	lastEnd    int64
	hasLast    bool
	contiguous uint64

	detector     atomic.Pointer[slowdisk.Detector]
	checkEnabled atomic.Bool

	queue      *queue.TaskQueue[*Request]
	dispatcher *queue.Dispatcher[*Request]

	loopStop atomic.Bool
	loopDone chan struct{}

	shutdownOnce sync.Once
	report       ShutdownReport
	shutdownErr  error

	fullWarn *rate.Limiter

	submitted    atomic.Uint64
	completed    atomic.Uint64
	delivered    atomic.Uint64
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
	sequential   atomic.Uint64
	random       atomic.Uint64
	hostFailures atomic.Uint64
	backpressure atomic.Uint64
	aborted      atomic.Uint64
}

// NewEngine validates cfg and prepares an engine. Start must be called
// before Submit. A nil host discards notifications.
func NewEngine(cfg Config, host Host, opts *Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if host == nil {
		host = NoOpHost{}
	}
	if opts == nil {
		opts = &Options{}
	}

	factory := opts.Facility
	if factory == nil {
		kind, err := aio.ParseKind(cfg.Facility)
		if err != nil {
			return nil, wrapWithCode("new-engine", cfg.Device, err, ErrCodeInvalidParameters)
		}
		factory, err = aio.FactoryFor(kind)
		if err != nil {
			return nil, wrapWithCode("new-engine", cfg.Device, err, ErrCodeNotSupported)
		}
	}

	metrics := NewMetrics()
	var observer Observer = NewMetricsObserver(metrics)
	if opts.Observer != nil {
		observer = MultiObserver{observer, opts.Observer}
	}

	e := &Engine{
		cfg:      cfg,
		device:   cfg.Device,
		factory:  factory,
		host:     host,
		log:      logging.Default().WithDevice(cfg.Device),
		metrics:  metrics,
		observer: observer,
		state:    EngineStateCreated,
		drained:  make(chan struct{}),
		reg:      newRegistry(cfg.Depth),
		fullWarn: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	e.depthCond = sync.NewCond(&e.depthMu)

	d, err := slowdisk.New(cfg.SlowDisk, e.onSlowDisk, slowdisk.WithLogger(e.log))
	if err != nil {
		return nil, wrapWithCode("new-engine", cfg.Device, err, ErrCodeInvalidParameters)
	}
	e.detector.Store(d)
	e.checkEnabled.Store(d.Enabled())
	return e, nil
}

// Start creates the facility and launches the completion and delivery
// goroutines. Cancelling ctx shuts the engine down.
func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != EngineStateCreated {
		return NewDeviceError("start", e.device, ErrCodeInvalidParameters, fmt.Sprintf("engine is %s", e.state))
	}

	f, err := e.factory(e.cfg.Depth)
	if err != nil {
		e.log.Error("failed to create facility", "facility", e.cfg.Facility, "error", err)
		return wrapWithCode("start", e.device, err, ErrCodeFacilityFailure)
	}
	e.facility = f

	e.queue = queue.NewTaskQueue[*Request]("completions", e.cfg.QueueCapacity)
	e.dispatcher = queue.NewDispatcher(e.queue, queue.DispatcherConfig{
		Name:         "deliver",
		Workers:      e.cfg.Dispatchers,
		BatchSize:    e.cfg.BatchSize,
		PollInterval: e.cfg.PollInterval,
		Logger:       e.log,
	}, e.deliverBatch)
	// Delivery must outlive ctx so shutdown can drain the queue.
	e.dispatcher.Start(context.WithoutCancel(ctx))

	e.loopDone = make(chan struct{})
	go e.completionLoop()

	e.state = EngineStateRunning
	e.started.Store(true)
	e.stopAfter = context.AfterFunc(ctx, func() {
		if _, err := e.Shutdown(context.Background()); err != nil {
			e.log.Warn("shutdown after cancellation", "error", err)
		}
	})

	e.log.Info("engine started",
		"facility", e.cfg.Facility,
		"depth", e.cfg.Depth,
		"queue_capacity", e.cfg.QueueCapacity,
		"dispatchers", e.cfg.Dispatchers,
		"policy", e.detector.Load().Config().Policy.String())
	return nil
}

// Submit admits reqs in order, blocking while the engine is at depth. It
// returns the number handed to the facility. Requests that were accepted
// before an error remain in flight and are delivered normally.
func (e *Engine) Submit(ctx context.Context, reqs ...*Request) (int, error) {
	if len(reqs) == 0 {
		return 0, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !e.started.Load() {
		return 0, NewDeviceError("submit", e.device, ErrCodeClosed, "engine not started")
	}
	for _, r := range reqs {
		if err := r.validate(); err != nil {
			return 0, err
		}
	}

	now := time.Now()
	for _, r := range reqs {
		r.Queued = now
	}

	done := 0
	for done < len(reqs) {
		n, err := e.acquire(ctx, len(reqs)-done)
		if err != nil {
			return done, err
		}
		accepted, err := e.dispatch(ctx, reqs[done:done+n])
		done += accepted
		if err != nil {
			return done, err
		}
	}
	return done, nil
}

// acquire reserves between 1 and want depth slots, waiting until at least
// one is free.
func (e *Engine) acquire(ctx context.Context, want int) (int, error) {
	stop := context.AfterFunc(ctx, func() {
		e.depthMu.Lock()
		e.depthCond.Broadcast()
		e.depthMu.Unlock()
	})
	defer stop()

	e.depthMu.Lock()
	defer e.depthMu.Unlock()
	for {
		if e.stopping.Load() {
			return 0, NewDeviceError("submit", e.device, ErrCodeClosed, "engine is shutting down")
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if free := e.cfg.Depth - e.inFlight; free > 0 {
			n := min(want, free)
			e.inFlight += n
			e.observer.ObserveInFlight(uint32(e.inFlight))
			return n, nil
		}
		e.depthCond.Wait()
	}
}

// release returns n depth slots and wakes blocked submitters.
func (e *Engine) release(n int) {
	e.depthMu.Lock()
	e.inFlight -= n
	inFlight := e.inFlight
	if e.stopping.Load() && inFlight == 0 && !e.drainedClosed {
		close(e.drained)
		e.drainedClosed = true
	}
	e.depthCond.Broadcast()
	e.depthMu.Unlock()
	e.observer.ObserveInFlight(uint32(inFlight))
}

// dispatch registers reqs and hands them to the facility, retrying the
// remainder after a partial accept. Depth for reqs is already reserved.
func (e *Engine) dispatch(ctx context.Context, reqs []*Request) (int, error) {
	e.submitMu.RLock()
	defer e.submitMu.RUnlock()

	if e.facilityClosed.Load() {
		e.release(len(reqs))
		return 0, NewDeviceError("submit", e.device, ErrCodeClosed, "facility closed")
	}

	ops := make([]Operation, len(reqs))
	for i, r := range reqs {
		r.id = e.reg.add(r)
		r.state.Store(int32(StateSubmitted))
		ops[i] = Operation{UserData: r.id, FD: r.FD, Op: r.Op, Offset: r.Offset, Buf: r.Buf}
	}

	accepted := 0
	for accepted < len(ops) {
		now := time.Now()
		for _, r := range reqs[accepted:] {
			r.Submitted = now
		}

		n, err := e.facility.Submit(ops[accepted:])
		if n > 0 {
			accepted += n
			e.submitted.Add(uint64(n))
		}
		if err != nil {
			werr := wrapWithCode("submit", e.device, err, ErrCodeSubmissionFailed)
			werr.Code = ErrCodeSubmissionFailed
			e.log.Error("facility rejected submission", "accepted", accepted, "remaining", len(ops)-accepted, "error", err)
			e.abandon(reqs[accepted:])
			return accepted, werr
		}
		if accepted == len(ops) {
			break
		}

		if n == 0 {
			if err := ctx.Err(); err != nil {
				e.abandon(reqs[accepted:])
				return accepted, err
			}
			if e.stopping.Load() {
				e.abandon(reqs[accepted:])
				return accepted, NewDeviceError("submit", e.device, ErrCodeClosed, "engine is shutting down")
			}
			time.Sleep(constants.SubmitRetryBackoff)
		}
	}
	return accepted, nil
}

// abandon unregisters requests the facility never accepted so they may be
// submitted again.
func (e *Engine) abandon(reqs []*Request) {
	if len(reqs) == 0 {
		return
	}
	for _, r := range reqs {
		e.reg.remove(r.id)
		r.id = 0
		r.state.Store(int32(StateNew))
	}
	e.release(len(reqs))
}

func (e *Engine) completionLoop() {
	defer close(e.loopDone)
	e.log.Debug("completion loop started")
	for !e.loopStop.Load() {
		if _, err := e.PollCompletions(1, e.cfg.BatchSize, e.cfg.PollInterval); err != nil {
			if e.loopStop.Load() || e.facilityClosed.Load() {
				break
			}
			e.log.Error("completion poll failed", "error", err)
			time.Sleep(e.cfg.PollInterval)
		}
	}
	e.log.Debug("completion loop stopped")
}

// PollCompletions waits for between min and max finished operations or
// until timeout elapses, then processes them in facility order. A negative
// timeout waits indefinitely. It returns the number processed.
func (e *Engine) PollCompletions(min, max int, timeout time.Duration) (int, error) {
	f := e.facility
	if f == nil || e.facilityClosed.Load() {
		return 0, NewDeviceError("poll", e.device, ErrCodeClosed, "facility closed")
	}
	if max <= 0 {
		max = e.cfg.BatchSize
	}
	if min > max {
		min = max
	}

	events, err := f.Wait(min, max, timeout)
	if err != nil {
		if e.facilityClosed.Load() {
			return 0, NewDeviceError("poll", e.device, ErrCodeClosed, "facility closed")
		}
		werr := wrapWithCode("poll", e.device, err, ErrCodeFacilityFailure)
		werr.Code = ErrCodeFacilityFailure
		return 0, werr
	}

	now := time.Now()
	for _, ev := range events {
		e.complete(ev, now)
	}
	return len(events), nil
}

func (e *Engine) complete(ev Event, now time.Time) {
	r := e.reg.lookup(ev.UserData)
	if r == nil {
		e.log.Warn("completion for unknown handle", "handle", ev.UserData)
		return
	}
	if !r.advance(StateSubmitted, StateCompleted) {
		e.log.Warn("duplicate completion", "handle", ev.UserData, "state", r.State().String())
		return
	}

	r.Completed = now
	r.Cost = max(now.Sub(r.Submitted), 0)
	r.Await = max(r.Submitted.Sub(r.Queued), 0)
	r.Res, r.Res2 = ev.Res, ev.Res2
	e.classify(r)
	e.completed.Add(1)

	ok := r.Res >= 0
	var n uint64
	if ok {
		n = uint64(r.Res)
	}
	switch r.Op {
	case OpRead:
		e.bytesRead.Add(n)
		e.observer.ObserveRead(n, uint64(r.Cost), ok)
	case OpWrite:
		e.bytesWritten.Add(n)
		e.observer.ObserveWrite(n, uint64(r.Cost), ok)
	}
	e.observer.ObservePattern(r.Pattern == PatternSequential)

	if e.log.Enabled(logging.LevelDebug) {
		e.log.WithRequest(r.id, r.Op.String()).Debug("completed",
			"res", r.Res, "cost", r.Cost, "await", r.Await, "pattern", r.Pattern.String())
	}

	e.detector.Load().Record(slowdisk.Sample{Class: r.class(), Await: r.Await, Cost: r.Cost})

	e.release(1)
	e.enqueue(r)
}

// classify marks r sequential when it starts where the previous completion
// of the same kind ended.
func (e *Engine) classify(r *Request) {
	e.patternMu.Lock()
	if e.hasLast && r.Op == e.lastOp && r.Offset == e.lastEnd {
		e.contiguous++
		r.Pattern = PatternSequential
	} else {
		e.contiguous = 0
		r.Pattern = PatternRandom
	}
	r.Contiguous = e.contiguous
	e.lastOp, e.lastEnd, e.hasLast = r.Op, r.End(), true
	e.patternMu.Unlock()

	if r.Pattern == PatternSequential {
		e.sequential.Add(1)
	} else {
		e.random.Add(1)
	}
}

// enqueue hands r to the delivery workers. A full queue is retried after a
// short pause; once shutdown begins the capacity limit is ignored.
func (e *Engine) enqueue(r *Request) {
	for {
		var err error
		if e.stopping.Load() {
			err = e.queue.OfferUnlimited(r)
		} else {
			err = e.queue.OfferLimited(r)
		}
		switch {
		case err == nil:
			return
		case errors.Is(err, queue.ErrFull):
			e.backpressure.Add(1)
			e.observer.ObserveBackpressure()
			if e.fullWarn.Allow() {
				e.log.Warn("completion queue full, backing off",
					"capacity", e.queue.Capacity(), "backoff", e.cfg.FullBackoff)
			}
			time.Sleep(e.cfg.FullBackoff)
		default:
			e.deliver(r)
			return
		}
	}
}

func (e *Engine) deliverBatch(_ context.Context, batch []*Request) {
	for _, r := range batch {
		e.deliver(r)
	}
}

// deliver forwards the result of r exactly once and then frees its handle.
func (e *Engine) deliver(r *Request) {
	if !r.advance(StateCompleted, StateDelivered) {
		return
	}

	res := &Result{Request: r}
	switch {
	case r.aborted:
		res.Err = &Error{
			Op:     r.Op.String(),
			Device: e.device,
			Code:   ErrCodeClosed,
			Errno:  syscall.ECANCELED,
			Msg:    "aborted by forced shutdown",
		}
	case r.Res < 0:
		res.Err = errnoResult(r.Op.String(), e.device, r.Res)
	default:
		res.N = int(r.Res)
	}

	if r.Callback != nil {
		e.callHost("completion", func() error { return r.Callback(res) })
	} else {
		e.callHost("completion", func() error { return e.host.OnCompletion(res) })
	}

	e.reg.remove(r.id)
	e.delivered.Add(1)
}

func (e *Engine) onSlowDisk(ev slowdisk.Event) {
	e.observer.ObserveSlowDisk(ev.Class.String())
	sev := SlowDiskEvent{Device: e.device, Event: ev}
	e.callHost("slow-disk", func() error { return e.host.OnSlowDisk(sev) })
}

// callHost isolates the engine from host failures.
func (e *Engine) callHost(name string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			e.hostFailures.Add(1)
			e.log.Error("host callback panicked", "callback", name, "panic", fmt.Sprint(p))
		}
	}()
	if err := fn(); err != nil {
		e.hostFailures.Add(1)
		e.log.Warn("host callback failed", "callback", name, "error", err)
	}
}

// EnableSlowDiskCheck installs a detector built from cfg. It takes effect
// once per engine; later calls, or calls after the engine was configured
// with an enabled policy, are ignored.
func (e *Engine) EnableSlowDiskCheck(cfg slowdisk.Config) error {
	if !e.checkEnabled.CompareAndSwap(false, true) {
		e.log.Warn("slow-disk check already enabled, ignoring", "policy", cfg.Policy.String())
		return nil
	}
	d, err := slowdisk.New(cfg, e.onSlowDisk, slowdisk.WithLogger(e.log))
	if err != nil {
		e.checkEnabled.Store(false)
		return wrapWithCode("enable-slow-disk-check", e.device, err, ErrCodeInvalidParameters)
	}
	e.detector.Store(d)
	e.log.Info("slow-disk check enabled",
		"policy", d.Config().Policy.String(),
		"recovery", d.Config().Recovery.String())
	return nil
}

// Health returns the detector's current verdict.
func (e *Engine) Health() slowdisk.Health { return e.detector.Load().Health() }

// ResetHealth clears the detector and returns it to healthy.
func (e *Engine) ResetHealth() {
	d := e.detector.Load()
	was := d.Health()
	d.Reset()
	if was == slowdisk.Slow {
		e.log.Info("health reset", "from", was.String())
	}
}

// DetectorStatus returns the detector's counters and ring aggregates.
func (e *Engine) DetectorStatus() slowdisk.Status { return e.detector.Load().Status() }

// ShutdownReport describes how shutdown went.
type ShutdownReport struct {
	InFlight  int           // operations outstanding when shutdown began
	Drained   int           // of those, completed normally
	Abandoned int           // completed with an abort error after teardown
	Clean     bool          // everything drained and the facility closed cleanly
	Duration  time.Duration // time spent in shutdown
}

// Shutdown stops admitting work, waits up to DrainTimeout (or ctx) for
// in-flight operations, then tears the facility down. Operations still
// outstanding are delivered with an abort error and counted in the report;
// in that case the returned error has code ErrCodeShutdownIncomplete.
// Blocked submitters are released with ErrClosed. Shutdown runs once;
// later calls return the first report.
func (e *Engine) Shutdown(ctx context.Context) (ShutdownReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	e.shutdownOnce.Do(func() {
		e.report, e.shutdownErr = e.shutdown(ctx)
	})
	return e.report, e.shutdownErr
}

func (e *Engine) shutdown(ctx context.Context) (ShutdownReport, error) {
	start := time.Now()

	e.mu.Lock()
	running := e.state == EngineStateRunning
	e.state = EngineStateStopping
	stopAfter := e.stopAfter
	e.mu.Unlock()
	if stopAfter != nil {
		stopAfter()
	}

	e.depthMu.Lock()
	e.stopping.Store(true)
	inFlight := e.inFlight
	if inFlight == 0 && !e.drainedClosed {
		close(e.drained)
		e.drainedClosed = true
	}
	e.depthCond.Broadcast()
	e.depthMu.Unlock()

	if !running {
		e.setState(EngineStateStopped)
		return ShutdownReport{Clean: true, Duration: time.Since(start)}, nil
	}
	e.log.Info("shutting down", "in_flight", inFlight)

	timer := time.NewTimer(e.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-e.drained:
	case <-timer.C:
		e.log.Warn("drain timed out", "timeout", e.cfg.DrainTimeout, "remaining", e.InFlight())
	case <-ctx.Done():
		e.log.Warn("drain interrupted", "error", ctx.Err(), "remaining", e.InFlight())
	}

	e.loopStop.Store(true)
	<-e.loopDone

	if e.InFlight() > 0 {
		if _, err := e.PollCompletions(0, e.cfg.Depth, 0); err != nil {
			e.log.Warn("final completion poll failed", "error", err)
		}
	}

	e.submitMu.Lock()
	e.facilityClosed.Store(true)
	closeErr := e.facility.Close()
	stuck := e.reg.inState(StateSubmitted)
	e.submitMu.Unlock()

	abandoned := 0
	now := time.Now()
	for _, r := range stuck {
		if !r.advance(StateSubmitted, StateCompleted) {
			continue
		}
		r.aborted = true
		r.Completed = now
		r.Res = -int64(syscall.ECANCELED)
		abandoned++
		e.aborted.Add(1)
		e.release(1)
		e.enqueue(r)
	}

	e.queue.Shutdown()
	if err := e.dispatcher.Wait(); err != nil {
		e.log.Warn("delivery workers exited with error", "error", err)
	}
	left, err := e.queue.Destroy()
	if err != nil {
		e.log.Warn("completion queue destroy failed", "error", err)
	}
	for _, r := range left {
		e.deliver(r)
	}
	if live := e.reg.len(); live > 0 {
		e.log.Error("requests left registered after shutdown", "count", live)
	}

	e.metrics.Stop()
	e.setState(EngineStateStopped)

	report := ShutdownReport{
		InFlight:  inFlight,
		Drained:   max(inFlight-abandoned, 0),
		Abandoned: abandoned,
		Clean:     abandoned == 0 && closeErr == nil,
		Duration:  time.Since(start),
	}
	e.log.Info("engine stopped",
		"drained", report.Drained, "abandoned", report.Abandoned, "duration", report.Duration)

	if closeErr != nil {
		werr := wrapWithCode("shutdown", e.device, closeErr, ErrCodeFacilityFailure)
		werr.Code = ErrCodeFacilityFailure
		return report, werr
	}
	if abandoned > 0 {
		return report, NewDeviceError("shutdown", e.device, ErrCodeShutdownIncomplete,
			fmt.Sprintf("%d operations abandoned after %s", abandoned, e.cfg.DrainTimeout))
	}
	return report, nil
}

func (e *Engine) setState(s EngineState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// State returns the current lifecycle state
func (e *Engine) State() EngineState {
	if e == nil {
		return EngineStateStopped
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsRunning returns true if the engine accepts submissions
func (e *Engine) IsRunning() bool {
	return e.State() == EngineStateRunning
}

// InFlight returns the number of admitted operations not yet harvested.
func (e *Engine) InFlight() int {
	e.depthMu.Lock()
	defer e.depthMu.Unlock()
	return e.inFlight
}

// Depth returns the configured in-flight limit
func (e *Engine) Depth() int { return e.cfg.Depth }

// Device returns the device label
func (e *Engine) Device() string { return e.device }

// Config returns the engine configuration
func (e *Engine) Config() Config { return e.cfg }

// EngineStats holds the engine's counters
type EngineStats struct {
	Submitted         uint64 `json:"submitted"`
	Completed         uint64 `json:"completed"`
	Delivered         uint64 `json:"delivered"`
	Aborted           uint64 `json:"aborted"`
	BytesRead         uint64 `json:"bytes_read"`
	BytesWritten      uint64 `json:"bytes_written"`
	Sequential        uint64 `json:"sequential"`
	Random            uint64 `json:"random"`
	HostFailures      uint64 `json:"host_failures"`
	BackpressureWaits uint64 `json:"backpressure_waits"`
	InFlight          int    `json:"in_flight"`
	Pending           int    `json:"pending"`    // completed, awaiting delivery
	Registered        int    `json:"registered"` // handles not yet released
}

// Stats returns a snapshot of the counters
func (e *Engine) Stats() EngineStats {
	st := EngineStats{
		Submitted:         e.submitted.Load(),
		Completed:         e.completed.Load(),
		Delivered:         e.delivered.Load(),
		Aborted:           e.aborted.Load(),
		BytesRead:         e.bytesRead.Load(),
		BytesWritten:      e.bytesWritten.Load(),
		Sequential:        e.sequential.Load(),
		Random:            e.random.Load(),
		HostFailures:      e.hostFailures.Load(),
		BackpressureWaits: e.backpressure.Load(),
		InFlight:          e.InFlight(),
		Registered:        e.reg.len(),
	}
	if e.started.Load() {
		st.Pending = e.queue.Len()
	}
	return st
}

// EngineInfo contains comprehensive information about an engine
type EngineInfo struct {
	Device        string      `json:"device"`
	Facility      string      `json:"facility"`
	State         EngineState `json:"state"`
	Depth         int         `json:"depth"`
	QueueCapacity int         `json:"queue_capacity"`
	Dispatchers   int         `json:"dispatchers"`
	Policy        string      `json:"policy"`
	Health        string      `json:"health"`
	Running       bool        `json:"running"`
}

// Info returns comprehensive information about the engine
func (e *Engine) Info() EngineInfo {
	if e == nil {
		return EngineInfo{}
	}
	state := e.State()
	d := e.detector.Load()
	return EngineInfo{
		Device:        e.device,
		Facility:      e.cfg.Facility,
		State:         state,
		Depth:         e.cfg.Depth,
		QueueCapacity: e.cfg.QueueCapacity,
		Dispatchers:   e.cfg.Dispatchers,
		Policy:        d.Config().Policy.String(),
		Health:        d.Health().String(),
		Running:       state == EngineStateRunning,
	}
}

// Metrics returns the current metrics for the engine
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of engine metrics
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}
