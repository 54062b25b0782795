// Package backend provides in-process asynchronous I/O facilities
package backend

import (
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/ehrlich-b/go-diskaio/internal/interfaces"
)

// ErrClosed is returned by Submit and Wait after Close.
var ErrClosed = errors.New("backend: memory facility closed")

// Memory simulates a block device behind an asynchronous I/O facility.
// Operations execute against a RAM buffer after an optional latency and
// complete in the order they finish. Hooks allow tests to hold completions,
// cap how many operations one Submit accepts, and inject failures.
type Memory struct {
	mu   sync.RWMutex
	data []byte
	size int64

	state     sync.Mutex
	depth     int
	inflight  int
	ready     []interfaces.Event
	held      []interfaces.Operation
	signal    chan struct{}
	closed    bool
	hold      bool
	maxAccept int
	submitErr error
	latency   func(interfaces.Operation) time.Duration
	opErr     func(interfaces.Operation) syscall.Errno
	stats     MemoryStats
}

// MemoryStats counts facility activity.
type MemoryStats struct {
	Submitted    uint64
	Completed    uint64
	Reaped       uint64
	Rejected     uint64 // Submit calls that accepted nothing
	BytesRead    uint64
	BytesWritten uint64
}

// NewMemory creates a memory device of the specified size
func NewMemory(size int64) *Memory {
	return &Memory{
		data:   make([]byte, size),
		size:   size,
		signal: make(chan struct{}),
	}
}

// Factory returns a constructor that hands out this device with the
// requested depth. The device is reopened if it was closed.
func (m *Memory) Factory() interfaces.Factory {
	return func(depth int) (interfaces.Facility, error) {
		if depth <= 0 {
			return nil, fmt.Errorf("backend: depth must be positive, got %d", depth)
		}
		m.state.Lock()
		m.depth = depth
		m.closed = false
		m.state.Unlock()
		return m, nil
	}
}

// SetLatency sets the simulated service time per operation. nil completes
// operations synchronously inside Submit.
func (m *Memory) SetLatency(fn func(interfaces.Operation) time.Duration) {
	m.state.Lock()
	m.latency = fn
	m.state.Unlock()
}

// SetMaxAccept caps how many operations a single Submit accepts. Zero
// removes the cap.
func (m *Memory) SetMaxAccept(n int) {
	m.state.Lock()
	m.maxAccept = n
	m.state.Unlock()
}

// FailNextSubmit makes the next Submit call return err without accepting
// anything.
func (m *Memory) FailNextSubmit(err error) {
	m.state.Lock()
	m.submitErr = err
	m.state.Unlock()
}

// SetOpError makes operations for which fn returns a non-zero errno
// complete with that negative errno.
func (m *Memory) SetOpError(fn func(interfaces.Operation) syscall.Errno) {
	m.state.Lock()
	m.opErr = fn
	m.state.Unlock()
}

// Hold parks accepted operations instead of executing them until Release.
func (m *Memory) Hold() {
	m.state.Lock()
	m.hold = true
	m.state.Unlock()
}

// Release executes up to n held operations in submission order, or all of
// them when n <= 0, and stops holding once none remain. It returns the
// number released.
func (m *Memory) Release(n int) int {
	m.state.Lock()
	if n <= 0 || n > len(m.held) {
		n = len(m.held)
	}
	batch := append([]interfaces.Operation(nil), m.held[:n]...)
	m.held = m.held[n:]
	if len(m.held) == 0 {
		m.hold = false
	}
	m.state.Unlock()

	for _, op := range batch {
		m.start(op)
	}
	return n
}

// Held returns the number of operations waiting for Release.
func (m *Memory) Held() int {
	m.state.Lock()
	defer m.state.Unlock()
	return len(m.held)
}

// InFlight returns accepted operations not yet reaped by Wait.
func (m *Memory) InFlight() int {
	m.state.Lock()
	defer m.state.Unlock()
	return m.inflight
}

// Submit accepts operations up to the free depth and the accept cap.
func (m *Memory) Submit(ops []interfaces.Operation) (int, error) {
	m.state.Lock()
	if m.closed {
		m.state.Unlock()
		return 0, ErrClosed
	}
	if err := m.submitErr; err != nil {
		m.submitErr = nil
		m.state.Unlock()
		return 0, err
	}
	n := len(ops)
	if m.depth > 0 && n > m.depth-m.inflight {
		n = m.depth - m.inflight
	}
	if m.maxAccept > 0 && n > m.maxAccept {
		n = m.maxAccept
	}
	if n <= 0 {
		m.stats.Rejected++
		m.state.Unlock()
		return 0, nil
	}
	m.inflight += n
	m.stats.Submitted += uint64(n)
	if m.hold {
		m.held = append(m.held, ops[:n]...)
		m.state.Unlock()
		return n, nil
	}
	m.state.Unlock()

	for _, op := range ops[:n] {
		m.start(op)
	}
	return n, nil
}

func (m *Memory) start(op interfaces.Operation) {
	m.state.Lock()
	latency := m.latency
	m.state.Unlock()

	var d time.Duration
	if latency != nil {
		d = latency(op)
	}
	if d <= 0 {
		m.complete(op)
		return
	}
	time.AfterFunc(d, func() { m.complete(op) })
}

func (m *Memory) complete(op interfaces.Operation) {
	m.state.Lock()
	opErr := m.opErr
	closed := m.closed
	m.state.Unlock()
	if closed {
		return
	}

	var res int64
	if errno := errnoFor(opErr, op); errno != 0 {
		res = -int64(errno)
	} else {
		var n int
		var err error
		if op.Op == interfaces.OpWrite {
			n, err = m.WriteAt(op.Buf, op.Offset)
		} else {
			n, err = m.ReadAt(op.Buf, op.Offset)
		}
		if err != nil {
			res = -int64(syscall.EIO)
		} else {
			res = int64(n)
		}
	}

	m.state.Lock()
	defer m.state.Unlock()
	if m.closed {
		return
	}
	if res > 0 {
		if op.Op == interfaces.OpWrite {
			m.stats.BytesWritten += uint64(res)
		} else {
			m.stats.BytesRead += uint64(res)
		}
	}
	m.stats.Completed++
	m.ready = append(m.ready, interfaces.Event{UserData: op.UserData, Res: res})
	close(m.signal)
	m.signal = make(chan struct{})
}

func errnoFor(fn func(interfaces.Operation) syscall.Errno, op interfaces.Operation) syscall.Errno {
	if fn == nil {
		return 0
	}
	return fn(op)
}

// Wait returns up to max completed operations once at least min are ready
// or timeout elapses. A negative timeout waits indefinitely.
func (m *Memory) Wait(min, max int, timeout time.Duration) ([]interfaces.Event, error) {
	if max <= 0 {
		return nil, nil
	}
	if min > max {
		min = max
	}
	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		m.state.Lock()
		if m.closed {
			m.state.Unlock()
			return nil, ErrClosed
		}
		if len(m.ready) >= min && (len(m.ready) > 0 || min == 0) {
			events := m.reapLocked(max)
			m.state.Unlock()
			return events, nil
		}
		signal := m.signal
		m.state.Unlock()

		select {
		case <-signal:
		case <-expired:
			m.state.Lock()
			events := m.reapLocked(max)
			m.state.Unlock()
			return events, nil
		}
	}
}

func (m *Memory) reapLocked(max int) []interfaces.Event {
	n := len(m.ready)
	if n > max {
		n = max
	}
	if n == 0 {
		return nil
	}
	events := make([]interfaces.Event, n)
	copy(events, m.ready[:n])
	m.ready = m.ready[n:]
	m.inflight -= n
	m.stats.Reaped += uint64(n)
	return events
}

// Close tears the facility down. Operations not yet reaped are dropped, as
// a kernel context teardown would. Device contents are kept so a later
// Factory call can reopen it.
func (m *Memory) Close() error {
	m.state.Lock()
	defer m.state.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.ready = nil
	m.held = nil
	m.hold = false
	m.inflight = 0
	close(m.signal)
	m.signal = make(chan struct{})
	return nil
}

// Stats returns a snapshot of the counters.
func (m *Memory) Stats() MemoryStats {
	m.state.Lock()
	defer m.state.Unlock()
	return m.stats
}

// ReadAt copies device contents at off into p. Reads past the end are short.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= m.size {
		return 0, nil
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	n := copy(p, m.data[off:off+int64(len(p))])
	return n, nil
}

// WriteAt copies p to the device at off. Writes past the end are short.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off < 0 || off >= m.size {
		return 0, fmt.Errorf("write beyond end of device")
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	n := copy(m.data[off:off+int64(len(p))], p)
	return n, nil
}

// Size returns the device size in bytes.
func (m *Memory) Size() int64 {
	return m.size
}

var _ interfaces.Facility = (*Memory)(nil)
