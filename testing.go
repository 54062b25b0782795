package diskaio

import (
	"sync"
	"time"
)

// MockHost provides a recording implementation of Host for testing.
// It keeps every result and slow-disk event in arrival order and can be
// told to fail or panic to exercise the engine's isolation of host errors.
type MockHost struct {
	mu      sync.Mutex
	results []*Result
	events  []SlowDiskEvent
	signal  chan struct{}

	completionErr   error
	completionPanic any
	slowDiskErr     error
}

// NewMockHost creates an empty recording host.
func NewMockHost() *MockHost {
	return &MockHost{signal: make(chan struct{})}
}

// OnCompletion implements the Host interface
func (m *MockHost) OnCompletion(res *Result) error {
	m.mu.Lock()
	m.results = append(m.results, res)
	err, p := m.completionErr, m.completionPanic
	m.wakeLocked()
	m.mu.Unlock()

	if p != nil {
		panic(p)
	}
	return err
}

// OnSlowDisk implements the Host interface
func (m *MockHost) OnSlowDisk(ev SlowDiskEvent) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	err := m.slowDiskErr
	m.wakeLocked()
	m.mu.Unlock()
	return err
}

func (m *MockHost) wakeLocked() {
	close(m.signal)
	m.signal = make(chan struct{})
}

// FailCompletions makes OnCompletion record the result and then return err.
func (m *MockHost) FailCompletions(err error) {
	m.mu.Lock()
	m.completionErr = err
	m.mu.Unlock()
}

// PanicCompletions makes OnCompletion record the result and then panic
// with v. A nil v stops panicking.
func (m *MockHost) PanicCompletions(v any) {
	m.mu.Lock()
	m.completionPanic = v
	m.mu.Unlock()
}

// FailSlowDisk makes OnSlowDisk record the event and then return err.
func (m *MockHost) FailSlowDisk(err error) {
	m.mu.Lock()
	m.slowDiskErr = err
	m.mu.Unlock()
}

// Results returns a copy of the recorded results
func (m *MockHost) Results() []*Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Result(nil), m.results...)
}

// Events returns a copy of the recorded slow-disk events
func (m *MockHost) Events() []SlowDiskEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SlowDiskEvent(nil), m.events...)
}

// WaitResults blocks until at least n results were recorded or timeout
// elapses, and reports whether the count was reached.
func (m *MockHost) WaitResults(n int, timeout time.Duration) bool {
	return m.waitFor(func() bool { return len(m.results) >= n }, timeout)
}

// WaitEvents blocks until at least n slow-disk events were recorded or
// timeout elapses.
func (m *MockHost) WaitEvents(n int, timeout time.Duration) bool {
	return m.waitFor(func() bool { return len(m.events) >= n }, timeout)
}

func (m *MockHost) waitFor(cond func() bool, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		m.mu.Lock()
		if cond() {
			m.mu.Unlock()
			return true
		}
		signal := m.signal
		m.mu.Unlock()

		select {
		case <-signal:
		case <-timer.C:
			m.mu.Lock()
			defer m.mu.Unlock()
			return cond()
		}
	}
}

// Reset clears recorded calls and injected failures
func (m *MockHost) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = nil
	m.events = nil
	m.completionErr = nil
	m.completionPanic = nil
	m.slowDiskErr = nil
}

var _ Host = (*MockHost)(nil)
