// Package interfaces defines the contract between the engine and the
// operating system's asynchronous I/O facility.
package interfaces

import "time"

// OpCode identifies the kind of operation submitted to a facility.
type OpCode uint16

const (
	OpRead OpCode = iota
	OpWrite
)

func (o OpCode) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Operation is one request handed to the facility. UserData is echoed back
// unchanged in the matching Event. Buf must stay valid until the Event for
// this operation has been returned by Wait.
type Operation struct {
	UserData uint64
	FD       int
	Op       OpCode
	Offset   int64
	Buf      []byte
}

// Event reports a finished operation. Res is the transferred byte count or
// a negative errno; Res2 is facility-specific secondary status.
type Event struct {
	UserData uint64
	Res      int64
	Res2     int64
}

// Facility is the OS asynchronous I/O service: a context created with a
// fixed depth that accepts batches of operations and reports completions.
//
// Submit may accept only a prefix of ops; it returns the number accepted.
// A zero count with a nil error means the facility is temporarily saturated
// and the caller should retry. A non-nil error is fatal for the context.
//
// Wait blocks until at least min events are ready or timeout elapses and
// returns at most max events. A negative timeout waits indefinitely. A
// timeout with fewer than min events is not an error. Submit and Wait may be called concurrently from different
// goroutines.
type Facility interface {
	Submit(ops []Operation) (int, error)
	Wait(min, max int, timeout time.Duration) ([]Event, error)
	Close() error
}

// Factory creates a facility context able to hold depth in-flight operations.
type Factory func(depth int) (Facility, error)
