package diskaio

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/go-diskaio/internal/interfaces"
	"github.com/ehrlich-b/go-diskaio/internal/slowdisk"
)

// Op is the kind of a request
type Op = interfaces.OpCode

const (
	OpRead  = interfaces.OpRead
	OpWrite = interfaces.OpWrite
)

// Pattern is the inferred access pattern of a completed request
type Pattern int

const (
	PatternUnknown Pattern = iota
	PatternRandom
	PatternSequential
)

func (p Pattern) String() string {
	switch p {
	case PatternRandom:
		return "random"
	case PatternSequential:
		return "sequential"
	default:
		return "unknown"
	}
}

// RequestState tracks a request through submitted, completed and delivered.
// Transitions only move forward.
type RequestState int32

const (
	StateNew RequestState = iota
	StateSubmitted
	StateCompleted
	StateDelivered
)

func (s RequestState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateSubmitted:
		return "submitted"
	case StateCompleted:
		return "completed"
	case StateDelivered:
		return "delivered"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Request is one read or write from submission to delivery. The caller
// fills FD, Op, Offset, Buf and optionally Handle and Callback; the engine
// stamps the rest. Buf must not be touched until the request is delivered.
// A Request may be submitted only once.
type Request struct {
	FD     int
	Op     Op
	Offset int64
	Buf    []byte

	// Handle is opaque host state carried back in the Result.
	Handle any
	// Callback, when set, receives the Result instead of Host.OnCompletion.
	Callback func(*Result) error

	Queued     time.Time     // Submit was called
	Submitted  time.Time     // handed to the facility
	Completed  time.Time     // completion harvested
	Await      time.Duration // Submitted - Queued
	Cost       time.Duration // Completed - Submitted
	Pattern    Pattern
	Contiguous uint64 // immediately preceding contiguous requests of the same kind
	Res        int64  // bytes transferred or negative errno
	Res2       int64

	id      uint64
	state   atomic.Int32
	aborted bool
}

// NewRequest is a convenience constructor.
func NewRequest(fd int, op Op, offset int64, buf []byte, handle any) *Request {
	return &Request{FD: fd, Op: op, Offset: offset, Buf: buf, Handle: handle}
}

// ID returns the registry handle assigned at submission (0 before).
func (r *Request) ID() uint64 { return r.id }

// State returns the lifecycle state.
func (r *Request) State() RequestState { return RequestState(r.state.Load()) }

// Len returns the transfer size in bytes.
func (r *Request) Len() int { return len(r.Buf) }

// End returns the offset just past this request.
func (r *Request) End() int64 { return r.Offset + int64(len(r.Buf)) }

// Aborted reports whether forced shutdown completed the request without a
// facility event.
func (r *Request) Aborted() bool { return r.aborted }

func (r *Request) advance(from, to RequestState) bool {
	return r.state.CompareAndSwap(int32(from), int32(to))
}

// class maps the request to its detector class.
func (r *Request) class() slowdisk.Class {
	if r.Pattern != PatternSequential {
		return slowdisk.ClassRandom
	}
	if r.Op == OpWrite {
		return slowdisk.ClassSeqWrite
	}
	return slowdisk.ClassSeqRead
}

func (r *Request) validate() error {
	switch {
	case r == nil:
		return NewError("submit", ErrCodeInvalidParameters, "nil request")
	case r.Op != OpRead && r.Op != OpWrite:
		return NewError("submit", ErrCodeInvalidParameters, fmt.Sprintf("unknown op %d", r.Op))
	case len(r.Buf) == 0:
		return NewError("submit", ErrCodeInvalidParameters, "empty buffer")
	case r.Offset < 0:
		return NewError("submit", ErrCodeInvalidParameters, fmt.Sprintf("negative offset %d", r.Offset))
	case r.FD < 0:
		return NewError("submit", ErrCodeInvalidParameters, fmt.Sprintf("bad descriptor %d", r.FD))
	case r.State() != StateNew:
		return NewError("submit", ErrCodeInvalidParameters, fmt.Sprintf("request already %s", r.State()))
	}
	return nil
}

// Result is delivered once per request.
type Result struct {
	Request *Request
	N       int   // bytes transferred when Err is nil
	Err     error // per-operation failure
}

// Handle returns the request's opaque host state.
func (res *Result) Handle() any { return res.Request.Handle }

// OK reports whether the operation succeeded.
func (res *Result) OK() bool { return res.Err == nil }
