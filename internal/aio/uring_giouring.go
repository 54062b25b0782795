//go:build linux && giouring

package aio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-diskaio/internal/interfaces"
	"github.com/ehrlich-b/go-diskaio/internal/logging"
)

// Uring is an io_uring facility. The submission side and the completion
// side are guarded separately so Submit and Wait can run concurrently;
// timed waits rely on the kernel's extended wait argument (5.11+).
type Uring struct {
	ring   *giouring.Ring
	depth  int
	closed atomic.Bool

	sqMu    sync.Mutex
	backlog uint // prepared entries the kernel has not consumed yet

	cqMu sync.Mutex
	cqes []*giouring.CompletionQueueEvent

	pinMu  sync.Mutex
	pinned map[uint64]pinned
}

// NewUring creates a ring with depth submission entries.
func NewUring(depth int) (*Uring, error) {
	if err := checkDepth(depth); err != nil {
		return nil, err
	}
	ring, err := giouring.CreateRing(uint32(depth))
	if err != nil {
		return nil, fmt.Errorf("aio: create io_uring(%d): %w", depth, err)
	}
	logging.Debug("io_uring created", "depth", depth)
	return &Uring{
		ring:   ring,
		depth:  depth,
		cqes:   make([]*giouring.CompletionQueueEvent, depth),
		pinned: make(map[uint64]pinned, depth),
	}, nil
}

// Depth returns the depth the ring was created with.
func (u *Uring) Depth() int { return u.depth }

// Submit prepares one SQE per op until the submission queue is full and
// enters the kernel. Entries left in the ring after a short submit are
// counted as accepted and flushed by the next Submit or Wait.
func (u *Uring) Submit(ops []interfaces.Operation) (int, error) {
	if u.closed.Load() {
		return 0, ErrClosed
	}
	u.sqMu.Lock()
	defer u.sqMu.Unlock()

	queued := 0
	for i := range ops {
		op := &ops[i]
		sqe := u.ring.GetSQE()
		if sqe == nil {
			break
		}
		var addr uintptr
		if len(op.Buf) > 0 {
			addr = uintptr(unsafe.Pointer(&op.Buf[0]))
		}
		if op.Op == interfaces.OpWrite {
			sqe.PrepareWrite(op.FD, addr, uint32(len(op.Buf)), uint64(op.Offset))
		} else {
			sqe.PrepareRead(op.FD, addr, uint32(len(op.Buf)), uint64(op.Offset))
		}
		sqe.UserData = op.UserData
		u.pin(op)
		queued++
	}
	if queued == 0 && u.backlog == 0 {
		return 0, nil
	}

	if err := u.submitLocked(uint(queued)); err != nil {
		u.unpin(ops[:queued])
		return 0, err
	}
	return queued, nil
}

func (u *Uring) submitLocked(added uint) error {
	u.backlog += added
	n, err := u.ring.Submit()
	if err != nil && !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EBUSY) && !errors.Is(err, unix.EINTR) {
		return fmt.Errorf("aio: io_uring submit: %w", err)
	}
	if n > u.backlog {
		n = u.backlog
	}
	u.backlog -= n
	return nil
}

func (u *Uring) flush() error {
	u.sqMu.Lock()
	defer u.sqMu.Unlock()
	if u.backlog == 0 {
		return nil
	}
	return u.submitLocked(0)
}

func (u *Uring) pin(op *interfaces.Operation) {
	u.pinMu.Lock()
	u.pinned[op.UserData] = pinned{buf: op.Buf}
	u.pinMu.Unlock()
}

func (u *Uring) unpin(ops []interfaces.Operation) {
	u.pinMu.Lock()
	for i := range ops {
		delete(u.pinned, ops[i].UserData)
	}
	u.pinMu.Unlock()
}

// Wait blocks for min completions (bounded by timeout when it is not
// negative) and then reaps up to max.
func (u *Uring) Wait(min, max int, timeout time.Duration) ([]interfaces.Event, error) {
	if u.closed.Load() {
		return nil, ErrClosed
	}
	if max <= 0 {
		return nil, nil
	}
	if err := u.flush(); err != nil {
		return nil, err
	}

	u.cqMu.Lock()
	defer u.cqMu.Unlock()

	if min > 0 {
		var tsp *syscall.Timespec
		if timeout >= 0 {
			ts := syscall.NsecToTimespec(int64(timeout))
			tsp = &ts
		}
		if _, err := u.ring.WaitCQEs(uint32(min), tsp, nil); err != nil {
			switch {
			case errors.Is(err, unix.ETIME), errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
			default:
				if u.closed.Load() {
					return nil, ErrClosed
				}
				return nil, fmt.Errorf("aio: io_uring wait: %w", err)
			}
		}
	}

	if len(u.cqes) < max {
		u.cqes = make([]*giouring.CompletionQueueEvent, max)
	}
	got := u.ring.PeekBatchCQE(u.cqes[:max])
	events := make([]interfaces.Event, got)
	u.pinMu.Lock()
	for i := uint32(0); i < got; i++ {
		cqe := u.cqes[i]
		events[i] = interfaces.Event{UserData: cqe.UserData, Res: int64(cqe.Res)}
		delete(u.pinned, cqe.UserData)
	}
	u.pinMu.Unlock()
	u.ring.CQAdvance(got)
	return events, nil
}

// Close tears the ring down.
func (u *Uring) Close() error {
	if !u.closed.CompareAndSwap(false, true) {
		return nil
	}
	u.sqMu.Lock()
	u.cqMu.Lock()
	u.ring.QueueExit()
	u.cqMu.Unlock()
	u.sqMu.Unlock()

	u.pinMu.Lock()
	u.pinned = make(map[uint64]pinned)
	u.pinMu.Unlock()
	return nil
}
