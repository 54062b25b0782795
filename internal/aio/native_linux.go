//go:build linux

package aio

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-diskaio/internal/interfaces"
	"github.com/ehrlich-b/go-diskaio/internal/logging"
)

// Opcodes from include/uapi/linux/aio_abi.h.
const (
	iocbCmdPread  = 0
	iocbCmdPwrite = 1
)

// iocb mirrors struct iocb (64 bytes, little-endian field order).
type iocb struct {
	data      uint64
	key       uint32
	rwFlags   int32
	opcode    uint16
	reqprio   int16
	fildes    uint32
	buf       uint64
	nbytes    uint64
	offset    int64
	reserved2 uint64
	flags     uint32
	resfd     uint32
}

// ioEvent mirrors struct io_event.
type ioEvent struct {
	data uint64
	obj  uint64
	res  int64
	res2 int64
}

// Native is a Linux AIO context.
type Native struct {
	ctx    uintptr
	depth  int
	closed atomic.Bool

	mu     sync.Mutex
	pinned map[uint64]pinned
}

// NewNative creates an AIO context able to hold depth in-flight operations.
func NewNative(depth int) (*Native, error) {
	if err := checkDepth(depth); err != nil {
		return nil, err
	}
	var ctx uintptr
	_, _, errno := unix.Syscall(unix.SYS_IO_SETUP, uintptr(depth), uintptr(unsafe.Pointer(&ctx)), 0)
	if errno != 0 {
		return nil, fmt.Errorf("aio: io_setup(%d): %w", depth, os.NewSyscallError("io_setup", errno))
	}
	logging.Debug("aio context created", "depth", depth)
	return &Native{
		ctx:    ctx,
		depth:  depth,
		pinned: make(map[uint64]pinned, depth),
	}, nil
}

// Depth returns the depth the context was created with.
func (n *Native) Depth() int { return n.depth }

// Submit queues ops with io_submit. The kernel may accept a prefix only.
// EAGAIN is reported as zero accepted so the caller retries.
func (n *Native) Submit(ops []interfaces.Operation) (int, error) {
	if n.closed.Load() {
		return 0, ErrClosed
	}
	if len(ops) == 0 {
		return 0, nil
	}

	cbs := make([]*iocb, len(ops))
	n.mu.Lock()
	for i := range ops {
		op := &ops[i]
		cb := &iocb{
			data:   op.UserData,
			fildes: uint32(op.FD),
			nbytes: uint64(len(op.Buf)),
			offset: op.Offset,
		}
		if op.Op == interfaces.OpWrite {
			cb.opcode = iocbCmdPwrite
		} else {
			cb.opcode = iocbCmdPread
		}
		if len(op.Buf) > 0 {
			cb.buf = uint64(uintptr(unsafe.Pointer(&op.Buf[0])))
		}
		cbs[i] = cb
		n.pinned[op.UserData] = pinned{buf: op.Buf, ref: cb}
	}
	n.mu.Unlock()

	r1, _, errno := unix.Syscall(unix.SYS_IO_SUBMIT, n.ctx, uintptr(len(cbs)), uintptr(unsafe.Pointer(&cbs[0])))
	accepted := int(r1)
	if errno != 0 {
		accepted = 0
	}
	if accepted < len(ops) {
		n.unpin(ops[accepted:])
	}

	switch errno {
	case 0:
		return accepted, nil
	case unix.EAGAIN:
		return 0, nil
	default:
		return 0, os.NewSyscallError("io_submit", errno)
	}
}

func (n *Native) unpin(ops []interfaces.Operation) {
	n.mu.Lock()
	for i := range ops {
		delete(n.pinned, ops[i].UserData)
	}
	n.mu.Unlock()
}

// Wait reaps between min and max events with io_getevents. A negative
// timeout blocks until min events are available. EINTR yields no events
// and no error.
func (n *Native) Wait(min, max int, timeout time.Duration) ([]interfaces.Event, error) {
	if n.closed.Load() {
		return nil, ErrClosed
	}
	if max <= 0 {
		return nil, nil
	}
	if min > max {
		min = max
	}

	raw := make([]ioEvent, max)
	var tsp *unix.Timespec
	if timeout >= 0 {
		ts := unix.NsecToTimespec(int64(timeout))
		tsp = &ts
	}
	r1, _, errno := unix.Syscall6(unix.SYS_IO_GETEVENTS, n.ctx, uintptr(min), uintptr(max),
		uintptr(unsafe.Pointer(&raw[0])), uintptr(unsafe.Pointer(tsp)), 0)
	switch errno {
	case 0:
	case unix.EINTR:
		return nil, nil
	default:
		if n.closed.Load() {
			return nil, ErrClosed
		}
		return nil, os.NewSyscallError("io_getevents", errno)
	}

	got := int(r1)
	events := make([]interfaces.Event, got)
	n.mu.Lock()
	for i := 0; i < got; i++ {
		events[i] = interfaces.Event{
			UserData: raw[i].data,
			Res:      raw[i].res,
			Res2:     raw[i].res2,
		}
		delete(n.pinned, raw[i].data)
	}
	n.mu.Unlock()
	return events, nil
}

// Close destroys the context. The kernel cancels or waits for in-flight
// operations before io_destroy returns.
func (n *Native) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	_, _, errno := unix.Syscall(unix.SYS_IO_DESTROY, n.ctx, 0, 0)
	n.mu.Lock()
	abandoned := len(n.pinned)
	n.pinned = make(map[uint64]pinned)
	n.mu.Unlock()
	if abandoned > 0 {
		logging.Debug("aio context destroyed with operations outstanding", "abandoned", abandoned)
	}
	if errno != 0 {
		return os.NewSyscallError("io_destroy", errno)
	}
	return nil
}
