package diskaio

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Error is a structured engine error with context and errno mapping
type Error struct {
	Op     string        // Operation that failed (e.g. "submit", "poll", "shutdown")
	Device string        // Device path ("" if not applicable)
	Code   ErrorCode     // High-level error category
	Errno  syscall.Errno // Kernel errno (0 if not applicable)
	Msg    string        // Human-readable message
	Inner  error         // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}
	if e.Device != "" {
		parts = append(parts, "device="+e.Device)
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", int(e.Errno)))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("diskaio: %s (%s)", msg, strings.Join(parts, " "))
	}
	return "diskaio: " + msg
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches any *Error carrying the same code, so the sentinels below work
// with errors.Is regardless of context fields.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok || te == nil {
		return false
	}
	return e.Code == te.Code
}

// Retryable reports whether the failure is transient backpressure.
func (e *Error) Retryable() bool {
	return e.Code == ErrCodeQueueFull
}

// ErrorCode represents high-level error categories
type ErrorCode string

const (
	ErrCodeInvalidParameters  ErrorCode = "invalid parameters"
	ErrCodeQueueFull          ErrorCode = "queue full"
	ErrCodeSubmissionFailed   ErrorCode = "submission failed"
	ErrCodeFacilityFailure    ErrorCode = "facility failure"
	ErrCodeClosed             ErrorCode = "engine closed"
	ErrCodeShutdownIncomplete ErrorCode = "shutdown incomplete"
	ErrCodeIOError            ErrorCode = "I/O error"
	ErrCodeTimeout            ErrorCode = "timeout"
	ErrCodeNotSupported       ErrorCode = "not supported"
	ErrCodePermissionDenied   ErrorCode = "permission denied"
	ErrCodeInsufficientMemory ErrorCode = "insufficient memory"
)

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrInvalidParameters  = &Error{Code: ErrCodeInvalidParameters}
	ErrQueueFull          = &Error{Code: ErrCodeQueueFull}
	ErrSubmissionFailed   = &Error{Code: ErrCodeSubmissionFailed}
	ErrFacilityFailure    = &Error{Code: ErrCodeFacilityFailure}
	ErrClosed             = &Error{Code: ErrCodeClosed}
	ErrShutdownIncomplete = &Error{Code: ErrCodeShutdownIncomplete}
	ErrNotSupported       = &Error{Code: ErrCodeNotSupported}
)

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:   op,
		Code: code,
		Msg:  msg,
	}
}

// NewErrorWithErrno creates a new structured error with errno
func NewErrorWithErrno(op string, code ErrorCode, errno syscall.Errno) *Error {
	return &Error{
		Op:    op,
		Code:  code,
		Errno: errno,
		Msg:   errno.Error(),
	}
}

// NewDeviceError creates a new device-specific error
func NewDeviceError(op, device string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:     op,
		Device: device,
		Code:   code,
		Msg:    msg,
	}
}

// WrapError wraps an existing error with engine context. Errnos anywhere
// in the chain are mapped to a code.
func WrapError(op string, inner error) *Error {
	return wrapWithCode(op, "", inner, "")
}

// wrapWithCode wraps inner, using fallback when inner carries no errno.
func wrapWithCode(op, device string, inner error, fallback ErrorCode) *Error {
	if inner == nil {
		return nil
	}

	var ee *Error
	if errors.As(inner, &ee) {
		out := *ee
		out.Op = op
		if device != "" {
			out.Device = device
		}
		return &out
	}

	var errno syscall.Errno
	if errors.As(inner, &errno) {
		return &Error{
			Op:     op,
			Device: device,
			Code:   mapErrnoToCode(errno),
			Errno:  errno,
			Msg:    inner.Error(),
			Inner:  inner,
		}
	}

	if fallback == "" {
		fallback = ErrCodeIOError
	}
	return &Error{
		Op:     op,
		Device: device,
		Code:   fallback,
		Msg:    inner.Error(),
		Inner:  inner,
	}
}

// errnoResult converts a negative completion result into an error.
func errnoResult(op, device string, res int64) *Error {
	errno := syscall.Errno(-res)
	return &Error{
		Op:     op,
		Device: device,
		Code:   mapErrnoToCode(errno),
		Errno:  errno,
		Msg:    errno.Error(),
	}
}

// mapErrnoToCode maps syscall errno to error codes
func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.EINVAL, syscall.E2BIG, syscall.EBADF, syscall.EFAULT:
		return ErrCodeInvalidParameters
	case syscall.ENOSYS, syscall.EOPNOTSUPP:
		return ErrCodeNotSupported
	case syscall.EPERM, syscall.EACCES:
		return ErrCodePermissionDenied
	case syscall.ENOMEM, syscall.ENOSPC:
		return ErrCodeInsufficientMemory
	case syscall.ETIMEDOUT:
		return ErrCodeTimeout
	case syscall.EAGAIN:
		return ErrCodeQueueFull
	default:
		return ErrCodeIOError
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsErrno checks if an error matches a specific errno
func IsErrno(err error, errno syscall.Errno) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Errno == errno
	}
	return false
}

// IsRetryable reports whether err signals transient backpressure.
func IsRetryable(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Retryable()
	}
	return false
}
