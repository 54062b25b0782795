// Package aio implements interfaces.Facility on top of the kernel's
// asynchronous I/O interfaces: native Linux AIO (io_setup, io_submit,
// io_getevents, io_destroy) and, when built with -tags giouring, io_uring.
package aio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ehrlich-b/go-diskaio/internal/interfaces"
)

var (
	// ErrClosed is returned by a facility after Close.
	ErrClosed = errors.New("aio: facility closed")
	// ErrNotSupported is returned when a facility is unavailable on this
	// platform or build.
	ErrNotSupported = errors.New("aio: facility not supported")
)

// Kind names a facility implementation.
type Kind string

const (
	KindNative Kind = "native"
	KindUring  Kind = "uring"
)

// ParseKind accepts "native" (or "aio", "libaio") and "uring" (or "io_uring").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native", "aio", "libaio", "":
		return KindNative, nil
	case "uring", "io_uring", "iouring":
		return KindUring, nil
	}
	return "", fmt.Errorf("aio: unknown facility %q", s)
}

// FactoryFor returns the constructor for kind.
func FactoryFor(kind Kind) (interfaces.Factory, error) {
	switch kind {
	case KindNative:
		return NativeFactory, nil
	case KindUring:
		return UringFactory, nil
	}
	return nil, fmt.Errorf("aio: unknown facility %q", string(kind))
}

// NativeFactory adapts NewNative to interfaces.Factory.
func NativeFactory(depth int) (interfaces.Facility, error) {
	f, err := NewNative(depth)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// UringFactory adapts NewUring to interfaces.Factory.
func UringFactory(depth int) (interfaces.Facility, error) {
	f, err := NewUring(depth)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func checkDepth(depth int) error {
	if depth <= 0 {
		return fmt.Errorf("aio: depth must be positive, got %d", depth)
	}
	return nil
}

// pinned keeps a buffer reachable while the kernel may still write to it.
type pinned struct {
	buf []byte
	ref any
}
