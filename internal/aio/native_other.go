//go:build !linux

package aio

import (
	"time"

	"github.com/ehrlich-b/go-diskaio/internal/interfaces"
)

// Native is unavailable outside Linux.
type Native struct{}

// NewNative always fails outside Linux.
func NewNative(depth int) (*Native, error) {
	if err := checkDepth(depth); err != nil {
		return nil, err
	}
	return nil, ErrNotSupported
}

func (n *Native) Depth() int { return 0 }

func (n *Native) Submit(ops []interfaces.Operation) (int, error) { return 0, ErrNotSupported }

func (n *Native) Wait(min, max int, timeout time.Duration) ([]interfaces.Event, error) {
	return nil, ErrNotSupported
}

func (n *Native) Close() error { return nil }
