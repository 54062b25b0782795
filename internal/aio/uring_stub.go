//go:build !linux || !giouring

package aio

import (
	"time"

	"github.com/ehrlich-b/go-diskaio/internal/interfaces"
)

// Uring is available when built with -tags giouring on Linux.
type Uring struct{}

// NewUring fails unless built with -tags giouring on Linux.
func NewUring(depth int) (*Uring, error) {
	if err := checkDepth(depth); err != nil {
		return nil, err
	}
	return nil, ErrNotSupported
}

func (u *Uring) Depth() int { return 0 }

func (u *Uring) Submit(ops []interfaces.Operation) (int, error) { return 0, ErrNotSupported }

func (u *Uring) Wait(min, max int, timeout time.Duration) ([]interfaces.Event, error) {
	return nil, ErrNotSupported
}

func (u *Uring) Close() error { return nil }
