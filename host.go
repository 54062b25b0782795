package diskaio

import (
	"github.com/ehrlich-b/go-diskaio/internal/slowdisk"
)

// Class is the detector class of a request
type Class = slowdisk.Class

// SlowDiskEvent reports a healthy to slow transition for a device.
type SlowDiskEvent struct {
	Device string
	slowdisk.Event
}

// Host receives results and health transitions. Errors and panics raised by
// a Host are logged and counted; they never stop the engine.
type Host interface {
	OnCompletion(res *Result) error
	OnSlowDisk(ev SlowDiskEvent) error
}

// HostFuncs adapts plain functions to Host. Nil fields are ignored.
type HostFuncs struct {
	Completion func(res *Result) error
	SlowDisk   func(ev SlowDiskEvent) error
}

func (h HostFuncs) OnCompletion(res *Result) error {
	if h.Completion == nil {
		return nil
	}
	return h.Completion(res)
}

func (h HostFuncs) OnSlowDisk(ev SlowDiskEvent) error {
	if h.SlowDisk == nil {
		return nil
	}
	return h.SlowDisk(ev)
}

// NoOpHost discards every notification
type NoOpHost struct{}

func (NoOpHost) OnCompletion(*Result) error     { return nil }
func (NoOpHost) OnSlowDisk(SlowDiskEvent) error { return nil }

var (
	_ Host = HostFuncs{}
	_ Host = NoOpHost{}
)
