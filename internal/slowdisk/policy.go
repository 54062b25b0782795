package slowdisk

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy selects which duration of a completed request is sampled.
type Policy int

const (
	// PolicyDisabled records nothing and never reports a slow disk.
	PolicyDisabled Policy = iota
	// PolicyAwait samples the time a request waited before dispatch.
	PolicyAwait
	// PolicyCost samples the full submission-to-completion duration.
	PolicyCost
)

func (p Policy) String() string {
	switch p {
	case PolicyDisabled:
		return "disabled"
	case PolicyAwait:
		return "await"
	case PolicyCost:
		return "cost"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts "disabled" (or "disable"/"none"), "await" and "cost".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "disable", "none", "":
		return PolicyDisabled, nil
	case "await":
		return PolicyAwait, nil
	case "cost":
		return PolicyCost, nil
	}
	return PolicyDisabled, fmt.Errorf("slowdisk: unknown policy %q", s)
}

func (p Policy) MarshalYAML() (any, error) { return p.String(), nil }

func (p *Policy) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParsePolicy(value.Value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Class is the I/O class a sample is recorded under.
type Class int

const (
	ClassRandom Class = iota
	ClassSeqRead
	ClassSeqWrite

	numClasses = 3
)

// Classes lists every class in evaluation order.
var Classes = [numClasses]Class{ClassRandom, ClassSeqRead, ClassSeqWrite}

func (c Class) String() string {
	switch c {
	case ClassRandom:
		return "random"
	case ClassSeqRead:
		return "seq-read"
	case ClassSeqWrite:
		return "seq-write"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Recovery controls whether a slow disk reverts to healthy on its own.
type Recovery int

const (
	// RecoveryAuto reverts to healthy on the first evaluation where no
	// class is slow, re-arming the transition.
	RecoveryAuto Recovery = iota
	// RecoveryManual keeps the slow state until Reset is called.
	RecoveryManual
)

func (r Recovery) String() string {
	switch r {
	case RecoveryAuto:
		return "auto"
	case RecoveryManual:
		return "manual"
	default:
		return fmt.Sprintf("recovery(%d)", int(r))
	}
}

func ParseRecovery(s string) (Recovery, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "":
		return RecoveryAuto, nil
	case "manual":
		return RecoveryManual, nil
	}
	return RecoveryAuto, fmt.Errorf("slowdisk: unknown recovery %q", s)
}

func (r Recovery) MarshalYAML() (any, error) { return r.String(), nil }

func (r *Recovery) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseRecovery(value.Value)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Health is the device health state.
type Health int

const (
	Healthy Health = iota
	Slow
)

func (h Health) String() string {
	if h == Slow {
		return "slow"
	}
	return "healthy"
}
