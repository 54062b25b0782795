package slowdisk

import (
	"errors"
	"fmt"
	"time"

	"github.com/ehrlich-b/go-diskaio/internal/constants"
)

// Config tunes the detector. Zero values are replaced by defaults in
// WithDefaults; Validate rejects values that cannot be defaulted.
type Config struct {
	Policy Policy `yaml:"policy"`

	RandomThreshold          time.Duration `yaml:"random_threshold"`
	SequentialReadThreshold  time.Duration `yaml:"sequential_read_threshold"`
	SequentialWriteThreshold time.Duration `yaml:"sequential_write_threshold"`
	AwaitThreshold           time.Duration `yaml:"await_threshold"`

	RandomCapacity     int `yaml:"random_capacity"`
	SequentialCapacity int `yaml:"sequential_capacity"`
	AwaitCapacity      int `yaml:"await_capacity"`

	MinSamples       int     `yaml:"min_samples"`       // window floor before any class may be flagged
	MinRatio         float64 `yaml:"min_ratio"`         // class share of window traffic, 0..1
	RepeatViolations int     `yaml:"repeat_violations"` // consecutive over-threshold samples
	CheckInterval    int     `yaml:"check_interval"`    // samples between automatic evaluations
	Quantile         float64 `yaml:"quantile"`          // 0 disables the percentile check

	Recovery Recovery `yaml:"recovery"`
}

// DefaultConfig returns the cost policy with stock thresholds.
func DefaultConfig() Config {
	return Config{
		Policy:                   PolicyCost,
		RandomThreshold:          constants.DefaultRandomThreshold,
		SequentialReadThreshold:  constants.DefaultSequentialThreshold,
		SequentialWriteThreshold: constants.DefaultSequentialThreshold,
		AwaitThreshold:           constants.DefaultAwaitThreshold,
		RandomCapacity:           constants.RandomRingCapacity,
		SequentialCapacity:       constants.SequentialRingCapacity,
		AwaitCapacity:            constants.AwaitRingCapacity,
		MinSamples:               constants.SlowDiskSampleIgnore,
		MinRatio:                 constants.DefaultMinRatio,
		RepeatViolations:         constants.MaxOverTimesSlowDisk,
		CheckInterval:            constants.SlowDiskCheckInterval,
		Recovery:                 RecoveryAuto,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.RandomThreshold == 0 {
		c.RandomThreshold = d.RandomThreshold
	}
	if c.SequentialReadThreshold == 0 {
		c.SequentialReadThreshold = d.SequentialReadThreshold
	}
	if c.SequentialWriteThreshold == 0 {
		c.SequentialWriteThreshold = d.SequentialWriteThreshold
	}
	if c.AwaitThreshold == 0 {
		c.AwaitThreshold = d.AwaitThreshold
	}
	if c.RandomCapacity == 0 {
		c.RandomCapacity = d.RandomCapacity
	}
	if c.SequentialCapacity == 0 {
		c.SequentialCapacity = d.SequentialCapacity
	}
	if c.AwaitCapacity == 0 {
		c.AwaitCapacity = d.AwaitCapacity
	}
	if c.RepeatViolations == 0 {
		c.RepeatViolations = d.RepeatViolations
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = d.CheckInterval
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	var errs []error
	switch c.Policy {
	case PolicyDisabled, PolicyAwait, PolicyCost:
	default:
		errs = append(errs, fmt.Errorf("unknown policy %d", int(c.Policy)))
	}
	switch c.Recovery {
	case RecoveryAuto, RecoveryManual:
	default:
		errs = append(errs, fmt.Errorf("unknown recovery %d", int(c.Recovery)))
	}
	for name, d := range map[string]time.Duration{
		"random_threshold":           c.RandomThreshold,
		"sequential_read_threshold":  c.SequentialReadThreshold,
		"sequential_write_threshold": c.SequentialWriteThreshold,
		"await_threshold":            c.AwaitThreshold,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.RandomCapacity < 0 || c.SequentialCapacity < 0 || c.AwaitCapacity < 0 {
		errs = append(errs, errors.New("ring capacities must not be negative"))
	}
	if c.MinSamples < 0 {
		errs = append(errs, errors.New("min_samples must not be negative"))
	}
	if c.MinRatio < 0 || c.MinRatio > 1 {
		errs = append(errs, fmt.Errorf("min_ratio %v outside [0, 1]", c.MinRatio))
	}
	if c.RepeatViolations < 0 {
		errs = append(errs, errors.New("repeat_violations must not be negative"))
	}
	if c.CheckInterval < 0 {
		errs = append(errs, errors.New("check_interval must not be negative"))
	}
	if c.Quantile < 0 || c.Quantile > 1 {
		errs = append(errs, fmt.Errorf("quantile %v outside [0, 1]", c.Quantile))
	}
	if len(errs) > 0 {
		return fmt.Errorf("slowdisk: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// threshold returns the violation threshold for class under the policy.
func (c Config) threshold(class Class) time.Duration {
	if c.Policy == PolicyAwait {
		return c.AwaitThreshold
	}
	switch class {
	case ClassSeqRead:
		return c.SequentialReadThreshold
	case ClassSeqWrite:
		return c.SequentialWriteThreshold
	default:
		return c.RandomThreshold
	}
}

// capacity returns the ring capacity for class under the policy.
func (c Config) capacity(class Class) int {
	if c.Policy == PolicyAwait {
		return c.AwaitCapacity
	}
	if class == ClassRandom {
		return c.RandomCapacity
	}
	return c.SequentialCapacity
}
