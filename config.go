package diskaio

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ehrlich-b/go-diskaio/internal/aio"
	"github.com/ehrlich-b/go-diskaio/internal/constants"
	"github.com/ehrlich-b/go-diskaio/internal/slowdisk"
)

// Config holds engine configuration. It can be loaded from YAML; durations
// are written as strings such as "20ms".
type Config struct {
	Device   string `yaml:"device"`   // label used in logs, errors and events
	Facility string `yaml:"facility"` // "native" or "uring"

	Depth         int           `yaml:"depth"`          // max in-flight operations
	QueueCapacity int           `yaml:"queue_capacity"` // completed-but-undelivered bound
	Dispatchers   int           `yaml:"dispatchers"`    // delivery goroutines
	BatchSize     int           `yaml:"batch_size"`     // events per poll and per take
	PollInterval  time.Duration `yaml:"poll_interval"`
	DrainTimeout  time.Duration `yaml:"drain_timeout"`
	FullBackoff   time.Duration `yaml:"full_backoff"` // pause before re-offering to a full queue

	SlowDisk slowdisk.Config `yaml:"slow_disk"`

	Log LogConfig `yaml:"log"`
}

// LogConfig selects the logger used by the CLI.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns the stock configuration. Slow-disk checking starts
// disabled; enable it in the config or with Engine.EnableSlowDiskCheck.
func DefaultConfig() Config {
	sd := slowdisk.DefaultConfig()
	sd.Policy = slowdisk.PolicyDisabled
	return Config{
		Facility:      string(aio.KindNative),
		Depth:         constants.DefaultDepth,
		QueueCapacity: constants.DefaultQueueCapacity,
		Dispatchers:   constants.DefaultDispatchers,
		BatchSize:     constants.DefaultBatchSize,
		PollInterval:  constants.DefaultPollInterval,
		DrainTimeout:  constants.DefaultDrainTimeout,
		FullBackoff:   constants.DefaultFullBackoff,
		SlowDisk:      sd,
		Log:           LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, WrapError("load-config", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &Error{Op: "parse-config", Code: ErrCodeInvalidParameters, Msg: err.Error(), Inner: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal encodes the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := aio.ParseKind(c.Facility); err != nil {
		errs = append(errs, err)
	}
	if c.Depth <= 0 {
		errs = append(errs, fmt.Errorf("depth must be positive, got %d", c.Depth))
	}
	if c.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("queue_capacity must be positive, got %d", c.QueueCapacity))
	}
	if c.Dispatchers <= 0 {
		errs = append(errs, fmt.Errorf("dispatchers must be positive, got %d", c.Dispatchers))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("drain_timeout must not be negative, got %s", c.DrainTimeout))
	}
	if c.FullBackoff < 0 {
		errs = append(errs, fmt.Errorf("full_backoff must not be negative, got %s", c.FullBackoff))
	}
	if err := c.SlowDisk.WithDefaults().Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		return &Error{Op: "validate-config", Device: c.Device, Code: ErrCodeInvalidParameters, Msg: err.Error(), Inner: err}
	}
	return nil
}
