package diskaio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-diskaio/internal/slowdisk"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultDepth, cfg.Depth)
	assert.Equal(t, slowdisk.PolicyDisabled, cfg.SlowDisk.Policy)
	assert.Equal(t, MaxOverTimesSlowDisk, cfg.SlowDisk.RepeatViolations)
}

func TestParseConfig(t *testing.T) {
	data := []byte(`
device: /dev/nvme0n1
facility: uring
depth: 64
poll_interval: 5ms
drain_timeout: 2s
slow_disk:
  policy: await
  await_threshold: 15ms
  min_samples: 100
  recovery: manual
log:
  level: debug
`)
	cfg, err := ParseConfig(data)
	require.NoError(t, err)

	assert.Equal(t, "/dev/nvme0n1", cfg.Device)
	assert.Equal(t, "uring", cfg.Facility)
	assert.Equal(t, 64, cfg.Depth)
	assert.Equal(t, 5*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.DrainTimeout)
	assert.Equal(t, DefaultQueueCapacity, cfg.QueueCapacity, "unset fields keep defaults")
	assert.Equal(t, slowdisk.PolicyAwait, cfg.SlowDisk.Policy)
	assert.Equal(t, 15*time.Millisecond, cfg.SlowDisk.AwaitThreshold)
	assert.Equal(t, 100, cfg.SlowDisk.MinSamples)
	assert.Equal(t, slowdisk.RecoveryManual, cfg.SlowDisk.Recovery)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed", "depth: [1, 2"},
		{"zero depth", "depth: 0"},
		{"unknown facility", "facility: floppy"},
		{"bad policy", "slow_disk:\n  policy: psychic"},
		{"bad ratio", "slow_disk:\n  min_ratio: 1.5"},
		{"negative drain", "drain_timeout: -1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, IsCode(err, ErrCodeInvalidParameters), "got %v", err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diskaio.yaml")
	require.NoError(t, os.WriteFile(path, []byte("depth: 32\nbatch_size: 8\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Depth)
	assert.Equal(t, 8, cfg.BatchSize)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigMarshalRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = "sda"
	cfg.SlowDisk.Policy = slowdisk.PolicyCost

	data, err := cfg.Marshal()
	require.NoError(t, err)

	back, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
