//go:build linux && integration

package diskaio

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// startNative starts an engine on the kernel's native AIO facility, skipping
// when the kernel refuses to create a context.
func startNative(t *testing.T, depth int, host Host) *Engine {
	t.Helper()
	cfg := testEngineConfig()
	cfg.Device = "native-test"
	cfg.Facility = "native"
	cfg.Depth = depth

	e, err := NewEngine(cfg, host, nil)
	require.NoError(t, err)
	if err := e.Start(context.Background()); err != nil {
		t.Skipf("native AIO unavailable: %v", err)
	}
	t.Cleanup(func() { e.Shutdown(context.Background()) })
	return e
}

func backingFile(t *testing.T, size int64) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "disk.img"))
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	t.Cleanup(func() { f.Close() })
	return f
}

func TestIntegrationNativeRoundTrip(t *testing.T) {
	host := NewMockHost()
	e := startNative(t, 8, host)
	f := backingFile(t, 1<<20)
	fd := int(f.Fd())

	payload := bytes.Repeat([]byte{0xA5}, 4096)
	_, err := e.Submit(context.Background(), NewRequest(fd, OpWrite, 8192, payload, nil))
	require.NoError(t, err)
	require.True(t, host.WaitResults(1, waitTimeout))

	rd := NewRequest(fd, OpRead, 8192, make([]byte, 4096), nil)
	_, err = e.Submit(context.Background(), rd)
	require.NoError(t, err)
	require.True(t, host.WaitResults(2, waitTimeout))

	for _, res := range host.Results() {
		require.NoError(t, res.Err)
		assert.Equal(t, 4096, res.N)
	}
	assert.Equal(t, payload, rd.Buf)

	report, err := e.Shutdown(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean)
}

func TestIntegrationNativeProbe(t *testing.T) {
	e := startNative(t, 16, nil)
	f := backingFile(t, 4<<20)

	res, err := ProbeSequentialRead(context.Background(), e, int(f.Fd()), ProbeOptions{
		Threshold: 20,
		BlockSize: 4096,
		Span:      4 << 20,
	})
	require.NoError(t, err)
	assert.Equal(t, 60, res.Ops)
	assert.Zero(t, res.Errors)
}

func TestIntegrationStress(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}
	e := startNative(t, 32, nil)
	f := backingFile(t, 16<<20)
	fd := int(f.Fd())

	const workers, perWorker = 4, 500
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			done := make(chan *Result, perWorker)
			for i := 0; i < perWorker; i++ {
				r := NewRequest(fd, OpRead, int64((w*perWorker+i)%4096)*4096, make([]byte, 4096), nil)
				r.Callback = func(res *Result) error {
					done <- res
					return nil
				}
				if _, err := e.Submit(ctx, r); err != nil {
					return err
				}
			}
			for i := 0; i < perWorker; i++ {
				select {
				case res := <-done:
					if res.Err != nil {
						return res.Err
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	st := e.Stats()
	assert.Equal(t, uint64(workers*perWorker), st.Delivered)
	assert.Equal(t, 0, st.InFlight)
	assert.LessOrEqual(t, e.Metrics().MaxInFlight.Load(), uint32(32))
}
