package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueueCapacityExample(t *testing.T) {
	q := NewTaskQueue[string]("completions", 2)

	require.NoError(t, q.OfferLimited("A"))
	require.NoError(t, q.OfferLimited("B"))
	require.ErrorIs(t, q.OfferLimited("C"), ErrFull)

	batch, err := q.Take(context.Background(), 2, time.Now())
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, batch)

	require.NoError(t, q.OfferLimited("C"))
	assert.Equal(t, 1, q.Len())

	st := q.Stats()
	assert.Equal(t, uint64(3), st.Offered)
	assert.Equal(t, uint64(1), st.Rejected)
	assert.Equal(t, uint64(2), st.Taken)
}

func TestTaskQueueUnlimitedIgnoresCapacity(t *testing.T) {
	q := NewTaskQueue[int]("control", 1)
	require.NoError(t, q.OfferLimited(1))
	require.NoError(t, q.OfferUnlimited(2))
	require.NoError(t, q.OfferUnlimited(3))
	assert.Equal(t, 3, q.Len())
	require.ErrorIs(t, q.OfferLimited(4), ErrFull)

	batch, err := q.Take(context.Background(), 10, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, batch)
}

func TestTaskQueueTakeTimeout(t *testing.T) {
	q := NewTaskQueue[int]("empty", 4)

	start := time.Now()
	batch, err := q.Take(context.Background(), 1, start.Add(30*time.Millisecond))
	require.NoError(t, err)
	assert.Empty(t, batch)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestTaskQueueTakeWakesOnOffer(t *testing.T) {
	q := NewTaskQueue[int]("wake", 4)

	got := make(chan []int, 1)
	go func() {
		batch, _ := q.Take(context.Background(), 4, time.Now().Add(5*time.Second))
		got <- batch
	}()

	require.Eventually(t, func() bool { return q.Stats().Waiters == 1 }, time.Second, time.Millisecond)
	require.NoError(t, q.OfferLimited(42))

	select {
	case batch := <-got:
		assert.Equal(t, []int{42}, batch)
	case <-time.After(2 * time.Second):
		t.Fatal("Take did not wake after offer")
	}
}

func TestTaskQueueTakeContextCancel(t *testing.T) {
	q := NewTaskQueue[int]("cancel", 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := q.Take(ctx, 1, time.Now().Add(5*time.Second))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, q.Stats().Waiters)
}

func TestTaskQueueShutdownDrainsThenCloses(t *testing.T) {
	q := NewTaskQueue[int]("shutdown", 4)
	require.NoError(t, q.OfferLimited(1))
	q.Shutdown()

	require.ErrorIs(t, q.OfferLimited(2), ErrClosed)
	require.ErrorIs(t, q.OfferUnlimited(2), ErrClosed)

	batch, err := q.Take(context.Background(), 4, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, batch)

	_, err = q.Take(context.Background(), 4, time.Now().Add(time.Second))
	require.ErrorIs(t, err, ErrClosed)
}

func TestTaskQueueDestroyFailsWithBlockedConsumer(t *testing.T) {
	q := NewTaskQueue[int]("destroy", 4)

	done := make(chan error, 1)
	go func() {
		_, err := q.Take(context.Background(), 1, time.Now().Add(5*time.Second))
		done <- err
	}()
	require.Eventually(t, func() bool { return q.Stats().Waiters == 1 }, time.Second, time.Millisecond)

	_, err := q.Destroy()
	require.ErrorIs(t, err, ErrBusy)

	q.Shutdown()
	require.ErrorIs(t, <-done, ErrClosed)

	left, err := q.Destroy()
	require.NoError(t, err)
	assert.Empty(t, left)

	_, err = q.Destroy()
	require.ErrorIs(t, err, ErrClosed)
}

func TestTaskQueueDestroyReturnsLeftovers(t *testing.T) {
	q := NewTaskQueue[int]("leftovers", 4)
	require.NoError(t, q.OfferLimited(1))
	require.NoError(t, q.OfferLimited(2))
	left, err := q.Destroy()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, left)
}

type tagged struct {
	producer int
	seq      int
}

func TestTaskQueueConcurrentProducersConsumers(t *testing.T) {
	const (
		capacity  = 8
		producers = 4
		consumers = 3
		perProd   = 2000
	)
	q := NewTaskQueue[tagged]("stress", capacity)

	var overCapacity atomic.Bool
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProd; {
				err := q.OfferLimited(tagged{producer: p, seq: i})
				switch {
				case err == nil:
					i++
				case errors.Is(err, ErrFull):
					time.Sleep(time.Microsecond)
				default:
					t.Errorf("unexpected offer error: %v", err)
					return
				}
				if q.Len() > capacity {
					overCapacity.Store(true)
				}
			}
		}(p)
	}

	var mu sync.Mutex
	received := make([][]int, producers)
	var cwg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				batch, err := q.Take(context.Background(), 5, time.Now().Add(50*time.Millisecond))
				if errors.Is(err, ErrClosed) {
					return
				}
				mu.Lock()
				for _, item := range batch {
					received[item.producer] = append(received[item.producer], item.seq)
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	q.Shutdown()
	cwg.Wait()

	assert.False(t, overCapacity.Load(), "size exceeded capacity")
	for p := 0; p < producers; p++ {
		require.Len(t, received[p], perProd, "producer %d", p)
		seen := make(map[int]bool, perProd)
		for _, seq := range received[p] {
			require.False(t, seen[seq], "producer %d seq %d duplicated", p, seq)
			seen[seq] = true
		}
	}
}

func TestTaskQueueFIFOSingleConsumer(t *testing.T) {
	q := NewTaskQueue[int]("fifo", 3)
	var out []int
	for i := 0; i < 10; i++ {
		for q.OfferLimited(i) != nil {
			batch, err := q.Take(context.Background(), 2, time.Now())
			require.NoError(t, err)
			out = append(out, batch...)
		}
	}
	for q.Len() > 0 {
		batch, err := q.Take(context.Background(), 2, time.Now())
		require.NoError(t, err)
		out = append(out, batch...)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, out)
}
