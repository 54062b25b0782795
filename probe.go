package diskaio

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/ehrlich-b/go-diskaio/internal/constants"
	"github.com/ehrlich-b/go-diskaio/internal/orderstat"
	"github.com/ehrlich-b/go-diskaio/internal/queue"
)

// ProbeOptions configures an active IOPS check.
type ProbeOptions struct {
	// Threshold is the IOPS at or below which the device is reported slow.
	// The probe issues 3 × Threshold operations.
	Threshold int
	// BlockSize is the size of each operation (default BaseBlockSize).
	// It must be a multiple of SectorSize.
	BlockSize int
	// Span bounds the region probed, starting at Offset. Required.
	Span   int64
	Offset int64
	// RateLimit caps issued operations per second; zero is unlimited.
	RateLimit float64
	// Batch is the number of requests per Submit (default BatchSize).
	Batch int
	// Seed fixes random offsets; zero picks a time-based seed.
	Seed uint64
	// Quantile is the latency percentile reported in PQ (default 0.99).
	Quantile float64
	// Progress, when set, is called after each harvested result.
	Progress func(done, total int)
}

func (o ProbeOptions) withDefaults() ProbeOptions {
	if o.BlockSize == 0 {
		o.BlockSize = constants.BaseBlockSize
	}
	if o.Batch <= 0 {
		o.Batch = constants.DefaultBatchSize
	}
	if o.Quantile == 0 {
		o.Quantile = 0.99
	}
	if o.Seed == 0 {
		o.Seed = uint64(time.Now().UnixNano())
	}
	return o
}

func (o ProbeOptions) validate() error {
	switch {
	case o.Threshold <= 0:
		return NewError("probe", ErrCodeInvalidParameters, fmt.Sprintf("threshold must be positive, got %d", o.Threshold))
	case o.BlockSize <= 0 || o.BlockSize%constants.SectorSize != 0:
		return NewError("probe", ErrCodeInvalidParameters, fmt.Sprintf("block size %d is not a positive multiple of %d", o.BlockSize, constants.SectorSize))
	case o.Offset < 0:
		return NewError("probe", ErrCodeInvalidParameters, fmt.Sprintf("negative offset %d", o.Offset))
	case o.Span < int64(o.BlockSize):
		return NewError("probe", ErrCodeInvalidParameters, fmt.Sprintf("span %d smaller than block size %d", o.Span, o.BlockSize))
	case o.Quantile <= 0 || o.Quantile > 1:
		return NewError("probe", ErrCodeInvalidParameters, fmt.Sprintf("quantile %v out of range (0, 1]", o.Quantile))
	case o.RateLimit < 0:
		return NewError("probe", ErrCodeInvalidParameters, "negative rate limit")
	}
	return nil
}

// ProbeResult is the outcome of one probe.
type ProbeResult struct {
	Op         Op
	Sequential bool
	Ops        int // operations that completed successfully
	Errors     int
	FirstError error
	Elapsed    time.Duration
	IOPS       float64
	Threshold  int
	Slow       bool // IOPS <= Threshold
	P50        time.Duration
	PQ         time.Duration // latency at ProbeOptions.Quantile
	Mean       time.Duration
}

// Probe drives 3 × Threshold operations of BlockSize through e against fd
// and measures the achieved IOPS. Offsets advance through Span when
// sequential and are drawn uniformly from it otherwise. Results are
// delivered through per-request callbacks, so the engine's host sees none
// of them. A write probe overwrites the probed region.
func Probe(ctx context.Context, e *Engine, fd int, op Op, sequential bool, opts ProbeOptions) (ProbeResult, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return ProbeResult{}, err
	}

	total := 3 * opts.Threshold
	bs := opts.BlockSize
	blocks := opts.Span / int64(bs)
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Batch)
	}

	results := make(chan *Result, total)
	callback := func(res *Result) error {
		results <- res
		return nil
	}

	e.log.Info("probe started", "op", op.String(), "sequential", sequential,
		"ops", total, "block_size", bs, "threshold", opts.Threshold)

	out := ProbeResult{Op: op, Sequential: sequential, Threshold: opts.Threshold}
	start := time.Now()
	issued := 0
	var submitErr error
	for issued < total && submitErr == nil {
		n := min(opts.Batch, total-issued)
		if limiter != nil {
			if err := limiter.WaitN(ctx, n); err != nil {
				submitErr = err
				break
			}
		}

		reqs := make([]*Request, n)
		for i := range reqs {
			var block int64
			if sequential {
				block = int64(issued+i) % blocks
			} else {
				block = rng.Int64N(blocks)
			}
			reqs[i] = &Request{
				FD:       fd,
				Op:       op,
				Offset:   opts.Offset + block*int64(bs),
				Buf:      queue.GetBuffer(bs),
				Callback: callback,
			}
		}

		accepted, err := e.Submit(ctx, reqs...)
		for _, r := range reqs[accepted:] {
			queue.PutBuffer(r.Buf)
		}
		issued += accepted
		submitErr = err
	}

	samples := make([]uint64, 0, issued)
	var sum time.Duration
	for done := 0; done < issued; done++ {
		var res *Result
		select {
		case res = <-results:
		case <-ctx.Done():
			return out, ctx.Err()
		}
		if res.OK() {
			out.Ops++
			samples = append(samples, uint64(res.Request.Cost))
			sum += res.Request.Cost
		} else {
			out.Errors++
			if out.FirstError == nil {
				out.FirstError = res.Err
			}
		}
		queue.PutBuffer(res.Request.Buf)
		if opts.Progress != nil {
			opts.Progress(done+1, total)
		}
	}
	out.Elapsed = time.Since(start)

	if len(samples) > 0 {
		out.P50 = time.Duration(orderstat.Median(samples))
		out.PQ = time.Duration(orderstat.Percentile(samples, opts.Quantile))
		out.Mean = sum / time.Duration(len(samples))
	}
	if secs := out.Elapsed.Seconds(); secs > 0 {
		out.IOPS = float64(out.Ops) / secs
	}
	out.Slow = out.IOPS <= float64(opts.Threshold)

	e.log.Info("probe finished", "op", op.String(), "sequential", sequential,
		"iops", fmt.Sprintf("%.0f", out.IOPS), "errors", out.Errors, "slow", out.Slow)

	if submitErr != nil {
		return out, submitErr
	}
	return out, nil
}

// ProbeRandomRead probes random reads.
func ProbeRandomRead(ctx context.Context, e *Engine, fd int, opts ProbeOptions) (ProbeResult, error) {
	return Probe(ctx, e, fd, OpRead, false, opts)
}

// ProbeRandomWrite probes random writes.
func ProbeRandomWrite(ctx context.Context, e *Engine, fd int, opts ProbeOptions) (ProbeResult, error) {
	return Probe(ctx, e, fd, OpWrite, false, opts)
}

// ProbeSequentialRead probes sequential reads.
func ProbeSequentialRead(ctx context.Context, e *Engine, fd int, opts ProbeOptions) (ProbeResult, error) {
	return Probe(ctx, e, fd, OpRead, true, opts)
}

// ProbeSequentialWrite probes sequential writes.
func ProbeSequentialWrite(ctx context.Context, e *Engine, fd int, opts ProbeOptions) (ProbeResult, error) {
	return Probe(ctx, e, fd, OpWrite, true, opts)
}
