package triage

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Options struct {
	Workers int
	// MaxRetries is the number of extra attempts for a retryable failure. Zero
	// means every item is tried exactly once.
	MaxRetries     int
	RequestTimeout time.Duration

	// RateLimitRPS is a global limit across all workers. Set to <=0 to disable.
	RateLimitRPS float64

	// FailFast stops the whole run at the first failed item. Otherwise failures are
	// recorded per item and the run continues.
	FailFast bool

	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// BackoffJitterFrac applies +/- jitter to backoff sleeps (0.2 = +/-20%).
	BackoffJitterFrac float64
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 60 * time.Second
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = 500 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 5 * time.Second
	}
	if o.BackoffJitterFrac < 0 {
		o.BackoffJitterFrac = 0
	}
	return o
}

// Result is the outcome for one input item.
type Result[In any, Out any] struct {
	Index    int
	Input    In
	Output   Out
	Attempts int
	Err      error
}

// retryable is implemented by errors that know whether a later attempt could
// succeed, such as *assist.CompletionFailure.
type retryable interface {
	Retryable() bool
}

// Run applies fn to every item with a bounded number of workers. Results are
// returned in input order.
func Run[In any, Out any](
	ctx context.Context,
	items []In,
	fn func(context.Context, In) (Out, error),
	opts Options,
) ([]Result[In, Out], error) {
	return RunWithCallback(ctx, items, fn, nil, opts)
}

// RunWithCallback is Run with onResult invoked as each item finishes, in
// completion order. Calls to onResult are serialized; an error from it aborts the
// run.
func RunWithCallback[In any, Out any](
	ctx context.Context,
	items []In,
	fn func(context.Context, In) (Out, error),
	onResult func(Result[In, Out]) error,
	opts Options,
) ([]Result[In, Out], error) {
	opts = opts.withDefaults()

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	out := make([]Result[In, Out], len(items))
	g, gctx := errgroup.WithContext(ctx)

	jobs := make(chan int)
	g.Go(func() error {
		defer close(jobs)
		for i := range items {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	var cbMu sync.Mutex
	for w := 0; w < opts.Workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				if gctx.Err() != nil {
					return nil
				}
				res := Result[In, Out]{Index: i, Input: items[i]}
				res.Output, res.Attempts, res.Err = attempt(gctx, items[i], fn, limiter, opts)
				out[i] = res

				if onResult != nil {
					cbMu.Lock()
					err := onResult(res)
					cbMu.Unlock()
					if err != nil {
						return err
					}
				}
				if res.Err != nil && opts.FailFast {
					return res.Err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func attempt[In any, Out any](
	ctx context.Context,
	item In,
	fn func(context.Context, In) (Out, error),
	limiter *rate.Limiter,
	opts Options,
) (Out, int, error) {
	var last Out
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return last, n - 1, err
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return last, n - 1, err
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, opts.RequestTimeout)
		result, err := fn(reqCtx, item)
		cancel()
		last = result
		if err == nil {
			return result, n, nil
		}
		if ctx.Err() != nil {
			return last, n, ctx.Err()
		}
		if !isRetryable(err) || n > opts.MaxRetries {
			return last, n, err
		}

		t := time.NewTimer(backoff(opts.BackoffInitial, opts.BackoffMax, opts.BackoffJitterFrac, n-1))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return last, n, ctx.Err()
		}
	}
}

func isRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func backoff(initial, max time.Duration, jitterFrac float64, retry int) time.Duration {
	d := initial
	for i := 0; i < retry && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	if jitterFrac == 0 {
		return d
	}
	return time.Duration(float64(d) * (1 + (rand.Float64()*2-1)*jitterFrac))
}
