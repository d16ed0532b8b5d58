package triage_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/shpitdev/crm-assist/internal/triage"
	"github.com/shpitdev/crm-assist/pkg/assist"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, whose stats worker starts in init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func fastRetry(maxRetries int) triage.Options {
	return triage.Options{
		Workers:        1,
		MaxRetries:     maxRetries,
		RequestTimeout: time.Second,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
	}
}

func TestRun_RetriesRetryable(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	fn := func(_ context.Context, _ string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= 2 {
			return "", &assist.CompletionFailure{Kind: assist.FailureStatus, StatusCode: 503, Temporary: true, Err: errors.New("unavailable")}
		}
		return "ok", nil
	}

	out, err := triage.Run(context.Background(), []string{"msg-1"}, fn, fastRetry(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Err != nil || out[0].Output != "ok" {
		t.Fatalf("unexpected output: %#v", out)
	}
	if out[0].Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", out[0].Attempts)
	}
}

func TestRun_NoRetriesByDefault(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fn := func(_ context.Context, _ string) (string, error) {
		calls.Add(1)
		return "", &assist.CompletionFailure{Kind: assist.FailureStatus, StatusCode: 429, Temporary: true}
	}

	out, err := triage.Run(context.Background(), []string{"msg-1"}, fn, triage.Options{Workers: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Err == nil || out[0].Attempts != 1 {
		t.Fatalf("unexpected output: %#v", out[0])
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestRun_DoesNotRetryPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fn := func(_ context.Context, _ string) (string, error) {
		calls.Add(1)
		return "", &assist.CompletionFailure{Kind: assist.FailureMissingCredential, Err: assist.ErrMissingCredential}
	}

	out, err := triage.Run(context.Background(), []string{"msg-1"}, fn, fastRetry(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !errors.Is(out[0].Err, assist.ErrMissingCredential) {
		t.Fatalf("unexpected output: %#v", out[0])
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestRun_RequestTimeoutIsRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fn := func(ctx context.Context, _ string) (string, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	}

	opts := fastRetry(1)
	opts.RequestTimeout = 10 * time.Millisecond
	out, err := triage.Run(context.Background(), []string{"msg-1"}, fn, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Err != nil || out[0].Attempts != 2 {
		t.Fatalf("unexpected output: %#v", out[0])
	}
}

func TestRun_FailFastStops(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fn := func(_ context.Context, id string) (string, error) {
		calls.Add(1)
		if id == "bad" {
			return "", errors.New("boom")
		}
		t.Errorf("unexpected call for %q", id)
		return "", nil
	}

	out, err := triage.Run(context.Background(), []string{"bad", "good"}, fn, triage.Options{Workers: 1, FailFast: true})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom error, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil output on fail-fast, got %#v", out)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestRun_PartialOutputKeepsOrder(t *testing.T) {
	t.Parallel()

	fn := func(_ context.Context, id string) (string, error) {
		if id == "bad" {
			return "", errors.New("boom")
		}
		return id + "-done", nil
	}

	items := []string{"bad", "a", "b", "c"}
	out, err := triage.Run(context.Background(), items, fn, triage.Options{Workers: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(items) {
		t.Fatalf("expected %d outputs, got %d", len(items), len(out))
	}
	if out[0].Err == nil || out[0].Err.Error() != "boom" {
		t.Fatalf("unexpected out[0]: %#v", out[0])
	}
	for i, id := range items[1:] {
		r := out[i+1]
		if r.Err != nil || r.Input != id || r.Output != id+"-done" || r.Index != i+1 {
			t.Fatalf("unexpected out[%d]: %#v", i+1, r)
		}
	}
}

func TestRunWithCallback_CompletionOrder(t *testing.T) {
	t.Parallel()

	releaseSlow := make(chan struct{})
	startedSlow := make(chan struct{})
	fn := func(_ context.Context, id string) (string, error) {
		if id == "slow" {
			close(startedSlow)
			<-releaseSlow
		}
		return id, nil
	}

	var mu sync.Mutex
	var seen []string
	firstSeen := make(chan string, 1)
	doneErr := make(chan error, 1)
	go func() {
		_, err := triage.RunWithCallback(context.Background(), []string{"slow", "fast"}, fn,
			func(res triage.Result[string, string]) error {
				mu.Lock()
				defer mu.Unlock()
				seen = append(seen, res.Input)
				if len(seen) == 1 {
					firstSeen <- res.Input
				}
				return nil
			},
			triage.Options{Workers: 2},
		)
		doneErr <- err
	}()

	select {
	case <-startedSlow:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for slow item to start")
	}
	select {
	case got := <-firstSeen:
		if got != "fast" {
			t.Fatalf("expected fast callback first, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first callback")
	}

	close(releaseSlow)
	select {
	case err := <-doneErr:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for completion")
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(seen, []string{"fast", "slow"}) {
		t.Fatalf("unexpected callback order: %v", seen)
	}
}

func TestRunWithCallback_CallbackErrorStopsRun(t *testing.T) {
	t.Parallel()

	callbackErr := errors.New("callback failed")
	_, err := triage.RunWithCallback(context.Background(), []string{"a"},
		func(_ context.Context, id string) (string, error) { return id, nil },
		func(triage.Result[string, string]) error { return callbackErr },
		triage.Options{Workers: 1},
	)
	if !errors.Is(err, callbackErr) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := triage.Run(ctx, []string{"a", "b"}, func(_ context.Context, id string) (string, error) { return id, nil }, triage.Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_RateLimit(t *testing.T) {
	t.Parallel()

	start := time.Now()
	_, err := triage.Run(context.Background(), []string{"a", "b", "c"},
		func(_ context.Context, id string) (string, error) { return id, nil },
		triage.Options{Workers: 3, RateLimitRPS: 20},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Burst 1 at 20rps: the third call waits at least ~100ms.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("rate limit not applied, elapsed %s", elapsed)
	}
}
