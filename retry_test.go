package apiguard

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestRetryerSucceedsOnThirdAttempt(t *testing.T) {
	initial := 20 * time.Millisecond
	factor := 2.0
	r := NewRetryer(3, initial, factor, time.Second, nil)

	calls := 0
	transient := errors.New("transient")
	start := time.Now()
	got, err := DoValue(context.Background(), r, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", transient
		}
		return "done", nil
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("DoValue() error = %v", err)
	}
	if got != "done" {
		t.Errorf("DoValue() = %q, want %q", got, "done")
	}
	if calls != 3 {
		t.Errorf("operation invoked %d times, want exactly 3", calls)
	}

	// Sleep total: initial + initial*factor, within scheduling tolerance.
	wantSleep := initial + time.Duration(float64(initial)*factor)
	if elapsed < wantSleep {
		t.Errorf("elapsed %v < expected total backoff %v", elapsed, wantSleep)
	}
	if elapsed > wantSleep+100*time.Millisecond {
		t.Errorf("elapsed %v exceeds expected total backoff %v by too much", elapsed, wantSleep)
	}
}

func TestRetryerNonRetryableFailsImmediately(t *testing.T) {
	r := NewRetryer(5, time.Second, 2.0, time.Minute, nil)
	fatal := errors.New("fatal")
	r.RetryIf(func(err error) bool { return err != fatal })

	calls := 0
	start := time.Now()
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})

	if err != fatal {
		t.Errorf("Do() error = %v, want the fatal error itself", err)
	}
	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1", calls)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("non-retryable failure slept %v, want zero sleep", elapsed)
	}
}

func TestRetryerExhaustionSurfacesLastError(t *testing.T) {
	r := NewRetryer(3, time.Millisecond, 2.0, time.Minute, nil)

	calls := 0
	last := errors.New("attempt 3 error")
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("earlier error")
		}
		return last
	})

	if calls != 3 {
		t.Errorf("operation invoked %d times, want 3", calls)
	}
	if err != last {
		t.Errorf("Do() error = %v, want the last observed error unchanged", err)
	}
}

func TestRetryerAttemptFloor(t *testing.T) {
	// maxAttempts below 1 is raised to 1: the operation always runs and its
	// error surfaces instead of a silent no-op success.
	r := NewRetryer(0, time.Millisecond, 2.0, time.Minute, nil)

	calls := 0
	opErr := errors.New("boom")
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return opErr
	})

	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1", calls)
	}
	if err != opErr {
		t.Errorf("Do() error = %v, want the operation's error", err)
	}
}

func TestRetryerDelayCap(t *testing.T) {
	r := NewRetryer(10, 10*time.Millisecond, 10.0, 15*time.Millisecond, nil)

	// attempt 3 uncapped would be 10ms * 10^2 = 1s.
	if d := r.delay(3); d != 15*time.Millisecond {
		t.Errorf("delay(3) = %v, want capped at 15ms", d)
	}
}

func TestRetryerContextCancelAbortsSleep(t *testing.T) {
	r := NewRetryer(3, 5*time.Second, 2.0, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := r.Do(ctx, func(context.Context) error {
		calls++
		return errors.New("transient")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("operation invoked %d times after cancel, want 1 (no further attempts)", calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation took %v, sleep was not interruptible", elapsed)
	}
}

func httpResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("body")),
	}
}

func TestRetryerHTTPRetriesServerErrors(t *testing.T) {
	r := NewRetryer(3, time.Millisecond, 2.0, time.Minute, nil)

	calls := 0
	resp, err := r.DoHTTP(context.Background(), func(context.Context) (*http.Response, error) {
		calls++
		if calls < 3 {
			return httpResponse(http.StatusInternalServerError), nil
		}
		return httpResponse(http.StatusOK), nil
	})

	if err != nil {
		t.Fatalf("DoHTTP() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("operation invoked %d times, want 3", calls)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRetryerHTTPNonRetryableStatusReturnedAsIs(t *testing.T) {
	r := NewRetryer(3, time.Millisecond, 2.0, time.Minute, nil)

	calls := 0
	resp, err := r.DoHTTP(context.Background(), func(context.Context) (*http.Response, error) {
		calls++
		return httpResponse(http.StatusNotFound), nil
	})

	if err != nil {
		t.Fatalf("DoHTTP() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1 (404 is not retryable)", calls)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRetryerHTTPExhaustedStatusSurfacesTypedError(t *testing.T) {
	r := NewRetryer(2, time.Millisecond, 2.0, time.Minute, nil)

	calls := 0
	resp, err := r.DoHTTP(context.Background(), func(context.Context) (*http.Response, error) {
		calls++
		return httpResponse(http.StatusTooManyRequests), nil
	})

	if calls != 2 {
		t.Errorf("operation invoked %d times, want 2", calls)
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("response = %+v, want the final 429 response", resp)
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("DoHTTP() error = %v, want a rate-limit typed error", err)
	}
	var guardErr *GuardError
	if !errors.As(err, &guardErr) || guardErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("DoHTTP() error = %v, want GuardError carrying status 429", err)
	}
}

func TestRetryerHTTPCustomStatusSet(t *testing.T) {
	r := NewRetryer(3, time.Millisecond, 2.0, time.Minute, nil)
	r.RetryStatuses(RetryableStatusSet(http.StatusBadGateway))

	calls := 0
	resp, err := r.DoHTTP(context.Background(), func(context.Context) (*http.Response, error) {
		calls++
		// 500 is not in the custom set, so the first response sticks.
		return httpResponse(http.StatusInternalServerError), nil
	})

	if err != nil {
		t.Fatalf("DoHTTP() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1", calls)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 returned as-is", resp.StatusCode)
	}
}

func TestRetryerHTTPNetworkErrorExhaustion(t *testing.T) {
	r := NewRetryer(2, time.Millisecond, 2.0, time.Minute, nil)

	netErr := errors.New("connection refused")
	calls := 0
	resp, err := r.DoHTTP(context.Background(), func(context.Context) (*http.Response, error) {
		calls++
		return nil, netErr
	})

	if calls != 2 {
		t.Errorf("operation invoked %d times, want 2", calls)
	}
	if resp != nil {
		t.Errorf("response = %+v, want nil", resp)
	}
	if err != netErr {
		t.Errorf("DoHTTP() error = %v, want the network error unchanged", err)
	}
}

func TestDefaultRetryableStatus(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{http.StatusOK, false},
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
	}
	for _, tt := range tests {
		if got := DefaultRetryableStatus(tt.code); got != tt.want {
			t.Errorf("DefaultRetryableStatus(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
