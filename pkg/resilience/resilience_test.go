package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errStore = errors.New("store down")

func TestBreakerOpensAndRecovers(t *testing.T) {
	var changes []State
	cb := NewCircuitBreaker("store", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		OnStateChange:    func(_ string, to State) { changes = append(changes, to) },
	})
	now := time.Now()
	cb.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		cb.Execute(func() error { return errStore })
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker err = %v, want ErrCircuitOpen", err)
	}

	now = now.Add(time.Minute)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe err = %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state after probe = %v, want closed", cb.GetState())
	}
	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d = %v, want %v", i, changes[i], want[i])
		}
	}
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	errBad := errors.New("bad event")
	cb := NewCircuitBreaker("store", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return errors.Is(err, errStore) },
	})
	cb.Execute(func() error { return errBad })
	if cb.GetState() != StateClosed {
		t.Errorf("non-failure error tripped the breaker")
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	fast := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := Retry(ctx, "ok-on-second", fast, func() error {
		calls++
		if calls < 2 {
			return errStore
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("err=%v calls=%d, want nil 2", err, calls)
	}

	calls = 0
	fast.Retryable = func(err error) bool { return errors.Is(err, errStore) }
	err = Retry(ctx, "permanent", fast, func() error {
		calls++
		return errors.New("invalid")
	})
	if err == nil || calls != 1 {
		t.Errorf("non-retryable: err=%v calls=%d, want error after 1 call", err, calls)
	}

	calls = 0
	err = Retry(ctx, "exhausted", fast, func() error {
		calls++
		return errStore
	})
	if !errors.Is(err, errStore) || calls != 3 {
		t.Errorf("exhausted: err=%v calls=%d", err, calls)
	}
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if err := WithTimeout(context.Background(), 0, "inline", func(context.Context) error { return nil }); err != nil {
		t.Errorf("inline err = %v", err)
	}
}
