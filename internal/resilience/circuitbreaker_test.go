package resilience

import (
	"testing"
	"time"

	stderrors "errors"

	"github.com/rs/zerolog"
)

func testBreaker(coolDown time.Duration) *Breaker {
	return NewBreaker("test", BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		CoolDown:         coolDown,
	}, zerolog.Nop())
}

func failN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		b.Execute(func() error { return stderrors.New("boom") })
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := testBreaker(time.Minute)

	failN(b, 2)
	if got := b.State(); got != CircuitClosed {
		t.Fatalf("state after 2 failures = %s, want CLOSED", got)
	}
	failN(b, 1)
	if got := b.State(); got != CircuitOpen {
		t.Fatalf("state after 3 failures = %s, want OPEN", got)
	}

	err := b.Execute(func() error { return nil })
	if !stderrors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() while open = %v, want ErrCircuitOpen", err)
	}
	if stats := b.Stats(); stats.TotalRejected != 1 {
		t.Errorf("rejected = %d, want 1", stats.TotalRejected)
	}
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	b := testBreaker(time.Minute)

	failN(b, 2)
	b.Execute(func() error { return nil })
	failN(b, 2)
	if got := b.State(); got != CircuitClosed {
		t.Errorf("state = %s, want CLOSED (failure run was broken)", got)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := testBreaker(time.Millisecond)

	failN(b, 3)
	if got := b.State(); got != CircuitOpen {
		t.Fatalf("state = %s, want OPEN", got)
	}

	time.Sleep(5 * time.Millisecond)

	// First probe moves the circuit to half-open; two successes close it.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe error: %v", err)
	}
	if got := b.State(); got != CircuitHalfOpen {
		t.Fatalf("state after probe = %s, want HALF_OPEN", got)
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("second probe error: %v", err)
	}
	if got := b.State(); got != CircuitClosed {
		t.Errorf("state after recovery = %s, want CLOSED", got)
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b := testBreaker(time.Millisecond)

	failN(b, 3)
	time.Sleep(5 * time.Millisecond)

	b.Execute(func() error { return stderrors.New("still down") })
	if got := b.State(); got != CircuitOpen {
		t.Errorf("state after half-open failure = %s, want OPEN", got)
	}
}

func TestBreakerReset(t *testing.T) {
	b := testBreaker(time.Minute)
	failN(b, 3)
	b.Reset()
	if got := b.State(); got != CircuitClosed {
		t.Errorf("state after reset = %s, want CLOSED", got)
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute() after reset error: %v", err)
	}
}
