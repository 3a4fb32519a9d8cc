package resilience

import (
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

func fail() error    { return errUpstream }
func succeed() error { return nil }

// fakeClock lets tests march the breaker through its cool-down.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker(maxFailures, cooldown)
	b.now = clock.now
	return b, clock
}

func TestBreakerClosedPassesThrough(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	if err := b.Execute(succeed); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := b.Execute(fail); !errors.Is(err, errUpstream) {
		t.Fatalf("err = %v, want upstream error while closed", err)
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	for range 3 {
		b.Execute(fail)
	}

	calls := 0
	err := b.Execute(func() error { calls++; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if calls != 0 {
		t.Error("fn ran while the circuit was open")
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.Execute(fail)
	b.Execute(fail)
	b.Execute(succeed)
	b.Execute(fail)
	b.Execute(fail)

	// Five calls, but never three consecutive failures.
	if err := b.Execute(succeed); errors.Is(err, ErrCircuitOpen) {
		t.Fatal("circuit opened without reaching the threshold")
	}
}

func TestBreakerProbeClosesOnSuccess(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)

	b.Execute(fail)
	b.Execute(fail)
	if err := b.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen during cool-down", err)
	}

	clock.advance(time.Minute)
	if err := b.Execute(succeed); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if err := b.Execute(succeed); err != nil {
		t.Fatalf("after probe: %v", err)
	}
}

func TestBreakerProbeReopensOnFailure(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)

	b.Execute(fail)
	b.Execute(fail)
	clock.advance(time.Minute)

	if err := b.Execute(fail); !errors.Is(err, errUpstream) {
		t.Fatalf("probe err = %v, want upstream error", err)
	}
	// One failed probe re-opens for a full cool-down.
	if err := b.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen after failed probe", err)
	}
	clock.advance(time.Minute)
	if err := b.Execute(succeed); err != nil {
		t.Fatalf("second probe: %v", err)
	}
}
