// Package resilience provides failure handling for flapd's outbound calls.
// The search engines and the identity lookup sit behind a circuit breaker so
// a dead upstream fails fast instead of tying up every chat turn.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker trips after a run of consecutive failures and rejects calls until
// a cool-down elapses. The first call after the cool-down is a probe: its
// outcome decides whether the circuit closes again or re-opens for another
// full cool-down.
type Breaker struct {
	maxFailures int
	cooldown    time.Duration

	mu        sync.Mutex
	failures  int
	openUntil time.Time
	probing   bool

	now func() time.Time // test hook
}

// NewBreaker creates a breaker that opens after maxFailures consecutive
// failures and rejects calls for the given cool-down before probing again.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{maxFailures: maxFailures, cooldown: cooldown, now: time.Now}
}

// Execute runs fn unless the circuit is open, in which case it returns
// ErrCircuitOpen without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openUntil.IsZero() {
		return true
	}
	if b.now().Before(b.openUntil) {
		return false
	}
	b.probing = true
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.openUntil = time.Time{}
		b.probing = false
		return
	}

	b.failures++
	if b.probing || b.failures >= b.maxFailures {
		b.openUntil = b.now().Add(b.cooldown)
		b.probing = false
	}
}
