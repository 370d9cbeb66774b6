// Package resilience guards calls to remote detection engines with a circuit
// breaker and bounded retries.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State represents circuit breaker state
type State uint32

const (
	Closed   State = iota // calls pass
	Open                  // calls rejected until the reset timeout
	HalfOpen              // probing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

// Counts is a snapshot of breaker activity.
type Counts struct {
	State    State
	Failures int // consecutive, reset by a success or by closing
	Rejected uint64
	Trips    uint64
}

// Breaker stops calling a recognizer that keeps failing, so frames are not
// held up by timeouts against a dead peer.
type Breaker struct {
	name string
	cfg  Config
	now  func() time.Time
	hook func(from, to State)

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	rejected  uint64
	trips     uint64
}

// New creates a breaker with config
func New(name string, cfg Config) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), now: time.Now}
}

// OnTransition sets a callback invoked after every state change. It runs
// with the breaker locked and must not call back into it.
func (b *Breaker) OnTransition(fn func(from, to State)) *Breaker {
	b.hook = fn
	return b
}

// Allow returns nil when a call may proceed. An open breaker lets a probe
// through once the reset timeout has passed since it opened.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Open {
		return nil
	}
	if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
		b.rejected++
		return ErrOpen
	}
	b.setLocked(HalfOpen)
	return nil
}

// Success records a successful call.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenSuccesses {
			b.setLocked(Closed)
		}
	case Closed:
		b.failures = 0
	}
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	switch b.state {
	case HalfOpen:
		b.setLocked(Open)
	case Closed:
		if b.failures >= b.cfg.Threshold {
			b.setLocked(Open)
		}
	case Open:
		// A call admitted before the trip failed late; restart the timeout.
		b.openedAt = b.now()
	}
}

// State returns current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counts returns a snapshot of the breaker counters.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{State: b.state, Failures: b.failures, Rejected: b.rejected, Trips: b.trips}
}

// Reset forces breaker to closed state
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked(Closed)
}

func (b *Breaker) setLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.successes = 0

	switch to {
	case Open:
		b.openedAt = b.now()
		b.trips++
	case Closed:
		b.failures = 0
	}

	slog.Info("circuit breaker transition", "breaker", b.name, "from", from.String(), "to", to.String(), "failures", b.failures)
	if b.hook != nil {
		b.hook(from, to)
	}
}

// Do runs fn under breaker protection and returns its result.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	v, err := fn()
	if err != nil {
		b.Failure()
		return zero, err
	}
	b.Success()
	return v, nil
}
