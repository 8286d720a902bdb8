package breaker

import (
	"sync"
	"time"

	drepo "PatternPulse/internal/domain/repository"
)

// State of a symbol's circuit.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// DefaultThreshold is the consecutive-failure count that opens the circuit.
const DefaultThreshold = 3

// DefaultBackoff spaces out recovery probes after the circuit opens,
// indexed by the retry-attempt counter and clamped at the last entry.
var DefaultBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
}

// NotifyFunc is invoked exactly once per state transition.
type NotifyFunc func(symbol string, from, to State)

// Snapshot is a point-in-time view of one breaker, for the operator surface.
type Snapshot struct {
	Symbol              string        `json:"symbol"`
	State               State         `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	TotalFailures       uint64        `json:"total_failures"`
	TotalSuccesses      uint64        `json:"total_successes"`
	RetryAttempt        int           `json:"retry_attempt"`
	LastTransition      time.Time     `json:"last_transition"`
	TimeUntilRetry      time.Duration `json:"time_until_retry"`
}

// Breaker isolates one persistently failing symbol. All state mutations
// are serialized under the breaker's own mutex; breakers for different
// symbols are fully independent.
type Breaker struct {
	mu sync.Mutex

	symbol      string
	state       State
	consecutive int
	failures    uint64
	successes   uint64
	attempt     int
	lastChange  time.Time

	threshold int
	backoff   []time.Duration
	notify    NotifyFunc
	metrics   drepo.Metrics
}

func newBreaker(symbol string, threshold int, backoff []time.Duration, notify NotifyFunc, metrics drepo.Metrics) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if len(backoff) == 0 {
		backoff = DefaultBackoff
	}
	return &Breaker{
		symbol:     symbol,
		state:      StateClosed,
		lastChange: time.Now(),
		threshold:  threshold,
		backoff:    backoff,
		notify:     notify,
		metrics:    metrics,
	}
}

// CanExecute reports whether work for this symbol may proceed. A CLOSED
// circuit admits immediately. An OPEN circuit admits exactly one trial call
// once the scheduled backoff has elapsed, moving to HALF_OPEN; further
// admission then depends on that trial's outcome.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastChange) >= b.currentDelay() {
			b.transition(StateHalfOpen)
			b.attempt++
			return true
		}
		return false
	default: // HALF_OPEN: the one trial is already in flight
		return false
	}
}

// RecordFailure counts a run failure. Reaching the consecutive threshold,
// or any failure while HALF_OPEN, opens the circuit.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive++
	b.failures++

	if b.state == StateHalfOpen {
		b.transition(StateOpen)
		return
	}
	if b.state == StateClosed && b.consecutive >= b.threshold {
		b.transition(StateOpen)
	}
}

// RecordSuccess zeroes the consecutive-failure count and closes the
// circuit if the HALF_OPEN trial succeeded.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive = 0
	b.successes++

	if b.state == StateHalfOpen {
		b.attempt = 0
		b.transition(StateClosed)
	}
}

// Reset forces the circuit CLOSED unconditionally, taking effect
// immediately.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive = 0
	b.attempt = 0
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the breaker's current state and counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	var untilRetry time.Duration
	if b.state == StateOpen {
		if remaining := b.currentDelay() - time.Since(b.lastChange); remaining > 0 {
			untilRetry = remaining
		}
	}
	return Snapshot{
		Symbol:              b.symbol,
		State:               b.state,
		ConsecutiveFailures: b.consecutive,
		TotalFailures:       b.failures,
		TotalSuccesses:      b.successes,
		RetryAttempt:        b.attempt,
		LastTransition:      b.lastChange,
		TimeUntilRetry:      untilRetry,
	}
}

// caller holds b.mu
func (b *Breaker) currentDelay() time.Duration {
	i := b.attempt
	if i >= len(b.backoff) {
		i = len(b.backoff) - 1
	}
	return b.backoff[i]
}

// caller holds b.mu
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.lastChange = time.Now()
	if b.metrics != nil {
		b.metrics.RecordBreakerTransition(b.symbol, string(to))
	}
	if b.notify != nil {
		// async so a slow notifier never extends the critical section
		go b.notify(b.symbol, from, to)
	}
}
