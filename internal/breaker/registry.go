package breaker

import (
	"sync"
	"time"

	drepo "PatternPulse/internal/domain/repository"
)

// RegistryOption configures Registry.
type RegistryOption func(*Registry)

// WithThreshold sets the consecutive-failure count that opens a circuit.
func WithThreshold(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.threshold = n
		}
	}
}

// WithBackoff sets the recovery probe schedule.
func WithBackoff(schedule []time.Duration) RegistryOption {
	return func(r *Registry) {
		if len(schedule) > 0 {
			r.backoff = schedule
		}
	}
}

// WithNotify sets the transition notification callback.
func WithNotify(fn NotifyFunc) RegistryOption {
	return func(r *Registry) { r.notify = fn }
}

// WithMetrics sets the metrics recorder for transitions.
func WithMetrics(m drepo.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// Registry holds one lazily created breaker per symbol. The registry map
// has its own lock; each breaker serializes its own state, so admission
// decisions for different symbols never contend.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker

	threshold int
	backoff   []time.Duration
	notify    NotifyFunc
	metrics   drepo.Metrics
}

// NewRegistry creates an empty breaker registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		breakers:  make(map[string]*Breaker),
		threshold: DefaultThreshold,
		backoff:   DefaultBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the breaker for a symbol, creating it on first use.
func (r *Registry) Get(symbol string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[symbol]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[symbol]; ok {
		return b
	}
	b = newBreaker(symbol, r.threshold, r.backoff, r.notify, r.metrics)
	r.breakers[symbol] = b
	return b
}

// Lookup returns the breaker for a symbol without creating it.
func (r *Registry) Lookup(symbol string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[symbol]
	return b, ok
}

// Reset forces the symbol's circuit CLOSED. Returns false if the symbol
// has no breaker yet.
func (r *Registry) Reset(symbol string) bool {
	b, ok := r.Lookup(symbol)
	if !ok {
		return false
	}
	b.Reset()
	return true
}

// Snapshots returns the current state of every known breaker.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Snapshot())
	}
	return out
}
