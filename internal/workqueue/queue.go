package workqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	drepo "PatternPulse/internal/domain/repository"
)

var (
	// ErrQueueFull signals that a bounded queue rejected an item. The
	// caller owns the backpressure policy: drop, retry, or escalate.
	ErrQueueFull = errors.New("workqueue: queue full")
	// ErrTimeout signals that a blocking Get gave up waiting.
	ErrTimeout = errors.New("workqueue: get timed out")
)

// Priority orders work items; higher levels always drain first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// ParsePriority converts a raw string to a priority level.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "HIGH", "high":
		return PriorityHigh, nil
	case "MEDIUM", "medium":
		return PriorityMedium, nil
	case "LOW", "low":
		return PriorityLow, nil
	default:
		return PriorityMedium, fmt.Errorf("invalid priority %q", s)
	}
}

// Item is one unit of queued per-symbol work.
type Item struct {
	Priority   Priority
	Seq        uint64 // FIFO tie-break within a level
	Symbol     string
	Payload    any
	EnqueuedAt time.Time
}

// QueueOption configures Queue.
type QueueOption func(*Queue)

// WithMaxSize bounds the queue; zero means unbounded.
func WithMaxSize(n int) QueueOption {
	return func(q *Queue) { q.maxSize = n }
}

// WithQueueMetrics sets the metrics recorder for depth tracking.
func WithQueueMetrics(m drepo.Metrics) QueueOption {
	return func(q *Queue) { q.metrics = m }
}

// Queue is a bounded priority queue ordered by (level, insertion sequence),
// so same-level items drain FIFO. All structural mutation happens under the
// queue's own mutex; blocking consumers wait on a token channel.
type Queue struct {
	mu      sync.Mutex
	levels  [3][]*Item // indexed by Priority
	seq     uint64
	size    int
	maxSize int
	tokens  chan struct{}
	metrics drepo.Metrics
}

// NewQueue creates a queue. For an unbounded queue the internal signal
// channel still has a large fixed capacity bounding total in-flight items.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{maxSize: 1024}
	for _, opt := range opts {
		opt(q)
	}
	cap := q.maxSize
	if cap <= 0 {
		cap = 1 << 16
	}
	q.tokens = make(chan struct{}, cap)
	return q
}

// Put enqueues a work item. A full bounded queue rejects with ErrQueueFull
// and leaves the queue unchanged; rejection is a backpressure signal, never
// a silent failure.
func (q *Queue) Put(symbol string, payload any, p Priority) error {
	if p < PriorityLow || p > PriorityHigh {
		p = PriorityMedium
	}

	q.mu.Lock()
	if q.maxSize > 0 && q.size >= q.maxSize {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.seq++
	item := &Item{
		Priority:   p,
		Seq:        q.seq,
		Symbol:     symbol,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}
	q.levels[p] = append(q.levels[p], item)
	q.size++
	depth := q.size
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.SetQueueDepth(depth)
	}
	q.tokens <- struct{}{}
	return nil
}

// Get blocks until an item is available, the timeout elapses (ErrTimeout),
// or ctx is done. Zero timeout means wait indefinitely. The returned item
// is the oldest at the highest non-empty level.
func (q *Queue) Get(ctx context.Context, timeout time.Duration) (*Item, error) {
	var timer *time.Timer
	var expired <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-q.tokens:
		return q.pop(), nil
	case <-expired:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryGet returns the next item without blocking.
func (q *Queue) TryGet() (*Item, bool) {
	select {
	case <-q.tokens:
		return q.pop(), true
	default:
		return nil, false
	}
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *Queue) pop() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	for p := PriorityHigh; p >= PriorityLow; p-- {
		if len(q.levels[p]) == 0 {
			continue
		}
		item := q.levels[p][0]
		q.levels[p] = q.levels[p][1:]
		q.size--
		if q.metrics != nil {
			q.metrics.SetQueueDepth(q.size)
		}
		return item
	}
	// a token always corresponds to a queued item
	return nil
}
