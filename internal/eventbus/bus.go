package eventbus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	drepo "PatternPulse/internal/domain/repository"
	applogger "PatternPulse/pkg/logger"

	"github.com/google/uuid"
)

// Well-known event types published by the scan pipeline.
const (
	TypeBarIngested     = "bar-ingested"
	TypeVolumeAnalyzed  = "volume-analyzed"
	TypeRangeDetected   = "range-detected"
	TypePhaseClassified = "phase-classified"
	TypePatternDetected = "pattern-detected"
	TypeSignalRejected  = "signal-rejected"
	TypeSignalGenerated = "signal-generated"
	TypeRunCompleted    = "run-completed"
	TypeBreakerOpened   = "breaker-opened"
)

// Event is an immutable notification fanned out to subscribed handlers.
// The correlation id ties all events of one pipeline run together.
type Event struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	CreatedAt     time.Time      `json:"created_at"`
	CorrelationID string         `json:"correlation_id"`
	Symbol        string         `json:"symbol"`
	Timeframe     string         `json:"timeframe"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(eventType, correlationID, symbol, timeframe string, payload map[string]any) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		CreatedAt:     time.Now(),
		CorrelationID: correlationID,
		Symbol:        symbol,
		Timeframe:     timeframe,
		Payload:       payload,
	}
}

// Handler consumes one event. Errors are counted and logged, never
// surfaced to the publisher.
type Handler func(ctx context.Context, e Event) error

type subscription struct {
	id string
	fn Handler
}

// Stats is a point-in-time snapshot of bus counters.
type Stats struct {
	EventsPublished uint64         `json:"events_published"`
	HandlerErrors   uint64         `json:"handler_errors"`
	Dropped         uint64         `json:"dropped"`
	Types           []string       `json:"types"`
	HandlerCounts   map[string]int `json:"handler_counts"`
}

// BusOption configures Bus.
type BusOption func(*Bus)

// WithLogger sets the structured logger.
func WithLogger(l *applogger.Logger) BusOption {
	return func(b *Bus) { b.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m drepo.Metrics) BusOption {
	return func(b *Bus) { b.metrics = m }
}

// Bus is an in-process publish/subscribe fan-out. Publish dispatches every
// handler for the event's type as an independent goroutine and waits for
// all of them before returning; handlers never block each other. There is
// no ordering guarantee among same-type handlers and no delivery guarantee:
// zero subscribers means a silent (counted) drop.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]subscription

	published uint64
	hErrors   uint64
	dropped   uint64

	logger  *applogger.Logger
	metrics drepo.Metrics
}

// NewBus creates an empty event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{subs: make(map[string][]subscription)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for an event type and returns the
// subscription id used to unsubscribe.
func (b *Bus) Subscribe(eventType string, h Handler) string {
	id := uuid.NewString()
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, fn: h})
	b.mu.Unlock()
	return id
}

// Unsubscribe removes a subscription. Returns false if it was not found.
func (b *Bus) Unsubscribe(eventType, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, s := range subs {
		if s.id == id {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			if len(b.subs[eventType]) == 0 {
				delete(b.subs, eventType)
			}
			return true
		}
	}
	return false
}

// Publish fans the event out to every handler of its type and returns once
// all handler invocations have completed or failed. A failing or panicking
// handler is counted and logged without affecting its siblings or the
// publisher.
func (b *Bus) Publish(ctx context.Context, e Event) {
	atomic.AddUint64(&b.published, 1)
	if b.metrics != nil {
		b.metrics.RecordEventPublished(e.Type)
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs[e.Type]))
	copy(subs, b.subs[e.Type])
	b.mu.RUnlock()

	if len(subs) == 0 {
		atomic.AddUint64(&b.dropped, 1)
		return
	}

	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func(s subscription) {
			defer wg.Done()
			if err := b.safeInvoke(ctx, s.fn, e); err != nil {
				atomic.AddUint64(&b.hErrors, 1)
				if b.metrics != nil {
					b.metrics.RecordHandlerError(e.Type)
				}
				if b.logger != nil {
					b.logger.Warn("event handler failed",
						applogger.String("type", e.Type),
						applogger.String("correlation_id", e.CorrelationID),
						applogger.Error(err))
				}
			}
		}(s)
	}
	wg.Wait()
}

func (b *Bus) safeInvoke(ctx context.Context, h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, e)
}

// Stats returns a snapshot of bus counters and the subscribed type set.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	counts := make(map[string]int, len(b.subs))
	types := make([]string, 0, len(b.subs))
	for t, subs := range b.subs {
		counts[t] = len(subs)
		types = append(types, t)
	}
	b.mu.RUnlock()
	sort.Strings(types)

	return Stats{
		EventsPublished: atomic.LoadUint64(&b.published),
		HandlerErrors:   atomic.LoadUint64(&b.hErrors),
		Dropped:         atomic.LoadUint64(&b.dropped),
		Types:           types,
		HandlerCounts:   counts,
	}
}
