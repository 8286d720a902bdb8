package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestPublishNoSubscribers(t *testing.T) {
	b := NewBus()

	b.Publish(context.Background(), NewEvent(TypePatternDetected, "run-1", "AAPL", "15m", nil))

	st := b.Stats()
	if st.EventsPublished != 1 {
		t.Fatalf("expected 1 published, got %d", st.EventsPublished)
	}
	if st.Dropped != 1 {
		t.Fatalf("expected 1 dropped, got %d", st.Dropped)
	}
}

func TestPublishFansOutAndIsolatesFailures(t *testing.T) {
	b := NewBus()

	var mu sync.Mutex
	invoked := 0
	record := func(context.Context, Event) error {
		mu.Lock()
		invoked++
		mu.Unlock()
		return nil
	}

	b.Subscribe(TypeSignalGenerated, record)
	b.Subscribe(TypeSignalGenerated, func(context.Context, Event) error {
		mu.Lock()
		invoked++
		mu.Unlock()
		return errors.New("sink unavailable")
	})
	b.Subscribe(TypeSignalGenerated, record)

	b.Publish(context.Background(), NewEvent(TypeSignalGenerated, "run-1", "AAPL", "15m", nil))

	if invoked != 3 {
		t.Fatalf("expected all 3 handlers invoked, got %d", invoked)
	}
	st := b.Stats()
	if st.HandlerErrors != 1 {
		t.Fatalf("expected exactly 1 handler error, got %d", st.HandlerErrors)
	}
}

func TestHandlerPanicIsCaught(t *testing.T) {
	b := NewBus()
	b.Subscribe(TypeRunCompleted, func(context.Context, Event) error {
		panic("nil payload")
	})

	b.Publish(context.Background(), NewEvent(TypeRunCompleted, "run-1", "AAPL", "15m", nil))

	if got := b.Stats().HandlerErrors; got != 1 {
		t.Fatalf("expected panic counted as handler error, got %d", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus()
	calls := 0
	id := b.Subscribe(TypeRangeDetected, func(context.Context, Event) error {
		calls++
		return nil
	})

	if !b.Unsubscribe(TypeRangeDetected, id) {
		t.Fatalf("expected unsubscribe to succeed")
	}
	if b.Unsubscribe(TypeRangeDetected, id) {
		t.Fatalf("expected second unsubscribe to be a no-op returning false")
	}

	b.Publish(context.Background(), NewEvent(TypeRangeDetected, "run-1", "AAPL", "15m", nil))
	if calls != 0 {
		t.Fatalf("handler invoked after unsubscribe")
	}
}

func TestStatsHandlerCounts(t *testing.T) {
	b := NewBus()
	b.Subscribe(TypeVolumeAnalyzed, func(context.Context, Event) error { return nil })
	b.Subscribe(TypeVolumeAnalyzed, func(context.Context, Event) error { return nil })
	b.Subscribe(TypePhaseClassified, func(context.Context, Event) error { return nil })

	st := b.Stats()
	if st.HandlerCounts[TypeVolumeAnalyzed] != 2 {
		t.Fatalf("expected 2 handlers for %s", TypeVolumeAnalyzed)
	}
	if len(st.Types) != 2 {
		t.Fatalf("expected 2 subscribed types, got %v", st.Types)
	}
}
