package subscribers

import (
	"context"
	"sync"
	"testing"
	"time"

	"PatternPulse/internal/domain/models"
	"PatternPulse/internal/eventbus"
	"PatternPulse/pkg/cache"
)

type fakeStore struct {
	mu      sync.Mutex
	batches [][]*models.PatternSignal
}

func (f *fakeStore) Init(context.Context) error { return nil }

func (f *fakeStore) Store(ctx context.Context, s *models.PatternSignal) error {
	return f.StoreBatch(ctx, []*models.PatternSignal{s})
}

func (f *fakeStore) StoreBatch(_ context.Context, sigs []*models.PatternSignal) error {
	f.mu.Lock()
	f.batches = append(f.batches, sigs)
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) Query(context.Context, string, time.Time, time.Time, int) ([]*models.PatternSignal, error) {
	return nil, nil
}

func (f *fakeStore) Health(context.Context) error { return nil }
func (f *fakeStore) Close() error                 { return nil }

func (f *fakeStore) stored() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

type fakeProducer struct {
	mu   sync.Mutex
	msgs []struct {
		topic string
		key   string
	}
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, _ interface{}) error {
	f.mu.Lock()
	f.msgs = append(f.msgs, struct {
		topic string
		key   string
	}{topic, string(key)})
	f.mu.Unlock()
	return nil
}

func signalEvent(symbol string) eventbus.Event {
	sig := &models.PatternSignal{
		ID: "sig-1", CorrelationID: "corr-1", Symbol: symbol, Timeframe: "15m",
		Pattern: "spring", Direction: "long", Entry: 101, GeneratedAt: time.Now(),
	}
	return eventbus.NewEvent(eventbus.TypeSignalGenerated, sig.CorrelationID,
		symbol, "15m", map[string]any{"signal": sig})
}

func TestSinkBatchesToStore(t *testing.T) {
	store := &fakeStore{}
	sink := NewSignalSink(store, nil, WithBatchSize(2), WithFlushInterval(time.Hour))
	defer sink.Close()

	ctx := context.Background()
	if err := sink.Handle(ctx, signalEvent("AAPL")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if store.stored() != 0 {
		t.Fatal("batch flushed before reaching batch size")
	}
	if err := sink.Handle(ctx, signalEvent("MSFT")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if store.stored() != 2 {
		t.Fatalf("stored = %d, want 2", store.stored())
	}
}

func TestSinkCloseFlushesRemainder(t *testing.T) {
	store := &fakeStore{}
	sink := NewSignalSink(store, nil, WithBatchSize(100), WithFlushInterval(time.Hour))
	_ = sink.Handle(context.Background(), signalEvent("AAPL"))
	sink.Close()
	if store.stored() != 1 {
		t.Fatalf("stored after close = %d, want 1", store.stored())
	}
}

func TestSinkCachesLatestSignal(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()
	sink := NewSignalSink(nil, mem, WithFlushInterval(time.Hour))
	defer sink.Close()

	ctx := context.Background()
	if err := sink.Handle(ctx, signalEvent("AAPL")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var got interface{}
	if err := mem.Get(ctx, LatestSignalKey("AAPL"), &got); err != nil {
		t.Fatalf("latest signal missing: %v", err)
	}
	sig, ok := got.(*models.PatternSignal)
	if !ok || sig.Pattern != "spring" {
		t.Fatalf("cached value = %#v", got)
	}
}

func TestSinkRejectsPayloadWithoutSignal(t *testing.T) {
	sink := NewSignalSink(&fakeStore{}, nil, WithFlushInterval(time.Hour))
	defer sink.Close()
	e := eventbus.NewEvent(eventbus.TypeSignalGenerated, "c", "AAPL", "15m", nil)
	if err := sink.Handle(context.Background(), e); err == nil {
		t.Fatal("expected error for missing signal payload")
	}
}

func TestPublisherKeysBySymbol(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewSignalPublisher(producer, "signals.generated", nil)
	if err := pub.Handle(context.Background(), signalEvent("NVDA")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	producer.mu.Lock()
	defer producer.mu.Unlock()
	if len(producer.msgs) != 1 {
		t.Fatalf("published = %d, want 1", len(producer.msgs))
	}
	if producer.msgs[0].topic != "signals.generated" || producer.msgs[0].key != "NVDA" {
		t.Fatalf("got %+v", producer.msgs[0])
	}
}
