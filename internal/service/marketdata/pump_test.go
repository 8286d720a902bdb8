package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PatternPulse/internal/domain/models"
)

type fakeStream struct {
	mu         sync.Mutex
	connects   int
	reconnects int
	batches    [][]*models.Bar
}

func (f *fakeStream) Connect(context.Context) error {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) Subscribe(context.Context) error { return nil }

func (f *fakeStream) Read(context.Context) (<-chan *models.Bar, <-chan error) {
	bars := make(chan *models.Bar, 16)
	errs := make(chan error, 1)
	f.mu.Lock()
	var batch []*models.Bar
	if len(f.batches) > 0 {
		batch = f.batches[0]
		f.batches = f.batches[1:]
	}
	f.mu.Unlock()

	go func() {
		defer close(bars)
		defer close(errs)
		for _, b := range batch {
			bars <- b
		}
		errs <- errors.New("connection dropped")
	}()
	return bars, errs
}

func (f *fakeStream) Reconnect(context.Context) error {
	f.mu.Lock()
	f.reconnects++
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) Close() error      { return nil }
func (f *fakeStream) IsConnected() bool { return true }

type recordingSink struct {
	mu   sync.Mutex
	bars []*models.Bar
}

func (r *recordingSink) Ingest(_ context.Context, b *models.Bar) error {
	r.mu.Lock()
	r.bars = append(r.bars, b)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bars)
}

func TestPumpFeedsBarsAndReconnects(t *testing.T) {
	stream := &fakeStream{batches: [][]*models.Bar{
		{{Symbol: "AAPL", Close: 1}, {Symbol: "MSFT", Close: 2}},
		{{Symbol: "NVDA", Close: 3}},
	}}
	sink := &recordingSink{}
	pump := NewPump(stream, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = pump.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of 3 bars reached the sink", sink.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop on cancel")
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()
	if stream.connects != 1 {
		t.Fatalf("connects = %d, want 1", stream.connects)
	}
	if stream.reconnects == 0 {
		t.Fatal("expected at least one reconnect after the dropped read")
	}
}
