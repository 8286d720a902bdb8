package scanner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"PatternPulse/internal/breaker"
	"PatternPulse/internal/domain/models"
	"PatternPulse/internal/eventbus"
	"PatternPulse/internal/pipeline"
	"PatternPulse/internal/workqueue"
)

type fakeMetrics struct {
	mu                sync.Mutex
	runs              map[string]int
	errorsByKind      map[string]int
	admissionRejected int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{runs: make(map[string]int), errorsByKind: make(map[string]int)}
}

func (f *fakeMetrics) RecordStageDuration(string, float64) {}
func (f *fakeMetrics) RecordRun(symbol, result string) {
	f.mu.Lock()
	f.runs[result]++
	f.mu.Unlock()
}
func (f *fakeMetrics) RecordError(kind string) {
	f.mu.Lock()
	f.errorsByKind[kind]++
	f.mu.Unlock()
}
func (f *fakeMetrics) RecordCacheAccess(string, bool) {}

func (f *fakeMetrics) RecordBreakerTransition(string, string) {}

func (f *fakeMetrics) RecordAdmissionRejected(string) {
	f.mu.Lock()
	f.admissionRejected++
	f.mu.Unlock()
}
func (f *fakeMetrics) RecordEventPublished(string) {}

func (f *fakeMetrics) RecordHandlerError(string) {}

func (f *fakeMetrics) SetQueueDepth(int) {}

func (f *fakeMetrics) runCount(result string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[result]
}

func (f *fakeMetrics) rejected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admissionRejected
}

type eventCapture struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (ec *eventCapture) handler(_ context.Context, e eventbus.Event) error {
	ec.mu.Lock()
	ec.events = append(ec.events, e)
	ec.mu.Unlock()
	return nil
}

func (ec *eventCapture) count(eventType string) int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	n := 0
	for _, e := range ec.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// failSwitch is a single-stage pipeline that fails while armed.
func failSwitch(fail *atomic.Bool) *pipeline.Coordinator {
	coord := pipeline.NewCoordinator()
	coord.Register(pipeline.StageFunc{
		StageName: "scan",
		Fn: func(_ context.Context, input any, _ *pipeline.Context) (any, error) {
			if fail.Load() {
				return nil, errors.New("upstream data gap")
			}
			return input, nil
		},
	})
	return coord
}

func barItem(symbol string) *workqueue.Item {
	return &workqueue.Item{
		Symbol:     symbol,
		Payload:    &models.Bar{Symbol: symbol, Timeframe: "15m", High: 101, Low: 99, Open: 100, Close: 100.5, Volume: 10},
		Priority:   workqueue.PriorityMedium,
		EnqueuedAt: time.Now(),
	}
}

func TestBreakerLifecycleAroundFailingSymbol(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)

	bus := eventbus.NewBus()
	capture := &eventCapture{}
	bus.Subscribe(eventbus.TypeRunCompleted, capture.handler)
	bus.Subscribe(eventbus.TypeBreakerOpened, capture.handler)

	metrics := newFakeMetrics()
	reg := breaker.NewRegistry(
		breaker.WithBackoff([]time.Duration{30 * time.Millisecond, 60 * time.Millisecond}),
		breaker.WithNotify(BreakerNotifier(bus, nil)),
	)
	s := New(workqueue.NewQueue(), reg, failSwitch(&fail), bus, WithMetrics(metrics))

	ctx := context.Background()

	// Three consecutive failures open the circuit.
	for i := 0; i < 3; i++ {
		s.Process(ctx, barItem("AAPL"))
	}
	br, ok := reg.Lookup("AAPL")
	if !ok {
		t.Fatal("breaker was never created")
	}
	if br.State() != breaker.StateOpen {
		t.Fatalf("state = %s, want OPEN", br.State())
	}
	if metrics.runCount("failure") != 3 {
		t.Fatalf("failure runs = %d, want 3", metrics.runCount("failure"))
	}

	// While OPEN, the next item is refused at admission without running.
	s.Process(ctx, barItem("AAPL"))
	if metrics.rejected() != 1 {
		t.Fatalf("admission rejections = %d, want 1", metrics.rejected())
	}
	if got := metrics.runCount("failure") + metrics.runCount("success"); got != 3 {
		t.Fatalf("runs after rejection = %d, want 3", got)
	}

	// After the backoff elapses one trial is admitted; its success closes
	// the circuit.
	fail.Store(false)
	time.Sleep(40 * time.Millisecond)
	s.Process(ctx, barItem("AAPL"))
	if br.State() != breaker.StateClosed {
		t.Fatalf("state = %s, want CLOSED", br.State())
	}
	if metrics.runCount("success") != 1 {
		t.Fatalf("success runs = %d, want 1", metrics.runCount("success"))
	}

	// Every admitted run, and only those, announced completion.
	if n := capture.count(eventbus.TypeRunCompleted); n != 4 {
		t.Fatalf("run-completed events = %d, want 4", n)
	}

	// The opened circuit was broadcast; the notifier fires asynchronously.
	deadline := time.Now().Add(time.Second)
	for capture.count(eventbus.TypeBreakerOpened) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("breaker-opened event never published")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBadPayloadCountsAsFailure(t *testing.T) {
	var fail atomic.Bool
	metrics := newFakeMetrics()
	reg := breaker.NewRegistry()
	s := New(workqueue.NewQueue(), reg, failSwitch(&fail), nil, WithMetrics(metrics))

	s.Process(context.Background(), &workqueue.Item{Symbol: "MSFT", Payload: "garbage"})

	metrics.mu.Lock()
	badPayload := metrics.errorsByKind["bad_payload"]
	metrics.mu.Unlock()
	if badPayload != 1 {
		t.Fatalf("bad_payload errors = %d, want 1", badPayload)
	}
	br, ok := reg.Lookup("MSFT")
	if !ok {
		t.Fatal("breaker was never created")
	}
	if br.Snapshot().ConsecutiveFailures != 1 {
		t.Fatal("expected the bad payload to count against the breaker")
	}
}

func TestWorkersDrainQueue(t *testing.T) {
	processed := make(chan string, 8)
	coord := pipeline.NewCoordinator()
	coord.Register(pipeline.StageFunc{
		StageName: "scan",
		Fn: func(_ context.Context, input any, pc *pipeline.Context) (any, error) {
			processed <- pc.Symbol
			return input, nil
		},
	})

	q := workqueue.NewQueue()
	s := New(q, breaker.NewRegistry(), coord, nil,
		WithWorkers(2), WithGetTimeout(20*time.Millisecond))
	s.Start(context.Background())
	defer s.Stop()

	for _, sym := range []string{"AAPL", "MSFT", "NVDA"} {
		if err := q.Put(sym, &models.Bar{Symbol: sym, Timeframe: "15m", High: 1, Low: 0.5, Close: 0.8}, workqueue.PriorityMedium); err != nil {
			t.Fatalf("put %s: %v", sym, err)
		}
	}

	seen := make(map[string]bool)
	timeout := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case sym := <-processed:
			seen[sym] = true
		case <-timeout:
			t.Fatalf("only %d of 3 items processed", len(seen))
		}
	}
}

func TestStopWaitsForWorkers(t *testing.T) {
	var fail atomic.Bool
	s := New(workqueue.NewQueue(), breaker.NewRegistry(), failSwitch(&fail), nil,
		WithWorkers(3), WithGetTimeout(10*time.Millisecond))

	s.Start(context.Background())
	s.Start(context.Background()) // second start is a no-op

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	s.Stop() // stop after stop is a no-op
}
