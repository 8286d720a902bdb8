package subscribers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PatternPulse/internal/domain/models"
	drepo "PatternPulse/internal/domain/repository"
	"PatternPulse/internal/eventbus"
	"PatternPulse/pkg/cache"
	applogger "PatternPulse/pkg/logger"
)

// LatestSignalKey is the cache key holding a symbol's newest signal.
func LatestSignalKey(symbol string) string {
	return fmt.Sprintf("signal:latest:%s", symbol)
}

// SignalCountKey is the cache key counting a symbol's emitted signals.
func SignalCountKey(symbol string) string {
	return fmt.Sprintf("signal:count:%s", symbol)
}

// SinkOption configures SignalSink.
type SinkOption func(*SignalSink)

// WithBatchSize sets the persist batch size.
func WithBatchSize(n int) SinkOption {
	return func(s *SignalSink) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithFlushInterval sets the maximum time a signal stays buffered.
func WithFlushInterval(d time.Duration) SinkOption {
	return func(s *SignalSink) {
		if d > 0 {
			s.flushEvery = d
		}
	}
}

// WithSinkLogger sets the structured logger.
func WithSinkLogger(l *applogger.Logger) SinkOption {
	return func(s *SignalSink) { s.logger = l }
}

// SignalSink persists generated signals in batches and keeps the
// per-symbol latest signal in the shared cache for the operator API.
// Either destination may be absent; the other keeps working.
type SignalSink struct {
	store      drepo.SignalStore
	cache      cache.Service
	logger     *applogger.Logger
	batchSize  int
	flushEvery time.Duration

	mu     sync.Mutex
	buf    []*models.PatternSignal
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSignalSink creates a sink; store and cacheSvc may each be nil.
func NewSignalSink(store drepo.SignalStore, cacheSvc cache.Service, opts ...SinkOption) *SignalSink {
	s := &SignalSink{
		store:      store,
		cache:      cacheSvc,
		batchSize:  32,
		flushEvery: 5 * time.Second,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ticker = time.NewTicker(s.flushEvery)
	s.wg.Add(1)
	go s.flushLoop()
	return s
}

// Attach subscribes the sink to generated signals.
func (s *SignalSink) Attach(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.TypeSignalGenerated, s.Handle)
}

// Handle consumes one signal-generated event.
func (s *SignalSink) Handle(ctx context.Context, e eventbus.Event) error {
	sig, ok := signalFromEvent(e)
	if !ok {
		return fmt.Errorf("event %s carries no signal payload", e.ID)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, LatestSignalKey(sig.Symbol), sig, 24*time.Hour); err != nil && s.logger != nil {
			s.logger.Warn("caching latest signal", applogger.Error(err))
		}
		if _, err := s.cache.Increment(ctx, SignalCountKey(sig.Symbol)); err != nil && s.logger != nil {
			s.logger.Warn("incrementing signal count", applogger.Error(err))
		}
	}

	if s.store == nil {
		return nil
	}

	s.mu.Lock()
	s.buf = append(s.buf, sig)
	full := len(s.buf) >= s.batchSize
	s.mu.Unlock()
	if full {
		s.Flush(ctx)
	}
	return nil
}

// Flush persists all buffered signals now.
func (s *SignalSink) Flush(ctx context.Context) {
	s.mu.Lock()
	batch := s.buf
	s.buf = nil
	s.mu.Unlock()
	if len(batch) == 0 || s.store == nil {
		return
	}

	if err := s.store.StoreBatch(ctx, batch); err != nil {
		if s.logger != nil {
			s.logger.Error("persisting signal batch",
				applogger.Int("count", len(batch)),
				applogger.Error(err))
		}
		return
	}
	if s.logger != nil {
		s.logger.Debug("signal batch persisted", applogger.Int("count", len(batch)))
	}
}

// Close flushes remaining signals and stops the flush loop.
func (s *SignalSink) Close() {
	close(s.stopCh)
	s.ticker.Stop()
	s.wg.Wait()
	s.Flush(context.Background())
}

func (s *SignalSink) flushLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.ticker.C:
			s.Flush(context.Background())
		}
	}
}

func signalFromEvent(e eventbus.Event) (*models.PatternSignal, bool) {
	v, ok := e.Payload["signal"]
	if !ok {
		return nil, false
	}
	sig, ok := v.(*models.PatternSignal)
	return sig, ok
}
