package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"PatternPulse/internal/breaker"
	"PatternPulse/internal/domain/models"
	drepo "PatternPulse/internal/domain/repository"
	"PatternPulse/internal/eventbus"
	"PatternPulse/internal/pipeline"
	"PatternPulse/internal/stages"
	"PatternPulse/internal/workqueue"
	applogger "PatternPulse/pkg/logger"
)

// Option configures Scanner.
type Option func(*Scanner)

// WithWorkers sets the size of the draining worker pool.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithGetTimeout bounds each blocking dequeue so workers periodically
// re-check for shutdown.
func WithGetTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.getTimeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *applogger.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m drepo.Metrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// Scanner drains the work queue with a fixed pool of workers and runs the
// scan pipeline once per dequeued bar. Admission is gated per symbol by the
// breaker registry, so one persistently failing symbol cannot monopolize
// the pool.
type Scanner struct {
	queue    *workqueue.Queue
	breakers *breaker.Registry
	coord    *pipeline.Coordinator
	bus      *eventbus.Bus

	workers    int
	getTimeout time.Duration
	logger     *applogger.Logger
	metrics    drepo.Metrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a scanner over the given queue, breaker registry, and
// stage coordinator.
func New(q *workqueue.Queue, reg *breaker.Registry, coord *pipeline.Coordinator, bus *eventbus.Bus, opts ...Option) *Scanner {
	s := &Scanner{
		queue:      q,
		breakers:   reg,
		coord:      coord,
		bus:        bus,
		workers:    4,
		getTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker pool. Calling Start on a running scanner is a
// no-op.
func (s *Scanner) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(runCtx, i)
	}
	if s.logger != nil {
		s.logger.Info("scanner started", applogger.Int("workers", s.workers))
	}
}

// Stop cancels the workers and waits for in-flight runs to finish.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	if s.logger != nil {
		s.logger.Info("scanner stopped")
	}
}

func (s *Scanner) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	for {
		item, err := s.queue.Get(ctx, s.getTimeout)
		if err != nil {
			if errors.Is(err, workqueue.ErrTimeout) {
				continue
			}
			return // context canceled
		}
		s.Process(ctx, item)
	}
}

// Process runs one work item through breaker admission and the pipeline.
// Exported so a caller can drive single items synchronously.
func (s *Scanner) Process(ctx context.Context, item *workqueue.Item) {
	br := s.breakers.Get(item.Symbol)
	if !br.CanExecute() {
		if s.metrics != nil {
			s.metrics.RecordAdmissionRejected(item.Symbol)
		}
		if s.logger != nil {
			s.logger.Debug("scan skipped, circuit not admitting",
				applogger.String("symbol", item.Symbol),
				applogger.String("state", string(br.State())))
		}
		return
	}

	bar, ok := item.Payload.(*models.Bar)
	if !ok {
		br.RecordFailure()
		if s.metrics != nil {
			s.metrics.RecordError("bad_payload")
		}
		if s.logger != nil {
			s.logger.Error("work item payload is not a bar",
				applogger.String("symbol", item.Symbol))
		}
		return
	}

	timeframe := bar.Timeframe
	if timeframe == "" {
		timeframe = string(drepo.DefaultTimeframe())
		bar.Timeframe = timeframe
	}

	pc := pipeline.NewContext(item.Symbol, timeframe)
	start := time.Now()
	res := s.coord.Run(ctx, bar, pc)
	elapsed := time.Since(start)

	result := "success"
	if res.Success {
		br.RecordSuccess()
	} else {
		result = "failure"
		br.RecordFailure()
		if s.metrics != nil {
			s.metrics.RecordError("stage_failure")
		}
	}
	if s.metrics != nil {
		s.metrics.RecordRun(item.Symbol, result)
	}

	payload := map[string]any{
		"success":     res.Success,
		"elapsed_ms":  elapsed.Milliseconds(),
		"queued_wait": time.Since(item.EnqueuedAt).Milliseconds(),
		"priority":    item.Priority.String(),
	}
	if res.FailedStage != "" {
		payload["failed_stage"] = res.FailedStage
	}
	if snap, ok := res.Output.(*stages.Snapshot); ok && snap.Signal != nil {
		payload["signal_id"] = snap.Signal.ID
	}
	if s.bus != nil {
		s.bus.Publish(ctx, eventbus.NewEvent(eventbus.TypeRunCompleted,
			pc.CorrelationID, item.Symbol, timeframe, payload))
	}
}

// BreakerNotifier returns the transition callback wired into the breaker
// registry: opened circuits are announced on the bus and every transition
// is logged.
func BreakerNotifier(bus *eventbus.Bus, logger *applogger.Logger) breaker.NotifyFunc {
	return func(symbol string, from, to breaker.State) {
		if logger != nil {
			logger.Warn("breaker transition",
				applogger.String("symbol", symbol),
				applogger.String("from", string(from)),
				applogger.String("to", string(to)))
		}
		if bus != nil && to == breaker.StateOpen {
			bus.Publish(context.Background(), eventbus.NewEvent(eventbus.TypeBreakerOpened,
				"", symbol, "", map[string]any{
					"from": string(from),
					"to":   string(to),
				}))
		}
	}
}
