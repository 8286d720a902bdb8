package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"PatternPulse/internal/domain/models"
	drepo "PatternPulse/internal/domain/repository"
	"PatternPulse/internal/workqueue"
	applogger "PatternPulse/pkg/logger"
)

// BarIngest turns raw bar messages into queued scan work, enqueued at the
// symbol's configured priority. Cached intermediates are invalidated by
// the ingestion stage when the bar actually enters the window, not here;
// a full queue sheds the bar and the next bar re-triggers the scan.
type BarIngest struct {
	topic   string
	queue   *workqueue.Queue
	manager *workqueue.Manager
	logger  *applogger.Logger
	metrics drepo.Metrics
}

// NewBarIngest creates the ingest handler for the given bars topic.
func NewBarIngest(topic string, q *workqueue.Queue, m *workqueue.Manager, l *applogger.Logger, metrics drepo.Metrics) *BarIngest {
	return &BarIngest{topic: topic, queue: q, manager: m, logger: l, metrics: metrics}
}

// Topic returns the subscribed topic name.
func (h *BarIngest) Topic() string { return h.topic }

// Handle decodes one bar message and enqueues it for scanning.
func (h *BarIngest) Handle(ctx context.Context, data []byte) error {
	var bar models.Bar
	if err := json.Unmarshal(data, &bar); err != nil {
		return fmt.Errorf("decode bar: %w", err)
	}
	return h.Ingest(ctx, &bar)
}

// Ingest validates and enqueues one bar. Shared by the Kafka and websocket
// ingest paths.
func (h *BarIngest) Ingest(_ context.Context, bar *models.Bar) error {
	if bar.Symbol == "" {
		return fmt.Errorf("bar has no symbol")
	}
	if bar.Timeframe == "" {
		bar.Timeframe = string(drepo.DefaultTimeframe())
	} else {
		bar.Timeframe = string(drepo.NormalizeTimeframe(bar.Timeframe))
	}

	priority := workqueue.PriorityMedium
	if h.manager != nil {
		priority = h.manager.PriorityFor(bar.Symbol)
	}

	if err := h.queue.Put(bar.Symbol, bar, priority); err != nil {
		if errors.Is(err, workqueue.ErrQueueFull) {
			if h.metrics != nil {
				h.metrics.RecordError("queue_full")
			}
			if h.logger != nil {
				h.logger.Warn("scan queue full, bar dropped",
					applogger.String("symbol", bar.Symbol),
					applogger.String("timeframe", bar.Timeframe))
			}
			return nil // shedding is the policy, not a handler failure
		}
		return err
	}
	return nil
}
