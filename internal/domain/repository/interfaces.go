package repository

import (
	"context"
	"time"

	"PatternPulse/internal/domain/models"
)

// MarketStream supplies raw bars from an upstream exchange feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Bar, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// SignalStore persists emitted pattern signals.
type SignalStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, s *models.PatternSignal) error
	StoreBatch(ctx context.Context, sigs []*models.PatternSignal) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.PatternSignal, error)
	Health(ctx context.Context) error
	Close() error
}

// Metrics records operational measurements for the scanner.
type Metrics interface {
	RecordStageDuration(stage string, seconds float64)
	RecordRun(symbol, result string)
	RecordError(kind string)
	RecordCacheAccess(namespace string, hit bool)
	RecordBreakerTransition(symbol, state string)
	RecordAdmissionRejected(symbol string)
	RecordEventPublished(eventType string)
	RecordHandlerError(eventType string)
	SetQueueDepth(n int)
}
