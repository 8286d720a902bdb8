package subscribers

import (
	"context"
	"fmt"

	"PatternPulse/internal/eventbus"
	applogger "PatternPulse/pkg/logger"
)

// Publisher is the broker surface the signal publisher needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// SignalPublisher forwards generated signals to a broker topic, keyed by
// symbol so downstream consumers see per-symbol order.
type SignalPublisher struct {
	producer Publisher
	topic    string
	logger   *applogger.Logger
}

// NewSignalPublisher creates a publisher for the given topic.
func NewSignalPublisher(producer Publisher, topic string, logger *applogger.Logger) *SignalPublisher {
	return &SignalPublisher{producer: producer, topic: topic, logger: logger}
}

// Attach subscribes the publisher to generated signals.
func (p *SignalPublisher) Attach(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.TypeSignalGenerated, p.Handle)
}

// Handle consumes one signal-generated event.
func (p *SignalPublisher) Handle(ctx context.Context, e eventbus.Event) error {
	sig, ok := signalFromEvent(e)
	if !ok {
		return fmt.Errorf("event %s carries no signal payload", e.ID)
	}
	if err := p.producer.Publish(ctx, p.topic, []byte(sig.Symbol), sig); err != nil {
		return fmt.Errorf("publish signal %s: %w", sig.ID, err)
	}
	if p.logger != nil {
		p.logger.Debug("signal published",
			applogger.String("topic", p.topic),
			applogger.String("symbol", sig.Symbol),
			applogger.String("pattern", sig.Pattern))
	}
	return nil
}
