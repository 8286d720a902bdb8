package subscribers

import (
	"context"

	"PatternPulse/internal/eventbus"
	applogger "PatternPulse/pkg/logger"
)

// AlertLogger surfaces operationally interesting events in the service log:
// detected patterns, rejected setups, and opened circuits.
type AlertLogger struct {
	logger *applogger.Logger
}

// NewAlertLogger creates an alert logger.
func NewAlertLogger(logger *applogger.Logger) *AlertLogger {
	return &AlertLogger{logger: logger}
}

// Attach subscribes the alert logger to its event types.
func (a *AlertLogger) Attach(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.TypePatternDetected, a.onPattern)
	bus.Subscribe(eventbus.TypeSignalRejected, a.onRejected)
	bus.Subscribe(eventbus.TypeBreakerOpened, a.onBreakerOpened)
}

func (a *AlertLogger) onPattern(_ context.Context, e eventbus.Event) error {
	a.logger.Info("pattern detected",
		applogger.String("symbol", e.Symbol),
		applogger.String("timeframe", e.Timeframe),
		applogger.Any("pattern", e.Payload["pattern"]),
		applogger.Any("direction", e.Payload["direction"]),
		applogger.String("correlation_id", e.CorrelationID))
	return nil
}

func (a *AlertLogger) onRejected(_ context.Context, e eventbus.Event) error {
	a.logger.Info("signal rejected",
		applogger.String("symbol", e.Symbol),
		applogger.Any("pattern", e.Payload["pattern"]),
		applogger.Any("reason", e.Payload["reason"]))
	return nil
}

func (a *AlertLogger) onBreakerOpened(_ context.Context, e eventbus.Event) error {
	a.logger.Warn("circuit opened",
		applogger.String("symbol", e.Symbol),
		applogger.Any("from", e.Payload["from"]))
	return nil
}
