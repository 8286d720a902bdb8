package marketdata

import (
	"context"

	"PatternPulse/internal/domain/models"
	drepo "PatternPulse/internal/domain/repository"
	applogger "PatternPulse/pkg/logger"
)

// Sink receives bars pulled off a market stream.
type Sink interface {
	Ingest(ctx context.Context, bar *models.Bar) error
}

// Pump drives a MarketStream into a Sink, reconnecting on read failure
// until the context is canceled.
type Pump struct {
	stream drepo.MarketStream
	sink   Sink
	logger *applogger.Logger
}

// NewPump creates a pump.
func NewPump(stream drepo.MarketStream, sink Sink, logger *applogger.Logger) *Pump {
	return &Pump{stream: stream, sink: sink, logger: logger}
}

// Run blocks until ctx is canceled, feeding every decoded bar into the
// sink. Read failures trigger reconnects; sink failures are logged and the
// stream keeps flowing.
func (p *Pump) Run(ctx context.Context) error {
	if err := p.stream.Connect(ctx); err != nil {
		return err
	}
	if err := p.stream.Subscribe(ctx); err != nil {
		return err
	}
	defer p.stream.Close()

	for {
		bars, errs := p.stream.Read(ctx)
	drain:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case bar, ok := <-bars:
				if !ok {
					break drain
				}
				if err := p.sink.Ingest(ctx, bar); err != nil && p.logger != nil {
					p.logger.Warn("bar ingest failed",
						applogger.String("symbol", bar.Symbol),
						applogger.Error(err))
				}
			case err, ok := <-errs:
				if !ok {
					break drain
				}
				if err != nil && p.logger != nil {
					p.logger.Warn("stream read error", applogger.Error(err))
				}
				break drain
			}
		}

		if err := p.stream.Reconnect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if p.logger != nil {
				p.logger.Warn("stream reconnect failed", applogger.Error(err))
			}
		}
	}
}
