package stages

import (
	"context"
	"fmt"

	"PatternPulse/internal/domain/models"
	"PatternPulse/internal/eventbus"
	"PatternPulse/internal/pipeline"
)

// Ingestion appends the incoming bar to the symbol's rolling window and
// seeds the snapshot every later stage works from.
type Ingestion struct {
	deps Deps
}

func NewIngestion(d Deps) *Ingestion { return &Ingestion{deps: d} }

func (s *Ingestion) Name() string { return StageIngestion }

func (s *Ingestion) Execute(ctx context.Context, input any, pc *pipeline.Context) (any, error) {
	bar, ok := input.(*models.Bar)
	if !ok || bar == nil {
		return nil, fmt.Errorf("%s: expected *models.Bar input, got %T", StageIngestion, input)
	}
	if bar.Symbol == "" {
		return nil, fmt.Errorf("%s: bar has no symbol", StageIngestion)
	}
	if bar.High < bar.Low {
		return nil, fmt.Errorf("%s: bar high %.4f below low %.4f", StageIngestion, bar.High, bar.Low)
	}

	window := s.deps.History.Append(bar)
	// Invalidation must follow Append in the same ordering domain that
	// repopulates the cache; invalidating at arrival time lets a scan of
	// an older window re-cache results missing bars still in flight.
	if s.deps.Cache != nil {
		s.deps.Cache.InvalidateSymbol(pc.Symbol, pc.Timeframe)
	}
	pc.Set("bar_count", len(window))

	if s.deps.Bus != nil {
		s.deps.Bus.Publish(ctx, eventbus.NewEvent(eventbus.TypeBarIngested,
			pc.CorrelationID, pc.Symbol, pc.Timeframe, map[string]any{
				"close":  bar.Close,
				"volume": bar.Volume,
				"bars":   len(window),
			}))
	}

	return &Snapshot{Bars: window}, nil
}
