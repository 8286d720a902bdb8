package stages

import (
	"context"

	"PatternPulse/internal/domain/models"
	"PatternPulse/internal/eventbus"
	"PatternPulse/internal/pipeline"
	"PatternPulse/internal/rescache"
)

// RangeDetection finds the support/resistance band the symbol has been
// trading inside. The newest bar is excluded from the band so that a poke
// through either boundary is still visible to pattern detection.
type RangeDetection struct {
	deps Deps
}

func NewRangeDetection(d Deps) *RangeDetection { return &RangeDetection{deps: d} }

func (s *RangeDetection) Name() string { return StageRangeDetection }

func (s *RangeDetection) Execute(ctx context.Context, input any, pc *pipeline.Context) (any, error) {
	snap, err := asSnapshot(StageRangeDetection, input)
	if err != nil {
		return nil, err
	}

	key := rescache.Key{Namespace: rescache.NSRange, Symbol: pc.Symbol, Timeframe: pc.Timeframe}
	if s.deps.Cache != nil {
		if cached, ok := s.deps.Cache.Get(key); ok {
			if tr, ok := cached.(*models.TradingRange); ok {
				snap.Range = tr
				return snap, nil
			}
		}
	}

	tr := detectRange(snap.Bars, pc.Symbol, pc.Timeframe)
	snap.Range = tr
	if s.deps.Cache != nil {
		s.deps.Cache.Set(key, tr)
	}

	if !tr.Valid {
		pc.AddWarning(StageRangeDetection, "no usable trading range in window")
		return snap, nil
	}

	if s.deps.Bus != nil {
		s.deps.Bus.Publish(ctx, eventbus.NewEvent(eventbus.TypeRangeDetected,
			pc.CorrelationID, pc.Symbol, pc.Timeframe, map[string]any{
				"support":    tr.Support,
				"resistance": tr.Resistance,
				"bar_count":  tr.BarCount,
			}))
	}

	return snap, nil
}

func detectRange(bars []*models.Bar, symbol, timeframe string) *models.TradingRange {
	tr := &models.TradingRange{Symbol: symbol, Timeframe: timeframe}
	if len(bars) < minRangeBars {
		return tr
	}

	// Band over every bar except the newest one.
	band := bars[:len(bars)-1]
	tr.Support = band[0].Low
	tr.Resistance = band[0].High
	for _, b := range band[1:] {
		if b.Low < tr.Support {
			tr.Support = b.Low
		}
		if b.High > tr.Resistance {
			tr.Resistance = b.High
		}
	}
	tr.Width = tr.Resistance - tr.Support
	tr.BarCount = len(band)
	tr.Valid = tr.Width > 0
	return tr
}
