package stages

import (
	"context"
	"math"

	"PatternPulse/internal/domain/models"
	"PatternPulse/internal/eventbus"
	"PatternPulse/internal/pipeline"
	"PatternPulse/internal/rescache"
)

// PhaseClassification labels where the symbol sits in the
// accumulation/markup/distribution/markdown cycle, from the last close's
// position inside the detected range and the window's net drift.
type PhaseClassification struct {
	deps Deps
}

func NewPhaseClassification(d Deps) *PhaseClassification { return &PhaseClassification{deps: d} }

func (s *PhaseClassification) Name() string { return StagePhaseClassification }

func (s *PhaseClassification) Execute(ctx context.Context, input any, pc *pipeline.Context) (any, error) {
	snap, err := asSnapshot(StagePhaseClassification, input)
	if err != nil {
		return nil, err
	}

	key := rescache.Key{Namespace: rescache.NSPhase, Symbol: pc.Symbol, Timeframe: pc.Timeframe}
	if s.deps.Cache != nil {
		if cached, ok := s.deps.Cache.Get(key); ok {
			if pr, ok := cached.(*models.PhaseResult); ok {
				snap.Phase = pr
				return snap, nil
			}
		}
	}

	pr := classifyPhase(snap, pc.Symbol, pc.Timeframe)
	snap.Phase = pr
	if s.deps.Cache != nil {
		s.deps.Cache.Set(key, pr)
	}

	if s.deps.Bus != nil && pr.Phase != models.PhaseUndefined {
		s.deps.Bus.Publish(ctx, eventbus.NewEvent(eventbus.TypePhaseClassified,
			pc.CorrelationID, pc.Symbol, pc.Timeframe, map[string]any{
				"phase":      string(pr.Phase),
				"confidence": pr.Confidence,
			}))
	}

	return snap, nil
}

func classifyPhase(snap *Snapshot, symbol, timeframe string) *models.PhaseResult {
	pr := &models.PhaseResult{Symbol: symbol, Timeframe: timeframe, Phase: models.PhaseUndefined}
	tr := snap.Range
	last := snap.lastBar()
	if tr == nil || !tr.Valid || last == nil {
		return pr
	}

	pos := (last.Close - tr.Support) / tr.Width
	drift := last.Close - snap.Bars[0].Close

	switch {
	case pos <= 0.35:
		if drift < 0 && pos < 0 {
			pr.Phase = models.PhaseMarkdown
		} else {
			pr.Phase = models.PhaseAccumulation
		}
		pr.Confidence = clamp01(0.5 + (0.35-pos)/0.7)
	case pos >= 0.65:
		if drift > 0 && pos > 1 {
			pr.Phase = models.PhaseMarkup
		} else {
			pr.Phase = models.PhaseDistribution
		}
		pr.Confidence = clamp01(0.5 + (pos-0.65)/0.7)
	default:
		if drift >= 0 {
			pr.Phase = models.PhaseMarkup
		} else {
			pr.Phase = models.PhaseMarkdown
		}
		pr.Confidence = clamp01(0.3 + math.Abs(drift)/tr.Width)
	}
	return pr
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
