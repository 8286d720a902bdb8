package stages

import (
	"context"

	"PatternPulse/internal/domain/models"
	"PatternPulse/internal/eventbus"
	"PatternPulse/internal/pipeline"
)

// PatternDetection tests the newest bar against the trading range for a
// tradeable event. A run with no match is a normal, successful outcome.
type PatternDetection struct {
	deps Deps
}

func NewPatternDetection(d Deps) *PatternDetection { return &PatternDetection{deps: d} }

func (s *PatternDetection) Name() string { return StagePatternDetection }

func (s *PatternDetection) Execute(ctx context.Context, input any, pc *pipeline.Context) (any, error) {
	snap, err := asSnapshot(StagePatternDetection, input)
	if err != nil {
		return nil, err
	}

	match := detectPattern(snap, pc.Symbol, pc.Timeframe)
	snap.Match = match

	if !match.Found {
		pc.AddWarning(StagePatternDetection, "no pattern on latest bar")
		return snap, nil
	}

	if s.deps.Bus != nil {
		s.deps.Bus.Publish(ctx, eventbus.NewEvent(eventbus.TypePatternDetected,
			pc.CorrelationID, pc.Symbol, pc.Timeframe, map[string]any{
				"pattern":    match.Pattern,
				"direction":  match.Direction,
				"trigger":    match.Trigger,
				"confidence": match.Confidence,
			}))
	}

	return snap, nil
}

func detectPattern(snap *Snapshot, symbol, timeframe string) *models.PatternMatch {
	match := &models.PatternMatch{Symbol: symbol, Timeframe: timeframe}
	tr := snap.Range
	last := snap.lastBar()
	if tr == nil || !tr.Valid || last == nil {
		return match
	}

	confidence := 0.5
	if snap.Volume != nil && snap.Volume.Climax {
		confidence += 0.2
	}
	if snap.Phase != nil {
		confidence += 0.15 * snap.Phase.Confidence
	}

	switch {
	// Spring: a dip under support that is bought back above it.
	case last.Low < tr.Support && last.Close > tr.Support:
		match.Pattern = "spring"
		match.Direction = "long"
		match.Trigger = tr.Support
	// Upthrust: a push over resistance that is sold back under it.
	case last.High > tr.Resistance && last.Close < tr.Resistance:
		match.Pattern = "upthrust"
		match.Direction = "short"
		match.Trigger = tr.Resistance
	case last.Close > tr.Resistance:
		match.Pattern = "breakout"
		match.Direction = "long"
		match.Trigger = tr.Resistance
		confidence -= 0.1
	case last.Close < tr.Support:
		match.Pattern = "breakdown"
		match.Direction = "short"
		match.Trigger = tr.Support
		confidence -= 0.1
	default:
		return match
	}

	match.Found = true
	match.Confidence = clamp01(confidence)
	return match
}
