package stages

import (
	"context"
	"fmt"
	"math"

	"PatternPulse/internal/domain/models"
	"PatternPulse/internal/eventbus"
	"PatternPulse/internal/pipeline"
	"PatternPulse/internal/rescache"
)

// VolumeAnalysis derives effort/result statistics from the bar window. The
// result is memoized per symbol/timeframe until new bars invalidate it.
type VolumeAnalysis struct {
	deps Deps
}

func NewVolumeAnalysis(d Deps) *VolumeAnalysis { return &VolumeAnalysis{deps: d} }

func (s *VolumeAnalysis) Name() string { return StageVolumeAnalysis }

func (s *VolumeAnalysis) Execute(ctx context.Context, input any, pc *pipeline.Context) (any, error) {
	snap, err := asSnapshot(StageVolumeAnalysis, input)
	if err != nil {
		return nil, err
	}
	if len(snap.Bars) == 0 {
		return nil, fmt.Errorf("%s: empty bar window", StageVolumeAnalysis)
	}

	key := rescache.Key{Namespace: rescache.NSVolume, Symbol: pc.Symbol, Timeframe: pc.Timeframe}
	if s.deps.Cache != nil {
		if cached, ok := s.deps.Cache.Get(key); ok {
			if profile, ok := cached.(*models.VolumeProfile); ok {
				snap.Volume = profile
				return snap, nil
			}
		}
	}

	profile := analyzeVolume(snap.Bars, pc.Symbol, pc.Timeframe)
	snap.Volume = profile
	if s.deps.Cache != nil {
		s.deps.Cache.Set(key, profile)
	}

	if s.deps.Bus != nil {
		s.deps.Bus.Publish(ctx, eventbus.NewEvent(eventbus.TypeVolumeAnalyzed,
			pc.CorrelationID, pc.Symbol, pc.Timeframe, map[string]any{
				"volume_ratio": profile.VolumeRatio,
				"climax":       profile.Climax,
			}))
	}

	return snap, nil
}

func analyzeVolume(bars []*models.Bar, symbol, timeframe string) *models.VolumeProfile {
	var sumVolume, sumSpread float64
	for _, b := range bars {
		sumVolume += b.Volume
		sumSpread += b.Spread()
	}
	n := float64(len(bars))
	avgVolume := sumVolume / n
	avgSpread := sumSpread / n

	last := bars[len(bars)-1]
	ratio := 0.0
	if avgVolume > 0 {
		ratio = last.Volume / avgVolume
	}

	// Effort vs result: volume spent per unit of net price progress. A
	// large value on a narrow bar means effort without result.
	progress := math.Abs(last.Close - last.Open)
	effortResult := last.Volume
	if progress > 0 {
		effortResult = last.Volume / progress
	}

	return &models.VolumeProfile{
		Symbol:       symbol,
		Timeframe:    timeframe,
		AvgVolume:    avgVolume,
		LastVolume:   last.Volume,
		VolumeRatio:  ratio,
		Climax:       ratio >= climaxVolumeRatio && last.Spread() >= 1.5*avgSpread,
		EffortResult: effortResult,
	}
}
