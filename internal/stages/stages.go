package stages

import (
	"fmt"

	"PatternPulse/internal/domain/models"
	"PatternPulse/internal/eventbus"
	"PatternPulse/internal/pipeline"
	"PatternPulse/internal/rescache"
	applogger "PatternPulse/pkg/logger"
)

// Stage names, in registration order.
const (
	StageIngestion           = "ingestion"
	StageVolumeAnalysis      = "volume_analysis"
	StageRangeDetection      = "range_detection"
	StagePhaseClassification = "phase_classification"
	StagePatternDetection    = "pattern_detection"
	StageRiskValidation      = "risk_validation"
	StageSignalEmission      = "signal_emission"
)

const (
	defaultMinRiskReward = 2.0
	minRangeBars         = 5
	climaxVolumeRatio    = 2.0
)

// Snapshot is the value threaded from stage to stage: the bar window plus
// every intermediate produced so far. Later stages only read what earlier
// stages wrote.
type Snapshot struct {
	Bars   []*models.Bar
	Volume *models.VolumeProfile
	Range  *models.TradingRange
	Phase  *models.PhaseResult
	Match  *models.PatternMatch
	Risk   *models.RiskAssessment
	Signal *models.PatternSignal
}

func (s *Snapshot) lastBar() *models.Bar {
	if len(s.Bars) == 0 {
		return nil
	}
	return s.Bars[len(s.Bars)-1]
}

// Deps is the shared wiring handed to every stage.
type Deps struct {
	History       *History
	Cache         *rescache.Cache
	Bus           *eventbus.Bus
	Logger        *applogger.Logger
	MinRiskReward float64
}

func (d Deps) minRR() float64 {
	if d.MinRiskReward <= 0 {
		return defaultMinRiskReward
	}
	return d.MinRiskReward
}

// Register wires the full stage chain onto a coordinator. Order matters:
// each stage reads the snapshot fields the previous ones filled in.
func Register(c *pipeline.Coordinator, d Deps) {
	c.Register(NewIngestion(d))
	c.Register(NewVolumeAnalysis(d))
	c.Register(NewRangeDetection(d))
	c.Register(NewPhaseClassification(d))
	c.Register(NewPatternDetection(d))
	c.Register(NewRiskValidation(d))
	c.Register(NewSignalEmission(d))
}

func asSnapshot(stage string, input any) (*Snapshot, error) {
	snap, ok := input.(*Snapshot)
	if !ok || snap == nil {
		return nil, fmt.Errorf("%s: expected *Snapshot input, got %T", stage, input)
	}
	return snap, nil
}
