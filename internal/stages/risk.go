package stages

import (
	"context"
	"fmt"

	"PatternPulse/internal/domain/models"
	"PatternPulse/internal/eventbus"
	"PatternPulse/internal/pipeline"
)

// RiskValidation sizes the stop and target for a detected pattern and
// rejects setups whose reward does not justify the risk. A rejection is a
// published outcome, not a stage failure.
type RiskValidation struct {
	deps Deps
}

func NewRiskValidation(d Deps) *RiskValidation { return &RiskValidation{deps: d} }

func (s *RiskValidation) Name() string { return StageRiskValidation }

func (s *RiskValidation) Execute(ctx context.Context, input any, pc *pipeline.Context) (any, error) {
	snap, err := asSnapshot(StageRiskValidation, input)
	if err != nil {
		return nil, err
	}
	if snap.Match == nil || !snap.Match.Found {
		return snap, nil
	}

	risk := assessRisk(snap, s.deps.minRR())
	snap.Risk = risk

	if !risk.Approved {
		pc.AddWarning(StageRiskValidation, risk.Reason)
		if s.deps.Bus != nil {
			s.deps.Bus.Publish(ctx, eventbus.NewEvent(eventbus.TypeSignalRejected,
				pc.CorrelationID, pc.Symbol, pc.Timeframe, map[string]any{
					"pattern":     snap.Match.Pattern,
					"reason":      risk.Reason,
					"risk_reward": risk.RiskReward,
				}))
		}
	}

	return snap, nil
}

func assessRisk(snap *Snapshot, minRR float64) *models.RiskAssessment {
	tr := snap.Range
	last := snap.lastBar()
	match := snap.Match
	risk := &models.RiskAssessment{Symbol: match.Symbol, Entry: last.Close}

	buffer := 0.1 * tr.Width
	if match.Direction == "long" {
		stop := tr.Support
		if last.Low < stop {
			stop = last.Low
		}
		risk.StopLoss = stop - buffer
		if match.Pattern == "breakout" {
			risk.Target = tr.Resistance + tr.Width
		} else {
			risk.Target = tr.Resistance
		}
	} else {
		stop := tr.Resistance
		if last.High > stop {
			stop = last.High
		}
		risk.StopLoss = stop + buffer
		if match.Pattern == "breakdown" {
			risk.Target = tr.Support - tr.Width
		} else {
			risk.Target = tr.Support
		}
	}

	var atRisk, reward float64
	if match.Direction == "long" {
		atRisk = risk.Entry - risk.StopLoss
		reward = risk.Target - risk.Entry
	} else {
		atRisk = risk.StopLoss - risk.Entry
		reward = risk.Entry - risk.Target
	}

	switch {
	case atRisk <= 0:
		risk.Reason = "entry is already beyond the stop level"
	case reward <= 0:
		risk.Reason = "entry is already beyond the target level"
	default:
		risk.RiskReward = reward / atRisk
		if risk.RiskReward < minRR {
			risk.Reason = fmt.Sprintf("risk/reward %.2f below minimum %.2f", risk.RiskReward, minRR)
		} else {
			risk.Approved = true
		}
	}
	return risk
}
