package stages

import (
	"context"
	"time"

	"PatternPulse/internal/domain/models"
	"PatternPulse/internal/eventbus"
	"PatternPulse/internal/pipeline"
	applogger "PatternPulse/pkg/logger"

	"github.com/google/uuid"
)

// SignalEmission turns an approved pattern into a final signal and
// broadcasts it. Runs without an approved setup pass through unchanged.
type SignalEmission struct {
	deps Deps
}

func NewSignalEmission(d Deps) *SignalEmission { return &SignalEmission{deps: d} }

func (s *SignalEmission) Name() string { return StageSignalEmission }

func (s *SignalEmission) Execute(ctx context.Context, input any, pc *pipeline.Context) (any, error) {
	snap, err := asSnapshot(StageSignalEmission, input)
	if err != nil {
		return nil, err
	}
	if snap.Match == nil || !snap.Match.Found || snap.Risk == nil || !snap.Risk.Approved {
		return snap, nil
	}

	sig := &models.PatternSignal{
		ID:            uuid.NewString(),
		CorrelationID: pc.CorrelationID,
		Symbol:        pc.Symbol,
		Timeframe:     pc.Timeframe,
		Pattern:       snap.Match.Pattern,
		Direction:     snap.Match.Direction,
		Entry:         snap.Risk.Entry,
		StopLoss:      snap.Risk.StopLoss,
		Target:        snap.Risk.Target,
		RiskReward:    snap.Risk.RiskReward,
		Confidence:    snap.Match.Confidence,
		GeneratedAt:   time.Now(),
	}
	snap.Signal = sig

	if s.deps.Logger != nil {
		s.deps.Logger.Info("signal generated",
			applogger.String("symbol", sig.Symbol),
			applogger.String("pattern", sig.Pattern),
			applogger.String("direction", sig.Direction),
			applogger.Float64("risk_reward", sig.RiskReward))
	}

	if s.deps.Bus != nil {
		s.deps.Bus.Publish(ctx, eventbus.NewEvent(eventbus.TypeSignalGenerated,
			pc.CorrelationID, pc.Symbol, pc.Timeframe, map[string]any{
				"signal": sig,
			}))
	}

	return snap, nil
}
