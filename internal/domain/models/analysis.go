package models

import "time"

// VolumeProfile is the output of the volume analysis stage.
type VolumeProfile struct {
	Symbol       string
	Timeframe    string
	AvgVolume    float64 // simple moving average over the lookback window
	LastVolume   float64
	VolumeRatio  float64 // last volume relative to average
	Climax       bool    // abnormally high volume on a wide-spread bar
	EffortResult float64 // volume spent per unit of price progress
}

// TradingRange is the output of the range detection stage.
type TradingRange struct {
	Symbol     string
	Timeframe  string
	Support    float64
	Resistance float64
	Width      float64 // resistance - support
	BarCount   int     // bars spent inside the range
	Valid      bool    // enough bars and a usable width
}

// Phase labels where price sits in the accumulation/distribution cycle.
type Phase string

const (
	PhaseAccumulation Phase = "accumulation"
	PhaseMarkup       Phase = "markup"
	PhaseDistribution Phase = "distribution"
	PhaseMarkdown     Phase = "markdown"
	PhaseUndefined    Phase = "undefined"
)

// PhaseResult is the output of the phase classification stage.
type PhaseResult struct {
	Symbol     string
	Timeframe  string
	Phase      Phase
	Confidence float64 // 0..1
}

// PatternMatch is the output of the pattern detection stage.
type PatternMatch struct {
	Symbol     string
	Timeframe  string
	Pattern    string  // "spring", "upthrust", "breakout", "breakdown"
	Direction  string  // "long" or "short"
	Trigger    float64 // price level that confirmed the pattern
	Confidence float64
	Found      bool
}

// RiskAssessment is the output of the risk validation stage.
type RiskAssessment struct {
	Symbol     string
	Entry      float64
	StopLoss   float64
	Target     float64
	RiskReward float64
	Approved   bool
	Reason     string // populated when not approved
}

// PatternSignal is the final emitted trading signal.
type PatternSignal struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	Symbol        string    `json:"symbol"`
	Timeframe     string    `json:"timeframe"`
	Pattern       string    `json:"pattern"`
	Direction     string    `json:"direction"`
	Entry         float64   `json:"entry"`
	StopLoss      float64   `json:"stop_loss"`
	Target        float64   `json:"target"`
	RiskReward    float64   `json:"risk_reward"`
	Confidence    float64   `json:"confidence"`
	GeneratedAt   time.Time `json:"generated_at"`
}
