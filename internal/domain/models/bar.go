package models

// Bar represents a single OHLCV bar for a symbol/timeframe pair.
type Bar struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"` // unix seconds, bar close time
}

// Spread returns the bar's high-low range.
func (b *Bar) Spread() float64 {
	return b.High - b.Low
}

// IsUp reports whether the bar closed above its open.
func (b *Bar) IsUp() bool {
	return b.Close > b.Open
}

// ClosePosition returns where the close sits inside the bar's range, 0 (low)
// to 1 (high). A doji bar (zero spread) reports 0.5.
func (b *Bar) ClosePosition() float64 {
	spread := b.Spread()
	if spread <= 0 {
		return 0.5
	}
	return (b.Close - b.Low) / spread
}
