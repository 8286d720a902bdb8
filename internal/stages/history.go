package stages

import (
	"sync"

	"PatternPulse/internal/domain/models"
)

type histKey struct {
	symbol    string
	timeframe string
}

// History keeps a bounded rolling window of recent bars per symbol/timeframe
// pair. Appends past the lookback drop the oldest bar.
type History struct {
	mu       sync.Mutex
	lookback int
	bars     map[histKey][]*models.Bar
}

// NewHistory creates a history holding at most lookback bars per pair.
func NewHistory(lookback int) *History {
	if lookback <= 0 {
		lookback = 50
	}
	return &History{
		lookback: lookback,
		bars:     make(map[histKey][]*models.Bar),
	}
}

// Append records a bar and returns a copy of the pair's current window,
// oldest first.
func (h *History) Append(b *models.Bar) []*models.Bar {
	h.mu.Lock()
	defer h.mu.Unlock()

	k := histKey{symbol: b.Symbol, timeframe: b.Timeframe}
	window := append(h.bars[k], b)
	if len(window) > h.lookback {
		window = window[len(window)-h.lookback:]
	}
	h.bars[k] = window

	out := make([]*models.Bar, len(window))
	copy(out, window)
	return out
}

// Window returns a copy of the pair's current window, oldest first.
func (h *History) Window(symbol, timeframe string) []*models.Bar {
	h.mu.Lock()
	defer h.mu.Unlock()

	window := h.bars[histKey{symbol: symbol, timeframe: timeframe}]
	out := make([]*models.Bar, len(window))
	copy(out, window)
	return out
}

// Len returns the number of bars currently held for the pair.
func (h *History) Len(symbol, timeframe string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.bars[histKey{symbol: symbol, timeframe: timeframe}])
}
