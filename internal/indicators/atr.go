package indicators

import (
	"math"

	"aitrader/pkg/types"
)

// ATR represents the Average True Range technical indicator, a
// Wilder-smoothed measure of bar-to-bar volatility.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator with the given period.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

// Calculate computes the ATR over the bar series. The first ATR is the
// simple average of the first 'period' true ranges; subsequent values
// use Wilder smoothing.
func (a *ATR) Calculate(bars []types.OHLCV) (float64, error) {
	if len(bars) < a.period+1 {
		return 0, ErrInsufficientData
	}

	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		trs = append(trs, trueRange(bars[i], bars[i-1].Close))
	}

	atr := 0.0
	for i := 0; i < a.period; i++ {
		atr += trs[i]
	}
	atr /= float64(a.period)

	n := float64(a.period)
	for i := a.period; i < len(trs); i++ {
		atr = (atr*(n-1) + trs[i]) / n
	}
	return atr, nil
}

// trueRange is max(High-Low, |High-PrevClose|, |Low-PrevClose|).
func trueRange(bar types.OHLCV, prevClose float64) float64 {
	hl := bar.High - bar.Low
	hc := math.Abs(bar.High - prevClose)
	lc := math.Abs(bar.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

// GetRequiredPeriods returns the minimum number of bars needed.
func (a *ATR) GetRequiredPeriods() int {
	return a.period + 1 // extra bar for the first true range
}

// GetName returns the indicator name.
func (a *ATR) GetName() string {
	return "ATR"
}
