package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitrader/pkg/types"
)

func risingCloses(n int) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = 100.0 + float64(i)
	}
	return prices
}

func TestEMA_SeedsWithSMA(t *testing.T) {
	ema := NewEMA(5)

	// Exactly 'period' points: EMA equals the SMA seed.
	value, err := ema.Calculate([]float64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, value, 1e-9)
}

func TestEMA_InsufficientData(t *testing.T) {
	ema := NewEMA(10)

	_, err := ema.Calculate(risingCloses(9))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestEMA_TracksConstantSeries(t *testing.T) {
	ema := NewEMA(8)

	prices := make([]float64, 50)
	for i := range prices {
		prices[i] = 42.5
	}
	value, err := ema.Calculate(prices)
	require.NoError(t, err)
	assert.InDelta(t, 42.5, value, 1e-9)
}

func TestMACD_RequiresSeededSignal(t *testing.T) {
	macd := NewMACD(12, 26, 9)

	_, _, _, err := macd.Calculate(risingCloses(33))
	assert.ErrorIs(t, err, ErrInsufficientData)

	line, signal, hist, err := macd.Calculate(risingCloses(60))
	require.NoError(t, err)
	// A steadily rising series keeps fast EMA above slow EMA.
	assert.Greater(t, line, 0.0)
	assert.InDelta(t, line-signal, hist, 1e-9)
}

func TestMACD_ConstantSeriesIsZero(t *testing.T) {
	macd := NewMACD(12, 26, 9)

	prices := make([]float64, 80)
	for i := range prices {
		prices[i] = 1000.0
	}
	line, signal, hist, err := macd.Calculate(prices)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, line, 1e-9)
	assert.InDelta(t, 0.0, signal, 1e-9)
	assert.InDelta(t, 0.0, hist, 1e-9)
}

func TestRSI_ClampsTo100OnPureGains(t *testing.T) {
	rsi := NewRSI(14)

	// Strictly rising closes: average loss is zero.
	value, err := rsi.Calculate(risingCloses(40))
	require.NoError(t, err)
	assert.Equal(t, 100.0, value)
}

func TestRSI_StaysInRange(t *testing.T) {
	rsi := NewRSI(14)

	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100.0 + float64(i%7) - float64(i%3)
	}
	value, err := rsi.Calculate(prices)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, value, 0.0)
	assert.LessOrEqual(t, value, 100.0)
	assert.False(t, value != value, "RSI must never be NaN")
}

func TestRSI_InsufficientData(t *testing.T) {
	rsi := NewRSI(14)

	_, err := rsi.Calculate(risingCloses(14))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func testBars(n int, rangeSize float64) []types.OHLCV {
	bars := make([]types.OHLCV, n)
	for i := range bars {
		base := 100.0 + float64(i)
		bars[i] = types.OHLCV{
			Open:      base,
			High:      base + rangeSize,
			Low:       base - rangeSize,
			Close:     base,
			Volume:    1000,
			Timestamp: time.Unix(int64(i)*60, 0),
		}
	}
	return bars
}

func TestATR_PositiveForVolatileBars(t *testing.T) {
	atr := NewATR(14)

	value, err := atr.Calculate(testBars(30, 2.0))
	require.NoError(t, err)
	assert.Greater(t, value, 0.0)
	// True range per bar is at most high-low plus the 1.0 drift.
	assert.LessOrEqual(t, value, 5.0)
}

func TestATR_InsufficientData(t *testing.T) {
	atr := NewATR(14)

	_, err := atr.Calculate(testBars(14, 1.0))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestVolumeRatio_Surge(t *testing.T) {
	vr := NewVolumeRatio(20)

	volumes := make([]float64, 30)
	for i := range volumes {
		volumes[i] = 100
	}
	volumes[len(volumes)-1] = 300

	ratio, err := vr.Calculate(volumes)
	require.NoError(t, err)
	assert.Greater(t, ratio, 2.0)
}

func TestVolumeRatio_ZeroAverageIsNeutral(t *testing.T) {
	vr := NewVolumeRatio(5)

	ratio, err := vr.Calculate(make([]float64, 10))
	require.NoError(t, err)
	assert.Equal(t, 1.0, ratio)
}
