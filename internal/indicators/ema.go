package indicators

import "errors"

// ErrInsufficientData is returned when a series is shorter than the
// indicator's required history.
var ErrInsufficientData = errors.New("insufficient data for indicator calculation")

// EMA represents the Exponential Moving Average technical indicator.
type EMA struct {
	period int
	alpha  float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1), // standard EMA alpha
	}
}

// Calculate returns the latest EMA value over the price series. The
// series is seeded with the SMA of the first 'period' values, so the
// smoothed value only exists once enough history has accumulated.
func (e *EMA) Calculate(prices []float64) (float64, error) {
	series, err := e.Series(prices)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// Series returns the EMA series aligned to prices[period-1:]. The
// first element is the SMA seed.
func (e *EMA) Series(prices []float64) ([]float64, error) {
	if len(prices) < e.period {
		return nil, ErrInsufficientData
	}

	// SMA seed over the first 'period' values
	sum := 0.0
	for i := 0; i < e.period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(e.period)

	series := make([]float64, 0, len(prices)-e.period+1)
	series = append(series, ema)
	for i := e.period; i < len(prices); i++ {
		ema = (prices[i]-ema)*e.alpha + ema
		series = append(series, ema)
	}
	return series, nil
}

// GetRequiredPeriods returns the minimum number of data points needed.
func (e *EMA) GetRequiredPeriods() int {
	return e.period
}

// GetName returns the indicator name.
func (e *EMA) GetName() string {
	return "EMA"
}
