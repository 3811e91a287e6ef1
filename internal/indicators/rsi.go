package indicators

import "math"

// RSI calculates the Relative Strength Index using Wilder smoothing.
type RSI struct {
	period int
}

// NewRSI creates a new RSI instance with the given period.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Calculate computes the RSI value over the price series. The average
// gain/loss are seeded with a simple average of the first 'period'
// changes, then Wilder-smoothed over the remainder. When the average
// loss is zero the RSI clamps to 100 instead of dividing by zero.
func (r *RSI) Calculate(prices []float64) (float64, error) {
	if len(prices) < r.period+1 {
		return 0, ErrInsufficientData
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= r.period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += math.Abs(change)
		}
	}
	avgGain /= float64(r.period)
	avgLoss /= float64(r.period)

	// Wilder smoothing: avg = (avg*(n-1) + current) / n
	n := float64(r.period)
	for i := r.period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = math.Abs(change)
		}
		avgGain = (avgGain*(n-1) + gain) / n
		avgLoss = (avgLoss*(n-1) + loss) / n
	}

	if avgLoss == 0 {
		return 100, nil
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), nil
}

// GetRequiredPeriods returns the minimum number of data points needed.
func (r *RSI) GetRequiredPeriods() int {
	return r.period + 1
}

// GetName returns the indicator name.
func (r *RSI) GetName() string {
	return "RSI"
}
