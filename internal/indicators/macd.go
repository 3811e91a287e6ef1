package indicators

// MACD represents the Moving Average Convergence Divergence indicator.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a new MACD instance with the specified fast, slow and
// signal periods.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
	}
}

// Calculate computes the latest MACD line, signal line and histogram.
// The signal line is an EMA of the MACD series, which needs
// slowPeriod+signalPeriod-1 data points to exist.
func (m *MACD) Calculate(prices []float64) (macdLine, signalLine, histogram float64, err error) {
	if len(prices) < m.GetRequiredPeriods() {
		return 0, 0, 0, ErrInsufficientData
	}

	fastSeries, err := NewEMA(m.fastPeriod).Series(prices)
	if err != nil {
		return 0, 0, 0, err
	}
	slowSeries, err := NewEMA(m.slowPeriod).Series(prices)
	if err != nil {
		return 0, 0, 0, err
	}

	// Align both EMA series to the slow one; fast is longer by
	// (slow-fast) elements at the front.
	offset := len(fastSeries) - len(slowSeries)
	macdSeries := make([]float64, len(slowSeries))
	for i := range slowSeries {
		macdSeries[i] = fastSeries[i+offset] - slowSeries[i]
	}

	signalSeries, err := NewEMA(m.signalPeriod).Series(macdSeries)
	if err != nil {
		return 0, 0, 0, err
	}

	macdLine = macdSeries[len(macdSeries)-1]
	signalLine = signalSeries[len(signalSeries)-1]
	histogram = macdLine - signalLine
	return macdLine, signalLine, histogram, nil
}

// GetRequiredPeriods returns the minimum number of data points needed
// for a fully seeded signal line.
func (m *MACD) GetRequiredPeriods() int {
	return m.slowPeriod + m.signalPeriod - 1
}

// GetName returns the indicator name.
func (m *MACD) GetName() string {
	return "MACD"
}
