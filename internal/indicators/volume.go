package indicators

// VolumeRatio compares the latest volume against its recent simple
// average, a crude surge detector.
type VolumeRatio struct {
	period int
}

// NewVolumeRatio creates a new volume-ratio indicator with the given
// averaging period.
func NewVolumeRatio(period int) *VolumeRatio {
	return &VolumeRatio{period: period}
}

// Calculate returns currentVolume / avg(volume, period). A flat market
// with zero average volume yields a neutral ratio of 1.
func (v *VolumeRatio) Calculate(volumes []float64) (float64, error) {
	if len(volumes) < v.period {
		return 0, ErrInsufficientData
	}

	sum := 0.0
	for _, vol := range volumes[len(volumes)-v.period:] {
		sum += vol
	}
	avg := sum / float64(v.period)
	if avg <= 0 {
		return 1.0, nil
	}
	return volumes[len(volumes)-1] / avg, nil
}

// GetRequiredPeriods returns the minimum number of data points needed.
func (v *VolumeRatio) GetRequiredPeriods() int {
	return v.period
}

// GetName returns the indicator name.
func (v *VolumeRatio) GetName() string {
	return "VolumeRatio"
}
