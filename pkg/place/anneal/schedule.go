package anneal

// Schedule is the pluggable cooling policy: given the acceptance statistics
// of the last outer iteration, produce the next temperature and range limit.
// The Metropolis acceptance test itself is fixed; only the decay is a
// policy.
type Schedule interface {
	Next(temperature, rangeLimit, successRate float64) (newTemperature, newRangeLimit float64)
}

// targetSuccessRate is the acceptance rate the range-limit update steers
// toward. Shrinking the window when acceptance is low concentrates the
// search locally as the system cools.
const targetSuccessRate = 0.44

// AdaptiveSchedule is the default policy: geometric temperature decay with a
// rate picked from the measured success band, and the classic range-limit
// update toward the target acceptance rate.
type AdaptiveSchedule struct {
	// MaxRangeLimit clamps the window half-width, normally the larger grid
	// dimension.
	MaxRangeLimit float64
}

// Next implements Schedule.
func (s AdaptiveSchedule) Next(temperature, rangeLimit, successRate float64) (float64, float64) {
	rangeLimit *= 1 - targetSuccessRate + successRate
	rangeLimit = max(1, min(rangeLimit, s.MaxRangeLimit))

	var alpha float64
	switch {
	case successRate > 0.96:
		alpha = 0.5
	case successRate > 0.8:
		alpha = 0.9
	case successRate > 0.15 || rangeLimit > 1:
		alpha = 0.95
	default:
		alpha = 0.8
	}
	return temperature * alpha, rangeLimit
}

// GeometricSchedule decays the temperature by a fixed factor each outer
// iteration and leaves the range limit responsive to the success rate only.
// Useful when reproducing runs with a known-good fixed decay.
type GeometricSchedule struct {
	Alpha         float64
	MaxRangeLimit float64
}

// Next implements Schedule.
func (s GeometricSchedule) Next(temperature, rangeLimit, successRate float64) (float64, float64) {
	rangeLimit *= 1 - targetSuccessRate + successRate
	rangeLimit = max(1, min(rangeLimit, s.MaxRangeLimit))
	return temperature * s.Alpha, rangeLimit
}
