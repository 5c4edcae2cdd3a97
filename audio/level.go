package audio

import "math"

// RMS returns the root mean square level of a chunk of samples.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// IsSilent reports whether a chunk is below the given RMS threshold.
// A zero threshold never reports silence.
func IsSilent(samples []int16, threshold float64) bool {
	if threshold <= 0 {
		return false
	}
	return RMS(samples) < threshold
}
