package audio

import "math"

// RMS returns the root-mean-square amplitude of samples. An empty frame
// has level 0.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Level returns the RMS of samples scaled to the 0–100 range used for volume
// meters. Loud input may exceed 100.
func Level(samples []float32) float64 {
	return RMS(samples) * 100
}
