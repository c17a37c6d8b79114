package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// fadeGain is the gain of a fade-out that has remaining of total samples left.
func fadeGain(remaining, total int) float32 {
	if total <= 0 {
		return 0
	}
	return float32(Smoothstep(float64(remaining) / float64(total)))
}
