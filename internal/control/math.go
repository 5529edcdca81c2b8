package control

// Lerp maps x from the line through (x0, y0) and (x1, y1). Both endpoints map
// exactly onto y0 and y1. x0 must differ from x1.
func Lerp(x0, y0, x1, y1, x float64) float64 {
	t := (x - x0) / (x1 - x0)
	if t < 0.5 {
		return y0 + t*(y1-y0)
	}
	return y1 - (1-t)*(y1-y0)
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

// toCode clamps v into the DAC range and truncates it.
func toCode(v float64) uint16 {
	return uint16(clamp(v, 0, maxCode))
}
