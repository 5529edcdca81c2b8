package capture

// Timebase describes the capture timer and the reference it is compared against.
type Timebase struct {
	// TickFrequency is the capture timer clock in Hz.
	TickFrequency float64
	// ReferenceFrequency is the rate of the reference pulse in Hz (1 for a PPS).
	ReferenceFrequency float64
	// CounterBits is the width of the free-running capture counter.
	CounterBits uint
}

// DefaultTimebase matches a 170 MHz, 32-bit capture timer against a 1 PPS reference.
func DefaultTimebase() Timebase {
	return Timebase{
		TickFrequency:      170e6,
		ReferenceFrequency: 1.0,
		CounterBits:        32,
	}
}

// ReferencePeriod returns the time between reference pulses in seconds.
func (tb Timebase) ReferencePeriod() float64 {
	return 1.0 / tb.ReferenceFrequency
}

// SecondsPerTick returns the duration of one capture timer tick.
func (tb Timebase) SecondsPerTick() float64 {
	return 1.0 / tb.TickFrequency
}

// Scale converts a frequency expressed relative to the reference into timer Hz,
// the unit of the calibration range.
func (tb Timebase) Scale() float64 {
	return tb.TickFrequency / tb.ReferenceFrequency
}

// SignedDelta returns a-b for two counter values of the timebase's width.
func (tb Timebase) SignedDelta(a, b uint32) int64 {
	return SignedDelta(a, b, tb.CounterBits)
}

// SignedDelta returns a-b taken modulo 2^bits and reinterpreted as a signed value.
// It is exact whenever the true distance is below half the counter range.
func SignedDelta(a, b uint32, bits uint) int64 {
	if bits == 0 || bits > 32 {
		bits = 32
	}

	mask := uint64(1)<<bits - 1
	d := (uint64(a) - uint64(b)) & mask
	if d >= uint64(1)<<(bits-1) {
		return int64(d) - int64(1)<<bits
	}

	return int64(d)
}
