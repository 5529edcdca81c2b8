// Package control turns the matched frequency history into a DAC code: the PID
// and step controllers, the VCO output filter and the calibration pass that
// learns the oscillator's tuning range.
package control

import (
	"codeberg.org/mutker/ocxoctl/internal/dac"
	"codeberg.org/mutker/ocxoctl/internal/ringbuf"
)

const maxCode = dac.MaxCode

// Gains are the live-tunable loop parameters.
type Gains struct {
	Kp float64
	Ki float64
	Kd float64
	// Nf is the VCO output low-pass coefficient.
	Nf float64
	// Df is the derivative low-pass coefficient.
	Df float64
	// AntiWindup bounds the integral term symmetrically.
	AntiWindup float64
	// Offset is a bias added to the actuator, in the unit of Range.
	Offset float64
}

// DefaultGains returns the tuning the loop ships with.
func DefaultGains() Gains {
	return Gains{
		Kp:         0.05,
		Ki:         0.002,
		Kd:         0.001,
		Nf:         0.1,
		Df:         0.1,
		AntiWindup: 0.0001,
	}
}

// Range is the oscillator's frequency at VCO 0 (Min) and at full scale (Max),
// as an offset in Hz from the nominal timer frequency.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Valid reports whether the range can be used to scale actuator output.
func (r Range) Valid() bool {
	return r.Min != r.Max
}

// Output describes one controller update.
type Output struct {
	// Frequency is the newest matched sample relative to the reference.
	Frequency  float64
	Error      float64
	Integral   float64
	Derivative float64
	Actuator   float64
	// VCO is the mapped command before clamping.
	VCO float64
	// Code is the raw command handed to the actuator.
	Code uint16
	// Held is set when hysteresis kept the previous command.
	Held bool
}

// Controller produces a new raw VCO command from the frequency history.
// It reports false when the history is empty.
type Controller interface {
	Update(history *ringbuf.Ring[float64], current uint16) (Output, bool)
}

// Controller modes.
const (
	ModePID  = "pid"
	ModeStep = "step"
)
