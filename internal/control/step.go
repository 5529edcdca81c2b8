package control

import (
	"codeberg.org/mutker/ocxoctl/internal/capture"
	"codeberg.org/mutker/ocxoctl/internal/ringbuf"
)

// DefaultStepSize is the VCO change per sample in step mode.
const DefaultStepSize = 10

// Step nudges the VCO command by a fixed amount towards the reference on
// every sample: up while the oscillator is slow or exact, down while it is fast.
type Step struct {
	tb   capture.Timebase
	size uint16
}

func NewStep(tb capture.Timebase, size uint16) *Step {
	if size == 0 {
		size = DefaultStepSize
	}
	return &Step{tb: tb, size: size}
}

func (s *Step) Update(history *ringbuf.Ring[float64], current uint16) (Output, bool) {
	f0, ok := history.Peek()
	if !ok {
		return Output{}, false
	}

	out := Output{Frequency: f0, Error: s.tb.ReferenceFrequency - f0}

	next := int(current)
	if out.Error >= 0 {
		next += int(s.size)
	} else {
		next -= int(s.size)
	}
	out.VCO = float64(next)
	out.Code = toCode(out.VCO)

	return out, true
}

// Hysteresis keeps the current command while the error stays inside the band.
type Hysteresis struct {
	Controller
	tb   capture.Timebase
	band float64
}

// WithHysteresis wraps c; a non-positive band disables the dead zone.
func WithHysteresis(c Controller, tb capture.Timebase, band float64) Controller {
	if band <= 0 {
		return c
	}
	return &Hysteresis{Controller: c, tb: tb, band: band}
}

func (h *Hysteresis) Update(history *ringbuf.Ring[float64], current uint16) (Output, bool) {
	f0, ok := history.Peek()
	if !ok {
		return Output{}, false
	}

	e := h.tb.ReferenceFrequency - f0
	if e >= -h.band && e <= h.band {
		return Output{Frequency: f0, Error: e, VCO: float64(current), Code: current, Held: true}, true
	}

	return h.Controller.Update(history, current)
}
