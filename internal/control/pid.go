package control

import (
	"sync"

	"codeberg.org/mutker/ocxoctl/internal/capture"
	"codeberg.org/mutker/ocxoctl/internal/ringbuf"
	"gonum.org/v1/gonum/integrate"
)

// PID computes a VCO command from frequency error, its integral over the
// retained history and its filtered rate of change.
type PID struct {
	mu         sync.RWMutex
	tb         capture.Timebase
	gains      Gains
	rng        Range
	derivative float64

	// scratch for the trapezoid integration, sized on first use
	xs, fs []float64
}

func NewPID(tb capture.Timebase, gains Gains, rng Range) *PID {
	return &PID{tb: tb, gains: gains, rng: rng}
}

func (p *PID) Gains() Gains {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gains
}

func (p *PID) SetGains(g Gains) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gains = g
}

func (p *PID) Range() Range {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rng
}

// SetRange installs a new calibration result. Invalid ranges are ignored.
func (p *PID) SetRange(r Range) bool {
	if !r.Valid() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rng = r
	return true
}

func (p *PID) Update(history *ringbuf.Ring[float64], _ uint16) (Output, bool) {
	f0, ok := history.Peek()
	if !ok {
		return Output{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	g := p.gains
	period := p.tb.ReferencePeriod()
	out := Output{
		Frequency: f0,
		Error:     p.tb.ReferenceFrequency - f0,
	}

	if f1, ok := history.PeekAt(1); ok {
		p.derivative = p.derivative*g.Df + ((f0-f1)/period)*(1-g.Df)
		out.Integral = clamp(p.integral(history.Snapshot(), period), -g.AntiWindup, g.AntiWindup)
	}
	out.Derivative = p.derivative

	out.Actuator = out.Error*g.Kp + out.Integral*g.Ki + out.Derivative*g.Kd
	out.VCO = Lerp(p.rng.Min, 0, p.rng.Max, maxCode, out.Actuator*p.tb.Scale()+g.Offset)
	out.Code = toCode(out.VCO)

	return out, true
}

// integral returns the integral of the frequency error over the retained samples:
// the reference's area minus the trapezoid area under the history.
func (p *PID) integral(samples []float64, period float64) float64 {
	n := len(samples)
	if n < 2 {
		return 0
	}

	if cap(p.xs) < n {
		p.xs = make([]float64, n)
		p.fs = make([]float64, n)
	}
	xs, fs := p.xs[:n], p.fs[:n]
	for i := range samples {
		xs[i] = float64(i) * period
		fs[i] = samples[n-1-i] // oldest first
	}

	return p.tb.ReferenceFrequency*period*float64(n-1) - integrate.Trapezoidal(xs, fs)
}
