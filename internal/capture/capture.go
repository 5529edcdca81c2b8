// Package capture turns timer captures of the reference and OCXO pulses into
// instantaneous frequency samples.
package capture

import (
	"context"
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/ocxoctl/internal/ringbuf"
)

// Signal identifies which pulse train a timestamp belongs to.
type Signal uint8

const (
	Reference Signal = iota
	OCXO
)

func (s Signal) String() string {
	switch s {
	case Reference:
		return "reference"
	case OCXO:
		return "ocxo"
	}
	return "unknown"
}

// Polarity identifies the captured edge.
type Polarity uint8

const (
	Rising Polarity = iota
	Falling
)

func (p Polarity) String() string {
	switch p {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	}
	return "unknown"
}

// ParsePolarity maps "rising"/"falling" onto a Polarity.
func ParsePolarity(name string) (Polarity, bool) {
	switch name {
	case "rising":
		return Rising, true
	case "falling":
		return Falling, true
	}
	return Rising, false
}

// EdgeSink receives raw timer captures.
type EdgeSink interface {
	OnEdge(sig Signal, pol Polarity, counter uint32) bool
}

// Source produces edges until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, sink EdgeSink) error
}

// MinCalibrationCapacity is the smallest calibration history that yields an
// interval. Smaller capacities are raised to it.
const MinCalibrationCapacity = 2

// Config sizes the capture histories.
type Config struct {
	Timebase            Timebase
	EdgeCapacity        int
	FrequencyCapacity   int
	CalibrationCapacity int
}

// Capture owns every edge and frequency history. OnEdge is the interrupt side;
// the control loop reads frequencies and calibration timestamps concurrently.
type Capture struct {
	// mu serializes the interrupt context: one OnEdge runs at a time, as capture
	// handlers of equal priority would on a single core.
	mu sync.Mutex

	tb          Timebase
	edges       [2][2]*ringbuf.Ring[uint32] // [polarity][signal]
	frequencies [2]*ringbuf.Ring[float64]   // [polarity]
	calibration [2]*ringbuf.Ring[uint32]    // [signal], rising edges only

	calibrating atomic.Bool
	fresh       [2]atomic.Bool
	matches     [2]atomic.Uint64
}

// New allocates every ring once; nothing is allocated per edge.
func New(cfg Config) *Capture {
	c := &Capture{tb: cfg.Timebase}
	for pol := range c.edges {
		for sig := range c.edges[pol] {
			c.edges[pol][sig] = ringbuf.NewEdges(cfg.EdgeCapacity)
		}
		c.frequencies[pol] = ringbuf.NewFrequencies(cfg.FrequencyCapacity)
	}
	calCap := max(cfg.CalibrationCapacity, MinCalibrationCapacity)
	for sig := range c.calibration {
		c.calibration[sig] = ringbuf.NewEdges(calCap)
	}

	return c
}

// OnEdge records one capture and immediately tries to match it. It reports whether
// a new frequency sample was produced.
func (c *Capture) OnEdge(sig Signal, pol Polarity, counter uint32) bool {
	if sig > OCXO || pol > Falling {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.edges[pol][sig].Push(counter)
	if pol == Rising && c.calibrating.Load() {
		c.calibration[sig].Push(counter)
	}

	_, ok := Match(c.edges[pol][Reference], c.edges[pol][OCXO], c.frequencies[pol], c.tb)
	if ok {
		c.matches[pol].Add(1)
		c.fresh[pol].Store(true)
	}

	return ok
}

// Timebase returns the timebase edges are interpreted in.
func (c *Capture) Timebase() Timebase {
	return c.tb
}

// Frequencies returns the matched frequency history of one polarity.
func (c *Capture) Frequencies(pol Polarity) *ringbuf.Ring[float64] {
	return c.frequencies[pol]
}

// Edges returns the unmatched edge history of one signal and polarity.
func (c *Capture) Edges(sig Signal, pol Polarity) *ringbuf.Ring[uint32] {
	return c.edges[pol][sig]
}

// TakeFresh reports whether a sample of the given polarity arrived since the
// previous call.
func (c *Capture) TakeFresh(pol Polarity) bool {
	return c.fresh[pol].Swap(false)
}

// Matches returns how many samples of the given polarity have been produced.
func (c *Capture) Matches(pol Polarity) uint64 {
	return c.matches[pol].Load()
}

// SetCalibrating starts or stops feeding the calibration histories. Starting
// clears whatever a previous pass left behind.
func (c *Capture) SetCalibrating(on bool) {
	if on {
		for _, r := range c.calibration {
			r.Empty()
		}
	}
	c.calibrating.Store(on)
}

// CalibrationReady reports whether both calibration histories are full.
func (c *Capture) CalibrationReady() bool {
	return c.calibration[Reference].Full() && c.calibration[OCXO].Full()
}

// DrainCalibration hands over the calibration timestamps, newest first, and
// removes them. Edges captured during the drain are kept for the next pass.
func (c *Capture) DrainCalibration() (ref, ocxo []uint32) {
	return c.calibration[Reference].Drain(), c.calibration[OCXO].Drain()
}
