// Package sim simulates a reference PPS and a voltage-tuned OCXO divided down
// to the same rate, for running the discipline loop without hardware.
package sim

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"codeberg.org/mutker/ocxoctl/internal/capture"
	"codeberg.org/mutker/ocxoctl/internal/control"
	"codeberg.org/mutker/ocxoctl/internal/dac"
	"codeberg.org/mutker/ocxoctl/internal/errors"
	"codeberg.org/mutker/ocxoctl/internal/logger"
)

// Config describes the simulated hardware.
type Config struct {
	Timebase capture.Timebase
	// Speedup runs simulated time this many times faster than wall time.
	Speedup float64
	// Offset is the free-running frequency error in timer Hz at mid-scale.
	Offset float64
	// Tuning is the frequency change in timer Hz at VCO 0 and full scale.
	Tuning control.Range
	// Jitter is the standard deviation of edge timing noise in ticks.
	Jitter float64
	// PulseWidth is the high time of both pulses as a fraction of the period.
	PulseWidth float64
	Seed       uint64
}

// DefaultConfig returns a 170 MHz timebase with a ±7 Hz tuning range.
func DefaultConfig() Config {
	return Config{
		Timebase:   capture.DefaultTimebase(),
		Speedup:    100,
		Offset:     3,
		Tuning:     control.Range{Min: -7, Max: 7},
		PulseWidth: 0.1,
		Seed:       1,
	}
}

// Simulator is both the DAC the loop writes and the edge source it reads.
type Simulator struct {
	mu      sync.Mutex
	cfg     Config
	code    uint16
	refAt   float64 // next reference rising edge in ticks
	ocxoAt  float64 // next OCXO rising edge in ticks
	rng     *rand.Rand
	periods uint64
	logger  logger.Logger
}

func New(cfg Config) *Simulator {
	if cfg.Speedup <= 0 {
		cfg.Speedup = 1
	}
	if cfg.PulseWidth <= 0 || cfg.PulseWidth >= 1 {
		cfg.PulseWidth = 0.1
	}
	return &Simulator{
		cfg:    cfg,
		code:   dac.MaxCode/2 + 1,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		logger: logger.For("sim"),
	}
}

func (s *Simulator) SetControlVoltage(code uint16) error {
	if code > dac.MaxCode {
		return errors.New().WithData(dac.ErrCodeRange, code)
	}
	s.mu.Lock()
	s.code = code
	s.mu.Unlock()
	return nil
}

// Code returns the last code written by the loop.
func (s *Simulator) Code() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// Frequency returns the OCXO frequency in timer Hz for a VCO code.
func (s *Simulator) Frequency(code uint16) float64 {
	t := s.cfg.Tuning
	return s.cfg.Timebase.TickFrequency + s.cfg.Offset + control.Lerp(0, t.Min, dac.MaxCode, t.Max, float64(code))
}

// Periods returns how many reference periods have been simulated.
func (s *Simulator) Periods() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.periods
}

// Advance simulates one reference period: one reference pulse and one OCXO
// pulse, delivered in time order.
func (s *Simulator) Advance(sink capture.EdgeSink) {
	s.mu.Lock()
	tb := s.cfg.Timebase
	periodTicks := tb.TickFrequency / tb.ReferenceFrequency
	width := periodTicks * s.cfg.PulseWidth

	refRise := s.refAt + s.noise()
	ocxoRise := s.ocxoAt + s.noise()
	ocxoPeriod := periodTicks * tb.TickFrequency / s.Frequency(s.code)

	s.refAt += periodTicks
	s.ocxoAt += ocxoPeriod
	s.periods++
	s.mu.Unlock()

	type edge struct {
		at  float64
		sig capture.Signal
		pol capture.Polarity
	}
	first, second := edge{refRise, capture.Reference, capture.Rising}, edge{ocxoRise, capture.OCXO, capture.Rising}
	if ocxoRise < refRise {
		first, second = second, first
	}

	for _, e := range []edge{
		first,
		second,
		{first.at + width, first.sig, capture.Falling},
		{second.at + width, second.sig, capture.Falling},
	} {
		sink.OnEdge(e.sig, e.pol, s.counter(e.at))
	}
}

// Run advances one period per period/Speedup of wall time until ctx is done.
func (s *Simulator) Run(ctx context.Context, sink capture.EdgeSink) error {
	tb := s.cfg.Timebase
	every := time.Duration(float64(time.Second) * tb.ReferencePeriod() / s.cfg.Speedup)
	if every <= 0 {
		every = time.Millisecond
	}

	s.logger.Info().
		Float64("offset_hz", s.cfg.Offset).
		Float64("speedup", s.cfg.Speedup).
		Dur("period", every).
		Msg("Simulated oscillator running")

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Advance(sink)
		}
	}
}

func (s *Simulator) noise() float64 {
	if s.cfg.Jitter <= 0 {
		return 0
	}
	return s.rng.NormFloat64() * s.cfg.Jitter
}

func (s *Simulator) counter(at float64) uint32 {
	if at < 0 {
		at = 0
	}
	ticks := uint64(at)
	bits := s.cfg.Timebase.CounterBits
	if bits == 0 || bits >= 32 {
		return uint32(ticks)
	}
	return uint32(ticks & (uint64(1)<<bits - 1))
}
