package sim_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/mutker/ocxoctl/internal/capture"
	"codeberg.org/mutker/ocxoctl/internal/dac"
	"codeberg.org/mutker/ocxoctl/internal/errors"
	"codeberg.org/mutker/ocxoctl/internal/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapture(tb capture.Timebase) *capture.Capture {
	return capture.New(capture.Config{
		Timebase:            tb,
		EdgeCapacity:        4,
		FrequencyCapacity:   16,
		CalibrationCapacity: 5,
	})
}

func TestSimulatorFrequencyFollowsCode(t *testing.T) {
	s := sim.New(sim.DefaultConfig())

	assert.InDelta(t, 170e6+3-7, s.Frequency(0), 1e-6)
	assert.InDelta(t, 170e6+3+7, s.Frequency(dac.MaxCode), 1e-6)
	assert.Equal(t, uint16(2048), s.Code())

	require.NoError(t, s.SetControlVoltage(100))
	assert.Equal(t, uint16(100), s.Code())

	err := s.SetControlVoltage(dac.MaxCode + 1)
	assert.True(t, errors.HasCode(err, dac.ErrCodeRange))
}

func TestSimulatorProducesMatchedSamples(t *testing.T) {
	cfg := sim.DefaultConfig()
	s := sim.New(cfg)
	require.NoError(t, s.SetControlVoltage(0))
	c := newCapture(cfg.Timebase)

	for range 3 {
		s.Advance(c)
	}

	assert.Equal(t, uint64(3), s.Periods())
	assert.Equal(t, uint64(3), c.Matches(capture.Rising))
	assert.Equal(t, uint64(3), c.Matches(capture.Falling))

	// At VCO 0 the oscillator runs 4 Hz slow, so after two periods its edge
	// trails the reference by 8 ticks.
	f, ok := c.Frequencies(capture.Rising).Peek()
	require.True(t, ok)
	assert.InDelta(t, 170e6/(170e6+8), f, 1e-12)
	assert.Less(t, f, 1.0)
}

func TestSimulatorWrapsNarrowCounter(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.Timebase = capture.Timebase{TickFrequency: 1e6, ReferenceFrequency: 1, CounterBits: 16}
	cfg.Tuning.Min, cfg.Tuning.Max = -50, 50
	cfg.Offset = 20
	s := sim.New(cfg)
	c := newCapture(cfg.Timebase)

	for range 4 {
		s.Advance(c)
	}

	// 20 Hz fast on 1 MHz leads by about 60 ticks after three periods,
	// across several wraps of the 16 bit counter.
	assert.Equal(t, uint64(4), c.Matches(capture.Rising))
	f, ok := c.Frequencies(capture.Rising).Peek()
	require.True(t, ok)
	assert.InDelta(t, 1+60e-6, f, 3e-6)
}

func TestSimulatorRunStopsOnCancel(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.Speedup = 1000
	s := sim.New(cfg)
	c := newCapture(cfg.Timebase)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx, c))
	assert.Positive(t, s.Periods())
}
