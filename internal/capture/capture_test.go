package capture_test

import (
	"testing"

	"codeberg.org/mutker/ocxoctl/internal/capture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapture() *capture.Capture {
	return capture.New(capture.Config{
		Timebase:            capture.DefaultTimebase(),
		EdgeCapacity:        4,
		FrequencyCapacity:   128,
		CalibrationCapacity: 5,
	})
}

func TestCaptureOneHertzScenario(t *testing.T) {
	c := newCapture()

	assert.False(t, c.OnEdge(capture.Reference, capture.Rising, 0))
	assert.True(t, c.OnEdge(capture.OCXO, capture.Rising, 0))
	assert.False(t, c.OnEdge(capture.Reference, capture.Rising, 170000000))
	assert.True(t, c.OnEdge(capture.OCXO, capture.Rising, 170000010))

	freqs := c.Frequencies(capture.Rising)
	require.Equal(t, 2, freqs.Len())
	newest, _ := freqs.Peek()
	assert.InDelta(t, 170000000.0/170000010.0, newest, 1e-15)
	first, _ := freqs.PeekAt(1)
	assert.InDelta(t, 1.0, first, 0)

	assert.Equal(t, uint64(2), c.Matches(capture.Rising))
	assert.True(t, c.TakeFresh(capture.Rising))
	assert.False(t, c.TakeFresh(capture.Rising), "fresh flag is consumed")
	assert.False(t, c.TakeFresh(capture.Falling))
}

func TestCapturePolaritiesAreIndependent(t *testing.T) {
	c := newCapture()

	c.OnEdge(capture.Reference, capture.Falling, 1000)
	assert.False(t, c.OnEdge(capture.OCXO, capture.Rising, 1005))
	assert.True(t, c.OnEdge(capture.OCXO, capture.Falling, 1005))

	assert.Equal(t, 0, c.Frequencies(capture.Rising).Len())
	assert.Equal(t, 1, c.Frequencies(capture.Falling).Len())
	assert.Equal(t, 1, c.Edges(capture.OCXO, capture.Rising).Len())
}

func TestCaptureAcrossCounterWrap(t *testing.T) {
	c := newCapture()

	c.OnEdge(capture.Reference, capture.Rising, 0xFFFFFFF0)
	require.True(t, c.OnEdge(capture.OCXO, capture.Rising, 0x00000006))

	f, _ := c.Frequencies(capture.Rising).Peek()
	assert.InDelta(t, 1.0/(1.0+22.0/170e6), f, 1e-15)
}

func TestCaptureCalibrationHistories(t *testing.T) {
	c := newCapture()

	c.OnEdge(capture.Reference, capture.Rising, 1)
	c.OnEdge(capture.OCXO, capture.Rising, 1)
	assert.False(t, c.CalibrationReady(), "nothing is recorded outside calibration")

	c.SetCalibrating(true)
	for i := uint32(0); i < 5; i++ {
		c.OnEdge(capture.Reference, capture.Rising, i*170000000)
		c.OnEdge(capture.OCXO, capture.Falling, i*170000000)
	}
	assert.False(t, c.CalibrationReady(), "falling edges are not recorded")

	for i := uint32(0); i < 5; i++ {
		c.OnEdge(capture.OCXO, capture.Rising, i*170000000+i)
	}
	require.True(t, c.CalibrationReady())

	ref, ocxo := c.DrainCalibration()
	assert.Equal(t, []uint32{680000000, 510000000, 340000000, 170000000, 0}, ref)
	assert.Equal(t, []uint32{680000004, 510000003, 340000002, 170000001, 0}, ocxo)
	assert.False(t, c.CalibrationReady())

	c.SetCalibrating(false)
	c.OnEdge(capture.Reference, capture.Rising, 7)
	r, _ := c.DrainCalibration()
	assert.Empty(t, r)
}

func TestCaptureCalibrationCapacityFloor(t *testing.T) {
	c := capture.New(capture.Config{
		Timebase:            capture.DefaultTimebase(),
		EdgeCapacity:        4,
		FrequencyCapacity:   128,
		CalibrationCapacity: 1,
	})
	c.SetCalibrating(true)

	c.OnEdge(capture.Reference, capture.Rising, 0)
	c.OnEdge(capture.OCXO, capture.Rising, 3)
	assert.False(t, c.CalibrationReady(), "one timestamp gives no interval")

	c.OnEdge(capture.Reference, capture.Rising, 170000000)
	c.OnEdge(capture.OCXO, capture.Rising, 170000001)
	require.True(t, c.CalibrationReady())

	ref, ocxo := c.DrainCalibration()
	assert.Len(t, ref, capture.MinCalibrationCapacity)
	assert.Len(t, ocxo, capture.MinCalibrationCapacity)
}

func TestParsePolarity(t *testing.T) {
	p, ok := capture.ParsePolarity("falling")
	assert.True(t, ok)
	assert.Equal(t, capture.Falling, p)

	_, ok = capture.ParsePolarity("both")
	assert.False(t, ok)
	assert.Equal(t, "ocxo", capture.OCXO.String())
}
