package discipline

import (
	"time"

	"codeberg.org/mutker/ocxoctl/internal/capture"
	"codeberg.org/mutker/ocxoctl/internal/control"
)

// DefaultInterval is the minimum time between control ticks.
const DefaultInterval = 10 * time.Millisecond

// Config sizes and tunes one engine.
type Config struct {
	Interval time.Duration
	Timebase capture.Timebase

	EdgeCapacity        int
	FrequencyCapacity   int
	CalibrationCapacity int

	Mode       string
	Edge       capture.Polarity
	Gains      control.Gains
	Range      control.Range
	InitialVCO uint16
	StepSize   uint16
	Hysteresis float64

	MeasureCount       int
	StabilizationCount int
	CalibrateOnStart   bool

	// Monitor computes everything but never writes the DAC.
	Monitor bool
	Version string
}

// DefaultConfig matches the controller board's timer and loop constants.
func DefaultConfig() Config {
	return Config{
		Interval:            DefaultInterval,
		Timebase:            capture.DefaultTimebase(),
		EdgeCapacity:        4,
		FrequencyCapacity:   128,
		CalibrationCapacity: 5,
		Mode:                control.ModePID,
		Edge:                capture.Rising,
		Gains:               control.DefaultGains(),
		Range:               control.Range{Min: -7, Max: 7},
		InitialVCO:          2048,
		StepSize:            control.DefaultStepSize,
		MeasureCount:        5,
		StabilizationCount:  5,
		Version:             "dev",
	}
}
