package discipline

import (
	"time"

	"codeberg.org/mutker/ocxoctl/internal/control"
)

// Snapshot is the loop state after one tick that consumed a new sample.
type Snapshot struct {
	Timestamp time.Time

	Frequency  float64
	Error      float64
	Integral   float64
	Derivative float64
	VCO        float64
	Raw        uint16
	Code       uint16
	Held       bool

	// Writes and WriteFailures count DAC writes since start.
	Writes        uint64
	WriteFailures uint64

	Calibrating      bool
	Phase            control.Phase
	ReferencePresent bool

	Gains control.Gains
	Range control.Range
}

// Recorder consumes snapshots. Record is called from the control loop and must
// not block.
type Recorder interface {
	Record(s Snapshot)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Snapshot)

func (f RecorderFunc) Record(s Snapshot) { f(s) }
