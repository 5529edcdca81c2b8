package control

import (
	"sync"

	"codeberg.org/mutker/ocxoctl/internal/capture"
	"gonum.org/v1/gonum/stat"
)

// Phase is the calibration progress.
type Phase uint8

const (
	Idle Phase = iota
	MeasuringMin
	MeasuringMax
	Done
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case MeasuringMin:
		return "measuring-min"
	case MeasuringMax:
		return "measuring-max"
	case Done:
		return "done"
	}
	return "unknown"
}

// TimestampSource provides the long-window rising-edge histories.
type TimestampSource interface {
	SetCalibrating(on bool)
	CalibrationReady() bool
	DrainCalibration() (ref, ocxo []uint32)
}

// CalibrationConfig sets how many counted ticks each extreme waits and measures.
type CalibrationConfig struct {
	MeasureCount       int
	StabilizationCount int
	// Restore is the VCO code left behind when the pass completes.
	Restore uint16
}

// CalibrationStep is the outcome of one calibration tick.
type CalibrationStep struct {
	Phase Phase
	// Code is the VCO code the oscillator must be held at.
	Code uint16
	// Counted is false when the timestamp histories were not yet full.
	Counted bool
	// Finished is set on the tick that produced Result.
	Finished bool
	Result   Range
}

// Calibration drives the VCO to both extremes and measures the oscillator's
// frequency there, using plain averages of inter-edge intervals.
type Calibration struct {
	mu     sync.Mutex
	cfg    CalibrationConfig
	tb     capture.Timebase
	src    TimestampSource
	phase  Phase
	result Range

	minCount, maxCount int
	minSum, maxSum     float64
}

// NewCalibration builds a calibration pass. At least one measurement is taken
// per extreme.
func NewCalibration(cfg CalibrationConfig, tb capture.Timebase, src TimestampSource) *Calibration {
	cfg.MeasureCount = max(cfg.MeasureCount, 1)
	cfg.StabilizationCount = max(cfg.StabilizationCount, 0)
	return &Calibration{cfg: cfg, tb: tb, src: src}
}

// Start begins a pass. A pass in progress is not restarted.
func (c *Calibration) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active() {
		return false
	}
	c.reset()
	c.phase = MeasuringMin
	c.src.SetCalibrating(true)

	return true
}

// Active reports whether a pass is in progress.
func (c *Calibration) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active()
}

func (c *Calibration) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Result returns the range learned by the last completed pass.
func (c *Calibration) Result() (Range, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.phase == Done
}

// Step advances the pass by one tick. Ticks only count once both timestamp
// histories are full; measuring ticks consume them, settling ticks do not.
func (c *Calibration) Step() CalibrationStep {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active() {
		return CalibrationStep{Phase: c.phase, Code: c.cfg.Restore}
	}

	step := CalibrationStep{Phase: c.phase, Code: c.holdCode()}
	if !c.src.CalibrationReady() {
		return step
	}

	perExtreme := c.cfg.MeasureCount + c.cfg.StabilizationCount

	switch c.phase {
	case MeasuringMin:
		if c.minCount >= c.cfg.StabilizationCount {
			f, ok := c.measure()
			if !ok {
				return step
			}
			c.minSum += f
		}
		c.minCount++
		step.Counted = true
		if c.minCount >= perExtreme {
			c.phase = MeasuringMax
		}

	case MeasuringMax:
		if c.maxCount >= c.cfg.StabilizationCount {
			f, ok := c.measure()
			if !ok {
				return step
			}
			c.maxSum += f
		}
		c.maxCount++
		step.Counted = true
		if c.maxCount >= perExtreme {
			c.finish()
			step.Phase = Done
			step.Code = c.cfg.Restore
			step.Finished = true
			step.Result = c.result
		}
	}

	return step
}

func (c *Calibration) active() bool {
	return c.phase == MeasuringMin || c.phase == MeasuringMax
}

func (c *Calibration) holdCode() uint16 {
	if c.phase == MeasuringMax {
		return maxCode
	}
	return 0
}

func (c *Calibration) finish() {
	n := float64(c.cfg.MeasureCount)
	nominal := c.tb.TickFrequency
	c.result = Range{
		Min: c.minSum/n - nominal,
		Max: c.maxSum/n - nominal,
	}
	c.phase = Done
	c.src.SetCalibrating(false)
	c.minCount, c.maxCount = 0, 0
	c.minSum, c.maxSum = 0, 0
}

func (c *Calibration) reset() {
	c.minCount, c.maxCount = 0, 0
	c.minSum, c.maxSum = 0, 0
}

// measure drains both histories and returns the oscillator frequency in timer Hz.
func (c *Calibration) measure() (float64, bool) {
	ref, ocxo := c.src.DrainCalibration()

	dRef, okRef := meanInterval(ref, c.tb.CounterBits)
	dOCXO, okOCXO := meanInterval(ocxo, c.tb.CounterBits)
	if !okRef || !okOCXO || dOCXO == 0 {
		return 0, false
	}

	// A shorter OCXO interval means a faster oscillator.
	relative := c.tb.ReferenceFrequency * dRef / dOCXO

	return relative * c.tb.Scale(), true
}

// meanInterval averages the distance between consecutive newest-first timestamps.
func meanInterval(stamps []uint32, bits uint) (float64, bool) {
	if len(stamps) < 2 {
		return 0, false
	}

	deltas := make([]float64, len(stamps)-1)
	for i := 1; i < len(stamps); i++ {
		deltas[i-1] = float64(capture.SignedDelta(stamps[i-1], stamps[i], bits))
	}

	return stat.Mean(deltas, nil), true
}
