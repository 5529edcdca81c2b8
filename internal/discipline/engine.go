// Package discipline ties capture, control and the command channel into the
// single engine that disciplines the oscillator.
package discipline

import (
	"context"
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/ocxoctl/internal/capture"
	"codeberg.org/mutker/ocxoctl/internal/command"
	"codeberg.org/mutker/ocxoctl/internal/control"
	"codeberg.org/mutker/ocxoctl/internal/dac"
	"codeberg.org/mutker/ocxoctl/internal/logger"
)

// referenceTimeout is how many reference periods may pass without a sample
// before the reference is reported missing.
const referenceTimeout = 3

// Engine owns every buffer and all controller state. OnEdge is safe to call
// from capture goroutines; Tick and Run belong to one control goroutine.
type Engine struct {
	cfg         Config
	capture     *capture.Capture
	pid         *control.PID
	controller  control.Controller
	actuator    *control.Actuator
	calibration *control.Calibration

	commands     *command.Channel
	recorders    []Recorder
	onCalibrated func(control.Range)

	lastTick   time.Time
	lastSample time.Time
	present    bool

	mu     sync.RWMutex
	status Snapshot

	logger logger.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithCommands attaches a command channel that is polled every tick.
func WithCommands(ch *command.Channel) Option {
	return func(e *Engine) { e.commands = ch }
}

// WithRecorder adds a snapshot consumer.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorders = append(e.recorders, r) }
}

// WithCalibrationHook is called with every completed calibration range.
func WithCalibrationHook(fn func(control.Range)) Option {
	return func(e *Engine) { e.onCalibrated = fn }
}

func New(cfg Config, dev dac.Device, opts ...Option) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	e := &Engine{
		cfg: cfg,
		capture: capture.New(capture.Config{
			Timebase:            cfg.Timebase,
			EdgeCapacity:        cfg.EdgeCapacity,
			FrequencyCapacity:   cfg.FrequencyCapacity,
			CalibrationCapacity: cfg.CalibrationCapacity,
		}),
		actuator: control.NewActuator(dev, cfg.InitialVCO),
		logger:   logger.For("engine"),
	}

	e.pid = control.NewPID(cfg.Timebase, cfg.Gains, cfg.Range)
	var ctl control.Controller = e.pid
	if cfg.Mode == control.ModeStep {
		ctl = control.NewStep(cfg.Timebase, cfg.StepSize)
	}
	e.controller = control.WithHysteresis(ctl, cfg.Timebase, cfg.Hysteresis)

	e.calibration = control.NewCalibration(control.CalibrationConfig{
		MeasureCount:       cfg.MeasureCount,
		StabilizationCount: cfg.StabilizationCount,
		Restore:            cfg.InitialVCO,
	}, cfg.Timebase, e.capture)

	for _, opt := range opts {
		opt(e)
	}

	e.status = Snapshot{Gains: cfg.Gains, Range: cfg.Range, Raw: cfg.InitialVCO, Code: cfg.InitialVCO}

	if cfg.CalibrateOnStart {
		e.StartCalibration()
	}

	return e
}

// OnEdge feeds one timer capture into the engine.
func (e *Engine) OnEdge(sig capture.Signal, pol capture.Polarity, counter uint32) bool {
	return e.capture.OnEdge(sig, pol, counter)
}

// Run ticks the engine until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.logger.Info().
		Str("mode", e.cfg.Mode).
		Str("edge", e.cfg.Edge.String()).
		Dur("interval", e.cfg.Interval).
		Bool("monitor", e.cfg.Monitor).
		Msg("Discipline loop started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			// The ticker already spaces ticks by the interval.
			e.tick(now)
		}
	}
}

// Tick runs one control step unless less than the interval has passed since
// the previous one. It reports whether the step ran.
func (e *Engine) Tick(now time.Time) bool {
	if !e.lastTick.IsZero() && now.Sub(e.lastTick) < e.cfg.Interval {
		return false
	}
	e.tick(now)
	return true
}

func (e *Engine) tick(now time.Time) {
	e.lastTick = now

	fresh := e.capture.TakeFresh(e.cfg.Edge)
	if fresh {
		e.lastSample = now
		e.setPresent(true)
	} else if e.present && now.Sub(e.lastSample) > e.referenceTimeout() {
		e.setPresent(false)
	}

	var out control.Output
	var updated bool
	if fresh {
		if e.calibration.Active() {
			e.calibrate()
		} else {
			out, updated = e.control()
		}
	}

	if !e.cfg.Monitor {
		if err := e.actuator.Write(); err != nil {
			e.logger.Warn().Err(err).Msg("DAC write failed, retrying next tick")
		}
	}

	if e.commands != nil {
		e.commands.Poll(e)
	}

	if fresh {
		e.publish(now, out, updated)
	}
}

func (e *Engine) control() (control.Output, bool) {
	out, ok := e.controller.Update(e.capture.Frequencies(e.cfg.Edge), e.actuator.Raw())
	if !ok {
		return out, false
	}

	gains := e.pid.Gains()
	e.actuator.Command(out.Code, gains.Nf)

	if e.commands != nil {
		e.commands.EmitFrequency(out.Frequency)
		if !out.Held {
			e.commands.EmitControl(out, gains)
		}
	}

	e.logger.Debug().
		Float64("frequency", out.Frequency).
		Float64("error", out.Error).
		Float64("integral", out.Integral).
		Float64("derivative", out.Derivative).
		Uint16("raw", out.Code).
		Uint16("code", e.actuator.Code()).
		Msg("Control update")

	return out, true
}

func (e *Engine) calibrate() {
	step := e.calibration.Step()
	e.actuator.Force(step.Code)

	if step.Counted {
		e.logger.Debug().Str("phase", step.Phase.String()).Uint16("code", step.Code).Msg("Calibration tick")
	}
	if !step.Finished {
		return
	}

	if e.commands != nil {
		e.commands.EmitCalibration(step.Result)
	}
	if !e.pid.SetRange(step.Result) {
		e.logger.Warn().
			Float64("min", step.Result.Min).
			Float64("max", step.Result.Max).
			Msg("Calibration produced an empty range, keeping the previous one")
		return
	}

	e.logger.Info().Float64("min", step.Result.Min).Float64("max", step.Result.Max).Msg("Calibration complete")
	if e.onCalibrated != nil {
		e.onCalibrated(step.Result)
	}
}

func (e *Engine) publish(now time.Time, out control.Output, updated bool) {
	e.mu.Lock()
	s := e.status
	s.Timestamp = now
	if updated {
		s.Frequency = out.Frequency
		s.Error = out.Error
		s.Integral = out.Integral
		s.Derivative = out.Derivative
		s.VCO = out.VCO
		s.Held = out.Held
	}
	s.Raw = e.actuator.Raw()
	s.Code = e.actuator.Code()
	s.Writes, s.WriteFailures = e.actuator.Stats()
	s.Calibrating = e.calibration.Active()
	s.Phase = e.calibration.Phase()
	s.ReferencePresent = e.present
	s.Gains = e.pid.Gains()
	s.Range = e.pid.Range()
	e.status = s
	e.mu.Unlock()

	for _, r := range e.recorders {
		r.Record(s)
	}
}

func (e *Engine) setPresent(present bool) {
	if e.present == present {
		return
	}
	e.present = present

	e.mu.Lock()
	e.status.ReferencePresent = present
	e.mu.Unlock()

	if present {
		e.logger.Info().Msg("Reference signal detected")
	} else {
		e.logger.Warn().Msg("Reference signal lost")
	}
}

func (e *Engine) referenceTimeout() time.Duration {
	return time.Duration(referenceTimeout * e.cfg.Timebase.ReferencePeriod() * float64(time.Second))
}

// Status returns the state published by the latest sample.
func (e *Engine) Status() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Calibrating reports whether a calibration pass is running.
func (e *Engine) Calibrating() bool {
	return e.calibration.Active()
}

// StartCalibration begins a calibration pass unless one is running.
func (e *Engine) StartCalibration() bool {
	if !e.calibration.Start() {
		return false
	}
	e.logger.Info().
		Int("measure", e.cfg.MeasureCount).
		Int("stabilization", e.cfg.StabilizationCount).
		Msg("Calibration started")
	return true
}

// SetRange installs a previously learned calibration range.
func (e *Engine) SetRange(r control.Range) bool {
	return e.pid.SetRange(r)
}

// SetParameter updates one tunable by its command name and returns the value
// now in effect.
func (e *Engine) SetParameter(name string, v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}

	g := e.pid.Gains()
	switch name {
	case command.ParamKp:
		g.Kp = v
	case command.ParamKi:
		g.Ki = v
	case command.ParamKd:
		g.Kd = v
	case command.ParamOffset:
		g.Offset = v
	case command.ParamNf:
		if v < 0 || v >= 1 {
			return 0, false
		}
		g.Nf = v
	case command.ParamDf:
		if v < 0 || v >= 1 {
			return 0, false
		}
		g.Df = v
	default:
		return 0, false
	}
	e.pid.SetGains(g)

	e.mu.Lock()
	e.status.Gains = g
	e.mu.Unlock()

	return v, true
}
