package main

import (
	"time"

	"codeberg.org/mutker/ocxoctl/internal/capture"
	"codeberg.org/mutker/ocxoctl/internal/config"
	"codeberg.org/mutker/ocxoctl/internal/control"
	"codeberg.org/mutker/ocxoctl/internal/discipline"
	"codeberg.org/mutker/ocxoctl/internal/metrics"
	"codeberg.org/mutker/ocxoctl/internal/sim"
	"codeberg.org/mutker/ocxoctl/internal/telemetry"
)

func timebase(c *config.Config) capture.Timebase {
	return capture.Timebase{
		TickFrequency:      c.Timer.TickFrequency,
		ReferenceFrequency: c.Timer.ReferenceFrequency,
		CounterBits:        uint(c.Timer.CounterBits),
	}
}

func disciplineConfig(c *config.Config) discipline.Config {
	edge, _ := capture.ParsePolarity(c.Control.Edge)

	return discipline.Config{
		Interval:            time.Duration(c.IntervalMS) * time.Millisecond,
		Timebase:            timebase(c),
		EdgeCapacity:        c.Buffers.EdgeCapacity,
		FrequencyCapacity:   c.Buffers.FrequencyCapacity,
		CalibrationCapacity: c.Buffers.CalibrationCapacity,
		Mode:                c.Control.Mode,
		Edge:                edge,
		Gains: control.Gains{
			Kp:         c.Control.Kp,
			Ki:         c.Control.Ki,
			Kd:         c.Control.Kd,
			Nf:         c.Control.Nf,
			Df:         c.Control.Df,
			AntiWindup: c.Control.AntiWindup,
			Offset:     c.Control.Offset,
		},
		Range:              control.Range{Min: c.Control.MinFrequency, Max: c.Control.MaxFrequency},
		InitialVCO:         uint16(c.Control.InitialVCO),
		StepSize:           uint16(c.Control.StepSize),
		Hysteresis:         c.Control.Hysteresis,
		MeasureCount:       c.Calibration.MeasureCount,
		StabilizationCount: c.Calibration.StabilizationCount,
		CalibrateOnStart:   c.Calibration.OnStart,
		Monitor:            c.Monitor,
		Version:            version,
	}
}

func simConfig(c *config.Config) sim.Config {
	sc := sim.DefaultConfig()
	sc.Timebase = timebase(c)
	sc.Speedup = c.Sim.Speedup
	sc.Offset = c.Sim.OCXOOffset
	sc.Tuning = control.Range{Min: c.Sim.MinFrequency, Max: c.Sim.MaxFrequency}
	sc.Seed = uint64(time.Now().UnixNano())
	return sc
}

func metricsConfig(c *config.Config) metrics.Config {
	return metrics.Config{
		Enabled:      c.Metrics.Enabled,
		DBPath:       c.Metrics.DBPath,
		BatchSize:    c.Metrics.BatchSize,
		BatchTimeout: c.Metrics.BatchTimeout,
	}
}

func telemetryConfig(c *config.Config) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.Listen = c.Telemetry.Listen
	tc.MQTTBroker = c.Telemetry.MQTTBroker
	tc.MQTTTopic = c.Telemetry.MQTTTopic
	return tc
}
