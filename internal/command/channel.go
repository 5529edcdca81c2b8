// Package command implements the line-oriented control channel: live gain
// updates, connect/disconnect, calibration trigger and telemetry output.
package command

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/ocxoctl/internal/control"
	"codeberg.org/mutker/ocxoctl/internal/logger"
)

// DefaultQueue is how many unprocessed lines are buffered between polls.
const DefaultQueue = 16

// Handler applies commands to the discipline engine.
type Handler interface {
	// SetParameter stores a new value and returns the value now in effect.
	SetParameter(name string, value float64) (float64, bool)
	StartCalibration() bool
}

// Channel queues incoming lines from the transport and handles them on Poll,
// so parameters only change in the control loop. Output other than the
// connect banner is suppressed while no client is connected.
type Channel struct {
	out       io.Writer
	mu        sync.Mutex
	connected atomic.Bool
	lines     chan string
	dropped   atomic.Uint64
	banner    string
	logger    logger.Logger
}

func New(out io.Writer, version string, queue int) *Channel {
	if queue < 1 {
		queue = DefaultQueue
	}
	return &Channel{
		out:    out,
		lines:  make(chan string, queue),
		banner: fmt.Sprintf("### ocxoctl %s ###\n", version),
		logger: logger.For("command"),
	}
}

// Submit queues a line from the transport. It never blocks; lines arriving
// while the queue is full are dropped.
func (c *Channel) Submit(line string) bool {
	select {
	case c.lines <- line:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Poll handles every queued line and returns how many were accepted.
func (c *Channel) Poll(h Handler) int {
	n := 0
	for {
		select {
		case line := <-c.lines:
			if c.Handle(line, h) {
				n++
			}
		default:
			return n
		}
	}
}

// Handle applies one line. Malformed lines are dropped without a reply.
func (c *Channel) Handle(line string, h Handler) bool {
	cmd, ok := Parse(line)
	if !ok {
		c.logger.Debug().Str("line", line).Msg("Ignoring command")
		return false
	}

	switch cmd.Kind {
	case Connect:
		c.connected.Store(true)
		c.write(c.banner)
		c.logger.Info().Msg("Client connected")
	case Disconnect:
		c.connected.Store(false)
		c.logger.Info().Msg("Client disconnected")
	case Calibrate:
		if !h.StartCalibration() {
			c.logger.Warn().Msg("Calibration already running")
			return false
		}
	case SetParameter:
		v, ok := h.SetParameter(cmd.Name, cmd.Value)
		if !ok {
			c.logger.Warn().Str("name", cmd.Name).Float64("value", cmd.Value).Msg("Rejected parameter")
			return false
		}
		c.logger.Info().Str("name", cmd.Name).Float64("value", v).Msg("Parameter updated")
		c.Emitf("New %s = %.10f\n", cmd.Name, v)
	}

	return true
}

// Connected reports whether a client announced itself with CONN.
func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// Dropped returns how many lines overflowed the queue.
func (c *Channel) Dropped() uint64 {
	return c.dropped.Load()
}

// Emitf writes a line if a client is connected.
func (c *Channel) Emitf(format string, args ...any) {
	if !c.connected.Load() {
		return
	}
	c.write(fmt.Sprintf(format, args...))
}

// EmitFrequency reports the newest matched sample.
func (c *Channel) EmitFrequency(f float64) {
	c.Emitf("F=%.12f\n", f)
}

// EmitControl reports one controller update together with the gains used.
func (c *Channel) EmitControl(out control.Output, g control.Gains) {
	c.Emitf("VCO=%.12f, %d\n", out.VCO, out.Code)
	c.Emitf("e=%.12f, Kp=%.12f\n", out.Error, g.Kp)
	c.Emitf("i=%.12f, Ki=%.12f\n", out.Integral, g.Ki)
	c.Emitf("d=%.12f, Kd=%.12f\n", out.Derivative, g.Kd)
	c.Emitf("Of=%.12f\n", g.Offset)
}

// EmitCalibration reports a completed calibration pass.
func (c *Channel) EmitCalibration(r control.Range) {
	c.Emitf("Calibration [%.12f, %.12f]\n", r.Min, r.Max)
}

func (c *Channel) write(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := io.WriteString(c.out, s); err != nil {
		c.logger.Debug().Err(err).Msg("Command channel write failed")
	}
}
