package dac

import (
	"sync"

	"codeberg.org/mutker/ocxoctl/internal/errors"
	"codeberg.org/mutker/ocxoctl/internal/logger"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DefaultMCP4726Address is the 7-bit address of an MCP4726A3.
const DefaultMCP4726Address = 0x63

// MCP4726 is a 12-bit I2C DAC written with the two-byte fast write command.
type MCP4726 struct {
	dev    *i2c.Dev
	closer i2c.BusCloser
	last   uint16
	mu     sync.Mutex
	logger logger.Logger
}

// OpenMCP4726 registers the host drivers and opens the named I2C bus.
// An empty bus name picks the first bus found.
func OpenMCP4726(bus string, addr uint16) (*MCP4726, error) {
	errFactory := errors.New()

	if _, err := host.Init(); err != nil {
		return nil, errFactory.Wrap(ErrHostInit, err)
	}

	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, errFactory.Wrap(ErrBusOpen, err).WithData(bus)
	}

	d := NewMCP4726(b, addr)
	d.closer = b
	d.logger.Info().Str("bus", b.String()).Msgf("MCP4726 at 0x%02x", addr)

	return d, nil
}

// NewMCP4726 binds the DAC on an already opened bus.
func NewMCP4726(bus i2c.Bus, addr uint16) *MCP4726 {
	return &MCP4726{
		dev:    &i2c.Dev{Bus: bus, Addr: addr},
		logger: logger.For("dac"),
	}
}

func (d *MCP4726) SetControlVoltage(code uint16) error {
	if code > MaxCode {
		return errors.New().WithData(ErrCodeRange, code)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Fast write: C2 C1 PD1 PD0 are zero, then D11..D0.
	buf := [2]byte{byte(code>>8) & 0x0F, byte(code)}
	if err := d.dev.Tx(buf[:], nil); err != nil {
		return errors.New().Wrap(ErrWriteFailed, err).WithData(code)
	}
	d.last = code

	return nil
}

// Last returns the most recently written code.
func (d *MCP4726) Last() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Close releases the bus if OpenMCP4726 opened it.
func (d *MCP4726) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}
