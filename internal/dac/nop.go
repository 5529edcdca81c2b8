package dac

import (
	"sync/atomic"

	"codeberg.org/mutker/ocxoctl/internal/errors"
)

// Nop accepts every write and only remembers the code, for monitor mode and
// boards without a DAC.
type Nop struct {
	last   atomic.Uint32
	writes atomic.Uint64
}

func (n *Nop) SetControlVoltage(code uint16) error {
	if code > MaxCode {
		return errors.New().WithData(ErrCodeRange, code)
	}
	n.last.Store(uint32(code))
	n.writes.Add(1)
	return nil
}

// Last returns the most recently accepted code.
func (n *Nop) Last() uint16 {
	return uint16(n.last.Load())
}

// Writes returns how many codes were accepted.
func (n *Nop) Writes() uint64 {
	return n.writes.Load()
}

// Open builds the named driver. Drivers that need no hardware ignore bus and addr.
func Open(driver, bus string, addr uint16) (Device, error) {
	switch driver {
	case DriverNone, "":
		return &Nop{}, nil
	case DriverMCP4726:
		return OpenMCP4726(bus, addr)
	}

	return nil, errors.New().WithData(ErrUnknownDriver, driver)
}
