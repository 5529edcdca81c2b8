// Package dac drives the OCXO's voltage-control input.
package dac

// MaxCode is the full-scale code of a 12-bit DAC.
const MaxCode = 4095

// Device accepts a control voltage as a DAC code in [0, MaxCode].
type Device interface {
	SetControlVoltage(code uint16) error
}

// Driver names accepted by Open.
const (
	DriverNone    = "none"
	DriverMCP4726 = "mcp4726"
)
