package control

import (
	"sync"

	"codeberg.org/mutker/ocxoctl/internal/dac"
)

// Actuator low-pass filters raw VCO commands and commits the result to the DAC.
type Actuator struct {
	mu       sync.Mutex
	dev      dac.Device
	raw      uint16
	filtered float64
	writes   uint64
	failures uint64
}

func NewActuator(dev dac.Device, initial uint16) *Actuator {
	return &Actuator{dev: dev, raw: initial, filtered: float64(initial)}
}

// Command feeds a new raw command through filtered = filtered*nf + raw*(1-nf).
func (a *Actuator) Command(raw uint16, nf float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.raw = raw
	a.filtered = a.filtered*nf + float64(raw)*(1-nf)
}

// Force sets both the raw command and the filter state, bypassing the filter.
func (a *Actuator) Force(code uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.raw = code
	a.filtered = float64(code)
}

// Write commits the filtered value. A failed write leaves the state untouched
// so the next tick retries.
func (a *Actuator) Write() error {
	code := a.Code()
	if err := a.dev.SetControlVoltage(code); err != nil {
		a.mu.Lock()
		a.failures++
		a.mu.Unlock()
		return err
	}

	a.mu.Lock()
	a.writes++
	a.mu.Unlock()

	return nil
}

// Raw returns the last raw command.
func (a *Actuator) Raw() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.raw
}

// Code returns the filtered value as written to the DAC.
func (a *Actuator) Code() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return toCode(a.filtered)
}

// Filtered returns the unrounded filter state.
func (a *Actuator) Filtered() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filtered
}

// Stats returns successful and failed DAC writes.
func (a *Actuator) Stats() (writes, failures uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writes, a.failures
}
