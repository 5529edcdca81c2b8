package control_test

import (
	"testing"

	"codeberg.org/mutker/ocxoctl/internal/control"
	"codeberg.org/mutker/ocxoctl/internal/dac"
	"codeberg.org/mutker/ocxoctl/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDAC struct{ calls int }

func (f *failingDAC) SetControlVoltage(uint16) error {
	f.calls++
	return errors.New().New(dac.ErrWriteFailed)
}

func TestActuatorFilter(t *testing.T) {
	nop := &dac.Nop{}
	a := control.NewActuator(nop, 2048)
	assert.Equal(t, uint16(2048), a.Code())

	a.Command(2148, 0.5)
	assert.Equal(t, uint16(2148), a.Raw())
	assert.InDelta(t, 2098.0, a.Filtered(), 1e-12)
	require.NoError(t, a.Write())
	assert.Equal(t, uint16(2098), nop.Last())

	a.Command(2148, 0.5)
	assert.InDelta(t, 2123.0, a.Filtered(), 1e-12)

	// Nf of zero passes the raw command straight through.
	a.Command(10, 0)
	assert.Equal(t, uint16(10), a.Code())
}

func TestActuatorForce(t *testing.T) {
	nop := &dac.Nop{}
	a := control.NewActuator(nop, 2048)

	a.Force(4095)
	require.NoError(t, a.Write())
	assert.Equal(t, uint16(4095), nop.Last())
	assert.Equal(t, uint16(4095), a.Raw())

	writes, failures := a.Stats()
	assert.Equal(t, uint64(1), writes)
	assert.Equal(t, uint64(0), failures)
}

func TestActuatorWriteFailureKeepsState(t *testing.T) {
	f := &failingDAC{}
	a := control.NewActuator(f, 2048)
	a.Command(3000, 0.5)

	err := a.Write()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, dac.ErrWriteFailed))
	assert.InDelta(t, 2524.0, a.Filtered(), 1e-12)

	_ = a.Write()
	assert.Equal(t, 2, f.calls)
	_, failures := a.Stats()
	assert.Equal(t, uint64(2), failures)
}
