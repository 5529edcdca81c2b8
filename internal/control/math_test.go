package control_test

import (
	"testing"

	"codeberg.org/mutker/ocxoctl/internal/control"
	"github.com/stretchr/testify/assert"
)

func TestLerpEndpoints(t *testing.T) {
	tests := []struct {
		x0, y0, x1, y1 float64
	}{
		{-7, 0, 7, 4095},
		{-6.9999997, 0, 7.0000123, 4095},
		{0.1, 0.3, 0.7, -12.25},
		{5, 1, -3, 9},
		{1e-9, 1e9, 3e-9, -1e9},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.y0, control.Lerp(tt.x0, tt.y0, tt.x1, tt.y1, tt.x0))
		assert.Equal(t, tt.y1, control.Lerp(tt.x0, tt.y0, tt.x1, tt.y1, tt.x1))
	}
}

func TestLerpInterpolates(t *testing.T) {
	assert.InDelta(t, 2047.5, control.Lerp(-7, 0, 7, 4095, 0), 1e-9)
	assert.InDelta(t, 5.0, control.Lerp(0, 0, 10, 10, 5), 1e-12)
	assert.InDelta(t, -4095/14.0, control.Lerp(-7, 0, 7, 4095, -8), 1e-9)
}
