package command_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"codeberg.org/mutker/ocxoctl/internal/command"
	"codeberg.org/mutker/ocxoctl/internal/control"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	params      map[string]float64
	calibrating bool
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{params: map[string]float64{}}
}

func (f *fakeHandler) SetParameter(name string, v float64) (float64, bool) {
	if name == command.ParamNf && (v < 0 || v >= 1) {
		return 0, false
	}
	f.params[name] = v
	return v, true
}

func (f *fakeHandler) StartCalibration() bool {
	if f.calibrating {
		return false
	}
	f.calibrating = true
	return true
}

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
		want command.Command
	}{
		{"Kp=0.5", true, command.Command{Kind: command.SetParameter, Name: "Kp", Value: 0.5}},
		{"Ki=-1e-3\r\n", true, command.Command{Kind: command.SetParameter, Name: "Ki", Value: -1e-3}},
		{"Of=12", true, command.Command{Kind: command.SetParameter, Name: "Of", Value: 12}},
		{"Df=0.25", true, command.Command{Kind: command.SetParameter, Name: "Df", Value: 0.25}},
		{"CONN", true, command.Command{Kind: command.Connect}},
		{"DISC\n", true, command.Command{Kind: command.Disconnect}},
		{"CALB", true, command.Command{Kind: command.Calibrate}},
		{"Kx=1", false, command.Command{}},
		{"Kp=", false, command.Command{}},
		{"Kp=fast", false, command.Command{}},
		{"K1=3", false, command.Command{}},
		{"Kpp=3", false, command.Command{}},
		{"", false, command.Command{}},
		{"CONNECT", false, command.Command{}},
	}

	for _, tt := range tests {
		got, ok := command.Parse(tt.line)
		assert.Equal(t, tt.ok, ok, "line %q", tt.line)
		assert.Equal(t, tt.want, got, "line %q", tt.line)
	}
}

func TestChannelGatesOutputOnConnect(t *testing.T) {
	var out bytes.Buffer
	h := newFakeHandler()
	c := command.New(&out, "v1.2.3", 0)

	assert.True(t, c.Handle("Kp=0.5", h))
	assert.Equal(t, 0.5, h.params["Kp"])
	assert.Empty(t, out.String(), "acks are suppressed before CONN")

	assert.True(t, c.Handle("CONN", h))
	assert.True(t, c.Connected())
	assert.Equal(t, "### ocxoctl v1.2.3 ###\n", out.String())

	out.Reset()
	c.Handle("Kd=0.001", h)
	assert.Equal(t, "New Kd = 0.0010000000\n", out.String())

	out.Reset()
	c.Handle("DISC", h)
	c.Handle("Ki=2", h)
	c.EmitFrequency(1)
	assert.False(t, c.Connected())
	assert.Empty(t, out.String())
	assert.Equal(t, 2.0, h.params["Ki"])
}

func TestChannelDropsMalformedAndRejected(t *testing.T) {
	var out bytes.Buffer
	h := newFakeHandler()
	c := command.New(&out, "dev", 0)
	c.Handle("CONN", h)
	out.Reset()

	assert.False(t, c.Handle("garbage", h))
	assert.False(t, c.Handle("Nf=1.5", h))
	assert.Empty(t, out.String())
	assert.NotContains(t, h.params, "Nf")
}

func TestChannelCalibrate(t *testing.T) {
	h := newFakeHandler()
	c := command.New(io.Discard, "dev", 0)

	assert.True(t, c.Handle("CALB", h))
	assert.True(t, h.calibrating)
	assert.False(t, c.Handle("CALB", h))
}

func TestChannelTelemetryFormat(t *testing.T) {
	var out bytes.Buffer
	c := command.New(&out, "dev", 0)
	c.Handle("CONN", newFakeHandler())
	out.Reset()

	c.EmitFrequency(0.99999999)
	c.EmitControl(control.Output{
		Error:      1e-8,
		Integral:   -2e-9,
		Derivative: 0.5,
		VCO:        2047.5,
		Code:       2047,
	}, control.Gains{Kp: 0.05, Ki: 0.002, Kd: 0.001, Offset: 0.25})
	c.EmitCalibration(control.Range{Min: -6.5, Max: 7.125})

	want := "F=0.999999990000\n" +
		"VCO=2047.500000000000, 2047\n" +
		"e=0.000000010000, Kp=0.050000000000\n" +
		"i=-0.000000002000, Ki=0.002000000000\n" +
		"d=0.500000000000, Kd=0.001000000000\n" +
		"Of=0.250000000000\n" +
		"Calibration [-6.500000000000, 7.125000000000]\n"
	assert.Equal(t, want, out.String())
}

func TestChannelQueueAndPoll(t *testing.T) {
	h := newFakeHandler()
	c := command.New(io.Discard, "dev", 2)

	assert.True(t, c.Submit("Kp=1"))
	assert.True(t, c.Submit("bogus"))
	assert.False(t, c.Submit("Ki=1"))
	assert.Equal(t, uint64(1), c.Dropped())

	assert.Equal(t, 1, c.Poll(h))
	assert.Equal(t, 0, c.Poll(h))
	assert.Equal(t, 1.0, h.params["Kp"])
	assert.NotContains(t, h.params, "Ki")
}

func TestServeSplitsLines(t *testing.T) {
	h := newFakeHandler()
	c := command.New(io.Discard, "dev", 8)

	in := io.NopCloser(strings.NewReader("Kp=0.1\r\nKi=0.2\nCALB\n"))
	require.NoError(t, c.Serve(context.Background(), in))

	assert.Equal(t, 3, c.Poll(h))
	assert.Equal(t, 0.1, h.params["Kp"])
	assert.Equal(t, 0.2, h.params["Ki"])
	assert.True(t, h.calibrating)
}

func TestServeStopsOnCancel(t *testing.T) {
	c := command.New(io.Discard, "dev", 8)
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx, r) }()

	cancel()
	assert.NoError(t, <-done)
}
