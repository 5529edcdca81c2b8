package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/ocxoctl/internal/config"
	"codeberg.org/mutker/ocxoctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ocxoctl.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("OCXOCTL_CONFIG", path)
	return path
}

// noConfig points the loader at a file that does not exist.
func noConfig(t *testing.T) {
	t.Helper()
	t.Setenv("OCXOCTL_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"
interval_ms = 20
monitor = true

[timer]
tick_frequency = 10e6
counter_bits = 16

[control]
mode = "step"
edge = "falling"
kp = 0.1
min_frequency = -4
max_frequency = 10
hysteresis = 0.5

[calibration]
on_start = true
store = "/var/lib/ocxoctl/calibration.yaml"

[capture]
source = "pps"
ocxo_device = "/dev/pps3"

[dac]
driver = "mcp4726"
bus = "1"
address = 0x60

[metrics]
enabled = true
db_path = "/path/to/metrics.db"

[telemetry]
listen = ":9105"
mqtt_broker = "tcp://broker:1883"
`)

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 20, cfg.IntervalMS)
	assert.True(t, cfg.Monitor)
	assert.InDelta(t, 10e6, cfg.Timer.TickFrequency, 0)
	assert.InDelta(t, 1.0, cfg.Timer.ReferenceFrequency, 0, "unset keys keep defaults")
	assert.Equal(t, 16, cfg.Timer.CounterBits)
	assert.Equal(t, "step", cfg.Control.Mode)
	assert.Equal(t, "falling", cfg.Control.Edge)
	assert.InDelta(t, 0.1, cfg.Control.Kp, 0)
	assert.InDelta(t, 0.002, cfg.Control.Ki, 0)
	assert.InDelta(t, -4, cfg.Control.MinFrequency, 0)
	assert.InDelta(t, 10, cfg.Control.MaxFrequency, 0)
	assert.InDelta(t, 0.5, cfg.Control.Hysteresis, 0)
	assert.True(t, cfg.Calibration.OnStart)
	assert.Equal(t, "/var/lib/ocxoctl/calibration.yaml", cfg.Calibration.Store)
	assert.Equal(t, "pps", cfg.Capture.Source)
	assert.Equal(t, "/dev/pps0", cfg.Capture.ReferenceDevice)
	assert.Equal(t, "/dev/pps3", cfg.Capture.OCXODevice)
	assert.Equal(t, "mcp4726", cfg.DAC.Driver)
	assert.Equal(t, "1", cfg.DAC.Bus)
	assert.Equal(t, 0x60, cfg.DAC.Address)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/path/to/metrics.db", cfg.Metrics.DBPath)
	assert.Equal(t, ":9105", cfg.Telemetry.Listen)
	assert.Equal(t, "tcp://broker:1883", cfg.Telemetry.MQTTBroker)
	assert.Equal(t, "ocxoctl", cfg.Telemetry.MQTTTopic)
}

func TestLoadDefaults(t *testing.T) {
	noConfig(t)

	cfg, err := config.Load(nil)
	require.NoError(t, err, "a missing config file is not an error")

	assert.Empty(t, cfg.ConfigFile)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, 10, cfg.IntervalMS)
	assert.False(t, cfg.Monitor)
	assert.InDelta(t, 170e6, cfg.Timer.TickFrequency, 0)
	assert.Equal(t, 32, cfg.Timer.CounterBits)
	assert.Equal(t, "pid", cfg.Control.Mode)
	assert.Equal(t, "rising", cfg.Control.Edge)
	assert.InDelta(t, 0.05, cfg.Control.Kp, 0)
	assert.InDelta(t, 0.002, cfg.Control.Ki, 0)
	assert.InDelta(t, 0.001, cfg.Control.Kd, 0)
	assert.InDelta(t, 0.1, cfg.Control.Nf, 0)
	assert.InDelta(t, 0.1, cfg.Control.Df, 0)
	assert.InDelta(t, 0.0001, cfg.Control.AntiWindup, 0)
	assert.Equal(t, 2048, cfg.Control.InitialVCO)
	assert.InDelta(t, -7, cfg.Control.MinFrequency, 0)
	assert.InDelta(t, 7, cfg.Control.MaxFrequency, 0)
	assert.Equal(t, 10, cfg.Control.StepSize)
	assert.Equal(t, 4, cfg.Buffers.EdgeCapacity)
	assert.Equal(t, 128, cfg.Buffers.FrequencyCapacity)
	assert.Equal(t, 5, cfg.Buffers.CalibrationCapacity)
	assert.Equal(t, 5, cfg.Calibration.MeasureCount)
	assert.Equal(t, 5, cfg.Calibration.StabilizationCount)
	assert.Equal(t, config.SourceSim, cfg.Capture.Source)
	assert.Equal(t, "none", cfg.DAC.Driver)
	assert.Equal(t, 0x63, cfg.DAC.Address)
	assert.Equal(t, 115200, cfg.Command.Baud)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/var/lib/ocxoctl/metrics.db", cfg.Metrics.DBPath)
	assert.Equal(t, 100, cfg.Metrics.BatchSize)
	assert.InDelta(t, 100, cfg.Sim.Speedup, 0)
	assert.InDelta(t, 3, cfg.Sim.OCXOOffset, 0)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	writeConfig(t, `
This is not a valid TOML file
`)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	writeConfig(t, `
log_level = "invalid"
`)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel), "got %v", err)
	assert.Contains(t, err.Error(), "Invalid log level")
}

func TestPrecedence(t *testing.T) {
	writeConfig(t, `
log_level = "error"

[control]
kp = 0.2
mode = "step"
`)
	t.Setenv("OCXOCTL_CONTROL_KP", "0.3")
	t.Setenv("OCXOCTL_LOG_LEVEL", "warning")

	cfg, err := config.Load([]string{"--log-level", "debug"})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel, "flags override env")
	assert.InDelta(t, 0.3, cfg.Control.Kp, 0, "env overrides the file")
	assert.Equal(t, "step", cfg.Control.Mode)
}

func TestFlags(t *testing.T) {
	noConfig(t)

	cfg, err := config.Load([]string{
		"--monitor", "--calibrate", "--source", "pps", "--dac", "mcp4726",
		"--listen", ":9105", "--interval", "50", "--version",
	})
	require.NoError(t, err)

	assert.True(t, cfg.Monitor)
	assert.True(t, cfg.Calibration.OnStart)
	assert.Equal(t, "pps", cfg.Capture.Source)
	assert.Equal(t, "mcp4726", cfg.DAC.Driver)
	assert.Equal(t, ":9105", cfg.Telemetry.Listen)
	assert.Equal(t, 50, cfg.IntervalMS)
	assert.True(t, cfg.ShowVersion)
}

func TestConfigFileFlag(t *testing.T) {
	t.Setenv("OCXOCTL_CONFIG", "")
	path := filepath.Join(t.TempDir(), "alt.toml")
	require.NoError(t, os.WriteFile(path, []byte("interval_ms = 30\n"), 0o600))

	cfg, err := config.Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.IntervalMS)

	cfg, err = config.Load(nil, config.WithConfigFile(path))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.IntervalMS)
}

func TestHelpFlag(t *testing.T) {
	noConfig(t)

	_, err := config.Load([]string{"--help"})
	require.Error(t, err)
	assert.ErrorIs(t, err, pflag.ErrHelp)
}

func TestValidate(t *testing.T) {
	noConfig(t)

	tests := []struct {
		name   string
		mutate func(*config.Config)
		code   errors.ErrorCode
	}{
		{"interval", func(c *config.Config) { c.IntervalMS = 0 }, errors.ErrInvalidInterval},
		{"counter bits", func(c *config.Config) { c.Timer.CounterBits = 24 }, config.ErrInvalidCounterBits},
		{"timebase", func(c *config.Config) { c.Timer.ReferenceFrequency = 0 }, config.ErrInvalidTimebase},
		{"nf", func(c *config.Config) { c.Control.Nf = 1 }, config.ErrInvalidFilter},
		{"df", func(c *config.Config) { c.Control.Df = -0.1 }, config.ErrInvalidFilter},
		{"antiwindup", func(c *config.Config) { c.Control.AntiWindup = 0 }, config.ErrInvalidAntiWindup},
		{"initial vco", func(c *config.Config) { c.Control.InitialVCO = 4096 }, config.ErrInvalidVCO},
		{"range", func(c *config.Config) { c.Control.MaxFrequency = c.Control.MinFrequency }, config.ErrInvalidRange},
		{"mode", func(c *config.Config) { c.Control.Mode = "bang-bang" }, config.ErrInvalidMode},
		{"edge", func(c *config.Config) { c.Control.Edge = "both" }, config.ErrInvalidEdge},
		{"frequency capacity", func(c *config.Config) { c.Buffers.FrequencyCapacity = 1 }, config.ErrInvalidCapacity},
		{"calibration capacity", func(c *config.Config) { c.Buffers.CalibrationCapacity = 1 }, config.ErrInvalidCapacity},
		{"edge capacity", func(c *config.Config) { c.Buffers.EdgeCapacity = 0 }, config.ErrInvalidCapacity},
		{"measure count", func(c *config.Config) { c.Calibration.MeasureCount = 0 }, config.ErrInvalidCalibration},
		{"source", func(c *config.Config) { c.Capture.Source = "gpio" }, config.ErrInvalidSource},
		{"driver", func(c *config.Config) { c.DAC.Driver = "ad5693" }, config.ErrInvalidDriver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(nil)
			require.NoError(t, err)
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}
