package config

import (
	"io"
	"os"
	"strings"

	"codeberg.org/mutker/ocxoctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigPath = "/etc/ocxoctl.toml"
	DefaultEnvPrefix  = "OCXOCTL"
	DefaultLogLevel   = "info"

	SourceSim = "sim"
	SourcePPS = "pps"
)

type Config struct {
	LogLevel    string            `mapstructure:"log_level"`
	IntervalMS  int               `mapstructure:"interval_ms"`
	Monitor     bool              `mapstructure:"monitor"`
	Timer       TimerConfig       `mapstructure:"timer"`
	Control     ControlConfig     `mapstructure:"control"`
	Buffers     BufferConfig      `mapstructure:"buffers"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Capture     CaptureConfig     `mapstructure:"capture"`
	DAC         DACConfig         `mapstructure:"dac"`
	Command     CommandConfig     `mapstructure:"command"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Sim         SimConfig         `mapstructure:"sim"`

	// ConfigFile is the file that was read, empty when none existed.
	ConfigFile  string `mapstructure:"-"`
	ShowVersion bool   `mapstructure:"-"`
}

type TimerConfig struct {
	TickFrequency      float64 `mapstructure:"tick_frequency"`
	ReferenceFrequency float64 `mapstructure:"reference_frequency"`
	CounterBits        int     `mapstructure:"counter_bits"`
}

type ControlConfig struct {
	Mode         string  `mapstructure:"mode"`
	Edge         string  `mapstructure:"edge"`
	Kp           float64 `mapstructure:"kp"`
	Ki           float64 `mapstructure:"ki"`
	Kd           float64 `mapstructure:"kd"`
	Nf           float64 `mapstructure:"nf"`
	Df           float64 `mapstructure:"df"`
	AntiWindup   float64 `mapstructure:"antiwindup"`
	Offset       float64 `mapstructure:"offset"`
	InitialVCO   int     `mapstructure:"initial_vco"`
	MinFrequency float64 `mapstructure:"min_frequency"`
	MaxFrequency float64 `mapstructure:"max_frequency"`
	StepSize     int     `mapstructure:"step_size"`
	Hysteresis   float64 `mapstructure:"hysteresis"`
}

type BufferConfig struct {
	EdgeCapacity        int `mapstructure:"edge_capacity"`
	FrequencyCapacity   int `mapstructure:"frequency_capacity"`
	CalibrationCapacity int `mapstructure:"calibration_capacity"`
}

type CalibrationConfig struct {
	MeasureCount       int    `mapstructure:"measure_count"`
	StabilizationCount int    `mapstructure:"stabilization_count"`
	OnStart            bool   `mapstructure:"on_start"`
	Store              string `mapstructure:"store"`
}

type CaptureConfig struct {
	Source          string `mapstructure:"source"`
	ReferenceDevice string `mapstructure:"reference_device"`
	OCXODevice      string `mapstructure:"ocxo_device"`
}

type DACConfig struct {
	Driver  string `mapstructure:"driver"`
	Bus     string `mapstructure:"bus"`
	Address int    `mapstructure:"address"`
}

type CommandConfig struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
}

type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DBPath       string `mapstructure:"db_path"`
	BatchSize    int    `mapstructure:"batch_size"`
	BatchTimeout int    `mapstructure:"batch_timeout"`
}

type TelemetryConfig struct {
	Listen     string `mapstructure:"listen"`
	MQTTBroker string `mapstructure:"mqtt_broker"`
	MQTTTopic  string `mapstructure:"mqtt_topic"`
}

type SimConfig struct {
	Speedup      float64 `mapstructure:"speedup"`
	OCXOOffset   float64 `mapstructure:"ocxo_offset_hz"`
	MinFrequency float64 `mapstructure:"min_frequency"`
	MaxFrequency float64 `mapstructure:"max_frequency"`
}

var defaults = map[string]any{
	"log_level":   DefaultLogLevel,
	"interval_ms": 10,
	"monitor":     false,

	"timer.tick_frequency":      170e6,
	"timer.reference_frequency": 1.0,
	"timer.counter_bits":        32,

	"control.mode":          "pid",
	"control.edge":          "rising",
	"control.kp":            0.05,
	"control.ki":            0.002,
	"control.kd":            0.001,
	"control.nf":            0.1,
	"control.df":            0.1,
	"control.antiwindup":    0.0001,
	"control.offset":        0.0,
	"control.initial_vco":   2048,
	"control.min_frequency": -7.0,
	"control.max_frequency": 7.0,
	"control.step_size":     10,
	"control.hysteresis":    0.0,

	"buffers.edge_capacity":        4,
	"buffers.frequency_capacity":   128,
	"buffers.calibration_capacity": 5,

	"calibration.measure_count":       5,
	"calibration.stabilization_count": 5,
	"calibration.on_start":            false,
	"calibration.store":               "",

	"capture.source":           SourceSim,
	"capture.reference_device": "/dev/pps0",
	"capture.ocxo_device":      "/dev/pps1",

	"dac.driver":  "none",
	"dac.bus":     "",
	"dac.address": 0x63,

	"command.port": "",
	"command.baud": 115200,

	"metrics.enabled":       false,
	"metrics.db_path":       "/var/lib/ocxoctl/metrics.db",
	"metrics.batch_size":    100,
	"metrics.batch_timeout": 5,

	"telemetry.listen":      "",
	"telemetry.mqtt_broker": "",
	"telemetry.mqtt_topic":  "ocxoctl",

	"sim.speedup":        100.0,
	"sim.ocxo_offset_hz": 3.0,
	"sim.min_frequency":  -7.0,
	"sim.max_frequency":  7.0,
}

// flag name -> config key
var flagKeys = map[string]string{
	"log-level":        "log_level",
	"interval":         "interval_ms",
	"monitor":          "monitor",
	"mode":             "control.mode",
	"source":           "capture.source",
	"dac":              "dac.driver",
	"dac-bus":          "dac.bus",
	"command-port":     "command.port",
	"calibrate":        "calibration.on_start",
	"calibration-file": "calibration.store",
	"metrics":          "metrics.enabled",
	"metrics-db":       "metrics.db_path",
	"listen":           "telemetry.listen",
	"mqtt-broker":      "telemetry.mqtt_broker",
}

func newFlagSet(out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("ocxoctl", pflag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringP("config", "c", "", "Configuration file (default "+DefaultConfigPath+")")
	fs.Bool("version", false, "Print the version and exit")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warning, error")
	fs.Int("interval", 10, "Minimum control tick interval in milliseconds")
	fs.Bool("monitor", false, "Compute corrections without writing the DAC")
	fs.String("mode", "pid", "Control mode: pid, step")
	fs.String("source", SourceSim, "Edge source: sim, pps")
	fs.String("dac", "none", "DAC driver: none, mcp4726")
	fs.String("dac-bus", "", "I2C bus name for the DAC")
	fs.String("command-port", "", "Serial port for the command channel")
	fs.Bool("calibrate", false, "Calibrate the VCO range at start")
	fs.String("calibration-file", "", "File holding the calibrated VCO range")
	fs.Bool("metrics", false, "Record tick history to sqlite")
	fs.String("metrics-db", "", "Metrics database path")
	fs.String("listen", "", "Address for the Prometheus /metrics endpoint")
	fs.String("mqtt-broker", "", "MQTT broker URL for telemetry")

	return fs
}

// Load reads defaults, the TOML config file, environment and args in
// increasing order of precedence.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	var o options
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := newFlagSet(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(DefaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	path := configPath(fs, o)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	readFile := true
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
		readFile = false
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}
	if readFile {
		cfg.ConfigFile = path
	}
	cfg.ShowVersion, _ = fs.GetBool("version")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func configPath(fs *pflag.FlagSet, o options) string {
	if p, _ := fs.GetString("config"); p != "" {
		return p
	}
	if o.configPath != "" {
		return o.configPath
	}
	if p := os.Getenv(DefaultEnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	return DefaultConfigPath
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.IntervalMS <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.IntervalMS)
	}

	if c.Timer.CounterBits != 16 && c.Timer.CounterBits != 32 {
		return errFactory.WithData(ErrInvalidCounterBits, c.Timer.CounterBits)
	}
	if c.Timer.TickFrequency <= 0 || c.Timer.ReferenceFrequency <= 0 {
		return errFactory.WithData(ErrInvalidTimebase, c.Timer)
	}

	ctl := c.Control
	if ctl.Nf < 0 || ctl.Nf >= 1 || ctl.Df < 0 || ctl.Df >= 1 {
		return errFactory.WithData(ErrInvalidFilter, struct{ Nf, Df float64 }{ctl.Nf, ctl.Df})
	}
	if ctl.AntiWindup <= 0 {
		return errFactory.WithData(ErrInvalidAntiWindup, ctl.AntiWindup)
	}
	if ctl.InitialVCO < 0 || ctl.InitialVCO > 4095 {
		return errFactory.WithData(ErrInvalidVCO, ctl.InitialVCO)
	}
	if ctl.StepSize < 0 || ctl.StepSize > 4095 {
		return errFactory.WithData(ErrInvalidVCO, ctl.StepSize)
	}
	if ctl.MinFrequency == ctl.MaxFrequency {
		return errFactory.WithData(ErrInvalidRange, struct{ Min, Max float64 }{ctl.MinFrequency, ctl.MaxFrequency})
	}
	if c.Sim.MinFrequency == c.Sim.MaxFrequency {
		return errFactory.WithData(ErrInvalidRange, struct{ Min, Max float64 }{c.Sim.MinFrequency, c.Sim.MaxFrequency})
	}
	switch ctl.Mode {
	case "pid", "step":
	default:
		return errFactory.WithData(ErrInvalidMode, ctl.Mode)
	}
	switch ctl.Edge {
	case "rising", "falling":
	default:
		return errFactory.WithData(ErrInvalidEdge, ctl.Edge)
	}

	b := c.Buffers
	if b.EdgeCapacity < 1 || b.FrequencyCapacity < 2 || b.CalibrationCapacity < 2 {
		return errFactory.WithData(ErrInvalidCapacity, b)
	}
	if c.Calibration.MeasureCount < 1 || c.Calibration.StabilizationCount < 0 {
		return errFactory.WithData(ErrInvalidCalibration, c.Calibration)
	}

	switch c.Capture.Source {
	case SourceSim, SourcePPS:
	default:
		return errFactory.WithData(ErrInvalidSource, c.Capture.Source)
	}
	switch c.DAC.Driver {
	case "none", "mcp4726":
	default:
		return errFactory.WithData(ErrInvalidDriver, c.DAC.Driver)
	}

	return nil
}
