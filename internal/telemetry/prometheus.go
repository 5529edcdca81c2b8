package telemetry

import (
	"net/http"

	"codeberg.org/mutker/ocxoctl/internal/discipline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ocxoctl"

// Exporter mirrors the latest snapshot into Prometheus gauges on its own registry.
type Exporter struct {
	registry *prometheus.Registry

	frequency        prometheus.Gauge
	loopError        prometheus.Gauge
	integral         prometheus.Gauge
	derivative       prometheus.Gauge
	vcoCommand       prometheus.Gauge
	vcoRaw           prometheus.Gauge
	vcoCode          prometheus.Gauge
	held             prometheus.Gauge
	calibrating      prometheus.Gauge
	referencePresent prometheus.Gauge
	lastSample       prometheus.Gauge
	samples          prometheus.Counter
	gains            *prometheus.GaugeVec // term label
	tuningRange      *prometheus.GaugeVec // bound label
	dacWrites        *prometheus.GaugeVec // result label
}

func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}

	return &Exporter{
		registry:         reg,
		frequency:        gauge("frequency_ratio", "Measured OCXO frequency relative to the reference"),
		loopError:        gauge("loop_error", "Reference frequency minus measured frequency"),
		integral:         gauge("loop_integral", "Clamped integral term"),
		derivative:       gauge("loop_derivative", "Filtered derivative term"),
		vcoCommand:       gauge("vco_command", "Unclamped VCO command in DAC codes"),
		vcoRaw:           gauge("vco_raw", "Raw DAC code before filtering"),
		vcoCode:          gauge("vco_code", "Filtered DAC code"),
		held:             gauge("vco_held", "1 when the last sample fell inside the hysteresis band"),
		calibrating:      gauge("calibrating", "1 while a calibration pass runs"),
		referencePresent: gauge("reference_present", "1 while reference samples arrive"),
		lastSample:       gauge("last_sample_timestamp_seconds", "Unix time of the latest sample"),
		samples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Samples exported since start",
		}),
		gains: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gain",
			Help:      "Current controller parameters",
		}, []string{"term"}),
		tuningRange: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tuning_range_hz",
			Help:      "Calibrated VCO tuning range",
		}, []string{"bound"}),
		dacWrites: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dac_writes",
			Help:      "DAC writes since start by result",
		}, []string{"result"}),
	}
}

func (e *Exporter) Publish(s discipline.Snapshot) {
	e.frequency.Set(s.Frequency)
	e.loopError.Set(s.Error)
	e.integral.Set(s.Integral)
	e.derivative.Set(s.Derivative)
	e.vcoCommand.Set(s.VCO)
	e.vcoRaw.Set(float64(s.Raw))
	e.vcoCode.Set(float64(s.Code))
	e.held.Set(boolGauge(s.Held))
	e.calibrating.Set(boolGauge(s.Calibrating))
	e.referencePresent.Set(boolGauge(s.ReferencePresent))
	e.lastSample.Set(float64(s.Timestamp.UnixNano()) / 1e9)
	e.samples.Inc()

	e.gains.WithLabelValues("kp").Set(s.Gains.Kp)
	e.gains.WithLabelValues("ki").Set(s.Gains.Ki)
	e.gains.WithLabelValues("kd").Set(s.Gains.Kd)
	e.gains.WithLabelValues("nf").Set(s.Gains.Nf)
	e.gains.WithLabelValues("df").Set(s.Gains.Df)
	e.gains.WithLabelValues("offset").Set(s.Gains.Offset)

	e.tuningRange.WithLabelValues("min").Set(s.Range.Min)
	e.tuningRange.WithLabelValues("max").Set(s.Range.Max)

	e.dacWrites.WithLabelValues("ok").Set(float64(s.Writes))
	e.dacWrites.WithLabelValues("failed").Set(float64(s.WriteFailures))
}

func (*Exporter) Close() error { return nil }

// Handler serves the exporter's registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
