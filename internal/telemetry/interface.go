package telemetry

import "codeberg.org/mutker/ocxoctl/internal/discipline"

// Publisher exports snapshots to one destination. Publish must not block.
type Publisher interface {
	Publish(s discipline.Snapshot)
	Close() error
}

// Payload is the JSON document published per sample.
type Payload struct {
	Timestamp        int64      `json:"timestamp"`
	Frequency        float64    `json:"frequency"`
	Error            float64    `json:"error"`
	Integral         float64    `json:"integral"`
	Derivative       float64    `json:"derivative"`
	VCO              VCOState   `json:"vco"`
	Phase            string     `json:"phase"`
	Calibrating      bool       `json:"calibrating"`
	ReferencePresent bool       `json:"reference_present"`
	Gains            GainState  `json:"gains"`
	Range            [2]float64 `json:"range"`
}

type VCOState struct {
	Command float64 `json:"command"`
	Raw     uint16  `json:"raw"`
	Code    uint16  `json:"code"`
	Held    bool    `json:"held"`

	// WriteFailures counts failed DAC writes since start.
	WriteFailures uint64 `json:"write_failures"`
}

type GainState struct {
	Kp     float64 `json:"kp"`
	Ki     float64 `json:"ki"`
	Kd     float64 `json:"kd"`
	Nf     float64 `json:"nf"`
	Df     float64 `json:"df"`
	Offset float64 `json:"offset"`
}

// NewPayload flattens a snapshot for publishing.
func NewPayload(s discipline.Snapshot) Payload {
	return Payload{
		Timestamp:  s.Timestamp.UnixMilli(),
		Frequency:  s.Frequency,
		Error:      s.Error,
		Integral:   s.Integral,
		Derivative: s.Derivative,
		VCO: VCOState{
			Command: s.VCO,
			Raw:     s.Raw,
			Code:    s.Code,
			Held:    s.Held,

			WriteFailures: s.WriteFailures,
		},
		Phase:            s.Phase.String(),
		Calibrating:      s.Calibrating,
		ReferencePresent: s.ReferencePresent,
		Gains: GainState{
			Kp:     s.Gains.Kp,
			Ki:     s.Gains.Ki,
			Kd:     s.Gains.Kd,
			Nf:     s.Gains.Nf,
			Df:     s.Gains.Df,
			Offset: s.Gains.Offset,
		},
		Range: [2]float64{s.Range.Min, s.Range.Max},
	}
}
