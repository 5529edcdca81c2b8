package metrics

import (
	"context"
	"time"
)

// MetricsCollector defines the core domain interface
type MetricsCollector interface {
	Record(ctx context.Context, sample *Sample) error
	Close() error
}

// MetricsRepository defines the interface for sample storage
type MetricsRepository interface {
	Record(sample *Sample) error
	Recent(limit int) ([]Sample, error)
	Close() error
}

// Sample is one stored discipline tick
type Sample struct {
	Timestamp time.Time
	Loop      LoopMetrics
	VCO       VCOMetrics
	State     StateMetrics
}

// Domain value objects
type LoopMetrics struct {
	Frequency  float64
	Error      float64
	Integral   float64
	Derivative float64
}

type VCOMetrics struct {
	Command float64
	Raw     int
	Code    int
}

type StateMetrics struct {
	Phase            string
	Calibrating      bool
	ReferencePresent bool
	Held             bool
}
