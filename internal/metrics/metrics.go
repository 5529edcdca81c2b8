package metrics

import (
	"context"
	"sync"

	"codeberg.org/mutker/ocxoctl/internal/discipline"
	"codeberg.org/mutker/ocxoctl/internal/errors"
	"codeberg.org/mutker/ocxoctl/internal/logger"
)

type service struct {
	repo MetricsRepository
	cfg  Config
}

// No-op implementation
type noopMetricsCollector struct{}

func NewService(cfg Config) (MetricsCollector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	// If metrics is disabled, return a no-op collector
	if !cfg.Enabled {
		logger.Debug().Msg("Metrics collection disabled, using no-op collector")
		return &noopMetricsCollector{}, nil
	}

	repo, err := NewRepository(cfg, logger.For("metrics"))
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to create metrics repository")
		return nil, err
	}

	logger.Debug().
		Str("db_path", cfg.DBPath).
		Bool("enabled", cfg.Enabled).
		Msg("Metrics service initialized successfully")

	logLastSample(repo)

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

func (s *service) Record(ctx context.Context, sample *Sample) error {
	errFactory := errors.New()

	if sample == nil {
		return errFactory.New(ErrInvalidMetrics)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(sample); err != nil {
			return errFactory.Wrap(ErrMetricsCollection, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	errFactory := errors.New()

	if err := s.repo.Close(); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}
	return nil
}

// No-op implementation
func (*noopMetricsCollector) Record(_ context.Context, _ *Sample) error {
	return nil
}

func (*noopMetricsCollector) Close() error {
	return nil
}

// FromSnapshot converts an engine snapshot into a stored sample.
func FromSnapshot(s discipline.Snapshot) *Sample {
	return &Sample{
		Timestamp: s.Timestamp,
		Loop: LoopMetrics{
			Frequency:  s.Frequency,
			Error:      s.Error,
			Integral:   s.Integral,
			Derivative: s.Derivative,
		},
		VCO: VCOMetrics{
			Command: s.VCO,
			Raw:     int(s.Raw),
			Code:    int(s.Code),
		},
		State: StateMetrics{
			Phase:            s.Phase.String(),
			Calibrating:      s.Calibrating,
			ReferencePresent: s.ReferencePresent,
			Held:             s.Held,
		},
	}
}

// Recorder hands engine snapshots to a collector from its own goroutine, so
// the control loop never waits for the database.
type Recorder struct {
	collector MetricsCollector
	queue     chan *Sample
	wg        sync.WaitGroup
	once      sync.Once
	logger    logger.Logger
}

func NewRecorder(c MetricsCollector, queue int) *Recorder {
	if queue < 1 {
		queue = defaultQueue
	}
	r := &Recorder{
		collector: c,
		queue:     make(chan *Sample, queue),
		logger:    logger.For("metrics"),
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// Record implements discipline.Recorder. Samples are dropped while the queue is full.
func (r *Recorder) Record(s discipline.Snapshot) {
	select {
	case r.queue <- FromSnapshot(s):
	default:
		r.logger.Warn().Msg("Metrics queue full, dropping sample")
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for sample := range r.queue {
		if err := r.collector.Record(context.Background(), sample); err != nil {
			r.logger.Error().Err(err).Msg("Failed to record sample")
		}
	}
}

// Close drains the queue and closes the collector.
func (r *Recorder) Close() error {
	r.once.Do(func() { close(r.queue) })
	r.wg.Wait()
	return r.collector.Close()
}

// logLastSample reports where the stored history left off.
func logLastSample(repo MetricsRepository) {
	last, err := repo.Recent(1)
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("Failed to read last stored sample")
	case len(last) == 0:
		logger.Debug().Msg("No stored samples")
	default:
		logger.Info().
			Time("timestamp", last[0].Timestamp).
			Float64("frequency", last[0].Loop.Frequency).
			Int("vco_code", last[0].VCO.Code).
			Msg("Resuming after last stored sample")
	}
}
