package telemetry

import (
	"context"
	"net/http"
	"time"

	"codeberg.org/mutker/ocxoctl/internal/discipline"
	"codeberg.org/mutker/ocxoctl/internal/errors"
	"codeberg.org/mutker/ocxoctl/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Service fans snapshots out to the Prometheus exporter and, when a broker is
// configured, the MQTT publisher. It implements discipline.Recorder.
type Service struct {
	cfg        Config
	exporter   *Exporter
	publishers []Publisher
	logger     logger.Logger
}

func NewService(cfg Config) (*Service, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	s := &Service{
		cfg:      cfg,
		exporter: NewExporter(),
		logger:   logger.For("telemetry"),
	}
	s.publishers = append(s.publishers, s.exporter)

	if cfg.MQTTBroker != "" {
		p, err := NewMQTTPublisher(cfg)
		if err != nil {
			return nil, err
		}
		s.publishers = append(s.publishers, p)
	}

	s.logger.Debug().
		Str("listen", cfg.Listen).
		Str("broker", cfg.MQTTBroker).
		Int("publishers", len(s.publishers)).
		Msg("Telemetry service initialized")

	return s, nil
}

// Record implements discipline.Recorder.
func (s *Service) Record(snap discipline.Snapshot) {
	for _, p := range s.publishers {
		p.Publish(snap)
	}
}

// Serve runs the /metrics endpoint until ctx is done. It returns immediately
// when no listen address is configured.
func (s *Service) Serve(ctx context.Context) error {
	errFactory := errors.New()

	if s.cfg.Listen == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.exporter.Handler())

	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Listen).Msg("Serving Prometheus metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errFactory.Wrap(ErrServeFailed, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}
	return nil
}

// Close flushes and closes every publisher.
func (s *Service) Close() error {
	errFactory := errors.New()

	var firstErr error
	for _, p := range s.publishers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return errFactory.Wrap(ErrServiceShutdown, firstErr)
	}
	return nil
}
