package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"codeberg.org/mutker/ocxoctl/internal/calstore"
	"codeberg.org/mutker/ocxoctl/internal/capture"
	"codeberg.org/mutker/ocxoctl/internal/command"
	"codeberg.org/mutker/ocxoctl/internal/config"
	"codeberg.org/mutker/ocxoctl/internal/control"
	"codeberg.org/mutker/ocxoctl/internal/dac"
	"codeberg.org/mutker/ocxoctl/internal/discipline"
	"codeberg.org/mutker/ocxoctl/internal/errors"
	"codeberg.org/mutker/ocxoctl/internal/logger"
	"codeberg.org/mutker/ocxoctl/internal/metrics"
	"codeberg.org/mutker/ocxoctl/internal/pidfile"
	"codeberg.org/mutker/ocxoctl/internal/sim"
	"codeberg.org/mutker/ocxoctl/internal/telemetry"
	"github.com/spf13/pflag"
)

const commandQueue = 16

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfg *config.Config

type app struct {
	engine    *discipline.Engine
	device    dac.Device
	source    capture.Source
	port      io.ReadWriteCloser
	commands  *command.Channel
	recorder  *metrics.Recorder
	telemetry *telemetry.Service
	store     *calstore.Store
}

func init() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.ShowVersion {
		fmt.Printf("ocxoctl %s\n", version)
		os.Exit(0)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Printf("failed to parse log level: %v\n", err)
		os.Exit(1)
	}
	logger.Init(level, logger.IsService())
	logger.Debug().Str("file", cfg.ConfigFile).Msg("Config loaded")
}

func main() {
	if err := pidfile.Write(); err != nil {
		logger.Fatal().Err(err).Msg("failed to write pid file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	a, err := newApp()
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize")
		_ = pidfile.Remove()
		os.Exit(1)
	}

	if err := a.run(ctx); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
	a.cleanup()
}

func newApp() (*app, error) {
	errFactory := errors.New()
	a := &app{}

	switch cfg.Capture.Source {
	case config.SourceSim:
		s := sim.New(simConfig(cfg))
		a.device, a.source = s, s
		if cfg.DAC.Driver != dac.DriverNone {
			logger.Warn().Str("driver", cfg.DAC.Driver).Msg("Simulated source drives its own VCO, ignoring DAC driver")
		}
	case config.SourcePPS:
		dev, err := dac.Open(cfg.DAC.Driver, cfg.DAC.Bus, uint16(cfg.DAC.Address))
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInitApp, err)
		}
		src, err := capture.NewPPSSource(cfg.Capture.ReferenceDevice, cfg.Capture.OCXODevice, timebase(cfg))
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInitApp, err)
		}
		a.device, a.source = dev, src
	}

	var opts []discipline.Option

	if cfg.Command.Port != "" {
		port, err := command.OpenSerial(cfg.Command.Port, cfg.Command.Baud)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInitApp, err)
		}
		a.port = port
		a.commands = command.New(port, version, commandQueue)
		opts = append(opts, discipline.WithCommands(a.commands))
	}

	collector, err := metrics.NewService(metricsConfig(cfg))
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}
	a.recorder = metrics.NewRecorder(collector, 0)
	opts = append(opts, discipline.WithRecorder(a.recorder))

	a.telemetry, err = telemetry.NewService(telemetryConfig(cfg))
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}
	opts = append(opts, discipline.WithRecorder(a.telemetry))

	if cfg.Calibration.Store != "" {
		a.store = calstore.New(cfg.Calibration.Store)
		opts = append(opts, discipline.WithCalibrationHook(a.saveCalibration))
	}

	a.engine = discipline.New(disciplineConfig(cfg), a.device, opts...)

	if a.store != nil {
		a.loadCalibration()
	}

	return a, nil
}

func (a *app) loadCalibration() {
	rec, ok, err := a.store.Load()
	switch {
	case err != nil:
		logger.Warn().Err(err).Str("path", a.store.Path()).Msg("Ignoring stored calibration")
	case !ok:
		logger.Info().Str("path", a.store.Path()).Msg("No stored calibration, using configured range")
	case a.engine.SetRange(rec.Range):
		logger.Info().
			Float64("min", rec.Range.Min).
			Float64("max", rec.Range.Max).
			Time("calibrated_at", rec.CalibratedAt).
			Msg("Loaded stored calibration")
	}
}

func (a *app) saveCalibration(r control.Range) {
	if err := a.store.Save(r, time.Now()); err != nil {
		logger.Error().Err(err).Str("path", a.store.Path()).Msg("Failed to store calibration")
		return
	}
	logger.Debug().Str("path", a.store.Path()).Msg("Calibration stored")
}

// run blocks until ctx is done or a collaborator fails.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 4)
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error().Err(err).Str("task", name).Msg("Task failed")
				errCh <- err
				cancel()
			}
		}()
	}

	spawn("capture", func(ctx context.Context) error { return a.source.Run(ctx, a.engine) })
	spawn("telemetry", a.telemetry.Serve)
	if a.port != nil {
		spawn("command", func(ctx context.Context) error { return a.commands.Serve(ctx, a.port) })
	}

	if cfg.Monitor {
		logger.Info().Msg("Monitor mode activated. DAC writes disabled")
	}

	runErr := a.engine.Run(ctx)
	cancel()
	wg.Wait()
	close(errCh)

	if runErr != nil {
		return runErr
	}
	return <-errCh
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func (a *app) cleanup() {
	status := a.engine.Status()
	logger.Info().
		Float64("frequency", status.Frequency).
		Uint16("code", status.Code).
		Msg("Final loop state")

	if err := a.recorder.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close metrics")
	}
	if err := a.telemetry.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close telemetry")
	}
	if a.port != nil {
		_ = a.port.Close()
	}
	if c, ok := a.device.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close DAC")
		}
	}
	if err := pidfile.Remove(); err != nil {
		logger.Error().Err(err).Msg("failed to remove pid file")
	}
	logger.Info().Msg("Exiting...")
}
