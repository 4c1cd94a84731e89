package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/devtelemetry/internal/catalog"
	"codeberg.org/mutker/devtelemetry/internal/collector"
	"codeberg.org/mutker/devtelemetry/internal/config"
	"codeberg.org/mutker/devtelemetry/internal/dataset"
	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/logger"
	"codeberg.org/mutker/devtelemetry/internal/metrics"
	"codeberg.org/mutker/devtelemetry/internal/pid"
	"codeberg.org/mutker/devtelemetry/internal/sensor"
	"codeberg.org/mutker/devtelemetry/internal/telemetry"
	"github.com/spf13/pflag"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "devtelemetry: %v\n", err)
		return exitConfig
	}

	if err := logger.Init(cfg.LogLevel.String(), logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "devtelemetry: %v\n", err)
		return exitConfig
	}
	log := logger.Default()
	log.Debug().Str("config_file", cfg.ConfigFile).Msg("Config loaded")

	pidPath := cfg.PIDFile
	if pidPath == "" {
		pidPath = pid.DefaultPath()
	}
	if err := pid.Write(pidPath); err != nil {
		log.Error().Code(err).Str("pid_file", pidPath).Msg("Failed to acquire PID file")
		return exitFailure
	}
	defer func() {
		if err := pid.Remove(pidPath); err != nil {
			log.Warn().Code(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := collect(ctx, cfg, log); err != nil {
		log.Error().Code(err).Msg("Collection failed")
		if errors.HasCode(err, errors.ErrConfigInvalid) {
			return exitConfig
		}
		return exitFailure
	}

	log.Info().Msg("Exiting...")

	return exitOK
}

func collect(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	sources, err := sensor.Build(cfg.Sources, sensor.BuildConfig{
		BatteryPath: cfg.BatteryPath,
		ProcessTopN: cfg.ProcessTopN,
		Seed:        time.Now().UnixNano(),
	})
	if err != nil {
		return errors.New().Wrap(errors.ErrConfigInvalid, err)
	}

	reader := sensor.NewReader(sources, sensor.WithTimeout(cfg.ReadTimeout), sensor.WithLogger(log))
	defer func() {
		if err := reader.Close(); err != nil {
			log.Warn().Code(err).Msg("Failed to release sensors")
		}
	}()

	schema, err := telemetry.NewSchema(reader.Fields()...)
	if err != nil {
		return errors.New().Wrap(errors.ErrConfigInvalid, err)
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr, log); err != nil {
				log.Warn().Code(err).Str("addr", cfg.MetricsAddr).Msg("Metrics endpoint stopped")
			}
		}()
	}

	cat, err := catalog.New(catalog.Config{DBPath: cfg.CatalogPath}, log)
	if err != nil {
		// Collection continues without the catalog
		log.Warn().Code(err).Str("path", cfg.CatalogPath).Msg("Dataset catalog unavailable")
		cat, _ = catalog.New(catalog.Config{}, log)
	}
	defer func() {
		if err := cat.Close(); err != nil {
			log.Warn().Code(err).Msg("Failed to close dataset catalog")
		}
	}()

	runLog := log.With("run_id", cat.RunID())

	observers := []dataset.Observer{cat}
	if m != nil {
		observers = append(observers, m)
	}

	sink, err := dataset.NewRotator(cfg.OutputPath, cfg.OutputFormat, schema, cfg.Rotation(),
		dataset.WithJSONMode(cfg.JSONMode),
		dataset.WithNoDataMarker(cfg.NoDataMarker),
		dataset.WithFlushEvery(cfg.FlushEvery),
		dataset.WithSync(cfg.Sync),
		dataset.WithObserver(dataset.Observers(observers...)),
		dataset.WithLogger(runLog),
	)
	if err != nil {
		return err
	}

	sched, err := collector.New(collector.Config{
		Interval:    cfg.Interval,
		MaxTicks:    cfg.MaxTicks,
		RunDuration: cfg.RunDuration,
	}, reader, schema, sink,
		collector.WithLogger(runLog),
		collector.WithMetrics(m),
	)
	if err != nil {
		sink.Close()
		return err
	}

	if err := cat.StartRun(ctx, catalog.Run{
		StartedAt: time.Now(),
		Interval:  cfg.Interval,
		Fields:    schema.Names(),
		Sources:   cfg.Sources,
	}); err != nil {
		runLog.Warn().Code(err).Msg("Failed to catalog run")
	}

	runLog.Info().
		Str("output", cfg.OutputPath).
		Str("format", string(cfg.OutputFormat)).
		Strs("sources", cfg.Sources).
		Msg("Starting collection")

	runErr := sched.Run(ctx)

	stats := sched.Stats()
	if err := cat.FinishRun(context.Background(), catalog.Summary{
		StoppedAt:       time.Now(),
		Ticks:           stats.Ticks,
		Records:         stats.Records,
		PartialFailures: stats.PartialFailures,
		Reason:          string(sched.Reason()),
	}); err != nil {
		runLog.Warn().Code(err).Msg("Failed to finish cataloged run")
	}

	return runErr
}
