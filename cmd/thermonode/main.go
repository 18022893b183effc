package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/thermonode/internal/actuator"
	"codeberg.org/mutker/thermonode/internal/collector"
	"codeberg.org/mutker/thermonode/internal/config"
	"codeberg.org/mutker/thermonode/internal/errors"
	"codeberg.org/mutker/thermonode/internal/logger"
	"codeberg.org/mutker/thermonode/internal/metrics"
	"codeberg.org/mutker/thermonode/internal/pid"
	"codeberg.org/mutker/thermonode/internal/publisher"
	"codeberg.org/mutker/thermonode/internal/sensor"
	"codeberg.org/mutker/thermonode/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// Process exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(config.WithArgs(args))
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return exitConfig
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.Init(level, logger.IsService())
	logger.Debug().Msg("Config loaded")

	role, err := cfg.Role()
	if err != nil {
		logError(err, "Invalid configuration: set exactly one of publisher_id or output_pin")
		return exitConfig
	}

	if err := pid.Write(cfg.PIDFile); err != nil {
		logError(err, "Failed to write PID file")
		return exitFailure
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	logger.Info().Str("role", role.String()).Str("transport", cfg.Transport).Msg("Starting node")

	if err := serve(ctx, cfg, role); err != nil {
		logError(err, "Node stopped with error")
		return exitFailure
	}

	logger.Info().Msg("Exiting...")
	return exitOK
}

// serve runs the role loop and, if configured, the metrics endpoint until
// ctx is done or either of them fails.
func serve(ctx context.Context, cfg *config.Config, role config.Role) error {
	log := logger.Default()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ins := metrics.NewInstruments(reg)

	tr, err := transport.New(transport.Options{
		Kind:      transport.Kind(cfg.Transport),
		Broker:    cfg.Broker,
		Port:      cfg.Port,
		ClientID:  transport.ClientID(role.String()),
		KeepAlive: time.Duration(cfg.KeepAlive) * time.Second,
	}, log.With("transport"))
	if err != nil {
		return err
	}
	defer func() {
		if err := tr.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close transport")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.MetricsAddr, reg, log.With("metrics"))
		})
	}

	switch role {
	case config.RoleCollector:
		g.Go(func() error { return runCollector(gctx, cfg, tr, ins, log) })
	case config.RolePublisher:
		g.Go(func() error { return runPublisher(gctx, cfg, tr, ins, log) })
	}

	return g.Wait()
}

func runCollector(
	ctx context.Context, cfg *config.Config, tr transport.Transport, ins *metrics.Instruments, log logger.Logger,
) error {
	act, err := actuator.New(actuator.Kind(cfg.Actuator), cfg.OutputPin, cfg.GPIORoot, log)
	if err != nil {
		return err
	}
	defer cleanup(act)

	historyCfg := metrics.DefaultConfig()
	historyCfg.Enabled = cfg.History
	historyCfg.DBPath = cfg.HistoryDB
	recorder, err := metrics.NewService(historyCfg, log.With("history"))
	if err != nil {
		return err
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close report history")
		}
	}()

	c := collector.New(collector.Config{
		Topic:          cfg.Topic,
		TTL:            time.Duration(cfg.TTL) * time.Second,
		EvictInterval:  time.Duration(cfg.EvictInterval) * time.Second,
		ReportInterval: time.Duration(cfg.ReportInterval) * time.Second,
		Threshold:      cfg.Threshold,
		EvictOnReceive: cfg.EvictOnReceive,
	}, tr, act,
		collector.WithLogger(log.With("collector")),
		collector.WithInstruments(ins),
		collector.WithRecorder(recorder),
	)

	return c.Run(ctx)
}

func runPublisher(
	ctx context.Context, cfg *config.Config, tr transport.Transport, ins *metrics.Instruments, log logger.Logger,
) error {
	s, err := sensor.New(sensor.Config{
		Kind:    sensor.Kind(cfg.Sensor),
		ADCPath: cfg.ADCPath,
		ADCBits: cfg.ADCBits,
	}, log.With("sensor"))
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close sensor")
		}
	}()

	p := publisher.New(publisher.Config{
		PublisherID: cfg.PublisherID,
		Topic:       cfg.Topic,
		Interval:    time.Duration(cfg.PublishInterval) * time.Second,
	}, tr, s,
		publisher.WithLogger(log.With("publisher")),
		publisher.WithInstruments(ins),
	)

	return p.Run(ctx)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

// cleanup leaves the output off when the collector stops.
func cleanup(act actuator.Actuator) {
	if err := act.Set(false); err != nil {
		logger.Error().Err(err).Msg("Failed to turn off actuator")
	}
}

func logError(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.ErrorWithCode(appErr).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}
