// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/consult/journal"
	"github.com/bureau-foundation/consult/lib/clock"
	"github.com/bureau-foundation/consult/lib/config"
	"github.com/bureau-foundation/consult/lib/httpserver"
	"github.com/bureau-foundation/consult/lib/logging"
	"github.com/bureau-foundation/consult/lib/process"
	"github.com/bureau-foundation/consult/lib/version"
	"github.com/bureau-foundation/consult/switchboard"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("consult-server", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to consult.yaml (default: $CONSULT_CONFIG)")
	listen := flagSet.String("listen", "", "listen address, overriding server.listen")
	logLevel := flagSet.String("log-level", "", "debug, info, warn or error, overriding log.level")
	showVersion := flagSet.Bool("version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return process.ExitError(2, err)
	}
	if *showVersion {
		version.Print("consult-server")
		return nil
	}
	if flagSet.NArg() > 0 {
		return process.ExitError(2, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0)))
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.New(level)
	logger.Info("starting consult-server",
		"version", version.Info(),
		"environment", cfg.Environment,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg, clock.Real(), logger)
	if err != nil {
		return err
	}
	return app.run(ctx)
}

// loadConfig reads the file named by path or CONSULT_CONFIG, falling
// back to the development defaults when neither is set.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("CONSULT_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// app is the assembled server: switchboard loop, HTTP surface and
// optional journal.
type app struct {
	config   *config.Config
	clock    clock.Clock
	logger   *slog.Logger
	server   *switchboard.Server
	registry *prometheus.Registry
	handler  http.Handler

	journal     *journal.Writer
	journalPath string
	observer    *journal.Observer
}

func newApp(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*app, error) {
	a := &app{
		config:   cfg,
		clock:    clk,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := switchboard.NewMetrics(a.registry)

	serverConfig := switchboard.Config{
		Clock:          clk,
		Logger:         logger.With("component", "switchboard"),
		ConsultMinutes: cfg.Matching.ConsultMinutes,
		Metrics:        metrics,
	}
	if cfg.Journal.Path != "" {
		if err := a.openJournal(); err != nil {
			return nil, err
		}
		serverConfig.Observer = a.observer
	}
	a.server = switchboard.NewServer(serverConfig)

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.WebSocketPath, switchboard.NewHandler(switchboard.HandlerConfig{
		Server:          a.server,
		Clock:           clk,
		Logger:          logger.With("component", "websocket"),
		Metrics:         metrics,
		SendQueue:       cfg.Connection.SendQueue,
		PingInterval:    cfg.Connection.PingInterval,
		PongTimeout:     cfg.Connection.PongTimeout,
		WriteTimeout:    cfg.Connection.WriteTimeout,
		MaxMessageBytes: cfg.Connection.MaxMessageBytes,
		RatePerSecond:   cfg.Connection.RatePerSecond,
		RateBurst:       cfg.Connection.RateBurst,
		CheckOrigin:     cfg.Server.CheckOrigin,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	}))
	if cfg.Server.StatusPath != "" {
		mux.Handle(cfg.Server.StatusPath, switchboard.StatusHandler(a.server, logger))
	}
	if cfg.Server.MetricsPath != "" {
		mux.Handle(cfg.Server.MetricsPath, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{
			ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		}))
	}
	a.handler = mux
	return a, nil
}

func (a *app) openJournal() error {
	compression, err := journal.ParseCompression(a.config.Journal.Compression)
	if err != nil {
		return err
	}
	writer, path, err := journal.Create(a.config.Journal.Path, a.clock.Now(), journal.Options{
		Compression: compression,
		Recipients:  a.config.Journal.Recipients,
	})
	if err != nil {
		return err
	}

	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "consult",
		Name:      "journal_dropped_records_total",
		Help:      "Session records that could not be queued for the journal.",
	})
	a.registry.MustRegister(dropped)

	a.journal = writer
	a.journalPath = path
	a.observer = journal.NewObserver(journal.ObserverConfig{
		Journal: writer,
		Logger:  a.logger.With("component", "journal"),
		OnDrop:  func(journal.Record) { dropped.Inc() },
	})
	a.logger.Info("journaling sessions",
		"path", path,
		"compression", compression,
		"encrypted", len(a.config.Journal.Recipients) > 0,
	)
	return nil
}

// run serves until ctx is cancelled or the listener fails. On the way
// out the switchboard ends every open session, and those end records
// reach the journal before it is closed.
func (a *app) run(ctx context.Context) error {
	journalDone := make(chan error, 1)
	if a.observer != nil {
		go func() { journalDone <- a.observer.Run(context.Background()) }()
	}

	loopContext, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	loopDone := make(chan error, 1)
	go func() { loopDone <- a.server.Run(loopContext) }()

	httpServer := httpserver.New(httpserver.Config{
		Address: a.config.Server.Listen,
		Handler: a.handler,
		Logger:  a.logger.With("component", "http"),
	})
	serveErr := httpServer.Serve(ctx)

	stopLoop()
	loopErr := <-loopDone
	return errors.Join(serveErr, loopErr, a.closeJournal(journalDone))
}

// closeJournal drains the observer and closes the journal file.
func (a *app) closeJournal(journalDone <-chan error) error {
	if a.observer == nil {
		return nil
	}
	a.observer.Close()
	if err := <-journalDone; err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	if err := a.journal.Close(); err != nil {
		return fmt.Errorf("closing journal %s: %w", a.journalPath, err)
	}
	a.logger.Info("journal closed", "path", a.journalPath, "records", a.journal.Count())
	return nil
}
