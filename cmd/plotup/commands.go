package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/plotup/plotup"
	"github.com/plotup/plotup/internal/logger"
	"github.com/plotup/plotup/internal/plots"
)

// runUpCommand is the orchestrator entrypoint: background plot server,
// foreground dev server, best-effort teardown.
func runUpCommand(globalFlags *GlobalFlags, upFlags *UpFlags) error {
	cfg, err := plotup.LoadConfig(globalFlags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	log := logger.New(globalFlags.LogLevel)
	slog.SetDefault(log)

	if upFlags.AuxCmd != "" {
		cfg.Aux.Command = upFlags.AuxCmd
	}
	if upFlags.PrimaryCmd != "" {
		cfg.Primary.Command = upFlags.PrimaryCmd
	}
	if upFlags.HistoryDSN != "" {
		cfg.History.DSN = upFlags.HistoryDSN
	}
	if cfg.Aux.Command == "" {
		// Default auxiliary job is this binary's own serve command, the Go
		// equivalent of "python3 serve_plots.py &".
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("cannot determine own executable for plot server: %w", err)
		}
		cfg.Aux.Command = fmt.Sprintf("%s serve --listen=%s --dir=%s", self, cfg.Server.Listen, cfg.Plots.Dir)
	}

	if cfg.Metrics.Enabled {
		if err := plotup.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := plotup.ServeMetrics(cfg.Metrics.Listen); err != nil {
					log.Warn("metrics server error", "error", err)
				}
			}()
		}
	}

	var sink plotup.HistorySink
	if cfg.History.DSN != "" {
		sink, err = plotup.NewHistorySink(cfg.History.DSN)
		if err != nil {
			// Auditing never blocks a run.
			log.Warn("history sink unavailable", "dsn", cfg.History.DSN, "error", err)
			sink = nil
		} else {
			defer func() { _ = sink.Close() }()
		}
	}

	env, err := cfg.MergedEnv()
	if err != nil {
		return fmt.Errorf("error merging environment: %w", err)
	}

	orch := plotup.NewOrchestrator(plotup.OrchestratorOptions{
		Aux:     cfg.JobSpec(cfg.Aux),
		Primary: cfg.JobSpec(cfg.Primary),
		Env:     env,
		Logger:  log,
		History: sink,
	})
	if code := orch.Run(context.Background()); code != 0 {
		os.Exit(code)
	}
	return nil
}

// runServeCommand runs the plot server in the foreground until interrupted.
func runServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) error {
	cfg, err := plotup.LoadConfig(globalFlags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	log := logger.New(globalFlags.LogLevel)
	slog.SetDefault(log)

	if serveFlags.Listen != "" {
		cfg.Server.Listen = serveFlags.Listen
	}
	if serveFlags.BasePath != "" {
		cfg.Server.BasePath = serveFlags.BasePath
	}
	if serveFlags.Dir != "" {
		cfg.Plots.Dir = serveFlags.Dir
	}

	if err := plots.EnsureDir(cfg.Plots.Dir); err != nil {
		return fmt.Errorf("failed to create plots directory %s: %w", cfg.Plots.Dir, err)
	}

	if cfg.Metrics.Enabled {
		if err := plotup.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := plotup.ServeMetrics(cfg.Metrics.Listen); err != nil {
					log.Warn("metrics server error", "error", err)
				}
			}()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := plotup.NewSweeper(cfg.Plots.Dir, cfg.Plots.MaxAge, cfg.Plots.SweepInterval, log)
	go sweeper.Run(ctx)

	server, err := plotup.NewPlotServer(cfg.Server.Listen, cfg.Server.BasePath, cfg.Plots.Dir)
	if err != nil {
		return fmt.Errorf("failed to start plot server: %w", err)
	}

	fmt.Printf("Plot server running at http://%s%s\n", cfg.Server.Listen, cfg.Server.BasePath)
	fmt.Printf("Serving files from: %s\n", cfg.Plots.Dir)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down plot server...")
	cancel()
	return server.Close()
}

// runSweepCommand removes stale plots once and reports the count.
func runSweepCommand(globalFlags *GlobalFlags, sweepFlags *SweepFlags) error {
	cfg, err := plotup.LoadConfig(globalFlags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	log := logger.New(globalFlags.LogLevel)

	if sweepFlags.Dir != "" {
		cfg.Plots.Dir = sweepFlags.Dir
	}
	if sweepFlags.MaxAge > 0 {
		cfg.Plots.MaxAge = sweepFlags.MaxAge
	}

	sweeper := plotup.NewSweeper(cfg.Plots.Dir, cfg.Plots.MaxAge, cfg.Plots.SweepInterval, log)
	removed, err := sweeper.SweepOnce(time.Now())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	fmt.Printf("Removed %d stale plot(s) from %s\n", removed, cfg.Plots.Dir)
	return nil
}
