// Package plotup glues a plot-image HTTP server and a foreground
// development server into one command. The embeddable API mirrors what the
// plotup binary does: serve plots, sweep stale ones, and orchestrate the
// two servers of a development session.
package plotup

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/plotup/plotup/internal/config"
	"github.com/plotup/plotup/internal/history"
	"github.com/plotup/plotup/internal/history/factory"
	"github.com/plotup/plotup/internal/metrics"
	"github.com/plotup/plotup/internal/orchestrator"
	"github.com/plotup/plotup/internal/plots"
	"github.com/plotup/plotup/internal/process"
	iapi "github.com/plotup/plotup/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

type Status = process.Status

type Config = cfg.Config

type HistoryEvent = history.Event

type HistorySink = history.Sink

// Orchestrator is a thin facade over internal/orchestrator.
type Orchestrator = orchestrator.Orchestrator

type OrchestratorOptions = orchestrator.Options

// NewOrchestrator builds a single-use orchestrator for one aux/primary pair.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	return orchestrator.New(opts)
}

// LoadConfig parses the TOML config at path; an empty path yields defaults.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewPlotServer starts the plot file server on addr and returns the
// running http.Server for shutdown.
func NewPlotServer(addr, basePath, dir string) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, dir)
}

// NewSweeper returns a stale-plot sweeper with defaults applied.
func NewSweeper(dir string, maxAge, interval time.Duration, logger *slog.Logger) *plots.Sweeper {
	return plots.NewSweeper(dir, maxAge, interval, logger)
}

// NewHistorySink builds a lifecycle audit sink from a DSN
// (sqlite, postgres or clickhouse).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
