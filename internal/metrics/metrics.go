package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	jobStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plotup",
			Subsystem: "job",
			Name:      "starts_total",
			Help:      "Number of successful job starts.",
		}, []string{"name"},
	)
	jobStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plotup",
			Subsystem: "job",
			Name:      "stops_total",
			Help:      "Number of observed job exits (normal or not).",
		}, []string{"name"},
	)
	auxRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "plotup",
			Subsystem: "job",
			Name:      "aux_running",
			Help:      "Whether the auxiliary plot server is currently running (1 or 0).",
		},
	)
	plotsServed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "plotup",
			Subsystem: "plots",
			Name:      "served_total",
			Help:      "Number of plot files served over HTTP.",
		},
	)
	plotsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "plotup",
			Subsystem: "plots",
			Name:      "swept_total",
			Help:      "Number of stale plot files removed by the sweeper.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{jobStarts, jobStops, auxRunning, plotsServed, plotsSwept}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		jobStarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		jobStops.WithLabelValues(name).Inc()
	}
}

func SetAuxRunning(up bool) {
	if regOK.Load() {
		v := 0.0
		if up {
			v = 1.0
		}
		auxRunning.Set(v)
	}
}

func IncServed() {
	if regOK.Load() {
		plotsServed.Inc()
	}
}

func AddSwept(n int) {
	if regOK.Load() {
		plotsSwept.Add(float64(n))
	}
}
