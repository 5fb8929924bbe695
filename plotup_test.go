package plotup

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func TestOrchestratorFacadeRun(t *testing.T) {
	requireUnix(t)
	var buf bytes.Buffer
	o := NewOrchestrator(OrchestratorOptions{
		Aux:      Spec{Name: "aux", Command: "sleep 10"},
		Primary:  Spec{Name: "primary", Command: "true"},
		Out:      &buf,
		Logger:   slog.New(slog.DiscardHandler),
		ReapWait: 3 * time.Second,
	})
	if code := o.Run(context.Background()); code != 0 {
		t.Fatalf("run: exit code %d", code)
	}
	out := buf.String()
	if !strings.Contains(out, "Starting plot server...") || !strings.Contains(out, "All servers stopped.") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	c, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Listen != "localhost:8001" {
		t.Fatalf("default listen: %q", c.Server.Listen)
	}
}

func TestSweeperFacade(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "plot_a.png")
	if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(p, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	sw := NewSweeper(dir, time.Hour, time.Minute, slog.New(slog.DiscardHandler))
	n, err := sw.SweepOnce(time.Now())
	if err != nil || n != 1 {
		t.Fatalf("sweep: n=%d err=%v", n, err)
	}
}

func TestHistorySinkFacade(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "h.db")
	sink, err := NewHistorySink(dsn)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	e := HistoryEvent{OccurredAt: time.Now()}
	e.Type = "start"
	e.Record.Name = "x"
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRegisterMetricsFacade(t *testing.T) {
	if err := RegisterMetrics(prometheus.NewRegistry()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("register default: %v", err)
	}
}

func TestNewPlotServerStartsAndCloses(t *testing.T) {
	srv, err := NewPlotServer("127.0.0.1:0", "", t.TempDir())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
