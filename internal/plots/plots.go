// Package plots manages the on-disk plot image directory: it creates the
// directory on demand and sweeps stale plot files so the disk does not fill
// up during long agent sessions.
package plots

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/plotup/plotup/internal/metrics"
)

const (
	DefaultDir           = "/tmp/dataanalysis_plots"
	DefaultMaxAge        = time.Hour
	DefaultSweepInterval = 5 * time.Minute

	// Only generated plot images are swept; anything else in the
	// directory is left alone.
	plotGlob = "plot_*.png"
)

// EnsureDir creates the plots directory if it does not exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o750)
}

// Sweeper removes plot files older than MaxAge every Interval.
type Sweeper struct {
	Dir      string
	MaxAge   time.Duration
	Interval time.Duration
	Logger   *slog.Logger
}

// NewSweeper returns a Sweeper with defaults applied for zero fields.
func NewSweeper(dir string, maxAge, interval time.Duration, logger *slog.Logger) *Sweeper {
	if dir == "" {
		dir = DefaultDir
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{Dir: dir, MaxAge: maxAge, Interval: interval, Logger: logger}
}

// SweepOnce removes plot files whose modification time is older than MaxAge
// relative to now. It returns the number of files removed. Per-file errors
// are logged and swallowed; only a failed directory listing is an error.
func (s *Sweeper) SweepOnce(now time.Time) (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, plotGlob))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, path := range matches {
		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		if now.Sub(fi.ModTime()) <= s.MaxAge {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.Logger.Warn("failed to remove stale plot", "path", path, "error", err)
			continue
		}
		s.Logger.Info("removed stale plot", "file", filepath.Base(path))
		removed++
	}
	if removed > 0 {
		metrics.AddSwept(removed)
	}
	return removed, nil
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if _, err := s.SweepOnce(time.Now()); err != nil {
		s.Logger.Warn("plot sweep failed", "dir", s.Dir, "error", err)
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := s.SweepOnce(now); err != nil {
				s.Logger.Warn("plot sweep failed", "dir", s.Dir, "error", err)
			}
		}
	}
}
