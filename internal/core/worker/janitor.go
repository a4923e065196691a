package worker

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Janitor sweeps orphaned working directories left behind by crashed
// workers. Directories untouched for longer than the retention period
// are removed; the orchestrator cleans up live jobs itself.
type Janitor struct {
	workDir   string
	retention time.Duration
	inUse     func(name string) bool
	log       *slog.Logger
}

// NewJanitor creates a janitor for workDir. inUse, when non-nil,
// exempts directories of jobs still executing so a stage that outlives
// the retention window is not swept mid-run.
func NewJanitor(workDir string, retention time.Duration, inUse func(name string) bool, log *slog.Logger) *Janitor {
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{workDir: workDir, retention: retention, inUse: inUse, log: log}
}

// Start runs the sweep loop.
func (j *Janitor) Start(ctx context.Context) {
	if j.retention <= 0 || j.workDir == "" {
		return // Janitor disabled
	}

	interval := min(j.retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	entries, err := os.ReadDir(j.workDir)
	if err != nil {
		if !os.IsNotExist(err) {
			j.log.Warn("Janitor failed to read work dir", "dir", j.workDir, "error", err)
		}
		return
	}

	cutoff := time.Now().Add(-j.retention)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if j.inUse != nil && j.inUse(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		dir := filepath.Join(j.workDir, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			j.log.Warn("Janitor failed to remove stale dir", "dir", dir, "error", err)
			continue
		}
		j.log.Info("Removed stale working directory", "dir", dir,
			"age", time.Since(info.ModTime()).Round(time.Minute))
	}
}
