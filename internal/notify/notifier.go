// Package notify delivers best-effort progress events to interested
// clients. Delivery must never block or fail pipeline progress.
package notify

import (
	"context"
	"log/slog"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

// Notifier publishes progress events. Implementations swallow their
// own delivery errors.
type Notifier interface {
	Notify(ctx context.Context, ev domain.ProgressEvent)
}

// LogNotifier writes progress events to the structured log. It is the
// fallback when no transport is configured.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, ev domain.ProgressEvent) {
	n.log.Info("Progress",
		"jobID", ev.JobID,
		"videoID", ev.VideoID,
		"stage", ev.Stage,
		"progress", ev.Progress,
		"message", ev.Message)
}

// Multi fans one event out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev domain.ProgressEvent) {
	for _, n := range m {
		n.Notify(ctx, ev)
	}
}
