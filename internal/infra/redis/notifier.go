package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

// Notifier publishes progress events over Redis pub/sub. Delivery is
// best-effort: publish failures are logged and dropped so they can
// never block pipeline progress.
type Notifier struct {
	client *Client
	log    *slog.Logger
}

// NewNotifier creates a pub/sub progress notifier.
func NewNotifier(client *Client, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{client: client, log: log}
}

func (n *Notifier) Notify(ctx context.Context, ev domain.ProgressEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.log.Warn("Failed to marshal progress event", "jobID", ev.JobID, "error", err)
		return
	}
	if err := n.client.Publish(ctx, ev.VideoID, payload); err != nil {
		n.log.Warn("Failed to publish progress event",
			"jobID", ev.JobID, "videoID", ev.VideoID, "error", err)
	}
}
