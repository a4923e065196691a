package control

import (
	"context"
	"log/slog"
	"time"

	"github.com/mediascribe/pipeline/internal/core/domain"
	redisclient "github.com/mediascribe/pipeline/internal/infra/redis"
	"github.com/mediascribe/pipeline/internal/infra/storage"
)

const (
	videoLockTTL     = 2 * time.Minute
	videoLockRefresh = 30 * time.Second
)

// lockedExecutor guards job execution with a per-video Redis work
// lock so two processes sharing one database never work on the same
// video at once. Each video has its own lock key; there is no global
// lock.
type lockedExecutor struct {
	inner interface {
		Execute(ctx context.Context, job *domain.Job) error
	}
	jobs  storage.JobRepository
	redis *redisclient.Client
	log   *slog.Logger
}

func (e *lockedExecutor) Execute(ctx context.Context, job *domain.Job) error {
	ok, err := e.redis.AcquireLock(ctx, job.VideoID, videoLockTTL)
	if err != nil {
		// Redis trouble must not halt the pipeline. Fall back to the
		// repository's claim atomicity alone.
		e.log.Warn("Work lock unavailable, proceeding without it",
			"videoID", job.VideoID, "error", err)
		return e.inner.Execute(ctx, job)
	}
	if !ok {
		e.log.Info("Video locked by another process, deferring job",
			"jobID", job.ID, "videoID", job.VideoID)
		return e.requeue(ctx, job)
	}

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	go e.refreshLoop(refreshCtx, job.VideoID)
	defer func() {
		stopRefresh()
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := e.redis.ReleaseLock(releaseCtx, job.VideoID); err != nil {
			e.log.Warn("Failed to release work lock, it will expire",
				"videoID", job.VideoID, "error", err)
		}
	}()

	return e.inner.Execute(ctx, job)
}

// requeue puts a claimed job back to pending so another poll retries it
// once the lock holder finishes.
func (e *lockedExecutor) requeue(ctx context.Context, job *domain.Job) error {
	job.Status = domain.JobStatusPending
	if err := e.jobs.Update(ctx, job); err != nil {
		e.log.Error("Failed to defer locked job", "jobID", job.ID, "error", err)
	}
	return nil
}

func (e *lockedExecutor) refreshLoop(ctx context.Context, videoID string) {
	ticker := time.NewTicker(videoLockRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.redis.RefreshLock(ctx, videoID, videoLockTTL); err != nil && ctx.Err() == nil {
				e.log.Warn("Failed to refresh work lock", "videoID", videoID, "error", err)
			}
		}
	}
}
