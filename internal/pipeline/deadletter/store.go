// Package deadletter records permanently failed jobs for manual
// intervention.
package deadletter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mediascribe/pipeline/internal/core/domain"
	"github.com/mediascribe/pipeline/internal/infra/storage"
	"github.com/mediascribe/pipeline/internal/observability/metrics"
	"github.com/mediascribe/pipeline/internal/pipeline/retrypolicy"
)

// Store writes dead letter entries idempotently. Writes are
// best-effort: a failure here is logged as a critical operational
// error but never propagated, so it cannot mask the job failure that
// triggered it.
type Store struct {
	repo storage.DeadLetterRepository
	log  *slog.Logger
}

// NewStore creates a dead letter store.
func NewStore(repo storage.DeadLetterRepository, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{repo: repo, log: log}
}

// AddIfAbsent records the job's terminal failure unless an entry for
// its id already exists, in which case it logs and returns without
// modification. The reason is derived from whether the category's
// policy mandated immediate escalation.
func (s *Store) AddIfAbsent(
	ctx context.Context,
	job *domain.Job,
	cause error,
	category domain.FailureCategory,
) {
	existing, err := s.repo.GetByJobID(ctx, job.ID)
	if err != nil {
		s.log.Error("CRITICAL: dead letter lookup failed, entry may be lost",
			"jobID", job.ID, "error", err)
		return
	}
	if existing != nil {
		s.log.Info("Dead letter entry already exists, skipping",
			"jobID", job.ID, "entryID", existing.ID)
		return
	}

	reason := domain.DeadLetterMaxRetriesExceeded
	if retrypolicy.ForCategory(category).DirectToDeadLetter {
		reason = domain.DeadLetterPermanentError
	}

	// CurrentStage holds the last stage that completed, not the one
	// that blew up. The orchestrator records the latter separately.
	failedStage := job.FailedStage
	if failedStage == "" {
		failedStage = job.CurrentStage
	}

	entry := &domain.DeadLetterEntry{
		ID:            uuid.New().String(),
		JobID:         job.ID,
		FailureReason: reason,
		FailureDetails: domain.FailureDetails{
			ErrorType:    fmt.Sprintf("%T", cause),
			ErrorMessage: errMessage(cause),
			StackTrace:   job.ErrorStackTrace,
			Category:     category,
			FailedStage:  failedStage,
			OccurredAt:   time.Now().UTC(),
		},
		OriginalPayload:  snapshotPayload(job),
		AttemptedRetries: job.RetryCount,
		FailedAt:         time.Now().UTC(),
	}

	if err := s.repo.Add(ctx, entry); err != nil {
		s.log.Error("CRITICAL: failed to write dead letter entry",
			"jobID", job.ID, "reason", reason, "error", err)
		return
	}

	metrics.DeadLettersTotal.WithLabelValues(string(reason)).Inc()
	s.log.Warn("Job moved to dead letter store",
		"jobID", job.ID,
		"reason", reason,
		"category", category,
		"attemptedRetries", entry.AttemptedRetries)
}

// Requeue marks an entry requeued and returns a fresh pending job
// built from the snapshot, carrying no retry state.
func (s *Store) Requeue(ctx context.Context, entry *domain.DeadLetterEntry) (*domain.Job, error) {
	if err := s.repo.MarkRequeued(ctx, entry.ID); err != nil {
		return nil, fmt.Errorf("failed to mark entry requeued: %w", err)
	}

	priority := domain.PriorityNormal
	if p, err := strconv.Atoi(entry.OriginalPayload["priority"]); err == nil {
		priority = domain.Priority(p)
	}
	job := &domain.Job{
		ID:           uuid.New().String(),
		Type:         domain.JobType(entry.OriginalPayload["type"]),
		VideoID:      entry.OriginalPayload["video_id"],
		SourceURL:    entry.OriginalPayload["source_url"],
		Status:       domain.JobStatusPending,
		CurrentStage: domain.StageNone,
		Priority:     priority,
		ParentJobID:  entry.JobID,
		CreatedAt:    time.Now().UTC(),
	}
	return job, nil
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// snapshotPayload captures everything needed to manually replay the
// job: its parameters plus the stage outputs accumulated so far.
func snapshotPayload(job *domain.Job) map[string]string {
	snap := map[string]string{
		"type":       string(job.Type),
		"video_id":   job.VideoID,
		"source_url": job.SourceURL,
		"priority":   fmt.Sprintf("%d", job.Priority),
		"stage":      string(job.CurrentStage),
	}
	for k, v := range job.Payload {
		snap[k] = v
	}
	return snap
}
