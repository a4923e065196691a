package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

var (
	// ErrJobNotFound is returned when a job id has no record.
	ErrJobNotFound = errors.New("job not found")
)

// JobRepository handles job persistence. Implementations must make
// Claim atomic so two workers never run the same job concurrently.
type JobRepository interface {
	// Create persists a new job.
	Create(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by id.
	Get(ctx context.Context, id string) (*domain.Job, error)

	// Update persists the full mutable state of a job.
	Update(ctx context.Context, job *domain.Job) error

	// ClaimNextDue atomically picks the highest-priority job that is
	// pending, or failed with a due retry, and marks it running.
	// Returns nil when nothing is due.
	ClaimNextDue(ctx context.Context, now time.Time) (*domain.Job, error)

	// FindOpenByVideo returns a non-terminal job of the given type for
	// a video, or nil. Used for idempotent re-entry before creating a
	// duplicate.
	FindOpenByVideo(ctx context.Context, videoID string, t domain.JobType) (*domain.Job, error)
}

// DeadLetterRepository stores terminal failure records.
type DeadLetterRepository interface {
	// Add persists a new entry.
	Add(ctx context.Context, entry *domain.DeadLetterEntry) error

	// GetByJobID returns the entry for a job id, or nil when absent.
	GetByJobID(ctx context.Context, jobID string) (*domain.DeadLetterEntry, error)

	// MarkRequeued flags an entry as manually requeued.
	MarkRequeued(ctx context.Context, id string) error

	// List returns entries for operator inspection, newest first.
	List(ctx context.Context, limit int) ([]*domain.DeadLetterEntry, error)
}

// SegmentRepository stores transcript segments.
type SegmentRepository interface {
	// ReplaceAll atomically replaces every segment for a video. Either
	// all new segments become visible or none do.
	ReplaceAll(ctx context.Context, videoID string, segments []domain.TranscriptSegment) error

	// ListByVideo returns a video's segments ordered by index.
	ListByVideo(ctx context.Context, videoID string) ([]domain.TranscriptSegment, error)
}
