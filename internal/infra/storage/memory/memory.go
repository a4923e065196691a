// Package memory provides in-memory repository implementations for
// development mode and tests. All repositories share one Store so the
// claim semantics match the database-backed implementations.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mediascribe/pipeline/internal/core/domain"
	"github.com/mediascribe/pipeline/internal/infra/storage"
)

// Store holds all in-memory state behind a single mutex.
type Store struct {
	mu          sync.Mutex
	jobs        map[string]*domain.Job
	deadLetters map[string]*domain.DeadLetterEntry // keyed by entry id
	segments    map[string][]domain.TranscriptSegment
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		jobs:        make(map[string]*domain.Job),
		deadLetters: make(map[string]*domain.DeadLetterEntry),
		segments:    make(map[string][]domain.TranscriptSegment),
	}
}

func cloneJob(job *domain.Job) *domain.Job {
	c := *job
	if job.NextRetryAt != nil {
		t := *job.NextRetryAt
		c.NextRetryAt = &t
	}
	if job.LastFailureCategory != nil {
		cat := *job.LastFailureCategory
		c.LastFailureCategory = &cat
	}
	if job.Payload != nil {
		c.Payload = make(map[string]string, len(job.Payload))
		for k, v := range job.Payload {
			c.Payload[k] = v
		}
	}
	return &c
}

func cloneEntry(entry *domain.DeadLetterEntry) *domain.DeadLetterEntry {
	c := *entry
	if entry.OriginalPayload != nil {
		c.OriginalPayload = make(map[string]string, len(entry.OriginalPayload))
		for k, v := range entry.OriginalPayload {
			c.OriginalPayload[k] = v
		}
	}
	return &c
}

// ==================== Job Repository ====================

// JobRepo implements storage.JobRepository in memory.
type JobRepo struct {
	store *Store
}

// NewJobRepo creates an in-memory job repository.
func NewJobRepo(store *Store) *JobRepo {
	return &JobRepo{store: store}
}

func (r *JobRepo) Create(_ context.Context, job *domain.Job) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now()
	c := cloneJob(job)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.store.jobs[c.ID] = c
	return nil
}

func (r *JobRepo) Get(_ context.Context, id string) (*domain.Job, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	job, ok := r.store.jobs[id]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (r *JobRepo) Update(_ context.Context, job *domain.Job) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, ok := r.store.jobs[job.ID]
	if !ok {
		return storage.ErrJobNotFound
	}
	c := cloneJob(job)
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now()
	r.store.jobs[job.ID] = c
	return nil
}

func (r *JobRepo) ClaimNextDue(_ context.Context, now time.Time) (*domain.Job, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var best *domain.Job
	for _, job := range r.store.jobs {
		if !runnable(job, now) {
			continue
		}
		if best == nil || job.Priority > best.Priority ||
			(job.Priority == best.Priority && job.CreatedAt.Before(best.CreatedAt)) {
			best = job
		}
	}
	if best == nil {
		return nil, nil
	}

	best.Status = domain.JobStatusRunning
	best.NextRetryAt = nil
	best.UpdatedAt = time.Now()
	return cloneJob(best), nil
}

func runnable(job *domain.Job, now time.Time) bool {
	switch job.Status {
	case domain.JobStatusPending:
		return true
	case domain.JobStatusFailed:
		return job.NextRetryAt != nil && !job.NextRetryAt.After(now)
	default:
		return false
	}
}

func (r *JobRepo) FindOpenByVideo(
	_ context.Context,
	videoID string,
	t domain.JobType,
) (*domain.Job, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var latest *domain.Job
	for _, job := range r.store.jobs {
		if job.VideoID != videoID || job.Type != t {
			continue
		}
		open := job.Status == domain.JobStatusPending || job.Status == domain.JobStatusRunning ||
			(job.Status == domain.JobStatusFailed && job.NextRetryAt != nil)
		if !open {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneJob(latest), nil
}

// ==================== Dead Letter Repository ====================

// DeadLetterRepo implements storage.DeadLetterRepository in memory.
type DeadLetterRepo struct {
	store *Store
}

// NewDeadLetterRepo creates an in-memory dead letter repository.
func NewDeadLetterRepo(store *Store) *DeadLetterRepo {
	return &DeadLetterRepo{store: store}
}

func (r *DeadLetterRepo) Add(_ context.Context, entry *domain.DeadLetterEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	// Mirror the database unique constraint on job_id.
	for _, existing := range r.store.deadLetters {
		if existing.JobID == entry.JobID {
			return nil
		}
	}
	r.store.deadLetters[entry.ID] = cloneEntry(entry)
	return nil
}

func (r *DeadLetterRepo) GetByJobID(
	_ context.Context,
	jobID string,
) (*domain.DeadLetterEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, entry := range r.store.deadLetters {
		if entry.JobID == jobID {
			return cloneEntry(entry), nil
		}
	}
	return nil, nil
}

func (r *DeadLetterRepo) MarkRequeued(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if entry, ok := r.store.deadLetters[id]; ok {
		entry.IsRequeued = true
	}
	return nil
}

func (r *DeadLetterRepo) List(
	_ context.Context,
	limit int,
) ([]*domain.DeadLetterEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	entries := make([]*domain.DeadLetterEntry, 0, len(r.store.deadLetters))
	for _, entry := range r.store.deadLetters {
		entries = append(entries, cloneEntry(entry))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FailedAt.After(entries[j].FailedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// ==================== Segment Repository ====================

// SegmentRepo implements storage.SegmentRepository in memory.
type SegmentRepo struct {
	store *Store
}

// NewSegmentRepo creates an in-memory segment repository.
func NewSegmentRepo(store *Store) *SegmentRepo {
	return &SegmentRepo{store: store}
}

func (r *SegmentRepo) ReplaceAll(
	_ context.Context,
	videoID string,
	segments []domain.TranscriptSegment,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	copied := make([]domain.TranscriptSegment, len(segments))
	copy(copied, segments)
	r.store.segments[videoID] = copied
	return nil
}

func (r *SegmentRepo) ListByVideo(
	_ context.Context,
	videoID string,
) ([]domain.TranscriptSegment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored := r.store.segments[videoID]
	segments := make([]domain.TranscriptSegment, len(stored))
	copy(segments, stored)
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].SegmentIndex < segments[j].SegmentIndex
	})
	return segments, nil
}
