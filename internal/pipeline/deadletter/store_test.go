package deadletter

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

// =============================================================================
// Mock Repository
// =============================================================================

type mockDeadLetterRepo struct {
	mu      sync.Mutex
	entries []*domain.DeadLetterEntry
	addErr  error
	getErr  error
}

func (r *mockDeadLetterRepo) Add(ctx context.Context, e *domain.DeadLetterEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.addErr != nil {
		return r.addErr
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *mockDeadLetterRepo) GetByJobID(
	ctx context.Context,
	jobID string,
) (*domain.DeadLetterEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	for _, e := range r.entries {
		if e.JobID == jobID {
			return e, nil
		}
	}
	return nil, nil
}

func (r *mockDeadLetterRepo) MarkRequeued(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			e.IsRequeued = true
		}
	}
	return nil
}

func (r *mockDeadLetterRepo) List(
	ctx context.Context,
	limit int,
) ([]*domain.DeadLetterEntry, error) {
	return r.entries, nil
}

// =============================================================================
// Store Tests
// =============================================================================

func testJob() *domain.Job {
	return &domain.Job{
		ID:           "job-1",
		Type:         domain.JobTypeVideoProcessing,
		VideoID:      "video-1",
		SourceURL:    "https://example.com/watch?v=abc",
		CurrentStage: domain.StageTranscription,
		RetryCount:   5,
	}
}

func TestAddIfAbsent_CreatesEntry(t *testing.T) {
	repo := &mockDeadLetterRepo{}
	store := NewStore(repo, nil)

	store.AddIfAbsent(
		context.Background(),
		testJob(),
		errors.New("HTTP 503 Service Unavailable"),
		domain.CategoryTransientNetwork,
	)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}

	e := repo.entries[0]
	if e.JobID != "job-1" {
		t.Errorf("JobID = %s, want job-1", e.JobID)
	}
	if e.FailureReason != domain.DeadLetterMaxRetriesExceeded {
		t.Errorf("FailureReason = %s, want %s", e.FailureReason, domain.DeadLetterMaxRetriesExceeded)
	}
	if e.AttemptedRetries != 5 {
		t.Errorf("AttemptedRetries = %d, want 5", e.AttemptedRetries)
	}
	if e.FailureDetails.Category != domain.CategoryTransientNetwork {
		t.Errorf("Category = %s", e.FailureDetails.Category)
	}
}

func TestAddIfAbsent_RecordsStageThatFailed(t *testing.T) {
	repo := &mockDeadLetterRepo{}
	store := NewStore(repo, nil)

	// Transcription blew up after audio extraction completed, so
	// CurrentStage still points at the last finished stage.
	job := testJob()
	job.CurrentStage = domain.StageAudioExtraction
	job.FailedStage = domain.StageTranscription

	store.AddIfAbsent(context.Background(), job,
		errors.New("whisper exited with code 1"), domain.CategoryUnknown)

	if got := repo.entries[0].FailureDetails.FailedStage; got != domain.StageTranscription {
		t.Errorf("FailedStage = %s, want %s", got, domain.StageTranscription)
	}
}

func TestAddIfAbsent_FailedStageFallsBackToCurrent(t *testing.T) {
	repo := &mockDeadLetterRepo{}
	store := NewStore(repo, nil)

	job := testJob()
	job.FailedStage = ""

	store.AddIfAbsent(context.Background(), job,
		errors.New("boom"), domain.CategoryUnknown)

	if got := repo.entries[0].FailureDetails.FailedStage; got != domain.StageTranscription {
		t.Errorf("FailedStage = %s, want %s", got, domain.StageTranscription)
	}
	e := repo.entries[0]
	if e.FailureDetails.FailedStage != domain.StageTranscription {
		t.Errorf("FailedStage = %s", e.FailureDetails.FailedStage)
	}
}

func TestAddIfAbsent_Idempotent(t *testing.T) {
	repo := &mockDeadLetterRepo{}
	store := NewStore(repo, nil)
	ctx := context.Background()

	cause := errors.New("video has been deleted")
	store.AddIfAbsent(ctx, testJob(), cause, domain.CategoryPermanent)
	store.AddIfAbsent(ctx, testJob(), cause, domain.CategoryPermanent)

	if len(repo.entries) != 1 {
		t.Fatalf("expected exactly 1 entry after duplicate add, got %d", len(repo.entries))
	}
}

func TestAddIfAbsent_PermanentReason(t *testing.T) {
	repo := &mockDeadLetterRepo{}
	store := NewStore(repo, nil)

	store.AddIfAbsent(
		context.Background(),
		testJob(),
		domain.NewPermanentError("private video", nil),
		domain.CategoryPermanent,
	)

	if repo.entries[0].FailureReason != domain.DeadLetterPermanentError {
		t.Errorf("FailureReason = %s, want %s",
			repo.entries[0].FailureReason, domain.DeadLetterPermanentError)
	}
}

// A storage failure while writing the entry must be swallowed, not
// propagated to the caller's failure handling flow.
func TestAddIfAbsent_WriteFailureSwallowed(t *testing.T) {
	repo := &mockDeadLetterRepo{addErr: errors.New("db down")}
	store := NewStore(repo, nil)

	// Must not panic and must not leave a partial entry.
	store.AddIfAbsent(
		context.Background(),
		testJob(),
		errors.New("boom"),
		domain.CategoryUnknown,
	)

	if len(repo.entries) != 0 {
		t.Errorf("expected no entries, got %d", len(repo.entries))
	}
}

func TestAddIfAbsent_PayloadSnapshot(t *testing.T) {
	repo := &mockDeadLetterRepo{}
	store := NewStore(repo, nil)

	job := testJob()
	job.SetPayload("media_path", "/work/job-1/media.mp4")
	store.AddIfAbsent(context.Background(), job, errors.New("x"), domain.CategoryUnknown)

	payload := repo.entries[0].OriginalPayload
	if payload["source_url"] != job.SourceURL {
		t.Errorf("payload source_url = %s", payload["source_url"])
	}
	if payload["media_path"] != "/work/job-1/media.mp4" {
		t.Errorf("payload media_path = %s", payload["media_path"])
	}
}

func TestRequeue(t *testing.T) {
	repo := &mockDeadLetterRepo{}
	store := NewStore(repo, nil)
	ctx := context.Background()

	store.AddIfAbsent(ctx, testJob(), errors.New("x"), domain.CategoryUnknown)
	entry := repo.entries[0]

	job, err := store.Requeue(ctx, entry)
	if err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}

	if !entry.IsRequeued {
		t.Error("entry should be marked requeued")
	}
	if job.RetryCount != 0 {
		t.Error("requeued job must carry no retry state")
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("Status = %s, want pending", job.Status)
	}
	if job.ParentJobID != "job-1" {
		t.Errorf("ParentJobID = %s, want job-1", job.ParentJobID)
	}
}
