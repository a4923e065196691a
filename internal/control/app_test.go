package control

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/mediascribe/pipeline/internal/core/domain"
	"github.com/mediascribe/pipeline/internal/infra/queue"
	"github.com/mediascribe/pipeline/internal/infra/storage/memory"
	"github.com/mediascribe/pipeline/internal/pipeline/deadletter"
)

// ==================== Fixtures ====================

func newTestApp(t *testing.T) *App {
	t.Helper()
	store := memory.NewStore()
	jobs := memory.NewJobRepo(store)
	dlRepo := memory.NewDeadLetterRepo(store)
	return &App{
		jobs:        jobs,
		deadLetters: dlRepo,
		dlq:         deadletter.NewStore(dlRepo, nil),
		queue:       queue.NewMemoryQueue(),
		log:         slog.Default(),
	}
}

func deadLetteredJob() *domain.Job {
	return &domain.Job{
		ID:           "job-dl",
		Type:         domain.JobTypeTranscription,
		VideoID:      "vid-1",
		SourceURL:    "https://example.com/v/1",
		Status:       domain.JobStatusFailed,
		CurrentStage: domain.StageDownload,
		Priority:     domain.PriorityHigh,
		RetryCount:   5,
	}
}

// ==================== RequeueDeadLetter ====================

func TestRequeueDeadLetter_CreatesFreshJob(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	app.dlq.AddIfAbsent(ctx, deadLetteredJob(), errors.New("connection refused"), domain.CategoryTransientNetwork)

	job, err := app.RequeueDeadLetter(ctx, "job-dl")
	if err != nil {
		t.Fatalf("RequeueDeadLetter failed: %v", err)
	}

	if job.ID == "job-dl" {
		t.Error("requeued job must get a fresh id")
	}
	if job.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", job.RetryCount)
	}
	if job.Priority != domain.PriorityHigh {
		t.Errorf("Priority = %d, want high", job.Priority)
	}
	if job.ParentJobID != "job-dl" {
		t.Errorf("ParentJobID = %s, want job-dl", job.ParentJobID)
	}

	persisted, err := app.jobs.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("requeued job not persisted: %v", err)
	}
	if persisted.Status != domain.JobStatusPending {
		t.Errorf("Status = %s, want pending", persisted.Status)
	}
}

func TestRequeueDeadLetter_NoEntry(t *testing.T) {
	app := newTestApp(t)

	if _, err := app.RequeueDeadLetter(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing dead letter entry")
	}
}

func TestRequeueDeadLetter_AlreadyRequeued(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	app.dlq.AddIfAbsent(ctx, deadLetteredJob(), errors.New("boom"), domain.CategoryUnknown)

	if _, err := app.RequeueDeadLetter(ctx, "job-dl"); err != nil {
		t.Fatalf("first requeue failed: %v", err)
	}
	if _, err := app.RequeueDeadLetter(ctx, "job-dl"); err == nil {
		t.Fatal("expected error for already requeued entry")
	}
}
