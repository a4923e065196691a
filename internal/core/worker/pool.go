// Package worker runs the job worker pool and the working-directory
// janitor.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mediascribe/pipeline/internal/core/domain"
	"github.com/mediascribe/pipeline/internal/infra/storage"
)

// Executor runs one claimed job to a terminal or retry-pending state.
type Executor interface {
	Execute(ctx context.Context, job *domain.Job) error
}

// Pool polls for due jobs and runs them across a fixed set of
// workers. Claiming is atomic in the repository, so two workers never
// pick up the same job.
type Pool struct {
	jobs         storage.JobRepository
	executor     Executor
	count        int
	pollInterval time.Duration
	log          *slog.Logger

	wg sync.WaitGroup
}

// NewPool creates a worker pool.
func NewPool(
	jobs storage.JobRepository,
	executor Executor,
	count int,
	pollInterval time.Duration,
	log *slog.Logger,
) *Pool {
	if count <= 0 {
		count = 1
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		jobs:         jobs,
		executor:     executor,
		count:        count,
		pollInterval: pollInterval,
		log:          log,
	}
}

// Start launches the workers. It returns immediately; use Wait to
// block until all workers have drained after ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.log.Info("Starting worker pool", "workers", p.count, "pollInterval", p.pollInterval)
	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.With("worker", id)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("Worker stopping")
			return
		case <-ticker.C:
			// Drain everything due before sleeping again.
			for {
				if ctx.Err() != nil {
					return
				}
				if !p.runOne(ctx, log) {
					break
				}
			}
		}
	}
}

// runOne claims and executes at most one job. It reports whether a
// job was found.
func (p *Pool) runOne(ctx context.Context, log *slog.Logger) bool {
	job, err := p.jobs.ClaimNextDue(ctx, time.Now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			log.Error("Failed to claim job", "error", err)
		}
		return false
	}
	if job == nil {
		return false
	}

	log.Info("Claimed job", "jobID", job.ID, "type", job.Type,
		"stage", job.CurrentStage, "retryCount", job.RetryCount)

	if err := p.executor.Execute(ctx, job); err != nil {
		// Only cancellation escapes the orchestrator.
		log.Info("Job execution interrupted", "jobID", job.ID, "error", err)
		return false
	}
	return true
}
