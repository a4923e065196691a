// Package queue is the job-enqueue boundary. The scheduler consuming
// these messages is an external system; this package only submits.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

// Message is the wire payload published for a job.
type Message struct {
	JobID      string          `json:"job_id"`
	Type       domain.JobType  `json:"type"`
	VideoID    string          `json:"video_id"`
	Priority   domain.Priority `json:"priority"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Queue submits jobs for execution. The returned handle is opaque and
// used for diagnostics only.
type Queue interface {
	Enqueue(ctx context.Context, job *domain.Job) (handle string, err error)
	Close() error
}

// MemoryQueue keeps messages in memory, for tests and single-process
// deployments where the worker pool drains the job table directly.
type MemoryQueue struct {
	mu       sync.Mutex
	messages []Message
}

// NewMemoryQueue creates an in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *domain.Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, Message{
		JobID:      job.ID,
		Type:       job.Type,
		VideoID:    job.VideoID,
		Priority:   job.Priority,
		EnqueuedAt: time.Now().UTC(),
	})
	return job.ID, nil
}

func (q *MemoryQueue) Close() error { return nil }

// Messages returns a snapshot of enqueued messages.
func (q *MemoryQueue) Messages() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, len(q.messages))
	copy(out, q.messages)
	return out
}
