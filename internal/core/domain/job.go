package domain

import "time"

// JobType identifies the kind of work a job performs.
type JobType string

const (
	JobTypeVideoProcessing     JobType = "video_processing"
	JobTypeTranscription       JobType = "transcription"
	JobTypeEmbeddingGeneration JobType = "embedding_generation"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Priority orders jobs in the queue. Higher runs first.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
)

// Job is the unit of work driven through the stage pipeline.
type Job struct {
	ID           string    `json:"id"             db:"id"`
	Type         JobType   `json:"type"           db:"type"`
	VideoID      string    `json:"video_id"       db:"video_id"`
	SourceURL    string    `json:"source_url"     db:"source_url"`
	Priority     Priority  `json:"priority"       db:"priority"`
	Status       JobStatus `json:"status"         db:"status"`
	CurrentStage Stage     `json:"current_stage"  db:"current_stage"`
	Progress     int       `json:"progress"       db:"progress"`

	RetryCount  int        `json:"retry_count"   db:"retry_count"`
	MaxRetries  int        `json:"max_retries"   db:"max_retries"`
	NextRetryAt *time.Time `json:"next_retry_at" db:"next_retry_at"`

	LastFailureCategory *FailureCategory `json:"last_failure_category" db:"last_failure_category"`
	ErrorMessage        string           `json:"error_message"         db:"error_message"`
	ErrorStackTrace     string           `json:"-"                     db:"error_stack_trace"`
	ErrorType           string           `json:"error_type"            db:"error_type"`
	FailedStage         Stage            `json:"failed_stage"          db:"failed_stage"`

	// ParentJobID links a follow-on job (e.g. embedding generation)
	// back to the job that spawned it.
	ParentJobID string `json:"parent_job_id" db:"parent_job_id"`

	// Payload carries stage outputs needed for idempotent re-entry,
	// persisted as JSON.
	Payload map[string]string `json:"payload" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether the job can no longer make progress.
// A failed job awaiting a retry is not terminal.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusCancelled:
		return true
	case JobStatusFailed:
		return j.NextRetryAt == nil
	default:
		return false
	}
}

// SetPayload stores a stage output key, allocating the map lazily.
func (j *Job) SetPayload(key, value string) {
	if j.Payload == nil {
		j.Payload = make(map[string]string)
	}
	j.Payload[key] = value
}
