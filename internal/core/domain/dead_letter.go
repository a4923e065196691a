package domain

import "time"

// DeadLetterReason records why a job was escalated.
type DeadLetterReason string

const (
	DeadLetterPermanentError     DeadLetterReason = "permanent_error"
	DeadLetterMaxRetriesExceeded DeadLetterReason = "max_retries_exceeded"
)

// FailureDetails is the diagnostic snapshot kept for operators.
// It is never shown to end users.
type FailureDetails struct {
	ErrorType    string          `json:"error_type"`
	ErrorMessage string          `json:"error_message"`
	StackTrace   string          `json:"stack_trace,omitempty"`
	Category     FailureCategory `json:"category"`
	FailedStage  Stage           `json:"failed_stage"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// DeadLetterEntry is the terminal record for a job that exhausted
// retries or failed permanently. Exactly one entry exists per job id.
type DeadLetterEntry struct {
	ID              string            `json:"id"               db:"id"`
	JobID           string            `json:"job_id"           db:"job_id"`
	FailureReason   DeadLetterReason  `json:"failure_reason"   db:"failure_reason"`
	FailureDetails  FailureDetails    `json:"failure_details"  db:"-"`
	OriginalPayload map[string]string `json:"original_payload" db:"-"`
	AttemptedRetries int              `json:"attempted_retries" db:"attempted_retries"`
	FailedAt        time.Time         `json:"failed_at"        db:"failed_at"`
	IsRequeued      bool              `json:"is_requeued"      db:"is_requeued"`
}
