package domain

import "time"

// ProgressEvent is a best-effort notification emitted as a job moves
// through the pipeline. Delivery is never allowed to block progress.
type ProgressEvent struct {
	JobID     string    `json:"job_id"`
	VideoID   string    `json:"video_id"`
	Stage     Stage     `json:"stage"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
