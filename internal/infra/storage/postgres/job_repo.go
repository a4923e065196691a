package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mediascribe/pipeline/internal/core/domain"
	"github.com/mediascribe/pipeline/internal/infra/storage"
)

// JobRepo implements storage.JobRepository using PostgreSQL.
type JobRepo struct {
	db *DB
}

// NewJobRepo creates a new PostgreSQL job repository.
func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

type jobRow struct {
	ID                  string         `db:"id"`
	Type                string         `db:"type"`
	VideoID             string         `db:"video_id"`
	SourceURL           string         `db:"source_url"`
	Priority            int            `db:"priority"`
	Status              string         `db:"status"`
	CurrentStage        string         `db:"current_stage"`
	Progress            int            `db:"progress"`
	RetryCount          int            `db:"retry_count"`
	MaxRetries          int            `db:"max_retries"`
	NextRetryAt         *time.Time     `db:"next_retry_at"`
	LastFailureCategory sql.NullString `db:"last_failure_category"`
	ErrorMessage        string         `db:"error_message"`
	ErrorStackTrace     string         `db:"error_stack_trace"`
	ErrorType           string         `db:"error_type"`
	FailedStage         string         `db:"failed_stage"`
	ParentJobID         string         `db:"parent_job_id"`
	Payload             []byte         `db:"payload"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

const jobColumns = `id, type, video_id, source_url, priority, status, current_stage,
	progress, retry_count, max_retries, next_retry_at, last_failure_category,
	error_message, error_stack_trace, error_type, failed_stage, parent_job_id,
	payload, created_at, updated_at`

func (r *jobRow) toDomain() (*domain.Job, error) {
	job := &domain.Job{
		ID:              r.ID,
		Type:            domain.JobType(r.Type),
		VideoID:         r.VideoID,
		SourceURL:       r.SourceURL,
		Priority:        domain.Priority(r.Priority),
		Status:          domain.JobStatus(r.Status),
		CurrentStage:    domain.Stage(r.CurrentStage),
		Progress:        r.Progress,
		RetryCount:      r.RetryCount,
		MaxRetries:      r.MaxRetries,
		NextRetryAt:     r.NextRetryAt,
		ErrorMessage:    r.ErrorMessage,
		ErrorStackTrace: r.ErrorStackTrace,
		ErrorType:       r.ErrorType,
		FailedStage:     domain.Stage(r.FailedStage),
		ParentJobID:     r.ParentJobID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.LastFailureCategory.Valid {
		c := domain.FailureCategory(r.LastFailureCategory.String)
		job.LastFailureCategory = &c
	}
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &job.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode job payload: %w", err)
		}
	}
	return job, nil
}

func encodePayload(job *domain.Job) ([]byte, error) {
	if job.Payload == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(job.Payload)
}

func categoryValue(job *domain.Job) any {
	if job.LastFailureCategory == nil {
		return nil
	}
	return string(*job.LastFailureCategory)
}

// Create persists a new job.
func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	payload, err := encodePayload(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (id, type, video_id, source_url, priority, status,
			current_stage, progress, retry_count, max_retries, next_retry_at,
			last_failure_category, error_message, error_stack_trace, error_type,
			failed_stage, parent_job_id, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NOW(), NOW())
	`
	_, err = r.db.ExecContext(ctx, query,
		job.ID, string(job.Type), job.VideoID, job.SourceURL, int(job.Priority),
		string(job.Status), string(job.CurrentStage), job.Progress,
		job.RetryCount, job.MaxRetries, job.NextRetryAt, categoryValue(job),
		job.ErrorMessage, job.ErrorStackTrace, job.ErrorType,
		string(job.FailedStage), job.ParentJobID, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Get retrieves a job by id.
func (r *JobRepo) Get(ctx context.Context, id string) (*domain.Job, error) {
	var row jobRow
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE id = $1`, jobColumns)

	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toDomain()
}

// Update persists the full mutable state of a job.
func (r *JobRepo) Update(ctx context.Context, job *domain.Job) error {
	payload, err := encodePayload(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs SET
			status = $2, current_stage = $3, progress = $4,
			retry_count = $5, max_retries = $6, next_retry_at = $7,
			last_failure_category = $8, error_message = $9,
			error_stack_trace = $10, error_type = $11, failed_stage = $12,
			payload = $13, updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		job.ID, string(job.Status), string(job.CurrentStage), job.Progress,
		job.RetryCount, job.MaxRetries, job.NextRetryAt, categoryValue(job),
		job.ErrorMessage, job.ErrorStackTrace, job.ErrorType,
		string(job.FailedStage), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrJobNotFound
	}
	return nil
}

// ClaimNextDue atomically claims the next runnable job. SKIP LOCKED
// keeps two workers from ever claiming the same row.
func (r *JobRepo) ClaimNextDue(ctx context.Context, now time.Time) (*domain.Job, error) {
	query := fmt.Sprintf(`
		UPDATE jobs SET status = 'running', next_retry_at = NULL, updated_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending'
			   OR (status = 'failed' AND next_retry_at IS NOT NULL AND next_retry_at <= $1)
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING %s
	`, jobColumns)

	var row jobRow
	err := r.db.GetContext(ctx, &row, query, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Nothing due
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return row.toDomain()
}

// FindOpenByVideo returns a non-terminal job for a video and type.
func (r *JobRepo) FindOpenByVideo(
	ctx context.Context,
	videoID string,
	t domain.JobType,
) (*domain.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE video_id = $1 AND type = $2
		  AND (status IN ('pending', 'running')
		       OR (status = 'failed' AND next_retry_at IS NOT NULL))
		ORDER BY created_at DESC
		LIMIT 1
	`, jobColumns)

	var row jobRow
	err := r.db.GetContext(ctx, &row, query, videoID, string(t))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open job: %w", err)
	}
	return row.toDomain()
}
