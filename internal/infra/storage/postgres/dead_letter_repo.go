package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

// DeadLetterRepo implements storage.DeadLetterRepository using
// PostgreSQL.
type DeadLetterRepo struct {
	db *DB
}

// NewDeadLetterRepo creates a new PostgreSQL dead letter repository.
func NewDeadLetterRepo(db *DB) *DeadLetterRepo {
	return &DeadLetterRepo{db: db}
}

type deadLetterRow struct {
	ID               string    `db:"id"`
	JobID            string    `db:"job_id"`
	FailureReason    string    `db:"failure_reason"`
	FailureDetails   []byte    `db:"failure_details"`
	OriginalPayload  []byte    `db:"original_payload"`
	AttemptedRetries int       `db:"attempted_retries"`
	FailedAt         time.Time `db:"failed_at"`
	IsRequeued       bool      `db:"is_requeued"`
}

func (r *deadLetterRow) toDomain() (*domain.DeadLetterEntry, error) {
	entry := &domain.DeadLetterEntry{
		ID:               r.ID,
		JobID:            r.JobID,
		FailureReason:    domain.DeadLetterReason(r.FailureReason),
		AttemptedRetries: r.AttemptedRetries,
		FailedAt:         r.FailedAt,
		IsRequeued:       r.IsRequeued,
	}
	if len(r.FailureDetails) > 0 {
		if err := json.Unmarshal(r.FailureDetails, &entry.FailureDetails); err != nil {
			return nil, fmt.Errorf("failed to decode failure details: %w", err)
		}
	}
	if len(r.OriginalPayload) > 0 {
		if err := json.Unmarshal(r.OriginalPayload, &entry.OriginalPayload); err != nil {
			return nil, fmt.Errorf("failed to decode original payload: %w", err)
		}
	}
	return entry, nil
}

// Add persists a new entry. The job_id unique constraint backs up the
// caller's existence check against races.
func (r *DeadLetterRepo) Add(ctx context.Context, entry *domain.DeadLetterEntry) error {
	details, err := json.Marshal(entry.FailureDetails)
	if err != nil {
		return fmt.Errorf("failed to encode failure details: %w", err)
	}
	payload, err := json.Marshal(entry.OriginalPayload)
	if err != nil {
		return fmt.Errorf("failed to encode original payload: %w", err)
	}

	query := `
		INSERT INTO dead_letter_entries
			(id, job_id, failure_reason, failure_details, original_payload,
			 attempted_retries, failed_at, is_requeued)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO NOTHING
	`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.JobID, string(entry.FailureReason), details, payload,
		entry.AttemptedRetries, entry.FailedAt, entry.IsRequeued,
	)
	if err != nil {
		return fmt.Errorf("failed to add dead letter entry: %w", err)
	}
	return nil
}

// GetByJobID returns the entry for a job id, or nil when absent.
func (r *DeadLetterRepo) GetByJobID(
	ctx context.Context,
	jobID string,
) (*domain.DeadLetterEntry, error) {
	query := `
		SELECT id, job_id, failure_reason, failure_details, original_payload,
		       attempted_retries, failed_at, is_requeued
		FROM dead_letter_entries
		WHERE job_id = $1
	`

	var row deadLetterRow
	err := r.db.GetContext(ctx, &row, query, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter entry: %w", err)
	}
	return row.toDomain()
}

// MarkRequeued flags an entry as manually requeued.
func (r *DeadLetterRepo) MarkRequeued(ctx context.Context, id string) error {
	query := `
		UPDATE dead_letter_entries
		SET is_requeued = TRUE
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// List returns entries for operator inspection, newest first.
func (r *DeadLetterRepo) List(
	ctx context.Context,
	limit int,
) ([]*domain.DeadLetterEntry, error) {
	query := `
		SELECT id, job_id, failure_reason, failure_details, original_payload,
		       attempted_retries, failed_at, is_requeued
		FROM dead_letter_entries
		ORDER BY failed_at DESC
		LIMIT $1
	`

	var rows []deadLetterRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list dead letter entries: %w", err)
	}

	entries := make([]*domain.DeadLetterEntry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
