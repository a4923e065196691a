package postgres

import (
	"context"
	"fmt"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

// SegmentRepo implements storage.SegmentRepository using PostgreSQL.
type SegmentRepo struct {
	db *DB
}

// NewSegmentRepo creates a new PostgreSQL segment repository.
func NewSegmentRepo(db *DB) *SegmentRepo {
	return &SegmentRepo{db: db}
}

type segmentRow struct {
	ID           string  `db:"id"`
	VideoID      string  `db:"video_id"`
	SegmentIndex int     `db:"segment_index"`
	StartTime    float64 `db:"start_time"`
	EndTime      float64 `db:"end_time"`
	Text         string  `db:"text"`
	Confidence   float64 `db:"confidence"`
	Language     string  `db:"language"`
	Speaker      string  `db:"speaker"`
}

func (r *segmentRow) toDomain() domain.TranscriptSegment {
	return domain.TranscriptSegment{
		ID:           r.ID,
		VideoID:      r.VideoID,
		SegmentIndex: r.SegmentIndex,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		Text:         r.Text,
		Confidence:   r.Confidence,
		Language:     r.Language,
		Speaker:      r.Speaker,
	}
}

// ReplaceAll swaps a video's segments inside one transaction so a
// reader never observes a partial transcript.
func (r *SegmentRepo) ReplaceAll(
	ctx context.Context,
	videoID string,
	segments []domain.TranscriptSegment,
) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transcript_segments WHERE video_id = $1`, videoID,
	); err != nil {
		return fmt.Errorf("failed to clear segments: %w", err)
	}

	query := `
		INSERT INTO transcript_segments
			(id, video_id, segment_index, start_time, end_time, text,
			 confidence, language, speaker)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, seg := range segments {
		if _, err := tx.ExecContext(ctx, query,
			seg.ID, videoID, seg.SegmentIndex, seg.StartTime, seg.EndTime,
			seg.Text, seg.Confidence, seg.Language, seg.Speaker,
		); err != nil {
			return fmt.Errorf("failed to insert segment %d: %w", seg.SegmentIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit segments: %w", err)
	}
	return nil
}

// ListByVideo returns a video's segments ordered by index.
func (r *SegmentRepo) ListByVideo(
	ctx context.Context,
	videoID string,
) ([]domain.TranscriptSegment, error) {
	query := `
		SELECT id, video_id, segment_index, start_time, end_time, text,
		       confidence, language, speaker
		FROM transcript_segments
		WHERE video_id = $1
		ORDER BY segment_index ASC
	`

	var rows []segmentRow
	if err := r.db.SelectContext(ctx, &rows, query, videoID); err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}

	segments := make([]domain.TranscriptSegment, 0, len(rows))
	for i := range rows {
		segments = append(segments, rows[i].toDomain())
	}
	return segments, nil
}
