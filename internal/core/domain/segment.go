package domain

// TranscriptSegment is a bounded-length slice of transcript text with
// timing metadata. Segments for one video carry dense zero-based
// indices ordered by timeline position.
type TranscriptSegment struct {
	ID           string  `json:"id"            db:"id"`
	VideoID      string  `json:"video_id"      db:"video_id"`
	SegmentIndex int     `json:"segment_index" db:"segment_index"`
	StartTime    float64 `json:"start_time"    db:"start_time"`
	EndTime      float64 `json:"end_time"      db:"end_time"`
	Text         string  `json:"text"          db:"text"`
	Confidence   float64 `json:"confidence"    db:"confidence"`
	Language     string  `json:"language"      db:"language"`
	Speaker      string  `json:"speaker"       db:"speaker"`
}
