package segment

import (
	"fmt"
	"sort"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

// Explode re-splits one over-long transcription-engine segment into
// multiple bounded segments. Sub-segments inherit the parent's
// language, confidence, and speaker, and their time windows are
// interpolated proportionally to text position. Indices are left for
// Reindex to assign.
func Explode(parent domain.TranscriptSegment, maxLen int) []domain.TranscriptSegment {
	pieces := Split(parent.Text, maxLen)
	if len(pieces) <= 1 {
		out := parent
		if len(pieces) == 1 {
			out.Text = pieces[0]
		}
		return []domain.TranscriptSegment{out}
	}

	total := 0
	for _, p := range pieces {
		total += runeLen(p)
	}

	duration := parent.EndTime - parent.StartTime
	segs := make([]domain.TranscriptSegment, 0, len(pieces))
	offset := 0
	for _, p := range pieces {
		start := parent.StartTime + duration*float64(offset)/float64(total)
		offset += runeLen(p)
		end := parent.StartTime + duration*float64(offset)/float64(total)

		segs = append(segs, domain.TranscriptSegment{
			VideoID:    parent.VideoID,
			StartTime:  start,
			EndTime:    end,
			Text:       p,
			Confidence: parent.Confidence,
			Language:   parent.Language,
			Speaker:    parent.Speaker,
		})
	}
	return segs
}

// Reindex orders segments by timeline position and assigns dense
// zero-based indices. It is applied every time a video's segment set
// is rewritten.
func Reindex(segs []domain.TranscriptSegment) []domain.TranscriptSegment {
	out := make([]domain.TranscriptSegment, len(segs))
	copy(out, segs)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].EndTime < out[j].EndTime
	})

	for i := range out {
		out[i].SegmentIndex = i
	}
	return out
}

// Anomalies reports soft-invariant violations: overlapping windows,
// non-increasing timestamps, and empty text. Callers log these as
// warnings; they are never auto-corrected.
func Anomalies(segs []domain.TranscriptSegment) []string {
	var warnings []string
	for i, s := range segs {
		if s.EndTime <= s.StartTime {
			warnings = append(warnings, fmt.Sprintf(
				"segment %d: end time %.3f not after start time %.3f",
				s.SegmentIndex, s.EndTime, s.StartTime))
		}
		if s.Text == "" {
			warnings = append(warnings, fmt.Sprintf("segment %d: empty text", s.SegmentIndex))
		}
		if i > 0 && s.StartTime < segs[i-1].EndTime {
			warnings = append(warnings, fmt.Sprintf(
				"segment %d: window overlaps previous (%.3f < %.3f)",
				s.SegmentIndex, s.StartTime, segs[i-1].EndTime))
		}
	}
	return warnings
}
