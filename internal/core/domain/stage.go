package domain

// Stage is one discrete phase of the processing pipeline.
type Stage string

const (
	StageNone            Stage = "none"
	StageDownload        Stage = "download"
	StageAudioExtraction Stage = "audio_extraction"
	StageTranscription   Stage = "transcription"
	StageSegmentation    Stage = "segmentation"
	StageCompleted       Stage = "completed"
)

// PipelineStages is the ordered sequence a job advances through.
// StageNone and StageCompleted bracket the sequence.
var PipelineStages = []Stage{
	StageDownload,
	StageAudioExtraction,
	StageTranscription,
	StageSegmentation,
}

var stageOrder = map[Stage]int{
	StageNone:            0,
	StageDownload:        1,
	StageAudioExtraction: 2,
	StageTranscription:   3,
	StageSegmentation:    4,
	StageCompleted:       5,
}

// After reports whether s comes after other in pipeline order.
func (s Stage) After(other Stage) bool {
	return stageOrder[s] > stageOrder[other]
}

// Next returns the stage following s, or StageCompleted once the
// sequence is exhausted.
func (s Stage) Next() Stage {
	switch s {
	case StageNone:
		return StageDownload
	case StageDownload:
		return StageAudioExtraction
	case StageAudioExtraction:
		return StageTranscription
	case StageTranscription:
		return StageSegmentation
	default:
		return StageCompleted
	}
}
