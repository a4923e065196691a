// Package orchestrator drives a job through the ordered stage
// pipeline: download, audio extraction, transcription, segmentation.
// It owns every job state transition. Stage executor errors never
// propagate past it; they are classified and converted into retry
// scheduling or dead letter escalation. Cancellation is the one
// exception and is rethrown after the state is persisted.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mediascribe/pipeline/internal/core/domain"
	"github.com/mediascribe/pipeline/internal/infra/media"
	"github.com/mediascribe/pipeline/internal/infra/queue"
	"github.com/mediascribe/pipeline/internal/infra/storage"
	"github.com/mediascribe/pipeline/internal/notify"
	"github.com/mediascribe/pipeline/internal/observability/metrics"
	"github.com/mediascribe/pipeline/internal/pipeline/classify"
	"github.com/mediascribe/pipeline/internal/pipeline/deadletter"
	"github.com/mediascribe/pipeline/internal/pipeline/retrypolicy"
	"github.com/mediascribe/pipeline/internal/pipeline/segment"
	"github.com/mediascribe/pipeline/internal/pipeline/transcribe"
)

// Payload keys carrying stage outputs between stages and across
// retries.
const (
	payloadDuration       = "duration"
	payloadMediaPath      = "media_path"
	payloadAudioPath      = "audio_path"
	payloadTranscriptPath = "transcript_path"
	payloadLanguage       = "language"
	payloadModelUsed      = "model_used"
)

// Progress reached when each stage completes.
var stageProgress = map[domain.Stage]int{
	domain.StageDownload:        25,
	domain.StageAudioExtraction: 40,
	domain.StageTranscription:   75,
	domain.StageSegmentation:    95,
	domain.StageCompleted:       100,
}

// Downloader fetches source media and its metadata.
type Downloader interface {
	Probe(ctx context.Context, sourceURL string) (*media.VideoInfo, error)
	Download(ctx context.Context, videoID, sourceURL string) (string, error)
}

// AudioExtractor converts downloaded media to transcribable audio.
type AudioExtractor interface {
	Extract(ctx context.Context, inputPath string) (string, error)
}

// Transcriber runs one transcription with model downgrade handling.
type Transcriber interface {
	Run(ctx context.Context, audioPath, language string, model domain.ModelSize) (*transcribe.Result, error)
}

// Config holds orchestrator tunables.
type Config struct {
	WorkDir            string
	Language           string
	SegmentMaxLength   int
	SegmentMinLength   int
	SegmentOverlap     int
	PreserveParagraphs bool
	AutoEmbedding      bool

	// MaxRetries is recorded on new jobs for operator visibility; the
	// effective retry ceiling comes from the failure category's policy.
	MaxRetries int
}

// Orchestrator executes claimed jobs stage by stage.
type Orchestrator struct {
	jobs       storage.JobRepository
	segments   storage.SegmentRepository
	dlq        *deadletter.Store
	downloader Downloader
	extractor  AudioExtractor
	transcribe Transcriber
	queue      queue.Queue
	notifier   notify.Notifier
	cfg        Config
	log        *slog.Logger
	now        func() time.Time

	active sync.Map // videoID -> struct{}, jobs executing in this process
}

// New creates an orchestrator.
func New(
	jobs storage.JobRepository,
	segments storage.SegmentRepository,
	dlq *deadletter.Store,
	downloader Downloader,
	extractor AudioExtractor,
	transcriber Transcriber,
	q queue.Queue,
	notifier notify.Notifier,
	cfg Config,
	log *slog.Logger,
) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SegmentMaxLength <= 0 {
		cfg.SegmentMaxLength = 500
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Orchestrator{
		jobs:       jobs,
		segments:   segments,
		dlq:        dlq,
		downloader: downloader,
		extractor:  extractor,
		transcribe: transcriber,
		queue:      q,
		notifier:   notifier,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// Submit creates and enqueues a new job for a video unless an open job
// of the same type already exists, in which case the existing job is
// returned. This keeps re-entry idempotent when two submissions race.
func (o *Orchestrator) Submit(
	ctx context.Context,
	videoID, sourceURL string,
	t domain.JobType,
	priority domain.Priority,
) (*domain.Job, error) {
	existing, err := o.jobs.FindOpenByVideo(ctx, videoID, t)
	if err != nil {
		return nil, fmt.Errorf("failed to check for open job: %w", err)
	}
	if existing != nil {
		o.log.Info("Open job already exists for video, reusing",
			"videoID", videoID, "jobID", existing.ID)
		return existing, nil
	}

	job := &domain.Job{
		ID:           uuid.New().String(),
		Type:         t,
		VideoID:      videoID,
		SourceURL:    sourceURL,
		Priority:     priority,
		Status:       domain.JobStatusPending,
		CurrentStage: domain.StageNone,
		MaxRetries:   o.cfg.MaxRetries,
		CreatedAt:    o.now().UTC(),
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if o.queue != nil {
		if handle, err := o.queue.Enqueue(ctx, job); err != nil {
			o.log.Warn("Failed to enqueue job, workers will pick it up by polling",
				"jobID", job.ID, "error", err)
		} else {
			o.log.Debug("Job enqueued", "jobID", job.ID, "handle", handle)
		}
	}
	return job, nil
}

// Execute runs a claimed job from its current stage to a terminal or
// retry-pending state. It returns an error only for cancellation;
// stage failures are absorbed into job state.
func (o *Orchestrator) Execute(ctx context.Context, job *domain.Job) error {
	log := o.log.With("jobID", job.ID, "videoID", job.VideoID)
	metrics.JobsStarted.WithLabelValues(string(job.Type)).Inc()

	if job.VideoID != "" {
		o.active.Store(job.VideoID, struct{}{})
		defer o.active.Delete(job.VideoID)
	}

	for job.CurrentStage != domain.StageCompleted {
		if err := ctx.Err(); err != nil {
			return o.markCancelled(ctx, job, err)
		}

		stage := job.CurrentStage.Next()
		if stage == domain.StageCompleted {
			break
		}

		o.notify(ctx, job, stage, job.Progress, "Starting "+stageLabel(stage))
		o.touchWorkDir(job)

		start := o.now()
		err := o.runStage(ctx, job, stage)
		metrics.StageDuration.WithLabelValues(string(stage)).
			Observe(o.now().Sub(start).Seconds())

		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return o.markCancelled(ctx, job, err)
			}
			o.handleFailure(ctx, job, stage, err)
			return nil
		}

		job.CurrentStage = stage
		job.Progress = stageProgress[stage]
		if err := o.jobs.Update(ctx, job); err != nil {
			o.handleFailure(ctx, job, stage, err)
			return nil
		}
		o.notify(ctx, job, stage, job.Progress, stageLabel(stage)+" complete")
		log.Info("Stage complete", "stage", stage, "progress", job.Progress)
	}

	return o.complete(ctx, job)
}

func (o *Orchestrator) runStage(ctx context.Context, job *domain.Job, stage domain.Stage) error {
	switch stage {
	case domain.StageDownload:
		return o.runDownload(ctx, job)
	case domain.StageAudioExtraction:
		return o.runAudioExtraction(ctx, job)
	case domain.StageTranscription:
		return o.runTranscription(ctx, job)
	case domain.StageSegmentation:
		return o.runSegmentation(ctx, job)
	default:
		return fmt.Errorf("no executor for stage %s", stage)
	}
}

func (o *Orchestrator) runDownload(ctx context.Context, job *domain.Job) error {
	if path, ok := job.Payload[payloadMediaPath]; ok && fileExists(path) {
		return nil
	}

	info, err := o.downloader.Probe(ctx, job.SourceURL)
	if err != nil {
		return err
	}
	job.SetPayload(payloadDuration, strconv.FormatFloat(info.Duration, 'f', -1, 64))

	path, err := o.downloader.Download(ctx, job.VideoID, job.SourceURL)
	if err != nil {
		return err
	}
	job.SetPayload(payloadMediaPath, path)
	return nil
}

func (o *Orchestrator) runAudioExtraction(ctx context.Context, job *domain.Job) error {
	if path, ok := job.Payload[payloadAudioPath]; ok && fileExists(path) {
		return nil
	}

	mediaPath := job.Payload[payloadMediaPath]
	if !fileExists(mediaPath) {
		return fmt.Errorf("downloaded media missing at %q, cannot extract audio", mediaPath)
	}

	audioPath, err := o.extractor.Extract(ctx, mediaPath)
	if err != nil {
		return err
	}
	job.SetPayload(payloadAudioPath, audioPath)
	return nil
}

func (o *Orchestrator) runTranscription(ctx context.Context, job *domain.Job) error {
	if path, ok := job.Payload[payloadTranscriptPath]; ok && fileExists(path) {
		return nil
	}

	audioPath := job.Payload[payloadAudioPath]
	if !fileExists(audioPath) {
		return fmt.Errorf("extracted audio missing at %q, cannot transcribe", audioPath)
	}

	duration, _ := strconv.ParseFloat(job.Payload[payloadDuration], 64)
	model := transcribe.ModelForDuration(duration)

	result, err := o.transcribe.Run(ctx, audioPath, o.cfg.Language, model)
	if err != nil {
		return err
	}
	if result.Degraded {
		o.log.Warn("Transcription quality degraded",
			"jobID", job.ID, "requested", result.RequestedModel,
			"used", result.ModelUsed, "retries", result.Retries)
	}

	path, err := o.writeTranscript(job.VideoID, result.Output)
	if err != nil {
		return err
	}
	job.SetPayload(payloadTranscriptPath, path)
	job.SetPayload(payloadLanguage, result.Output.Language)
	job.SetPayload(payloadModelUsed, string(result.ModelUsed))
	return nil
}

func (o *Orchestrator) runSegmentation(ctx context.Context, job *domain.Job) error {
	raw, err := os.ReadFile(job.Payload[payloadTranscriptPath])
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}
	var out transcribe.Output
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to parse transcript: %w", err)
	}

	language := out.Language
	if language == "" {
		language = job.Payload[payloadLanguage]
	}

	var segs []domain.TranscriptSegment
	if len(out.Segments) > 0 {
		segs = make([]domain.TranscriptSegment, 0, len(out.Segments))
		for _, es := range out.Segments {
			parent := domain.TranscriptSegment{
				VideoID:    job.VideoID,
				StartTime:  es.Start,
				EndTime:    es.End,
				Text:       es.Text,
				Confidence: es.Confidence,
				Language:   language,
			}
			segs = append(segs, segment.Explode(parent, o.cfg.SegmentMaxLength)...)
		}
	} else {
		// Engine produced plain text without timings. Chunk it
		// semantically so downstream retrieval still gets bounded
		// segments.
		chunks := segment.SplitSemantic(out.Text, segment.Options{
			MaxLength:          o.cfg.SegmentMaxLength,
			MinLength:          o.cfg.SegmentMinLength,
			Overlap:            o.cfg.SegmentOverlap,
			PreserveParagraphs: o.cfg.PreserveParagraphs,
		})
		for _, chunk := range chunks {
			segs = append(segs, domain.TranscriptSegment{
				VideoID:  job.VideoID,
				Text:     chunk,
				Language: language,
			})
		}
	}

	segs = segment.Reindex(segs)
	for i := range segs {
		segs[i].ID = uuid.New().String()
	}

	for _, warning := range segment.Anomalies(segs) {
		o.log.Warn("Segment anomaly", "jobID", job.ID, "videoID", job.VideoID,
			"detail", warning)
	}

	if err := o.segments.ReplaceAll(ctx, job.VideoID, segs); err != nil {
		return err
	}
	metrics.SegmentsWritten.Add(float64(len(segs)))
	return nil
}

func (o *Orchestrator) writeTranscript(videoID string, out *transcribe.Output) (string, error) {
	dir := filepath.Join(o.cfg.WorkDir, videoID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.NewResourceError("transcription", domain.ResourceDisk, err)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode transcript: %w", err)
	}
	path := filepath.Join(dir, "transcript.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", domain.NewResourceError("transcription", domain.ResourceDisk, err)
	}
	return path, nil
}

// complete marks the job finished, releases its working files and, for
// transcription work, spawns the follow-on embedding job.
func (o *Orchestrator) complete(ctx context.Context, job *domain.Job) error {
	job.Status = domain.JobStatusCompleted
	job.CurrentStage = domain.StageCompleted
	job.Progress = 100
	if err := o.jobs.Update(ctx, job); err != nil {
		o.log.Error("Failed to persist completed job", "jobID", job.ID, "error", err)
		return nil
	}

	metrics.JobsCompleted.WithLabelValues(string(job.Type), string(job.Status)).Inc()
	o.notify(ctx, job, domain.StageCompleted, 100, "Processing complete")
	o.releaseWorkDir(job)

	if o.cfg.AutoEmbedding && job.Type != domain.JobTypeEmbeddingGeneration {
		o.spawnEmbeddingJob(ctx, job)
	}
	return nil
}

// spawnEmbeddingJob creates a fresh follow-on job with the parent's
// priority and no retry state. An enqueue failure is logged and
// surfaced separately; it never reverts the parent's completion.
func (o *Orchestrator) spawnEmbeddingJob(ctx context.Context, parent *domain.Job) {
	follow := &domain.Job{
		ID:           uuid.New().String(),
		Type:         domain.JobTypeEmbeddingGeneration,
		VideoID:      parent.VideoID,
		SourceURL:    parent.SourceURL,
		Priority:     parent.Priority,
		Status:       domain.JobStatusPending,
		CurrentStage: domain.StageNone,
		MaxRetries:   o.cfg.MaxRetries,
		ParentJobID:  parent.ID,
		CreatedAt:    o.now().UTC(),
	}

	if err := o.jobs.Create(ctx, follow); err != nil {
		o.log.Error("Failed to create follow-on embedding job",
			"parentJobID", parent.ID, "videoID", parent.VideoID, "error", err)
		return
	}
	if o.queue != nil {
		if _, err := o.queue.Enqueue(ctx, follow); err != nil {
			o.log.Error("Failed to enqueue follow-on embedding job",
				"jobID", follow.ID, "parentJobID", parent.ID, "error", err)
			return
		}
	}
	o.log.Info("Follow-on embedding job created",
		"jobID", follow.ID, "parentJobID", parent.ID)
}

// handleFailure classifies a stage error and either schedules a retry
// or escalates to the dead letter store. The original error is
// consumed here.
func (o *Orchestrator) handleFailure(
	ctx context.Context,
	job *domain.Job,
	stage domain.Stage,
	cause error,
) {
	category := classify.Classify(cause)
	policy := retrypolicy.ForCategory(category)

	// Permanent failures never retried, so they keep retryCount at
	// zero on first occurrence.
	if !policy.DirectToDeadLetter {
		job.RetryCount++
	}
	job.Status = domain.JobStatusFailed
	job.FailedStage = stage
	job.LastFailureCategory = &category
	job.ErrorMessage = cause.Error()
	job.ErrorType = fmt.Sprintf("%T", cause)
	job.ErrorStackTrace = string(debug.Stack())

	metrics.StageFailures.WithLabelValues(string(stage), string(category)).Inc()

	if policy.Exhausted(job.RetryCount) {
		job.NextRetryAt = nil
		o.dlq.AddIfAbsent(ctx, job, cause, category)
		o.releaseWorkDir(job)
		o.log.Error("Job failed permanently",
			"jobID", job.ID, "stage", stage, "category", category,
			"retries", job.RetryCount, "error", cause)
	} else {
		at := o.now().UTC().Add(policy.Delay(job.RetryCount - 1))
		job.NextRetryAt = &at
		metrics.RetriesScheduled.WithLabelValues(string(category)).Inc()
		o.log.Warn("Stage failed, retry scheduled",
			"jobID", job.ID, "stage", stage, "category", category,
			"attempt", job.RetryCount, "nextRetryAt", at, "error", cause)
	}

	if err := o.jobs.Update(ctx, job); err != nil {
		o.log.Error("CRITICAL: failed to persist job failure state",
			"jobID", job.ID, "error", err)
	}
	o.notify(ctx, job, stage, job.Progress, userMessage(category))
}

// markCancelled persists the cancelled state and rethrows, since
// cancellation is a caller-driven control signal, not a failure.
func (o *Orchestrator) markCancelled(ctx context.Context, job *domain.Job, cause error) error {
	job.Status = domain.JobStatusCancelled
	job.NextRetryAt = nil

	// The job context is already dead, persist with a fresh one.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.jobs.Update(persistCtx, job); err != nil {
		o.log.Error("Failed to persist cancelled job", "jobID", job.ID, "error", err)
	}
	o.notify(persistCtx, job, job.CurrentStage, job.Progress, "Processing cancelled")
	o.releaseWorkDir(job)

	o.log.Info("Job cancelled", "jobID", job.ID, "stage", job.CurrentStage)
	return cause
}

// WorkDirInUse reports whether the named working directory belongs to
// a job currently executing in this process. The janitor consults it
// before sweeping.
func (o *Orchestrator) WorkDirInUse(name string) bool {
	_, ok := o.active.Load(name)
	return ok
}

// touchWorkDir refreshes the working directory's timestamp at each
// stage boundary so a long-running job is never mistaken for an
// orphan.
func (o *Orchestrator) touchWorkDir(job *domain.Job) {
	if o.cfg.WorkDir == "" || job.VideoID == "" {
		return
	}
	dir := filepath.Join(o.cfg.WorkDir, job.VideoID)
	now := o.now()
	if err := os.Chtimes(dir, now, now); err != nil && !os.IsNotExist(err) {
		o.log.Debug("Failed to refresh working directory timestamp",
			"jobID", job.ID, "dir", dir, "error", err)
	}
}

// releaseWorkDir removes the job's working files. Called only on
// terminal exits; a job awaiting retry keeps its artifacts so the
// retry can resume from the failed stage. The payload paths are
// cleared so a later re-entry cannot trust stale locations.
func (o *Orchestrator) releaseWorkDir(job *domain.Job) {
	if o.cfg.WorkDir == "" || job.VideoID == "" {
		return
	}
	dir := filepath.Join(o.cfg.WorkDir, job.VideoID)
	if err := os.RemoveAll(dir); err != nil {
		o.log.Warn("Failed to remove working directory",
			"jobID", job.ID, "dir", dir, "error", err)
	}
	delete(job.Payload, payloadMediaPath)
	delete(job.Payload, payloadAudioPath)
	delete(job.Payload, payloadTranscriptPath)
}

func (o *Orchestrator) notify(
	ctx context.Context,
	job *domain.Job,
	stage domain.Stage,
	progress int,
	message string,
) {
	if o.notifier == nil {
		return
	}
	o.notifier.Notify(ctx, domain.ProgressEvent{
		JobID:     job.ID,
		VideoID:   job.VideoID,
		Stage:     stage,
		Progress:  progress,
		Message:   message,
		Timestamp: o.now().UTC(),
	})
}

// userMessage maps a failure category to the message shown to end
// users. Raw error text stays internal.
func userMessage(category domain.FailureCategory) string {
	switch category {
	case domain.CategoryTransientNetwork:
		return "A temporary network problem interrupted processing. It will be retried automatically."
	case domain.CategoryResourceNotAvail:
		return "Processing resources are temporarily unavailable. The job will be retried shortly."
	case domain.CategoryPermanent:
		return "This video cannot be processed. It may be unavailable, private, or in an unsupported format."
	default:
		return "An unexpected error interrupted processing. It will be retried."
	}
}

func stageLabel(stage domain.Stage) string {
	switch stage {
	case domain.StageDownload:
		return "download"
	case domain.StageAudioExtraction:
		return "audio extraction"
	case domain.StageTranscription:
		return "transcription"
	case domain.StageSegmentation:
		return "segmentation"
	default:
		return string(stage)
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
