// Package control wires the pipeline's components together and
// manages their lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mediascribe/pipeline/internal/core/config"
	"github.com/mediascribe/pipeline/internal/core/domain"
	"github.com/mediascribe/pipeline/internal/core/worker"
	"github.com/mediascribe/pipeline/internal/infra/media"
	"github.com/mediascribe/pipeline/internal/infra/queue"
	redisclient "github.com/mediascribe/pipeline/internal/infra/redis"
	"github.com/mediascribe/pipeline/internal/infra/storage"
	"github.com/mediascribe/pipeline/internal/infra/storage/memory"
	"github.com/mediascribe/pipeline/internal/infra/storage/postgres"
	"github.com/mediascribe/pipeline/internal/notify"
	"github.com/mediascribe/pipeline/internal/pipeline/deadletter"
	"github.com/mediascribe/pipeline/internal/pipeline/orchestrator"
	"github.com/mediascribe/pipeline/internal/pipeline/transcribe"
)

// App is the main application struct managing the pipeline lifecycle.
type App struct {
	cfg          *config.AppConfig
	db           *postgres.DB
	redisClient  *redisclient.Client
	queue        queue.Queue
	jobs         storage.JobRepository
	deadLetters  storage.DeadLetterRepository
	dlq          *deadletter.Store
	orch         *orchestrator.Orchestrator
	pool         *worker.Pool
	janitor      *worker.Janitor
	healthServer *Server
	log          *slog.Logger
}

// NewApp creates an App with all dependencies initialized.
func NewApp(cfg *config.AppConfig, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	app := &App{cfg: cfg, log: log}
	checks := make(map[string]HealthCheck)

	// 1. Storage
	var (
		jobRepo     storage.JobRepository
		dlRepo      storage.DeadLetterRepository
		segmentRepo storage.SegmentRepository
	)
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		app.db = db
		jobRepo = postgres.NewJobRepo(db)
		dlRepo = postgres.NewDeadLetterRepo(db)
		segmentRepo = postgres.NewSegmentRepo(db)
		checks["database"] = db.Health
		log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewStore()
		jobRepo = memory.NewJobRepo(store)
		dlRepo = memory.NewDeadLetterRepo(store)
		segmentRepo = memory.NewSegmentRepo(store)
		log.Info("Using memory storage")
	}
	app.jobs = jobRepo
	app.deadLetters = dlRepo
	app.dlq = deadletter.NewStore(dlRepo, log)

	// 2. Progress notification
	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	if cfg.Redis.URL != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, pub/sub progress disabled", "error", err)
		} else {
			app.redisClient = redisClient
			notifiers = append(notifiers, redisclient.NewNotifier(redisClient, log))
			checks["redis"] = redisClient.Health
		}
	}

	// 3. Job queue
	if cfg.Queue.URL != "" {
		mq, err := queue.NewRabbitMQ(cfg.Queue)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		app.queue = mq
		log.Info("Using RabbitMQ job queue")
	} else {
		app.queue = queue.NewMemoryQueue()
		log.Info("Using memory job queue")
	}

	// 4. Media adapters
	downloader := media.NewDownloader(
		cfg.Media.YtDlpPath, cfg.Media.WorkDir, cfg.Media.DownloadTimeout.Std(), log)
	extractor := media.NewAudioExtractor(
		cfg.Media.FFmpegPath, cfg.Media.ExtractTimeout.Std(), log)
	whisper := media.NewWhisper(
		cfg.Media.WhisperPath, cfg.Media.ModelsDir, cfg.Media.TranscribeTimeout.Std(), log)
	loop := transcribe.NewLoop(whisper, !cfg.Transcription.DisableAutoDowngrade, log)

	// 5. Orchestrator and workers
	app.orch = orchestrator.New(
		jobRepo, segmentRepo,
		app.dlq,
		downloader, extractor, loop,
		app.queue, notifiers,
		orchestrator.Config{
			WorkDir:            cfg.Media.WorkDir,
			Language:           cfg.Transcription.Language,
			SegmentMaxLength:   cfg.Segmentation.MaxLength,
			SegmentMinLength:   cfg.Segmentation.MinLength,
			SegmentOverlap:     cfg.Segmentation.Overlap,
			PreserveParagraphs: cfg.Segmentation.PreserveParagraphs,
			AutoEmbedding:      cfg.Jobs.AutoEmbedding,
			MaxRetries:         cfg.Jobs.MaxRetries,
		},
		log,
	)
	var exec worker.Executor = app.orch
	if app.redisClient != nil {
		exec = &lockedExecutor{
			inner: app.orch,
			jobs:  jobRepo,
			redis: app.redisClient,
			log:   log,
		}
	}
	app.pool = worker.NewPool(
		jobRepo, exec, cfg.Worker.Count, cfg.Worker.PollInterval.Std(), log)
	app.janitor = worker.NewJanitor(
		cfg.Media.WorkDir, cfg.Worker.WorkDirRetention.Std(), app.orch.WorkDirInUse, log)
	app.healthServer = NewServer(cfg.Server.Port, checks)

	return app, nil
}

// ErrRateLimited is returned when a video's submission budget for the
// current window is spent.
var ErrRateLimited = errors.New("submission rate limit exceeded, try again later")

// submitLimit caps how often the same video may be (re)submitted.
const submitLimit = 5

// Submit enqueues processing for a video. Exposed for operator
// tooling and tests.
func (a *App) Submit(
	ctx context.Context,
	videoID, sourceURL string,
	t domain.JobType,
	priority domain.Priority,
) (*domain.Job, error) {
	if a.redisClient != nil {
		allowed, err := a.redisClient.Allow(ctx, "submit", videoID, submitLimit, time.Minute)
		if err != nil {
			a.log.Warn("Rate limit check failed, allowing submission",
				"videoID", videoID, "error", err)
		} else if !allowed {
			return nil, ErrRateLimited
		}
	}
	return a.orch.Submit(ctx, videoID, sourceURL, t, priority)
}

// RequeueDeadLetter replays a dead-lettered job as a fresh pending job
// with no retry state. Exposed for operator tooling.
func (a *App) RequeueDeadLetter(ctx context.Context, jobID string) (*domain.Job, error) {
	entry, err := a.deadLetters.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up dead letter entry: %w", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("no dead letter entry for job %s", jobID)
	}
	if entry.IsRequeued {
		return nil, fmt.Errorf("dead letter entry for job %s already requeued", jobID)
	}

	job, err := a.dlq.Requeue(ctx, entry)
	if err != nil {
		return nil, err
	}
	if err := a.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create requeued job: %w", err)
	}
	if _, err := a.queue.Enqueue(ctx, job); err != nil {
		a.log.Warn("Failed to enqueue requeued job, workers will claim it by polling",
			"jobID", job.ID, "error", err)
	}
	a.log.Info("Dead letter entry requeued",
		"entryID", entry.ID, "originalJobID", jobID, "newJobID", job.ID)
	return job, nil
}

// Start starts the health server, workers and janitor. It returns
// immediately; cancellation of ctx begins shutdown.
func (a *App) Start(ctx context.Context) error {
	go func() {
		a.log.Info("Health server listening", "port", a.cfg.Server.Port)
		if err := a.healthServer.Start(); err != nil && ctx.Err() == nil {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	a.pool.Start(ctx)
	go a.janitor.Start(ctx)

	return nil
}

// Stop drains the workers and closes external connections.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping pipeline...")

	a.pool.Wait()

	if err := a.queue.Close(); err != nil {
		a.log.Warn("Failed to close job queue", "error", err)
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}

	return a.healthServer.Stop(ctx)
}
