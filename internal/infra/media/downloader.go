package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

// VideoInfo is the subset of yt-dlp metadata the pipeline uses.
type VideoInfo struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// Downloader fetches source media with yt-dlp.
type Downloader struct {
	binPath string
	workDir string
	runner  commandRunner
	log     *slog.Logger
}

// NewDownloader creates a yt-dlp download adapter. Downloads land
// under workDir/<videoID>/.
func NewDownloader(binPath, workDir string, timeout time.Duration, log *slog.Logger) *Downloader {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Downloader{
		binPath: binPath,
		workDir: workDir,
		runner:  &execRunner{timeout: timeout},
		log:     log,
	}
}

// Probe fetches video metadata without downloading. Transient probe
// failures are retried locally with short exponential backoff; the
// job-level retry machinery handles anything that survives.
func (d *Downloader) Probe(ctx context.Context, sourceURL string) (*VideoInfo, error) {
	var info *VideoInfo

	backoff := retry.WithMaxRetries(2, retry.NewExponential(2*time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		result, err := d.runner.Run(ctx, d.binPath,
			"--dump-json", "--no-download", "--no-playlist", sourceURL)
		if err != nil {
			classified := classifyToolFailure("probe", result.Stderr, err)
			if isRetryableHere(classified) {
				return retry.RetryableError(classified)
			}
			return classified
		}

		var parsed VideoInfo
		if err := json.Unmarshal([]byte(result.Stdout), &parsed); err != nil {
			return fmt.Errorf("failed to parse yt-dlp metadata: %w", err)
		}
		info = &parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Download fetches the media file for a video and returns its path.
func (d *Downloader) Download(ctx context.Context, videoID, sourceURL string) (string, error) {
	dir := filepath.Join(d.workDir, videoID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.NewResourceError("download", domain.ResourceDisk, err)
	}

	template := filepath.Join(dir, "source.%(ext)s")
	result, err := d.runner.Run(ctx, d.binPath,
		"-f", "bestaudio/best",
		"--no-playlist",
		"-o", template,
		sourceURL,
	)
	if err != nil {
		return "", classifyToolFailure("download", result.Stderr, err)
	}

	path, err := findDownloaded(dir)
	if err != nil {
		return "", err
	}
	d.log.Debug("Download complete", "videoID", videoID, "path", path)
	return path, nil
}

func findDownloaded(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read download directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), "source.") {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("yt-dlp completed but no source file found in %s", dir)
}

// permanentDownloadPatterns are yt-dlp stderr markers for failures no
// retry can fix.
var permanentDownloadPatterns = []string{
	"video unavailable",
	"private video",
	"this video is private",
	"has been removed",
	"account associated with this video has been terminated",
	"not available in your country",
	"blocked in your country",
	"unsupported url",
	"copyright",
	"age-restricted",
}

var transientDownloadPatterns = []string{
	"timed out",
	"timeout",
	"connection reset",
	"connection refused",
	"temporary failure in name resolution",
	"http error 5",
	"unable to download webpage",
	"got error",
}

// classifyToolFailure inspects stderr and tags the error so the
// failure classifier routes it without guessing from text.
func classifyToolFailure(op, stderr string, err error) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return domain.NewNetworkError(op, ctxErr)
	}

	lower := strings.ToLower(stderr)
	for _, p := range permanentDownloadPatterns {
		if strings.Contains(lower, p) {
			return domain.NewPermanentError(
				fmt.Sprintf("%s failed: %s", op, firstLine(stderr)), err)
		}
	}
	for _, p := range transientDownloadPatterns {
		if strings.Contains(lower, p) {
			return domain.NewNetworkError(op, fmt.Errorf("%s: %w", firstLine(stderr), err))
		}
	}
	if strings.Contains(lower, "no space left") {
		return domain.NewResourceError(op, domain.ResourceDisk, err)
	}
	return fmt.Errorf("%s failed: %s: %w", op, firstLine(stderr), err)
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func isRetryableHere(err error) bool {
	var netErr *domain.NetworkError
	return errors.As(err, &netErr)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "no diagnostic output"
	}
	return s
}
