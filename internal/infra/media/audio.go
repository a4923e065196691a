package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

// AudioExtractor converts downloaded media into the mono 16 kHz PCM
// WAV that whisper.cpp expects.
type AudioExtractor struct {
	binPath string
	runner  commandRunner
	log     *slog.Logger
}

// NewAudioExtractor creates an ffmpeg extraction adapter.
func NewAudioExtractor(binPath string, timeout time.Duration, log *slog.Logger) *AudioExtractor {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	if log == nil {
		log = slog.Default()
	}
	return &AudioExtractor{
		binPath: binPath,
		runner:  &execRunner{timeout: timeout},
		log:     log,
	}
}

// Extract writes audio.wav next to the input file and returns its
// path. Existing output is overwritten, keeping the stage idempotent.
func (e *AudioExtractor) Extract(ctx context.Context, inputPath string) (string, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return "", domain.NewPermanentError(
			fmt.Sprintf("cannot access input media: %s", inputPath), err)
	}

	outPath := filepath.Join(filepath.Dir(inputPath), "audio.wav")
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}

	result, err := e.runner.Run(ctx, e.binPath, args...)
	if err != nil {
		return "", classifyExtractFailure(result.Stderr, err)
	}

	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("ffmpeg completed but output file is missing: %w", err)
	}
	e.log.Debug("Audio extraction complete", "input", inputPath, "output", outPath)
	return outPath, nil
}

func classifyExtractFailure(stderr string, err error) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return domain.NewNetworkError("audio extraction", ctxErr)
	}

	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "no space left"):
		return domain.NewResourceError("audio extraction", domain.ResourceDisk, err)
	case strings.Contains(lower, "cannot allocate memory"):
		return domain.NewResourceError("audio extraction", domain.ResourceMemory, err)
	case strings.Contains(lower, "invalid data found"),
		strings.Contains(lower, "unknown format"),
		strings.Contains(lower, "does not contain any stream"):
		return domain.NewPermanentError(
			fmt.Sprintf("unsupported media format: %s", firstLine(stderr)), err)
	}
	return fmt.Errorf("ffmpeg audio conversion failed: %s: %w", firstLine(stderr), err)
}
