package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mediascribe/pipeline/internal/core/domain"
	"github.com/mediascribe/pipeline/internal/pipeline/transcribe"
)

// Whisper runs whisper.cpp and implements the transcription engine
// boundary. Model files follow the upstream naming convention, so a
// size maps to <modelsDir>/ggml-<size>.bin.
type Whisper struct {
	binPath   string
	modelsDir string
	runner    commandRunner
	log       *slog.Logger
}

// NewWhisper creates a whisper.cpp transcription adapter.
func NewWhisper(binPath, modelsDir string, timeout time.Duration, log *slog.Logger) *Whisper {
	if binPath == "" {
		binPath = "whisper-cli"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Whisper{
		binPath:   binPath,
		modelsDir: modelsDir,
		runner:    &execRunner{timeout: timeout},
		log:       log,
	}
}

func (w *Whisper) modelPath(model domain.ModelSize) string {
	return filepath.Join(w.modelsDir, fmt.Sprintf("ggml-%s.bin", model))
}

// Transcribe runs one whisper.cpp invocation and parses its JSON
// output. Out-of-memory failures come back as memory resource errors
// so the retry loop can downgrade the model.
func (w *Whisper) Transcribe(
	ctx context.Context,
	audioPath, language string,
	model domain.ModelSize,
) (*transcribe.Output, error) {
	modelPath := w.modelPath(model)
	if _, err := os.Stat(modelPath); err != nil {
		return nil, domain.NewResourceError("transcription", domain.ResourceModel,
			fmt.Errorf("model file %s: %w", modelPath, err))
	}

	outBase := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + "-" + string(model)
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outBase,
		"-oj",
	}
	if lang := strings.TrimSpace(language); lang != "" && !strings.EqualFold(lang, "auto") {
		args = append(args, "-l", lang)
	}

	w.log.Debug("Running transcription", "model", model, "audio", audioPath)
	result, err := w.runner.Run(ctx, w.binPath, args...)
	if err != nil {
		return nil, classifyWhisperFailure(result.Stderr, err)
	}

	jsonPath := outBase + ".json"
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp completed but transcript json is missing: %w", err)
	}
	defer func() { _ = os.Remove(jsonPath) }()

	return parseWhisperOutput(raw)
}

// whisperJSON mirrors the -oj output of whisper.cpp.
type whisperJSON struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"` // milliseconds
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseWhisperOutput(raw []byte) (*transcribe.Output, error) {
	var parsed whisperJSON
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse whisper output: %w", err)
	}

	out := &transcribe.Output{Language: parsed.Result.Language}
	var text strings.Builder
	for _, seg := range parsed.Transcription {
		trimmed := strings.TrimSpace(seg.Text)
		if trimmed == "" {
			continue
		}
		out.Segments = append(out.Segments, transcribe.EngineSegment{
			Start: float64(seg.Offsets.From) / 1000,
			End:   float64(seg.Offsets.To) / 1000,
			Text:  trimmed,
		})
		if text.Len() > 0 {
			text.WriteByte(' ')
		}
		text.WriteString(trimmed)
	}
	out.Text = text.String()
	return out, nil
}

var whisperOOMPatterns = []string{
	"out of memory",
	"failed to allocate",
	"cannot allocate memory",
	"ggml_aligned_malloc",
	"cuda out of memory",
}

func classifyWhisperFailure(stderr string, err error) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return ctxErr
	}

	lower := strings.ToLower(stderr)
	for _, p := range whisperOOMPatterns {
		if strings.Contains(lower, p) {
			return domain.NewResourceError("transcription", domain.ResourceMemory, err)
		}
	}
	if strings.Contains(lower, "failed to load model") ||
		strings.Contains(lower, "no such file") {
		return domain.NewResourceError("transcription", domain.ResourceModel, err)
	}
	return fmt.Errorf("whisper.cpp transcription failed: %s: %w", firstLine(stderr), err)
}
