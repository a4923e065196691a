// Package transcribe drives a transcription attempt through the model
// downgrade chain when the engine runs out of memory.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mediascribe/pipeline/internal/core/domain"
	"github.com/mediascribe/pipeline/internal/observability/metrics"
)

// MaxDowngrades bounds how many model downgrades one run may perform.
const MaxDowngrades = 3

var (
	// ErrDowngradeDisabled is returned when the engine runs out of
	// memory and automatic downgrade is switched off.
	ErrDowngradeDisabled = errors.New("transcription engine out of memory and automatic model downgrade is disabled")

	// ErrSmallestModelFailed is returned when the smallest model in
	// the chain still runs out of memory.
	ErrSmallestModelFailed = errors.New("smallest model already attempted, cannot downgrade further")

	// ErrDowngradeBudgetExhausted is returned when the downgrade
	// attempt ceiling is reached before the chain ends.
	ErrDowngradeBudgetExhausted = errors.New("maximum downgrade attempts reached")
)

// EngineSegment is one timed piece of engine output.
type EngineSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Output is the raw transcription produced by the engine.
type Output struct {
	Text     string          `json:"text"`
	Language string          `json:"language"`
	Segments []EngineSegment `json:"segments"`
}

// Engine is the external transcription tool boundary.
type Engine interface {
	Transcribe(ctx context.Context, audioPath, language string, model domain.ModelSize) (*Output, error)
}

// Result carries the transcription plus the observability metadata the
// caller needs: which model actually ran, whether quality was degraded
// versus the original request, and how many retries occurred.
type Result struct {
	Output         *Output
	RequestedModel domain.ModelSize
	ModelUsed      domain.ModelSize
	Degraded       bool
	Retries        int
}

// Loop retries transcription down the model chain on out-of-memory.
type Loop struct {
	engine        Engine
	autoDowngrade bool
	maxDowngrades int
	log           *slog.Logger
}

// NewLoop creates a retry loop around an engine.
func NewLoop(engine Engine, autoDowngrade bool, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		engine:        engine,
		autoDowngrade: autoDowngrade,
		maxDowngrades: MaxDowngrades,
		log:           log,
	}
}

// Run attempts transcription starting at the requested model,
// downgrading one step per out-of-memory failure. Errors other than
// OOM are returned as-is for the orchestrator to classify.
// Cancellation is observed before every attempt.
func (l *Loop) Run(
	ctx context.Context,
	audioPath, language string,
	model domain.ModelSize,
) (*Result, error) {
	requested := model
	retries := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := l.engine.Transcribe(ctx, audioPath, language, model)
		if err == nil {
			if retries > 0 {
				l.log.Info("Transcription succeeded after downgrade",
					"requested", requested, "used", model, "retries", retries)
			}
			return &Result{
				Output:         out,
				RequestedModel: requested,
				ModelUsed:      model,
				Degraded:       model != requested,
				Retries:        retries,
			}, nil
		}

		if !isOutOfMemory(err) {
			return nil, err
		}

		if !l.autoDowngrade {
			return nil, fmt.Errorf("%w (model %s): %w", ErrDowngradeDisabled, model, err)
		}
		if retries >= l.maxDowngrades {
			return nil, fmt.Errorf("%w (%d downgrades, stopped at %s): %w",
				ErrDowngradeBudgetExhausted, retries, model, err)
		}

		next, ok := model.Smaller()
		if !ok {
			return nil, fmt.Errorf("%w (model %s): %w", ErrSmallestModelFailed, model, err)
		}

		l.log.Warn("Transcription out of memory, downgrading model",
			"from", model, "to", next, "retries", retries+1)
		metrics.ModelDowngrades.WithLabelValues(string(model), string(next)).Inc()

		model = next
		retries++
	}
}

// oomPatterns matches the diagnostic output of the external engine
// when it cannot report a structured resource error.
var oomPatterns = []string{
	"out of memory",
	"cannot allocate memory",
	"memory exhausted",
	"cuda out of memory",
	"failed to allocate",
	"oom",
}

func isOutOfMemory(err error) bool {
	var resErr *domain.ResourceError
	if errors.As(err, &resErr) {
		return resErr.OutOfMemory()
	}

	msg := strings.ToLower(err.Error())
	for _, p := range oomPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
