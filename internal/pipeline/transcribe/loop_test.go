package transcribe

import (
	"context"
	"errors"
	"testing"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

// =============================================================================
// Mock Engine
// =============================================================================

type mockEngine struct {
	// oomModels fail with an out-of-memory error
	oomModels map[domain.ModelSize]bool
	// failErr, when set, is returned for every attempt
	failErr  error
	attempts []domain.ModelSize
}

func (e *mockEngine) Transcribe(
	ctx context.Context,
	audioPath, language string,
	model domain.ModelSize,
) (*Output, error) {
	e.attempts = append(e.attempts, model)
	if e.failErr != nil {
		return nil, e.failErr
	}
	if e.oomModels[model] {
		return nil, domain.NewResourceError(
			"whisper", domain.ResourceMemory, errors.New("ggml_allocr: out of memory"))
	}
	return &Output{Text: "hello world", Language: "en"}, nil
}

// =============================================================================
// Loop Tests
// =============================================================================

func TestRun_SuccessFirstAttempt(t *testing.T) {
	engine := &mockEngine{}
	loop := NewLoop(engine, true, nil)

	res, err := loop.Run(context.Background(), "a.wav", "en", domain.ModelMedium)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.ModelUsed != domain.ModelMedium {
		t.Errorf("ModelUsed = %s, want medium", res.ModelUsed)
	}
	if res.Degraded {
		t.Error("should not be degraded")
	}
	if res.Retries != 0 {
		t.Errorf("Retries = %d, want 0", res.Retries)
	}
}

func TestRun_DowngradesSmallToBase(t *testing.T) {
	engine := &mockEngine{oomModels: map[domain.ModelSize]bool{domain.ModelSmall: true}}
	loop := NewLoop(engine, true, nil)

	res, err := loop.Run(context.Background(), "a.wav", "en", domain.ModelSmall)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(engine.attempts) != 2 ||
		engine.attempts[0] != domain.ModelSmall ||
		engine.attempts[1] != domain.ModelBase {
		t.Fatalf("attempts = %v, want [small base]", engine.attempts)
	}
	if res.ModelUsed != domain.ModelBase {
		t.Errorf("ModelUsed = %s, want base", res.ModelUsed)
	}
	if !res.Degraded {
		t.Error("result must be flagged degraded")
	}
	if res.Retries != 1 {
		t.Errorf("Retries = %d, want 1", res.Retries)
	}
	if res.RequestedModel != domain.ModelSmall {
		t.Errorf("RequestedModel = %s, want small", res.RequestedModel)
	}
}

func TestRun_TinyOOMFailsWithoutFurtherAttempts(t *testing.T) {
	engine := &mockEngine{oomModels: map[domain.ModelSize]bool{domain.ModelTiny: true}}
	loop := NewLoop(engine, true, nil)

	_, err := loop.Run(context.Background(), "a.wav", "en", domain.ModelTiny)
	if !errors.Is(err, ErrSmallestModelFailed) {
		t.Fatalf("err = %v, want ErrSmallestModelFailed", err)
	}
	if len(engine.attempts) != 1 {
		t.Errorf("attempts = %v, want exactly 1", engine.attempts)
	}
}

func TestRun_DowngradeDisabledFailsImmediately(t *testing.T) {
	engine := &mockEngine{oomModels: map[domain.ModelSize]bool{domain.ModelLarge: true}}
	loop := NewLoop(engine, false, nil)

	_, err := loop.Run(context.Background(), "a.wav", "en", domain.ModelLarge)
	if !errors.Is(err, ErrDowngradeDisabled) {
		t.Fatalf("err = %v, want ErrDowngradeDisabled", err)
	}
	if len(engine.attempts) != 1 {
		t.Errorf("attempts = %v, want exactly 1", engine.attempts)
	}
}

func TestRun_DowngradeBudgetExhausted(t *testing.T) {
	// Every model OOMs; starting from large the loop may downgrade at
	// most 3 times (medium, small, base) before giving up.
	engine := &mockEngine{oomModels: map[domain.ModelSize]bool{
		domain.ModelLarge:  true,
		domain.ModelMedium: true,
		domain.ModelSmall:  true,
		domain.ModelBase:   true,
		domain.ModelTiny:   true,
	}}
	loop := NewLoop(engine, true, nil)

	_, err := loop.Run(context.Background(), "a.wav", "en", domain.ModelLarge)
	if !errors.Is(err, ErrDowngradeBudgetExhausted) {
		t.Fatalf("err = %v, want ErrDowngradeBudgetExhausted", err)
	}
	if len(engine.attempts) != 4 {
		t.Errorf("attempts = %v, want 4 (large medium small base)", engine.attempts)
	}
}

func TestRun_OOMByMessagePattern(t *testing.T) {
	engine := &mockEngine{failErr: errors.New("whisper: CUDA out of memory on device 0")}
	loop := NewLoop(engine, false, nil)

	_, err := loop.Run(context.Background(), "a.wav", "en", domain.ModelSmall)
	if !errors.Is(err, ErrDowngradeDisabled) {
		t.Fatalf("pattern-detected OOM should hit the downgrade path, got %v", err)
	}
}

func TestRun_NonOOMErrorPassesThrough(t *testing.T) {
	cause := domain.NewNetworkError("whisper", errors.New("connection reset"))
	engine := &mockEngine{failErr: cause}
	loop := NewLoop(engine, true, nil)

	_, err := loop.Run(context.Background(), "a.wav", "en", domain.ModelSmall)
	var netErr *domain.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want the original network error", err)
	}
	if len(engine.attempts) != 1 {
		t.Errorf("non-OOM errors must not trigger downgrade, attempts = %v", engine.attempts)
	}
}

func TestRun_CancellationObservedBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	engine := &cancellingEngine{cancel: cancel}
	loop := NewLoop(engine, true, nil)

	_, err := loop.Run(ctx, "a.wav", "en", domain.ModelLarge)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if engine.attempts != 1 {
		t.Errorf("attempts = %d, an in-flight downgrade must observe cancellation", engine.attempts)
	}
}

// cancellingEngine cancels the context while failing with OOM, so the
// next downgrade attempt must never start.
type cancellingEngine struct {
	cancel   context.CancelFunc
	attempts int
}

func (e *cancellingEngine) Transcribe(
	ctx context.Context,
	audioPath, language string,
	model domain.ModelSize,
) (*Output, error) {
	e.attempts++
	e.cancel()
	return nil, domain.NewResourceError("whisper", domain.ResourceMemory, errors.New("oom"))
}

// =============================================================================
// Quality Policy Tests
// =============================================================================

func TestModelForDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    domain.ModelSize
	}{
		{60, domain.ModelLarge},
		{5 * 60, domain.ModelLarge},
		{15 * 60, domain.ModelMedium},
		{45 * 60, domain.ModelSmall},
		{3 * 60 * 60, domain.ModelBase},
		{0, domain.ModelSmall},
	}

	for _, tt := range tests {
		if got := ModelForDuration(tt.seconds); got != tt.want {
			t.Errorf("ModelForDuration(%v) = %s, want %s", tt.seconds, got, tt.want)
		}
	}
}
