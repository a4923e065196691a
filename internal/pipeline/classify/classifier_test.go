package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

func TestClassify_TaggedErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.FailureCategory
	}{
		{
			"network error",
			domain.NewNetworkError("download", errors.New("connection refused")),
			domain.CategoryTransientNetwork,
		},
		{
			"resource error",
			domain.NewResourceError("transcribe", domain.ResourceMemory, errors.New("whisper crashed")),
			domain.CategoryResourceNotAvail,
		},
		{
			"permanent error",
			domain.NewPermanentError("video removed by uploader", nil),
			domain.CategoryPermanent,
		},
		{
			"wrapped network error",
			fmt.Errorf("stage failed: %w", domain.NewNetworkError("probe", errors.New("reset"))),
			domain.CategoryTransientNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

// A tagged-permanent error must stay permanent even when its message
// mentions network vocabulary; the tag is authoritative.
func TestClassify_PermanentTagBeatsNetworkPatterns(t *testing.T) {
	err := domain.NewPermanentError(
		"upstream rejected video",
		errors.New("fetch aborted: 503 service unavailable, request timeout"),
	)

	if got := Classify(err); got != domain.CategoryPermanent {
		t.Errorf("Classify() = %v, want %v", got, domain.CategoryPermanent)
	}
}

// A resource-unavailability message embedded in a network-shaped error
// must classify as resource, not transient. Precedence matters.
func TestClassify_ResourcePatternBeatsNetworkType(t *testing.T) {
	err := domain.NewNetworkError(
		"transcribe",
		errors.New("engine reported: CUDA out of memory during decode"),
	)

	if got := Classify(err); got != domain.CategoryResourceNotAvail {
		t.Errorf("Classify() = %v, want %v", got, domain.CategoryResourceNotAvail)
	}
}

func TestClassify_MessagePatterns(t *testing.T) {
	tests := []struct {
		msg  string
		want domain.FailureCategory
	}{
		{"HTTP 503 Service Unavailable", domain.CategoryTransientNetwork},
		{"dial tcp: connection refused", domain.CategoryTransientNetwork},
		{"request timed out after 30s", domain.CategoryTransientNetwork},
		{"HTTP 429 Too Many Requests", domain.CategoryTransientNetwork},
		{"no space left on device", domain.CategoryResourceNotAvail},
		{"model is downloading, try again later", domain.CategoryResourceNotAvail},
		{"file is locked by another process", domain.CategoryResourceNotAvail},
		{"Video unavailable", domain.CategoryPermanent},
		{"This video is private", domain.CategoryPermanent},
		{"not available in your country", domain.CategoryPermanent},
		{"ERROR: Unsupported URL", domain.CategoryPermanent},
		{"something inexplicable happened", domain.CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := Classify(errors.New(tt.msg)); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestClassify_CaseInsensitive(t *testing.T) {
	if got := Classify(errors.New("DISK FULL")); got != domain.CategoryResourceNotAvail {
		t.Errorf("Classify() = %v, want %v", got, domain.CategoryResourceNotAvail)
	}
}

// "resource temporarily unavailable" contains both timeout-adjacent and
// resource wording in some tool output; the documented precedence keeps
// it in the resource bucket.
func TestClassify_AmbiguousTimeoutWhileLocked(t *testing.T) {
	err := errors.New("timeout waiting: file is locked by another process")
	if got := Classify(err); got != domain.CategoryResourceNotAvail {
		t.Errorf("Classify() = %v, want %v", got, domain.CategoryResourceNotAvail)
	}
}

func TestClassify_ContextDeadline(t *testing.T) {
	err := fmt.Errorf("download: %w", context.DeadlineExceeded)
	if got := Classify(err); got != domain.CategoryTransientNetwork {
		t.Errorf("Classify() = %v, want %v", got, domain.CategoryTransientNetwork)
	}
}

func TestClassify_NilAndUnknown(t *testing.T) {
	if got := Classify(nil); got != domain.CategoryUnknown {
		t.Errorf("Classify(nil) = %v, want %v", got, domain.CategoryUnknown)
	}
}
