// Package classify maps stage-executor errors onto the fixed set of
// failure categories that drive the retry policy.
package classify

import (
	"context"
	"errors"
	"strings"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

// Category vocabularies for message-pattern matching. Matching is
// case-insensitive substring matching; order within a slice does not
// matter, but the order the slices are consulted in does.
var (
	resourcePatterns = []string{
		"out of memory",
		"cannot allocate memory",
		"memory exhausted",
		"cuda out of memory",
		"oom",
		"no space left on device",
		"disk full",
		"disk quota exceeded",
		"model is downloading",
		"model not ready",
		"model is not ready",
		"resource temporarily unavailable",
		"file is locked",
		"locked by another process",
		"being used by another process",
		"too many open files",
	}

	networkPatterns = []string{
		"timeout",
		"timed out",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"network is unreachable",
		"temporary failure in name resolution",
		"502",
		"bad gateway",
		"503",
		"service unavailable",
		"504",
		"gateway timeout",
		"429",
		"too many requests",
		"unexpected eof",
	}

	permanentPatterns = []string{
		"video unavailable",
		"video not found",
		"has been removed",
		"video has been deleted",
		"private video",
		"this video is private",
		"not available in your country",
		"region blocked",
		"geo restricted",
		"copyright",
		"invalid format",
		"unsupported format",
		"unsupported url",
		"unauthorized",
		"sign in to confirm",
		"404",
	}
)

// Classify maps err to exactly one failure category. It is total and
// deterministic: tagged error variants are checked first, then the
// message vocabularies in resource -> network -> permanent order, and
// anything unmatched is CategoryUnknown.
//
// Resource patterns are consulted before the network-shaped checks so
// that a resource-unavailability message wrapped in a network error is
// not misclassified as transient.
func Classify(err error) domain.FailureCategory {
	if err == nil {
		return domain.CategoryUnknown
	}

	var resErr *domain.ResourceError
	if errors.As(err, &resErr) {
		return domain.CategoryResourceNotAvail
	}
	// The permanent tag is also structural and must win over message
	// heuristics: a tagged-unprocessable error whose text mentions a
	// timeout or a 5xx code is still unprocessable.
	var permErr *domain.PermanentError
	if errors.As(err, &permErr) {
		return domain.CategoryPermanent
	}

	msg := strings.ToLower(err.Error())
	if matchAny(msg, resourcePatterns) {
		return domain.CategoryResourceNotAvail
	}

	var netErr *domain.NetworkError
	if errors.As(err, &netErr) {
		return domain.CategoryTransientNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.CategoryTransientNetwork
	}
	if matchAny(msg, networkPatterns) {
		return domain.CategoryTransientNetwork
	}

	if matchAny(msg, permanentPatterns) {
		return domain.CategoryPermanent
	}

	return domain.CategoryUnknown
}

func matchAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
