// Package retrypolicy holds the per-category retry table and delay
// calculator used when a pipeline stage fails.
package retrypolicy

import (
	"time"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

// Backoff is the shape of the delay curve between attempts.
type Backoff string

const (
	BackoffExponential Backoff = "exponential"
	BackoffLinear      Backoff = "linear"
	BackoffNone        Backoff = "none"
)

// Policy describes how failures of one category are retried.
type Policy struct {
	MaxRetries         int
	InitialDelay       time.Duration
	Backoff            Backoff
	DirectToDeadLetter bool
}

var policies = map[domain.FailureCategory]Policy{
	domain.CategoryTransientNetwork: {
		MaxRetries:   5,
		InitialDelay: 10 * time.Second,
		Backoff:      BackoffExponential,
	},
	domain.CategoryResourceNotAvail: {
		MaxRetries:   3,
		InitialDelay: 2 * time.Minute,
		Backoff:      BackoffLinear,
	},
	domain.CategoryPermanent: {
		MaxRetries:         0,
		Backoff:            BackoffNone,
		DirectToDeadLetter: true,
	},
	domain.CategoryUnknown: {
		MaxRetries:   2,
		InitialDelay: 30 * time.Second,
		Backoff:      BackoffExponential,
	},
}

// ForCategory returns the policy for a failure category. Unrecognized
// categories fall back to the cautious unknown-error policy.
func ForCategory(c domain.FailureCategory) Policy {
	if p, ok := policies[c]; ok {
		return p
	}
	return policies[domain.CategoryUnknown]
}

// Delay returns the wait before retry attempt n (0-indexed).
// Exponential: InitialDelay * 2^n. Linear: InitialDelay * (n+1).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	switch p.Backoff {
	case BackoffExponential:
		return p.InitialDelay * (1 << uint(attempt))
	case BackoffLinear:
		return p.InitialDelay * time.Duration(attempt+1)
	default:
		return 0
	}
}

// Exhausted reports whether a job with the given retry count has used
// up this policy's budget and must be escalated to the dead letter
// store.
func (p Policy) Exhausted(retryCount int) bool {
	return p.DirectToDeadLetter || retryCount >= p.MaxRetries
}
