package retrypolicy

import (
	"testing"
	"time"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

func TestForCategory_Table(t *testing.T) {
	tests := []struct {
		category     domain.FailureCategory
		maxRetries   int
		initialDelay time.Duration
		backoff      Backoff
		directDLQ    bool
	}{
		{domain.CategoryTransientNetwork, 5, 10 * time.Second, BackoffExponential, false},
		{domain.CategoryResourceNotAvail, 3, 2 * time.Minute, BackoffLinear, false},
		{domain.CategoryPermanent, 0, 0, BackoffNone, true},
		{domain.CategoryUnknown, 2, 30 * time.Second, BackoffExponential, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			p := ForCategory(tt.category)
			if p.MaxRetries != tt.maxRetries {
				t.Errorf("MaxRetries = %d, want %d", p.MaxRetries, tt.maxRetries)
			}
			if p.InitialDelay != tt.initialDelay {
				t.Errorf("InitialDelay = %v, want %v", p.InitialDelay, tt.initialDelay)
			}
			if p.Backoff != tt.backoff {
				t.Errorf("Backoff = %v, want %v", p.Backoff, tt.backoff)
			}
			if p.DirectToDeadLetter != tt.directDLQ {
				t.Errorf("DirectToDeadLetter = %v, want %v", p.DirectToDeadLetter, tt.directDLQ)
			}
		})
	}
}

func TestDelay_Exponential(t *testing.T) {
	p := ForCategory(domain.CategoryTransientNetwork)

	// 10s * 2^n
	want := []time.Duration{
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		80 * time.Second,
		160 * time.Second,
	}
	for n, w := range want {
		if d := p.Delay(n); d != w {
			t.Errorf("Delay(%d) = %v, want %v", n, d, w)
		}
	}
}

func TestDelay_Linear(t *testing.T) {
	p := ForCategory(domain.CategoryResourceNotAvail)

	// 2min * (n+1)
	want := []time.Duration{
		2 * time.Minute,
		4 * time.Minute,
		6 * time.Minute,
	}
	for n, w := range want {
		if d := p.Delay(n); d != w {
			t.Errorf("Delay(%d) = %v, want %v", n, d, w)
		}
	}
}

func TestDelay_MonotonicNonDecreasing(t *testing.T) {
	for _, category := range []domain.FailureCategory{
		domain.CategoryTransientNetwork,
		domain.CategoryResourceNotAvail,
		domain.CategoryUnknown,
	} {
		p := ForCategory(category)
		prev := time.Duration(0)
		for n := 0; n < 10; n++ {
			d := p.Delay(n)
			if d < prev {
				t.Errorf("%s: Delay(%d) = %v < Delay(%d) = %v", category, n, d, n-1, prev)
			}
			prev = d
		}
	}
}

func TestExhausted(t *testing.T) {
	transient := ForCategory(domain.CategoryTransientNetwork)
	if transient.Exhausted(4) {
		t.Error("transient should not be exhausted at 4 retries")
	}
	if !transient.Exhausted(5) {
		t.Error("transient should be exhausted at 5 retries")
	}

	permanent := ForCategory(domain.CategoryPermanent)
	if !permanent.Exhausted(0) {
		t.Error("permanent must escalate on first occurrence")
	}
}

func TestForCategory_UnrecognizedFallsBack(t *testing.T) {
	p := ForCategory(domain.FailureCategory("who-knows"))
	if p.MaxRetries != 2 {
		t.Errorf("expected unknown-error policy, got MaxRetries=%d", p.MaxRetries)
	}
}
