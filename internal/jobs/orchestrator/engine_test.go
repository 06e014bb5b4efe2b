package orchestrator

import (
	"errors"
	"testing"
	"time"

	jobrt "github.com/carelattice/taxonomy-backend/internal/jobs/runtime"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	r := RetryPolicy{MinBackoff: 1 * time.Second, MaxBackoff: 30 * time.Second, JitterFrac: 0.20}

	// base = min * 2^(n-1), clamped to max; jitter keeps the sample inside
	// [base*(1-j), base*(1+j)].
	cases := []struct {
		attempts int
		base     time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{12, 30 * time.Second},
	}
	for _, c := range cases {
		for i := 0; i < 50; i++ {
			d := Backoff(r, c.attempts)
			low := time.Duration(float64(c.base) * 0.8)
			high := time.Duration(float64(c.base) * 1.2)
			if d < low || d > high {
				t.Fatalf("attempt %d: backoff %v outside [%v, %v]", c.attempts, d, low, high)
			}
		}
	}
}

func TestBackoffZeroPolicyDefaults(t *testing.T) {
	var r RetryPolicy
	d := Backoff(r, 1)
	if d < 800*time.Millisecond || d > 1200*time.Millisecond {
		t.Fatalf("zero policy first attempt should be ~1s, got %v", d)
	}
	d = Backoff(r, 20)
	if d < 24*time.Second || d > 36*time.Second {
		t.Fatalf("zero policy should cap at ~30s, got %v", d)
	}
	if got := Backoff(r, 0); got < 800*time.Millisecond || got > 1200*time.Millisecond {
		t.Fatalf("attempts below 1 should behave as first attempt, got %v", got)
	}
}

func TestShouldRetryRespectsPolicy(t *testing.T) {
	errBoom := errors.New("boom")

	if shouldRetry(RetryPolicy{}, 1, errBoom) {
		t.Fatalf("zero MaxAttempts must never retry")
	}
	if !shouldRetry(RetryPolicy{MaxAttempts: 3}, 2, errBoom) {
		t.Fatalf("attempts below the cap should retry")
	}
	if shouldRetry(RetryPolicy{MaxAttempts: 3}, 3, errBoom) {
		t.Fatalf("attempts at the cap must not retry")
	}

	transient := RetryPolicy{MaxAttempts: 5, Retryable: func(err error) bool { return errors.Is(err, errBoom) }}
	if !shouldRetry(transient, 1, errBoom) {
		t.Fatalf("retryable error should retry")
	}
	if shouldRetry(transient, 1, errors.New("fatal")) {
		t.Fatalf("non-retryable error must not retry")
	}
}

func TestValidateStages(t *testing.T) {
	run := func(jc *jobrt.Context, st *State) (map[string]any, error) { return nil, nil }

	ok := []Stage{
		{Name: "rows", StartPct: 0, EndPct: 50, Run: run},
		{Name: "finalize", StartPct: 50, EndPct: 100, Run: run},
	}
	if err := validateStages(ok); err != nil {
		t.Fatalf("valid stage list rejected: %v", err)
	}

	bad := [][]Stage{
		{{Name: "", StartPct: 0, EndPct: 10, Run: run}},
		{{Name: "a", StartPct: 0, EndPct: 10, Run: run}, {Name: "a", StartPct: 10, EndPct: 20, Run: run}},
		{{Name: "a", StartPct: 0, EndPct: 110, Run: run}},
		{{Name: "a", StartPct: 40, EndPct: 10, Run: run}},
		{{Name: "a", StartPct: 0, EndPct: 60, Run: run}, {Name: "b", StartPct: 10, EndPct: 40, Run: run}},
		{{Name: "a", StartPct: 0, EndPct: 10}},
	}
	for i, stages := range bad {
		if err := validateStages(stages); err == nil {
			t.Fatalf("case %d: invalid stage list accepted", i)
		}
	}
}
