package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyLLMError(t *testing.T) {
	tests := []struct {
		err  error
		want RetryClass
	}{
		{errors.New("status 429: rate limit"), RetryClassRetryable},
		{errors.New("503 service unavailable"), RetryClassRetryable},
		{errors.New("dial tcp: connection refused"), RetryClassRetryable},
		{errors.New("context deadline exceeded"), RetryClassMaybe},
		{errors.New("401 unauthorized"), RetryClassNonRetryable},
		{errors.New("something odd"), RetryClassNonRetryable},
		{&EngineError{Err: errors.New("x"), Class: RetryClassMaybe}, RetryClassMaybe},
	}

	for _, tt := range tests {
		if got := ClassifyLLMError(tt.err); got != tt.want {
			t.Errorf("ClassifyLLMError(%q) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestExternalWrapping(t *testing.T) {
	cause := errors.New("timeout")
	err := External("catalog.count", cause)
	if !IsExternal(err) {
		t.Fatalf("expected ExternalServiceError, got %T", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("ExternalServiceError should unwrap to its cause")
	}

	// Already-classified errors pass through untouched.
	if again := External("other", err); again != err {
		t.Errorf("External() rewrapped an ExternalServiceError")
	}
	inv := Violation("diagnose", "called with %d matches", 3)
	if got := External("x", fmt.Errorf("wrapped: %w", inv)); IsExternal(got) {
		t.Errorf("InvariantViolation must not be reclassified as external")
	}
	if External("x", nil) != nil {
		t.Errorf("External(nil) should be nil")
	}
}

func TestViolationCapturesStack(t *testing.T) {
	v := Violation("chain", "material evaluated before %s", "style")
	if v.Detail != "material evaluated before style" {
		t.Errorf("Detail = %q", v.Detail)
	}
	if len(v.Stack) == 0 {
		t.Errorf("expected a captured stack")
	}
	if !IsInvariantViolation(fmt.Errorf("turn: %w", v)) {
		t.Errorf("IsInvariantViolation should see through wrapping")
	}
}
