package errors

import (
	"fmt"
	"testing"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		sev  Severity
		want string
	}{
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.sev.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", tt.sev, got, tt.want)
		}
	}
}

func TestPlannerError_Format(t *testing.T) {
	err := NewPlannerError("replan failed", ErrDependencyCycle).WithTaskID("shade-3")
	got := err.Error()
	want := "planner error [task=shade-3]: replan failed: dependency cycle detected"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestPlannerError_Is(t *testing.T) {
	err := NewPlannerError("replan failed", ErrDependencyCycle)
	if !Is(err, ErrDependencyCycle) {
		t.Error("Is(err, ErrDependencyCycle) = false, want true")
	}
	var pe *PlannerError
	if !As(err, &pe) {
		t.Error("As(err, *PlannerError) = false, want true")
	}
	// Wrapped once more, still matches.
	wrapped := fmt.Errorf("outer: %w", err)
	if !Is(wrapped, ErrDependencyCycle) {
		t.Error("wrapped error lost sentinel match")
	}
}

func TestPoolError_Format(t *testing.T) {
	err := NewPoolError("spawn failed", ErrPoolExhausted).
		WithWorkerID("w-3").
		WithPoolName("gpu-local")
	got := err.Error()
	want := "pool error [worker=w-3, pool=gpu-local]: spawn failed: resource pools exhausted"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrPoolExhausted) {
		t.Error("Is(err, ErrPoolExhausted) = false, want true")
	}
}

func TestNotFoundError_SentinelMapping(t *testing.T) {
	if !Is(NewNotFoundError("task", "a"), ErrTaskNotFound) {
		t.Error("task NotFoundError should match ErrTaskNotFound")
	}
	if !Is(NewNotFoundError("worker", "w"), ErrWorkerNotFound) {
		t.Error("worker NotFoundError should match ErrWorkerNotFound")
	}
	if Is(NewNotFoundError("task", "a"), ErrWorkerNotFound) {
		t.Error("task NotFoundError should not match ErrWorkerNotFound")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(New("plain")) {
		t.Error("plain error reported retryable")
	}
	err := NewPlannerError("optimizer timed out", nil).WithRetryable(true)
	if !IsRetryable(err) {
		t.Error("retryable planner error reported non-retryable")
	}
	wrapped := fmt.Errorf("outer: %w", err)
	if !IsRetryable(wrapped) {
		t.Error("wrapping lost retryable classification")
	}
}

func TestSeverityOf(t *testing.T) {
	if got := SeverityOf(New("plain")); got != SeverityError {
		t.Errorf("SeverityOf(plain) = %v, want error", got)
	}
	err := NewPlannerError("late frame", nil).WithSeverity(SeverityCritical)
	if got := SeverityOf(err); got != SeverityCritical {
		t.Errorf("SeverityOf = %v, want critical", got)
	}
}
