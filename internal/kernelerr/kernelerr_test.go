package kernelerr

import (
	"errors"
	"fmt"
	"testing"
)

// --- constructors + Error() ---

func TestToolFailure_ErrorIncludesCauseWhenPresent(t *testing.T) {
	// Error() includes the wrapped cause's message when a cause is given
	cause := errors.New("exit status 1")
	err := ToolFailure("shell command failed", cause)
	if err.Kind != KindToolFailure {
		t.Errorf("kind = %q, want tool_failure", err.Kind)
	}
	if got := err.Error(); got == "" {
		t.Error("expected non-empty error string")
	}
}

func TestQualityGate_ErrorOmitsCauseWhenNil(t *testing.T) {
	// Error() omits the cause segment when no cause is given
	err := QualityGate("confidence below floor")
	want := "quality_gate: confidence below floor"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

// --- Unwrap / errors.Is compatibility ---

func TestUnwrap_ExposesWrappedCause(t *testing.T) {
	// Unwrap returns the original cause so errors.Is/errors.As traverse through it
	cause := errors.New("root cause")
	err := Runtime("inference unavailable", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

// --- Is / KindOf ---

func TestIs_MatchesWrappedKind(t *testing.T) {
	// Is reports true for a kernelerr.Error of the matching kind, even wrapped with fmt.Errorf
	base := DelegationFailure("child failed", nil)
	wrapped := fmt.Errorf("subtask x: %w", base)
	if !Is(wrapped, KindDelegationFailure) {
		t.Error("expected Is to match through fmt.Errorf wrapping")
	}
}

func TestIs_FalseForMismatchedKind(t *testing.T) {
	// Is reports false when the wrapped kernelerr.Error has a different kind
	err := Validation("bad instruction")
	if Is(err, KindRuntime) {
		t.Error("expected Is to reject a mismatched kind")
	}
}

func TestIs_FalseForNonKernelError(t *testing.T) {
	// Is reports false for a plain error that never wraps a kernelerr.Error
	if Is(errors.New("plain"), KindValidation) {
		t.Error("expected Is to reject a non-kernelerr error")
	}
}

func TestKindOf_ReturnsKindAndTrueForKernelError(t *testing.T) {
	// KindOf extracts the kind and ok=true for a kernelerr.Error
	err := ToolFailure("x", nil)
	k, ok := KindOf(err)
	if !ok || k != KindToolFailure {
		t.Errorf("got (%q, %v), want (tool_failure, true)", k, ok)
	}
}

func TestKindOf_ReturnsFalseForPlainError(t *testing.T) {
	// KindOf returns ok=false for a plain error
	_, ok := KindOf(errors.New("plain"))
	if ok {
		t.Error("expected ok=false for a plain error")
	}
}
