package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindRecoverable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindConnectivity, true},
		{KindCompile, true},
		{KindRuntime, true},
		{KindTimeLimit, true},
		{KindIntegrityViolation, false},
		{KindPermissionDenied, false},
		{KindPersistence, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Recoverable(); got != tt.want {
				t.Errorf("Recoverable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOfThroughWrapping(t *testing.T) {
	base := errors.New("connection refused")
	err := fmt.Errorf("failed to execute: %w", Wrap(base, KindConnectivity, "execution service unreachable"))

	kind, ok := KindOf(err)
	if !ok || kind != KindConnectivity {
		t.Fatalf("KindOf() = %q, %v", kind, ok)
	}
	if !errors.Is(err, base) {
		t.Error("expected wrapped error to unwrap to base")
	}
	if got := ReasonOf(err); got != "execution service unreachable" {
		t.Errorf("ReasonOf() = %q", got)
	}
	if !Is(err, KindConnectivity) || Is(err, KindCompile) {
		t.Error("Is() mismatch")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, KindRuntime, "x") != nil {
		t.Error("expected nil")
	}
}
