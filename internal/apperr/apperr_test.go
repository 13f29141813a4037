package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := New(KindExpired, "verify", "deadline passed")
	wrapped := fmt.Errorf("relay: %w", base)

	if !Is(wrapped, KindExpired) {
		t.Fatalf("expected expired kind, got %q", KindOf(wrapped))
	}
	if Is(wrapped, KindBadSignature) {
		t.Fatalf("unexpected bad signature kind")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors carry no kind")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(KindTransient, "op", nil) != nil {
		t.Fatalf("wrap of nil must be nil")
	}
}
