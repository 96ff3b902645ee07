package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := Newf(CodeNameTaken, "name %q is taken", "alice")
	if !errors.Is(err, ErrNameTaken) {
		t.Fatal("expected errors.Is to match by code")
	}
	if errors.Is(err, ErrRoomFull) {
		t.Fatal("different codes should not match")
	}
}

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("room abc: %w", New(CodeStaleReference, "target gone"))
	if got := CodeOf(err); got != CodeStaleReference {
		t.Errorf("CodeOf = %s, want %s", got, CodeStaleReference)
	}
	if got := CodeOf(errors.New("plain")); got != CodeUnknown {
		t.Errorf("CodeOf(plain) = %s, want %s", got, CodeUnknown)
	}
}

func TestFatalCodes(t *testing.T) {
	if !IsFatal(Wrap(CodeInsufficientCards, "deal", errors.New("empty"))) {
		t.Error("insufficient cards must be fatal")
	}
	if !CodeConservationViolated.Fatal() {
		t.Error("conservation violation must be fatal")
	}
	if CodeIllegalAction.Fatal() {
		t.Error("illegal action is recoverable")
	}
}
