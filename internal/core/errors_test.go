package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorClass
	}{
		{ErrInvalidAmount, ClassValidation},
		{fmt.Errorf("settle: %w", ErrSameAccount), ClassValidation},
		{ErrDailyLimitExceeded, ClassPolicy},
		{&TurnNotYetDueError{RoundsRemaining: 2}, ClassPolicy},
		{fmt.Errorf("apply: %w", ErrConflict), ClassConflict},
		{ErrAccountNotFound, ClassNotFound},
		{errors.New("disk on fire"), ClassInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestTurnNotYetDueError(t *testing.T) {
	var err error = &TurnNotYetDueError{RoundsRemaining: 3}
	if !errors.Is(err, ErrTurnNotYetDue) {
		t.Fatal("expected errors.Is to match ErrTurnNotYetDue")
	}
	var due *TurnNotYetDueError
	if !errors.As(fmt.Errorf("payout: %w", err), &due) || due.RoundsRemaining != 3 {
		t.Fatalf("errors.As failed: %+v", due)
	}
	if Code(err) != "turn_not_yet_due" {
		t.Fatalf("unexpected code %q", Code(err))
	}
}
