package common

import (
	"errors"
	"testing"
)

func TestUserError(t *testing.T) {
	t.Run("wraps an underlying error", func(t *testing.T) {
		err := NewUserError("invalid month \"2025-13\": expected YYYY-MM", ErrInvalidConfig)

		var userErr *UserError
		if !errors.As(err, &userErr) {
			t.Fatal("expected error to be a *UserError")
		}
		if userErr.UserMessage != "invalid month \"2025-13\": expected YYYY-MM" {
			t.Errorf("unexpected user message: %q", userErr.UserMessage)
		}
		if !errors.Is(err, ErrInvalidConfig) {
			t.Error("expected the underlying error to unwrap")
		}

		want := "invalid month \"2025-13\": expected YYYY-MM: invalid configuration"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("message only", func(t *testing.T) {
		err := NewUserError("invalid day 42: must be between 1 and 31", nil)
		if err.Error() != "invalid day 42: must be between 1 and 31" {
			t.Errorf("unexpected Error(): %q", err.Error())
		}

		var userErr *UserError
		if !errors.As(err, &userErr) {
			t.Fatal("expected error to be a *UserError")
		}
		if userErr.Unwrap() != nil {
			t.Error("Unwrap() should be nil when no cause was given")
		}
	})
}
