// Package storage provides the data persistence layer for the duecycle application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/duecycle/duecycle/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
	ErrInvalidObligation  = errors.New("invalid obligation")
	ErrInvalidLedgerEntry = errors.New("invalid ledger entry")
	ErrInvalidMonth       = errors.New("invalid adjustments month")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateObligation validates a single obligation.
func validateObligation(obligation *model.Obligation) error {
	if obligation == nil {
		return fmt.Errorf("%w: obligation", ErrNilParameter)
	}
	if strings.TrimSpace(obligation.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidObligation)
	}
	if obligation.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidObligation)
	}
	if obligation.Recurrence == nil && obligation.Legacy == nil {
		return fmt.Errorf("%w: missing recurrence rule", ErrInvalidObligation)
	}
	return nil
}

// validateLedgerEntry validates a ledger entry.
func validateLedgerEntry(entry *model.LedgerEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry", ErrNilParameter)
	}
	if entry.ObligationID == 0 {
		return fmt.Errorf("%w: missing obligation ID", ErrInvalidLedgerEntry)
	}
	if entry.DueDate.IsZero() {
		return fmt.Errorf("%w: missing due date", ErrInvalidLedgerEntry)
	}
	return nil
}

// validateMonth ensures a month string matches the "YYYY-MM" wire layout.
func validateMonth(month string) error {
	if len(month) != 7 || month[4] != '-' {
		return fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	for i, r := range month {
		if i == 4 {
			continue
		}
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %q", ErrInvalidMonth, month)
		}
	}
	return nil
}
