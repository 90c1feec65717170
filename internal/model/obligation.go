package model

import (
	"time"
)

// Obligation is a recurring financial commitment: a base periodic amount
// plus the rule describing when it falls due. Exactly one of Recurrence
// and Legacy is authoritative; Legacy survives only until the migration
// pass converts it.
type Obligation struct {
	Date       time.Time              `json:"date"` // creation/original date
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
	MigratedAt *time.Time             `json:"migrated_at,omitempty"`
	Recurrence *RecurrenceSpec        `json:"recurrence,omitempty"`
	Legacy     *LegacyRecurringConfig `json:"recurring_config,omitempty"`
	Name       string                 `json:"name"`
	ID         int64                  `json:"id"`
	Amount     float64                `json:"amount"`
}

// IsLegacy reports whether the obligation still carries an unconverted
// legacy rule.
func (o *Obligation) IsLegacy() bool {
	return o != nil && o.Recurrence == nil && o.Legacy != nil
}

// LedgerEntry is one materialized occurrence of an obligation: the
// dispatcher writes exactly one entry per (obligation, due date).
type LedgerEntry struct {
	DueDate      time.Time `json:"due_date"`
	CreatedAt    time.Time `json:"created_at"`
	ID           int64     `json:"id"`
	ObligationID int64     `json:"obligation_id"`
	Amount       float64   `json:"amount"`
}
