// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/duecycle/duecycle/internal/model"
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Obligation operations
	SaveObligation(ctx context.Context, obligation *model.Obligation) error
	GetObligation(ctx context.Context, id int64) (*model.Obligation, error)
	ListObligations(ctx context.Context) ([]model.Obligation, error)
	ListActiveObligations(ctx context.Context) ([]model.Obligation, error)
	ListLegacyObligations(ctx context.Context) ([]model.Obligation, error)
	UpdateRecurrence(ctx context.Context, id int64, spec *model.RecurrenceSpec) error
	AdvanceLastProcessed(ctx context.Context, id int64, processed time.Time) error
	SetDailyAdjustments(ctx context.Context, id int64, month string, adjustments map[string]model.Adjustment) error

	// Legacy migration bookkeeping: persists the converted rule and
	// records when the conversion happened. The legacy JSON is kept
	// read-only for audit.
	MarkMigrated(ctx context.Context, id int64, spec *model.RecurrenceSpec) error

	// Ledger operations
	SaveLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error
	LedgerEntryExists(ctx context.Context, obligationID int64, dueDate time.Time) (bool, error)
	GetLedgerEntriesByDateRange(ctx context.Context, start, end time.Time) ([]model.LedgerEntry, error)
	GetLedgerEntriesByObligation(ctx context.Context, obligationID int64) ([]model.LedgerEntry, error)

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DispatchStats shows the results of a dispatcher pass.
type DispatchStats struct {
	Obligations  int
	Materialized int
	Skipped      int
	Anomalies    int
	Duration     time.Duration
}

// MigrationStats shows the results of a legacy migration pass.
type MigrationStats struct {
	Converted int
	Invalid   int
	Duration  time.Duration
}
