package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/duecycle/duecycle/internal/model"
	"github.com/duecycle/duecycle/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

// sqliteTransaction wraps sql.Tx to implement service.Transaction.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

// Transaction methods delegate to the main storage with the transaction.
func (t *sqliteTransaction) SaveObligation(ctx context.Context, obligation *model.Obligation) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateObligation(obligation); err != nil {
		return err
	}
	return t.storage.saveObligationTx(ctx, t.tx, obligation)
}

func (t *sqliteTransaction) GetObligation(ctx context.Context, id int64) (*model.Obligation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getObligationTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) ListObligations(ctx context.Context) ([]model.Obligation, error) {
	return t.storage.listObligationsTx(ctx, t.tx, listAll)
}

func (t *sqliteTransaction) ListActiveObligations(ctx context.Context) ([]model.Obligation, error) {
	return t.storage.listObligationsTx(ctx, t.tx, listActive)
}

func (t *sqliteTransaction) ListLegacyObligations(ctx context.Context) ([]model.Obligation, error) {
	return t.storage.listObligationsTx(ctx, t.tx, listLegacy)
}

func (t *sqliteTransaction) UpdateRecurrence(ctx context.Context, id int64, spec *model.RecurrenceSpec) error {
	return t.storage.updateRecurrenceTx(ctx, t.tx, id, spec)
}

func (t *sqliteTransaction) AdvanceLastProcessed(ctx context.Context, id int64, processed time.Time) error {
	return t.storage.advanceLastProcessedTx(ctx, t.tx, id, processed)
}

func (t *sqliteTransaction) SetDailyAdjustments(ctx context.Context, id int64, month string, adjustments map[string]model.Adjustment) error {
	return t.storage.setDailyAdjustmentsTx(ctx, t.tx, id, month, adjustments)
}

func (t *sqliteTransaction) MarkMigrated(ctx context.Context, id int64, spec *model.RecurrenceSpec) error {
	return t.storage.markMigratedTx(ctx, t.tx, id, spec)
}

func (t *sqliteTransaction) SaveLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLedgerEntry(entry); err != nil {
		return err
	}
	return t.storage.saveLedgerEntryTx(ctx, t.tx, entry)
}

func (t *sqliteTransaction) LedgerEntryExists(ctx context.Context, obligationID int64, dueDate time.Time) (bool, error) {
	return t.storage.ledgerEntryExistsTx(ctx, t.tx, obligationID, dueDate)
}

func (t *sqliteTransaction) GetLedgerEntriesByDateRange(ctx context.Context, start, end time.Time) ([]model.LedgerEntry, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, end, start)
	}
	return t.storage.ledgerEntriesByDateRangeTx(ctx, t.tx, start, end)
}

func (t *sqliteTransaction) GetLedgerEntriesByObligation(ctx context.Context, obligationID int64) ([]model.LedgerEntry, error) {
	return t.storage.ledgerEntriesByObligationTx(ctx, t.tx, obligationID)
}

func (t *sqliteTransaction) Migrate(_ context.Context) error {
	// Migrations should not be run within a transaction
	return fmt.Errorf("migrations cannot be run within a transaction")
}

func (t *sqliteTransaction) BeginTx(_ context.Context) (service.Transaction, error) {
	// Nested transactions not supported
	return nil, fmt.Errorf("nested transactions not supported")
}

func (t *sqliteTransaction) Close() error {
	// Transactions should be committed or rolled back, not closed
	return fmt.Errorf("transactions must be committed or rolled back, not closed")
}
