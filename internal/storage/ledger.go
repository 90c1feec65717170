package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/duecycle/duecycle/internal/model"
)

// SaveLedgerEntry inserts a materialized occurrence. Inserting the same
// (obligation, due date) pair twice is a silent no-op: the unique index
// is the at-most-once guarantee the dispatcher relies on.
func (s *SQLiteStorage) SaveLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLedgerEntry(entry); err != nil {
		return err
	}
	return s.saveLedgerEntryTx(ctx, s.db, entry)
}

func (s *SQLiteStorage) saveLedgerEntryTx(ctx context.Context, q querier, entry *model.LedgerEntry) error {
	result, err := q.ExecContext(ctx, `
		INSERT INTO ledger_entries (obligation_id, due_date, amount)
		VALUES (?, ?, ?)
		ON CONFLICT(obligation_id, due_date) DO NOTHING`,
		entry.ObligationID, dateOnly(entry.DueDate), entry.Amount)
	if err != nil {
		return fmt.Errorf("failed to save ledger entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		// Already materialized.
		return nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get ledger entry ID: %w", err)
	}
	entry.ID = id
	return nil
}

// LedgerEntryExists reports whether an occurrence has already been
// materialized.
func (s *SQLiteStorage) LedgerEntryExists(ctx context.Context, obligationID int64, dueDate time.Time) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	return s.ledgerEntryExistsTx(ctx, s.db, obligationID, dueDate)
}

func (s *SQLiteStorage) ledgerEntryExistsTx(ctx context.Context, q querier, obligationID int64, dueDate time.Time) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `
		SELECT 1 FROM ledger_entries WHERE obligation_id = ? AND due_date = ?`,
		obligationID, dateOnly(dueDate)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check ledger entry: %w", err)
	}
	return true, nil
}

// GetLedgerEntriesByDateRange returns entries due within [start, end].
func (s *SQLiteStorage) GetLedgerEntriesByDateRange(ctx context.Context, start, end time.Time) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, end, start)
	}
	return s.ledgerEntriesByDateRangeTx(ctx, s.db, start, end)
}

func (s *SQLiteStorage) ledgerEntriesByDateRangeTx(ctx context.Context, q querier, start, end time.Time) ([]model.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, obligation_id, due_date, amount, created_at
		FROM ledger_entries
		WHERE due_date >= ? AND due_date <= ?
		ORDER BY due_date, obligation_id`,
		dateOnly(start), dateOnly(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	return collectLedgerEntries(rows)
}

// GetLedgerEntriesByObligation returns every entry for one obligation.
func (s *SQLiteStorage) GetLedgerEntriesByObligation(ctx context.Context, obligationID int64) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.ledgerEntriesByObligationTx(ctx, s.db, obligationID)
}

func (s *SQLiteStorage) ledgerEntriesByObligationTx(ctx context.Context, q querier, obligationID int64) ([]model.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, obligation_id, due_date, amount, created_at
		FROM ledger_entries
		WHERE obligation_id = ?
		ORDER BY due_date`,
		obligationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	return collectLedgerEntries(rows)
}

func collectLedgerEntries(rows *sql.Rows) ([]model.LedgerEntry, error) {
	defer func() { _ = rows.Close() }()

	var entries []model.LedgerEntry
	for rows.Next() {
		var entry model.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.ObligationID, &entry.DueDate, &entry.Amount, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// dateOnly stores due dates in a canonical form so the unique index
// compares calendar dates, not instants.
func dateOnly(t time.Time) string {
	return t.Format(model.DateLayout)
}
