package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/duecycle/duecycle/internal/model"
)

// ErrObligationNotFound is returned when an obligation is not found.
var ErrObligationNotFound = errors.New("obligation not found")

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type listKind int

const (
	listAll listKind = iota
	listActive
	listLegacy
)

// SaveObligation inserts a new obligation or updates an existing one.
func (s *SQLiteStorage) SaveObligation(ctx context.Context, obligation *model.Obligation) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateObligation(obligation); err != nil {
		return err
	}
	return s.saveObligationTx(ctx, s.db, obligation)
}

func (s *SQLiteStorage) saveObligationTx(ctx context.Context, q querier, obligation *model.Obligation) error {
	recurrenceJSON, err := marshalSpec(obligation.Recurrence)
	if err != nil {
		return err
	}
	legacyJSON, err := marshalLegacy(obligation.Legacy)
	if err != nil {
		return err
	}

	if obligation.ID == 0 {
		result, execErr := q.ExecContext(ctx, `
			INSERT INTO obligations (name, amount, date, recurrence, recurring_config, migrated_at, last_processed)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			obligation.Name, obligation.Amount, obligation.Date,
			recurrenceJSON, legacyJSON, obligation.MigratedAt, lastProcessedOf(obligation.Recurrence),
		)
		if execErr != nil {
			return fmt.Errorf("failed to insert obligation: %w", execErr)
		}
		id, idErr := result.LastInsertId()
		if idErr != nil {
			return fmt.Errorf("failed to get obligation ID: %w", idErr)
		}
		obligation.ID = id
		return nil
	}

	_, err = q.ExecContext(ctx, `
		UPDATE obligations
		SET name = ?, amount = ?, date = ?, recurrence = ?, recurring_config = ?,
			migrated_at = ?, last_processed = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		obligation.Name, obligation.Amount, obligation.Date,
		recurrenceJSON, legacyJSON, obligation.MigratedAt, lastProcessedOf(obligation.Recurrence),
		obligation.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update obligation: %w", err)
	}
	return nil
}

// GetObligation retrieves an obligation by ID.
func (s *SQLiteStorage) GetObligation(ctx context.Context, id int64) (*model.Obligation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getObligationTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getObligationTx(ctx context.Context, q querier, id int64) (*model.Obligation, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, amount, date, recurrence, recurring_config, migrated_at, created_at, updated_at
		FROM obligations WHERE id = ?`, id)

	obligation, err := scanObligation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrObligationNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return obligation, nil
}

// ListObligations returns every obligation.
func (s *SQLiteStorage) ListObligations(ctx context.Context) ([]model.Obligation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listObligationsTx(ctx, s.db, listAll)
}

// ListActiveObligations returns obligations with an active current-shape rule.
func (s *SQLiteStorage) ListActiveObligations(ctx context.Context) ([]model.Obligation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listObligationsTx(ctx, s.db, listActive)
}

// ListLegacyObligations returns obligations that still carry an
// unconverted legacy rule.
func (s *SQLiteStorage) ListLegacyObligations(ctx context.Context) ([]model.Obligation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listObligationsTx(ctx, s.db, listLegacy)
}

func (s *SQLiteStorage) listObligationsTx(ctx context.Context, q querier, kind listKind) ([]model.Obligation, error) {
	query := `
		SELECT id, name, amount, date, recurrence, recurring_config, migrated_at, created_at, updated_at
		FROM obligations`
	switch kind {
	case listActive:
		query += ` WHERE recurrence IS NOT NULL`
	case listLegacy:
		query += ` WHERE recurrence IS NULL AND recurring_config IS NOT NULL`
	case listAll:
	}
	query += ` ORDER BY id`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list obligations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var obligations []model.Obligation
	for rows.Next() {
		obligation, scanErr := scanObligation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		if kind == listActive && (obligation.Recurrence == nil || !obligation.Recurrence.IsActive) {
			continue
		}
		obligations = append(obligations, *obligation)
	}
	return obligations, rows.Err()
}

// UpdateRecurrence replaces the obligation's current-shape rule.
func (s *SQLiteStorage) UpdateRecurrence(ctx context.Context, id int64, spec *model.RecurrenceSpec) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if spec == nil {
		return fmt.Errorf("%w: spec", ErrNilParameter)
	}
	return s.updateRecurrenceTx(ctx, s.db, id, spec)
}

func (s *SQLiteStorage) updateRecurrenceTx(ctx context.Context, q querier, id int64, spec *model.RecurrenceSpec) error {
	recurrenceJSON, err := marshalSpec(spec)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `
		UPDATE obligations
		SET recurrence = ?, last_processed = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		recurrenceJSON, lastProcessedOf(spec), id)
	if err != nil {
		return fmt.Errorf("failed to update recurrence: %w", err)
	}
	return requireRowAffected(result, id)
}

// AdvanceLastProcessed moves the rule's last processed date forward.
// Requests that would move it backward (or not at all) are ignored: the
// dispatcher may legitimately race itself, but history never rewinds.
func (s *SQLiteStorage) AdvanceLastProcessed(ctx context.Context, id int64, processed time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.advanceLastProcessedTx(ctx, s.db, id, processed)
}

func (s *SQLiteStorage) advanceLastProcessedTx(ctx context.Context, q querier, id int64, processed time.Time) error {
	obligation, err := s.getObligationTx(ctx, q, id)
	if err != nil {
		return err
	}
	spec := obligation.Recurrence
	if spec == nil {
		return fmt.Errorf("obligation %d: cannot advance last processed on a legacy rule", id)
	}
	if spec.LastProcessed != nil && !processed.After(*spec.LastProcessed) {
		return nil
	}

	updated := spec.Clone()
	updated.LastProcessed = &processed
	return s.updateRecurrenceTx(ctx, q, id, updated)
}

// SetDailyAdjustments records the per-day amount overrides for a single
// month. Only one month of adjustments is retained: a new month's
// adjustments replace whatever was stored before.
func (s *SQLiteStorage) SetDailyAdjustments(ctx context.Context, id int64, month string, adjustments map[string]model.Adjustment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMonth(month); err != nil {
		return err
	}
	return s.setDailyAdjustmentsTx(ctx, s.db, id, month, adjustments)
}

func (s *SQLiteStorage) setDailyAdjustmentsTx(ctx context.Context, q querier, id int64, month string, adjustments map[string]model.Adjustment) error {
	obligation, err := s.getObligationTx(ctx, q, id)
	if err != nil {
		return err
	}
	if obligation.Recurrence == nil {
		return fmt.Errorf("obligation %d: cannot set adjustments on a legacy rule", id)
	}

	updated := obligation.Recurrence.Clone()
	updated.AdjustmentsMonth = month
	updated.DailyAdjustments = adjustments
	return s.updateRecurrenceTx(ctx, q, id, updated)
}

// MarkMigrated stores the converted rule and records the conversion
// time. The legacy JSON is retained read-only for audit.
func (s *SQLiteStorage) MarkMigrated(ctx context.Context, id int64, spec *model.RecurrenceSpec) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if spec == nil {
		return fmt.Errorf("%w: spec", ErrNilParameter)
	}
	return s.markMigratedTx(ctx, s.db, id, spec)
}

func (s *SQLiteStorage) markMigratedTx(ctx context.Context, q querier, id int64, spec *model.RecurrenceSpec) error {
	recurrenceJSON, err := marshalSpec(spec)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `
		UPDATE obligations
		SET recurrence = ?, last_processed = ?, migrated_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		recurrenceJSON, lastProcessedOf(spec), id)
	if err != nil {
		return fmt.Errorf("failed to mark obligation migrated: %w", err)
	}
	return requireRowAffected(result, id)
}

func requireRowAffected(result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %d", ErrObligationNotFound, id)
	}
	return nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanObligation(row rowScanner) (*model.Obligation, error) {
	var (
		obligation     model.Obligation
		recurrenceJSON sql.NullString
		legacyJSON     sql.NullString
		migratedAt     sql.NullTime
	)
	err := row.Scan(
		&obligation.ID, &obligation.Name, &obligation.Amount, &obligation.Date,
		&recurrenceJSON, &legacyJSON, &migratedAt,
		&obligation.CreatedAt, &obligation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if recurrenceJSON.Valid {
		var spec model.RecurrenceSpec
		if err := json.Unmarshal([]byte(recurrenceJSON.String), &spec); err != nil {
			return nil, fmt.Errorf("obligation %d: corrupt recurrence rule: %w", obligation.ID, err)
		}
		obligation.Recurrence = &spec
	}
	if legacyJSON.Valid {
		var legacy model.LegacyRecurringConfig
		if err := json.Unmarshal([]byte(legacyJSON.String), &legacy); err != nil {
			return nil, fmt.Errorf("obligation %d: corrupt legacy rule: %w", obligation.ID, err)
		}
		obligation.Legacy = &legacy
	}
	if migratedAt.Valid {
		obligation.MigratedAt = &migratedAt.Time
	}
	return &obligation, nil
}

func marshalSpec(spec *model.RecurrenceSpec) (*string, error) {
	if spec == nil {
		return nil, nil
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recurrence rule: %w", err)
	}
	str := string(data)
	return &str, nil
}

func marshalLegacy(legacy *model.LegacyRecurringConfig) (*string, error) {
	if legacy == nil {
		return nil, nil
	}
	data, err := json.Marshal(legacy)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal legacy rule: %w", err)
	}
	str := string(data)
	return &str, nil
}

func lastProcessedOf(spec *model.RecurrenceSpec) *time.Time {
	if spec == nil {
		return nil
	}
	return spec.LastProcessed
}
