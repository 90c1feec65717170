package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/duecycle/duecycle/internal/cli"
	"github.com/duecycle/duecycle/internal/config"
	"github.com/duecycle/duecycle/internal/engine"
	"github.com/duecycle/duecycle/internal/recurrence"
	"github.com/duecycle/duecycle/internal/storage"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command ensures your local database has all the required
tables and indexes for the application to function properly.`,
		RunE: runMigrate,
	}

	cmd.AddCommand(migrateLegacyCmd())

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".local", "share", "duecycle", "duecycle.db")
	} else {
		dbPath = config.ExpandPath(dbPath)
	}

	slog.Info("Starting database migration", "database", dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("✅ Database migrations completed successfully!")
	return nil
}

func migrateLegacyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "legacy",
		Short: "Convert legacy recurring rules to the current shape",
		Long: `One-time conversion pass: every obligation still described by the old
frequency-based rule shape is converted to a recurrence rule and marked
as migrated. The original legacy record is kept for audit.

Quarterly and biannual frequencies become monthly rules with interval
3 and 6, so converted rules keep their original cadence.`,
		RunE: runMigrateLegacy,
	}
}

func runMigrateLegacy(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	dispatcher := engine.New(store, recurrence.NewCalculator(), recurrence.NewValidator())

	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Converting legacy rules"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(done)
	}

	stats, err := dispatcher.MigrateLegacy(ctx, progress)
	if err != nil {
		return fmt.Errorf("legacy migration failed: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if stats.Converted == 0 && stats.Invalid == 0 {
		fmt.Println(cli.FormatInfo("No legacy rules found; nothing to convert.")) //nolint:forbidigo // User-facing output
		return nil
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Converted %d legacy rule(s) in %s", //nolint:forbidigo // User-facing output
		stats.Converted, stats.Duration.Round(timeRounding))))
	if stats.Invalid > 0 {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("%d rule(s) could not be converted; see the log for details", //nolint:forbidigo // User-facing output
			stats.Invalid)))
	}
	return nil
}
