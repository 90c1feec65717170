package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/duecycle/duecycle/internal/common"
	"github.com/duecycle/duecycle/internal/config"
	"github.com/duecycle/duecycle/internal/model"
	"github.com/duecycle/duecycle/internal/service"
	"github.com/duecycle/duecycle/internal/storage"
	"github.com/spf13/viper"
)

// timeRounding trims sub-millisecond noise from durations shown to the user.
const timeRounding = time.Millisecond

// initStorage initializes the storage service with proper path expansion.
func initStorage(ctx context.Context) (service.Storage, error) {
	// Get database path from config
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/duecycle/duecycle.db"
	}

	// Expand tilde and environment variables
	dbPath = config.ExpandPath(dbPath)

	// Initialize storage
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// parseObligationID parses the positional <id> argument.
func parseObligationID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewUserError(
			fmt.Sprintf("invalid obligation ID %q: must be a positive integer", arg), err)
	}
	return id, nil
}

// parseDateFlag parses a --from/--to style date flag. An empty value
// returns the fallback.
func parseDateFlag(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	t, err := time.Parse(model.DateLayout, value)
	if err != nil {
		return time.Time{}, common.NewUserError(
			fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", value), err)
	}
	return t, nil
}
