package common

import (
	"context"
	"log/slog"
	"testing"
)

func TestSetupLogger(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	ctx := context.Background()

	t.Run("honors the configured level", func(t *testing.T) {
		if err := SetupLogger(slog.LevelWarn, "console"); err != nil {
			t.Fatalf("SetupLogger failed: %v", err)
		}
		if slog.Default().Enabled(ctx, slog.LevelInfo) {
			t.Error("info should be suppressed at warn level")
		}
		if !slog.Default().Enabled(ctx, slog.LevelWarn) {
			t.Error("warn should be enabled at warn level")
		}
	})

	t.Run("accepts every format including the fallback", func(t *testing.T) {
		for _, format := range []string{"console", "json", "unknown"} {
			if err := SetupLogger(slog.LevelDebug, format); err != nil {
				t.Errorf("SetupLogger(%q) failed: %v", format, err)
			}
			if !slog.Default().Enabled(ctx, slog.LevelDebug) {
				t.Errorf("debug should be enabled after SetupLogger(%q)", format)
			}
		}
	})
}
