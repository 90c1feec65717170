package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("failed to get home directory: %v", err)
	}
	t.Setenv("DUECYCLE_TEST_DIR", "/var/lib/duecycle")

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "empty", path: "", want: ""},
		{name: "absolute passthrough", path: "/tmp/duecycle.db", want: "/tmp/duecycle.db"},
		{name: "bare tilde", path: "~", want: home},
		{name: "tilde prefix", path: "~/.local/share/duecycle", want: filepath.Join(home, ".local", "share", "duecycle")},
		{name: "env var", path: "$DUECYCLE_TEST_DIR/duecycle.db", want: "/var/lib/duecycle/duecycle.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandPath(tt.path); got != tt.want {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
