// Package config resolves user-supplied locations for the config file
// and the SQLite database.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves a path the way a shell would: a leading ~ becomes
// the user's home directory and $VAR references are substituted from the
// environment. Paths needing no expansion pass through untouched; when
// the home directory cannot be determined the ~ is left in place.
func ExpandPath(path string) string {
	switch {
	case path == "":
		return ""
	case path == "~":
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	case strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return os.ExpandEnv(path)
}
