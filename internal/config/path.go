package config

import (
	"os"
	"path/filepath"
)

// DatabasePath returns the database file path, checking in order:
// 1. FINTUITIVE_DB environment variable
// 2. XDG_DATA_HOME/fintuitive/learning.db
// 3. ~/.local/share/fintuitive/learning.db
func DatabasePath() string {
	if envPath := os.Getenv("FINTUITIVE_DB"); envPath != "" {
		return envPath
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "fintuitive", "learning.db")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "learning.db"
	}

	return filepath.Join(home, ".local", "share", "fintuitive", "learning.db")
}
