package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv names the environment variable overriding the lf home directory.
const HomeEnv = "LF_HOME"

// GetHome returns the lf home directory
// Priority order:
//  1. LF_HOME environment variable (if set)
//  2. <user cache dir>/lf
//
// The directory is created if it doesn't exist
func GetHome() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = ""
	}
	return GetHomeWithCacheDir(cacheDir)
}

// GetHomeWithCacheDir is GetHome with an explicit fallback cache directory.
func GetHomeWithCacheDir(cacheDir string) (string, error) {
	home := os.Getenv(HomeEnv)
	if home == "" {
		if cacheDir == "" {
			return "", fmt.Errorf("no cache directory available; set %s", HomeEnv)
		}
		home = filepath.Join(cacheDir, "lf")
	}

	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create lf home directory: %w", err)
	}
	return home, nil
}

// GetLockDir returns the directory holding per-root run locks
func GetLockDir() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "locks"), nil
}

// GetHistoryDBPath returns the default path to the run history database
// Always returns: $LF_HOME/history.db
func GetHistoryDBPath() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "history.db"), nil
}

// HistoryDBPath returns the configured database path, or the default under lf home
func (c *Config) HistoryDBPath() (string, error) {
	if c.History.DBPath != "" {
		return c.History.DBPath, nil
	}
	return GetHistoryDBPath()
}
