package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestGetHomeWithEnvVar tests LF_HOME takes precedence
func TestGetHomeWithEnvVar(t *testing.T) {
	customHome := filepath.Join(t.TempDir(), "custom")
	t.Setenv(HomeEnv, customHome)

	home, err := GetHomeWithCacheDir(t.TempDir())
	if err != nil {
		t.Fatalf("GetHomeWithCacheDir() error = %v", err)
	}
	if home != customHome {
		t.Errorf("GetHomeWithCacheDir() = %q, want %q", home, customHome)
	}
	if _, err := os.Stat(home); err != nil {
		t.Errorf("home directory not created: %v", err)
	}
}

// TestGetHomeFromCacheDir tests the cache directory fallback
func TestGetHomeFromCacheDir(t *testing.T) {
	t.Setenv(HomeEnv, "")
	cacheDir := t.TempDir()

	home, err := GetHomeWithCacheDir(cacheDir)
	if err != nil {
		t.Fatalf("GetHomeWithCacheDir() error = %v", err)
	}
	if want := filepath.Join(cacheDir, "lf"); home != want {
		t.Errorf("GetHomeWithCacheDir() = %q, want %q", home, want)
	}
	if _, err := os.Stat(home); os.IsNotExist(err) {
		t.Errorf("Directory not created: %q", home)
	}
}

func TestGetHomeNoCacheDir(t *testing.T) {
	t.Setenv(HomeEnv, "")

	if _, err := GetHomeWithCacheDir(""); err == nil {
		t.Error("expected error without LF_HOME or a cache directory")
	}
}

func TestHomePaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)

	lockDir, err := GetLockDir()
	if err != nil {
		t.Fatalf("GetLockDir() error = %v", err)
	}
	if lockDir != filepath.Join(home, "locks") {
		t.Errorf("GetLockDir() = %q", lockDir)
	}

	dbPath, err := GetHistoryDBPath()
	if err != nil {
		t.Fatalf("GetHistoryDBPath() error = %v", err)
	}
	if dbPath != filepath.Join(home, "history.db") {
		t.Errorf("GetHistoryDBPath() = %q", dbPath)
	}
}

func TestConfigHistoryDBPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)

	cfg := DefaultConfig()
	path, err := cfg.HistoryDBPath()
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(home, "history.db") {
		t.Errorf("HistoryDBPath() = %q", path)
	}

	cfg.History.DBPath = "/var/tmp/runs.db"
	path, err = cfg.HistoryDBPath()
	if err != nil {
		t.Fatal(err)
	}
	if path != "/var/tmp/runs.db" {
		t.Errorf("HistoryDBPath() = %q", path)
	}
}
