package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/harrison/lf/internal/classify"
	"github.com/harrison/lf/internal/fileutil"
)

// FileName is the per-tree configuration file looked up in the walked root.
const FileName = ".lf.yaml"

// HistoryConfig represents run history configuration
type HistoryConfig struct {
	// Enabled records every run in the history database
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database (empty = $LF_HOME/history.db)
	DBPath string `yaml:"db_path"`
}

// Config represents lf configuration options
type Config struct {
	// Workers is the number of parallel workers (0 = one per CPU)
	Workers int `yaml:"workers"`

	// QueueSize bounds the number of discovered files waiting for a worker
	QueueSize int `yaml:"queue_size"`

	// SampleSize is the number of leading bytes inspected by the binary heuristic
	SampleSize int `yaml:"sample_size"`

	// MaxFileSize skips files larger than this many bytes (0 = unlimited)
	MaxFileSize int64 `yaml:"max_file_size"`

	// ExcludeDirs lists directory names never descended into
	ExcludeDirs []string `yaml:"exclude_dirs"`

	// Extensions restricts conversion to these extensions (empty = all files)
	Extensions []string `yaml:"extensions"`

	// Gitignore skips paths matched by the root .gitignore
	Gitignore bool `yaml:"gitignore"`

	// DryRun reports what would change without writing
	DryRun bool `yaml:"dry_run"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs will be written (empty = no file log)
	LogDir string `yaml:"log_dir"`

	// Lock takes the per-root run lock so two runs never share a tree
	Lock bool `yaml:"lock"`

	// History contains run history configuration
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Workers:     0, // One per CPU
		QueueSize:   64,
		SampleSize:  classify.DefaultSampleSize,
		MaxFileSize: 0, // Unlimited
		ExcludeDirs: append([]string(nil), fileutil.DefaultExcludeDirs...),
		Extensions:  nil,
		Gitignore:   false,
		DryRun:      false,
		LogLevel:    "info",
		LogDir:      "",
		Lock:        true,
		History: HistoryConfig{
			Enabled: false,
			DBPath:  "",
		},
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Keys present in the file win over defaults, even when set to a zero value
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	has := func(key string) bool {
		_, ok := rawMap[key]
		return ok
	}

	if has("workers") {
		cfg.Workers = fileCfg.Workers
	}
	if has("queue_size") {
		cfg.QueueSize = fileCfg.QueueSize
	}
	if has("sample_size") {
		cfg.SampleSize = fileCfg.SampleSize
	}
	if has("max_file_size") {
		cfg.MaxFileSize = fileCfg.MaxFileSize
	}
	if has("exclude_dirs") {
		cfg.ExcludeDirs = fileCfg.ExcludeDirs
	}
	if has("extensions") {
		cfg.Extensions = fileCfg.Extensions
	}
	if has("gitignore") {
		cfg.Gitignore = fileCfg.Gitignore
	}
	if has("dry_run") {
		cfg.DryRun = fileCfg.DryRun
	}
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.LogDir != "" {
		cfg.LogDir = fileCfg.LogDir
	}
	if has("lock") {
		cfg.Lock = fileCfg.Lock
	}

	if section, ok := rawMap["history"].(map[string]interface{}); ok {
		if _, exists := section["enabled"]; exists {
			cfg.History.Enabled = fileCfg.History.Enabled
		}
		if _, exists := section["db_path"]; exists {
			cfg.History.DBPath = fileCfg.History.DBPath
		}
	}

	// Relative log and database paths are relative to the config file
	base := filepath.Dir(path)
	cfg.LogDir = resolveRelative(base, cfg.LogDir)
	cfg.History.DBPath = resolveRelative(base, cfg.History.DBPath)

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .lf.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, FileName))
}

func resolveRelative(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// Overrides carries CLI flag values. Nil fields were not given on the command line.
type Overrides struct {
	Workers     *int
	QueueSize   *int
	MaxFileSize *int64
	ExcludeDirs []string
	Extensions  []string
	Gitignore   *bool
	DryRun      *bool
	LogLevel    *string
	LogDir      *string
	Lock        *bool
	History     *bool
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
// Excluded directories are added to the configured ones; extensions replace them
func (c *Config) MergeWithFlags(o Overrides) {
	if o.Workers != nil {
		c.Workers = *o.Workers
	}
	if o.QueueSize != nil {
		c.QueueSize = *o.QueueSize
	}
	if o.MaxFileSize != nil {
		c.MaxFileSize = *o.MaxFileSize
	}
	if len(o.ExcludeDirs) > 0 {
		c.ExcludeDirs = append(c.ExcludeDirs, o.ExcludeDirs...)
	}
	if len(o.Extensions) > 0 {
		c.Extensions = o.Extensions
	}
	if o.Gitignore != nil {
		c.Gitignore = *o.Gitignore
	}
	if o.DryRun != nil {
		c.DryRun = *o.DryRun
	}
	if o.LogLevel != nil {
		c.LogLevel = *o.LogLevel
	}
	if o.LogDir != nil {
		c.LogDir = *o.LogDir
	}
	if o.Lock != nil {
		c.Lock = *o.Lock
	}
	if o.History != nil {
		c.History.Enabled = *o.History
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size must be >= 0, got %d", c.QueueSize)
	}
	if c.SampleSize <= 0 {
		return fmt.Errorf("sample_size must be > 0, got %d", c.SampleSize)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size must be >= 0, got %d", c.MaxFileSize)
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	for _, dir := range c.ExcludeDirs {
		if dir == "" {
			return fmt.Errorf("exclude_dirs cannot contain an empty name")
		}
	}

	return nil
}
