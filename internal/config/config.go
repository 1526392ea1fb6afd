package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/substantialcattle5/stillsuit/internal/chunk"
	"github.com/substantialcattle5/stillsuit/internal/constants"
	"github.com/substantialcattle5/stillsuit/util"
)

// Config is the content of the stillsuit configuration file
type Config struct {
	SourceDir  string `yaml:"source_dir"`
	BackupDir  string `yaml:"backup_dir"`
	RestoreDir string `yaml:"restore_dir"`

	Compression bool   `yaml:"compression"`
	Encryption  bool   `yaml:"encryption"`
	KDF         string `yaml:"kdf"`

	Backup  FilterConfig `yaml:"backup"`
	Restore FilterConfig `yaml:"restore"`

	IntegrityCheck bool   `yaml:"integrity_check"`
	HashAlgorithm  string `yaml:"hash_algorithm"`
	KeyFileDir     string `yaml:"key_file_dir,omitempty"`
	HashFileDir    string `yaml:"hash_file_dir,omitempty"`

	ChunkSize          int     `yaml:"chunk_size"`
	Workers            int     `yaml:"workers"`
	SpaceMarginPercent float64 `yaml:"space_margin_percent"`
	ReadLimit          string  `yaml:"read_limit,omitempty"`
	ProgressInterval   string  `yaml:"progress_interval"`

	Logging     LoggingConfig `yaml:"logging"`
	MetricsFile string        `yaml:"metrics_file,omitempty"`
}

// FilterConfig holds include/exclude pattern lists
type FilterConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// LoggingConfig controls the audit log
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Compression:        true,
		Encryption:         true,
		KDF:                constants.KDFPBKDF2,
		Backup:             FilterConfig{Include: []string{"all"}, Exclude: []string{}},
		Restore:            FilterConfig{Include: []string{"all"}, Exclude: []string{}},
		IntegrityCheck:     true,
		HashAlgorithm:      constants.HashAlgorithmSHA256,
		ChunkSize:          constants.DefaultChunkSize,
		Workers:            runtime.NumCPU(),
		SpaceMarginPercent: constants.DefaultSpaceMarginPercent,
		ProgressInterval:   constants.DefaultProgressInterval,
		Logging: LoggingConfig{
			Enabled: true,
			File:    filepath.Join(homeDir(), ".stillsuit", "audit.log"),
		},
	}
}

// DefaultPath returns $HOME/.stillsuit.yaml
func DefaultPath() string {
	return filepath.Join(homeDir(), ".stillsuit.yaml")
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be at least 1, got %d", c.ChunkSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.SpaceMarginPercent < 0 {
		return fmt.Errorf("space_margin_percent must not be negative, got %v", c.SpaceMarginPercent)
	}
	switch c.KDF {
	case constants.KDFPBKDF2, constants.KDFScrypt:
	default:
		return fmt.Errorf("unsupported kdf %q (use %s or %s)", c.KDF, constants.KDFPBKDF2, constants.KDFScrypt)
	}
	if _, err := chunk.CreateHasher(c.HashAlgorithm); err != nil {
		return fmt.Errorf("invalid hash_algorithm: %w", err)
	}
	if _, err := c.Interval(); err != nil {
		return err
	}
	if c.ReadLimit != "" {
		if n, err := util.ParseSize(c.ReadLimit); err != nil || n <= 0 {
			return fmt.Errorf("invalid read_limit %q", c.ReadLimit)
		}
	}
	if c.Logging.Enabled && strings.TrimSpace(c.Logging.File) == "" {
		return fmt.Errorf("logging.file is required when logging is enabled")
	}
	return nil
}

// Interval parses progress_interval
func (c *Config) Interval() (time.Duration, error) {
	if c.ProgressInterval == "" {
		return 5 * time.Second, nil
	}
	d, err := time.ParseDuration(c.ProgressInterval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid progress_interval %q", c.ProgressInterval)
	}
	return d, nil
}

// KeyFilePath returns where the wrapped key is kept; the backup directory unless key_file_dir is set
func (c *Config) KeyFilePath(backupDir string) string {
	dir := c.KeyFileDir
	if dir == "" {
		dir = backupDir
	}
	return filepath.Join(dir, constants.KeyFileName)
}

// ManifestPath returns where hashes.json is kept; the backup directory unless hash_file_dir is set
func (c *Config) ManifestPath(backupDir string) string {
	dir := c.HashFileDir
	if dir == "" {
		dir = backupDir
	}
	return filepath.Join(dir, constants.ManifestFileName)
}
