/*
Copyright © 2025 SubstantialCattle5, nilaysharan.com
*/

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/substantialcattle5/stillsuit/internal/constants"
)

// Load reads the configuration at path. A missing file yields the defaults;
// keys absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	configData, err := os.ReadFile(path) // #nosec G304 - path is chosen by the user
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("error reading configuration: %w", err)
	}

	if err := yaml.Unmarshal(configData, cfg); err != nil {
		return nil, fmt.Errorf("error parsing configuration %s: %w", path, err)
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error encoding configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), constants.StandardDirPerms); err != nil {
		return fmt.Errorf("error creating configuration directory: %w", err)
	}
	if err := os.WriteFile(path, data, constants.StandardFilePerms); err != nil {
		return fmt.Errorf("error writing configuration: %w", err)
	}
	return nil
}

// Print writes the effective configuration to w
func Print(cfg *Config, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("error printing configuration: %w", err)
	}
	return enc.Close()
}

func (c *Config) expandPaths() {
	for _, p := range []*string{&c.SourceDir, &c.BackupDir, &c.RestoreDir, &c.KeyFileDir, &c.HashFileDir, &c.Logging.File, &c.MetricsFile} {
		*p = expandHome(*p)
	}
}

func expandHome(p string) string {
	if p == "~" {
		return homeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir(), p[2:])
	}
	return p
}
