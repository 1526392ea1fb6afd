package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/constants"
)

// Save writes the store to path atomically (temp file + rename).
func Save(s *Store, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), constants.StandardDirPerms); err != nil {
		return backuperr.FromOS("create manifest directory", filepath.Dir(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, Encode(s.Snapshot()), constants.StandardFilePerms); err != nil {
		return backuperr.FromOS("write manifest", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return backuperr.FromOS("write manifest", path, err)
	}
	return nil
}

// LoadStrict reads a manifest and reports any problem with it.
func LoadStrict(path string) (*Store, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, backuperr.FromOS("read manifest", path, err)
	}
	entries, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return FromMap(entries), nil
}

// Load returns an empty store when the manifest is missing or corrupt.
// Restores with integrity checking then fail every entry, which is intended.
func Load(path string) *Store {
	s, err := LoadStrict(path)
	if err != nil {
		return NewStore()
	}
	return s
}
