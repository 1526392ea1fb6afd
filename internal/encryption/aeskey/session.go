package aeskey

import (
	"errors"
	"os"

	"github.com/substantialcattle5/stillsuit/internal/backuperr"
)

// ForBackup derives the run key and, when keyFile is set, stores it wrapped.
func ForBackup(kdf, password, keyFile string) ([]byte, error) {
	key, err := Derive(kdf, password)
	if err != nil {
		return nil, err
	}
	if keyFile != "" {
		if err := SaveKeyFile(keyFile, key, password); err != nil {
			return nil, err
		}
	}
	return key, nil
}

// ForRestore unwraps the stored key when keyFile exists, otherwise it derives
// the key again from the password.
func ForRestore(kdf, password, keyFile string) ([]byte, error) {
	if keyFile != "" {
		key, err := LoadKeyFile(keyFile, password)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, backuperr.ErrNotFound) {
			return nil, err
		}
		if _, statErr := os.Stat(keyFile); statErr == nil {
			return nil, err
		}
	}
	return Derive(kdf, password)
}
