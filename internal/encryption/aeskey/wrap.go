package aeskey

import (
	"crypto/aes"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/constants"
)

/*
WrapKey encrypts the raw key material under a key derived from the password
("key wrapping"), so the run key can be stored on disk without being readable.

Layout: [16-byte IV][base64(AES-CBC ciphertext of the key)]
*/
func WrapKey(key []byte, password string) ([]byte, error) {
	if len(key) != constants.KeySize {
		return nil, backuperr.Crypto("wrap key", fmt.Errorf("key must be %d bytes, got %d", constants.KeySize, len(key)))
	}

	wrappingKey, err := deriveWrappingKey(password)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(wrappingKey)
	if err != nil {
		return nil, backuperr.Crypto("wrap key", fmt.Errorf("failed to create cipher: %w", err))
	}

	iv, err := generateIV()
	if err != nil {
		return nil, backuperr.Crypto("wrap key", err)
	}

	ciphertext := encryptCBC(block, iv, key)
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(ciphertext)))
	base64.StdEncoding.Encode(encoded, ciphertext)

	return append(iv, encoded...), nil
}

// UnwrapKey recovers a key produced by WrapKey. A wrong password surfaces as a crypto error.
func UnwrapKey(data []byte, password string) ([]byte, error) {
	if len(data) <= aes.BlockSize {
		return nil, backuperr.Crypto("unwrap key", fmt.Errorf("wrapped key too short: %d bytes", len(data)))
	}

	iv := data[:aes.BlockSize]
	ciphertext, err := base64.StdEncoding.DecodeString(string(data[aes.BlockSize:]))
	if err != nil {
		return nil, backuperr.Crypto("unwrap key", fmt.Errorf("failed to decode wrapped key: %w", err))
	}

	wrappingKey, err := deriveWrappingKey(password)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(wrappingKey)
	if err != nil {
		return nil, backuperr.Crypto("unwrap key", fmt.Errorf("failed to create cipher: %w", err))
	}

	key, err := decryptCBC(block, iv, ciphertext)
	if err != nil {
		return nil, backuperr.Crypto("unwrap key", fmt.Errorf("wrong password or corrupted key file: %w", err))
	}
	if len(key) != constants.KeySize {
		return nil, backuperr.Crypto("unwrap key", fmt.Errorf("wrong password or corrupted key file"))
	}
	return key, nil
}

// SaveKeyFile writes the wrapped key to path with owner-only permissions.
func SaveKeyFile(path string, key []byte, password string) error {
	wrapped, err := WrapKey(key, password)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), constants.SecureDirPerms); err != nil {
		return backuperr.FromOS("create key directory", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, wrapped, constants.SecureFilePerms); err != nil {
		return backuperr.FromOS("write key file", path, err)
	}
	return nil
}

// LoadKeyFile reads and unwraps a key written by SaveKeyFile.
func LoadKeyFile(path, password string) ([]byte, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, backuperr.FromOS("read key file", path, err)
	}
	return UnwrapKey(data, password)
}
