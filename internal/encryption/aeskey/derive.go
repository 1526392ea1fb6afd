package aeskey

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"

	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/constants"
)

// DeriveKey derives the run key from a password with PBKDF2-HMAC-SHA256.
// Salt and iteration count are fixed, so the same password always yields the same key.
func DeriveKey(password string) ([]byte, error) {
	return Derive(constants.KDFPBKDF2, password)
}

// Derive derives a 256-bit key with the named KDF ("pbkdf2" when empty).
func Derive(kdf, password string) ([]byte, error) {
	return derive(kdf, password, constants.KeyDerivationSalt)
}

func deriveWrappingKey(password string) ([]byte, error) {
	return derive(constants.KDFPBKDF2, password, constants.KeyWrapSalt)
}

func derive(kdf, password, salt string) ([]byte, error) {
	if password == "" {
		return nil, backuperr.Crypto("derive key", fmt.Errorf("empty password"))
	}

	switch strings.ToLower(strings.TrimSpace(kdf)) {
	case constants.KDFPBKDF2, "":
		return pbkdf2.Key([]byte(password), []byte(salt),
			constants.KeyDerivationIterations, constants.KeySize, sha256.New), nil
	case constants.KDFScrypt:
		key, err := scrypt.Key([]byte(password), []byte(salt),
			constants.DefaultScryptN, constants.DefaultScryptR, constants.DefaultScryptP, constants.KeySize)
		if err != nil {
			return nil, backuperr.Crypto("derive key", fmt.Errorf("scrypt: %w", err))
		}
		return key, nil
	default:
		return nil, backuperr.Crypto("derive key", fmt.Errorf("unsupported KDF: %s", kdf))
	}
}
