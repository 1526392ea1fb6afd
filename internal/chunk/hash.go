package chunk

import (
	"crypto/md5"  // #nosec G501 - selectable for compatibility with existing manifests
	"crypto/sha1" // #nosec G505 - selectable for compatibility with existing manifests
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/substantialcattle5/stillsuit/internal/constants"
)

// NormalizeAlgorithm maps names such as "SHA-256" onto the canonical constants.
func NormalizeAlgorithm(algorithm string) string {
	a := strings.ToLower(strings.TrimSpace(algorithm))
	a = strings.ReplaceAll(a, "-", "")
	a = strings.ReplaceAll(a, "_", "")
	return a
}

// CreateHasher creates a hasher for the configured hash algorithm
func CreateHasher(algorithm string) (hash.Hash, error) {
	switch NormalizeAlgorithm(algorithm) {
	case constants.HashAlgorithmSHA256, "": // Default to SHA-256 if empty
		return sha256.New(), nil
	case constants.HashAlgorithmSHA512:
		return sha512.New(), nil
	case constants.HashAlgorithmSHA1:
		// #nosec G401
		return sha1.New(), nil
	case constants.HashAlgorithmMD5:
		// #nosec G401
		return md5.New(), nil
	case constants.HashAlgorithmBLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
}

// HashBytes returns the lowercase hex digest of data.
func HashBytes(data []byte, algorithm string) (string, error) {
	h, err := CreateHasher(algorithm)
	if err != nil {
		return "", err
	}
	h.Write(data) // #nosec G104 - hash writes never fail
	return hex.EncodeToString(h.Sum(nil)), nil
}
