package aeskey

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/substantialcattle5/stillsuit/internal/backuperr"
)

// Encrypt encrypts plaintext with AES-CBC and PKCS#7 padding.
// A fresh random IV is generated for every call and prepended to the output.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, backuperr.Crypto("encrypt", fmt.Errorf("failed to create cipher: %w", err))
	}

	iv, err := generateIV()
	if err != nil {
		return nil, backuperr.Crypto("encrypt", err)
	}

	ciphertext := encryptCBC(block, iv, plaintext)
	return append(iv, ciphertext...), nil
}

// Decrypt reverses Encrypt. Input is [16-byte IV][ciphertext].
func Decrypt(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, backuperr.Crypto("decrypt", fmt.Errorf("failed to create cipher: %w", err))
	}

	if len(data) < 2*aes.BlockSize {
		return nil, backuperr.Crypto("decrypt", fmt.Errorf("encrypted data too short: %d bytes", len(data)))
	}

	plaintext, err := decryptCBC(block, data[:aes.BlockSize], data[aes.BlockSize:])
	if err != nil {
		return nil, backuperr.Crypto("decrypt", err)
	}
	return plaintext, nil
}

func encryptCBC(block cipher.Block, iv, plaintext []byte) []byte {
	// PKCS#7
	padLength := aes.BlockSize - (len(plaintext) % aes.BlockSize)
	padded := make([]byte, len(plaintext), len(plaintext)+padLength)
	copy(padded, plaintext)
	padded = append(padded, bytes.Repeat([]byte{byte(padLength)}, padLength)...)

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext
}

func decryptCBC(block cipher.Block, iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext is not a multiple of the block size")
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return removePKCS7Padding(plaintext)
}

func removePKCS7Padding(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}

	padLen := int(plaintext[len(plaintext)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(plaintext) {
		return nil, fmt.Errorf("invalid padding")
	}

	for i := len(plaintext) - padLen; i < len(plaintext); i++ {
		if plaintext[i] != byte(padLen) {
			return nil, fmt.Errorf("invalid padding")
		}
	}

	return plaintext[:len(plaintext)-padLen], nil
}

func generateIV() ([]byte, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}
	return iv, nil
}
