// Package crypto encrypts serialized brief summaries at rest.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// Key derivation parameters. Changing any of these makes existing records unreadable.
const (
	kdfSalt   = "salt"
	kdfN      = 16384
	kdfR      = 8
	kdfP      = 1
	keyLength = 32
)

// ErrInvalidCiphertext is returned when stored data cannot be decrypted
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// Sealed is an encrypted payload with its initialization vector, both hex-encoded
type Sealed struct {
	IV      string `json:"iv"`
	Content string `json:"content"`
}

// SummaryEncryptor handles AES-256-CBC encryption of brief summaries.
// The key is derived from the server secret with a fixed salt, so every
// record is readable by whoever holds that secret.
type SummaryEncryptor struct {
	block cipher.Block
}

// NewSummaryEncryptor derives the AES key from secret with scrypt
func NewSummaryEncryptor(secret string) (*SummaryEncryptor, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption secret is required")
	}

	key, err := scrypt.Key([]byte(secret), []byte(kdfSalt), kdfN, kdfR, kdfP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher block: %w", err)
	}

	return &SummaryEncryptor{block: block}, nil
}

// Encrypt encrypts plaintext under a fresh random IV
func (e *SummaryEncryptor) Encrypt(plaintext []byte) (Sealed, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Sealed{}, fmt.Errorf("failed to generate IV: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(e.block, iv).CryptBlocks(ciphertext, padded)

	return Sealed{
		IV:      hex.EncodeToString(iv),
		Content: hex.EncodeToString(ciphertext),
	}, nil
}

// Decrypt reverses Encrypt using the IV stored alongside the ciphertext
func (e *SummaryEncryptor) Decrypt(sealed Sealed) ([]byte, error) {
	iv, err := hex.DecodeString(sealed.IV)
	if err != nil {
		return nil, fmt.Errorf("failed to decode IV: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: IV must be %d bytes, got %d", ErrInvalidCiphertext, aes.BlockSize, len(iv))
	}

	ciphertext, err := hex.DecodeString(sealed.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of the block size", ErrInvalidCiphertext, len(ciphertext))
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(e.block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrInvalidCiphertext)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrInvalidCiphertext)
		}
	}
	return data[:len(data)-n], nil
}
