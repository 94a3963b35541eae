// Package crypto implements the at-rest encryption of captured payload
// fields. Values are sealed with AES-256-GCM and stored as three
// colon-delimited hex parts: iv:tag:ciphertext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	ivLength  = 16
	tagLength = 16
)

var (
	// ErrInvalidFormat is returned when a stored value does not have the
	// expected iv:tag:ciphertext structure.
	ErrInvalidFormat = errors.New("invalid encrypted text format")

	// ErrDecrypt is returned when authentication fails, i.e. the stored
	// value was corrupted or tampered with.
	ErrDecrypt = errors.New("decryption failed")
)

// Codec encrypts and decrypts opaque text blobs with a process-wide key.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a Codec from a hex-encoded 32-byte key.
func NewCodec(keyHex string) (*Codec, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, errors.New("encryption key must be hex encoded")
	}
	if len(key) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	// Seal appends the tag to the ciphertext; split it back out so the
	// stored format stays iv:tag:ciphertext.
	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens a stored iv:tag:ciphertext value. It returns
// ErrInvalidFormat for malformed input and ErrDecrypt when the
// authentication tag does not match.
func (c *Codec) Decrypt(stored string) (string, error) {
	parts := strings.Split(stored, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", ErrInvalidFormat
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivLength {
		return "", ErrInvalidFormat
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagLength {
		return "", ErrInvalidFormat
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrInvalidFormat
	}

	plaintext, err := c.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
